// Package main is the entry point for the coin tracker server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables, see internal/config)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, etc.).
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/coin-tracker/internal/config"
	"github.com/sakif/coin-tracker/internal/logging"
	"github.com/sakif/coin-tracker/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// SESSION_SECRET must be a long random string. Use:
	//   SESSION_SECRET=$(openssl rand -hex 32)
	cfg, err := config.Load()
	if err != nil {
		// No logger settings yet, so report with the default one.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_FORMAT=json for log shippers; anything else gets colored text.
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
