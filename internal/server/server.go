// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware,
// background jobs and routes, and decides:
//   - Which URL patterns map to which handler functions
//   - Which routes need a signed-in user
//   - How the server, the price scheduler and the database stop together
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB → CatalogService / AuthService / SessionManager
//	  market.Client → pricesync.Syncer → pricesync.Scheduler
//	  services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/coin-tracker/internal/auth"
	"github.com/sakif/coin-tracker/internal/config"
	"github.com/sakif/coin-tracker/internal/handler"
	"github.com/sakif/coin-tracker/internal/market"
	"github.com/sakif/coin-tracker/internal/metrics"
	"github.com/sakif/coin-tracker/internal/middleware"
	"github.com/sakif/coin-tracker/internal/pricesync"
	sqliteRepo "github.com/sakif/coin-tracker/internal/repository/sqlite"
	"github.com/sakif/coin-tracker/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection, the rate limiter's cleanup
// goroutine and the price scheduler. Start stops all three on shutdown.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	limiter   *middleware.RateLimiter
	scheduler *pricesync.Scheduler
	registry  *prometheus.Registry
}

// New opens the database, builds every service and registers the routes.
// Nothing runs in the background until Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Scheduler returns the price scheduler, mainly so tests can run a cycle
// without waiting for Start.
func (s *Server) Scheduler() *pricesync.Scheduler {
	return s.scheduler
}

// setupRoutes builds the services and handlers and mounts them.
//
// MIDDLEWARE ORDER MATTERS:
// 1. PeerAddr: remembers the socket address before anything rewrites it
// 2. RequestID: assigns a unique ID to each request (for tracing)
// 3. RealIP: only with TRUST_PROXY_HEADERS; takes the client IP from
//    X-Forwarded-For, which a client can set to anything without a proxy
// 4. Logger: logs each request and counts it in the metrics
// 5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Metrics ===
	collector := metrics.NewCollector(s.registry)
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === Global Middleware ===
	s.router.Use(middleware.PeerAddr)
	s.router.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger, collector))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) implements every repository interface
	//   services receive the interfaces, handlers receive the services
	tokens, err := auth.NewTokenService(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sessions := auth.NewSessionManager(s.db, tokens, cfg.SessionTTL, cfg.CookieSecure, s.logger)
	authService := service.NewAuthService(s.db, auth.NewPasswordService(), s.logger)
	catalog := service.NewCatalogService(s.db, s.logger)

	// === Background price sync ===
	provider := market.NewClient(market.Options{
		BaseURL:    cfg.PriceAPIURL,
		VsCurrency: cfg.PriceVsCurrency,
		PageSize:   cfg.PricePageSize,
		Timeout:    cfg.PriceFetchTimeout,
	}, s.logger)
	syncer := pricesync.NewSyncer(provider, catalog, collector, s.logger)
	s.scheduler = pricesync.NewScheduler(syncer, sessions, s.logger)

	// === Handlers ===
	pages, err := handler.NewRenderer(s.logger, cfg.CookieSecure)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	s.limiter = middleware.NewRateLimiter(cfg.SignInRatePerMin, cfg.TrustProxyHeaders, s.logger)

	RegisterRoutes(s.router, Routes{
		Auth:        handler.NewAuthHandler(authService, sessions, pages, s.logger),
		Items:       handler.NewItemHandler(catalog, pages, s.logger),
		Sessions:    sessions,
		Credentials: s.limiter.Middleware,
		Health:      handler.HandleHealth(s.db, s.logger),
		Metrics:     metrics.Handler(s.registry),
	})

	return nil
}

// Routes is what RegisterRoutes mounts.
type Routes struct {
	Auth     *handler.AuthHandler
	Items    *handler.ItemHandler
	Sessions *auth.SessionManager

	// Credentials wraps POST /signin and POST /signup. nil means no limit.
	Credentials func(http.Handler) http.Handler

	// Health and Metrics are skipped when nil.
	Health  http.Handler
	Metrics http.Handler
}

// RegisterRoutes mounts the application's route table on r.
//
// ROUTE STRUCTURE:
// GET  /                    → redirect to /signin
// GET  /signup, /signin     → forms
// POST /signup, /signin     → wrapped in rt.Credentials
// GET  /logout              → end the session
// GET  /items...            → catalog pages       (session required)
// GET  /api/items...        → catalog as JSON     (session required)
// GET  /healthz, /metrics   → operations
func RegisterRoutes(r chi.Router, rt Routes) {
	credentials := rt.Credentials
	if credentials == nil {
		credentials = func(next http.Handler) http.Handler { return next }
	}

	// === Public routes ===
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
	})
	r.Get("/signup", rt.Auth.HandleSignUpForm)
	r.Get("/signin", rt.Auth.HandleSignInForm)
	r.Get("/logout", rt.Auth.HandleLogout)
	r.With(credentials).Post("/signup", rt.Auth.HandleSignUp)
	r.With(credentials).Post("/signin", rt.Auth.HandleSignIn)

	if rt.Health != nil {
		r.Method(http.MethodGet, "/healthz", rt.Health)
	}
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	// === Protected routes ===
	// r.Group shares the middleware without adding a URL prefix.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(rt.Sessions))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", rt.Items.HandleList)
			r.Post("/", rt.Items.HandleCreate)
			r.Get("/new", rt.Items.HandleNewForm)
			r.Get("/{id}", rt.Items.HandleEditForm)
			r.Post("/{id}", rt.Items.HandleUpdate)
			r.Post("/{id}/delete", rt.Items.HandleDelete)
		})

		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", rt.Items.HandleAPIList)
			r.Get("/{id}", rt.Items.HandleAPIGet)
		})
	})
}

// Start starts the HTTP server and the price scheduler, and handles
// graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Cancel the scheduler and wait for its current cycle to return
//  4. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.limiter.Stop()

	// The first sync runs right away inside the scheduler. A provider that
	// is down at boot only means an empty catalog until the next tick.
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		s.scheduler.Start(schedCtx, s.config.PriceSyncInterval)
	}()
	defer func() {
		stopScheduler()
		<-schedDone
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the database and the limiter without starting anything.
// Start does this itself; Close is for callers that only used Handler.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.db.Close()
}
