package pricesync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SessionPurger removes expired sessions. *auth.SessionManager implements it.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the syncer on a fixed interval, plus the expired-session
// sweep on the same tick.
type Scheduler struct {
	syncer   *Syncer
	sessions SessionPurger
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. sessions may be nil to skip the sweep.
func NewScheduler(syncer *Syncer, sessions SessionPurger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		sessions: sessions,
		logger:   logger,
	}
}

// Start runs one cycle immediately, then one per interval, until ctx is
// cancelled. Failures are logged and never stop the loop.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("price sync scheduler started", slog.Duration("interval", interval))

	s.logCycle(s.RunOnce(ctx))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("price sync scheduler stopped")
			return
		case <-ticker.C:
			s.logCycle(s.RunOnce(ctx))
		}
	}
}

// RunOnce syncs prices, then purges expired sessions. Both steps run even if
// the first fails; the errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	syncErr := s.syncer.Sync(ctx)

	var purgeErr error
	if s.sessions != nil {
		n, err := s.sessions.PurgeExpired(ctx)
		if err != nil {
			purgeErr = err
		} else if n > 0 {
			s.logger.Info("expired sessions purged", slog.Int64("count", n))
		}
	}

	return errors.Join(syncErr, purgeErr)
}

func (s *Scheduler) logCycle(err error) {
	if err == nil {
		return
	}
	// Shutdown cancels the in-flight cycle; that isn't worth an error line.
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error("scheduled cycle failed", slog.String("error", err.Error()))
}
