package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// Target is the supervised unit: the orchestrator, or a stub in tests.
type Target interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Heartbeat() time.Time
}

// Factory rebuilds the target for a restart. A fresh instance per attempt
// keeps a wedged orchestrator from poisoning its successor.
type Factory func(ctx context.Context) (Target, error)

// Options tunes the supervision loop.
type Options struct {
	ProbeInterval time.Duration // health probe cadence
	HeartbeatMax  time.Duration // staleness threshold
	MaxErrors     int           // reported errors before forced restart
	MaxRestarts   int           // restart budget, then fatal
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// DefaultOptions mirror the production daemon tuning.
func DefaultOptions() Options {
	return Options{
		ProbeInterval: 60 * time.Second,
		HeartbeatMax:  5 * time.Minute,
		MaxErrors:     10,
		MaxRestarts:   10,
		BackoffBase:   60 * time.Second,
		BackoffMax:    30 * time.Minute,
	}
}

// Supervisor keeps the orchestrator alive: a periodic probe checks liveness
// and the error budget, and an unhealthy target is torn down and rebuilt
// with exponential backoff. After the restart budget is exhausted the
// supervisor stops permanently with ErrRestartsExhausted.
type Supervisor struct {
	factory Factory
	opts    Options
	logger  *slog.Logger

	errorCount atomic.Int64
	restarts   atomic.Int64
}

// New creates a supervisor around the given factory.
func New(factory Factory, opts Options, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		factory: factory,
		opts:    opts,
		logger:  logger.With(slog.String("component", "supervisor")),
	}
}

// ReportError feeds the error budget. Components call this for failures
// that are recoverable alone but alarming in bulk.
func (s *Supervisor) ReportError(err error) {
	n := s.errorCount.Add(1)
	s.logger.Warn("error reported",
		slog.String("error", err.Error()),
		slog.Int64("error_count", n),
		slog.Int("max_errors", s.opts.MaxErrors))
}

// Restarts returns how many restarts have been performed.
func (s *Supervisor) Restarts() int { return int(s.restarts.Load()) }

// Run builds the target, starts it, and probes it until ctx is cancelled or
// the restart budget runs out. The target is always stopped before return.
func (s *Supervisor) Run(ctx context.Context) error {
	target, err := s.factory(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: build target: %w", err)
	}
	if err := target.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: start target: %w", err)
	}
	s.logger.Info("supervision started")

	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			if err := target.Stop(); err != nil {
				s.logger.Warn("stop failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
		}

		if s.healthy(target) {
			continue
		}

		attempt := int(s.restarts.Add(1))
		if attempt > s.opts.MaxRestarts {
			s.logger.Error("restart budget exhausted, stopping permanently",
				slog.Int("restarts", attempt-1))
			if err := target.Stop(); err != nil {
				s.logger.Warn("final stop failed", slog.String("error", err.Error()))
			}
			return domain.ErrRestartsExhausted
		}

		delay := s.backoff(attempt)
		s.logger.Warn("target unhealthy, restarting",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay))

		if err := target.Stop(); err != nil {
			s.logger.Warn("stop before restart failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		next, err := s.factory(ctx)
		if err != nil {
			s.logger.Error("rebuild failed", slog.String("error", err.Error()))
			continue
		}
		if err := next.Start(ctx); err != nil {
			s.logger.Error("restart failed", slog.String("error", err.Error()))
			continue
		}
		target = next
		s.errorCount.Store(0)
		s.logger.Info("target restarted", slog.Int("attempt", attempt))
	}
}

func (s *Supervisor) healthy(target Target) bool {
	if !target.IsRunning() {
		s.logger.Warn("target not running")
		return false
	}
	if age := time.Since(target.Heartbeat()); age > s.opts.HeartbeatMax {
		s.logger.Warn("heartbeat stale", slog.Duration("age", age))
		return false
	}
	if n := s.errorCount.Load(); n >= int64(s.opts.MaxErrors) {
		s.logger.Warn("error budget exceeded", slog.Int64("errors", n))
		return false
	}
	return true
}

// backoff returns min(base * 2^(attempt-1), max).
func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.BackoffMax {
			return s.opts.BackoffMax
		}
	}
	if delay > s.opts.BackoffMax {
		delay = s.opts.BackoffMax
	}
	return delay
}
