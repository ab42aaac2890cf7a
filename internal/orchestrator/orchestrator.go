package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmoura/cryptopilot/internal/controller"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/risk"
)

// Reporter periodically surfaces account state. Optional.
type Reporter interface {
	Run(ctx context.Context) error
}

// Options tunes the orchestrator loops.
type Options struct {
	TrailInterval     time.Duration
	HeartbeatInterval time.Duration
	StopTimeout       time.Duration
}

// DefaultOptions mirror the production cadence.
func DefaultOptions() Options {
	return Options{
		TrailInterval:     30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		StopTimeout:       15 * time.Second,
	}
}

// Orchestrator owns the feed, the per-symbol controllers and the
// trailing-stop maintenance loop. Start launches everything in one errgroup;
// Stop cancels it and joins with a bounded timeout.
type Orchestrator struct {
	feed        *feed.Feed
	controllers []*controller.Controller
	engine      *risk.Engine
	reporter    Reporter
	opts        Options
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error

	heartbeat atomic.Int64 // unix nano of the last liveness beat
}

// New wires an orchestrator; reporter may be nil.
func New(f *feed.Feed, controllers []*controller.Controller, engine *risk.Engine, reporter Reporter, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		feed:        f,
		controllers: controllers,
		engine:      engine,
		reporter:    reporter,
		opts:        opts,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Start launches the feed, every controller, the trailing-stop loop and the
// heartbeat. It returns immediately; the group runs until Stop or until the
// feed fails permanently.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator: already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	o.runErr = nil
	o.beat()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return o.feed.Run(gctx)
	})
	for _, c := range o.controllers {
		c := c
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	g.Go(func() error {
		return o.trailLoop(gctx)
	})
	g.Go(func() error {
		return o.heartbeatLoop(gctx)
	})
	if o.reporter != nil {
		g.Go(func() error {
			return o.reporter.Run(gctx)
		})
	}

	go func() {
		err := g.Wait()
		o.mu.Lock()
		o.running = false
		if err != nil && !errors.Is(err, context.Canceled) {
			o.runErr = err
			o.logger.Error("orchestrator stopped", slog.String("error", err.Error()))
		}
		close(o.done)
		o.mu.Unlock()
	}()

	o.logger.Info("orchestrator started", slog.Int("controllers", len(o.controllers)))
	return nil
}

// Stop cancels the group and waits for it to drain, bounded by StopTimeout.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		o.logger.Info("orchestrator stopped cleanly")
		return nil
	case <-time.After(o.opts.StopTimeout):
		return fmt.Errorf("orchestrator: shutdown timed out after %s", o.opts.StopTimeout)
	}
}

// IsRunning reports whether the run group is still alive.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Err returns the terminal error after the group has stopped, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runErr
}

// Heartbeat returns the time of the last liveness beat.
func (o *Orchestrator) Heartbeat() time.Time {
	return time.Unix(0, o.heartbeat.Load())
}

func (o *Orchestrator) beat() {
	o.heartbeat.Store(time.Now().UnixNano())
}

func (o *Orchestrator) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.beat()
		}
	}
}

// trailLoop ratchets trailing stops using the freshest feed prices.
func (o *Orchestrator) trailLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.opts.TrailInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			prices := make(map[string]float64)
			for _, pos := range o.engine.OpenPositions() {
				if tick, ok := o.feed.CurrentPrice(pos.Symbol); ok {
					prices[pos.Symbol] = tick.Price
				}
			}
			if len(prices) > 0 {
				o.engine.UpdateTrailingStops(prices)
			}
		}
	}
}
