package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/exchange"
)

// State is the connection state of the market data feed.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateDegraded     State = "degraded"
	StateFailed       State = "failed"
)

// Streamer is one connection attempt to the streaming transport. Run blocks
// until the connection drops or ctx is cancelled; it never retries itself.
type Streamer interface {
	Run(ctx context.Context, pairs []string, onTick func(domain.Tick)) error
}

// PriceCallback receives every accepted tick for a subscribed symbol.
// Callbacks run on the feed goroutine and must not block.
type PriceCallback func(domain.Tick)

// Options tunes the feed state machine.
type Options struct {
	PollInterval  time.Duration // REST fallback cadence while degraded
	ReconnectBase time.Duration // first retry delay
	ReconnectMax  time.Duration // backoff ceiling
	DegradedAfter int           // consecutive failures before degrading
	FailedAfter   int           // consecutive failures before giving up
	PersistBuffer int           // tick persistence queue length
}

// DefaultOptions mirror the production tuning.
func DefaultOptions() Options {
	return Options{
		PollInterval:  5 * time.Second,
		ReconnectBase: 2 * time.Second,
		ReconnectMax:  60 * time.Second,
		DegradedAfter: 3,
		FailedAfter:   20,
		PersistBuffer: 4096,
	}
}

// Feed multiplexes live prices for a fixed set of symbols. It prefers the
// streaming transport and falls back to REST polling while degraded. The
// latest tick per symbol is always readable without blocking the updater.
type Feed struct {
	pairs    []string
	streamer Streamer
	gateway  exchange.Gateway
	opts     Options
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	snapshot  map[string]domain.Tick
	callbacks map[string][]PriceCallback

	connStreamed atomic.Bool // the current connection delivered a tick
	degraded     atomic.Bool // polling active; survives reconnect probes

	onState func(State) // optional hook for metrics

	persist *persister
}

// New creates a feed over the given symbols. tickStore and priceCache may be
// nil; persistence and mirroring are then disabled.
func New(pairs []string, streamer Streamer, gateway exchange.Gateway, tickStore domain.TickStore, priceCache domain.PriceCache, opts Options, logger *slog.Logger) *Feed {
	f := &Feed{
		pairs:     pairs,
		streamer:  streamer,
		gateway:   gateway,
		opts:      opts,
		logger:    logger.With(slog.String("component", "feed")),
		state:     StateDisconnected,
		snapshot:  make(map[string]domain.Tick, len(pairs)),
		callbacks: make(map[string][]PriceCallback),
	}
	if tickStore != nil || priceCache != nil {
		f.persist = newPersister(tickStore, priceCache, opts.PersistBuffer, f.logger)
	}
	return f
}

// OnStateChange registers a hook invoked on every state transition.
// Must be called before Run.
func (f *Feed) OnStateChange(fn func(State)) { f.onState = fn }

// AddPriceCallback registers a callback for one symbol. Multiple callbacks
// per symbol run in registration order. Must be called before Run.
func (f *Feed) AddPriceCallback(symbol string, cb PriceCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[symbol] = append(f.callbacks[symbol], cb)
}

// CurrentPrice returns the latest tick for the symbol, false when no tick
// has been observed yet.
func (f *Feed) CurrentPrice(symbol string) (domain.Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.snapshot[symbol]
	return t, ok
}

// State returns the current connection state.
func (f *Feed) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Restart clears the terminal failed state so Run may be called again.
func (f *Feed) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateFailed {
		return fmt.Errorf("feed: restart from state %q", f.state)
	}
	f.state = StateDisconnected
	return nil
}

// Run drives the state machine until ctx is cancelled or the consecutive
// failure ceiling is reached, in which case it parks in the failed state
// and returns ErrFeedFailed.
func (f *Feed) Run(ctx context.Context) error {
	if f.State() == StateFailed {
		return domain.ErrFeedFailed
	}

	if f.persist != nil {
		go f.persist.run(ctx)
	}
	go f.pollLoop(ctx)

	failures := 0
	for {
		if ctx.Err() != nil {
			f.setState(StateDisconnected)
			return ctx.Err()
		}

		f.setState(StateConnecting)
		f.connStreamed.Store(false)
		err := f.streamer.Run(ctx, f.pairs, f.handleTick)
		if err == nil || ctx.Err() != nil {
			f.degraded.Store(false)
			f.setState(StateDisconnected)
			return ctx.Err()
		}

		// A connection that streamed at least one tick starts the failure
		// count over; only uninterrupted failures accumulate.
		if f.connStreamed.Load() {
			failures = 0
		}
		failures++
		f.logger.Warn("stream disconnected",
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", failures))

		if failures >= f.opts.FailedAfter {
			f.degraded.Store(false)
			f.setState(StateFailed)
			f.logger.Error("feed giving up", slog.Int("failures", failures))
			return domain.ErrFeedFailed
		}
		if failures >= f.opts.DegradedAfter {
			f.degraded.Store(true)
			f.setState(StateDegraded)
		}

		delay := f.backoff(failures)
		select {
		case <-ctx.Done():
			f.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// handleTick is the single write path for the snapshot. It runs on either
// the stream read loop or the poller, never both for the same transport
// window, and fans the tick out to callbacks and the persistence queue.
func (f *Feed) handleTick(tick domain.Tick) {
	var becameStreaming bool
	f.mu.Lock()
	if tick.Source == domain.TickSourceStream {
		f.connStreamed.Store(true)
		f.degraded.Store(false)
		if f.state != StateStreaming {
			f.state = StateStreaming
			becameStreaming = true
		}
	}
	f.snapshot[tick.Symbol] = tick
	cbs := f.callbacks[tick.Symbol]
	f.mu.Unlock()

	if becameStreaming {
		f.notifyState(StateStreaming)
	}

	for _, cb := range cbs {
		cb(tick)
	}

	if f.persist != nil {
		f.persist.enqueue(tick)
	}
}

// pollLoop polls the REST gateway while the feed is degraded. It shares the
// handleTick path so consumers cannot tell the transports apart. Polling
// keeps running through reconnect probes; only a streamed tick or giving up
// turns it off, so consumers see prices for the whole outage.
func (f *Feed) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !f.degraded.Load() {
			continue
		}
		for _, sym := range f.pairs {
			tick, err := f.gateway.FetchTicker(ctx, sym)
			if err != nil {
				f.logger.Warn("poll failed", slog.String("symbol", sym), slog.String("error", err.Error()))
				continue
			}
			f.handleTick(tick)
		}
	}
}

func (f *Feed) backoff(failures int) time.Duration {
	delay := f.opts.ReconnectBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= f.opts.ReconnectMax {
			return f.opts.ReconnectMax
		}
	}
	return delay
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	changed := f.state != s
	f.state = s
	f.mu.Unlock()
	if changed {
		f.notifyState(s)
	}
}

func (f *Feed) notifyState(s State) {
	if f.onState != nil {
		f.onState(s)
	}
}
