package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingStreamer holds the feed in a healthy streaming state.
type blockingStreamer struct{}

func (blockingStreamer) Run(ctx context.Context, pairs []string, onTick func(domain.Tick)) error {
	for _, p := range pairs {
		onTick(domain.Tick{Symbol: p, Price: 100, Source: domain.TickSourceStream, Timestamp: time.Now()})
	}
	<-ctx.Done()
	return nil
}

// failingStreamer drops every connection immediately.
type failingStreamer struct{}

func (failingStreamer) Run(context.Context, []string, func(domain.Tick)) error {
	return errors.New("connection refused")
}

type nilGateway struct{}

func (nilGateway) GetBalance(context.Context) (float64, error) { return 0, nil }

func (nilGateway) FetchOHLCV(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (nilGateway) FetchTicker(context.Context, string) (domain.Tick, error) {
	return domain.Tick{}, errors.New("unavailable")
}

func (nilGateway) CreateMarketBuy(context.Context, string, float64) (domain.Order, error) {
	return domain.Order{}, errors.New("unavailable")
}

func (nilGateway) CreateMarketSell(context.Context, string, float64) (domain.Order, error) {
	return domain.Order{}, errors.New("unavailable")
}

type stubReporter struct {
	ran chan struct{}
}

func (r *stubReporter) Run(ctx context.Context) error {
	close(r.ran)
	<-ctx.Done()
	return ctx.Err()
}

func fastOptions() Options {
	return Options{
		TrailInterval:     5 * time.Millisecond,
		HeartbeatInterval: time.Millisecond,
		StopTimeout:       5 * time.Second,
	}
}

func newOrchestrator(streamer feed.Streamer, reporter Reporter) (*Orchestrator, *risk.Engine) {
	engine := risk.NewEngine(risk.DefaultParams(), nil, testLogger())
	engine.StartSession(10000)
	f := feed.New([]string{"BTC/USDT"}, streamer, nilGateway{}, nil, nil, feed.DefaultOptions(), testLogger())
	return New(f, nil, engine, reporter, fastOptions(), testLogger()), engine
}

func TestStartStopLifecycle(t *testing.T) {
	rep := &stubReporter{ran: make(chan struct{})}
	o, _ := newOrchestrator(blockingStreamer{}, rep)

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.IsRunning())
	assert.Error(t, o.Start(context.Background()), "double start is rejected")

	select {
	case <-rep.ran:
	case <-time.After(time.Second):
		t.Fatal("reporter never started")
	}

	require.NoError(t, o.Stop())
	assert.False(t, o.IsRunning())
	assert.NoError(t, o.Err())
}

func TestStopWithoutStart(t *testing.T) {
	o, _ := newOrchestrator(blockingStreamer{}, nil)
	assert.NoError(t, o.Stop())
}

func TestHeartbeatAdvances(t *testing.T) {
	o, _ := newOrchestrator(blockingStreamer{}, nil)

	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	first := o.Heartbeat()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if o.Heartbeat().After(first) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("heartbeat did not advance")
}

func TestPermanentFeedFailureStopsGroup(t *testing.T) {
	engine := risk.NewEngine(risk.DefaultParams(), nil, testLogger())
	engine.StartSession(10000)

	opts := feed.DefaultOptions()
	opts.ReconnectBase = time.Millisecond
	opts.ReconnectMax = time.Millisecond
	opts.FailedAfter = 2
	f := feed.New([]string{"BTC/USDT"}, failingStreamer{}, nilGateway{}, nil, nil, opts, testLogger())

	o := New(f, nil, engine, nil, fastOptions(), testLogger())
	require.NoError(t, o.Start(context.Background()))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && o.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	assert.False(t, o.IsRunning())
	assert.ErrorIs(t, o.Err(), domain.ErrFeedFailed)
}

func TestTrailLoopRatchetsStops(t *testing.T) {
	o, engine := newOrchestrator(blockingStreamer{}, nil)

	// Entry at 90 with a wide stop; the live price of 100 pulls it up.
	engine.RegisterEntry(domain.Position{
		Symbol: "BTC/USDT", Side: domain.OrderSideBuy,
		EntryPrice: 90, Quantity: 1, StopLoss: 80, TakeProfit: 200,
	})

	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pos, ok := engine.Position("BTC/USDT")
		require.True(t, ok)
		if pos.StopLoss > 80 {
			assert.InDelta(t, 100*(1-risk.DefaultParams().TrailingStopDistance), pos.StopLoss, 1e-9)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("trailing stop never moved")
}
