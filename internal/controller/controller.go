package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/exchange"
	"github.com/lmoura/cryptopilot/internal/risk"
	"github.com/lmoura/cryptopilot/internal/strategy"
)

// State is the controller's position lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateEntered    State = "entered"
	StateExiting    State = "exiting"
)

// TradeRecorder receives order outcome events for metrics. May be nil.
type TradeRecorder interface {
	RecordTrade(symbol string, side domain.OrderSide)
	RecordOrderFailure(symbol string)
	RecordRejection(symbol string, reason risk.RejectReason)
}

// Options tunes one controller.
type Options struct {
	Timeframe     string
	CycleInterval time.Duration
	CandleLimit   int
	TickBuffer    int
}

// DefaultOptions mirror the production cadence.
func DefaultOptions() Options {
	return Options{
		Timeframe:     "1m",
		CycleInterval: 60 * time.Second,
		CandleLimit:   250,
		TickBuffer:    64,
	}
}

// Controller runs the trade lifecycle for exactly one symbol. A periodic
// cycle drives analysis and entries; live ticks arriving between cycles
// re-check exits so a stop is honoured without waiting for the next cycle.
type Controller struct {
	symbol   string
	strat    strategy.Strategy
	gateway  exchange.Gateway
	engine   *risk.Engine
	candles  domain.CandleStore // optional
	recorder TradeRecorder      // optional
	opts     Options
	logger   *slog.Logger

	ticks chan domain.Tick

	mu    sync.RWMutex
	state State
}

// New creates a controller. candles and recorder may be nil.
func New(symbol string, strat strategy.Strategy, gateway exchange.Gateway, engine *risk.Engine, candles domain.CandleStore, recorder TradeRecorder, opts Options, logger *slog.Logger) *Controller {
	return &Controller{
		symbol:   symbol,
		strat:    strat,
		gateway:  gateway,
		engine:   engine,
		candles:  candles,
		recorder: recorder,
		opts:     opts,
		logger: logger.With(
			slog.String("component", "controller"),
			slog.String("symbol", symbol),
			slog.String("strategy", strat.Name())),
		ticks: make(chan domain.Tick, opts.TickBuffer),
		state: StateIdle,
	}
}

// Symbol returns the pair this controller trades.
func (c *Controller) Symbol() string { return c.symbol }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// EnqueueTick hands a live tick to the run loop. It never blocks; when the
// buffer is full the tick is dropped, the next one re-checks the same levels.
func (c *Controller) EnqueueTick(tick domain.Tick) {
	select {
	case c.ticks <- tick:
	default:
	}
}

// Run drives the controller until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	// Recover position state after a restart.
	if _, ok := c.engine.Position(c.symbol); ok {
		c.setState(StateEntered)
	}

	ticker := time.NewTicker(c.opts.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-c.ticks:
			c.fastExitCheck(ctx, tick.Price)
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

// fastExitCheck closes the position as soon as a live tick crosses the stop
// or target, without waiting for the next analysis cycle.
func (c *Controller) fastExitCheck(ctx context.Context, price float64) {
	if c.State() != StateEntered {
		return
	}
	reason, ok := c.engine.ShouldExit(c.symbol, price)
	if !ok {
		return
	}
	c.exit(ctx, price, reason)
}

// cycle performs one full evaluation: fetch data, analyse, then at most one
// order attempt. Any data failure skips the cycle and leaves state as it was.
func (c *Controller) cycle(ctx context.Context) {
	entered := c.State() == StateEntered
	c.setState(StateEvaluating)
	restore := func() {
		if entered {
			c.setState(StateEntered)
		} else {
			c.setState(StateIdle)
		}
	}

	candles, err := c.gateway.FetchOHLCV(ctx, c.symbol, c.opts.Timeframe, c.opts.CandleLimit)
	if err != nil {
		c.logger.Warn("market data unavailable, skipping cycle", slog.String("error", err.Error()))
		restore()
		return
	}
	if c.candles != nil {
		if err := c.candles.UpsertBatch(ctx, candles); err != nil {
			c.logger.Warn("candle persist failed", slog.String("error", err.Error()))
		}
	}

	sig, err := c.strat.Analyze(candles)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			c.logger.Debug("insufficient data, skipping cycle", slog.Int("candles", len(candles)))
		} else {
			c.logger.Warn("analysis failed, skipping cycle", slog.String("error", err.Error()))
		}
		restore()
		return
	}

	price := candles[len(candles)-1].Close

	if entered {
		if sig.ShouldSell {
			c.exit(ctx, price, domain.ExitReasonSignal)
			return
		}
		if reason, ok := c.engine.ShouldExit(c.symbol, price); ok {
			c.exit(ctx, price, reason)
			return
		}
		c.setState(StateEntered)
		return
	}

	if sig.ShouldBuy {
		c.enter(ctx, price, sig)
		return
	}
	c.setState(StateIdle)
}

// enter sizes, reserves risk capacity and places a market buy. The
// reservation holds the approved capacity while the order is in flight, so
// another symbol cannot slip past the shared caps; a failed order releases
// it and leaves the controller flat.
func (c *Controller) enter(ctx context.Context, price float64, sig domain.Signal) {
	balance, err := c.gateway.GetBalance(ctx)
	if err != nil {
		c.logger.Warn("balance unavailable, skipping entry", slog.String("error", err.Error()))
		c.setState(StateIdle)
		return
	}

	stop, target := c.engine.StopLossTakeProfit(price, domain.OrderSideBuy, sig.StopLoss, sig.TakeProfit)
	size, err := c.engine.CalculatePositionSize(balance, price, stop, sig.Confidence)
	if err != nil {
		c.logger.Warn("sizing failed", slog.String("error", err.Error()))
		c.setState(StateIdle)
		return
	}

	res, rej := c.engine.Reserve(c.symbol, balance, price, stop, size.Quantity)
	if rej != nil {
		c.logger.Warn("entry rejected",
			slog.String("reason", string(rej.Reason)),
			slog.Float64("value", rej.Value),
			slog.Float64("limit", rej.Limit))
		if c.recorder != nil {
			c.recorder.RecordRejection(c.symbol, rej.Reason)
		}
		c.setState(StateIdle)
		return
	}

	order, err := c.gateway.CreateMarketBuy(ctx, c.symbol, size.Quantity)
	if err != nil {
		res.Release()
		c.logger.Error("buy order failed", slog.String("error", err.Error()))
		if c.recorder != nil {
			c.recorder.RecordOrderFailure(c.symbol)
		}
		c.setState(StateIdle)
		return
	}

	entry := order.FilledPrice
	if entry <= 0 {
		entry = price
	}
	// Protective levels follow the actual fill, not the signal price.
	stop, target = c.engine.StopLossTakeProfit(entry, domain.OrderSideBuy, sig.StopLoss, sig.TakeProfit)

	res.Confirm(domain.Position{
		ID:         uuid.NewString(),
		Symbol:     c.symbol,
		Side:       domain.OrderSideBuy,
		EntryPrice: entry,
		Quantity:   size.Quantity,
		StopLoss:   stop,
		TakeProfit: target,
		Strategy:   c.strat.Name(),
		OpenedAt:   time.Now().UTC(),
	})
	if c.recorder != nil {
		c.recorder.RecordTrade(c.symbol, domain.OrderSideBuy)
	}
	c.setState(StateEntered)

	c.logger.Info("entered position",
		slog.Float64("entry", entry),
		slog.Float64("quantity", size.Quantity),
		slog.Float64("stop_loss", stop),
		slog.Float64("take_profit", target),
		slog.String("limited_by", string(size.LimitedBy)),
		slog.Float64("confidence", sig.Confidence))
}

// exit places a market sell for the full position. When the order fails the
// position stays registered and the state returns to entered, so the next
// tick or cycle retries the close.
func (c *Controller) exit(ctx context.Context, price float64, reason domain.ExitReason) {
	c.setState(StateExiting)

	pos, ok := c.engine.Position(c.symbol)
	if !ok {
		c.setState(StateIdle)
		return
	}

	order, err := c.gateway.CreateMarketSell(ctx, c.symbol, pos.Quantity)
	if err != nil {
		c.logger.Error("sell order failed, position stays open",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
		if c.recorder != nil {
			c.recorder.RecordOrderFailure(c.symbol)
		}
		c.setState(StateEntered)
		return
	}

	exitPrice := order.FilledPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	c.engine.RegisterExit(ctx, c.symbol, exitPrice, reason)
	if c.recorder != nil {
		c.recorder.RecordTrade(c.symbol, domain.OrderSideSell)
	}
	c.setState(StateIdle)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
