package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmoura/cryptopilot/internal/domain"
)

// statsWindow bounds how many recent round trips feed the performance stats.
const statsWindow = 100

// Engine owns all open positions and the per-session risk accounting.
// Every method takes the single engine mutex; entries flow through
// Reserve/Confirm so approval and registration form one critical section.
type Engine struct {
	params Params
	store  domain.TradeRecordStore
	logger *slog.Logger

	mu           sync.RWMutex
	positions    map[string]domain.Position
	reserved     map[string]float64 // risk held per symbol while an order is in flight
	history      []domain.TradeRecord
	sessionStart float64
	dailyPnL     float64
	dailyTrades  int
	winRate      float64
	avgWin       float64
	avgLoss      float64
}

// NewEngine creates an engine with no open positions. store may be nil;
// completed trades are then kept in memory only.
func NewEngine(params Params, store domain.TradeRecordStore, logger *slog.Logger) *Engine {
	return &Engine{
		params:    params,
		store:     store,
		logger:    logger.With(slog.String("component", "risk_engine")),
		positions: make(map[string]domain.Position),
		reserved:  make(map[string]float64),
	}
}

// StartSession records the opening balance used as the daily-loss
// denominator. Call once before trading begins.
func (e *Engine) StartSession(balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionStart = balance
}

// SeedHistory preloads completed trades, oldest first, so Kelly sizing and
// win-rate stats survive a restart.
func (e *Engine) SeedHistory(records []domain.TradeRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, records...)
	e.updateStats()
}

// StopLossTakeProfit derives the protective levels around an entry. The
// percentage distances from params apply unless a custom absolute level is
// passed; zero means no override.
func (e *Engine) StopLossTakeProfit(entry float64, side domain.OrderSide, customStop, customTarget float64) (stop, target float64) {
	slDist := entry * e.params.StopLossPct
	tpDist := entry * e.params.TakeProfitPct
	if side == domain.OrderSideSell {
		stop, target = entry+slDist, entry-tpDist
	} else {
		stop, target = entry-slDist, entry+tpDist
	}
	if customStop > 0 {
		stop = customStop
	}
	if customTarget > 0 {
		target = customTarget
	}
	return stop, target
}

// RegisterEntry records a filled entry directly, without holding a
// reservation first. Live entries go through Reserve and Confirm; this path
// restores positions that were already approved, e.g. after a restart.
func (e *Engine) RegisterEntry(pos domain.Position) {
	e.mu.Lock()
	e.positions[pos.Symbol] = pos
	e.dailyTrades++
	e.mu.Unlock()

	e.logEntry(pos)
}

func (e *Engine) logEntry(pos domain.Position) {
	e.logger.Info("position opened",
		slog.String("symbol", pos.Symbol),
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("stop_loss", pos.StopLoss),
		slog.Float64("take_profit", pos.TakeProfit),
		slog.Float64("risk", pos.RiskAmount()))
}

// RegisterExit closes the open position for the symbol at the given price,
// appends the round trip to history and refreshes the performance stats.
// Returns false when no position is open for the symbol.
func (e *Engine) RegisterExit(ctx context.Context, symbol string, exitPrice float64, reason domain.ExitReason) (domain.TradeRecord, bool) {
	e.mu.Lock()
	pos, ok := e.positions[symbol]
	if !ok {
		e.mu.Unlock()
		return domain.TradeRecord{}, false
	}
	delete(e.positions, symbol)

	pnl := pos.UnrealizedPnL(exitPrice)
	rec := domain.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		PnLPct:     pnl / pos.Value(),
		Reason:     reason,
		Strategy:   pos.Strategy,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now().UTC(),
	}

	e.dailyPnL += pnl
	e.history = append(e.history, rec)
	e.updateStats()
	winRate := e.winRate
	e.mu.Unlock()

	e.logger.Info("position closed",
		slog.String("symbol", symbol),
		slog.String("reason", string(reason)),
		slog.Float64("pnl", pnl),
		slog.Float64("win_rate", winRate))

	if e.store != nil {
		if err := e.store.Insert(ctx, rec); err != nil {
			e.logger.Warn("trade record insert failed",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}
	return rec, true
}

// ShouldExit reports whether the open position for the symbol has hit its
// stop or target at the given price. Both boundaries are inclusive; the
// stop wins when the levels overlap.
func (e *Engine) ShouldExit(symbol string, price float64) (domain.ExitReason, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return "", false
	}
	if price <= pos.StopLoss {
		return domain.ExitReasonStopLoss, true
	}
	if price >= pos.TakeProfit {
		return domain.ExitReasonTakeProfit, true
	}
	return "", false
}

// StopUpdate describes one trailing-stop tightening.
type StopUpdate struct {
	Symbol  string
	OldStop float64
	NewStop float64
}

// UpdateTrailingStops ratchets stops upward for every open position with a
// known current price. A stop only ever tightens.
func (e *Engine) UpdateTrailingStops(prices map[string]float64) []StopUpdate {
	if !e.params.TrailingStopEnabled {
		return nil
	}

	e.mu.Lock()
	var updates []StopUpdate
	for symbol, pos := range e.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		newStop := price * (1 - e.params.TrailingStopDistance)
		if newStop > pos.StopLoss {
			updates = append(updates, StopUpdate{Symbol: symbol, OldStop: pos.StopLoss, NewStop: newStop})
			pos.StopLoss = newStop
			e.positions[symbol] = pos
		}
	}
	e.mu.Unlock()

	for _, u := range updates {
		e.logger.Info("trailing stop raised",
			slog.String("symbol", u.Symbol),
			slog.Float64("old_stop", u.OldStop),
			slog.Float64("new_stop", u.NewStop))
	}
	return updates
}

// Position returns the open position for a symbol.
func (e *Engine) Position(symbol string) (domain.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[symbol]
	return pos, ok
}

// OpenPositions returns a copy of all open positions.
func (e *Engine) OpenPositions() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, pos)
	}
	return out
}

// Summary derives the current account snapshot. prices supplies marks for
// unrealised P&L; symbols without a price contribute zero.
func (e *Engine) Summary(balance float64, prices map[string]float64) domain.AccountSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var unrealized, totalRisk float64
	for symbol, pos := range e.positions {
		if price, ok := prices[symbol]; ok {
			unrealized += pos.UnrealizedPnL(price)
		}
		totalRisk += pos.RiskAmount()
	}

	snap := domain.AccountSnapshot{
		Balance:       balance,
		Equity:        balance + unrealized,
		OpenPositions: len(e.positions),
		UnrealizedPnL: unrealized,
		DailyPnL:      e.dailyPnL,
		DailyTrades:   e.dailyTrades,
		TotalTrades:   len(e.history),
		WinRate:       e.winRate,
		AvgWin:        e.avgWin,
		AvgLoss:       e.avgLoss,
		TakenAt:       time.Now().UTC(),
	}
	if balance > 0 {
		snap.PortfolioRiskPct = totalRisk / balance
	}
	return snap
}

// updateStats recomputes win rate and average win/loss over the most
// recent trades. Caller holds the mutex.
func (e *Engine) updateStats() {
	recent := e.history
	if len(recent) > statsWindow {
		recent = recent[len(recent)-statsWindow:]
	}
	if len(recent) == 0 {
		return
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range recent {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else {
			losses++
			lossSum += t.PnL
		}
	}

	e.winRate = float64(wins) / float64(len(recent))
	if wins > 0 {
		e.avgWin = winSum / float64(wins)
	} else {
		e.avgWin = 0
	}
	if losses > 0 {
		e.avgLoss = lossSum / float64(losses)
	} else {
		e.avgLoss = 0
	}
}
