package risk

import (
	"fmt"
	"math"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// RejectReason identifies which limit blocked a proposed trade.
type RejectReason string

const (
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
	ReasonMaxConcurrent       RejectReason = "max_concurrent_trades"
	ReasonTradeRisk           RejectReason = "trade_risk_exceeded"
	ReasonPortfolioRisk       RejectReason = "portfolio_risk_exceeded"
	ReasonDailyLoss           RejectReason = "daily_loss_reached"
)

// Rejection is returned by ValidateTrade when a proposed trade violates a
// limit. It carries the observed and allowed values for the binding check.
type Rejection struct {
	Reason  RejectReason
	Value   float64
	Limit   float64
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("trade rejected: %s: %s", r.Reason, r.Message)
}

// ValidateTrade checks a proposed entry against the risk limits, in order:
// balance headroom, concurrent position cap, per-trade risk, portfolio
// risk including the new position, and the daily loss limit. The first
// violated limit is returned; nil means approved. The check mutates
// nothing; an entry that will place an order must go through Reserve so
// approval and registration cannot be interleaved by another symbol.
func (e *Engine) ValidateTrade(balance, entry, stop, quantity float64) *Rejection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkLimits(balance, entry, stop, quantity)
}

// Reservation holds capacity for one approved entry while its order is in
// flight. The held risk counts toward the concurrent and portfolio limits
// until Confirm turns it into an open position or Release frees it. Both
// are idempotent.
type Reservation struct {
	engine *Engine
	symbol string
	risk   float64
	done   bool
}

// Reserve approves a proposed entry and holds its capacity in a single
// critical section. Two symbols that pass validation concurrently can never
// both proceed past a shared limit: the second sees the first's reservation
// and is rejected.
func (e *Engine) Reserve(symbol string, balance, entry, stop, quantity float64) (*Reservation, *Rejection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rej := e.checkLimits(balance, entry, stop, quantity); rej != nil {
		return nil, rej
	}
	risk := math.Abs(entry-stop) * quantity
	e.reserved[symbol] = risk
	return &Reservation{engine: e, symbol: symbol, risk: risk}, nil
}

// Confirm replaces the reservation with the filled position in one step, so
// the capacity is never momentarily unaccounted for.
func (r *Reservation) Confirm(pos domain.Position) {
	e := r.engine
	e.mu.Lock()
	if r.done {
		e.mu.Unlock()
		return
	}
	r.done = true
	delete(e.reserved, r.symbol)
	e.positions[pos.Symbol] = pos
	e.dailyTrades++
	e.mu.Unlock()

	e.logEntry(pos)
}

// Release frees the held capacity without opening a position. Called when
// the order fails or is abandoned.
func (r *Reservation) Release() {
	e := r.engine
	e.mu.Lock()
	if !r.done {
		r.done = true
		delete(e.reserved, r.symbol)
	}
	e.mu.Unlock()
}

// checkLimits runs the ordered limit checks. In-flight reservations count
// as open positions. Caller holds the mutex.
func (e *Engine) checkLimits(balance, entry, stop, quantity float64) *Rejection {
	// 1. Balance headroom, keeping a 5% reserve for fees.
	positionValue := quantity * entry
	if positionValue > balance*0.95 {
		return &Rejection{
			Reason:  ReasonInsufficientBalance,
			Value:   positionValue,
			Limit:   balance * 0.95,
			Message: fmt.Sprintf("position value %.2f exceeds available %.2f", positionValue, balance*0.95),
		}
	}

	// 2. Concurrent position cap.
	open := len(e.positions) + len(e.reserved)
	if open >= e.params.MaxConcurrentTrades {
		return &Rejection{
			Reason:  ReasonMaxConcurrent,
			Value:   float64(open),
			Limit:   float64(e.params.MaxConcurrentTrades),
			Message: fmt.Sprintf("%d positions already open or pending", open),
		}
	}

	// 3. Per-trade risk.
	riskAmount := math.Abs(entry-stop) * quantity
	riskPct := riskAmount / balance
	if riskPct > e.params.MaxRiskPerTrade {
		return &Rejection{
			Reason:  ReasonTradeRisk,
			Value:   riskPct,
			Limit:   e.params.MaxRiskPerTrade,
			Message: fmt.Sprintf("trade risk %.2f%% exceeds %.2f%%", riskPct*100, e.params.MaxRiskPerTrade*100),
		}
	}

	// 4. Portfolio risk with the new position included.
	var openRisk float64
	for _, pos := range e.positions {
		openRisk += pos.RiskAmount()
	}
	for _, held := range e.reserved {
		openRisk += held
	}
	totalRiskPct := (openRisk + riskAmount) / balance
	if totalRiskPct > e.params.MaxPortfolioRisk {
		return &Rejection{
			Reason:  ReasonPortfolioRisk,
			Value:   totalRiskPct,
			Limit:   e.params.MaxPortfolioRisk,
			Message: fmt.Sprintf("portfolio risk would reach %.2f%%, limit %.2f%%", totalRiskPct*100, e.params.MaxPortfolioRisk*100),
		}
	}

	// 5. Daily loss limit against the session opening balance.
	if e.dailyPnL < 0 && e.sessionStart > 0 {
		lossPct := -e.dailyPnL / e.sessionStart
		if lossPct >= e.params.MaxDailyLoss {
			return &Rejection{
				Reason:  ReasonDailyLoss,
				Value:   lossPct,
				Limit:   e.params.MaxDailyLoss,
				Message: fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", lossPct*100, e.params.MaxDailyLoss*100),
			}
		}
	}

	return nil
}
