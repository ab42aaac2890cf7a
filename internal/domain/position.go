package domain

import "time"

// Position represents an open trading position tracked by the risk engine.
type Position struct {
	ID         string
	Symbol     string
	Side       OrderSide
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Strategy   string
	OpenedAt   time.Time
}

// Value returns the notional value of the position at its entry price.
func (p Position) Value() float64 {
	return p.EntryPrice * p.Quantity
}

// RiskAmount returns the loss incurred if the stop is hit at exactly
// the stop price.
func (p Position) RiskAmount() float64 {
	risk := (p.EntryPrice - p.StopLoss) * p.Quantity
	if risk < 0 {
		return -risk
	}
	return risk
}

// UnrealizedPnL returns the mark-to-market profit at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == OrderSideSell {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonSignal     ExitReason = "signal"
	ExitReasonManual     ExitReason = "manual"
)

// TradeRecord is the immutable record of a completed round trip,
// appended on every exit and used for win-rate and Kelly statistics.
type TradeRecord struct {
	ID         string
	Symbol     string
	Side       OrderSide
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	PnLPct     float64
	Reason     ExitReason
	Strategy   string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// Win reports whether the round trip closed profitably.
func (r TradeRecord) Win() bool { return r.PnL > 0 }
