package domain

import "time"

// AccountSnapshot is derived on demand from the gateway balance and the
// risk engine state. It is never persisted as a unit.
type AccountSnapshot struct {
	Balance          float64
	Equity           float64
	OpenPositions    int
	UnrealizedPnL    float64
	DailyPnL         float64
	DailyTrades      int
	TotalTrades      int
	WinRate          float64
	AvgWin           float64
	AvgLoss          float64
	PortfolioRiskPct float64
	TakenAt          time.Time
}
