package strategy

import (
	"github.com/lmoura/cryptopilot/internal/domain"
)

// Strategy turns a candle window into a trading decision. Analyze returns
// domain.ErrInsufficientData when the window is shorter than the strategy's
// minimum lookback; callers treat that as a skipped cycle, not a failure.
type Strategy interface {
	Name() string
	Analyze(candles []domain.Candle) (domain.Signal, error)
}

// Params holds per-strategy tuning values from configuration.
type Params map[string]float64

// Get returns the parameter value or the given default.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}
