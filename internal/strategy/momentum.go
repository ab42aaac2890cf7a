package strategy

import (
	"fmt"
	"math"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// SimpleMomentum buys sharp drops and sells sharp rises, measured bar over
// bar. It is the cheapest strategy and the default for unclassified pairs.
type SimpleMomentum struct {
	dropThreshold float64
	riseThreshold float64
}

// NewSimpleMomentum reads "drop_threshold" (default 0.01) and
// "rise_threshold" (default 0.005) from params.
func NewSimpleMomentum(params Params) *SimpleMomentum {
	return &SimpleMomentum{
		dropThreshold: params.Get("drop_threshold", 0.01),
		riseThreshold: params.Get("rise_threshold", 0.005),
	}
}

func (s *SimpleMomentum) Name() string { return "simple_momentum" }

func (s *SimpleMomentum) Analyze(candles []domain.Candle) (domain.Signal, error) {
	if len(candles) < 2 {
		return domain.Signal{}, fmt.Errorf("momentum: need 2 candles, have %d: %w", len(candles), domain.ErrInsufficientData)
	}

	current := candles[len(candles)-1].Close
	previous := candles[len(candles)-2].Close
	if previous <= 0 {
		return domain.Signal{}, fmt.Errorf("momentum: non-positive close %f: %w", previous, domain.ErrInsufficientData)
	}
	lastChange := (current - previous) / previous

	sig := domain.Signal{
		Metadata: map[string]float64{
			"current_price":  current,
			"last_change":    lastChange,
			"drop_threshold": s.dropThreshold,
			"rise_threshold": s.riseThreshold,
		},
	}

	switch {
	case lastChange < -s.dropThreshold:
		sig.ShouldBuy = true
		sig.Confidence = math.Min(1, math.Abs(lastChange)/s.dropThreshold/2)
	case lastChange > s.riseThreshold:
		sig.ShouldSell = true
		sig.Confidence = math.Min(1, lastChange/s.riseThreshold/2)
	}
	return sig, nil
}
