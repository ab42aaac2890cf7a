package strategy

import (
	"fmt"
	"math"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// TrendFollowing enters on golden crosses of the 50/200 moving averages
// confirmed by trend strength and volume, and exits on death crosses or a
// fading trend.
type TrendFollowing struct {
	fastPeriod   int
	slowPeriod   int
	adxPeriod    int
	adxStrong    float64
	adxWeak      float64
	volumeFactor float64
}

// NewTrendFollowing reads "fast_period" (50), "slow_period" (200),
// "adx_period" (14), "adx_strong" (25), "adx_weak" (20) and
// "volume_factor" (1.2) from params.
func NewTrendFollowing(params Params) *TrendFollowing {
	return &TrendFollowing{
		fastPeriod:   int(params.Get("fast_period", 50)),
		slowPeriod:   int(params.Get("slow_period", 200)),
		adxPeriod:    int(params.Get("adx_period", 14)),
		adxStrong:    params.Get("adx_strong", 25),
		adxWeak:      params.Get("adx_weak", 20),
		volumeFactor: params.Get("volume_factor", 1.2),
	}
}

func (s *TrendFollowing) Name() string { return "trend_following" }

func (s *TrendFollowing) Analyze(candles []domain.Candle) (domain.Signal, error) {
	need := s.slowPeriod + 1
	if len(candles) < need {
		return domain.Signal{}, fmt.Errorf("trend_following: need %d candles, have %d: %w", need, len(candles), domain.ErrInsufficientData)
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	fast := sma(closes, s.fastPeriod)
	slow := sma(closes, s.slowPeriod)
	prevFast := sma(closes[:n-1], s.fastPeriod)
	prevSlow := sma(closes[:n-1], s.slowPeriod)

	goldenCross := fast > slow && prevFast <= prevSlow
	deathCross := fast < slow && prevFast >= prevSlow

	currentADX := adx(highs, lows, closes, s.adxPeriod)
	if math.IsNaN(currentADX) {
		currentADX = 0
	}
	strongTrend := currentADX > s.adxStrong

	avgVolume := sma(volumes, 20)
	highVolume := volumes[n-1] > avgVolume*s.volumeFactor

	sig := domain.Signal{
		Metadata: map[string]float64{
			"current_price": closes[n-1],
			"sma_fast":      fast,
			"sma_slow":      slow,
			"adx":           currentADX,
			"volume":        volumes[n-1],
			"volume_avg":    avgVolume,
		},
	}

	switch {
	case goldenCross && strongTrend && highVolume:
		sig.ShouldBuy = true
		sig.Confidence = math.Min(math.Abs(fast-slow)/slow*50, 1)
	case deathCross || currentADX < s.adxWeak:
		sig.ShouldSell = true
		sig.Confidence = 0.5
		if deathCross {
			sig.Confidence = 0.8
		}
	}
	return sig, nil
}
