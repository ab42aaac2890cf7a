package strategy

import (
	"fmt"
	"math"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// MeanReversion trades Bollinger band touches confirmed by RSI: buy when the
// price sits on the lower band while oversold, sell on the upper band while
// overbought or when the price has reverted to the middle band.
type MeanReversion struct {
	bbPeriod      int
	bbStd         float64
	rsiPeriod     int
	rsiOversold   float64
	rsiOverbought float64
}

// NewMeanReversion reads "bb_period" (20), "bb_std" (2), "rsi_period" (14),
// "rsi_oversold" (30) and "rsi_overbought" (70) from params.
func NewMeanReversion(params Params) *MeanReversion {
	return &MeanReversion{
		bbPeriod:      int(params.Get("bb_period", 20)),
		bbStd:         params.Get("bb_std", 2),
		rsiPeriod:     int(params.Get("rsi_period", 14)),
		rsiOversold:   params.Get("rsi_oversold", 30),
		rsiOverbought: params.Get("rsi_overbought", 70),
	}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Analyze(candles []domain.Candle) (domain.Signal, error) {
	need := s.bbPeriod
	if s.rsiPeriod+1 > need {
		need = s.rsiPeriod + 1
	}
	if len(candles) < need {
		return domain.Signal{}, fmt.Errorf("mean_reversion: need %d candles, have %d: %w", need, len(candles), domain.ErrInsufficientData)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	current := closes[len(closes)-1]

	middle := sma(closes, s.bbPeriod)
	band := stddev(closes, s.bbPeriod) * s.bbStd
	upper := middle + band
	lower := middle - band

	currentRSI := rsi(closes, s.rsiPeriod)
	if math.IsNaN(currentRSI) {
		currentRSI = 50
	}

	// 1% tolerance on band touches, 0.5% on reversion to the middle.
	touchingLower := current <= lower*1.01
	touchingUpper := current >= upper*0.99
	nearMiddle := math.Abs(current-middle)/middle < 0.005

	oversold := currentRSI < s.rsiOversold
	overbought := currentRSI > s.rsiOverbought

	sig := domain.Signal{
		Metadata: map[string]float64{
			"current_price": current,
			"bb_upper":      upper,
			"bb_middle":     middle,
			"bb_lower":      lower,
			"rsi":           currentRSI,
			"bb_width":      (upper - lower) / middle * 100,
		},
	}

	switch {
	case touchingLower && oversold:
		sig.ShouldBuy = true
		sig.Confidence = bandConfidence(touchingLower, oversold)
	case (touchingUpper && overbought) || nearMiddle:
		sig.ShouldSell = true
		sig.Confidence = bandConfidence(touchingUpper, overbought)
	}
	return sig, nil
}

// bandConfidence stacks a base confidence with the band and RSI confirmations.
func bandConfidence(bandTouch, rsiConfirm bool) float64 {
	conf := 0.5
	if bandTouch {
		conf += 0.3
	}
	if rsiConfirm {
		conf += 0.2
	}
	return math.Min(conf, 1)
}
