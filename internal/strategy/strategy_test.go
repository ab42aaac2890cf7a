package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// mkCandles builds a candle window from closes, with highs/lows one unit
// either side and flat volume of 100.
func mkCandles(closes ...float64) []domain.Candle {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Symbol:    "BTC/USDT",
			Timeframe: "1m",
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestSimpleMomentum_BuyOnDrop(t *testing.T) {
	s := NewSimpleMomentum(nil)

	sig, err := s.Analyze(mkCandles(100, 98)) // -2% > 1% threshold
	require.NoError(t, err)
	assert.True(t, sig.ShouldBuy)
	assert.False(t, sig.ShouldSell)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.InDelta(t, -0.02, sig.Metadata["last_change"], 1e-9)
}

func TestSimpleMomentum_SellOnRise(t *testing.T) {
	s := NewSimpleMomentum(nil)

	sig, err := s.Analyze(mkCandles(100, 101)) // +1% > 0.5% threshold
	require.NoError(t, err)
	assert.True(t, sig.ShouldSell)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
}

func TestSimpleMomentum_HoldInsideThresholds(t *testing.T) {
	s := NewSimpleMomentum(nil)

	sig, err := s.Analyze(mkCandles(100, 100.2))
	require.NoError(t, err)
	assert.True(t, sig.Hold())
}

func TestSimpleMomentum_CustomThresholds(t *testing.T) {
	s := NewSimpleMomentum(Params{"drop_threshold": 0.05})

	sig, err := s.Analyze(mkCandles(100, 98))
	require.NoError(t, err)
	assert.False(t, sig.ShouldBuy)
}

func TestSimpleMomentum_InsufficientData(t *testing.T) {
	s := NewSimpleMomentum(nil)

	_, err := s.Analyze(mkCandles(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestMeanReversion_BuyOnLowerBandOversold(t *testing.T) {
	s := NewMeanReversion(Params{"bb_period": 5, "bb_std": 1, "rsi_period": 4})

	sig, err := s.Analyze(mkCandles(100, 100, 100, 100, 100, 100, 100, 100, 100, 85))
	require.NoError(t, err)
	assert.True(t, sig.ShouldBuy)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.Less(t, sig.Metadata["rsi"], 30.0)
}

func TestMeanReversion_SellOnUpperBandOverbought(t *testing.T) {
	s := NewMeanReversion(Params{"bb_period": 5, "bb_std": 1, "rsi_period": 4})

	sig, err := s.Analyze(mkCandles(100, 100, 100, 100, 100, 100, 100, 100, 100, 115))
	require.NoError(t, err)
	assert.True(t, sig.ShouldSell)
	assert.Greater(t, sig.Metadata["rsi"], 70.0)
}

func TestMeanReversion_SellOnReversionToMiddle(t *testing.T) {
	s := NewMeanReversion(Params{"bb_period": 5, "rsi_period": 4})

	// A flat market sits on the middle band; any open position exits.
	sig, err := s.Analyze(mkCandles(100, 100, 100, 100, 100, 100))
	require.NoError(t, err)
	assert.True(t, sig.ShouldSell)
}

func TestMeanReversion_InsufficientData(t *testing.T) {
	s := NewMeanReversion(nil) // needs 20

	_, err := s.Analyze(mkCandles(100, 101, 102))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func trendParams() Params {
	return Params{"fast_period": 3, "slow_period": 5, "adx_period": 2}
}

func TestTrendFollowing_BuyOnGoldenCross(t *testing.T) {
	s := NewTrendFollowing(trendParams())

	// Flat, then a slide, then a sharp reversal that crosses the fast
	// average over the slow one on the final bar.
	closes := make([]float64, 0, 25)
	for i := 0; i < 15; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 99, 98, 97, 96, 95, 94, 93, 92, 95, 103)

	candles := mkCandles(closes...)
	candles[len(candles)-1].Volume = 200 // breakout volume

	sig, err := s.Analyze(candles)
	require.NoError(t, err)
	assert.True(t, sig.ShouldBuy)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.Greater(t, sig.Metadata["sma_fast"], sig.Metadata["sma_slow"])
}

func TestTrendFollowing_SellOnWeakTrend(t *testing.T) {
	s := NewTrendFollowing(trendParams())

	// Dead flat: no crosses and ADX of zero, below the weak threshold.
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}

	sig, err := s.Analyze(mkCandles(closes...))
	require.NoError(t, err)
	assert.True(t, sig.ShouldSell)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9)
}

func TestTrendFollowing_InsufficientData(t *testing.T) {
	s := NewTrendFollowing(nil) // needs 201

	_, err := s.Analyze(mkCandles(100, 101, 102))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFactory_RespectsAssetClass(t *testing.T) {
	// Large caps do not run plain momentum.
	_, err := New("BTC/USDT", "simple_momentum", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)

	s, err := New("DOGE/USDT", "simple_momentum", nil)
	require.NoError(t, err)
	assert.Equal(t, "simple_momentum", s.Name())

	s, err = New("BTC/USDT", "trend_following", nil)
	require.NoError(t, err)
	assert.Equal(t, "trend_following", s.Name())
}

func TestFactory_UnknownStrategy(t *testing.T) {
	_, err := New("BTC/USDT", "astrology", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []string{"mean_reversion", "trend_following"}, Available(domain.AssetClassLargeCap))
	assert.Equal(t, []string{"mean_reversion", "simple_momentum", "trend_following"}, Available(domain.AssetClassMidCap))
}
