package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 4.0, sma(values, 3), 1e-9)
	assert.InDelta(t, 3.0, sma(values, 5), 1e-9)
	assert.True(t, math.IsNaN(sma(values, 6)))
}

func TestStddev(t *testing.T) {
	// Sample stddev of {2,4,4,4,5,5,7,9} around mean 5.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.138, stddev(values, 8), 1e-3)

	assert.True(t, math.IsNaN(stddev(values, 9)))

	flat := []float64{5, 5, 5, 5}
	assert.InDelta(t, 0.0, stddev(flat, 4), 1e-9)
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6}
	assert.InDelta(t, 100.0, rsi(up, 5), 1e-9)

	down := []float64{6, 5, 4, 3, 2, 1}
	assert.InDelta(t, 0.0, rsi(down, 5), 1e-9)

	flat := []float64{5, 5, 5, 5, 5, 5}
	assert.InDelta(t, 50.0, rsi(flat, 5), 1e-9)

	// Equal gains and losses balance out to 50.
	mixed := []float64{5, 6, 5, 6, 5, 6, 5}
	assert.InDelta(t, 50.0, rsi(mixed, 6), 1e-9)

	assert.True(t, math.IsNaN(rsi(up, 6)))
}

func TestADX_InsufficientData(t *testing.T) {
	highs := []float64{2, 3, 4}
	lows := []float64{1, 2, 3}
	closes := []float64{1.5, 2.5, 3.5}
	assert.True(t, math.IsNaN(adx(highs, lows, closes, 14)))
}

func TestADX_TrendingMarket(t *testing.T) {
	// A steady uptrend produces a strong directional reading.
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*2
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}

	v := adx(highs, lows, closes, 14)
	assert.False(t, math.IsNaN(v))
	assert.Greater(t, v, 25.0)
}
