package strategy

import "math"

// closes extracts the close series from a candle window.
func sma(values []float64, period int) float64 {
	if len(values) < period {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

func stddev(values []float64, period int) float64 {
	if len(values) < period {
		return math.NaN()
	}
	mean := sma(values, period)
	var sum float64
	for _, v := range values[len(values)-period:] {
		d := v - mean
		sum += d * d
	}
	// Sample standard deviation over the window.
	return math.Sqrt(sum / float64(period-1))
}

// rsi computes the simple moving-average RSI over the last period deltas.
// Returns 50 when there is no movement either way.
func rsi(values []float64, period int) float64 {
	if len(values) < period+1 {
		return math.NaN()
	}
	var gain, loss float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	if gain == 0 && loss == 0 {
		return 50
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// adx computes a simplified average directional index from the trailing
// highs, lows and closes. All three slices share one length.
func adx(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < 2*period+1 {
		return math.NaN()
	}

	tr := make([]float64, n)
	dmPlus := make([]float64, n)
	dmMinus := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			dmPlus[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			dmMinus[i] = downMove
		}
	}

	dx := make([]float64, 0, n)
	for i := period; i < n; i++ {
		atr := sma(tr[:i+1], period)
		plus := sma(dmPlus[:i+1], period)
		minus := sma(dmMinus[:i+1], period)
		if atr == 0 || plus+minus == 0 {
			dx = append(dx, 0)
			continue
		}
		diPlus := 100 * plus / atr
		diMinus := 100 * minus / atr
		dx = append(dx, 100*math.Abs(diPlus-diMinus)/(diPlus+diMinus))
	}
	return sma(dx, period)
}
