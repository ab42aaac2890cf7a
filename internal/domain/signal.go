package domain

// Signal is the decision a strategy emits after analysing a candle window.
// At most one of ShouldBuy/ShouldSell is set; both false means hold.
type Signal struct {
	ShouldBuy  bool
	ShouldSell bool
	Confidence float64 // [0,1]

	// Optional absolute protective levels. Zero leaves the risk engine's
	// percentage-distance defaults in place.
	StopLoss   float64
	TakeProfit float64

	Metadata map[string]float64
}

// Hold reports whether the signal requests no action.
func (s Signal) Hold() bool { return !s.ShouldBuy && !s.ShouldSell }
