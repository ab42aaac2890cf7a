package domain

import "time"

// TickSource identifies which transport delivered a tick.
type TickSource string

const (
	TickSourceStream TickSource = "stream"
	TickSourcePoll   TickSource = "poll"
)

// Tick is a single last-price observation for one symbol.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
	Source    TickSource
}

// Spread returns the absolute bid/ask spread, zero when quotes are missing.
func (t Tick) Spread() float64 {
	if t.Bid <= 0 || t.Ask <= 0 {
		return 0
	}
	return t.Ask - t.Bid
}

// Candle is one OHLCV bar for a symbol at a given timeframe.
type Candle struct {
	Symbol    string
	Timeframe string // e.g. "1m", "1h"
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// AssetClass buckets symbols by market capitalisation tier. The strategy
// factory uses it to pick sensible defaults per bucket.
type AssetClass string

const (
	AssetClassLargeCap AssetClass = "large_cap"
	AssetClassMidCap   AssetClass = "mid_cap"
)

var largeCapBases = map[string]bool{
	"BTC": true, "ETH": true, "BNB": true, "SOL": true, "XRP": true,
}

// ClassifySymbol maps a trading pair like "BTC/USDT" to its asset class.
// Anything outside the large-cap set is treated as mid cap.
func ClassifySymbol(symbol string) AssetClass {
	base := symbol
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			base = symbol[:i]
			break
		}
	}
	if largeCapBases[base] {
		return AssetClassLargeCap
	}
	return AssetClassMidCap
}
