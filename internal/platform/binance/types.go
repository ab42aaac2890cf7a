package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// streamEnvelope wraps every message on the combined stream endpoint. Data
// stays raw until the stream suffix picks the payload type.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerMessage is the 24h rolling ticker payload.
type tickerMessage struct {
	EventType string `json:"e"` // "24hrTicker"
	EventTime int64  `json:"E"` // ms
	Symbol    string `json:"s"` // "BTCUSDT"
	LastPrice string `json:"c"`
	BestBid   string `json:"b"`
	BestAsk   string `json:"a"`
	Volume    string `json:"v"`
}

// toDomainTick converts a ticker message. The symbols map translates the
// exchange form back to the configured pair, e.g. "BTCUSDT" -> "BTC/USDT".
func (m *tickerMessage) toDomainTick(symbols map[string]string) (domain.Tick, bool) {
	pair, ok := symbols[m.Symbol]
	if !ok {
		return domain.Tick{}, false
	}
	price, err := strconv.ParseFloat(m.LastPrice, 64)
	if err != nil || price <= 0 {
		return domain.Tick{}, false
	}
	tick := domain.Tick{
		Symbol:    pair,
		Price:     price,
		Timestamp: time.UnixMilli(m.EventTime).UTC(),
		Source:    domain.TickSourceStream,
	}
	tick.Bid, _ = strconv.ParseFloat(m.BestBid, 64)
	tick.Ask, _ = strconv.ParseFloat(m.BestAsk, 64)
	tick.Volume, _ = strconv.ParseFloat(m.Volume, 64)
	return tick, true
}

// tradeMessage is one executed trade on the trade stream.
type tradeMessage struct {
	EventType string `json:"e"` // "trade"
	EventTime int64  `json:"E"` // ms
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// toDomainTick converts an executed trade into a tick. Trades carry no
// quote, so bid and ask stay zero.
func (m *tradeMessage) toDomainTick(symbols map[string]string) (domain.Tick, bool) {
	pair, ok := symbols[m.Symbol]
	if !ok {
		return domain.Tick{}, false
	}
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil || price <= 0 {
		return domain.Tick{}, false
	}
	tick := domain.Tick{
		Symbol:    pair,
		Price:     price,
		Timestamp: time.UnixMilli(m.EventTime).UTC(),
		Source:    domain.TickSourceStream,
	}
	tick.Volume, _ = strconv.ParseFloat(m.Quantity, 64)
	return tick, true
}

// subscribedChannels are the per-pair streams on the combined socket.
var subscribedChannels = []string{"ticker", "trade", "depth10"}

// streamName returns the combined-stream path segment for a pair and
// channel, e.g. "BTC/USDT", "ticker" -> "btcusdt@ticker".
func streamName(pair, channel string) string {
	return strings.ToLower(strings.ReplaceAll(pair, "/", "")) + "@" + channel
}

// exchangeSymbol returns the uppercase exchange form of a pair.
func exchangeSymbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}
