package binance

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickerMessageToDomainTick(t *testing.T) {
	raw := `{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1718000000000,"s":"BTCUSDT","c":"65000.50","b":"65000.10","a":"65000.90","v":"1234.5"}}`

	var env streamEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "btcusdt@ticker", env.Stream)

	var msg tickerMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))

	symbols := map[string]string{"BTCUSDT": "BTC/USDT"}
	tick, ok := msg.toDomainTick(symbols)
	require.True(t, ok)

	assert.Equal(t, "BTC/USDT", tick.Symbol)
	assert.Equal(t, 65000.50, tick.Price)
	assert.Equal(t, 65000.10, tick.Bid)
	assert.Equal(t, 65000.90, tick.Ask)
	assert.Equal(t, 1234.5, tick.Volume)
	assert.Equal(t, domain.TickSourceStream, tick.Source)
	assert.Equal(t, time.UnixMilli(1718000000000).UTC(), tick.Timestamp)
}

func TestTickerMessageRejectsUnknownAndBadPrices(t *testing.T) {
	symbols := map[string]string{"BTCUSDT": "BTC/USDT"}

	m := tickerMessage{Symbol: "DOGEUSDT", LastPrice: "0.1"}
	_, ok := m.toDomainTick(symbols)
	assert.False(t, ok, "unsubscribed symbol")

	m = tickerMessage{Symbol: "BTCUSDT", LastPrice: "not-a-number"}
	_, ok = m.toDomainTick(symbols)
	assert.False(t, ok)

	m = tickerMessage{Symbol: "BTCUSDT", LastPrice: "0"}
	_, ok = m.toDomainTick(symbols)
	assert.False(t, ok)
}

func TestTradeMessageToDomainTick(t *testing.T) {
	symbols := map[string]string{"BTCUSDT": "BTC/USDT"}

	m := tradeMessage{
		EventType: "trade",
		EventTime: 1718000000500,
		Symbol:    "BTCUSDT",
		Price:     "65001.25",
		Quantity:  "0.25",
	}
	tick, ok := m.toDomainTick(symbols)
	require.True(t, ok)

	assert.Equal(t, "BTC/USDT", tick.Symbol)
	assert.Equal(t, 65001.25, tick.Price)
	assert.Equal(t, 0.25, tick.Volume)
	assert.Zero(t, tick.Bid)
	assert.Zero(t, tick.Ask)
	assert.Equal(t, domain.TickSourceStream, tick.Source)
	assert.Equal(t, time.UnixMilli(1718000000500).UTC(), tick.Timestamp)

	m.Price = "-1"
	_, ok = m.toDomainTick(symbols)
	assert.False(t, ok)

	m.Symbol = "DOGEUSDT"
	_, ok = m.toDomainTick(symbols)
	assert.False(t, ok)
}

func TestStreamNaming(t *testing.T) {
	assert.Equal(t, "btcusdt@ticker", streamName("BTC/USDT", "ticker"))
	assert.Equal(t, "ethusdt@trade", streamName("ETH/USDT", "trade"))
	assert.Equal(t, "btcusdt@depth10", streamName("BTC/USDT", "depth10"))
	assert.Equal(t, "BTCUSDT", exchangeSymbol("BTC/USDT"))
}

func TestHandleMessageRoutesByChannel(t *testing.T) {
	c := NewStreamClient("wss://example", testLogger())
	symbols := map[string]string{"BTCUSDT": "BTC/USDT"}

	var ticks []domain.Tick
	onTick := func(tick domain.Tick) { ticks = append(ticks, tick) }

	ticker := `{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1718000000000,"s":"BTCUSDT","c":"65000.50","b":"65000.10","a":"65000.90","v":"1234.5"}}`
	trade := `{"stream":"btcusdt@trade","data":{"e":"trade","E":1718000000500,"s":"BTCUSDT","p":"65001.25","q":"0.25"}}`
	depth := `{"stream":"btcusdt@depth10","data":{"lastUpdateId":160,"bids":[["65000.10","2.5"]],"asks":[["65000.90","1.0"]]}}`

	c.handleMessage([]byte(ticker), symbols, onTick)
	c.handleMessage([]byte(trade), symbols, onTick)
	c.handleMessage([]byte(depth), symbols, onTick)
	c.handleMessage([]byte(`{not json`), symbols, onTick)
	c.handleMessage([]byte(`{"stream":"btcusdt@ticker","data":{"e":"wrong"}}`), symbols, onTick)

	require.Len(t, ticks, 2)
	assert.Equal(t, 65000.50, ticks[0].Price)
	assert.Equal(t, 65001.25, ticks[1].Price)
}
