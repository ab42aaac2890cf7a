package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmoura/cryptopilot/internal/domain"
)

// BinanceGateway is the REST gateway for Binance spot trading.
// All requests are bounded by the configured timeout.
type BinanceGateway struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewBinanceGateway creates a gateway against the given API root,
// e.g. "https://api.binance.com" or the testnet root.
func NewBinanceGateway(baseURL, apiKey, apiSecret string, timeout time.Duration) *BinanceGateway {
	return &BinanceGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// MarketSymbol converts a pair like "BTC/USDT" to the exchange form "BTCUSDT".
func MarketSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

type balanceResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// GetBalance returns the free USDT balance.
func (b *BinanceGateway) GetBalance(ctx context.Context) (float64, error) {
	body, err := b.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("binance: get balance: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode balance: %w", err)
	}

	for _, bal := range resp.Balances {
		if bal.Asset == "USDT" {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("binance: parse balance %q: %w", bal.Free, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// FetchOHLCV returns closed klines for the symbol, oldest first.
func (b *BinanceGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	body, err := b.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: fetch ohlcv %s: %w", symbol, err)
	}

	// Each kline is a heterogeneous array:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance: decode ohlcv: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		c := domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: time.UnixMilli(openMs).UTC(),
		}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		ok := true
		for i, dst := range fields {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if ok {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

type tickerResponse struct {
	Symbol   string `json:"symbol"`
	Last     string `json:"lastPrice"`
	Bid      string `json:"bidPrice"`
	Ask      string `json:"askPrice"`
	Volume   string `json:"volume"`
	CloseTS  int64  `json:"closeTime"`
}

// FetchTicker returns the latest 24h ticker quote for the symbol.
func (b *BinanceGateway) FetchTicker(ctx context.Context, symbol string) (domain.Tick, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))

	body, err := b.doGet(ctx, "/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return domain.Tick{}, fmt.Errorf("binance: fetch ticker %s: %w", symbol, err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Tick{}, fmt.Errorf("binance: decode ticker: %w", err)
	}

	tick := domain.Tick{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(resp.CloseTS).UTC(),
		Source:    domain.TickSourcePoll,
	}
	if tick.Price, err = strconv.ParseFloat(resp.Last, 64); err != nil {
		return domain.Tick{}, fmt.Errorf("binance: parse last price %q: %w", resp.Last, err)
	}
	tick.Bid, _ = strconv.ParseFloat(resp.Bid, 64)
	tick.Ask, _ = strconv.ParseFloat(resp.Ask, 64)
	tick.Volume, _ = strconv.ParseFloat(resp.Volume, 64)
	return tick, nil
}

// CreateMarketBuy submits a market buy order.
func (b *BinanceGateway) CreateMarketBuy(ctx context.Context, symbol string, quantity float64) (domain.Order, error) {
	return b.createMarketOrder(ctx, symbol, domain.OrderSideBuy, quantity)
}

// CreateMarketSell submits a market sell order.
func (b *BinanceGateway) CreateMarketSell(ctx context.Context, symbol string, quantity float64) (domain.Order, error) {
	return b.createMarketOrder(ctx, symbol, domain.OrderSideSell, quantity)
}

type orderResponse struct {
	OrderID      int64  `json:"orderId"`
	Status       string `json:"status"`
	ExecutedQty  string `json:"executedQty"`
	CumQuoteQty  string `json:"cummulativeQuoteQty"`
	TransactTime int64  `json:"transactTime"`
}

func (b *BinanceGateway) createMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.Order, error) {
	if quantity <= 0 {
		return domain.Order{}, fmt.Errorf("binance: %w: quantity=%f", domain.ErrInvalidOrder, quantity)
	}

	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))

	body, err := b.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: create %s order %s: %w", side, symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("binance: decode order response: %w", err)
	}

	order := domain.Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if order.ID == "0" {
		order.ID = uuid.NewString()
	}

	if resp.Status == "FILLED" || resp.Status == "PARTIALLY_FILLED" {
		order.Status = domain.OrderStatusFilled
		order.FilledQty, _ = strconv.ParseFloat(resp.ExecutedQty, 64)
		quote, _ := strconv.ParseFloat(resp.CumQuoteQty, 64)
		if order.FilledQty > 0 {
			order.FilledPrice = quote / order.FilledQty
		}
		at := time.UnixMilli(resp.TransactTime).UTC()
		order.FilledAt = &at
	}
	return order, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (b *BinanceGateway) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return b.do(req)
}

// doSigned sends an authenticated request. Binance signs the query string
// with HMAC-SHA256 over the exact encoded parameter order.
func (b *BinanceGateway) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	payload := params.Encode()
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(payload))
	signed := payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+signed, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(req)
}

func (b *BinanceGateway) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", domain.ErrConnectivity, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// classifyTransportErr maps transport failures onto the domain sentinels so
// callers can distinguish a timed-out request from an unreachable venue.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
