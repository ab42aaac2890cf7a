package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmoura/cryptopilot/internal/domain"
)

// DefaultSimBalance is the starting quote balance for simulated accounts.
const DefaultSimBalance = 10_000.0

// SimGateway is a full in-process substitute for the live venue. Prices
// follow an independent random walk per symbol and fills mutate the
// simulated balance, so the rest of the system runs unchanged.
type SimGateway struct {
	mu       sync.Mutex
	rng      *rand.Rand
	balance  float64
	prices   map[string]float64
	holdings map[string]float64
	vol      float64 // per-step relative volatility
}

// NewSimGateway seeds one random walk per symbol at the given start prices.
func NewSimGateway(startPrices map[string]float64, seed int64) *SimGateway {
	prices := make(map[string]float64, len(startPrices))
	for sym, p := range startPrices {
		prices[sym] = p
	}
	return &SimGateway{
		rng:      rand.New(rand.NewSource(seed)),
		balance:  DefaultSimBalance,
		prices:   prices,
		holdings: make(map[string]float64),
		vol:      0.002,
	}
}

func (s *SimGateway) GetBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *SimGateway) FetchTicker(ctx context.Context, symbol string) (domain.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.step(symbol)
	if err != nil {
		return domain.Tick{}, err
	}
	spread := price * 0.0004
	return domain.Tick{
		Symbol:    symbol,
		Price:     price,
		Bid:       price - spread/2,
		Ask:       price + spread/2,
		Volume:    100 + s.rng.Float64()*900,
		Timestamp: time.Now().UTC(),
		Source:    domain.TickSourcePoll,
	}, nil
}

// FetchOHLCV synthesises a candle history ending at the current price by
// walking the price backwards, so indicators see a consistent series.
func (s *SimGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("sim: invalid candle limit %d", limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.step(symbol)
	if err != nil {
		return nil, err
	}

	interval, err := timeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, limit)
	closes[limit-1] = price
	for i := limit - 2; i >= 0; i-- {
		closes[i] = closes[i+1] / (1 + s.rng.NormFloat64()*s.vol)
	}

	now := time.Now().UTC().Truncate(interval)
	candles := make([]domain.Candle, 0, limit)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi := math.Max(open, c) * (1 + s.rng.Float64()*s.vol)
		lo := math.Min(open, c) * (1 - s.rng.Float64()*s.vol)
		candles = append(candles, domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: now.Add(-time.Duration(limit-1-i) * interval),
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    100 + s.rng.Float64()*900,
		})
	}
	return candles, nil
}

func (s *SimGateway) CreateMarketBuy(ctx context.Context, symbol string, quantity float64) (domain.Order, error) {
	return s.fill(symbol, domain.OrderSideBuy, quantity)
}

func (s *SimGateway) CreateMarketSell(ctx context.Context, symbol string, quantity float64) (domain.Order, error) {
	return s.fill(symbol, domain.OrderSideSell, quantity)
}

func (s *SimGateway) fill(symbol string, side domain.OrderSide, quantity float64) (domain.Order, error) {
	if quantity <= 0 {
		return domain.Order{}, fmt.Errorf("sim: %w: quantity=%f", domain.ErrInvalidOrder, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.step(symbol)
	if err != nil {
		return domain.Order{}, err
	}

	cost := price * quantity
	switch side {
	case domain.OrderSideBuy:
		if cost > s.balance {
			return domain.Order{}, fmt.Errorf("sim: %w: cost=%.2f balance=%.2f", domain.ErrInvalidOrder, cost, s.balance)
		}
		s.balance -= cost
		s.holdings[symbol] += quantity
	case domain.OrderSideSell:
		if s.holdings[symbol] < quantity {
			return domain.Order{}, fmt.Errorf("sim: %w: selling %.8f, holding %.8f", domain.ErrInvalidOrder, quantity, s.holdings[symbol])
		}
		s.balance += cost
		s.holdings[symbol] -= quantity
	}

	now := time.Now().UTC()
	return domain.Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		FilledPrice: price,
		FilledQty:   quantity,
		Status:      domain.OrderStatusFilled,
		CreatedAt:   now,
		FilledAt:    &now,
	}, nil
}

// step advances the random walk for one symbol and returns the new price.
// Caller holds the mutex.
func (s *SimGateway) step(symbol string) (float64, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("sim: %w: %s", domain.ErrUnknownSymbol, symbol)
	}
	price *= 1 + s.rng.NormFloat64()*s.vol
	if price < 0.000001 {
		price = 0.000001
	}
	s.prices[symbol] = price
	return price, nil
}

func timeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("sim: unsupported timeframe %q", timeframe)
	}
}

var (
	_ Gateway = (*BinanceGateway)(nil)
	_ Gateway = (*SimGateway)(nil)
)
