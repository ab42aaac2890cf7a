package exchange

import (
	"context"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// Gateway is the sole boundary to the trading venue. Implementations are
// chosen once at construction; callers never branch on live versus
// simulated mode.
type Gateway interface {
	// GetBalance returns the free quote-currency balance in USD terms.
	GetBalance(ctx context.Context) (float64, error)

	// FetchOHLCV returns up to limit closed candles for the symbol at the
	// given timeframe, oldest first.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)

	// FetchTicker returns the latest quote for the symbol.
	FetchTicker(ctx context.Context, symbol string) (domain.Tick, error)

	// CreateMarketBuy submits a market buy for quantity base units.
	CreateMarketBuy(ctx context.Context, symbol string, quantity float64) (domain.Order, error)

	// CreateMarketSell submits a market sell for quantity base units.
	CreateMarketSell(ctx context.Context, symbol string, quantity float64) (domain.Order, error)
}
