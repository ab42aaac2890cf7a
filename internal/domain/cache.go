package domain

import "context"

// PriceCache mirrors the latest tick per symbol for out-of-process readers.
type PriceCache interface {
	SetTick(ctx context.Context, tick Tick) error
	GetTick(ctx context.Context, symbol string) (Tick, error)
}
