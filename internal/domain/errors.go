package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConnectivity      = errors.New("exchange unreachable")
	ErrTimeout           = errors.New("request timed out")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrInsufficientData  = errors.New("insufficient market data")
	ErrFeedFailed        = errors.New("market data feed failed permanently")
	ErrRestartsExhausted = errors.New("restart budget exhausted")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrUnknownSymbol     = errors.New("unknown symbol")
)
