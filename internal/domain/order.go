package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order represents a market order submitted to the exchange.
type Order struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Quantity    float64
	FilledPrice float64
	FilledQty   float64
	FeeUSD      float64
	Status      OrderStatus
	Strategy    string
	CreatedAt   time.Time
	FilledAt    *time.Time
}
