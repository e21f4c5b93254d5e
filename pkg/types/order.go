package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideLong  OrderSide = "long"
	OrderSideShort OrderSide = "short"
)

// ParseOrderSide accepts long/short and their buy/sell aliases
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return OrderSideLong, nil
	case "short", "sell":
		return OrderSideShort, nil
	}
	return "", fmt.Errorf("invalid order side %q", s)
}

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// ParseOrderType accepts market or limit
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "market":
		return OrderTypeMarket, nil
	case "limit":
		return OrderTypeLimit, nil
	}
	return "", fmt.Errorf("invalid order type %q", s)
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusPartial  OrderStatus = "partial"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Active reports whether an order in this status can still fill
func (s OrderStatus) Active() bool {
	return s == OrderStatusOpen || s == OrderStatusPartial
}

// Order is a simulated resting order. Amount is the unfilled remainder.
type Order struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Side      OrderSide       `json:"side"`
	Type      OrderType       `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Filled    decimal.Decimal `json:"filled"`
	Fee       decimal.Decimal `json:"fee"`
	Status    OrderStatus     `json:"status"`
}

// FilledTrade is one execution recorded in the trade history
type FilledTrade struct {
	OrderID int64           `json:"orderId"`
	Time    time.Time       `json:"time"`
	Side    OrderSide       `json:"side"`
	Type    OrderType       `json:"type"`
	Fee     decimal.Decimal `json:"fee"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	Status  OrderStatus     `json:"status"`
}

// Cost returns price times amount, before fee
func (t FilledTrade) Cost() decimal.Decimal {
	return t.Price.Mul(t.Amount)
}
