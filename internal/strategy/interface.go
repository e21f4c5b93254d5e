package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/internal/portfolio"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// Exchange is the order surface a strategy trades against
type Exchange interface {
	PlaceOrder(side types.OrderSide, kind types.OrderType, amount, price decimal.Decimal) (int64, error)
	CancelOrder(id int64) error
	OrderStatus(id int64) (types.OrderStatus, error)
	OpenOrders() []types.Order
	Balances() portfolio.Balances
	Fee() decimal.Decimal
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	// OnCandle is called once per (merged) candle after the exchange has
	// processed it. Orders placed here can fill from the next candle on.
	OnCandle(c types.Candle, ex Exchange) error

	// GetName returns the name of the strategy
	GetName() string
}

// Hold never trades. It gives the buy and hold baseline of a portfolio.
type Hold struct{}

func (Hold) OnCandle(types.Candle, Exchange) error { return nil }

func (Hold) GetName() string { return "Hold" }
