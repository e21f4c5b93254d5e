package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/portfolio"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const (
	engineComponent = "engine"

	// DefaultBuyVolumeRatio is the share of a version 1 candle's volume
	// treated as buy side liquidity, since those candles carry no split.
	DefaultBuyVolumeRatio = 0.5

	// amountPrecision is the number of decimals a clamped order amount keeps
	amountPrecision = 8
)

// EngineConfig holds the matching engine settings
type EngineConfig struct {
	FeeRate         decimal.Decimal
	InitialAsset    decimal.Decimal
	InitialCurrency decimal.Decimal

	// BuyVolumeRatio splits version 1 candle volume into buy and sell side.
	// Zero selects DefaultBuyVolumeRatio.
	BuyVolumeRatio float64
}

// Engine simulates order execution against a candle series. Orders cross
// when the candle range reaches their price and fill against the volume of
// the opposite side of the tape. It is not safe for concurrent use.
type Engine struct {
	feeRate        decimal.Decimal
	buyVolumeRatio decimal.Decimal

	ledger *portfolio.Ledger

	// every order ever placed, in insertion order
	orders []*types.Order
	byID   map[int64]*types.Order
	nextID int64

	lastCandle time.Time
}

// NewEngine validates cfg and creates an engine with its own ledger
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, apperrors.NewConfigurationError(engineComponent, "NewEngine",
			fmt.Sprintf("fee rate must be in [0, 1), got %s", cfg.FeeRate))
	}

	ratio := cfg.BuyVolumeRatio
	if ratio == 0 {
		ratio = DefaultBuyVolumeRatio
	}
	if ratio < 0 || ratio > 1 {
		return nil, apperrors.NewConfigurationError(engineComponent, "NewEngine",
			fmt.Sprintf("buy volume ratio must be in [0, 1], got %g", cfg.BuyVolumeRatio))
	}

	ledger, err := portfolio.NewLedger(cfg.InitialAsset, cfg.InitialCurrency)
	if err != nil {
		return nil, err
	}

	return &Engine{
		feeRate:        cfg.FeeRate,
		buyVolumeRatio: decimal.NewFromFloat(ratio),
		ledger:         ledger,
		byID:           make(map[int64]*types.Order),
		nextID:         1,
	}, nil
}

// Fee returns the fee rate charged on every fill
func (e *Engine) Fee() decimal.Decimal {
	return e.feeRate
}

// PlaceOrder reserves the funds an order may spend and adds it to the book.
// A short reserves amount of asset. A long reserves price x amount x (1+fee)
// of currency; when that is more than is available the amount is reduced to
// what the available currency can pay for.
func (e *Engine) PlaceOrder(side types.OrderSide, kind types.OrderType, amount, price decimal.Decimal) (int64, error) {
	if side != types.OrderSideLong && side != types.OrderSideShort {
		return 0, apperrors.NewValidationError(engineComponent, "PlaceOrder",
			fmt.Sprintf("invalid order side %q", side))
	}
	if kind != types.OrderTypeLimit && kind != types.OrderTypeMarket {
		return 0, apperrors.NewValidationError(engineComponent, "PlaceOrder",
			fmt.Sprintf("invalid order type %q", kind))
	}
	if !price.IsPositive() || !amount.IsPositive() {
		return 0, apperrors.NewValidationError(engineComponent, "PlaceOrder",
			fmt.Sprintf("price and amount must be positive (price=%s amount=%s)", price, amount))
	}

	switch side {
	case types.OrderSideShort:
		if err := e.ledger.Reserve(portfolio.ResourceAsset, amount); err != nil {
			return 0, err
		}
	case types.OrderSideLong:
		unitCost := price.Mul(decimal.NewFromInt(1).Add(e.feeRate))
		available := e.ledger.Available(portfolio.ResourceCurrency)
		if available.LessThan(unitCost.Mul(amount)) {
			amount = available.Div(unitCost).Truncate(amountPrecision)
		}
		if !amount.IsPositive() {
			return 0, apperrors.NewInsufficientFundsError(engineComponent, "PlaceOrder",
				fmt.Sprintf("available currency %s cannot buy any amount at %s", available, price))
		}
		if err := e.ledger.Reserve(portfolio.ResourceCurrency, unitCost.Mul(amount)); err != nil {
			return 0, err
		}
	}

	order := &types.Order{
		ID:        e.nextID,
		CreatedAt: e.lastCandle,
		Side:      side,
		Type:      kind,
		Price:     price,
		Amount:    amount,
		Filled:    decimal.Zero,
		Fee:       decimal.Zero,
		Status:    types.OrderStatusOpen,
	}
	e.nextID++
	e.orders = append(e.orders, order)
	e.byID[order.ID] = order

	return order.ID, nil
}

// CancelOrder cancels an open or partially filled order and releases what
// it still has reserved.
func (e *Engine) CancelOrder(id int64) error {
	order, ok := e.byID[id]
	if !ok || !order.Status.Active() {
		return apperrors.NewNotFoundError(engineComponent, "CancelOrder",
			fmt.Sprintf("no open order with id %d", id)).
			WithContext("order_id", id)
	}

	if err := e.ledger.Release(e.reservation(order)); err != nil {
		return err
	}
	order.Status = types.OrderStatusCanceled
	return nil
}

// OrderStatus returns the lifecycle state of an order
func (e *Engine) OrderStatus(id int64) (types.OrderStatus, error) {
	order, ok := e.byID[id]
	if !ok {
		return "", apperrors.NewNotFoundError(engineComponent, "OrderStatus",
			fmt.Sprintf("unknown order id %d", id))
	}
	return order.Status, nil
}

// Order returns a copy of an order
func (e *Engine) Order(id int64) (types.Order, error) {
	order, ok := e.byID[id]
	if !ok {
		return types.Order{}, apperrors.NewNotFoundError(engineComponent, "Order",
			fmt.Sprintf("unknown order id %d", id))
	}
	return *order, nil
}

// OpenOrders returns copies of every open or partially filled order in
// insertion order.
func (e *Engine) OpenOrders() []types.Order {
	var out []types.Order
	for _, o := range e.orders {
		if o.Status.Active() {
			out = append(out, *o)
		}
	}
	return out
}

// OnCandle runs one simulation tick and returns the fills it produced.
//
// A short crosses when its price is at or below the candle high and fills
// against buy side volume. A long crosses when its price is at or above the
// candle low and fills against sell side volume. Orders are visited in the
// order they were placed and share the tick's liquidity, so a later order
// can get less, or nothing, once earlier ones have consumed it.
func (e *Engine) OnCandle(c types.Candle) ([]types.FilledTrade, error) {
	e.lastCandle = c.Start

	volume := decimal.NewFromFloat(c.Volume)
	buySide := e.buyVolume(c, volume)
	sellSide := volume.Sub(buySide)
	if sellSide.IsNegative() {
		sellSide = decimal.Zero
	}

	high := decimal.NewFromFloat(c.High)
	low := decimal.NewFromFloat(c.Low)

	var fills []types.FilledTrade
	for _, order := range e.orders {
		if !order.Status.Active() {
			continue
		}

		var liquidity *decimal.Decimal
		switch order.Side {
		case types.OrderSideShort:
			if order.Price.GreaterThan(high) {
				continue
			}
			liquidity = &buySide
		case types.OrderSideLong:
			if order.Price.LessThan(low) {
				continue
			}
			liquidity = &sellSide
		}

		trade, ok, err := e.fill(order, liquidity, c.Start)
		if err != nil {
			return fills, err
		}
		if ok {
			fills = append(fills, trade)
		}
	}
	return fills, nil
}

// LastCandle returns the start of the most recent candle seen
func (e *Engine) LastCandle() time.Time {
	return e.lastCandle
}

// Balances returns the ledger snapshot
func (e *Engine) Balances() portfolio.Balances {
	return e.ledger.Balances()
}

// TradeHistory returns every fill in execution order
func (e *Engine) TradeHistory() []types.FilledTrade {
	return e.ledger.TradeHistory()
}

// Portfolio reports the balances under the asset and currency names
func (e *Engine) Portfolio(assetName, currencyName string) []types.Balance {
	return e.ledger.Portfolio(assetName, currencyName)
}

// buyVolume is the candle's buy side volume, or an estimate for version 1
func (e *Engine) buyVolume(c types.Candle, volume decimal.Decimal) decimal.Decimal {
	if c.OrderFlow != nil {
		return decimal.Min(decimal.NewFromFloat(c.BuyVolume), volume)
	}
	return volume.Mul(e.buyVolumeRatio)
}

// fill executes as much of order as liquidity allows and settles the ledger.
// A tick with no liquidity left leaves the order untouched.
func (e *Engine) fill(order *types.Order, liquidity *decimal.Decimal, at time.Time) (types.FilledTrade, bool, error) {
	if !liquidity.IsPositive() {
		return types.FilledTrade{}, false, nil
	}

	filled := order.Amount
	status := types.OrderStatusClosed
	if liquidity.LessThan(order.Amount) {
		filled = *liquidity
		status = types.OrderStatusPartial
	}

	cost := order.Price.Mul(filled)
	fee := cost.Mul(e.feeRate)

	trade := types.FilledTrade{
		OrderID: order.ID,
		Time:    at,
		Side:    order.Side,
		Type:    order.Type,
		Fee:     fee,
		Amount:  filled,
		Price:   order.Price,
		Status:  status,
	}

	settlement := portfolio.Settlement{Trade: trade}
	if order.Side == types.OrderSideShort {
		settlement.CurrencyAvailable = cost.Sub(fee)
		settlement.AssetReserved = filled.Neg()
	} else {
		settlement.AssetAvailable = filled
		settlement.CurrencyReserved = cost.Add(fee).Neg()
	}
	if err := e.ledger.Settle(settlement); err != nil {
		return types.FilledTrade{}, false, err
	}

	*liquidity = liquidity.Sub(filled)
	order.Amount = order.Amount.Sub(filled)
	order.Filled = order.Filled.Add(filled)
	order.Fee = order.Fee.Add(fee)
	order.Status = status

	return trade, true, nil
}

// reservation is what an active order still holds in the ledger
func (e *Engine) reservation(order *types.Order) (portfolio.Resource, decimal.Decimal) {
	if order.Side == types.OrderSideShort {
		return portfolio.ResourceAsset, order.Amount
	}
	unitCost := order.Price.Mul(decimal.NewFromInt(1).Add(e.feeRate))
	return portfolio.ResourceCurrency, unitCost.Mul(order.Amount)
}
