package backtest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

var t0 = time.Date(2015, 2, 15, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T, asset, currency, fee string) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		FeeRate:         d(fee),
		InitialAsset:    d(asset),
		InitialCurrency: d(currency),
	})
	require.NoError(t, err)
	return e
}

// v2Candle builds a candle with an explicit buy side volume
func v2Candle(minute int, high, low, volume, buyVolume float64) types.Candle {
	start := t0.Add(time.Duration(minute) * time.Minute)
	c := types.Candle{
		Start: start, End: start.Add(time.Minute),
		Open: low, High: high, Low: low, Close: high,
		Volume: volume, VWP: (high + low) / 2, Trades: 1,
		OrderFlow: types.NewOrderFlow(0),
	}
	c.BuyVolume = buyVolume
	return c
}

func v1Candle(minute int, high, low, volume float64) types.Candle {
	c := v2Candle(minute, high, low, volume, 0)
	c.OrderFlow = nil
	return c
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  EngineConfig
	}{
		{"negative fee", EngineConfig{FeeRate: d("-0.001")}},
		{"fee of one", EngineConfig{FeeRate: d("1")}},
		{"ratio above one", EngineConfig{BuyVolumeRatio: 1.5}},
		{"negative ratio", EngineConfig{BuyVolumeRatio: -0.1}},
		{"negative asset", EngineConfig{InitialAsset: d("-1")}},
		{"negative currency", EngineConfig{InitialCurrency: d("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(tt.cfg)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
}

func TestEngine_Fee(t *testing.T) {
	e := newTestEngine(t, "0", "0", "0.0025")
	assert.True(t, e.Fee().Equal(d("0.0025")))
}

func TestEngine_PlaceOrderValidation(t *testing.T) {
	e := newTestEngine(t, "1", "100", "0")

	_, err := e.PlaceOrder("sideways", types.OrderTypeLimit, d("1"), d("1"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = e.PlaceOrder(types.OrderSideLong, "stop", d("1"), d("1"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("0"), d("1"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("-5"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Empty(t, e.OpenOrders())
}

func TestEngine_ShortRequiresAsset(t *testing.T) {
	e := newTestEngine(t, "0.5", "0", "0")

	_, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Empty(t, e.OpenOrders())
}

func TestEngine_ShortPartialFill(t *testing.T) {
	e := newTestEngine(t, "1", "0", "0")

	id, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	fills, err := e.OnCandle(v2Candle(0, 105, 99, 2, 0.5))
	require.NoError(t, err)
	require.Len(t, fills, 1)

	assert.True(t, fills[0].Amount.Equal(d("0.5")))
	assert.Equal(t, types.OrderStatusPartial, fills[0].Status)
	assert.Equal(t, t0, fills[0].Time)

	order, err := e.Order(id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPartial, order.Status)
	assert.True(t, order.Amount.Equal(d("0.5")))
	assert.True(t, order.Filled.Equal(d("0.5")))

	b := e.Balances()
	assert.True(t, b.CurrencyAvailable.Equal(d("50")))
	assert.True(t, b.AssetReserved.Equal(d("0.5")))
	assert.True(t, b.AssetAvailable.IsZero())
}

func TestEngine_ShortDoesNotCrossAboveHigh(t *testing.T) {
	e := newTestEngine(t, "1", "0", "0")

	id, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("106"))
	require.NoError(t, err)

	fills, err := e.OnCandle(v2Candle(0, 105, 99, 10, 10))
	require.NoError(t, err)
	assert.Empty(t, fills)

	status, err := e.OrderStatus(id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, status)
}

func TestEngine_LongFullFillWithFee(t *testing.T) {
	e := newTestEngine(t, "0", "1000", "0.001")

	id, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("2"), d("100"))
	require.NoError(t, err)

	b := e.Balances()
	assert.True(t, b.CurrencyReserved.Equal(d("200.2")))
	assert.True(t, b.CurrencyAvailable.Equal(d("799.8")))

	// price above low crosses; sell side is 3 - 1
	fills, err := e.OnCandle(v2Candle(0, 101, 95, 3, 1))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Fee.Equal(d("0.2")))
	assert.Equal(t, types.OrderStatusClosed, fills[0].Status)

	status, err := e.OrderStatus(id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusClosed, status)

	b = e.Balances()
	assert.True(t, b.AssetAvailable.Equal(d("2")))
	assert.True(t, b.CurrencyReserved.IsZero())
	assert.True(t, b.CurrencyAvailable.Equal(d("799.8")))
}

func TestEngine_LongDoesNotCrossBelowLow(t *testing.T) {
	e := newTestEngine(t, "0", "1000", "0")

	_, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("1"), d("94"))
	require.NoError(t, err)

	fills, err := e.OnCandle(v2Candle(0, 101, 95, 3, 0))
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func TestEngine_LongAmountIsClamped(t *testing.T) {
	tests := []struct {
		name     string
		fee      string
		expected string
	}{
		{"no fee", "0", "2"},
		{"with fee", "0.001", "1.99800199"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, "0", "100", tt.fee)

			id, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("5"), d("50"))
			require.NoError(t, err)

			order, err := e.Order(id)
			require.NoError(t, err)
			assert.True(t, order.Amount.Equal(d(tt.expected)), "got %s", order.Amount)

			b := e.Balances()
			assert.False(t, b.CurrencyAvailable.IsNegative())
			assert.True(t, b.Currency().Equal(d("100")))
		})
	}
}

func TestEngine_LongWithNoCurrency(t *testing.T) {
	e := newTestEngine(t, "0", "0", "0")

	_, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeMarket, d("1"), d("50"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

func TestEngine_LiquiditySharedInInsertionOrder(t *testing.T) {
	e := newTestEngine(t, "3", "0", "0")

	first, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)
	second, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)
	third, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)

	fills, err := e.OnCandle(v2Candle(0, 100, 99, 2, 1.5))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, first, fills[0].OrderID)
	assert.True(t, fills[0].Amount.Equal(d("1")))
	assert.Equal(t, second, fills[1].OrderID)
	assert.True(t, fills[1].Amount.Equal(d("0.5")))

	for id, want := range map[int64]types.OrderStatus{
		first:  types.OrderStatusClosed,
		second: types.OrderStatusPartial,
		third:  types.OrderStatusOpen,
	} {
		status, err := e.OrderStatus(id)
		require.NoError(t, err)
		assert.Equal(t, want, status, "order %d", id)
	}

	// the third order saw no liquidity and is unchanged
	order, err := e.Order(third)
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(d("1")))
	assert.True(t, order.Filled.IsZero())
}

func TestEngine_V1CandlesUseEstimatedSplit(t *testing.T) {
	e := newTestEngine(t, "3", "0", "0")

	_, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("3"), d("100"))
	require.NoError(t, err)

	fills, err := e.OnCandle(v1Candle(0, 101, 99, 4))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Amount.Equal(d("2")))

	custom, err := NewEngine(EngineConfig{InitialAsset: d("3"), BuyVolumeRatio: 0.25})
	require.NoError(t, err)
	_, err = custom.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("3"), d("100"))
	require.NoError(t, err)

	fills, err = custom.OnCandle(v1Candle(0, 101, 99, 4))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Amount.Equal(d("1")))
}

func TestEngine_StatusNeverReverses(t *testing.T) {
	e := newTestEngine(t, "1", "0", "0")

	id, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)

	var seen []types.OrderStatus
	for i, buy := range []float64{0.25, 0, 0.25, 1, 1} {
		_, err := e.OnCandle(v2Candle(i, 101, 99, 2, buy))
		require.NoError(t, err)
		status, err := e.OrderStatus(id)
		require.NoError(t, err)
		seen = append(seen, status)
	}

	assert.Equal(t, []types.OrderStatus{
		types.OrderStatusPartial,
		types.OrderStatusPartial,
		types.OrderStatusPartial,
		types.OrderStatusClosed,
		types.OrderStatusClosed,
	}, seen)
	assert.Len(t, e.TradeHistory(), 3)
}

func TestEngine_BalanceConservation(t *testing.T) {
	e := newTestEngine(t, "5", "10000", "0.00075")

	_, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1.3"), d("257.19"))
	require.NoError(t, err)
	_, err = e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("2.7"), d("256.81"))
	require.NoError(t, err)
	_, err = e.PlaceOrder(types.OrderSideShort, types.OrderTypeMarket, d("0.4"), d("256.5"))
	require.NoError(t, err)

	candles := []types.Candle{
		v2Candle(0, 257.2, 256.9, 1.2, 0.7),
		v2Candle(1, 257.5, 256.7, 4.1407478, 2.2),
		v1Candle(2, 257.3, 256.0, 6),
	}

	fillCount := 0
	for _, c := range candles {
		before := e.Balances()

		fills, err := e.OnCandle(c)
		require.NoError(t, err)
		fillCount += len(fills)

		after := e.Balances()
		deltaCurrency := after.Currency().Sub(before.Currency())
		deltaAsset := after.Asset().Sub(before.Asset())

		// signed from the account's point of view: longs add asset and spend currency
		notional := decimal.Zero
		amount := decimal.Zero
		fees := decimal.Zero
		for _, f := range fills {
			if f.Side == types.OrderSideShort {
				notional = notional.Sub(f.Cost())
				amount = amount.Sub(f.Amount)
			} else {
				notional = notional.Add(f.Cost())
				amount = amount.Add(f.Amount)
			}
			fees = fees.Add(f.Fee)
		}

		assert.True(t, deltaAsset.Equal(amount), "asset delta %s, filled %s", deltaAsset, amount)
		assert.True(t, deltaCurrency.Add(notional).Equal(fees.Neg()),
			"currency delta %s, notional %s, fees %s", deltaCurrency, notional, fees)

		assert.False(t, after.AssetAvailable.IsNegative())
		assert.False(t, after.AssetReserved.IsNegative())
		assert.False(t, after.CurrencyAvailable.IsNegative())
		assert.False(t, after.CurrencyReserved.IsNegative())
	}

	assert.Positive(t, fillCount)
	assert.Len(t, e.TradeHistory(), fillCount)
}

func TestEngine_SingleFillConservation(t *testing.T) {
	e := newTestEngine(t, "2", "1000", "0.002")

	_, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1.5"), d("120.5"))
	require.NoError(t, err)

	before := e.Balances()
	fills, err := e.OnCandle(v2Candle(0, 121, 119, 5, 0.9))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	after := e.Balances()

	f := fills[0]
	deltaCurrency := after.Currency().Sub(before.Currency())
	deltaAsset := after.Asset().Sub(before.Asset())

	assert.True(t, deltaAsset.Equal(f.Amount.Neg()))
	assert.True(t, deltaCurrency.Add(deltaAsset.Mul(f.Price)).Equal(f.Fee.Neg()))
}

func TestEngine_CancelReleasesReservation(t *testing.T) {
	e := newTestEngine(t, "1", "500", "0.001")

	long, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("2"), d("100"))
	require.NoError(t, err)
	short, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("120"))
	require.NoError(t, err)

	require.NoError(t, e.CancelOrder(long))
	require.NoError(t, e.CancelOrder(short))

	b := e.Balances()
	assert.True(t, b.CurrencyAvailable.Equal(d("500")))
	assert.True(t, b.CurrencyReserved.IsZero())
	assert.True(t, b.AssetAvailable.Equal(d("1")))
	assert.True(t, b.AssetReserved.IsZero())

	status, err := e.OrderStatus(long)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCanceled, status)
	assert.Empty(t, e.OpenOrders())
}

func TestEngine_CancelAfterPartialFill(t *testing.T) {
	e := newTestEngine(t, "0", "1000", "0.001")

	id, err := e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("2"), d("100"))
	require.NoError(t, err)

	fills, err := e.OnCandle(v2Candle(0, 101, 99, 1.5, 0.5))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Amount.Equal(d("1")))

	require.NoError(t, e.CancelOrder(id))

	b := e.Balances()
	assert.True(t, b.CurrencyReserved.IsZero())
	assert.True(t, b.AssetAvailable.Equal(d("1")))
	assert.True(t, b.CurrencyAvailable.Equal(d("899.9")))
}

func TestEngine_CancelUnknownOrTerminal(t *testing.T) {
	e := newTestEngine(t, "1", "0", "0")

	assert.ErrorIs(t, e.CancelOrder(42), apperrors.ErrNotFound)

	id, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
	require.NoError(t, err)
	require.NoError(t, e.CancelOrder(id))

	before := e.Balances()
	assert.ErrorIs(t, e.CancelOrder(id), apperrors.ErrNotFound)
	assert.Equal(t, before, e.Balances())

	_, err = e.OrderStatus(42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEngine_OrderStampedWithLastCandle(t *testing.T) {
	e := newTestEngine(t, "1", "0", "0")

	_, err := e.OnCandle(v2Candle(3, 101, 99, 0, 0))
	require.NoError(t, err)

	id, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("200"))
	require.NoError(t, err)

	order, err := e.Order(id)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Minute), order.CreatedAt)
	assert.Equal(t, t0.Add(3*time.Minute), e.LastCandle())
}

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	run := func() string {
		e := newTestEngine(t, "2", "1000", "0.001")
		_, err := e.PlaceOrder(types.OrderSideShort, types.OrderTypeLimit, d("1"), d("100"))
		require.NoError(t, err)
		_, err = e.PlaceOrder(types.OrderSideLong, types.OrderTypeLimit, d("1"), d("99"))
		require.NoError(t, err)

		for i, c := range []types.Candle{
			v2Candle(0, 100.5, 98.5, 1, 0.3),
			v1Candle(1, 101, 98, 2),
			v2Candle(2, 102, 97, 3, 3),
		} {
			_, err := e.OnCandle(c)
			require.NoError(t, err, "candle %d", i)
		}
		out, err := json.Marshal(e.TradeHistory())
		require.NoError(t, err)
		return string(out)
	}

	assert.JSONEq(t, run(), run())
}

func TestEngine_Portfolio(t *testing.T) {
	e := newTestEngine(t, "1", "100", "0")

	assert.Equal(t, []types.Balance{
		{Asset: "BTC", Free: 1},
		{Asset: "USD", Free: 100},
	}, e.Portfolio("BTC", "USD"))
}
