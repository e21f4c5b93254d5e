package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/portfolio"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

type placed struct {
	side  types.OrderSide
	price decimal.Decimal
}

// fakeExchange records calls; it never fills
type fakeExchange struct {
	balances portfolio.Balances
	orders   map[int64]*types.Order
	placed   []placed
	canceled []int64
	nextID   int64
	noFunds  bool
}

func newFakeExchange(asset string) *fakeExchange {
	return &fakeExchange{
		balances: portfolio.Balances{AssetAvailable: decimal.RequireFromString(asset)},
		orders:   make(map[int64]*types.Order),
		nextID:   1,
	}
}

func (f *fakeExchange) PlaceOrder(side types.OrderSide, kind types.OrderType, amount, price decimal.Decimal) (int64, error) {
	if f.noFunds && side == types.OrderSideLong {
		return 0, apperrors.NewInsufficientFundsError("fake", "PlaceOrder", "no currency")
	}
	id := f.nextID
	f.nextID++
	f.orders[id] = &types.Order{ID: id, Side: side, Type: kind, Amount: amount, Price: price, Status: types.OrderStatusOpen}
	f.placed = append(f.placed, placed{side: side, price: price})
	return id, nil
}

func (f *fakeExchange) CancelOrder(id int64) error {
	o, ok := f.orders[id]
	if !ok || !o.Status.Active() {
		return apperrors.NewNotFoundError("fake", "CancelOrder", "missing")
	}
	o.Status = types.OrderStatusCanceled
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeExchange) OrderStatus(id int64) (types.OrderStatus, error) {
	o, ok := f.orders[id]
	if !ok {
		return "", apperrors.NewNotFoundError("fake", "OrderStatus", "missing")
	}
	return o.Status, nil
}

func (f *fakeExchange) OpenOrders() []types.Order {
	var out []types.Order
	for _, o := range f.orders {
		if o.Status.Active() {
			out = append(out, *o)
		}
	}
	return out
}

func (f *fakeExchange) Balances() portfolio.Balances { return f.balances }

func (f *fakeExchange) Fee() decimal.Decimal { return decimal.Zero }

func candleAt(minute int, price float64) types.Candle {
	start := time.Date(2015, 2, 15, 0, minute, 0, 0, time.UTC)
	return types.Candle{Start: start, End: start.Add(time.Minute), Close: price}
}

func TestBandConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultBandConfig().Validate())

	bad := DefaultBandConfig()
	bad.Spread = 0
	assert.Error(t, bad.Validate())

	bad = DefaultBandConfig()
	bad.OrderSize = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = DefaultBandConfig()
	bad.Every = 0
	assert.Error(t, bad.Validate())

	_, err := NewBandStrategy(bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestBandStrategy_QuotesAroundClose(t *testing.T) {
	s, err := NewBandStrategy(BandConfig{Spread: 0.01, OrderSize: decimal.NewFromInt(1), Every: 1})
	require.NoError(t, err)
	ex := newFakeExchange("5")

	require.NoError(t, s.OnCandle(candleAt(0, 200), ex))

	require.Len(t, ex.placed, 2)
	assert.Equal(t, types.OrderSideLong, ex.placed[0].side)
	assert.True(t, ex.placed[0].price.Equal(decimal.NewFromInt(198)))
	assert.Equal(t, types.OrderSideShort, ex.placed[1].side)
	assert.True(t, ex.placed[1].price.Equal(decimal.NewFromInt(202)))
	assert.Equal(t, "Band 1.00%", s.GetName())
}

func TestBandStrategy_CancelsPreviousBand(t *testing.T) {
	s, err := NewBandStrategy(BandConfig{Spread: 0.01, OrderSize: decimal.NewFromInt(1), Every: 2})
	require.NoError(t, err)
	ex := newFakeExchange("5")

	require.NoError(t, s.OnCandle(candleAt(0, 100), ex))
	require.NoError(t, s.OnCandle(candleAt(1, 101), ex))
	assert.Len(t, ex.placed, 2, "second candle is not a re-quote")

	// one of the first band's orders completed meanwhile
	ex.orders[1].Status = types.OrderStatusClosed

	require.NoError(t, s.OnCandle(candleAt(2, 102), ex))
	assert.Equal(t, []int64{2}, ex.canceled)
	assert.Len(t, ex.placed, 4)
	assert.Len(t, ex.OpenOrders(), 2)

	placedCount, canceledCount, _ := s.Stats()
	assert.Equal(t, 4, placedCount)
	assert.Equal(t, 1, canceledCount)
}

func TestBandStrategy_SkipsWhatItCannotFund(t *testing.T) {
	s, err := NewBandStrategy(BandConfig{Spread: 0.01, OrderSize: decimal.NewFromInt(1), Every: 1})
	require.NoError(t, err)
	ex := newFakeExchange("0.5")
	ex.noFunds = true

	require.NoError(t, s.OnCandle(candleAt(0, 100), ex))
	assert.Empty(t, ex.placed)

	_, _, skipped := s.Stats()
	assert.Equal(t, 2, skipped)
}

func TestHold(t *testing.T) {
	ex := newFakeExchange("1")
	assert.NoError(t, Hold{}.OnCandle(candleAt(0, 1), ex))
	assert.Empty(t, ex.placed)
	assert.Equal(t, "Hold", Hold{}.GetName())
}

func TestBandStrategy_MovingAverageCenter(t *testing.T) {
	bad := BandConfig{Spread: 0.01, OrderSize: decimal.NewFromInt(1), Every: 1, Center: "rsi", Period: 3}
	_, err := NewBandStrategy(bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	s, err := NewBandStrategy(BandConfig{Spread: 0.01, OrderSize: decimal.NewFromInt(1), Every: 1, Center: "sma", Period: 2})
	require.NoError(t, err)
	assert.Equal(t, "Band 1.00% SMA(2)", s.GetName())
	ex := newFakeExchange("5")

	require.NoError(t, s.OnCandle(candleAt(0, 100), ex))
	assert.Empty(t, ex.placed, "no quote until the average is ready")

	require.NoError(t, s.OnCandle(candleAt(1, 300), ex))
	require.Len(t, ex.placed, 2)
	assert.True(t, ex.placed[0].price.Equal(decimal.NewFromInt(198)))
	assert.True(t, ex.placed[1].price.Equal(decimal.NewFromInt(202)))
}
