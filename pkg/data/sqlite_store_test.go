package data

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

var storeBase = time.Date(2015, 2, 14, 23, 57, 0, 0, time.UTC)

func storeCandle(minute int, price float64) types.Candle {
	start := storeBase.Add(time.Duration(minute) * time.Minute)
	return types.Candle{
		Start: start, End: start.Add(time.Minute),
		Open: price, High: price + 1, Low: price - 1, Close: price,
		Volume: 2, VWP: price, Trades: 3,
	}
}

func openTestStore(t *testing.T, version types.SchemaVersion) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "db", "candles.db"), TableName("USDT", "BTC"), version)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "candles_usdt_btc", TableName("USDT", "BTC"))
	assert.Equal(t, "candles_usd_btc_x", TableName("USD", "BTC-X"))
}

func TestOpenSQLiteStore_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenSQLiteStore("", "candles", types.SchemaV1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = OpenSQLiteStore(filepath.Join(dir, "a.db"), "candles; DROP", types.SchemaV1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = OpenSQLiteStore(filepath.Join(dir, "a.db"), "candles", types.SchemaVersion(3))
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	store, err := OpenSQLiteStore(filepath.Join(dir, "a.db"), "candles", 0)
	require.NoError(t, err)
	assert.Equal(t, types.SchemaV1, store.Version())
	require.NoError(t, store.Close())
}

func TestOpenSQLiteStore_RejectsOtherVersionTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.db")

	v1, err := OpenSQLiteStore(path, "candles_usdt_btc", types.SchemaV1)
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	_, err = OpenSQLiteStore(path, "candles_usdt_btc", types.SchemaV2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	assert.ErrorContains(t, err, "holds version 1")

	v2, err := OpenSQLiteStore(path, "candles_usdt_eth", types.SchemaV2)
	require.NoError(t, err)
	require.NoError(t, v2.Close())

	_, err = OpenSQLiteStore(path, "candles_usdt_eth", types.SchemaV1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	// reopening with the same version is fine
	again, err := OpenSQLiteStore(path, "candles_usdt_btc", types.SchemaV1)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestSQLiteStore_V1RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV1)

	in := []types.Candle{storeCandle(0, 257.19), storeCandle(1, 257.02), storeCandle(2, 256.98)}
	require.NoError(t, store.WriteCandles(ctx, in))

	out, err := store.Range(ctx, storeBase, storeBase.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.True(t, in[i].Start.Equal(out[i].Start))
		assert.True(t, in[i].End.Equal(out[i].End))
		assert.Equal(t, in[i].Close, out[i].Close)
		assert.Equal(t, in[i].VWP, out[i].VWP)
		assert.Equal(t, in[i].Trades, out[i].Trades)
		assert.Nil(t, out[i].OrderFlow)
	}
}

func TestSQLiteStore_V2RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV2)

	c := storeCandle(0, 100)
	c.OrderFlow = types.NewOrderFlow(4)
	c.BuyVolume = 1.25
	c.BuyTrades = 2
	c.Raw = []types.Trade{
		{ID: "1", Timestamp: storeBase.Add(5 * time.Second), Price: 100, Amount: 1},
		{ID: "2", Timestamp: storeBase.Add(9 * time.Second), Price: 101, Amount: 0.25},
	}
	synthetic := storeCandle(1, 100)
	synthetic.OrderFlow = types.NewOrderFlow(0)

	require.NoError(t, store.WriteCandles(ctx, []types.Candle{c, synthetic}))

	out, err := store.Range(ctx, storeBase, storeBase.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 2)

	got := out[0]
	require.NotNil(t, got.OrderFlow)
	assert.Equal(t, types.SchemaV2, got.Schema())
	assert.Equal(t, 1.25, got.BuyVolume)
	assert.Equal(t, 2, got.BuyTrades)
	assert.Equal(t, 4, got.Lag)
	require.Len(t, got.Raw, 2)
	assert.Equal(t, "2", got.Raw[1].ID)
	assert.True(t, got.Raw[1].Timestamp.Equal(c.Raw[1].Timestamp))

	require.NotNil(t, out[1].OrderFlow)
	assert.NotNil(t, out[1].Raw)
	assert.Empty(t, out[1].Raw)
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV1)

	require.NoError(t, store.WriteCandles(ctx, []types.Candle{storeCandle(0, 10), storeCandle(1, 11)}))
	require.NoError(t, store.WriteCandles(ctx, []types.Candle{storeCandle(1, 12), storeCandle(2, 13)}))
	require.NoError(t, store.WriteCandles(ctx, []types.Candle{storeCandle(1, 12)}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out, err := store.Range(ctx, storeBase.Add(time.Minute), storeBase.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 12.0, out[0].Close, "later delivery replaces the stored candle")
}

func TestSQLiteStore_RangeIsAscendingAndInclusive(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV1)

	// written out of order
	require.NoError(t, store.WriteCandles(ctx, []types.Candle{
		storeCandle(4, 5), storeCandle(0, 1), storeCandle(2, 3), storeCandle(1, 2), storeCandle(3, 4),
	}))

	out, err := store.Range(ctx, storeBase.Add(time.Minute), storeBase.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{out[0].Close, out[1].Close, out[2].Close})
}

func TestSQLiteStore_ReadRangeStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV1)
	require.NoError(t, store.WriteCandles(ctx, []types.Candle{storeCandle(0, 1), storeCandle(1, 2), storeCandle(2, 3)}))

	stop := errors.New("stop")
	seen := 0
	err := store.ReadRange(ctx, storeBase, storeBase.Add(time.Hour), func(types.Candle) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func TestSQLiteStore_Bounds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, types.SchemaV1)

	_, _, ok, err := store.Bounds(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.WriteCandles(ctx, []types.Candle{storeCandle(3, 1), storeCandle(7, 2)}))
	first, last, ok, err := store.Bounds(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Equal(storeBase.Add(3*time.Minute)))
	assert.True(t, last.Equal(storeBase.Add(7*time.Minute)))
}

func TestSQLiteStore_EmptyWriteIsNoop(t *testing.T) {
	store := openTestStore(t, types.SchemaV1)
	assert.NoError(t, store.WriteCandles(context.Background(), nil))
}
