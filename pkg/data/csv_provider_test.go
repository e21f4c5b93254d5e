package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVProvider_LoadTrades(t *testing.T) {
	path := writeFile(t, "trades.csv", `id,timestamp,price,amount
1,1423958220,257.19,0.5
2,2015-02-14 23:57:30,257.18,0.47206065
3,not-a-time,257,1
4,1423958300,-1,1
5,1423958301,257.02,0
`)

	trades, err := NewCSVProvider().LoadTrades(path)
	require.NoError(t, err)
	require.Len(t, trades, 2, "bad rows are skipped")

	assert.Equal(t, "1", trades[0].ID)
	assert.True(t, trades[0].Timestamp.Equal(time.Date(2015, 2, 14, 23, 57, 0, 0, time.UTC)))
	assert.Equal(t, 257.19, trades[0].Price)
	assert.True(t, trades[1].Timestamp.Equal(time.Date(2015, 2, 14, 23, 57, 30, 0, time.UTC)))
	assert.Equal(t, 0.47206065, trades[1].Amount)
}

func TestCSVProvider_LoadCandlesKlines(t *testing.T) {
	path := writeFile(t, "klines.csv", `timestamp,open,high,low,close,volume
2015-02-14 23:57:00,10,12,9,11,3
2015-02-14 23:58:00,11,10,9,11,3
2015-02-14 23:59:00,11,11,11,11,0
`)

	candles, err := NewCSVProviderWithFormat(OHLCVCSVFormat).LoadCandles(path)
	require.NoError(t, err)
	require.Len(t, candles, 2, "high below open is skipped")

	assert.InDelta(t, (12.0+9+11)/3, candles[0].VWP, 1e-12)
	assert.Equal(t, 0.0, candles[1].VWP, "no volume means no vwp")
	assert.Nil(t, candles[0].OrderFlow)
	assert.True(t, candles[0].End.Equal(candles[0].Start.Add(time.Minute)))
}

func TestCSVProvider_WriteThenLoadKeepsOrderFlow(t *testing.T) {
	start := time.Date(2015, 2, 14, 23, 57, 0, 0, time.UTC)
	v1 := types.Candle{Start: start, End: start.Add(time.Minute), Open: 1, High: 2, Low: 1, Close: 2, Volume: 3, VWP: 1.5, Trades: 2}
	v2 := v1
	v2.Start, v2.End = start.Add(time.Minute), start.Add(2*time.Minute)
	v2.OrderFlow = types.NewOrderFlow(7)
	v2.BuyVolume = 1
	v2.BuyTrades = 1

	path := filepath.Join(t.TempDir(), "out", "candles.csv")
	require.NoError(t, WriteCandlesCSV(path, []types.Candle{v1, v2}))

	candles, err := NewCSVProvider().LoadCandles(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Nil(t, candles[0].OrderFlow)
	assert.Equal(t, 1.5, candles[0].VWP)
	assert.Equal(t, 2, candles[0].Trades)

	require.NotNil(t, candles[1].OrderFlow)
	assert.Equal(t, 1.0, candles[1].BuyVolume)
	assert.Equal(t, 7, candles[1].Lag)
}

func TestCSVProvider_MissingFile(t *testing.T) {
	_, err := NewCSVProvider().LoadCandles(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorCategoryData, appErr.Category)
}

func TestValidateCandles(t *testing.T) {
	p := NewCSVProvider()
	start := time.Date(2015, 2, 14, 23, 57, 0, 0, time.UTC)
	a := types.Candle{Start: start, High: 2, Low: 1}
	b := types.Candle{Start: start.Add(time.Minute), High: 2, Low: 1}

	assert.NoError(t, p.ValidateCandles([]types.Candle{a, b}))
	assert.ErrorIs(t, p.ValidateCandles(nil), apperrors.ErrValidation)
	assert.ErrorIs(t, p.ValidateCandles([]types.Candle{b, a}), apperrors.ErrValidation)
	assert.ErrorIs(t, p.ValidateCandles([]types.Candle{a, a}), apperrors.ErrValidation)

	bad := b
	bad.High = 0.5
	assert.ErrorIs(t, p.ValidateCandles([]types.Candle{a, bad}), apperrors.ErrValidation)
}

func TestFilters(t *testing.T) {
	candles := candleRun(10)

	in := FilterByDateRange(candles, storeBase.Add(2*time.Minute), storeBase.Add(4*time.Minute))
	require.Len(t, in, 3)
	assert.Equal(t, 102.0, in[0].Close)

	assert.Empty(t, FilterByDateRange(candles, storeBase.Add(time.Hour), storeBase.Add(2*time.Hour)))
	assert.Empty(t, FilterByDateRange(candles, storeBase.Add(time.Minute), storeBase))

	assert.Len(t, FilterByPeriod(candles, 3*time.Minute), 4)
	assert.Len(t, FilterByPeriod(candles, 0), 10)

	dup := append(candleRun(2), candleRun(3)...)
	assert.Len(t, RemoveDuplicates(dup), 3)
}

func TestSortAndSplitTrades(t *testing.T) {
	ts := storeBase
	trades := []types.Trade{
		{ID: "c", Timestamp: ts.Add(2 * time.Second)},
		{ID: "a", Timestamp: ts},
		{ID: "b", Timestamp: ts},
	}
	SortTrades(trades)
	assert.Equal(t, []string{"a", "b", "c"}, []string{trades[0].ID, trades[1].ID, trades[2].ID})

	batches := SplitTradeBatches(trades, 2)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Trades, 2)
	assert.Len(t, batches[1].Trades, 1)

	assert.Len(t, SplitTradeBatches(trades, 0), 1)
	assert.Empty(t, SplitTradeBatches(nil, 5))
}

func TestConvertIntervalToMinutes(t *testing.T) {
	locator := NewDefaultFileLocator()
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5", 5, false},
		{"5m", 5, false},
		{"1h", 60, false},
		{"4H", 240, false},
		{"1d", 1440, false},
		{"1w", 10080, false},
		{"0", 0, true},
		{"x", 0, true},
		{"5y", 0, true},
		{"-1m", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := locator.ConvertIntervalToMinutes(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindDataFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bybit", "linear", "BTCUSDT")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TradesFile), []byte("id\n"), 0o644))

	locator := NewDefaultFileLocator()
	assert.Equal(t, filepath.Join(dir, TradesFile), locator.FindDataFile(root, "bybit", "btcusdt", TradesFile))
	assert.Empty(t, locator.FindDataFile(root, "bybit", "btcusdt", CandlesFile))
}

func TestOpenCandleReader_CSV(t *testing.T) {
	path := writeFile(t, "candles.csv", `timestamp,open,high,low,close,volume,vwp,trades
2015-02-14 23:57:00,10,12,9,11,3,10.5,2
2015-02-14 23:58:00,11,12,10,12,1,11,1
2015-02-14 23:58:00,11,12,10,12,1,11,1
`)

	reader, closer, err := NewDataManager().OpenCandleReader(path, "", types.SchemaV1)
	require.NoError(t, err)
	defer closer.Close()

	var got []types.Candle
	require.NoError(t, reader.ReadRange(context.Background(), storeBase, storeBase.Add(time.Hour), func(c types.Candle) error {
		got = append(got, c)
		return nil
	}))
	assert.Len(t, got, 2, "duplicate start is dropped")
}

func TestOpenCandleReader_CSVFillsMissingMinutes(t *testing.T) {
	path := writeFile(t, "candles.csv", `timestamp,open,high,low,close,volume,vwp,trades
2015-02-14 23:57:00,10,12,9,11,3,10.5,2
2015-02-14 23:58:00,11,12,10,12,1,11,1
2015-02-15 00:30:00,12,13,11,13,2,12,1
2015-02-15 00:31:00,13,14,12,14,2,13,1
`)

	reader, closer, err := NewDataManager().OpenCandleReader(path, "", types.SchemaV1)
	require.NoError(t, err)
	defer closer.Close()

	var got []types.Candle
	require.NoError(t, reader.ReadRange(context.Background(), storeBase, storeBase.Add(time.Hour), func(c types.Candle) error {
		got = append(got, c)
		return nil
	}))
	require.Len(t, got, 35)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Start.Equal(got[i-1].Start.Add(time.Minute)), "gap before index %d", i)
	}

	synthetic := got[2]
	assert.True(t, synthetic.Start.Equal(storeBase.Add(2*time.Minute)))
	assert.Equal(t, 12.0, synthetic.Open)
	assert.Equal(t, 12.0, synthetic.Close)
	assert.Equal(t, 0.0, synthetic.Volume)
	assert.Equal(t, 0, synthetic.Trades)
	assert.Equal(t, 13.0, got[33].Close)
}

func TestCSVCandleReader_Bounds(t *testing.T) {
	_, _, ok, err := NewCSVCandleReader(nil).Bounds(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	reader := NewCSVCandleReader([]types.Candle{storeCandle(3, 1), storeCandle(7, 2)})
	first, last, ok, err := reader.Bounds(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Equal(storeBase.Add(3*time.Minute)))
	assert.True(t, last.Equal(storeBase.Add(7*time.Minute)))
}

func TestOpenCandleReader_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.db")
	reader, closer, err := NewDataManager().OpenCandleReader(path, TableName("usdt", "btc"), types.SchemaV1)
	require.NoError(t, err)
	defer closer.Close()

	_, ok := reader.(*SQLiteStore)
	assert.True(t, ok)
}

func TestParseTrailingPeriod(t *testing.T) {
	d, ok := ParseTrailingPeriod("7d")
	assert.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, d)

	d, ok = ParseTrailingPeriod("30days")
	assert.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)

	d, ok = ParseTrailingPeriod("168h")
	assert.True(t, ok)
	assert.Equal(t, 168*time.Hour, d)

	_, ok = ParseTrailingPeriod("abc")
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	c := storeCandle(0, 1)
	c.OrderFlow = types.NewOrderFlow(0)
	c.Raw = []types.Trade{{ID: "x"}}

	cache.Set("k", []types.Candle{c})
	c.Raw[0].ID = "changed"

	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "x", got[0].Raw[0].ID)
	assert.Equal(t, 1, cache.Size())

	cache.Clear()
	_, ok = cache.Get("k")
	assert.False(t, ok)
}
