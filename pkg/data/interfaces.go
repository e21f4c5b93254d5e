package data

import (
	"context"
	"time"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// CandleWriter persists finalized candles. Writing a candle whose start is
// already stored must replace it, not duplicate it.
type CandleWriter interface {
	WriteCandles(ctx context.Context, candles []types.Candle) error
}

// CandleReader supplies stored candles for a time range
type CandleReader interface {
	// ReadRange calls fn for every candle with from <= start <= to in
	// ascending start order, stopping at the first error fn returns
	ReadRange(ctx context.Context, from, to time.Time, fn func(types.Candle) error) error
}

// CandleCache caches candle files loaded from disk
type CandleCache interface {
	// Get retrieves candles from cache if available
	Get(key string) ([]types.Candle, bool)

	// Set stores candles in cache
	Set(key string, candles []types.Candle)

	// Clear removes all cached entries
	Clear()

	// Size returns the number of cached entries
	Size() int
}

// CSVColumnMapping defines the column positions of a candle CSV file.
// A negative position marks an optional column as absent.
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	VWPCol       int
	TradesCol    int
	BuyVolumeCol int
	BuyTradesCol int
	LagCol       int
	MinColumns   int
	DateFormat   string
}

// TradeColumnMapping defines the column positions of a trade CSV file
type TradeColumnMapping struct {
	IDCol        int
	TimestampCol int
	PriceCol     int
	AmountCol    int
	MinColumns   int
	DateFormat   string
}

// Predefined CSV formats
var (
	// OHLCVCSVFormat reads plain exchange klines (v1 candles without vwp)
	OHLCVCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		VWPCol:       -1,
		TradesCol:    -1,
		BuyVolumeCol: -1,
		BuyTradesCol: -1,
		LagCol:       -1,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
	}

	// DefaultCSVFormat is the format WriteCandlesCSV produces
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		VWPCol:       6,
		TradesCol:    7,
		BuyVolumeCol: 8,
		BuyTradesCol: 9,
		LagCol:       10,
		MinColumns:   8,
		DateFormat:   "2006-01-02 15:04:05",
	}

	// DefaultTradeFormat reads id,timestamp,price,amount
	DefaultTradeFormat = TradeColumnMapping{
		IDCol:        0,
		TimestampCol: 1,
		PriceCol:     2,
		AmountCol:    3,
		MinColumns:   4,
		DateFormat:   "2006-01-02 15:04:05",
	}
)

// FileLocator finds data files in the data directory tree
type FileLocator interface {
	// FindDataFile attempts to locate a trades or candles file for a symbol
	FindDataFile(dataRoot, exchange, symbol, name string) string

	// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minutes
	ConvertIntervalToMinutes(interval string) (int, error)
}
