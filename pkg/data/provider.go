package data

import (
	"io"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/candles"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// DataManager combines the file based data operations
type DataManager struct {
	csv     *CSVProvider
	cached  *CachedProvider
	locator FileLocator
}

// NewDataManager creates a new data manager with default components
func NewDataManager() *DataManager {
	csv := NewCSVProvider()
	return &DataManager{
		csv:     csv,
		cached:  NewCachedProvider(csv),
		locator: NewDefaultFileLocator(),
	}
}

// LoadCandles loads a candle CSV through the cache
func (dm *DataManager) LoadCandles(filename string) ([]types.Candle, error) {
	return dm.cached.LoadCandles(filename)
}

// LoadTrades loads a trade CSV sorted by timestamp
func (dm *DataManager) LoadTrades(filename string) ([]types.Trade, error) {
	trades, err := dm.csv.LoadTrades(filename)
	if err != nil {
		return nil, err
	}
	SortTrades(trades)
	return trades, nil
}

// FindDataFile locates data files
func (dm *DataManager) FindDataFile(dataRoot, exchange, symbol, name string) string {
	return dm.locator.FindDataFile(dataRoot, exchange, symbol, name)
}

// ConvertIntervalToMinutes converts interval to minutes
func (dm *DataManager) ConvertIntervalToMinutes(interval string) (int, error) {
	return dm.locator.ConvertIntervalToMinutes(interval)
}

// IsCSV reports whether source names a CSV file rather than a database
func IsCSV(source string) bool {
	return strings.EqualFold(filepath.Ext(source), ".csv")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenCandleReader opens source as a CandleReader. A .csv source is loaded
// and validated in memory, and missing minutes are filled with flat candles
// so the reader serves one candle per minute. Anything else is opened as a
// sqlite database holding table. The returned Closer releases the source.
func (dm *DataManager) OpenCandleReader(source, table string, version types.SchemaVersion) (CandleReader, io.Closer, error) {
	if IsCSV(source) {
		loaded, err := dm.LoadCandles(source)
		if err != nil {
			return nil, nil, err
		}
		loaded = RemoveDuplicates(loaded)
		if err := dm.csv.ValidateCandles(loaded); err != nil {
			return nil, nil, err
		}
		filled := candles.FillGaps(loaded)
		if n := len(filled) - len(loaded); n > 0 {
			log.Printf("⚠️ Filled %d missing minutes in %s", n, filepath.Base(source))
		}
		return NewCSVCandleReader(filled), nopCloser{}, nil
	}

	store, err := OpenSQLiteStore(source, table, version)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

// ParseTrailingPeriod parses period strings like "7d", "30d", "180d"
func ParseTrailingPeriod(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "days") {
		s = strings.TrimSuffix(s, "days") + "d"
	}
	if strings.HasSuffix(s, "d") {
		nStr := strings.TrimSuffix(s, "d")
		if nStr == "" {
			return 0, false
		}
		n, err := strconv.Atoi(nStr)
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 24 * time.Hour, true
	}
	// allow raw durations too (e.g., 168h)
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}

// DefaultDataManager provides a shared instance for the CLIs
var DefaultDataManager = NewDataManager()

// LoadCandles - global convenience function
func LoadCandles(filename string) ([]types.Candle, error) {
	return DefaultDataManager.LoadCandles(filename)
}

// LoadTrades - global convenience function
func LoadTrades(filename string) ([]types.Trade, error) {
	return DefaultDataManager.LoadTrades(filename)
}

// ConvertIntervalToMinutes - global convenience function
func ConvertIntervalToMinutes(interval string) (int, error) {
	return DefaultDataManager.ConvertIntervalToMinutes(interval)
}
