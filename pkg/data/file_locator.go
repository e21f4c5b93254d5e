package data

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Data file names under data/{exchange}/{category}/{symbol}/
const (
	TradesFile  = "trades.csv"
	CandlesFile = "candles.csv"
)

// DefaultFileLocator implements FileLocator for standard file system operations
type DefaultFileLocator struct{}

// NewDefaultFileLocator creates a new default file locator
func NewDefaultFileLocator() *DefaultFileLocator {
	return &DefaultFileLocator{}
}

// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minutes.
// A bare number is taken as minutes.
func (f *DefaultFileLocator) ConvertIntervalToMinutes(interval string) (int, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if n, err := strconv.Atoi(interval); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval must be positive, got: %s", interval)
		}
		return n, nil
	}

	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval: %q", interval)
	}

	numStr := interval[:len(interval)-1]
	unit := interval[len(interval)-1:]

	num, err := strconv.Atoi(numStr)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid interval: %q", interval)
	}

	switch unit {
	case "m":
		return num, nil
	case "h":
		return num * 60, nil
	case "d":
		return num * 24 * 60, nil
	case "w":
		return num * 7 * 24 * 60, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q in %q", unit, interval)
	}
}

// FindDataFile attempts to locate a data file of a symbol.
// Structure: data/{exchange}/{category}/{symbol}/{name}
// Returns empty string if no file is found
func (f *DefaultFileLocator) FindDataFile(dataRoot, exchange, symbol, name string) string {
	symbol = strings.ToUpper(symbol)

	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"spot", "linear", "inverse"}
	case "binance":
		categories = []string{"spot", "futures"}
	default:
		categories = []string{"spot", "futures", "linear", "inverse"}
	}

	var attemptedPaths []string
	for _, category := range categories {
		path := filepath.Join(dataRoot, exchange, category, symbol, name)
		attemptedPaths = append(attemptedPaths, path)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	log.Printf("⚠️ No %s found for %s %s in:", name, exchange, symbol)
	for _, path := range attemptedPaths {
		log.Printf("   - %s", path)
	}

	return ""
}
