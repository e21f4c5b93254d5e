package data

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// FilterByPeriod keeps the candles of the trailing period, measured from the last start
func FilterByPeriod(candles []types.Candle, period time.Duration) []types.Candle {
	if period <= 0 || len(candles) == 0 {
		return candles
	}

	cutoff := candles[len(candles)-1].Start.Add(-period)
	idx := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Start.Before(cutoff)
	})
	return candles[idx:]
}

// FilterByDateRange keeps candles with start <= c.Start <= end.
// Input must be sorted by start.
func FilterByDateRange(candles []types.Candle, start, end time.Time) []types.Candle {
	if len(candles) == 0 || end.Before(start) {
		return nil
	}

	lo := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Start.Before(start)
	})
	hi := sort.Search(len(candles), func(i int) bool {
		return candles[i].Start.After(end)
	})
	if lo >= hi {
		return nil
	}
	return candles[lo:hi]
}

// ValidateTimeSequence ensures candles are in strictly increasing start order
func ValidateTimeSequence(candles []types.Candle) error {
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Start, candles[i].Start
		if cur.Before(prev) {
			return apperrors.NewValidationError(csvComponent, "ValidateTimeSequence",
				fmt.Sprintf("data not in chronological order at index %d: %s comes after %s",
					i, cur.Format(time.RFC3339), prev.Format(time.RFC3339)))
		}
		if cur.Equal(prev) {
			return apperrors.NewValidationError(csvComponent, "ValidateTimeSequence",
				fmt.Sprintf("duplicate timestamp at index %d: %s", i, cur.Format(time.RFC3339)))
		}
	}
	return nil
}

// RemoveDuplicates removes duplicate starts, keeping the first occurrence
func RemoveDuplicates(candles []types.Candle) []types.Candle {
	if len(candles) <= 1 {
		return candles
	}

	filtered := make([]types.Candle, 0, len(candles))
	seen := make(map[int64]bool, len(candles))
	for _, c := range candles {
		key := c.Start.Unix()
		if !seen[key] {
			seen[key] = true
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// SortTrades orders trades by timestamp, keeping file order for equal timestamps
func SortTrades(trades []types.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}

// SplitTradeBatches cuts a trade stream into deliveries of at most size trades,
// the way an exchange poller hands them over
func SplitTradeBatches(trades []types.Trade, size int) []types.TradeBatch {
	if size <= 0 {
		size = len(trades)
	}
	var batches []types.TradeBatch
	for i := 0; i < len(trades); i += size {
		end := i + size
		if end > len(trades) {
			end = len(trades)
		}
		batches = append(batches, types.TradeBatch{Trades: trades[i:end]})
	}
	return batches
}
