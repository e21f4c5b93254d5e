package candles

import (
	"time"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// FillGaps returns candles with a synthetic candle inserted for every minute
// between the first and the last start that has no candle. Synthetic candles
// have open, high, low, close and vwp equal to the previous close and zero
// volume. Input must be ordered by start.
func FillGaps(candles []types.Candle) []types.Candle {
	if len(candles) == 0 {
		return candles
	}

	out := make([]types.Candle, 0, expectedCandles(candles[0].Start, candles[len(candles)-1].Start))
	out = append(out, candles[0])

	for _, c := range candles[1:] {
		prev := out[len(out)-1]
		for next := prev.Start.Add(Interval); next.Before(c.Start); next = next.Add(Interval) {
			empty := emptyCandle(next, prev.Close, prev.Schema())
			out = append(out, empty)
			prev = empty
		}
		out = append(out, c)
	}

	return out
}

func emptyCandle(start time.Time, lastPrice float64, version types.SchemaVersion) types.Candle {
	c := types.Candle{
		Start: start,
		End:   start.Add(Interval),
		Open:  lastPrice,
		High:  lastPrice,
		Low:   lastPrice,
		Close: lastPrice,
		VWP:   lastPrice,
	}
	if version == types.SchemaV2 {
		c.OrderFlow = types.NewOrderFlow(0)
	}
	return c
}

// expectedCandles is the number of minute candles in [start, end]
func expectedCandles(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start)/Interval) + 1
}
