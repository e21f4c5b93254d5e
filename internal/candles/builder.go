// Package candles turns raw trades into a contiguous one minute candle series
// and merges that series into larger intervals.
//
// The builder keeps the bucket of the most recent minute between calls: that
// candle is incomplete until a later trade closes it out, so it is never
// returned. Missing minutes are filled with zero volume candles carrying the
// previous close.
package candles

import (
	"sort"
	"time"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// Interval is the width of a base candle.
const Interval = time.Minute

// Builder buckets trades into one candle per minute.
// It is not safe for concurrent use.
type Builder struct {
	version types.SchemaVersion

	// start of the last candle handed back to the caller's carry-over
	threshold time.Time

	// minute (unix seconds) -> trades; holds only the incomplete bucket between calls
	buckets map[int64][]types.Trade
}

// NewBuilder creates a builder for the given candle schema version.
// A zero version defaults to version 1.
func NewBuilder(version types.SchemaVersion) *Builder {
	if version == 0 {
		version = types.SchemaV1
	}
	return &Builder{
		version: version,
		buckets: make(map[int64][]types.Trade),
	}
}

// Version returns the schema version of the candles the builder emits
func (b *Builder) Version() types.SchemaVersion {
	return b.version
}

// Threshold returns the start of the candle currently held back as incomplete
func (b *Builder) Threshold() time.Time {
	return b.threshold
}

// Write folds a batch of trades into the minute buckets and returns every
// finalized candle, gap filled and ordered by start. The most recent minute is
// withheld. An empty batch, or one whose trades were all seen before, is a no-op.
func (b *Builder) Write(batch types.TradeBatch) []types.Candle {
	if len(batch.Trades) == 0 {
		return nil
	}

	trades := b.filter(batch.Trades)
	if len(trades) == 0 {
		return nil
	}

	b.fillBuckets(trades)
	candles := b.calculateCandles(trades[len(trades)-1], batch.Lag)
	candles = FillGaps(candles)

	// the last candle is not complete
	last := candles[len(candles)-1]
	b.threshold = last.Start

	return candles[:len(candles)-1]
}

// filter drops trades at or before the start of the withheld candle
func (b *Builder) filter(trades []types.Trade) []types.Trade {
	out := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp.After(b.threshold) {
			out = append(out, t)
		}
	}
	return out
}

func (b *Builder) fillBuckets(trades []types.Trade) {
	for _, t := range trades {
		minute := minuteOf(t.Timestamp).Unix()
		b.buckets[minute] = append(b.buckets[minute], t)
	}
}

// calculateCandles converts each bucket into a candle and clears every bucket
// except the one holding lastTrade.
func (b *Builder) calculateCandles(lastTrade types.Trade, lag int) []types.Candle {
	lastMinute := minuteOf(lastTrade.Timestamp).Unix()

	minutes := make([]int64, 0, len(b.buckets))
	for m := range b.buckets {
		minutes = append(minutes, m)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })

	candles := make([]types.Candle, 0, len(minutes))
	for _, m := range minutes {
		candles = append(candles, calculateCandle(b.buckets[m], b.version, lag))
		if m != lastMinute {
			delete(b.buckets, m)
		}
	}
	return candles
}

// sideState is the buy/sell classifier state, scoped to a single bucket.
type sideState struct {
	lastPrice float64
	buy       bool
}

// classify tags a trade as a buy when its price is above the previous trade of
// the bucket, or equal to it while the previous trade was a buy.
func classify(st sideState, price float64) (bool, sideState) {
	buy := st.lastPrice < price || (st.lastPrice == price && st.buy)
	return buy, sideState{lastPrice: price, buy: buy}
}

// calculateCandle aggregates one non-empty bucket of trades in arrival order
func calculateCandle(trades []types.Trade, version types.SchemaVersion, lag int) types.Candle {
	first := trades[0]
	start := minuteOf(first.Timestamp)

	candle := types.Candle{
		Start:  start,
		End:    start.Add(Interval),
		Open:   first.Price,
		High:   first.Price,
		Low:    first.Price,
		Close:  trades[len(trades)-1].Price,
		Trades: len(trades),
	}

	if version == types.SchemaV2 {
		candle.OrderFlow = types.NewOrderFlow(lag)
		candle.OrderFlow.Raw = append([]types.Trade(nil), trades...)
	}

	var weighted float64
	st := sideState{}
	for _, t := range trades {
		if t.Price > candle.High {
			candle.High = t.Price
		}
		if t.Price < candle.Low {
			candle.Low = t.Price
		}
		candle.Volume += t.Amount
		weighted += t.Price * t.Amount

		if candle.OrderFlow != nil {
			var buy bool
			buy, st = classify(st, t.Price)
			if buy {
				candle.BuyVolume += t.Amount
				candle.BuyTrades++
			}
		}
	}

	candle.VWP = weightedAverage(weighted, candle.Volume)
	return candle
}

// weightedAverage returns sum/volume, or 0 when there is no volume
func weightedAverage(sum, volume float64) float64 {
	if volume == 0 {
		return 0
	}
	return sum / volume
}

func minuteOf(ts time.Time) time.Time {
	return ts.UTC().Truncate(Interval)
}
