package candles

import (
	"fmt"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// Batcher merges every size consecutive base candles into one candle.
// A trailing group smaller than size is never emitted.
type Batcher struct {
	size    int
	version types.SchemaVersion
	buffer  []types.Candle
}

// NewBatcher creates a batcher. A zero version defaults to version 1.
func NewBatcher(size int, version types.SchemaVersion) (*Batcher, error) {
	if size <= 0 {
		return nil, apperrors.NewConfigurationError("batcher", "NewBatcher",
			fmt.Sprintf("candle size must be a positive integer, got %d", size))
	}
	if version == 0 {
		version = types.SchemaV1
	}
	if !version.Valid() {
		return nil, apperrors.NewConfigurationError("batcher", "NewBatcher",
			fmt.Sprintf("unknown candle version %d", version))
	}
	return &Batcher{
		size:    size,
		version: version,
		buffer:  make([]types.Candle, 0, size),
	}, nil
}

// Size returns the number of base candles per merged candle
func (b *Batcher) Size() int { return b.size }

// Version returns the schema version of merged candles
func (b *Batcher) Version() types.SchemaVersion { return b.version }

// Pending returns how many candles are buffered towards the next merge
func (b *Batcher) Pending() int { return len(b.buffer) }

// Write adds one base candle. It returns the merged candle and true when the
// candle completes a group.
func (b *Batcher) Write(c types.Candle) (types.Candle, bool) {
	b.buffer = append(b.buffer, c)
	if len(b.buffer) < b.size {
		return types.Candle{}, false
	}

	merged := b.merge(b.buffer)
	b.buffer = b.buffer[:0]
	return merged, true
}

// WriteAll writes candles in order and returns every merged candle they complete
func (b *Batcher) WriteAll(candles []types.Candle) []types.Candle {
	var out []types.Candle
	for _, c := range candles {
		if merged, ok := b.Write(c); ok {
			out = append(out, merged)
		}
	}
	return out
}

func (b *Batcher) merge(group []types.Candle) types.Candle {
	first := group[0]
	last := group[len(group)-1]

	merged := types.Candle{
		Start: first.Start,
		End:   last.End,
		Open:  first.Open,
		High:  first.High,
		Low:   first.Low,
		Close: last.Close,
	}

	if b.version == types.SchemaV2 {
		merged.OrderFlow = types.NewOrderFlow(0)
	}

	var weighted float64
	for i, c := range group {
		if c.High > merged.High {
			merged.High = c.High
		}
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		merged.Volume += c.Volume
		merged.Trades += c.Trades
		weighted += c.VWP * c.Volume

		if merged.OrderFlow == nil || c.OrderFlow == nil {
			continue
		}
		merged.BuyVolume += c.BuyVolume
		merged.BuyTrades += c.BuyTrades
		if i == 0 || c.Lag > merged.Lag {
			merged.Lag = c.Lag
		}
		merged.Raw = append(merged.Raw, c.Raw...)
	}

	merged.VWP = weightedAverage(weighted, merged.Volume)
	return merged
}
