package candles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

func TestFillGaps_Empty(t *testing.T) {
	assert.Empty(t, FillGaps(nil))
}

func TestFillGaps_AlreadyContiguous(t *testing.T) {
	in := []types.Candle{
		{Start: at(0, 0), End: at(1, 0), Close: 1, Volume: 1},
		{Start: at(1, 0), End: at(2, 0), Close: 2, Volume: 1},
	}
	assert.Equal(t, in, FillGaps(in))
}

func TestFillGaps_CarriesPreviousClose(t *testing.T) {
	in := []types.Candle{
		{Start: at(0, 0), End: at(1, 0), Open: 1, High: 3, Low: 1, Close: 2, Volume: 5, VWP: 2, Trades: 3},
		{Start: at(4, 0), End: at(5, 0), Open: 9, High: 9, Low: 9, Close: 9, Volume: 1, VWP: 9, Trades: 1},
	}

	out := FillGaps(in)
	require.Len(t, out, 5)

	for i := 1; i < len(out); i++ {
		assert.Equal(t, Interval, out[i].Start.Sub(out[i-1].Start), "candle %d not contiguous", i)
	}
	for _, c := range out[1:4] {
		assert.Equal(t, types.Candle{
			Start: c.Start, End: c.Start.Add(time.Minute),
			Open: 2, High: 2, Low: 2, Close: 2, VWP: 2,
		}, c)
	}
	assert.Equal(t, in[1], out[4])
}

func TestFillGaps_KeepsSchemaVersion(t *testing.T) {
	first := types.Candle{Start: at(0, 0), End: at(1, 0), Close: 4, OrderFlow: types.NewOrderFlow(2)}
	second := types.Candle{Start: at(2, 0), End: at(3, 0), Close: 5, OrderFlow: types.NewOrderFlow(2)}

	out := FillGaps([]types.Candle{first, second})
	require.Len(t, out, 3)
	assert.Equal(t, types.SchemaV2, out[1].Schema())
	assert.Zero(t, out[1].Lag)
}

func TestExpectedCandles(t *testing.T) {
	assert.Equal(t, 1, expectedCandles(at(0, 0), at(0, 0)))
	assert.Equal(t, 10, expectedCandles(at(0, 0), at(9, 0)))
	assert.Equal(t, 0, expectedCandles(at(9, 0), at(0, 0)))
}
