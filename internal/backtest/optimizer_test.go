package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/paper-exchange/internal/strategy"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

func TestSelectBest(t *testing.T) {
	results := []BacktestResult{
		{ID: "a", Index: 0, Results: &Results{TotalReturn: 0.1, MaxDrawdown: 0.3}},
		{ID: "b", Index: 1, Error: errors.New("failed")},
		{ID: "c", Index: 2, Results: &Results{TotalReturn: 0.1, MaxDrawdown: 0.2}},
		{ID: "d", Index: 3, Results: &Results{TotalReturn: 0.05}},
		{ID: "e", Index: 4, Results: &Results{TotalReturn: 0.1, MaxDrawdown: 0.2}},
	}

	best, ok := SelectBest(results)
	require.True(t, ok)
	assert.Equal(t, "c", best.ID, "equal return prefers the smaller drawdown, then the earlier job")
}

func TestSelectBest_NothingSucceeded(t *testing.T) {
	_, ok := SelectBest([]BacktestResult{{Error: errors.New("x")}})
	assert.False(t, ok)

	_, ok = SelectBest(nil)
	assert.False(t, ok)
}

func TestRunSweep(t *testing.T) {
	candles := []types.Candle{
		bar(0, 100, 100, 100, 100),
		bar(1, 100, 104, 96, 100),
		bar(2, 100, 104, 96, 100),
		bar(3, 100, 100, 100, 100),
	}
	reader := data.NewCSVCandleReader(candles)

	var jobs []BacktestJob
	for _, spread := range []float64{0.01, 0.02, 0.05} {
		band, err := strategy.NewBandStrategy(strategy.BandConfig{Spread: spread, OrderSize: d("0.1"), Every: 1})
		require.NoError(t, err)
		jobs = append(jobs, BacktestJob{
			Config:   runnerConfig(3),
			Engine:   EngineConfig{InitialAsset: d("1"), InitialCurrency: d("1000")},
			Strategy: band,
		})
	}
	// a broken job does not stop the sweep
	jobs = append(jobs, BacktestJob{
		Config:   runnerConfig(3),
		Engine:   EngineConfig{FeeRate: d("2")},
		Strategy: strategy.Hold{},
	})

	progress := NewProgressTracker(len(jobs))
	results := RunSweep(context.Background(), reader, jobs, 2, progress)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	for _, r := range results[:3] {
		require.NoError(t, r.Error)
		assert.Equal(t, 4, r.Results.Candles)
	}
	assert.Error(t, results[3].Error)
	assert.Equal(t, "BTCUSDT_0_Band 1.00%", results[0].ID)

	// the 5% band never reaches a 96-104 range
	assert.NotEmpty(t, results[0].Results.Trades)
	assert.NotEmpty(t, results[1].Results.Trades)
	assert.Empty(t, results[2].Results.Trades)

	completed, total, pct, _ := progress.GetProgress()
	assert.Equal(t, 4, completed)
	assert.Equal(t, 4, total)
	assert.Equal(t, 100.0, pct)

	// both crossing bands round trip twice; the wider one earns more per round
	best, ok := SelectBest(results)
	require.True(t, ok)
	assert.Equal(t, 1, best.Index)
}

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(0)
	_, _, pct, _ := pt.GetProgress()
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, int64(0), int64(pt.EstimateTimeRemaining()))
}
