package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
	"github.com/ducminhle1904/paper-exchange/internal/config"
	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/strategy"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/validation"
)

const (
	strategyBand = "band"
	strategyHold = "hold"
)

var strategyChoices = []string{strategyBand, strategyHold}

// newStrategy builds the named strategy; band parameters are ignored by hold
func newStrategy(name string, band strategy.BandConfig) (strategy.Strategy, error) {
	switch strings.ToLower(name) {
	case strategyBand:
		return strategy.NewBandStrategy(band)
	case strategyHold:
		return strategy.Hold{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// openSource opens a candle CSV, or the configured database when source is empty
func openSource(cfg *config.Config, source string) (data.CandleReader, func() error, error) {
	if source == "" {
		source = cfg.DBPath
	}
	reader, closer, err := data.DefaultDataManager.OpenCandleReader(source, cfg.TableName(), cfg.CandleVersion)
	if err != nil {
		return nil, nil, err
	}
	return reader, closer.Close, nil
}

// runSingle replays the configured range once with strat
func runSingle(ctx context.Context, cfg *config.Config, reader data.CandleReader, strat strategy.Strategy, log *logger.Logger) (*backtest.Results, error) {
	engine, err := backtest.NewEngine(cfg.EngineConfig())
	if err != nil {
		return nil, err
	}
	runner, err := backtest.NewRunner(cfg.RunnerConfig(), engine, strat, reader, log)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

// sweepJobs creates one band job per spread, given in percent
func sweepJobs(cfg *config.Config, band strategy.BandConfig, spreads []float64) ([]backtest.BacktestJob, error) {
	jobs := make([]backtest.BacktestJob, 0, len(spreads))
	for _, pct := range spreads {
		params := band
		params.Spread = pct / 100
		strat, err := strategy.NewBandStrategy(params)
		if err != nil {
			return nil, fmt.Errorf("spread %g%%: %w", pct, err)
		}
		jobs = append(jobs, backtest.BacktestJob{
			ID:       fmt.Sprintf("band_%g", pct),
			Config:   cfg.RunnerConfig(),
			Engine:   cfg.EngineConfig(),
			Strategy: strat,
		})
	}
	return jobs, nil
}

// runSweep runs the jobs on workers goroutines and picks the best run
func runSweep(ctx context.Context, reader data.CandleReader, jobs []backtest.BacktestJob, workers int) ([]backtest.BacktestResult, *backtest.OptimizationResult) {
	progress := backtest.NewProgressTracker(len(jobs))
	results := backtest.RunSweep(ctx, reader, jobs, workers, progress)

	best, ok := backtest.SelectBest(results)
	if !ok {
		return results, nil
	}
	return results, &best
}

// rangeReader is implemented by stores that know which candles they hold
type rangeReader interface {
	Bounds(ctx context.Context) (first, last time.Time, ok bool, err error)
}

// fillRange defaults an unset start or end to the bounds of the stored candles
func fillRange(ctx context.Context, cfg *config.Config, reader data.CandleReader) error {
	if !cfg.Start.IsZero() && !cfg.End.IsZero() {
		return nil
	}
	store, ok := reader.(rangeReader)
	if !ok {
		return nil
	}
	first, last, ok, err := store.Bounds(ctx)
	if err != nil || !ok {
		return err
	}
	if cfg.Start.IsZero() {
		cfg.Start = first
	}
	if cfg.End.IsZero() {
		cfg.End = last
	}
	return nil
}

// resultAt returns the sweep result of the job with index
func resultAt(results []backtest.BacktestResult, index int) *backtest.Results {
	for _, r := range results {
		if r.Index == index {
			return r.Results
		}
	}
	return nil
}

// withWindow copies cfg with its range replaced by w
func withWindow(cfg *config.Config, w validation.Window) *config.Config {
	windowed := *cfg
	windowed.Start, windowed.End = w.Start, w.End
	return &windowed
}

// walkForward sweeps the spreads on every train window and replays the
// winning spread on the test window that follows it
func walkForward(ctx context.Context, cfg *config.Config, reader data.CandleReader, band strategy.BandConfig, spreads []float64, workers int, wf validation.WalkForwardConfig, out io.Writer) (*validation.WalkForwardSummary, error) {
	optimizer := func(ctx context.Context, w validation.Window) (*backtest.Results, int, error) {
		jobs, err := sweepJobs(withWindow(cfg, w), band, spreads)
		if err != nil {
			return nil, 0, err
		}
		results, best := runSweep(ctx, reader, jobs, workers)
		if best == nil {
			for _, r := range results {
				if r.Error != nil {
					return nil, 0, r.Error
				}
			}
			return nil, 0, apperrors.NewNotFoundError("backtest", "walkForward", "no sweep job succeeded")
		}
		return resultAt(results, best.Index), best.Index, nil
	}

	evaluator := func(ctx context.Context, w validation.Window, params int) (*backtest.Results, error) {
		if params < 0 || params >= len(spreads) {
			return nil, fmt.Errorf("no spread at index %d", params)
		}
		chosen := band
		chosen.Spread = spreads[params] / 100
		strat, err := strategy.NewBandStrategy(chosen)
		if err != nil {
			return nil, err
		}
		return runSingle(ctx, withWindow(cfg, w), reader, strat, nil)
	}

	v := validation.NewDefaultWalkForwardValidator(optimizer, evaluator)
	v.SetOutput(out)
	return v.Validate(ctx, validation.Window{Start: cfg.Start, End: cfg.End}, wf)
}
