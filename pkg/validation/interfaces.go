// Package validation provides walk-forward validation of parameter sweeps
package validation

import (
	"context"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
)

// Window is an inclusive range of base candle starts
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window holds at least one minute
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.Before(w.Start)
}

// Optimizer picks the best parameter set on a window. params identifies the
// winner in the caller's grid.
type Optimizer func(ctx context.Context, w Window) (results *backtest.Results, params int, err error)

// Evaluator replays one parameter set on a window
type Evaluator func(ctx context.Context, w Window, params int) (*backtest.Results, error)

// WalkForwardConfig holds the configuration for walk-forward validation
type WalkForwardConfig struct {
	Rolling    bool
	SplitRatio float64
	TrainDays  int
	TestDays   int
	RollDays   int
}

// DefaultWalkForwardConfig is a 70/30 holdout
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{
		SplitRatio: 0.7,
		TrainDays:  180,
		TestDays:   60,
		RollDays:   30,
	}
}

// WalkForwardFold is one train window followed by its test window
type WalkForwardFold struct {
	Train Window
	Test  Window
}

// WalkForwardResults holds the results for a single fold
type WalkForwardResults struct {
	Fold         int
	Train        Window
	Test         Window
	Params       int
	TrainResults *backtest.Results
	TestResults  *backtest.Results
}

// WalkForwardSummary holds the summary of all walk-forward validation results
type WalkForwardSummary struct {
	Results              []WalkForwardResults
	AverageTrainReturn   float64
	AverageTestReturn    float64
	AverageTrainDrawdown float64
	AverageTestDrawdown  float64
	ReturnDegradation    float64
	IsRobust             bool
	OverfittingRisk      string
}
