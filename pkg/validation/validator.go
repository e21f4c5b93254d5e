package validation

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
)

const validatorComponent = "walk_forward"

// DefaultWalkForwardValidator optimizes on each train window and replays the
// winner on the following test window
type DefaultWalkForwardValidator struct {
	optimizer Optimizer
	evaluator Evaluator
	out       io.Writer
}

// NewDefaultWalkForwardValidator creates a validator printing to stdout
func NewDefaultWalkForwardValidator(optimizer Optimizer, evaluator Evaluator) *DefaultWalkForwardValidator {
	return &DefaultWalkForwardValidator{
		optimizer: optimizer,
		evaluator: evaluator,
		out:       os.Stdout,
	}
}

// SetOutput redirects the progress report
func (v *DefaultWalkForwardValidator) SetOutput(out io.Writer) {
	v.out = out
}

// Validate runs holdout or rolling validation over w
func (v *DefaultWalkForwardValidator) Validate(ctx context.Context, w Window, cfg WalkForwardConfig) (*WalkForwardSummary, error) {
	if v.optimizer == nil || v.evaluator == nil {
		return nil, apperrors.NewConfigurationError(validatorComponent, "Validate", "optimizer and evaluator are required")
	}

	fmt.Fprintln(v.out, "\n🔄 ================ WALK-FORWARD VALIDATION ================")

	var folds []WalkForwardFold
	if cfg.Rolling {
		fmt.Fprintf(v.out, "Mode: Rolling Walk-Forward\n")
		fmt.Fprintf(v.out, "Train: %d days, Test: %d days, Roll: %d days\n", cfg.TrainDays, cfg.TestDays, cfg.RollDays)
		folds = CreateRollingFolds(w, cfg.TrainDays, cfg.TestDays, cfg.RollDays)
		if len(folds) == 0 {
			return nil, apperrors.NewValidationError(validatorComponent, "Validate", "not enough data for rolling walk-forward validation")
		}
	} else {
		fmt.Fprintf(v.out, "Mode: Simple Holdout\n")
		fmt.Fprintf(v.out, "Split: %.0f%% train, %.0f%% test\n", cfg.SplitRatio*100, (1-cfg.SplitRatio)*100)
		train, test, ok := SplitByRatio(w, cfg.SplitRatio)
		if !ok {
			return nil, apperrors.NewValidationError(validatorComponent, "Validate",
				fmt.Sprintf("cannot split the range with ratio %.2f", cfg.SplitRatio))
		}
		folds = []WalkForwardFold{{Train: train, Test: test}}
	}
	fmt.Fprintf(v.out, "Created %d folds\n\n", len(folds))

	results := make([]WalkForwardResults, 0, len(folds))
	for i, fold := range folds {
		fmt.Fprintf(v.out, "📊 Fold %d/%d: Train %s → %s, Test %s → %s\n",
			i+1, len(folds),
			fold.Train.Start.Format("2006-01-02 15:04"), fold.Train.End.Format("2006-01-02 15:04"),
			fold.Test.Start.Format("2006-01-02 15:04"), fold.Test.End.Format("2006-01-02 15:04"))

		trainResults, params, err := v.optimizer(ctx, fold.Train)
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrorCategoryValidation, validatorComponent, "Validate").
				WithContext("fold", i+1).WithContext("window", "train")
		}
		testResults, err := v.evaluator(ctx, fold.Test, params)
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrorCategoryValidation, validatorComponent, "Validate").
				WithContext("fold", i+1).WithContext("window", "test")
		}

		results = append(results, WalkForwardResults{
			Fold:         i + 1,
			Train:        fold.Train,
			Test:         fold.Test,
			Params:       params,
			TrainResults: trainResults,
			TestResults:  testResults,
		})

		fmt.Fprintf(v.out, "  Train: %.2f%% return, %.2f%% drawdown\n", trainResults.TotalReturn*100, trainResults.MaxDrawdown*100)
		fmt.Fprintf(v.out, "  Test:  %.2f%% return, %.2f%% drawdown\n\n", testResults.TotalReturn*100, testResults.MaxDrawdown*100)
	}

	summary := calculateSummary(results)
	v.printSummary(summary)
	return summary, nil
}

// calculateSummary averages returns and drawdowns in percent
func calculateSummary(results []WalkForwardResults) *WalkForwardSummary {
	if len(results) == 0 {
		return &WalkForwardSummary{}
	}

	var trainReturns, testReturns, trainDrawdowns, testDrawdowns []float64
	for _, r := range results {
		trainReturns = append(trainReturns, r.TrainResults.TotalReturn*100)
		testReturns = append(testReturns, r.TestResults.TotalReturn*100)
		trainDrawdowns = append(trainDrawdowns, r.TrainResults.MaxDrawdown*100)
		testDrawdowns = append(testDrawdowns, r.TestResults.MaxDrawdown*100)
	}

	avgTrainReturn := average(trainReturns)
	avgTestReturn := average(testReturns)
	returnDegradation := ((avgTrainReturn - avgTestReturn) / math.Max(0.01, math.Abs(avgTrainReturn))) * 100

	risk := "LOW"
	if returnDegradation > 30 {
		risk = "HIGH"
	} else if returnDegradation > 15 {
		risk = "MODERATE"
	}

	return &WalkForwardSummary{
		Results:              results,
		AverageTrainReturn:   avgTrainReturn,
		AverageTestReturn:    avgTestReturn,
		AverageTrainDrawdown: average(trainDrawdowns),
		AverageTestDrawdown:  average(testDrawdowns),
		ReturnDegradation:    returnDegradation,
		IsRobust:             returnDegradation <= 30,
		OverfittingRisk:      risk,
	}
}

func (v *DefaultWalkForwardValidator) printSummary(summary *WalkForwardSummary) {
	var trainReturns, testReturns []float64
	for _, r := range summary.Results {
		trainReturns = append(trainReturns, r.TrainResults.TotalReturn*100)
		testReturns = append(testReturns, r.TestResults.TotalReturn*100)
	}

	fmt.Fprintln(v.out, "📊 ================ WALK-FORWARD SUMMARY ================")
	fmt.Fprintf(v.out, "AVERAGE PERFORMANCE ACROSS %d FOLDS:\n", len(summary.Results))
	fmt.Fprintf(v.out, "  Train Return:    %.2f%% ± %.2f%%\n", summary.AverageTrainReturn, stdDev(trainReturns))
	fmt.Fprintf(v.out, "  Test Return:     %.2f%% ± %.2f%%\n", summary.AverageTestReturn, stdDev(testReturns))
	fmt.Fprintf(v.out, "  Train Drawdown:  %.2f%%\n", summary.AverageTrainDrawdown)
	fmt.Fprintf(v.out, "  Test Drawdown:   %.2f%%\n", summary.AverageTestDrawdown)

	fmt.Fprintf(v.out, "\nCONSISTENCY ANALYSIS:\n")
	fmt.Fprintf(v.out, "  Return Degradation: %.1f%%\n", summary.ReturnDegradation)
	switch summary.OverfittingRisk {
	case "HIGH":
		fmt.Fprintf(v.out, "  ⚠️  HIGH OVERFITTING RISK - Strategy may not generalize well\n")
	case "MODERATE":
		fmt.Fprintf(v.out, "  ⚠️  MODERATE OVERFITTING - Some performance degradation\n")
	default:
		fmt.Fprintf(v.out, "  ✅ ROBUST STRATEGY - Good generalization across time periods\n")
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	avg := average(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - avg
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// RunWalkForwardValidation validates with a default validator
func RunWalkForwardValidation(ctx context.Context, w Window, cfg WalkForwardConfig, optimizer Optimizer, evaluator Evaluator) (*WalkForwardSummary, error) {
	return NewDefaultWalkForwardValidator(optimizer, evaluator).Validate(ctx, w, cfg)
}
