package backtest

// OptimizationResult is the best run of a sweep
type OptimizationResult struct {
	ID          string
	Index       int
	Return      float64
	MaxDrawdown float64
}

// SelectBest picks the successful run with the highest total return; equal
// returns go to the smaller drawdown, then to the earlier job.
func SelectBest(results []BacktestResult) (OptimizationResult, bool) {
	var (
		best  OptimizationResult
		found bool
	)

	for _, r := range results {
		if r.Error != nil || r.Results == nil {
			continue
		}
		candidate := OptimizationResult{
			ID:          r.ID,
			Index:       r.Index,
			Return:      r.Results.TotalReturn,
			MaxDrawdown: r.Results.MaxDrawdown,
		}
		if !found || better(candidate, best) {
			best, found = candidate, true
		}
	}
	return best, found
}

func better(a, b OptimizationResult) bool {
	if a.Return != b.Return {
		return a.Return > b.Return
	}
	if a.MaxDrawdown != b.MaxDrawdown {
		return a.MaxDrawdown < b.MaxDrawdown
	}
	return a.Index < b.Index
}
