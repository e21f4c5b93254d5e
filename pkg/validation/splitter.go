package validation

import (
	"time"
)

const (
	minute = time.Minute
	day    = 24 * time.Hour
)

// SplitByRatio splits w into a train window holding ratio of its length and
// a test window holding the rest. ok is false when either side would be empty.
func SplitByRatio(w Window, ratio float64) (train, test Window, ok bool) {
	if !w.Valid() || ratio <= 0 || ratio >= 1 {
		return w, Window{}, false
	}

	span := w.End.Sub(w.Start)
	cut := w.Start.Add(time.Duration(float64(span) * ratio)).Truncate(minute)
	if !cut.After(w.Start) || cut.After(w.End) {
		return w, Window{}, false
	}

	return Window{Start: w.Start, End: cut.Add(-minute)}, Window{Start: cut, End: w.End}, true
}

// CreateRollingFolds slides a train window followed by a test window over w,
// advancing rollDays at a time. Only folds whose test window fits in w are
// returned.
func CreateRollingFolds(w Window, trainDays, testDays, rollDays int) []WalkForwardFold {
	var folds []WalkForwardFold
	if !w.Valid() || trainDays <= 0 || testDays <= 0 || rollDays <= 0 {
		return folds
	}

	trainDur := time.Duration(trainDays) * day
	testDur := time.Duration(testDays) * day
	rollDur := time.Duration(rollDays) * day

	for start := w.Start; ; start = start.Add(rollDur) {
		trainEnd := start.Add(trainDur)
		testEnd := trainEnd.Add(testDur).Add(-minute)
		if testEnd.After(w.End) {
			break
		}
		folds = append(folds, WalkForwardFold{
			Train: Window{Start: start, End: trainEnd.Add(-minute)},
			Test:  Window{Start: trainEnd, End: testEnd},
		})
	}
	return folds
}
