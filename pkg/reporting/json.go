package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
)

// SweepEntry is one sweep job in the JSON sweep report
type SweepEntry struct {
	ID          string  `json:"id"`
	Index       int     `json:"index"`
	TotalReturn float64 `json:"total_return,omitempty"`
	MaxDrawdown float64 `json:"max_drawdown,omitempty"`
	Fills       int     `json:"fills,omitempty"`
	DurationMs  int64   `json:"duration_ms"`
	Error       string  `json:"error,omitempty"`
}

// SweepReport is the JSON document written after a parameter sweep
type SweepReport struct {
	Best *backtest.OptimizationResult `json:"best,omitempty"`
	Jobs []SweepEntry                 `json:"jobs"`
}

// DefaultJSONFormatter implements JSON output functionality
type DefaultJSONFormatter struct{}

// NewDefaultJSONFormatter creates a new JSON formatter
func NewDefaultJSONFormatter() *DefaultJSONFormatter {
	return &DefaultJSONFormatter{}
}

// FormatSummary renders results as indented JSON
func (f *DefaultJSONFormatter) FormatSummary(results *backtest.Results) ([]byte, error) {
	return json.MarshalIndent(results, "", "  ")
}

// PrintSummary prints the JSON summary to stdout
func (f *DefaultJSONFormatter) PrintSummary(results *backtest.Results) {
	data, err := f.FormatSummary(results)
	if err != nil {
		fmt.Printf("❌ Failed to format summary: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// WriteSummaryJSON writes the results summary to path
func WriteSummaryJSON(results *backtest.Results, path string) error {
	data, err := NewDefaultJSONFormatter().FormatSummary(results)
	if err != nil {
		return err
	}
	return writeJSONFile(path, data)
}

// NewSweepReport summarizes sweep results for JSON output
func NewSweepReport(results []backtest.BacktestResult, best *backtest.OptimizationResult) SweepReport {
	report := SweepReport{Best: best, Jobs: make([]SweepEntry, 0, len(results))}
	for _, r := range results {
		entry := SweepEntry{ID: r.ID, Index: r.Index, DurationMs: r.Duration.Milliseconds()}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		} else if r.Results != nil {
			entry.TotalReturn = r.Results.TotalReturn
			entry.MaxDrawdown = r.Results.MaxDrawdown
			entry.Fills = len(r.Results.Trades)
		}
		report.Jobs = append(report.Jobs, entry)
	}
	return report
}

// WriteSweepJSON writes the sweep report to path
func WriteSweepJSON(results []backtest.BacktestResult, best *backtest.OptimizationResult, path string) error {
	data, err := json.MarshalIndent(NewSweepReport(results, best), "", "  ")
	if err != nil {
		return err
	}
	return writeJSONFile(path, data)
}

func writeJSONFile(path string, data []byte) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExtractIntervalFromPath finds an interval component in a data path
// Example: "data/binance/spot/BTCUSDT/5m/candles.csv" -> "5m"
func ExtractIntervalFromPath(dataPath string) string {
	if dataPath == "" {
		return ""
	}

	parts := strings.Split(filepath.ToSlash(dataPath), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if len(part) < 2 {
			continue
		}
		switch part[len(part)-1] {
		case 'm', 'h', 'd':
			if _, err := strconv.Atoi(part[:len(part)-1]); err == nil {
				return part
			}
		}
	}
	return ""
}
