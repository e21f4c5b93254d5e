package reporting

import (
	"path/filepath"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
)

// DefaultReporter implements the complete Reporter interface
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
	paths   *DefaultPathManager
}

// NewDefaultReporter creates a new default reporter with all functionality
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
		paths:   NewDefaultPathManager(),
	}
}

// Console output methods
func (r *DefaultReporter) OutputResults(results *backtest.Results) {
	r.console.OutputResults(results)
}

func (r *DefaultReporter) OutputSweep(results []backtest.BacktestResult, best *backtest.OptimizationResult) {
	r.console.OutputSweep(results, best)
}

// File output methods
func (r *DefaultReporter) WriteTradesCSV(results *backtest.Results, path string) error {
	return r.csv.WriteTradesCSV(results, path)
}

func (r *DefaultReporter) WriteTradesXLSX(results *backtest.Results, path string) error {
	return r.excel.WriteTradesXLSX(results, path)
}

func (r *DefaultReporter) WriteSummaryJSON(results *backtest.Results, path string) error {
	return WriteSummaryJSON(results, path)
}

// Path management methods
func (r *DefaultReporter) GetDefaultOutputDir(symbol, interval string) string {
	return r.paths.GetDefaultOutputDir(symbol, interval)
}

func (r *DefaultReporter) EnsureDirectoryExists(path string) error {
	return r.paths.EnsureDirectoryExists(path)
}

// ReportingManager provides a high-level interface for all reporting needs
type ReportingManager struct {
	reporter *DefaultReporter
	config   ReportingConfig
}

// NewReportingManager creates a new reporting manager with configuration.
// OutputDirectory, when set, replaces the "results" root.
func NewReportingManager(config ReportingConfig) *ReportingManager {
	reporter := NewDefaultReporter()
	if config.OutputDirectory != "" {
		reporter.paths = NewPathManager(config.OutputDirectory)
	}
	return &ReportingManager{reporter: reporter, config: config}
}

// WithConsole replaces the console reporter, mainly for tests
func (m *ReportingManager) WithConsole(console *DefaultConsoleReporter) *ReportingManager {
	m.reporter.console = console
	return m
}

// OutputDir returns the directory files for symbol and interval go to
func (m *ReportingManager) OutputDir(symbol, interval string) string {
	return m.reporter.GetDefaultOutputDir(symbol, interval)
}

// ReportResults outputs results according to configuration and returns the
// files it wrote
func (m *ReportingManager) ReportResults(results *backtest.Results, symbol, interval string) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.OutputResults(results)
	}
	if !m.config.EnableFiles {
		return nil, nil
	}

	outputDir := m.OutputDir(symbol, interval)
	var written []string

	if m.config.CSVEnabled {
		path := filepath.Join(outputDir, "trades.csv")
		if err := m.reporter.WriteTradesCSV(results, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if m.config.ExcelEnabled {
		path := filepath.Join(outputDir, "trades.xlsx")
		if err := m.reporter.WriteTradesXLSX(results, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if m.config.JSONEnabled {
		path := filepath.Join(outputDir, "summary.json")
		if err := m.reporter.WriteSummaryJSON(results, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

// ReportSweep outputs a sweep comparison and returns the files it wrote
func (m *ReportingManager) ReportSweep(results []backtest.BacktestResult, best *backtest.OptimizationResult, symbol, interval string) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.OutputSweep(results, best)
	}
	if !m.config.EnableFiles || !m.config.JSONEnabled {
		return nil, nil
	}

	path := filepath.Join(m.OutputDir(symbol, interval), "sweep.json")
	if err := WriteSweepJSON(results, best, path); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
