package reporting

import (
	"github.com/ducminhle1904/paper-exchange/internal/backtest"
)

// Package reporting renders backtest results for people and spreadsheets

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	OutputResults(results *backtest.Results)
	OutputSweep(results []backtest.BacktestResult, best *backtest.OptimizationResult)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(results *backtest.Results, path string) error
	WriteTradesXLSX(results *backtest.Results, path string) error
	WriteSummaryJSON(results *backtest.Results, path string) error
}

// PathManager defines interface for output path management
type PathManager interface {
	GetDefaultOutputDir(symbol, interval string) string
	EnsureDirectoryExists(path string) error
}

// Reporter combines all reporting interfaces
type Reporter interface {
	ConsoleReporter
	FileReporter
	PathManager
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	AmountStyle   int
	PercentStyle  int
	BaseStyle     int
	LongStyle     int
	ShortStyle    int
	SummaryStyle  int
	DateTimeStyle int
}

// ReportingConfig holds configuration for reporting
type ReportingConfig struct {
	EnableConsole   bool
	EnableFiles     bool
	OutputDirectory string
	ExcelEnabled    bool
	CSVEnabled      bool
	JSONEnabled     bool
}
