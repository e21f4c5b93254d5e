// Command backtest replays stored candles through the paper exchange and a
// strategy, optionally sweeping the band spread.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/cmd/common"
	"github.com/ducminhle1904/paper-exchange/internal/config"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/internal/strategy"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/reporting"
	"github.com/ducminhle1904/paper-exchange/pkg/validation"
)

const appName = "backtest"

func main() {
	defaults := strategy.DefaultBandConfig()
	var (
		source    = flag.String("source", "", "Candle CSV or sqlite database (defaults to DB_PATH)")
		strat     = flag.String("strategy", strategyBand, "Strategy to run: band or hold")
		spread    = flag.Float64("spread", defaults.Spread*100, "Band distance from the close, in percent")
		size      = flag.String("size", defaults.OrderSize.String(), "Asset amount per band order")
		every     = flag.Int("every", defaults.Every, "Re-quote the band every N strategy candles")
		center    = flag.String("center", "close", "Band center: close, sma or ema")
		maPeriod  = flag.Int("ma-period", 20, "Moving average period for -center sma|ema")
		spreads   = flag.String("spreads", "", "Sweep these band spreads in percent, e.g. 0.5,1,2")
		workers   = flag.Int("workers", runtime.NumCPU(), "Parallel sweep workers")
		startFlag = flag.String("start", "", "Range start (overrides BACKTEST_START)")
		endFlag   = flag.String("end", "", "Range end (overrides BACKTEST_END)")
		period    = flag.String("period", "", "Limit the range to a trailing window ending at its end (e.g. 7d, 30d)")
		outDir    = flag.String("output", "results", "Directory for trades.csv, trades.xlsx and summary.json")

		// Walk-forward validation of a spread sweep
		wfEnable     = flag.Bool("wf-enable", false, "Validate the -spreads sweep walk-forward instead of reporting it")
		wfSplitRatio = flag.Float64("wf-split-ratio", 0.7, "Train/test split ratio (0.7 = 70% train, 30% test)")
		wfRolling    = flag.Bool("wf-rolling", false, "Use rolling walk-forward instead of simple holdout")
		wfTrainDays  = flag.Int("wf-train-days", 180, "Training window size in days (for rolling WF)")
		wfTestDays   = flag.Int("wf-test-days", 60, "Test window size in days (for rolling WF)")
		wfRollDays   = flag.Int("wf-roll-days", 30, "Roll forward step size in days (for rolling WF)")
	)
	flags := common.RegisterCommonFlags()
	flag.Parse()

	if *flags.Version {
		common.PrintVersion(appName)
		return
	}
	console := flags.Logger()

	cfg, err := config.Load(*flags.EnvFile, *flags.ConfigFile)
	if err != nil {
		console.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	validator := common.NewFlagValidator().
		ValidateChoice("strategy", strings.ToLower(*strat), strategyChoices).
		ValidateFloat("spread", *spread, 0.0001, 99.99).
		ValidateInt("every", *every, 1, 1_000_000).
		ValidateChoice("center", strings.ToLower(*center), []string{"close", "sma", "ema"}).
		ValidateInt("ma-period", *maPeriod, 1, 100_000).
		ValidateInt("workers", *workers, 1, 1024)
	if *startFlag != "" {
		if cfg.Start, err = config.ParseTime(*startFlag); err != nil {
			validator.AddError(err.Error())
		}
	}
	if *endFlag != "" {
		if cfg.End, err = config.ParseTime(*endFlag); err != nil {
			validator.AddError(err.Error())
		}
	}
	orderSize, err := decimal.NewFromString(*size)
	if err != nil {
		validator.AddError("size must be a decimal, got: " + *size)
	}
	sweep, err := common.ParseFloatList(*spreads)
	if err != nil {
		validator.AddError("spreads: " + err.Error())
	}
	if *wfEnable && *spreads == "" {
		validator.AddError("wf-enable needs a -spreads sweep")
	}
	if validator.HasErrors() {
		validator.PrintErrors()
		os.Exit(2)
	}
	band := strategy.BandConfig{
		Spread:    *spread / 100,
		OrderSize: orderSize,
		Every:     *every,
		Center:    strings.ToLower(*center),
		Period:    *maPeriod,
	}

	reader, closeSource, err := openSource(cfg, *source)
	if err != nil {
		console.Error("Failed to open candle source: %v", err)
		os.Exit(1)
	}
	defer closeSource()

	ctx, cancel := common.SignalContext(context.Background())
	defer cancel()

	if err := fillRange(ctx, cfg, reader); err != nil {
		console.Warn("Could not read the stored range: %v", err)
	}
	if *period != "" {
		d, ok := data.ParseTrailingPeriod(*period)
		if !ok {
			console.Error("Invalid period %q", *period)
			os.Exit(2)
		}
		if !cfg.End.IsZero() && cfg.End.Add(-d).After(cfg.Start) {
			cfg.Start = cfg.End.Add(-d)
		}
	}
	if err := cfg.Validate(); err != nil {
		console.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if cfg.MetricsPort > 0 {
		srv, err := common.StartMonitoring(cfg.MetricsPort, monitoring.NewHealthChecker(0))
		if err != nil {
			console.Warn("%v", err)
		} else {
			defer common.StopMonitoring(srv, 5*time.Second)
		}
	}

	manager := reporting.NewReportingManager(reporting.ReportingConfig{
		EnableConsole:   !*flags.Silent,
		EnableFiles:     !*flags.ConsoleOnly,
		OutputDirectory: *outDir,
		CSVEnabled:      true,
		ExcelEnabled:    true,
		JSONEnabled:     true,
	})

	console.Header("Paper Exchange Backtest")
	console.Info("Config: %s", cfg.Summary())
	console.Info("Range:  %s -> %s", cfg.Start.Format(time.RFC3339), cfg.End.Format(time.RFC3339))

	started := time.Now()
	var written []string
	if *wfEnable {
		wf := validation.WalkForwardConfig{
			Rolling:    *wfRolling,
			SplitRatio: *wfSplitRatio,
			TrainDays:  *wfTrainDays,
			TestDays:   *wfTestDays,
			RollDays:   *wfRollDays,
		}
		summary, err := walkForward(ctx, cfg, reader, band, sweep, *workers, wf, os.Stdout)
		if err != nil {
			console.Error("Walk-forward validation failed: %v", err)
			os.Exit(1)
		}
		for _, r := range summary.Results {
			console.Info("Fold %d chose spread %g%%", r.Fold, sweep[r.Params])
		}
	} else if len(sweep) > 0 {
		written = sweepSpreads(ctx, console, cfg, reader, band, sweep, *workers, manager)
	} else {
		written = runOnce(ctx, console, cfg, reader, *strat, band, manager)
	}

	for _, path := range written {
		console.Success("Wrote %s", path)
	}
	console.Success("Done in %s", common.FormatDuration(time.Since(started)))
}

func runOnce(ctx context.Context, console *common.Logger, cfg *config.Config, reader data.CandleReader, name string, band strategy.BandConfig, manager *reporting.ReportingManager) []string {
	strat, err := newStrategy(name, band)
	if err != nil {
		console.Error("%v", err)
		os.Exit(1)
	}

	fileLog, err := logger.NewLogger(cfg.LogDir, appName, cfg.Symbol, cfg.Interval())
	if err != nil {
		console.Warn("File logging disabled: %v", err)
	} else {
		defer fileLog.Close()
		console.Debug("Logging to %s", fileLog.GetLogPath())
	}

	console.Progress("Running %s...", strat.GetName())
	results, err := runSingle(ctx, cfg, reader, strat, fileLog)
	if err != nil {
		console.Error("Backtest failed: %v", err)
		os.Exit(1)
	}

	written, err := manager.ReportResults(results, cfg.Symbol, cfg.Interval())
	if err != nil {
		console.Error("Failed to write reports: %v", err)
	}
	return written
}

func sweepSpreads(ctx context.Context, console *common.Logger, cfg *config.Config, reader data.CandleReader, band strategy.BandConfig, spreads []float64, workers int, manager *reporting.ReportingManager) []string {
	jobs, err := sweepJobs(cfg, band, spreads)
	if err != nil {
		console.Error("Invalid sweep: %v", err)
		os.Exit(2)
	}

	console.Progress("Sweeping %d spreads on %d workers...", len(jobs), workers)
	results, best := runSweep(ctx, reader, jobs, workers)

	written, err := manager.ReportSweep(results, best, cfg.Symbol, cfg.Interval())
	if err != nil {
		console.Error("Failed to write sweep report: %v", err)
	}
	if best == nil {
		os.Exit(1)
	}

	// the best run is reported in full
	files, err := manager.ReportResults(resultAt(results, best.Index), cfg.Symbol, cfg.Interval())
	if err != nil {
		console.Error("Failed to write reports: %v", err)
	}
	return append(written, files...)
}
