// Command candles replays a trade file through the candle builder and stores
// the finalized one minute candles in sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ducminhle1904/paper-exchange/cmd/common"
	"github.com/ducminhle1904/paper-exchange/internal/config"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
)

const appName = "candles"

func main() {
	var (
		tradesFile = flag.String("trades", "", "Trade CSV (id,timestamp,price,amount); defaults to <data-root>/<exchange>/*/<SYMBOL>/trades.csv")
		exchange   = flag.String("exchange", "binance", "Exchange directory used to locate the trade file")
		batchSize  = flag.Int("batch", 1000, "Trades per delivered batch")
		lag        = flag.Int("lag", 0, "Exchange lag in seconds recorded on version 2 candles")
		exportPath = flag.String("export", "", "Write the merged candles to this CSV")
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
	if err := cfg.ValidateBuilder(); err != nil {
		console.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	path := strings.TrimSpace(*tradesFile)
	if path == "" {
		path = data.DefaultDataManager.FindDataFile(*flags.DataRoot, *exchange, cfg.Symbol, data.TradesFile)
	}
	validator := common.NewFlagValidator().
		ValidateFile("trades", path, true).
		ValidateInt("batch", *batchSize, 1, 1_000_000).
		ValidateInt("lag", *lag, 0, 86_400)
	if validator.HasErrors() {
		validator.PrintErrors()
		os.Exit(2)
	}

	console.Header("Candle Builder")
	console.Info("Config: %s", cfg.Summary())
	console.Info("Trades: %s (batches of %d)", path, *batchSize)

	fileLog, err := logger.NewLogger(cfg.LogDir, appName, cfg.Symbol, cfg.Interval())
	if err != nil {
		console.Warn("File logging disabled: %v", err)
	} else {
		defer fileLog.Close()
		console.Debug("Logging to %s", fileLog.GetLogPath())
	}

	health := monitoring.NewHealthChecker(5 * time.Minute)
	if cfg.MetricsPort > 0 {
		srv, err := common.StartMonitoring(cfg.MetricsPort, health)
		if err != nil {
			console.Warn("%v", err)
		} else {
			defer common.StopMonitoring(srv, 5*time.Second)
		}
	}

	ctx, cancel := common.SignalContext(context.Background())
	defer cancel()

	started := time.Now()
	console.Progress("Replaying trades...")
	summary, err := buildCandles(ctx, cfg, buildOptions{
		TradesFile: path,
		BatchSize:  *batchSize,
		Lag:        *lag,
		ExportPath: *exportPath,
	}, health, fileLog)
	if err != nil {
		console.Error("Candle build failed: %v", err)
		os.Exit(1)
	}

	printSummary(console, cfg, summary, time.Since(started))
	if *exportPath != "" && len(summary.Merged) > 0 {
		console.Success("Merged candles written to %s", *exportPath)
	}
}

func printSummary(console *common.Logger, cfg *config.Config, s *buildSummary, elapsed time.Duration) {
	console.Section("Summary")
	console.Info("Trades:          %d in %d batches", s.Trades, s.Batches)
	console.Info("Candles built:   %d", s.Candles)
	console.Info("Merged (%s):    %d", cfg.Interval(), len(s.Merged))
	console.Info("Sink:            submitted=%d written=%d dropped=%d failed=%d",
		s.Stats.Submitted, s.Stats.Written, s.Stats.Dropped, s.Stats.Failed)
	console.Info("Table %s now holds %d candles", cfg.TableName(), s.Stored)
	if !s.Withheld.IsZero() {
		console.Info("Withheld:        candle starting %s waits for later trades", s.Withheld.UTC().Format(time.RFC3339))
	}
	if s.Buffered > 0 {
		console.Info("Buffered:        %d base candles wait for the next merge", s.Buffered)
	}
	if s.Stats.Dropped > 0 || s.Stats.Failed > 0 {
		console.Warn("%d candles did not reach the store", s.Stats.Dropped+s.Stats.Failed)
	}
	console.Success("Done in %s", common.FormatDuration(elapsed))
	fmt.Println()
}
