package main

import (
	"context"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/config"
	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/internal/pipeline"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// buildOptions selects the trade source and how it is replayed
type buildOptions struct {
	TradesFile string
	BatchSize  int
	Lag        int
	ExportPath string
}

// buildSummary describes one replay of a trade file
type buildSummary struct {
	Trades   int
	Batches  int
	Candles  int
	Merged   []types.Candle
	Stats    data.WriterStats
	Stored   int64
	Withheld time.Time
	Buffered int
}

// buildCandles replays a trade file batch by batch through the pipeline,
// persisting every finalized candle to the configured sqlite table
func buildCandles(ctx context.Context, cfg *config.Config, opts buildOptions, health *monitoring.HealthChecker, log *logger.Logger) (*buildSummary, error) {
	trades, err := data.LoadTrades(opts.TradesFile)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, apperrors.NewValidationError("candles", "buildCandles", "trade file has no usable trades").
			WithContext("file", opts.TradesFile)
	}

	store, err := data.OpenSQLiteStore(cfg.DBPath, cfg.TableName(), cfg.CandleVersion)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var onFlush func(int, error)
	if health != nil {
		onFlush = health.ObserveFlush
	}
	writer := data.NewAsyncWriter(store, cfg.AsyncWriterConfig(onFlush), log)

	pipe, err := pipeline.New(pipeline.Config{
		Symbol:     cfg.Symbol,
		Version:    cfg.CandleVersion,
		CandleSize: cfg.CandleSize,
	}, writer, health, log)
	if err != nil {
		return nil, err
	}

	batches := data.SplitTradeBatches(trades, opts.BatchSize)
	summary := &buildSummary{Trades: len(trades), Batches: len(batches)}

	feed := make(chan types.TradeBatch)
	go func() {
		defer close(feed)
		for _, batch := range batches {
			batch.Lag = opts.Lag
			select {
			case feed <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	err = pipe.Run(ctx, feed, func(res pipeline.Result) error {
		summary.Candles += len(res.Candles)
		summary.Merged = append(summary.Merged, res.Merged...)
		return nil
	})
	if err != nil {
		return summary, err
	}

	summary.Stats = writer.Stats()
	summary.Withheld = pipe.Withheld()
	summary.Buffered = pipe.Buffered()
	// ctx may already be canceled; the count reflects what reached the store
	if summary.Stored, err = store.Count(context.Background()); err != nil {
		return summary, err
	}

	if opts.ExportPath != "" && len(summary.Merged) > 0 {
		if err := data.WriteCandlesCSV(opts.ExportPath, summary.Merged); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
