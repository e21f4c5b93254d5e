// Package pipeline drives the candle builder from a stream of trade batches,
// hands finalized candles to the sink and merges them for larger intervals.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ducminhle1904/paper-exchange/internal/candles"
	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// Config selects the market and the candle shapes
type Config struct {
	Symbol     string
	Version    types.SchemaVersion
	CandleSize int
}

// Result is the output of one trade batch
type Result struct {
	// Candles are the finalized one minute candles, gap filled
	Candles []types.Candle

	// Merged are the CandleSize candles completed by this batch
	Merged []types.Candle
}

// Handler consumes the result of each batch. Returning an error stops Run.
type Handler func(Result) error

// Pipeline is not safe for concurrent use; Run owns it while running.
type Pipeline struct {
	cfg     Config
	builder *candles.Builder
	batcher *candles.Batcher

	sink   *data.AsyncWriter
	health *monitoring.HealthChecker
	logger *logger.Logger

	sizeLabel string
}

// New creates a pipeline. sink, health and log are optional.
func New(cfg Config, sink *data.AsyncWriter, health *monitoring.HealthChecker, log *logger.Logger) (*Pipeline, error) {
	if cfg.Symbol == "" {
		return nil, apperrors.NewConfigurationError("pipeline", "New", "symbol is required")
	}
	if cfg.CandleSize == 0 {
		cfg.CandleSize = 1
	}
	batcher, err := candles.NewBatcher(cfg.CandleSize, cfg.Version)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		builder:   candles.NewBuilder(batcher.Version()),
		batcher:   batcher,
		sink:      sink,
		health:    health,
		logger:    log,
		sizeLabel: strconv.Itoa(cfg.CandleSize),
	}, nil
}

// Process runs one batch through the builder and the batcher. Finalized
// candles are submitted to the sink without waiting for it.
func (p *Pipeline) Process(batch types.TradeBatch) Result {
	built := p.builder.Write(batch)
	if len(built) == 0 {
		return Result{}
	}

	if p.sink != nil {
		p.sink.Submit(built)
	}

	synthetic := 0
	for _, c := range built {
		if c.Trades == 0 {
			synthetic++
		}
	}
	monitoring.RecordCandles(p.cfg.Symbol, len(built)-synthetic, synthetic)
	monitoring.UpdateLag(p.cfg.Symbol, batch.Lag)

	last := built[len(built)-1]
	monitoring.UpdatePrice(p.cfg.Symbol, last.Close)
	if p.health != nil {
		p.health.RecordCandle(last.Close)
	}
	p.logger.LogCandles(built, batch.Lag)

	merged := p.batcher.WriteAll(built)
	for range merged {
		monitoring.RecordMergedCandle(p.cfg.Symbol, p.sizeLabel)
	}

	return Result{Candles: built, Merged: merged}
}

// Withheld returns the start of the incomplete candle the builder holds back
func (p *Pipeline) Withheld() time.Time {
	return p.builder.Threshold()
}

// Buffered returns how many base candles wait for the next merge
func (p *Pipeline) Buffered() int {
	return p.batcher.Pending()
}

// Run processes batches until the channel is closed or ctx is done. It runs
// the sink drain next to the producer and closes the sink before returning,
// so everything built has been handed to the sink when Run returns.
func (p *Pipeline) Run(ctx context.Context, batches <-chan types.TradeBatch, handle Handler) error {
	group, ctx := errgroup.WithContext(ctx)

	if p.sink != nil {
		group.Go(func() error {
			return p.sink.Run(ctx)
		})
	}

	group.Go(func() error {
		if p.sink != nil {
			defer p.sink.Close()
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case batch, ok := <-batches:
				if !ok {
					return nil
				}
				res := p.Process(batch)
				if handle == nil {
					continue
				}
				if err := handle(res); err != nil {
					monitoring.RecordError("pipeline")
					p.logger.LogError("Batch handler failed", err)
					return err
				}
			}
		}
	})

	return group.Wait()
}
