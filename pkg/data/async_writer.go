package data

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// AsyncWriterConfig holds the sink hand-off settings
type AsyncWriterConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration

	// OnFlush, when set, is called after every flush attempt
	OnFlush func(written int, err error)
}

// DefaultAsyncWriterConfig returns the settings used by the CLIs
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		BufferSize:    4096,
		BatchSize:     500,
		FlushInterval: time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
	}
}

func (c AsyncWriterConfig) withDefaults() AsyncWriterConfig {
	def := DefaultAsyncWriterConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	return c
}

// WriterStats counts candles by outcome
type WriterStats struct {
	Submitted int64
	Written   int64
	Dropped   int64
	Failed    int64
}

// AsyncWriter hands candles to a CandleWriter without ever blocking the
// producer. Candles that do not fit in the buffer are dropped and counted;
// failed writes are logged and counted. Neither is reported to the caller.
type AsyncWriter struct {
	sink   CandleWriter
	cfg    AsyncWriterConfig
	logger *logger.Logger

	queue  chan types.Candle
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	submitted atomic.Int64
	written   atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewAsyncWriter wraps sink. Run must be started to drain the buffer.
func NewAsyncWriter(sink CandleWriter, cfg AsyncWriterConfig, log *logger.Logger) *AsyncWriter {
	cfg = cfg.withDefaults()
	return &AsyncWriter{
		sink:   sink,
		cfg:    cfg,
		logger: log,
		queue:  make(chan types.Candle, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Submit queues candles for writing and returns how many were accepted
func (w *AsyncWriter) Submit(candles []types.Candle) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	w.submitted.Add(int64(len(candles)))
	if w.closed {
		w.drop(len(candles))
		return 0
	}

	accepted := 0
	for _, c := range candles {
		select {
		case w.queue <- c.Clone():
			accepted++
		default:
		}
	}
	if dropped := len(candles) - accepted; dropped > 0 {
		w.drop(dropped)
	}
	return accepted
}

func (w *AsyncWriter) drop(n int) {
	w.dropped.Add(int64(n))
	monitoring.RecordSinkWrite("dropped", n)
	w.logger.Warning("Sink buffer full or closed, dropped %d candles", n)
}

// Run drains the buffer in batches until Close is called or ctx is done.
// What is buffered at that point is flushed before Run returns.
func (w *AsyncWriter) Run(ctx context.Context) error {
	defer close(w.done)

	batch := make([]types.Candle, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		w.flush(ctx, batch)
		batch = batch[:0]
		ticker.Reset(w.cfg.FlushInterval)
	}

	for {
		select {
		case c, ok := <-w.queue:
			if !ok {
				flush(ctx)
				return nil
			}
			batch = append(batch, c)
			if len(batch) >= w.cfg.BatchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)

		case <-ctx.Done():
			// drain what is already buffered, then write it with a fresh deadline
		drain:
			for {
				select {
				case c, ok := <-w.queue:
					if !ok {
						break drain
					}
					batch = append(batch, c)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return nil
		}
	}
}

func (w *AsyncWriter) flush(ctx context.Context, batch []types.Candle) {
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(w.cfg.RetryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		err = w.sink.WriteCandles(ctx, batch)
		if err == nil || !retryable(err) {
			break
		}
		w.logger.Warning("Sink write of %d candles failed (attempt %d/%d): %v",
			len(batch), attempt+1, w.cfg.MaxRetries+1, err)
	}

	if err != nil {
		w.failed.Add(int64(len(batch)))
		monitoring.RecordSinkWrite("failed", len(batch))
		monitoring.RecordError("sink")
		w.logger.LogError("Sink write failed", err)
	} else {
		w.written.Add(int64(len(batch)))
		monitoring.RecordSinkWrite("written", len(batch))
	}

	if w.cfg.OnFlush != nil {
		written := len(batch)
		if err != nil {
			written = 0
		}
		w.cfg.OnFlush(written, err)
	}
}

func retryable(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.IsRetryable()
	}
	return false
}

// Close stops accepting candles and waits until Run has flushed the buffer.
// Run must have been started.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	<-w.done
}

// Stats returns the outcome counters
func (w *AsyncWriter) Stats() WriterStats {
	return WriterStats{
		Submitted: w.submitted.Load(),
		Written:   w.written.Load(),
		Dropped:   w.dropped.Load(),
		Failed:    w.failed.Load(),
	}
}
