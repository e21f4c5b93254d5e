package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

type fakeSink struct {
	mu       sync.Mutex
	written  []types.Candle
	attempts int
	failures int // the first failures writes fail with err
	err      error
	block    chan struct{}
}

func (s *fakeSink) WriteCandles(ctx context.Context, candles []types.Candle) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return s.err
	}
	s.written = append(s.written, candles...)
	return nil
}

func (s *fakeSink) snapshot() ([]types.Candle, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Candle(nil), s.written...), s.attempts
}

func candleRun(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = storeCandle(i, float64(100+i))
	}
	return out
}

func quietConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		BufferSize:    64,
		BatchSize:     1000,
		FlushInterval: time.Hour,
		MaxRetries:    3,
		RetryDelay:    time.Millisecond,
	}
}

func TestAsyncWriter_SubmitNeverBlocks(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	cfg := quietConfig()
	cfg.BufferSize = 2
	w := NewAsyncWriter(sink, cfg, nil)

	done := make(chan int)
	go func() { done <- w.Submit(candleRun(5)) }()

	select {
	case accepted := <-done:
		assert.Equal(t, 2, accepted)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full buffer")
	}

	stats := w.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(3), stats.Dropped)
}

func TestAsyncWriter_CloseFlushes(t *testing.T) {
	sink := &fakeSink{}
	w := NewAsyncWriter(sink, quietConfig(), nil)

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(context.Background()) }()

	assert.Equal(t, 3, w.Submit(candleRun(3)))
	w.Close()
	require.NoError(t, <-runErr)

	written, _ := sink.snapshot()
	require.Len(t, written, 3)
	assert.Equal(t, 102.0, written[2].Close)
	assert.Equal(t, int64(3), w.Stats().Written)

	// closed writers drop instead of panicking
	assert.Equal(t, 0, w.Submit(candleRun(1)))
	assert.Equal(t, int64(1), w.Stats().Dropped)
}

func TestAsyncWriter_FlushesFullBatches(t *testing.T) {
	sink := &fakeSink{}
	cfg := quietConfig()
	cfg.BatchSize = 2

	flushed := make(chan int, 10)
	cfg.OnFlush = func(written int, err error) { flushed <- written }
	w := NewAsyncWriter(sink, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	w.Submit(candleRun(2))
	select {
	case n := <-flushed:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("full batch was not flushed")
	}
}

func TestAsyncWriter_RetriesStorageErrors(t *testing.T) {
	sink := &fakeSink{
		failures: 2,
		err:      apperrors.NewStorageError("test", "WriteCandles", errors.New("database is locked")),
	}
	w := NewAsyncWriter(sink, quietConfig(), nil)

	go func() { _ = w.Run(context.Background()) }()
	w.Submit(candleRun(4))
	w.Close()

	written, attempts := sink.snapshot()
	assert.Len(t, written, 4)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(0), w.Stats().Failed)
}

func TestAsyncWriter_DoesNotRetryDataErrors(t *testing.T) {
	sink := &fakeSink{
		failures: 10,
		err:      apperrors.NewDataError("test", "WriteCandles", errors.New("bad raw")),
	}
	cfg := quietConfig()

	var flushErr error
	cfg.OnFlush = func(written int, err error) { flushErr = err }
	w := NewAsyncWriter(sink, cfg, nil)

	go func() { _ = w.Run(context.Background()) }()
	w.Submit(candleRun(2))
	w.Close()

	_, attempts := sink.snapshot()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int64(2), w.Stats().Failed)
	assert.Error(t, flushErr)
}

func TestAsyncWriter_CancelDrainsBuffer(t *testing.T) {
	sink := &fakeSink{}
	w := NewAsyncWriter(sink, quietConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)

	w.Submit(candleRun(5))
	go func() { runErr <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	written, _ := sink.snapshot()
	assert.Len(t, written, 5)
}

func TestAsyncWriter_SubmitCopiesCandles(t *testing.T) {
	sink := &fakeSink{}
	w := NewAsyncWriter(sink, quietConfig(), nil)
	go func() { _ = w.Run(context.Background()) }()

	c := storeCandle(0, 1)
	c.OrderFlow = types.NewOrderFlow(0)
	c.Raw = append(c.Raw, types.Trade{ID: "a"})
	w.Submit([]types.Candle{c})
	c.Raw[0].ID = "mutated"
	w.Close()

	written, _ := sink.snapshot()
	require.Len(t, written, 1)
	assert.Equal(t, "a", written[0].Raw[0].ID)
}
