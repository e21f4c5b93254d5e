package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/strategy"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
)

// WorkerPool runs independent backtests in parallel. Every job gets its own
// engine and strategy; only the candle reader is shared.
type WorkerPool struct {
	workerCount int
	reader      data.CandleReader
	jobQueue    chan BacktestJob
	resultQueue chan BacktestResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// BacktestJob represents a single backtest task
type BacktestJob struct {
	ID       string
	Index    int
	Config   RunnerConfig
	Engine   EngineConfig
	Strategy strategy.Strategy
}

// BacktestResult represents the result of a backtest job
type BacktestResult struct {
	ID       string
	Index    int
	Results  *Results
	Duration time.Duration
	Error    error
}

// NewWorkerPool creates a new worker pool reading candles from reader
func NewWorkerPool(ctx context.Context, reader data.CandleReader, workerCount, jobBufferSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobBufferSize <= 0 {
		jobBufferSize = workerCount
	}

	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		workerCount: workerCount,
		reader:      reader,
		jobQueue:    make(chan BacktestJob, jobBufferSize),
		resultQueue: make(chan BacktestResult, jobBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops the worker pool gracefully
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// SubmitJob submits a backtest job to the pool
func (wp *WorkerPool) SubmitJob(job BacktestJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// GetResults returns the result channel for collecting completed jobs
func (wp *WorkerPool) GetResults() <-chan BacktestResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}

			result := wp.processJob(job)

			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return
			}

		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job BacktestJob) BacktestResult {
	startTime := time.Now()
	result := BacktestResult{ID: job.ID, Index: job.Index}

	engine, err := NewEngine(job.Engine)
	if err != nil {
		result.Error = err
		return result
	}
	runner, err := NewRunner(job.Config, engine, job.Strategy, wp.reader, nil)
	if err != nil {
		result.Error = err
		return result
	}

	result.Results, result.Error = runner.Run(wp.ctx)
	result.Duration = time.Since(startTime)
	return result
}

// RunSweep runs every job on workers goroutines and returns the results in
// job order. A failed job carries its error; it does not stop the others.
func RunSweep(ctx context.Context, reader data.CandleReader, jobs []BacktestJob, workers int, progress *ProgressTracker) []BacktestResult {
	pool := NewWorkerPool(ctx, reader, workers, len(jobs))
	pool.Start()

	submitted := 0
	for i, job := range jobs {
		job.Index = i
		if job.ID == "" {
			job.ID = generateJobID(job, i)
		}
		if err := pool.SubmitJob(job); err != nil {
			break
		}
		submitted++
	}

	results := make([]BacktestResult, 0, submitted)
collect:
	for i := 0; i < submitted; i++ {
		select {
		case result := <-pool.GetResults():
			results = append(results, result)
			if progress != nil {
				progress.Increment()
			}
		case <-pool.ctx.Done():
			break collect
		}
	}
	pool.Stop()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

func generateJobID(job BacktestJob, index int) string {
	name := "job"
	if job.Strategy != nil {
		name = job.Strategy.GetName()
	}
	return fmt.Sprintf("%s_%d_%s", job.Config.Symbol, index, name)
}

// ProgressTracker tracks the progress of batch processing
type ProgressTracker struct {
	total     int
	completed int
	startTime time.Time
	mutex     sync.RWMutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
	}
}

// Increment increments the completion count
func (pt *ProgressTracker) Increment() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	pt.completed++
}

// GetProgress returns completed, total, percent done and elapsed time
func (pt *ProgressTracker) GetProgress() (int, int, float64, time.Duration) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	elapsed := time.Since(pt.startTime)
	progress := 0.0
	if pt.total > 0 {
		progress = float64(pt.completed) / float64(pt.total) * 100
	}
	return pt.completed, pt.total, progress, elapsed
}

// EstimateTimeRemaining estimates the remaining time based on current progress
func (pt *ProgressTracker) EstimateTimeRemaining() time.Duration {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	if pt.completed == 0 {
		return 0
	}

	elapsed := time.Since(pt.startTime)
	avgTimePerItem := elapsed / time.Duration(pt.completed)
	return avgTimePerItem * time.Duration(pt.total-pt.completed)
}
