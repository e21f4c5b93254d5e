package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/internal/candles"
	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/logger"
	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
	"github.com/ducminhle1904/paper-exchange/internal/strategy"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const runnerComponent = "runner"

// statusEvery is how many base candles pass between portfolio status lines
const statusEvery = 1440

// RunnerConfig describes one backtest run
type RunnerConfig struct {
	Symbol   string
	Asset    string
	Currency string

	Start time.Time
	End   time.Time

	// CandleSize is the number of base candles per strategy candle
	CandleSize int
	Version    types.SchemaVersion
}

// Validate reports every missing or invalid field
func (c RunnerConfig) Validate() error {
	var problems []string
	if c.Symbol == "" {
		problems = append(problems, "symbol is required")
	}
	if c.Asset == "" || c.Currency == "" {
		problems = append(problems, "asset and currency are required")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		problems = append(problems, "start and end are required")
	} else if c.End.Before(c.Start) {
		problems = append(problems, "end is before start")
	}
	if c.CandleSize < 0 {
		problems = append(problems, fmt.Sprintf("candle size must be positive, got %d", c.CandleSize))
	}
	if len(problems) > 0 {
		return apperrors.NewConfigurationError(runnerComponent, "Validate", strings.Join(problems, "; "))
	}
	return nil
}

// Runner replays stored candles through the engine and a strategy. Each base
// candle is matched first; the strategy then sees the merged candle it
// completes, so orders it places can only fill from the next candle on.
type Runner struct {
	cfg      RunnerConfig
	engine   *Engine
	strategy strategy.Strategy
	reader   data.CandleReader
	logger   *logger.Logger
}

// NewRunner creates a runner. log is optional.
func NewRunner(cfg RunnerConfig, engine *Engine, strat strategy.Strategy, reader data.CandleReader, log *logger.Logger) (*Runner, error) {
	if cfg.CandleSize == 0 {
		cfg.CandleSize = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil || strat == nil || reader == nil {
		return nil, apperrors.NewConfigurationError(runnerComponent, "NewRunner", "engine, strategy and reader are required")
	}
	return &Runner{cfg: cfg, engine: engine, strategy: strat, reader: reader, logger: log}, nil
}

// Run replays the configured range
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	batcher, err := candles.NewBatcher(r.cfg.CandleSize, r.cfg.Version)
	if err != nil {
		return nil, err
	}

	ex := &meteredExchange{Engine: r.engine, symbol: r.cfg.Symbol}
	results := &Results{
		RunID:    uuid.NewString(),
		Strategy: r.strategy.GetName(),
		Symbol:   r.cfg.Symbol,
	}

	r.logger.Info("Backtest %s started: %s on %s, %s -> %s, candle size %d",
		results.RunID, results.Strategy, r.cfg.Symbol,
		r.cfg.Start.Format(time.RFC3339), r.cfg.End.Format(time.RFC3339), r.cfg.CandleSize)

	var last types.Candle
	err = r.reader.ReadRange(ctx, r.cfg.Start, r.cfg.End, func(c types.Candle) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if results.Candles == 0 {
			results.Start = c.Start
			results.InitialValue = r.engine.Balances().Value(decimal.NewFromFloat(c.Open)).InexactFloat64()
		}
		results.Candles++
		last = c

		fills, err := r.engine.OnCandle(c)
		if err != nil {
			return err
		}
		for _, f := range fills {
			monitoring.RecordFill(r.cfg.Symbol, string(f.Side), string(f.Status), f.Amount.InexactFloat64())
			r.logger.LogFill(f)
		}

		if merged, ok := batcher.Write(c); ok {
			results.MergedCandles++
			if err := r.strategy.OnCandle(merged, ex); err != nil {
				monitoring.RecordError("strategy")
				return fmt.Errorf("strategy %s at %s: %w", results.Strategy, merged.Start.Format(time.RFC3339), err)
			}
		}

		results.EquityCurve = append(results.EquityCurve, r.equityAt(c))
		if results.Candles%statusEvery == 0 {
			r.logStatus(c)
		}
		return nil
	})
	if err != nil {
		r.logger.LogError("Backtest aborted", err)
		return nil, err
	}
	if results.Candles == 0 {
		return nil, apperrors.NewNotFoundError(runnerComponent, "Run",
			fmt.Sprintf("no candles between %s and %s", r.cfg.Start.Format(time.RFC3339), r.cfg.End.Format(time.RFC3339)))
	}

	r.finish(results, last, ex)
	r.logStatus(last)
	r.logger.Info("Backtest %s finished: %d candles, %d fills, return %.2f%%",
		results.RunID, results.Candles, len(results.Trades), results.TotalReturn*100)
	return results, nil
}

func (r *Runner) equityAt(c types.Candle) EquityPoint {
	price := decimal.NewFromFloat(c.Close)
	balances := r.engine.Balances()
	equity := balances.Value(price)

	point := EquityPoint{
		Timestamp: c.Start,
		Price:     c.Close,
		Equity:    equity.InexactFloat64(),
	}
	if equity.IsPositive() {
		point.Exposure = balances.Asset().Mul(price).Div(equity).InexactFloat64()
	}
	return point
}

func (r *Runner) finish(results *Results, last types.Candle, ex *meteredExchange) {
	results.End = last.Start
	results.Balances = r.engine.Balances()
	results.FinalValue = results.Balances.Value(decimal.NewFromFloat(last.Close)).InexactFloat64()
	if results.InitialValue > 0 {
		results.TotalReturn = (results.FinalValue - results.InitialValue) / results.InitialValue
	}

	results.Trades = r.engine.TradeHistory()
	results.FeesPaid = decimal.Zero
	for _, t := range results.Trades {
		results.FeesPaid = results.FeesPaid.Add(t.Fee)
	}
	results.Portfolio = r.engine.Portfolio(r.cfg.Asset, r.cfg.Currency)
	results.OrdersPlaced = ex.placed
	results.OrdersCanceled = ex.canceled

	results.UpdateMetrics()
}

func (r *Runner) logStatus(c types.Candle) {
	balances := r.engine.Portfolio(r.cfg.Asset, r.cfg.Currency)
	for _, b := range balances {
		monitoring.UpdateBalance(b.Asset, b.Free, b.Locked)
	}
	monitoring.UpdatePrice(r.cfg.Symbol, c.Close)

	value := r.engine.Balances().Value(decimal.NewFromFloat(c.Close)).InexactFloat64()
	r.logger.LogPortfolio(c.Start, c.Close, balances, value)
}

// meteredExchange is the strategy's view of the engine; it counts order actions
type meteredExchange struct {
	*Engine
	symbol   string
	placed   int
	canceled int
}

var _ strategy.Exchange = (*meteredExchange)(nil)

func (m *meteredExchange) PlaceOrder(side types.OrderSide, kind types.OrderType, amount, price decimal.Decimal) (int64, error) {
	id, err := m.Engine.PlaceOrder(side, kind, amount, price)
	if err != nil {
		monitoring.RecordOrder(m.symbol, string(side), "rejected")
		return 0, err
	}
	m.placed++
	monitoring.RecordOrder(m.symbol, string(side), "placed")
	return id, nil
}

func (m *meteredExchange) CancelOrder(id int64) error {
	order, err := m.Engine.Order(id)
	if err != nil {
		return err
	}
	if err := m.Engine.CancelOrder(id); err != nil {
		return err
	}
	m.canceled++
	monitoring.RecordOrder(m.symbol, string(order.Side), "canceled")
	return nil
}
