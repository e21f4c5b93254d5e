package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/internal/portfolio"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// EquityPoint is the portfolio value at the close of one base candle
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Equity    float64   `json:"equity"`
	// Exposure is the share of equity held in the asset
	Exposure float64 `json:"exposure"`
}

// Results holds the outcome of one backtest run
type Results struct {
	RunID    string    `json:"run_id"`
	Strategy string    `json:"strategy"`
	Symbol   string    `json:"symbol"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	Candles       int `json:"candles"`
	MergedCandles int `json:"merged_candles"`

	InitialValue float64 `json:"initial_value"`
	FinalValue   float64 `json:"final_value"`
	TotalReturn  float64 `json:"total_return"`
	MaxDrawdown  float64 `json:"max_drawdown"`

	OrdersPlaced   int             `json:"orders_placed"`
	OrdersCanceled int             `json:"orders_canceled"`
	FeesPaid       decimal.Decimal `json:"fees_paid"`

	Trades      []types.FilledTrade `json:"trades"`
	Balances    portfolio.Balances  `json:"balances"`
	Portfolio   []types.Balance     `json:"portfolio"`
	EquityCurve []EquityPoint       `json:"-"`

	// Derived from the equity curve by UpdateMetrics
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxExposure      float64 `json:"max_exposure"`
	AvgExposure      float64 `json:"avg_exposure"`
	TotalTurnover    float64 `json:"total_turnover"`
}

// FillCounts returns the number of partial and closing fills
func (r *Results) FillCounts() (partial, closed int) {
	for _, t := range r.Trades {
		if t.Status == types.OrderStatusPartial {
			partial++
		} else {
			closed++
		}
	}
	return partial, closed
}

// PrintSummary prints a short plain text summary
func (r *Results) PrintSummary() {
	partial, closed := r.FillCounts()
	fmt.Printf("Run: %s (%s)\n", r.RunID, r.Strategy)
	fmt.Printf("Range: %s -> %s (%d candles)\n", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.Candles)
	fmt.Printf("Initial Value: %.2f\n", r.InitialValue)
	fmt.Printf("Final Value: %.2f\n", r.FinalValue)
	fmt.Printf("Total Return: %.2f%%\n", r.TotalReturn*100)
	fmt.Printf("Max Drawdown: %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("Fills: %d (%d partial) | Fees: %s\n", partial+closed, partial, r.FeesPaid.StringFixed(8))
}
