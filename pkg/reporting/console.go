package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// DefaultMaxTradeRows is how many of the most recent fills the console shows
const DefaultMaxTradeRows = 20

// DefaultConsoleReporter implements console output functionality
type DefaultConsoleReporter struct {
	out          io.Writer
	maxTradeRows int
}

// NewDefaultConsoleReporter creates a console reporter writing to stdout
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return NewConsoleReporter(os.Stdout, DefaultMaxTradeRows)
}

// NewConsoleReporter creates a console reporter writing to out. maxTradeRows
// of zero hides the fill table.
func NewConsoleReporter(out io.Writer, maxTradeRows int) *DefaultConsoleReporter {
	return &DefaultConsoleReporter{out: out, maxTradeRows: maxTradeRows}
}

func (r *DefaultConsoleReporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// OutputResults prints the summary, the final portfolio and the latest fills
func (r *DefaultConsoleReporter) OutputResults(results *backtest.Results) {
	partial, closed := results.FillCounts()

	t := r.newTable("BACKTEST RESULTS")
	t.AppendRows([]table.Row{
		{"🆔 Run", results.RunID},
		{"🧠 Strategy", results.Strategy},
		{"📊 Symbol", results.Symbol},
		{"📅 Range", fmt.Sprintf("%s → %s", results.Start.Format("2006-01-02 15:04"), results.End.Format("2006-01-02 15:04"))},
		{"🕯️ Candles", fmt.Sprintf("%d base / %d merged", results.Candles, results.MergedCandles)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💰 Initial Value", fmt.Sprintf("%.2f", results.InitialValue)},
		{"💰 Final Value", fmt.Sprintf("%.2f", results.FinalValue)},
		{"📈 Total Return", formatPercent(results.TotalReturn)},
		{"📈 Annualized Return", formatPercent(results.AnnualizedReturn)},
		{"📉 Max Drawdown", formatPercent(results.MaxDrawdown)},
		{"📊 Sharpe Ratio", fmt.Sprintf("%.2f", results.SharpeRatio)},
		{"📊 Sortino Ratio", fmt.Sprintf("%.2f", results.SortinoRatio)},
		{"📊 Calmar Ratio", fmt.Sprintf("%.2f", results.CalmarRatio)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"📝 Orders", fmt.Sprintf("%d placed / %d canceled", results.OrdersPlaced, results.OrdersCanceled)},
		{"🔄 Fills", fmt.Sprintf("%d (%d partial)", partial+closed, partial)},
		{"💸 Fees Paid", results.FeesPaid.StringFixed(8)},
		{"🎯 Max Exposure", formatPercent(results.MaxExposure)},
		{"🎯 Avg Exposure", formatPercent(results.AvgExposure)},
		{"🔄 Total Turnover", fmt.Sprintf("%.2fx", results.TotalTurnover)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, Align: text.AlignRight},
	})
	t.Render()

	r.outputPortfolio(results)
	r.outputTrades(results)
	fmt.Fprintln(r.out)
}

func (r *DefaultConsoleReporter) outputPortfolio(results *backtest.Results) {
	if len(results.Portfolio) == 0 {
		return
	}
	t := r.newTable("PORTFOLIO")
	t.AppendHeader(table.Row{"Asset", "Free", "Locked", "Total"})
	for _, b := range results.Portfolio {
		t.AppendRow(table.Row{b.Asset, formatAmount(b.Free), formatAmount(b.Locked), formatAmount(b.Free + b.Locked)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func (r *DefaultConsoleReporter) outputTrades(results *backtest.Results) {
	if r.maxTradeRows <= 0 || len(results.Trades) == 0 {
		return
	}

	trades := results.Trades
	if len(trades) > r.maxTradeRows {
		trades = trades[len(trades)-r.maxTradeRows:]
	}

	t := r.newTable(fmt.Sprintf("FILLS (last %d of %d)", len(trades), len(results.Trades)))
	t.AppendHeader(table.Row{"Time", "Order", "Side", "Type", "Price", "Amount", "Fee", "Status"})
	for _, tr := range trades {
		side := text.FgGreen.Sprint(tr.Side)
		if tr.Side == types.OrderSideShort {
			side = text.FgRed.Sprint(tr.Side)
		}
		t.AppendRow(table.Row{
			tr.Time.Format("2006-01-02 15:04"),
			tr.OrderID,
			side,
			tr.Type,
			tr.Price.String(),
			tr.Amount.String(),
			tr.Fee.String(),
			tr.Status,
		})
	}
	t.Render()
}

// OutputSweep prints one row per sweep job and the winner
func (r *DefaultConsoleReporter) OutputSweep(results []backtest.BacktestResult, best *backtest.OptimizationResult) {
	t := r.newTable("PARAMETER SWEEP")
	t.AppendHeader(table.Row{"#", "Job", "Return", "Max DD", "Sharpe", "Fills", "Fees", "Took", "Error"})
	for _, res := range results {
		if res.Error != nil || res.Results == nil {
			t.AppendRow(table.Row{res.Index, res.ID, "-", "-", "-", "-", "-", res.Duration.Round(time.Millisecond), text.FgRed.Sprint(res.Error)})
			continue
		}
		row := table.Row{
			res.Index,
			res.ID,
			formatPercent(res.Results.TotalReturn),
			formatPercent(res.Results.MaxDrawdown),
			fmt.Sprintf("%.2f", res.Results.SharpeRatio),
			len(res.Results.Trades),
			res.Results.FeesPaid.StringFixed(4),
			res.Duration.Round(time.Millisecond),
			"",
		}
		if best != nil && best.Index == res.Index {
			row[1] = text.Bold.Sprint("⭐ " + res.ID)
		}
		t.AppendRow(row)
	}
	t.Render()

	if best != nil {
		fmt.Fprintf(r.out, "🏆 Best: %s (return %s, drawdown %s)\n\n", best.ID, formatPercent(best.Return), formatPercent(best.MaxDrawdown))
	} else {
		fmt.Fprintln(r.out, "❌ No sweep job succeeded")
	}
}

// OutputConsole prints results to stdout with the default reporter
func OutputConsole(results *backtest.Results) {
	NewDefaultConsoleReporter().OutputResults(results)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.8f", v)
}
