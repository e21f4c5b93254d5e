package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// TradeCSVHeader is the column layout of the trade history CSV
var TradeCSVHeader = []string{
	"Time", "Order_ID", "Side", "Type", "Price", "Amount", "Cost", "Fee", "Status",
}

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteTradesCSV writes the fill history, one row per fill, followed by a
// summary row. A path ending in .xlsx is written as a workbook instead.
func (r *DefaultCSVReporter) WriteTradesCSV(results *backtest.Results, path string) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return WriteTradesXLSX(results, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(TradeCSVHeader); err != nil {
		return err
	}

	var bought, sold, fees decimal.Decimal
	for _, t := range results.Trades {
		cost := t.Cost()
		fees = fees.Add(t.Fee)
		if t.Side == types.OrderSideLong {
			bought = bought.Add(t.Amount)
		} else {
			sold = sold.Add(t.Amount)
		}

		row := []string{
			t.Time.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatInt(t.OrderID, 10),
			string(t.Side),
			string(t.Type),
			t.Price.String(),
			t.Amount.String(),
			cost.String(),
			t.Fee.String(),
			string(t.Status),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	summary := fmt.Sprintf("SUMMARY: fills=%d; bought=%s; sold=%s; fees=%s; return=%.2f%%",
		len(results.Trades), bought, sold, fees, results.TotalReturn*100)
	summaryRow := make([]string, len(TradeCSVHeader))
	summaryRow[len(summaryRow)-1] = summary
	if err := w.Write(summaryRow); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

// WriteTradesCSV writes results with the default CSV reporter
func WriteTradesCSV(results *backtest.Results, path string) error {
	return NewDefaultCSVReporter().WriteTradesCSV(results, path)
}
