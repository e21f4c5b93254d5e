package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const (
	tradesSheet  = "Trades"
	summarySheet = "Summary"
	equitySheet  = "Equity"

	// maxEquityRows caps the equity sheet; longer curves are sampled evenly
	maxEquityRows = 10000
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteTradesXLSX writes a workbook with the fills, a summary and the equity curve
func (r *DefaultExcelReporter) WriteTradesXLSX(results *backtest.Results, path string) error {
	if err := ensureParentDir(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), tradesSheet); err != nil {
		return err
	}
	for _, sheet := range []string{summarySheet, equitySheet} {
		if _, err := fx.NewSheet(sheet); err != nil {
			return err
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeTradesSheet(fx, results, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, results, styles); err != nil {
		return err
	}
	if err := r.writeEquitySheet(fx, results, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}
	amountFmt := "0.00000000"
	dateFmt := "yyyy-mm-dd hh:mm"

	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&styles.HeaderStyle, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
			Fill:      fill("2F4F4F"),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border: []excelize.Border{
				{Type: "left", Color: "000000", Style: 1},
				{Type: "right", Color: "000000", Style: 1},
				{Type: "top", Color: "000000", Style: 1},
				{Type: "bottom", Color: "000000", Style: 1},
			},
		}},
		{&styles.CurrencyStyle, &excelize.Style{NumFmt: 4, Alignment: &excelize.Alignment{Horizontal: "right"}, Border: border}},
		{&styles.AmountStyle, &excelize.Style{CustomNumFmt: &amountFmt, Alignment: &excelize.Alignment{Horizontal: "right"}, Border: border}},
		{&styles.PercentStyle, &excelize.Style{NumFmt: 10, Alignment: &excelize.Alignment{Horizontal: "right"}, Border: border}},
		{&styles.BaseStyle, &excelize.Style{Alignment: &excelize.Alignment{Horizontal: "left"}, Border: border}},
		{&styles.LongStyle, &excelize.Style{Font: &excelize.Font{Color: "006100"}, Fill: fill("C6EFCE"), Border: border}},
		{&styles.ShortStyle, &excelize.Style{Font: &excelize.Font{Color: "9C0006"}, Fill: fill("FFC7CE"), Border: border}},
		{&styles.SummaryStyle, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: fill("F2F2F2"), Border: border}},
		{&styles.DateTimeStyle, &excelize.Style{CustomNumFmt: &dateFmt, Border: border}},
	}
	for _, d := range defs {
		id, err := fx.NewStyle(d.style)
		if err != nil {
			return styles, err
		}
		*d.dst = id
	}
	return styles, nil
}

func writeHeader(fx *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return fx.SetCellStyle(sheet, "A1", last, style)
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, results *backtest.Results, styles ExcelStyles) error {
	widths := map[string]float64{"A": 18, "B": 10, "C": 8, "D": 8, "E": 14, "F": 16, "G": 14, "H": 14, "I": 10}
	for col, w := range widths {
		if err := fx.SetColWidth(tradesSheet, col, col, w); err != nil {
			return err
		}
	}
	if err := writeHeader(fx, tradesSheet, TradeCSVHeader, styles.HeaderStyle); err != nil {
		return err
	}

	for i, t := range results.Trades {
		row := i + 2
		price, _ := t.Price.Float64()
		amount, _ := t.Amount.Float64()
		cost, _ := t.Cost().Float64()
		fee, _ := t.Fee.Float64()

		values := []interface{}{t.Time.UTC(), t.OrderID, string(t.Side), string(t.Type), price, amount, cost, fee, string(t.Status)}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := fx.SetSheetRow(tradesSheet, cell, &values); err != nil {
			return err
		}

		sideStyle := styles.LongStyle
		if t.Side == types.OrderSideShort {
			sideStyle = styles.ShortStyle
		}
		rowStyles := []int{styles.DateTimeStyle, styles.BaseStyle, sideStyle, styles.BaseStyle,
			styles.CurrencyStyle, styles.AmountStyle, styles.CurrencyStyle, styles.AmountStyle, styles.BaseStyle}
		for col, style := range rowStyles {
			c, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := fx.SetCellStyle(tradesSheet, c, c, style); err != nil {
				return err
			}
		}
	}

	if len(results.Trades) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(TradeCSVHeader), len(results.Trades)+1)
		if err := fx.AutoFilter(tradesSheet, "A1:"+last, nil); err != nil {
			return err
		}
	}
	return fx.SetPanes(tradesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, results *backtest.Results, styles ExcelStyles) error {
	if err := fx.SetColWidth(summarySheet, "A", "A", 22); err != nil {
		return err
	}
	if err := fx.SetColWidth(summarySheet, "B", "B", 40); err != nil {
		return err
	}
	if err := writeHeader(fx, summarySheet, []string{"Metric", "Value"}, styles.HeaderStyle); err != nil {
		return err
	}

	partial, closed := results.FillCounts()
	fees, _ := results.FeesPaid.Float64()
	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Run ID", results.RunID, styles.BaseStyle},
		{"Strategy", results.Strategy, styles.BaseStyle},
		{"Symbol", results.Symbol, styles.BaseStyle},
		{"Start", results.Start.UTC(), styles.DateTimeStyle},
		{"End", results.End.UTC(), styles.DateTimeStyle},
		{"Candles", results.Candles, styles.BaseStyle},
		{"Merged Candles", results.MergedCandles, styles.BaseStyle},
		{"Initial Value", results.InitialValue, styles.CurrencyStyle},
		{"Final Value", results.FinalValue, styles.CurrencyStyle},
		{"Total Return", results.TotalReturn, styles.PercentStyle},
		{"Annualized Return", results.AnnualizedReturn, styles.PercentStyle},
		{"Max Drawdown", results.MaxDrawdown, styles.PercentStyle},
		{"Sharpe Ratio", results.SharpeRatio, styles.CurrencyStyle},
		{"Sortino Ratio", results.SortinoRatio, styles.CurrencyStyle},
		{"Calmar Ratio", results.CalmarRatio, styles.CurrencyStyle},
		{"Orders Placed", results.OrdersPlaced, styles.BaseStyle},
		{"Orders Canceled", results.OrdersCanceled, styles.BaseStyle},
		{"Fills", partial + closed, styles.BaseStyle},
		{"Partial Fills", partial, styles.BaseStyle},
		{"Fees Paid", fees, styles.AmountStyle},
		{"Max Exposure", results.MaxExposure, styles.PercentStyle},
		{"Avg Exposure", results.AvgExposure, styles.PercentStyle},
		{"Total Turnover", results.TotalTurnover, styles.CurrencyStyle},
	}
	for _, b := range results.Portfolio {
		rows = append(rows, struct {
			label string
			value interface{}
			style int
		}{fmt.Sprintf("Balance %s", b.Asset), b.Free + b.Locked, styles.AmountStyle})
	}

	for i, row := range rows {
		n := i + 2
		label, _ := excelize.CoordinatesToCellName(1, n)
		value, _ := excelize.CoordinatesToCellName(2, n)
		if err := fx.SetCellValue(summarySheet, label, row.label); err != nil {
			return err
		}
		if err := fx.SetCellValue(summarySheet, value, row.value); err != nil {
			return err
		}
		if err := fx.SetCellStyle(summarySheet, label, label, styles.SummaryStyle); err != nil {
			return err
		}
		if err := fx.SetCellStyle(summarySheet, value, value, row.style); err != nil {
			return err
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeEquitySheet(fx *excelize.File, results *backtest.Results, styles ExcelStyles) error {
	if err := writeHeader(fx, equitySheet, []string{"Time", "Price", "Equity", "Exposure"}, styles.HeaderStyle); err != nil {
		return err
	}
	if err := fx.SetColWidth(equitySheet, "A", "D", 18); err != nil {
		return err
	}

	curve := sampleEquity(results.EquityCurve, maxEquityRows)
	for i, p := range curve {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{p.Timestamp.UTC(), p.Price, p.Equity, p.Exposure}
		if err := fx.SetSheetRow(equitySheet, cell, &values); err != nil {
			return err
		}
	}
	if len(curve) == 0 {
		return nil
	}

	last := len(curve) + 1
	columns := []struct {
		col   string
		style int
	}{
		{"A", styles.DateTimeStyle},
		{"B", styles.CurrencyStyle},
		{"C", styles.CurrencyStyle},
		{"D", styles.PercentStyle},
	}
	for _, c := range columns {
		if err := fx.SetCellStyle(equitySheet, fmt.Sprintf("%s2", c.col), fmt.Sprintf("%s%d", c.col, last), c.style); err != nil {
			return err
		}
	}
	return nil
}

// sampleEquity keeps at most limit points, always including the last one
func sampleEquity(curve []backtest.EquityPoint, limit int) []backtest.EquityPoint {
	if len(curve) <= limit || limit < 2 {
		return curve
	}
	step := (len(curve) + limit - 2) / (limit - 1)
	out := make([]backtest.EquityPoint, 0, limit)
	for i := 0; i < len(curve)-1; i += step {
		out = append(out, curve[i])
	}
	return append(out, curve[len(curve)-1])
}

// WriteTradesXLSX writes results with the default Excel reporter
func WriteTradesXLSX(results *backtest.Results, path string) error {
	return NewDefaultExcelReporter().WriteTradesXLSX(results, path)
}
