package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const csvComponent = "csv_provider"

// CSVProvider loads candle and trade files
type CSVProvider struct {
	format      CSVColumnMapping
	tradeFormat TradeColumnMapping
}

// NewCSVProvider creates a new CSV data provider with default formats
func NewCSVProvider() *CSVProvider {
	return &CSVProvider{
		format:      DefaultCSVFormat,
		tradeFormat: DefaultTradeFormat,
	}
}

// NewCSVProviderWithFormat creates a new CSV data provider with a custom candle format
func NewCSVProviderWithFormat(format CSVColumnMapping) *CSVProvider {
	return &CSVProvider{
		format:      format,
		tradeFormat: DefaultTradeFormat,
	}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// parseTime accepts unix seconds or the configured layout, always in UTC
func parseTime(value, layout string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		if t, rfcErr := time.Parse(time.RFC3339, value); rfcErr == nil {
			return t.UTC(), nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func optionalFloat(record []string, col int) (float64, bool, error) {
	if col < 0 || col >= len(record) || strings.TrimSpace(record[col]) == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
	return v, err == nil, err
}

func optionalInt(record []string, col int) (int, bool, error) {
	if col < 0 || col >= len(record) || strings.TrimSpace(record[col]) == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(record[col]))
	return v, err == nil, err
}

// LoadCandles loads one-minute candles from a CSV file. Rows that cannot be
// parsed or carry impossible prices are logged and skipped. A row with a
// buy volume column becomes a version 2 candle.
func (p *CSVProvider) LoadCandles(filename string) ([]types.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, apperrors.NewDataError(csvComponent, "LoadCandles", err).WithContext("file", filename)
	}
	defer file.Close()

	format := p.format
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, apperrors.NewDataError(csvComponent, "LoadCandles", err).WithContext("file", filename)
	}

	var candles []types.Candle

	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, apperrors.NewDataError(csvComponent, "LoadCandles",
				fmt.Errorf("error reading CSV at line %d: %w", lineNum, err))
		}
		lineNum++

		if len(record) < format.MinColumns {
			log.Printf("⚠️ Insufficient columns at line %d (expected %d, got %d), skipping", lineNum, format.MinColumns, len(record))
			continue
		}

		start, err := parseTime(record[format.TimestampCol], format.DateFormat)
		if err != nil {
			log.Printf("⚠️ Invalid timestamp '%s' at line %d, skipping: %v", record[format.TimestampCol], lineNum, err)
			continue
		}

		var prices [5]float64
		cols := [5]int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
		names := [5]string{"open", "high", "low", "close", "volume"}
		valid := true
		for i, col := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				log.Printf("⚠️ Invalid %s '%s' at line %d, skipping: %v", names[i], record[col], lineNum, err)
				valid = false
				break
			}
			prices[i] = v
		}
		if !valid {
			continue
		}

		c := types.Candle{
			Start:  start.Truncate(time.Minute),
			Open:   prices[0],
			High:   prices[1],
			Low:    prices[2],
			Close:  prices[3],
			Volume: prices[4],
		}
		c.End = c.Start.Add(time.Minute)

		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume < 0 {
			log.Printf("⚠️ Invalid price data (negative or zero) at line %d, skipping", lineNum)
			continue
		}
		if c.High < c.Open || c.High < c.Close || c.High < c.Low {
			log.Printf("⚠️ High price is lower than other prices at line %d, skipping", lineNum)
			continue
		}
		if c.Low > c.Open || c.Low > c.Close {
			log.Printf("⚠️ Low price is higher than other prices at line %d, skipping", lineNum)
			continue
		}

		vwp, ok, err := optionalFloat(record, format.VWPCol)
		if err != nil {
			log.Printf("⚠️ Invalid vwp at line %d, skipping: %v", lineNum, err)
			continue
		}
		if ok {
			c.VWP = vwp
		} else if c.Volume > 0 {
			// klines carry no vwp; the typical price stands in for it
			c.VWP = (c.High + c.Low + c.Close) / 3
		}

		if c.Trades, _, err = optionalInt(record, format.TradesCol); err != nil {
			log.Printf("⚠️ Invalid trades at line %d, skipping: %v", lineNum, err)
			continue
		}

		buyVolume, hasFlow, err := optionalFloat(record, format.BuyVolumeCol)
		if err != nil {
			log.Printf("⚠️ Invalid buy volume at line %d, skipping: %v", lineNum, err)
			continue
		}
		if hasFlow {
			buyTrades, _, errTrades := optionalInt(record, format.BuyTradesCol)
			lag, _, errLag := optionalInt(record, format.LagCol)
			if errTrades != nil || errLag != nil {
				log.Printf("⚠️ Invalid order flow columns at line %d, skipping", lineNum)
				continue
			}
			if buyVolume < 0 || buyVolume > c.Volume {
				log.Printf("⚠️ Buy volume outside [0, volume] at line %d, skipping", lineNum)
				continue
			}
			flow := types.NewOrderFlow(lag)
			flow.BuyVolume = buyVolume
			flow.BuyTrades = buyTrades
			c.OrderFlow = flow
		}

		candles = append(candles, c)
	}

	return candles, nil
}

// LoadTrades loads raw trades from a CSV file in file order
func (p *CSVProvider) LoadTrades(filename string) ([]types.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, apperrors.NewDataError(csvComponent, "LoadTrades", err).WithContext("file", filename)
	}
	defer file.Close()

	format := p.tradeFormat
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, apperrors.NewDataError(csvComponent, "LoadTrades", err).WithContext("file", filename)
	}

	var trades []types.Trade
	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, apperrors.NewDataError(csvComponent, "LoadTrades",
				fmt.Errorf("error reading CSV at line %d: %w", lineNum, err))
		}
		lineNum++

		if len(record) < format.MinColumns {
			log.Printf("⚠️ Insufficient columns at line %d (expected %d, got %d), skipping", lineNum, format.MinColumns, len(record))
			continue
		}

		ts, err := parseTime(record[format.TimestampCol], format.DateFormat)
		if err != nil {
			log.Printf("⚠️ Invalid timestamp '%s' at line %d, skipping: %v", record[format.TimestampCol], lineNum, err)
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[format.PriceCol]), 64)
		if err != nil || price <= 0 {
			log.Printf("⚠️ Invalid price '%s' at line %d, skipping", record[format.PriceCol], lineNum)
			continue
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(record[format.AmountCol]), 64)
		if err != nil || amount <= 0 {
			log.Printf("⚠️ Invalid amount '%s' at line %d, skipping", record[format.AmountCol], lineNum)
			continue
		}

		trades = append(trades, types.Trade{
			ID:        strings.TrimSpace(record[format.IDCol]),
			Timestamp: ts,
			Price:     price,
			Amount:    amount,
		})
	}

	return trades, nil
}

// ValidateCandles checks price sanity and strictly increasing starts. Missing
// minutes are not an error; OpenCandleReader fills them.
func (p *CSVProvider) ValidateCandles(candles []types.Candle) error {
	if len(candles) == 0 {
		return apperrors.NewValidationError(csvComponent, "ValidateCandles", "no data provided")
	}

	for i, c := range candles {
		if c.High < c.Low {
			return apperrors.NewValidationError(csvComponent, "ValidateCandles",
				fmt.Sprintf("high (%.4f) cannot be less than low (%.4f) at index %d", c.High, c.Low, i))
		}
		if c.VWP != c.VWP {
			return apperrors.NewValidationError(csvComponent, "ValidateCandles",
				fmt.Sprintf("vwp is NaN at index %d", i))
		}
	}
	return ValidateTimeSequence(candles)
}

// WriteCandlesCSV writes candles in DefaultCSVFormat. Order flow columns are
// left empty for version 1 candles.
func WriteCandlesCSV(filename string, candles []types.Candle) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.NewStorageError(csvComponent, "WriteCandlesCSV", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return apperrors.NewStorageError(csvComponent, "WriteCandlesCSV", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"timestamp", "open", "high", "low", "close", "volume", "vwp", "trades", "buy_volume", "buy_trades", "lag"}
	if err := w.Write(header); err != nil {
		return apperrors.NewStorageError(csvComponent, "WriteCandlesCSV", err)
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, c := range candles {
		row := []string{
			c.Start.UTC().Format(DefaultCSVFormat.DateFormat),
			f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume), f(c.VWP),
			strconv.Itoa(c.Trades),
			"", "", "",
		}
		if c.OrderFlow != nil {
			row[8] = f(c.BuyVolume)
			row[9] = strconv.Itoa(c.BuyTrades)
			row[10] = strconv.Itoa(c.Lag)
		}
		if err := w.Write(row); err != nil {
			return apperrors.NewStorageError(csvComponent, "WriteCandlesCSV", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewStorageError(csvComponent, "WriteCandlesCSV", err)
	}
	return nil
}

// CSVCandleReader serves a loaded candle file as a CandleReader
type CSVCandleReader struct {
	candles []types.Candle
}

// NewCSVCandleReader wraps candles already sorted by start
func NewCSVCandleReader(candles []types.Candle) *CSVCandleReader {
	return &CSVCandleReader{candles: candles}
}

// ReadRange implements CandleReader
func (r *CSVCandleReader) ReadRange(ctx context.Context, from, to time.Time, fn func(types.Candle) error) error {
	for _, c := range FilterByDateRange(r.candles, from, to) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// Bounds returns the first and last start held. ok is false when empty.
func (r *CSVCandleReader) Bounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	if len(r.candles) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return r.candles[0].Start, r.candles[len(r.candles)-1].Start, true, nil
}

// Len returns the number of candles held
func (r *CSVCandleReader) Len() int {
	return len(r.candles)
}
