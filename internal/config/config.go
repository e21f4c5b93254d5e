package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/paper-exchange/internal/backtest"
	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/data"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const configComponent = "config"

// Config holds the settings shared by the candle builder and the backtester
type Config struct {
	Symbol   string
	Asset    string
	Currency string

	CandleVersion types.SchemaVersion
	CandleSize    int

	FeeRate         decimal.Decimal
	InitialAsset    decimal.Decimal
	InitialCurrency decimal.Decimal
	BuyVolumeRatio  float64

	Start time.Time
	End   time.Time

	DBPath string
	Sink   SinkConfig

	MetricsPort int
	LogDir      string
}

// SinkConfig controls the asynchronous candle writer
type SinkConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Load reads envFile (if it exists) into the process environment, builds the
// configuration from the environment and applies jsonFile on top of it.
// Either path may be empty. The result is not validated.
func Load(envFile, jsonFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, apperrors.WrapError(err, apperrors.ErrorCategoryConfiguration, configComponent, "Load").
					WithContext("env_file", envFile)
			}
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if jsonFile != "" {
		if err := cfg.applyFile(jsonFile); err != nil {
			return nil, err
		}
	}

	cfg.fillMarket()
	return cfg, nil
}

// FromEnv builds the configuration from environment variables alone
func FromEnv() (*Config, error) {
	var problems []string
	collect := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	cfg := &Config{
		Symbol:   strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		Asset:    strings.ToUpper(getEnv("ASSET", "")),
		Currency: strings.ToUpper(getEnv("CURRENCY", "")),
		DBPath:   getEnv("DB_PATH", "data/candles.db"),
		LogDir:   getEnv("LOG_DIR", "logs"),
	}

	version, err := getEnvInt("CANDLE_VERSION", int(types.SchemaV2))
	collect(err)
	cfg.CandleVersion = types.SchemaVersion(version)

	cfg.CandleSize, err = getEnvInt("CANDLE_SIZE", 1)
	collect(err)
	cfg.FeeRate, err = getEnvDecimal("FEE_RATE", decimal.RequireFromString("0.001"))
	collect(err)
	cfg.InitialAsset, err = getEnvDecimal("INITIAL_ASSET", decimal.Zero)
	collect(err)
	cfg.InitialCurrency, err = getEnvDecimal("INITIAL_CURRENCY", decimal.Zero)
	collect(err)
	cfg.BuyVolumeRatio, err = getEnvFloat("BUY_VOLUME_RATIO", backtest.DefaultBuyVolumeRatio)
	collect(err)
	cfg.Start, err = getEnvTime("BACKTEST_START")
	collect(err)
	cfg.End, err = getEnvTime("BACKTEST_END")
	collect(err)
	cfg.Sink.BufferSize, err = getEnvInt("SINK_BUFFER_SIZE", 4096)
	collect(err)
	cfg.Sink.BatchSize, err = getEnvInt("SINK_BATCH_SIZE", 500)
	collect(err)
	cfg.Sink.FlushInterval, err = getEnvDuration("SINK_FLUSH_INTERVAL", time.Second)
	collect(err)
	cfg.MetricsPort, err = getEnvInt("METRICS_PORT", 9090)
	collect(err)

	if len(problems) > 0 {
		return nil, apperrors.NewConfigurationError(configComponent, "FromEnv", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// fileConfig mirrors Config for JSON; absent keys leave the current value alone
type fileConfig struct {
	Symbol          *string          `json:"symbol"`
	Asset           *string          `json:"asset"`
	Currency        *string          `json:"currency"`
	CandleVersion   *int             `json:"candle_version"`
	CandleSize      *int             `json:"candle_size"`
	FeeRate         *decimal.Decimal `json:"fee_rate"`
	InitialAsset    *decimal.Decimal `json:"initial_asset"`
	InitialCurrency *decimal.Decimal `json:"initial_currency"`
	BuyVolumeRatio  *float64         `json:"buy_volume_ratio"`
	Start           *string          `json:"start"`
	End             *string          `json:"end"`
	DBPath          *string          `json:"db_path"`
	Sink            *struct {
		BufferSize    *int    `json:"buffer_size"`
		BatchSize     *int    `json:"batch_size"`
		FlushInterval *string `json:"flush_interval"`
	} `json:"sink"`
	MetricsPort *int    `json:"metrics_port"`
	LogDir      *string `json:"log_dir"`
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryConfiguration, configComponent, "applyFile").
			WithContext("file", path)
	}

	var f fileConfig
	if err := json.Unmarshal(raw, &f); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryConfiguration, configComponent, "applyFile").
			WithContext("file", path)
	}

	setString(&c.Symbol, f.Symbol, true)
	setString(&c.Asset, f.Asset, true)
	setString(&c.Currency, f.Currency, true)
	if f.CandleVersion != nil {
		c.CandleVersion = types.SchemaVersion(*f.CandleVersion)
	}
	setInt(&c.CandleSize, f.CandleSize)
	setDecimal(&c.FeeRate, f.FeeRate)
	setDecimal(&c.InitialAsset, f.InitialAsset)
	setDecimal(&c.InitialCurrency, f.InitialCurrency)
	if f.BuyVolumeRatio != nil {
		c.BuyVolumeRatio = *f.BuyVolumeRatio
	}
	setString(&c.DBPath, f.DBPath, false)
	setInt(&c.MetricsPort, f.MetricsPort)
	setString(&c.LogDir, f.LogDir, false)

	var problems []string
	if f.Start != nil {
		if c.Start, err = ParseTime(*f.Start); err != nil {
			problems = append(problems, fmt.Sprintf("start: %v", err))
		}
	}
	if f.End != nil {
		if c.End, err = ParseTime(*f.End); err != nil {
			problems = append(problems, fmt.Sprintf("end: %v", err))
		}
	}
	if f.Sink != nil {
		setInt(&c.Sink.BufferSize, f.Sink.BufferSize)
		setInt(&c.Sink.BatchSize, f.Sink.BatchSize)
		if f.Sink.FlushInterval != nil {
			if c.Sink.FlushInterval, err = time.ParseDuration(*f.Sink.FlushInterval); err != nil {
				problems = append(problems, fmt.Sprintf("sink.flush_interval: %v", err))
			}
		}
	}

	if len(problems) > 0 {
		return apperrors.NewConfigurationError(configComponent, "applyFile",
			fmt.Sprintf("%s: %s", path, strings.Join(problems, "; ")))
	}
	return nil
}

// fillMarket derives asset and currency from the symbol when they are unset
func (c *Config) fillMarket() {
	if c.Asset != "" && c.Currency != "" {
		return
	}
	asset, currency, ok := SplitSymbol(c.Symbol)
	if !ok {
		return
	}
	if c.Asset == "" {
		c.Asset = asset
	}
	if c.Currency == "" {
		c.Currency = currency
	}
}

// Validate reports every invalid setting a backtest depends on
func (c *Config) Validate() error {
	problems := append(c.marketProblems(), c.engineProblems()...)
	problems = append(problems, c.rangeProblems()...)
	problems = append(problems, c.sinkProblems()...)
	return configError("Validate", problems)
}

// ValidateBuilder reports every invalid setting the candle builder depends on
func (c *Config) ValidateBuilder() error {
	problems := append(c.marketProblems(), c.sinkProblems()...)
	if c.DBPath == "" {
		problems = append(problems, "db path is required")
	}
	return configError("ValidateBuilder", problems)
}

func configError(op string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError(configComponent, op, strings.Join(problems, "; "))
}

func (c *Config) marketProblems() []string {
	var problems []string
	if c.Symbol == "" {
		problems = append(problems, "symbol is required")
	}
	if c.Asset == "" || c.Currency == "" {
		problems = append(problems, "asset and currency are required")
	}
	if !c.CandleVersion.Valid() {
		problems = append(problems, fmt.Sprintf("candle version must be 1 or 2, got %d", c.CandleVersion))
	}
	if c.CandleSize < 1 {
		problems = append(problems, fmt.Sprintf("candle size must be at least 1, got %d", c.CandleSize))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		problems = append(problems, fmt.Sprintf("metrics port out of range: %d", c.MetricsPort))
	}
	return problems
}

func (c *Config) engineProblems() []string {
	var problems []string
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		problems = append(problems, fmt.Sprintf("fee rate must be in [0, 1), got %s", c.FeeRate))
	}
	if c.BuyVolumeRatio < 0 || c.BuyVolumeRatio > 1 {
		problems = append(problems, fmt.Sprintf("buy volume ratio must be in [0, 1], got %g", c.BuyVolumeRatio))
	}
	if c.InitialAsset.IsNegative() || c.InitialCurrency.IsNegative() {
		problems = append(problems, "initial balances cannot be negative")
	} else if c.InitialAsset.IsZero() && c.InitialCurrency.IsZero() {
		problems = append(problems, "initial portfolio is empty: set INITIAL_ASSET or INITIAL_CURRENCY")
	}
	return problems
}

func (c *Config) rangeProblems() []string {
	switch {
	case c.Start.IsZero() || c.End.IsZero():
		return []string{"backtest range is required: set BACKTEST_START and BACKTEST_END"}
	case c.End.Before(c.Start):
		return []string{"backtest end is before start"}
	}
	return nil
}

func (c *Config) sinkProblems() []string {
	var problems []string
	if c.Sink.BufferSize <= 0 {
		problems = append(problems, "sink buffer size must be positive")
	}
	if c.Sink.BatchSize <= 0 {
		problems = append(problems, "sink batch size must be positive")
	}
	if c.Sink.FlushInterval <= 0 {
		problems = append(problems, "sink flush interval must be positive")
	}
	return problems
}

// EngineConfig returns the matching engine settings
func (c *Config) EngineConfig() backtest.EngineConfig {
	return backtest.EngineConfig{
		FeeRate:         c.FeeRate,
		InitialAsset:    c.InitialAsset,
		InitialCurrency: c.InitialCurrency,
		BuyVolumeRatio:  c.BuyVolumeRatio,
	}
}

// RunnerConfig returns the replay settings
func (c *Config) RunnerConfig() backtest.RunnerConfig {
	return backtest.RunnerConfig{
		Symbol:     c.Symbol,
		Asset:      c.Asset,
		Currency:   c.Currency,
		Start:      c.Start,
		End:        c.End,
		CandleSize: c.CandleSize,
		Version:    c.CandleVersion,
	}
}

// AsyncWriterConfig returns the sink settings; onFlush may be nil
func (c *Config) AsyncWriterConfig(onFlush func(int, error)) data.AsyncWriterConfig {
	cfg := data.DefaultAsyncWriterConfig()
	cfg.BufferSize = c.Sink.BufferSize
	cfg.BatchSize = c.Sink.BatchSize
	cfg.FlushInterval = c.Sink.FlushInterval
	cfg.OnFlush = onFlush
	return cfg
}

// TableName is the sqlite table holding this market's candles
func (c *Config) TableName() string {
	return data.TableName(c.Currency, c.Asset)
}

// Interval names the strategy candle length, e.g. "15m"
func (c *Config) Interval() string {
	size := c.CandleSize
	if size < 1 {
		size = 1
	}
	return fmt.Sprintf("%dm", size)
}

// Summary returns a one line description for logs
func (c *Config) Summary() string {
	return fmt.Sprintf("%s (%s/%s) v%d x%d, fee %s, portfolio %s %s + %s %s, db %s",
		c.Symbol, c.Asset, c.Currency, c.CandleVersion, c.CandleSize, c.FeeRate,
		c.InitialAsset, c.Asset, c.InitialCurrency, c.Currency, c.DBPath)
}

// quoteCurrencies are tried longest first so FDUSD wins over USD
var quoteCurrencies = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH", "BNB"}

// SplitSymbol splits BTCUSDT, BTC/USDT or BTC-USDT into asset and currency
func SplitSymbol(symbol string) (asset, currency string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], true
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote), quote, true
		}
	}
	return "", "", false
}

func setString(dst *string, v *string, upper bool) {
	if v == nil {
		return
	}
	if upper {
		*dst = strings.ToUpper(*v)
		return
	}
	*dst = *v
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}
