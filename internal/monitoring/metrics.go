package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Candle pipeline metrics
	candlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_candles_total",
			Help: "Total number of finalized one minute candles",
		},
		[]string{"symbol", "kind"},
	)

	mergedCandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_merged_candles_total",
			Help: "Total number of merged candles",
		},
		[]string{"symbol", "size"},
	)

	exchangeLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_exchange_trade_lag_seconds",
			Help: "Exchange lag reported with the last trade batch",
		},
		[]string{"symbol"},
	)

	// Sink metrics
	sinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_sink_candles_total",
			Help: "Candles handled by the persistence sink",
		},
		[]string{"result"},
	)

	// Matching engine metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_orders_total",
			Help: "Orders placed and canceled",
		},
		[]string{"symbol", "side", "action"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_fills_total",
			Help: "Total number of simulated fills",
		},
		[]string{"symbol", "side", "status"},
	)

	fillAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paper_exchange_fill_amount",
			Help:    "Distribution of filled amounts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	balance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_exchange_balance",
			Help: "Ledger balance per asset",
		},
		[]string{"asset", "state"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_exchange_current_price",
			Help: "Close of the last processed candle",
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_exchange_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(candlesTotal)
	prometheus.MustRegister(mergedCandlesTotal)
	prometheus.MustRegister(exchangeLag)
	prometheus.MustRegister(sinkWritesTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(fillAmount)
	prometheus.MustRegister(balance)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordCandles counts real and synthetic candles
func RecordCandles(symbol string, real, synthetic int) {
	candlesTotal.WithLabelValues(symbol, "real").Add(float64(real))
	candlesTotal.WithLabelValues(symbol, "synthetic").Add(float64(synthetic))
}

// RecordMergedCandle counts one merged candle
func RecordMergedCandle(symbol, size string) {
	mergedCandlesTotal.WithLabelValues(symbol, size).Inc()
}

// UpdateLag sets the last reported exchange lag
func UpdateLag(symbol string, seconds int) {
	exchangeLag.WithLabelValues(symbol).Set(float64(seconds))
}

// RecordSinkWrite counts candles written, dropped or failed by the sink
func RecordSinkWrite(result string, count int) {
	sinkWritesTotal.WithLabelValues(result).Add(float64(count))
}

// RecordOrder counts an order action (placed or canceled)
func RecordOrder(symbol, side, action string) {
	ordersTotal.WithLabelValues(symbol, side, action).Inc()
}

// RecordFill records a fill metric
func RecordFill(symbol, side, status string, amount float64) {
	fillsTotal.WithLabelValues(symbol, side, status).Inc()
	fillAmount.WithLabelValues(symbol).Observe(amount)
}

// UpdateBalance sets the free and locked gauges of an asset
func UpdateBalance(asset string, free, locked float64) {
	balance.WithLabelValues(asset, "free").Set(free)
	balance.WithLabelValues(asset, "locked").Set(locked)
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
