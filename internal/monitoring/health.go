package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
)

// maxHealthErrors bounds the error list reported by the health endpoint
const maxHealthErrors = 10

// HealthChecker reports whether the candle pipeline is making progress
type HealthChecker struct {
	mu         sync.RWMutex
	startTime  time.Time
	staleAfter time.Duration
	lastCandle time.Time
	lastPrice  float64
	sinkOK     bool
	errors     []string
	stats      *apperrors.ErrorStats
}

type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	LastCandle time.Time `json:"last_candle"`
	LastPrice  float64   `json:"last_price"`
	SinkOK     bool      `json:"sink_ok"`
	Uptime     string    `json:"uptime"`
	Errors     []string  `json:"errors,omitempty"`

	// ErrorsByCategory counts categorized errors since start
	ErrorsByCategory map[apperrors.ErrorCategory]int `json:"errors_by_category,omitempty"`
}

// NewHealthChecker reports degraded once no candle arrived for staleAfter
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &HealthChecker{
		startTime:  time.Now(),
		staleAfter: staleAfter,
		sinkOK:     true,
		errors:     make([]string, 0),
		stats:      apperrors.NewErrorStats(maxHealthErrors),
	}
}

// RecordCandle marks pipeline progress
func (h *HealthChecker) RecordCandle(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCandle = time.Now()
	h.lastPrice = price
}

// SetSinkOK records the outcome of the last sink write
func (h *HealthChecker) SetSinkOK(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinkOK = ok
}

// ObserveFlush adapts the checker to the sink flush callback
func (h *HealthChecker) ObserveFlush(_ int, err error) {
	h.SetSinkOK(err == nil)
	h.RecordError(err)
}

// RecordError keeps the most recent errors
func (h *HealthChecker) RecordError(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err.Error())
	if len(h.errors) > maxHealthErrors {
		h.errors = h.errors[len(h.errors)-maxHealthErrors:]
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.stats.RecordError(appErr)
	}
}

// Check returns the current status and the HTTP code it maps to
func (h *HealthChecker) Check() (HealthStatus, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var byCategory map[apperrors.ErrorCategory]int
	if h.stats.TotalErrors > 0 {
		byCategory = make(map[apperrors.ErrorCategory]int, len(h.stats.ErrorsByCategory))
		for category, n := range h.stats.ErrorsByCategory {
			byCategory[category] = n
		}
	}

	status, code := "healthy", http.StatusOK
	if !h.sinkOK || time.Since(h.lastCandle) > h.staleAfter {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 && !h.sinkOK {
		status, code = "unhealthy", http.StatusInternalServerError
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		LastCandle: h.lastCandle,
		LastPrice:  h.lastPrice,
		SinkOK:     h.sinkOK,
		Uptime:     time.Since(h.startTime).String(),
		Errors:     append([]string(nil), h.errors...),

		ErrorsByCategory: byCategory,
	}, code
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health, code := h.Check()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
