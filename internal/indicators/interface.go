// Package indicators provides streaming indicators over candle closes
package indicators

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// Indicator consumes one candle at a time
type Indicator interface {
	// Update feeds c and returns the current value. ready is false until
	// enough candles have been seen.
	Update(c types.Candle) (value float64, ready bool)
	Value() (float64, bool)
	Reset()
	GetName() string
	GetRequiredPeriods() int
}

// New creates the named moving average ("sma" or "ema")
func New(kind string, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got: %d", period)
	}
	switch strings.ToLower(kind) {
	case "sma":
		return NewSMA(period), nil
	case "ema":
		return NewEMA(period), nil
	default:
		return nil, fmt.Errorf("unknown indicator %q", kind)
	}
}
