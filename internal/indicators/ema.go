package indicators

import (
	"fmt"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// EMA is the exponential moving average of closes. It is seeded with the
// SMA of the first period closes.
type EMA struct {
	period      int
	alpha       float64
	seed        *SMA
	lastValue   float64
	initialized bool
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   NewSMA(period),
	}
}

// Update applies the close of c
func (e *EMA) Update(c types.Candle) (float64, bool) {
	if !e.initialized {
		value, ready := e.seed.Update(c)
		if !ready {
			return 0, false
		}
		e.lastValue = value
		e.initialized = true
		return e.lastValue, true
	}

	// EMA = (Close * Alpha) + (Previous EMA * (1 - Alpha))
	e.lastValue = (c.Close * e.alpha) + (e.lastValue * (1 - e.alpha))
	return e.lastValue, true
}

// Value returns the last EMA once seeded
func (e *EMA) Value() (float64, bool) {
	return e.lastValue, e.initialized
}

// Reset drops the state so the next period closes seed it again
func (e *EMA) Reset() {
	e.seed.Reset()
	e.lastValue = 0
	e.initialized = false
}

// GetName returns the indicator name
func (e *EMA) GetName() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}
