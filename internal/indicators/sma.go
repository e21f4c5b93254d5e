package indicators

import (
	"fmt"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// SMA is the simple moving average of the last period closes
type SMA struct {
	period int
	window []float64
	next   int
	filled int
	sum    float64
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		window: make([]float64, period),
	}
}

// Update adds the close of c to the window
func (s *SMA) Update(c types.Candle) (float64, bool) {
	if s.filled == s.period {
		s.sum -= s.window[s.next]
	} else {
		s.filled++
	}
	s.window[s.next] = c.Close
	s.sum += c.Close
	s.next = (s.next + 1) % s.period
	return s.Value()
}

// Value returns the average once the window is full
func (s *SMA) Value() (float64, bool) {
	if s.filled < s.period {
		return 0, false
	}
	return s.sum / float64(s.period), true
}

// Reset empties the window
func (s *SMA) Reset() {
	for i := range s.window {
		s.window[i] = 0
	}
	s.next, s.filled, s.sum = 0, 0, 0
}

// GetName returns the indicator name
func (s *SMA) GetName() string {
	return fmt.Sprintf("SMA(%d)", s.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}
