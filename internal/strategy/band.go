package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/internal/indicators"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// BandConfig configures BandStrategy
type BandConfig struct {
	// Spread is the distance of each order from the close, as a fraction
	Spread float64 `json:"spread"`

	// OrderSize is the amount of asset per order
	OrderSize decimal.Decimal `json:"order_size"`

	// Every re-quotes the band once per this many candles
	Every int `json:"every"`

	// Center is "close" (default), "sma" or "ema". A moving average center
	// needs Period candles before the first quote.
	Center string `json:"center,omitempty"`
	Period int    `json:"period,omitempty"`
}

func (c BandConfig) movingCenter() bool {
	return c.Center != "" && c.Center != "close"
}

// DefaultBandConfig returns a 0.5% band re-quoted every candle
func DefaultBandConfig() BandConfig {
	return BandConfig{
		Spread:    0.005,
		OrderSize: decimal.NewFromFloat(0.01),
		Every:     1,
	}
}

// Validate checks the band parameters
func (c BandConfig) Validate() error {
	if c.Spread <= 0 || c.Spread >= 1 {
		return fmt.Errorf("spread must be between 0 and 1, got: %.6f", c.Spread)
	}
	if !c.OrderSize.IsPositive() {
		return fmt.Errorf("order_size must be positive, got: %s", c.OrderSize)
	}
	if c.Every <= 0 {
		return fmt.Errorf("every must be positive, got: %d", c.Every)
	}
	if c.movingCenter() {
		if _, err := indicators.New(c.Center, c.Period); err != nil {
			return fmt.Errorf("center: %w", err)
		}
	}
	return nil
}

// BandStrategy quotes a resting long below and a resting short above the
// close, or a moving average of closes. Every re-quote first cancels the
// orders of the previous band.
type BandStrategy struct {
	config BandConfig
	center indicators.Indicator
	seen   int

	// orders of the current band
	quotes []int64

	// counters for reports
	placed   int
	canceled int
	skipped  int
}

// NewBandStrategy creates a band strategy
func NewBandStrategy(config BandConfig) (*BandStrategy, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("band", "NewBandStrategy", err.Error())
	}
	s := &BandStrategy{config: config}
	if config.movingCenter() {
		s.center, _ = indicators.New(config.Center, config.Period)
	}
	return s, nil
}

// GetName returns the strategy name
func (s *BandStrategy) GetName() string {
	if s.center != nil {
		return fmt.Sprintf("Band %.2f%% %s", s.config.Spread*100, s.center.GetName())
	}
	return fmt.Sprintf("Band %.2f%%", s.config.Spread*100)
}

// OnCandle re-quotes the band when due
func (s *BandStrategy) OnCandle(c types.Candle, ex Exchange) error {
	mid := c.Close
	if s.center != nil {
		value, ready := s.center.Update(c)
		if !ready {
			return nil
		}
		mid = value
	}

	s.seen++
	if (s.seen-1)%s.config.Every != 0 {
		return nil
	}

	if err := s.cancelStale(ex); err != nil {
		return err
	}

	center := decimal.NewFromFloat(mid)
	spread := decimal.NewFromFloat(s.config.Spread)
	one := decimal.NewFromInt(1)

	bid := center.Mul(one.Sub(spread)).Round(8)
	ask := center.Mul(one.Add(spread)).Round(8)

	if err := s.quote(ex, types.OrderSideLong, bid); err != nil {
		return err
	}
	if ex.Balances().AssetAvailable.GreaterThanOrEqual(s.config.OrderSize) {
		return s.quote(ex, types.OrderSideShort, ask)
	}
	s.skipped++
	return nil
}

// Stats returns how many orders were placed, canceled and skipped
func (s *BandStrategy) Stats() (placed, canceled, skipped int) {
	return s.placed, s.canceled, s.skipped
}

func (s *BandStrategy) cancelStale(ex Exchange) error {
	for _, id := range s.quotes {
		status, err := ex.OrderStatus(id)
		if err != nil {
			return err
		}
		if !status.Active() {
			continue
		}
		if err := ex.CancelOrder(id); err != nil {
			return err
		}
		s.canceled++
	}
	s.quotes = s.quotes[:0]
	return nil
}

func (s *BandStrategy) quote(ex Exchange, side types.OrderSide, price decimal.Decimal) error {
	id, err := ex.PlaceOrder(side, types.OrderTypeLimit, s.config.OrderSize, price)
	if errors.Is(err, apperrors.ErrInsufficientFunds) {
		s.skipped++
		return nil
	}
	if err != nil {
		return err
	}
	s.quotes = append(s.quotes, id)
	s.placed++
	return nil
}
