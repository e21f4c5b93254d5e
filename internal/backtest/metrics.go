package backtest

import (
	"math"
	"time"
)

// returns gives the per candle returns of the equity curve
func (b *Results) returns() []float64 {
	if len(b.EquityCurve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(b.EquityCurve)-1)
	for i := 1; i < len(b.EquityCurve); i++ {
		prev := b.EquityCurve[i-1].Equity
		if prev > 0 {
			out = append(out, (b.EquityCurve[i].Equity-prev)/prev)
		}
	}
	return out
}

// CalculateSharpeRatio calculates the per candle Sharpe ratio of the equity curve
func (b *Results) CalculateSharpeRatio() float64 {
	returns := b.returns()
	if len(returns) == 0 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-avgReturn, 2)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	if stdDev < 1e-10 {
		return 0
	}

	// risk-free rate of 0
	return avgReturn / stdDev
}

// MaxDrawdownOf returns the largest peak to trough decline of the curve as a fraction
func MaxDrawdownOf(curve []EquityPoint) float64 {
	maxBalance := 0.0
	maxDrawdown := 0.0
	for _, p := range curve {
		if p.Equity > maxBalance {
			maxBalance = p.Equity
		}
		if maxBalance <= 0 {
			continue
		}
		drawdown := (maxBalance - p.Equity) / maxBalance
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// UpdateMetrics updates all calculated metrics
func (b *Results) UpdateMetrics() {
	b.MaxDrawdown = MaxDrawdownOf(b.EquityCurve)
	b.SharpeRatio = b.CalculateSharpeRatio()
	if len(b.EquityCurve) == 0 {
		return
	}

	b.calculateAnnualizedMetrics()
	b.SortinoRatio = b.calculateSortinoRatio()
	b.CalmarRatio = b.calculateCalmarRatio()
	b.calculateExposureMetrics()
	b.TotalTurnover = b.calculateTurnover()
}

// calculateAnnualizedMetrics computes the annualized return
func (b *Results) calculateAnnualizedMetrics() {
	if len(b.EquityCurve) < 2 {
		return
	}

	first := b.EquityCurve[0]
	last := b.EquityCurve[len(b.EquityCurve)-1]

	years := last.Timestamp.Sub(first.Timestamp).Hours() / (24 * 365.25)
	if years <= 0 || first.Equity <= 0 || last.Equity < 0 {
		return
	}

	// (ending / beginning)^(1/years) - 1
	annual := math.Pow(last.Equity/first.Equity, 1.0/years) - 1.0
	if math.IsInf(annual, 0) || math.IsNaN(annual) {
		// runs of a few minutes overflow; report them as undefined
		annual = 0
	}
	b.AnnualizedReturn = annual
}

// calculateSortinoRatio computes Sortino ratio (return / downside deviation).
// Without a losing candle the ratio is undefined and reported as 0.
func (b *Results) calculateSortinoRatio() float64 {
	returns := b.returns()
	if len(returns) == 0 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	downsideVariance := 0.0
	downsideCount := 0
	for _, r := range returns {
		if r < 0 {
			downsideVariance += r * r
			downsideCount++
		}
	}
	if downsideCount == 0 || downsideVariance == 0 {
		return 0
	}

	return avgReturn / math.Sqrt(downsideVariance/float64(downsideCount))
}

// calculateCalmarRatio computes Calmar ratio (annualized return / max drawdown),
// 0 when there was no drawdown
func (b *Results) calculateCalmarRatio() float64 {
	if b.MaxDrawdown == 0 {
		return 0
	}
	return b.AnnualizedReturn / b.MaxDrawdown
}

// calculateExposureMetrics computes max and average exposure
func (b *Results) calculateExposureMetrics() {
	maxExp := 0.0
	totalExp := 0.0
	for _, point := range b.EquityCurve {
		if point.Exposure > maxExp {
			maxExp = point.Exposure
		}
		totalExp += point.Exposure
	}

	b.MaxExposure = maxExp
	b.AvgExposure = totalExp / float64(len(b.EquityCurve))
}

// calculateTurnover computes the traded notional over the average equity
func (b *Results) calculateTurnover() float64 {
	totalVolume := 0.0
	for _, trade := range b.Trades {
		totalVolume += trade.Cost().InexactFloat64()
	}

	totalEquity := 0.0
	for _, point := range b.EquityCurve {
		totalEquity += point.Equity
	}
	avgEquity := totalEquity / float64(len(b.EquityCurve))
	if avgEquity == 0 {
		return 0
	}
	return totalVolume / avgEquity
}

// Duration returns the simulated time span
func (b *Results) Duration() time.Duration {
	if len(b.EquityCurve) == 0 {
		return 0
	}
	return b.EquityCurve[len(b.EquityCurve)-1].Timestamp.Sub(b.EquityCurve[0].Timestamp)
}
