// Package indicators provides stateless technical indicator math over
// candle windows. Every function degrades to a zero or neutral value on
// insufficient history instead of returning an error.
package indicators

import (
	"math"
	"sort"

	"hyperliquid-trading-bot/internal/marketdata"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average of closes over the last period
// candles.
func SMA(candles []marketdata.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average of closes.
//
// The EMA is seeded with the oldest close of the window rather than a
// warm-up SMA. Short windows therefore track a slightly different
// trajectory than the canonical formulation; downstream thresholds were
// tuned against this seeding, so it is kept as-is.
func EMA(candles []marketdata.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	multiplier := 2.0 / float64(period+1)
	ema := candles[0].Close
	for i := 1; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// OSCILLATORS
// ============================================================================

// RSI calculates the Relative Strength Index over the last period candles.
// Returns the neutral value 50 when history is insufficient.
func RSI(candles []marketdata.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// VOLATILITY
// ============================================================================

// ATR calculates the Average True Range over the last period candles.
func ATR(candles []marketdata.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(
			high-low,
			math.Max(
				math.Abs(high-prevClose),
				math.Abs(low-prevClose),
			),
		)
		trSum += tr
	}
	return trSum / float64(period)
}

// ============================================================================
// ICHIMOKU
// ============================================================================

// IchimokuLines holds the Tenkan-sen and Kijun-sen conversion/base lines.
type IchimokuLines struct {
	Tenkan float64
	Kijun  float64
}

// Ichimoku computes Tenkan (9-period midpoint) and Kijun (26-period
// midpoint) lines.
func Ichimoku(candles []marketdata.Candle) *IchimokuLines {
	return &IchimokuLines{
		Tenkan: midpoint(candles, 9),
		Kijun:  midpoint(candles, 26),
	}
}

// midpoint returns (highestHigh + lowestLow) / 2 over the last period
// candles, 0 on insufficient history.
func midpoint(candles []marketdata.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	start := len(candles) - period
	high := candles[start].High
	low := candles[start].Low
	for i := start; i < len(candles); i++ {
		if candles[i].High > high {
			high = candles[i].High
		}
		if candles[i].Low < low {
			low = candles[i].Low
		}
	}
	return (high + low) / 2
}

// ============================================================================
// TREND
// ============================================================================

// TrendSlope fits a linear regression to the closes of the last period
// candles and returns the per-candle slope normalized by the mean price.
// A value of 0.001 means price gains ~0.1% of its mean per candle.
func TrendSlope(candles []marketdata.Candle, period int) float64 {
	if period < 2 || len(candles) < period {
		return 0
	}

	start := len(candles) - period
	n := float64(period)

	sumX := 0.0
	sumY := 0.0
	sumXY := 0.0
	sumXX := 0.0
	for i := 0; i < period; i++ {
		x := float64(i)
		y := candles[start+i].Close
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom

	mean := sumY / n
	if mean == 0 {
		return 0
	}
	return slope / mean
}

// ============================================================================
// POSITION SIZING MATH
// ============================================================================

// KellyFraction computes the Kelly criterion optimal risk fraction from a
// win rate and average win/loss magnitudes, scaled by fraction (0.25 for
// quarter-Kelly). Returns 0 for inputs where Kelly is undefined or
// negative.
func KellyFraction(winRate, avgWin, avgLoss, fraction float64) float64 {
	if avgLoss <= 0 || avgWin <= 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}

	b := avgWin / avgLoss
	kelly := (b*winRate - (1 - winRate)) / b
	if kelly <= 0 {
		return 0
	}
	return kelly * fraction
}

// ValueAtRisk returns the historical VaR of a returns series at the given
// confidence level (0.95 for 95%), expressed as a positive loss fraction.
// Returns 0 when the series is empty.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	loss := sorted[idx]
	if loss >= 0 {
		return 0
	}
	return -loss
}
