// Package regime classifies market behavior (trend, ranging, volatility)
// and measures feed data quality. Both detectors are pure functions of
// their inputs.
package regime

import (
	"hyperliquid-trading-bot/internal/indicators"
	"hyperliquid-trading-bot/internal/marketdata"
)

// Volatility classification levels.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityMedium VolatilityLevel = "medium"
	VolatilityHigh   VolatilityLevel = "high"
)

const (
	// minCandles is the window required for a meaningful classification.
	minCandles = 20

	// rangingThreshold is the max 20-candle price range (as a fraction of
	// mean price) for a market to qualify as ranging.
	rangingThreshold = 0.02

	// rangingMinCrossings is the minimum midpoint crossings for ranging.
	rangingMinCrossings = 3
)

// Regime is a snapshot classification of recent market behavior.
type Regime struct {
	ATR            float64         `json:"atr"`
	ATRRatio       float64         `json:"atr_ratio"`   // ATR / last close
	TrendSlope     float64         `json:"trend_slope"` // normalized per-candle slope
	Ranging        bool            `json:"ranging"`
	Volatility     VolatilityLevel `json:"volatility"`
	SufficientData bool            `json:"sufficient_data"`
}

// Neutral returns the default regime used when history is insufficient.
func Neutral() Regime {
	return Regime{Volatility: VolatilityMedium}
}

// Detect classifies the market regime from a candle window. Needs at least
// 20 candles; returns the neutral default otherwise.
func Detect(candles []marketdata.Candle) Regime {
	if len(candles) < minCandles {
		return Neutral()
	}

	lastClose := candles[len(candles)-1].Close
	atr := indicators.ATR(candles, 14)

	atrRatio := 0.0
	if lastClose > 0 {
		atrRatio = atr / lastClose
	}

	r := Regime{
		ATR:            atr,
		ATRRatio:       atrRatio,
		TrendSlope:     indicators.TrendSlope(candles, minCandles),
		Ranging:        isRanging(candles[len(candles)-minCandles:]),
		Volatility:     classifyVolatility(atrRatio),
		SufficientData: true,
	}
	return r
}

func classifyVolatility(atrRatio float64) VolatilityLevel {
	switch {
	case atrRatio < 0.01:
		return VolatilityLow
	case atrRatio <= 0.03:
		return VolatilityMedium
	default:
		return VolatilityHigh
	}
}

// isRanging reports whether the window stayed inside a tight band while
// crossing its midpoint repeatedly.
func isRanging(window []marketdata.Candle) bool {
	high := window[0].High
	low := window[0].Low
	for _, c := range window {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	mid := (high + low) / 2
	if mid <= 0 {
		return false
	}

	if (high-low)/mid >= rangingThreshold {
		return false
	}

	crossings := 0
	for i := 1; i < len(window); i++ {
		prevAbove := window[i-1].Close > mid
		currAbove := window[i].Close > mid
		if prevAbove != currAbove {
			crossings++
		}
	}
	return crossings >= rangingMinCrossings
}
