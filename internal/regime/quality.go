package regime

import (
	"time"

	"hyperliquid-trading-bot/internal/marketdata"
)

// gapTolerance is the slack allowed on the expected inter-candle interval
// before a delta counts as a gap.
const gapTolerance = 1.10

// DataQuality describes the freshness and completeness of a candle feed at
// evaluation time.
type DataQuality struct {
	Connected     bool          `json:"connected"`
	LastCandleAge time.Duration `json:"last_candle_age"`
	GapCount      int           `json:"gap_count"`
	Latency       time.Duration `json:"latency"`
	Delayed       bool          `json:"delayed"`
}

// MeasureQuality computes feed quality from the candle list and transport
// status. Delayed is set when the transport is disconnected or the newest
// candle is older than twice the timeframe interval.
func MeasureQuality(candles []marketdata.Candle, timeframe string, connected bool, latency time.Duration) DataQuality {
	return measureQualityAt(candles, timeframe, connected, latency, time.Now())
}

func measureQualityAt(candles []marketdata.Candle, timeframe string, connected bool, latency time.Duration, now time.Time) DataQuality {
	interval := marketdata.TimeframeInterval(timeframe)

	q := DataQuality{
		Connected: connected,
		Latency:   latency,
	}

	if len(candles) == 0 {
		q.LastCandleAge = 0
		q.Delayed = true
		return q
	}

	q.LastCandleAge = now.Sub(candles[len(candles)-1].OpenTime)

	maxDelta := time.Duration(float64(interval) * gapTolerance)
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime.Sub(candles[i-1].OpenTime) > maxDelta {
			q.GapCount++
		}
	}

	q.Delayed = !connected || q.LastCandleAge > 2*interval
	return q
}
