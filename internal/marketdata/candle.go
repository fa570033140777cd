package marketdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candle represents one OHLCV candle for a (symbol, timeframe) pair.
// A candle is immutable once closed; only the in-progress candle may be
// updated in place.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Timestamp returns the candle open time in unix milliseconds.
func (c Candle) Timestamp() int64 {
	return c.OpenTime.UnixMilli()
}

// ParseTimeframe converts a timeframe string ("1m", "15m", "1h", "4h", "1d")
// into its candle interval duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(strings.ToLower(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}

	unit := tf[len(tf)-1]
	value, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}

	switch unit {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe unit %q", tf)
	}
}

// TimeframeInterval returns the interval for a timeframe, falling back to
// one minute when the string cannot be parsed.
func TimeframeInterval(tf string) time.Duration {
	d, err := ParseTimeframe(tf)
	if err != nil {
		return time.Minute
	}
	return d
}
