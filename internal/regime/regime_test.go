package regime

import (
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/marketdata"
)

func makeCandles(n int, interval time.Duration, close func(i int) float64) []marketdata.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]marketdata.Candle, n)
	for i := range candles {
		c := close(i)
		candles[i] = marketdata.Candle{
			OpenTime: base.Add(time.Duration(i) * interval),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1,
		}
	}
	return candles
}

func TestDetectInsufficientHistory(t *testing.T) {
	candles := makeCandles(10, time.Hour, func(i int) float64 { return 100 })

	r := Detect(candles)
	if r.SufficientData {
		t.Error("expected SufficientData=false with 10 candles")
	}
	if r.Volatility != VolatilityMedium {
		t.Errorf("neutral volatility = %s, want medium", r.Volatility)
	}
	if r.ATR != 0 || r.TrendSlope != 0 || r.Ranging {
		t.Errorf("neutral regime not zeroed: %+v", r)
	}
}

func TestDetectTrendingMarket(t *testing.T) {
	// Steady 1% climb per candle: trending, not ranging.
	candles := makeCandles(40, time.Hour, func(i int) float64 {
		return 100 * (1 + 0.01*float64(i))
	})

	r := Detect(candles)
	if !r.SufficientData {
		t.Fatal("expected sufficient data")
	}
	if r.TrendSlope <= 0 {
		t.Errorf("TrendSlope = %v, want > 0 on a rising market", r.TrendSlope)
	}
	if r.Ranging {
		t.Error("rising market misclassified as ranging")
	}
}

func TestDetectRangingMarket(t *testing.T) {
	// Tight oscillation around 100: range under 2% with many midpoint
	// crossings.
	candles := makeCandles(40, time.Hour, func(i int) float64 {
		if i%2 == 0 {
			return 100.2
		}
		return 99.8
	})

	r := Detect(candles)
	if !r.Ranging {
		t.Errorf("oscillating market not detected as ranging: %+v", r)
	}
}

func TestClassifyVolatility(t *testing.T) {
	tests := []struct {
		atrRatio float64
		want     VolatilityLevel
	}{
		{0.005, VolatilityLow},
		{0.01, VolatilityMedium},
		{0.03, VolatilityMedium},
		{0.031, VolatilityHigh},
	}
	for _, tt := range tests {
		if got := classifyVolatility(tt.atrRatio); got != tt.want {
			t.Errorf("classifyVolatility(%v) = %s, want %s", tt.atrRatio, got, tt.want)
		}
	}
}

func TestMeasureQualityFreshFeed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	candles := makeCandles(30, time.Minute, func(i int) float64 { return 100 })
	// Shift the series so the newest candle opened 2 seconds ago.
	shift := now.Add(-2 * time.Second).Sub(candles[len(candles)-1].OpenTime)
	for i := range candles {
		candles[i].OpenTime = candles[i].OpenTime.Add(shift)
	}

	q := measureQualityAt(candles, "1m", true, 50*time.Millisecond, now)
	if !q.Connected || q.Delayed {
		t.Errorf("fresh feed flagged delayed: %+v", q)
	}
	if q.GapCount != 0 {
		t.Errorf("GapCount = %d, want 0", q.GapCount)
	}
	if q.LastCandleAge != 2*time.Second {
		t.Errorf("LastCandleAge = %v, want 2s", q.LastCandleAge)
	}
}

func TestMeasureQualityCountsGaps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	candles := makeCandles(10, time.Minute, func(i int) float64 { return 100 })
	// Remove two candles from the middle: two inter-candle deltas exceed
	// 1.10x the interval.
	candles = append(candles[:3], candles[4:]...)
	candles = append(candles[:6], candles[7:]...)
	shift := now.Sub(candles[len(candles)-1].OpenTime)
	for i := range candles {
		candles[i].OpenTime = candles[i].OpenTime.Add(shift)
	}

	q := measureQualityAt(candles, "1m", true, 0, now)
	if q.GapCount != 2 {
		t.Errorf("GapCount = %d, want 2", q.GapCount)
	}
}

func TestMeasureQualityDelayed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	candles := makeCandles(5, time.Minute, func(i int) float64 { return 100 })
	shift := now.Add(-3 * time.Minute).Sub(candles[len(candles)-1].OpenTime)
	for i := range candles {
		candles[i].OpenTime = candles[i].OpenTime.Add(shift)
	}

	// Stale beyond 2x the interval.
	if q := measureQualityAt(candles, "1m", true, 0, now); !q.Delayed {
		t.Errorf("stale feed not flagged delayed: %+v", q)
	}

	// Disconnection alone forces Delayed even when fresh.
	fresh := makeCandles(5, time.Minute, func(i int) float64 { return 100 })
	shift = now.Sub(fresh[len(fresh)-1].OpenTime)
	for i := range fresh {
		fresh[i].OpenTime = fresh[i].OpenTime.Add(shift)
	}
	if q := measureQualityAt(fresh, "1m", false, 0, now); !q.Delayed {
		t.Errorf("disconnected feed not flagged delayed: %+v", q)
	}
}

func TestMeasureQualityEmptySeries(t *testing.T) {
	q := measureQualityAt(nil, "1m", true, 0, time.Now())
	if !q.Delayed {
		t.Error("empty series should be delayed")
	}
}
