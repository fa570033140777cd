package bot

import (
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/marketdata"
)

func candleSeries(n int, closeFn func(i int) float64) []marketdata.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]marketdata.Candle, n)
	for i := 0; i < n; i++ {
		c := closeFn(i)
		out[i] = marketdata.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

func TestTrendProviderHoldsOnShortWindow(t *testing.T) {
	p := NewTrendProvider()
	candles := candleSeries(10, func(i int) float64 { return 100 })

	sig := p.Suggest("BTC", "1h", candles)
	if sig.Action != decision.ActionHold {
		t.Errorf("Action = %s, want HOLD with 10 candles", sig.Action)
	}
	if sig.Price != 100 {
		t.Errorf("Price = %v, want 100", sig.Price)
	}
}

func TestTrendProviderLongInUptrend(t *testing.T) {
	p := NewTrendProvider()
	// Sawtooth uptrend: EMA20 above EMA50 and price above EMA20, while
	// the pullback candles keep RSI below the overbought extreme.
	candles := candleSeries(200, func(i int) float64 {
		return 100 + 0.1*float64(i) + 0.3*float64(i%2)
	})

	sig := p.Suggest("BTC", "1h", candles)
	if sig.Action != decision.ActionLong {
		t.Fatalf("Action = %s (rsi %.1f), want LONG", sig.Action, sig.Indicators["rsi"])
	}
	if sig.Indicators["ema20"] <= sig.Indicators["ema50"] {
		t.Errorf("ema20 %.2f not above ema50 %.2f", sig.Indicators["ema20"], sig.Indicators["ema50"])
	}
	if sig.Confidence != 50 {
		t.Errorf("Confidence = %v, want 50", sig.Confidence)
	}
}

func TestTrendProviderShortInDowntrend(t *testing.T) {
	p := NewTrendProvider()
	candles := candleSeries(200, func(i int) float64 {
		return 200 - 0.1*float64(i) - 0.3*float64(i%2)
	})

	sig := p.Suggest("BTC", "1h", candles)
	if sig.Action != decision.ActionShort {
		t.Fatalf("Action = %s (rsi %.1f), want SHORT", sig.Action, sig.Indicators["rsi"])
	}
}

func TestTrendProviderHoldsWithoutAlignment(t *testing.T) {
	p := NewTrendProvider()
	// Flat market: fast equals slow, no stack.
	candles := candleSeries(100, func(i int) float64 { return 100 })

	sig := p.Suggest("BTC", "1h", candles)
	if sig.Action != decision.ActionHold {
		t.Errorf("Action = %s, want HOLD in a flat market", sig.Action)
	}
}
