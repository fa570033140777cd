package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/marketdata"
)

func trendingCandles(n int, start, step float64) []marketdata.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]marketdata.Candle, n)
	for i := range candles {
		c := start + step*float64(i)
		candles[i] = marketdata.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c * 1.005,
			Low:      c * 0.995,
			Close:    c,
			Volume:   1,
		}
	}
	return candles
}

func testPolicy(cfg Config) *Policy {
	return NewPolicy(cfg, zerolog.Nop())
}

func TestEvaluateNilSignal(t *testing.T) {
	p := testPolicy(DefaultConfig())

	res := p.Evaluate(nil, nil, nil)
	if res.Action != ActionHold {
		t.Errorf("Action = %s, want HOLD", res.Action)
	}
	if res.CanExecute {
		t.Error("nil signal must not be executable")
	}
	if len(res.Confirmations) != 0 {
		t.Errorf("Confirmations = %d, want 0", len(res.Confirmations))
	}
}

func TestEvaluateHoldPassesThrough(t *testing.T) {
	p := testPolicy(DefaultConfig())
	sig := &Signal{Symbol: "BTC", Action: ActionHold}

	res := p.Evaluate(sig, trendingCandles(250, 100, 0.5), nil)
	if res.Action != ActionHold || res.CanExecute {
		t.Errorf("HOLD signal mishandled: %+v", res)
	}
}

func TestEvaluateLongInUptrend(t *testing.T) {
	p := testPolicy(DefaultConfig())
	// A steady uptrend passes EMA, Ichimoku and ATR band; RSI is pegged
	// overbought by the monotonic rise and fails.
	candles := trendingCandles(250, 100, 0.5)
	sig := &Signal{Symbol: "BTC", Action: ActionLong, Price: candles[len(candles)-1].Close}

	res := p.Evaluate(sig, candles, nil)
	if !res.CanExecute {
		t.Fatalf("expected executable result, got %+v", res)
	}
	if res.Action != ActionLong {
		t.Errorf("Action = %s, want LONG", res.Action)
	}
	if res.PassedCount < 3 {
		t.Errorf("PassedCount = %d, want >= 3", res.PassedCount)
	}
}

func TestEvaluateInsufficientHistoryCountsInDenominator(t *testing.T) {
	p := testPolicy(DefaultConfig())
	// 30 candles: EMA200 cannot be computed, its confirmation fails with
	// an explanatory reason but stays in the list.
	candles := trendingCandles(30, 100, 0.5)
	sig := &Signal{Symbol: "BTC", Action: ActionLong}

	res := p.Evaluate(sig, candles, nil)
	if len(res.Confirmations) != 4 {
		t.Fatalf("Confirmations = %d, want 4", len(res.Confirmations))
	}

	var ema *Confirmation
	for i := range res.Confirmations {
		if res.Confirmations[i].Name == ConfirmationEMATrend {
			ema = &res.Confirmations[i]
		}
	}
	if ema == nil {
		t.Fatal("ema_trend confirmation missing")
	}
	if ema.Passed {
		t.Error("ema_trend passed without 200 candles")
	}
	if !strings.Contains(ema.Reason, "insufficient history") {
		t.Errorf("Reason = %q, want insufficient-history explanation", ema.Reason)
	}
}

func TestEvaluateConfidenceIsWeightedRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableNewsGate = true
	p := testPolicy(cfg)

	candles := trendingCandles(250, 100, 0.5)
	sig := &Signal{Symbol: "BTC", Action: ActionLong}

	res := p.Evaluate(sig, candles, nil)

	weightPassed := 0.0
	weightTotal := 0.0
	for _, c := range res.Confirmations {
		weightTotal += c.Weight
		if c.Passed {
			weightPassed += c.Weight
		}
	}
	want := float64(int(100*weightPassed/weightTotal + 0.5))
	if res.Confidence != want {
		t.Errorf("Confidence = %v, want %v", res.Confidence, want)
	}
}

func TestEvaluateNotExecutableBelowMinConfirmations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfirmations = 4
	p := testPolicy(cfg)

	// Uptrend with pegged RSI: only 3 of 4 confirmations pass.
	candles := trendingCandles(250, 100, 0.5)
	sig := &Signal{Symbol: "BTC", Action: ActionLong}

	res := p.Evaluate(sig, candles, nil)
	if res.CanExecute {
		t.Fatalf("expected non-executable result: %+v", res)
	}
	if res.Action != ActionHold {
		t.Errorf("Action = %s, want HOLD on failed gate", res.Action)
	}
}

func TestNewsGateWithoutSources(t *testing.T) {
	sig := &Signal{Action: ActionLong}

	c := checkNews(sig, nil, 0.5)
	if c.Passed {
		t.Error("news gate passed without sentiment")
	}
	c = checkNews(sig, &NewsSentiment{Sentiment: "bullish", Confidence: 0.9}, 0.5)
	if c.Passed {
		t.Error("news gate passed without grounded sources")
	}

	c = checkNews(sig, &NewsSentiment{Sentiment: "bullish", Confidence: 0.9, Sources: []string{"https://example.com/a"}}, 0.5)
	if !c.Passed {
		t.Errorf("aligned grounded sentiment failed: %+v", c)
	}
}

func TestActionHelpers(t *testing.T) {
	if !ActionLong.IsEntry() || !ActionShort.IsEntry() {
		t.Error("LONG/SHORT must be entries")
	}
	if !ActionCloseLong.IsClose() || !ActionCloseShort.IsClose() {
		t.Error("CLOSE_LONG/CLOSE_SHORT must be closes")
	}
	if !ActionLong.Bullish() || !ActionCloseShort.Bullish() {
		t.Error("LONG and CLOSE_SHORT are the bullish directions")
	}
	if ActionShort.Bullish() || ActionCloseLong.Bullish() {
		t.Error("SHORT and CLOSE_LONG are not bullish")
	}
}

func TestConcurrentSetConfigAndEvaluate(t *testing.T) {
	p := testPolicy(DefaultConfig())
	candles := trendingCandles(250, 100, 0.5)
	sig := &Signal{Symbol: "BTC", Action: ActionLong, Price: 225}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			cfg := DefaultConfig()
			cfg.MinConfirmations = 2 + i%3
			p.SetConfig(cfg)
		}
	}()
	for i := 0; i < 200; i++ {
		res := p.Evaluate(sig, candles, nil)
		if got := res.RequiredCount; got < 2 || got > 4 {
			t.Fatalf("RequiredCount = %d, want a value from an applied config", got)
		}
	}
	<-done

	cfg := p.Config()
	if cfg.MinConfirmations < 2 || cfg.MinConfirmations > 4 {
		t.Errorf("MinConfirmations = %d after updates", cfg.MinConfirmations)
	}
}
