package bot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/execution"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/marketdata"
	"hyperliquid-trading-bot/internal/risk"
)

// trailingBot builds an unstarted bot over a paper adapter with one open
// long at 100 and an initial stop at 95.
func trailingBot(t *testing.T) (*Bot, *execution.Engine) {
	t.Helper()

	adapter := hyperliquid.NewPaperAdapter(10000, func(string) (float64, error) {
		return 100, nil
	})
	engine := execution.NewEngine(adapter, nil, execution.Config{CallTimeout: time.Second}, zerolog.Nop())
	riskMgr := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())

	b := New(Config{
		Symbol:    "BTC",
		Timeframe: "1h",
		Trailing: risk.TrailingConfig{
			Enabled:           true,
			TrailingPercent:   1.5,
			ActivationPercent: 1.0,
		},
	}, marketdata.NewSeries("BTC", "1h"),
		func() marketdata.FeedStatus { return marketdata.FeedStatus{Connected: true} },
		nil, nil,
		decision.NewPolicy(decision.DefaultConfig(), zerolog.Nop()),
		riskMgr, engine, adapter, nil, nil, zerolog.Nop())

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	if _, err := engine.ExecuteSignal(context.Background(), sig, risk.Decision{
		Allowed:  true,
		Quantity: 1,
		StopLoss: 95,
	}); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	return b, engine
}

func TestCycleTrailsStopBehindPrice(t *testing.T) {
	b, engine := trailingBot(t)

	b.updateTrailingStops(102)

	trades := engine.OpenTrades()
	if len(trades) != 1 {
		t.Fatalf("open trades = %d, want 1", len(trades))
	}
	if trades[0].StopLoss == nil {
		t.Fatal("trade lost its stop")
	}
	// 102 * 0.985 = 100.47 replaces the original 95 stop.
	if got := *trades[0].StopLoss; got < 100.46 || got > 100.48 {
		t.Errorf("StopLoss = %v, want ~100.47", got)
	}
}

func TestCycleClosesTradeWhenTrailedStopCrossed(t *testing.T) {
	b, engine := trailingBot(t)

	b.updateTrailingStops(102)
	b.updateTrailingStops(100)

	if got := len(engine.OpenTrades()); got != 0 {
		t.Errorf("open trades = %d after stop crossed, want 0", got)
	}
	if _, tracked := b.trailing.StopLevel("BTC"); tracked {
		t.Error("closed trade still tracked by trailing stops")
	}
}

func TestTrailingDisabledLeavesStopAlone(t *testing.T) {
	b, engine := trailingBot(t)
	b.trailing = risk.NewTrailingStops(risk.TrailingConfig{Enabled: false}, zerolog.Nop())

	b.updateTrailingStops(150)

	trades := engine.OpenTrades()
	if len(trades) != 1 || trades[0].StopLoss == nil || *trades[0].StopLoss != 95 {
		t.Errorf("trades = %+v, want untouched stop 95", trades)
	}
}
