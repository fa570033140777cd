package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/execution"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/marketdata"
	"hyperliquid-trading-bot/internal/risk"
)

// symbolBot assembles an unstarted bot with its own risk manager and
// execution engine over a paper adapter, the way main wires one per
// symbol.
func symbolBot(t *testing.T, symbol string, price float64) (*bot.Bot, *risk.Manager, *execution.Engine) {
	t.Helper()

	adapter := hyperliquid.NewPaperAdapter(10000, func(string) (float64, error) {
		return price, nil
	})
	riskMgr := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	engine := execution.NewEngine(adapter, nil, execution.Config{
		CallTimeout: time.Second,
	}, zerolog.Nop())

	b := bot.New(bot.Config{Symbol: symbol, Timeframe: "1h"},
		marketdata.NewSeries(symbol, "1h"),
		func() marketdata.FeedStatus { return marketdata.FeedStatus{Connected: true} },
		nil, nil,
		decision.NewPolicy(decision.DefaultConfig(), zerolog.Nop()),
		riskMgr, engine, adapter, nil, nil, zerolog.Nop())
	return b, riskMgr, engine
}

func testServer(t *testing.T, bots ...*bot.Bot) *Server {
	t.Helper()
	adapter := hyperliquid.NewPaperAdapter(10000, func(string) (float64, error) {
		return 100, nil
	})
	return NewServer(config.ServerConfig{}, bots, adapter, nil, nil, zerolog.Nop())
}

func getJSON(t *testing.T, s *Server, path string) map[string]any {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", path, w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestRiskEndpointIsPerSymbol(t *testing.T) {
	btc, btcRisk, _ := symbolBot(t, "BTC", 50000)
	eth, _, _ := symbolBot(t, "ETH", 3000)

	// A losing day on BTC must not show up under ETH.
	btcRisk.UpdateState(10000, 10000, 0)
	btcRisk.RecordTrade(risk.ClosedTrade{PnL: -500, PnLPercent: -5, ClosedAt: time.Now()})

	s := testServer(t, btc, eth)
	body := getJSON(t, s, "/api/risk")
	data := body["data"].(map[string]any)

	btcState := data["BTC"].(map[string]any)["state"].(map[string]any)
	ethState := data["ETH"].(map[string]any)["state"].(map[string]any)
	if got := btcState["daily_pnl"].(float64); got != -500 {
		t.Errorf("BTC daily_pnl = %v, want -500", got)
	}
	if got := ethState["daily_pnl"].(float64); got != 0 {
		t.Errorf("ETH daily_pnl = %v, want 0 (risk state leaked across symbols)", got)
	}
}

func TestTradesEndpointAggregatesPerBotEngines(t *testing.T) {
	btc, _, btcEngine := symbolBot(t, "BTC", 50000)
	eth, _, _ := symbolBot(t, "ETH", 3000)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 50000}
	if _, err := btcEngine.ExecuteSignal(context.Background(), sig, risk.Decision{
		Allowed:  true,
		Quantity: 0.1,
		StopLoss: 49000,
	}); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	s := testServer(t, btc, eth)

	body := getJSON(t, s, "/api/trades")
	trades := body["data"].([]any)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if sym := trades[0].(map[string]any)["symbol"].(string); sym != "BTC" {
		t.Errorf("trade symbol = %s", sym)
	}

	body = getJSON(t, s, "/api/trades?symbol=ETH")
	if trades := body["data"].([]any); len(trades) != 0 {
		t.Errorf("ETH filter returned %d trades, want 0", len(trades))
	}

	body = getJSON(t, s, "/api/status")
	data := body["data"].(map[string]any)
	if got := data["open_trades"].(float64); got != 1 {
		t.Errorf("open_trades = %v, want 1", got)
	}
}
