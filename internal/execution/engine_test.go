package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/risk"
)

// mockAdapter is a scriptable ExecutionAdapter. Each PlaceOrder call pops
// the next scripted result; an empty script fills at the request price.
type mockAdapter struct {
	placed    []hyperliquid.OrderRequest
	results   []hyperliquid.OrderResult
	canceled  []string
	positions []hyperliquid.Position
	fillPrice float64
	nextID    int
}

func (m *mockAdapter) Connect(ctx context.Context) error { return nil }
func (m *mockAdapter) Disconnect() error                 { return nil }

func (m *mockAdapter) PlaceOrder(ctx context.Context, req hyperliquid.OrderRequest) hyperliquid.OrderResult {
	m.placed = append(m.placed, req)
	if len(m.results) > 0 {
		res := m.results[0]
		m.results = m.results[1:]
		return res
	}
	m.nextID++
	price := m.fillPrice
	if price == 0 {
		price = req.Price
	}
	return hyperliquid.OrderResult{
		Success: true,
		Order: &hyperliquid.Order{
			OrderID:  fmt.Sprintf("order-%d", m.nextID),
			Symbol:   req.Symbol,
			Side:     req.Side,
			Type:     req.Type,
			Quantity: req.Quantity,
			Price:    price,
			Status:   "FILLED",
		},
	}
}

func (m *mockAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.canceled = append(m.canceled, orderID)
	return nil
}

func (m *mockAdapter) CancelAllOrders(ctx context.Context, symbol string) error { return nil }
func (m *mockAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]hyperliquid.Order, error) {
	return nil, nil
}
func (m *mockAdapter) GetPositions(ctx context.Context) ([]hyperliquid.Position, error) {
	return m.positions, nil
}
func (m *mockAdapter) GetAccountInfo(ctx context.Context) (*hyperliquid.AccountInfo, error) {
	return &hyperliquid.AccountInfo{Equity: 10000, AvailableBalance: 10000}, nil
}
func (m *mockAdapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return nil
}
func (m *mockAdapter) Arm() error                                { return nil }
func (m *mockAdapter) Disarm()                                   {}
func (m *mockAdapter) IsArmed() bool                             { return true }
func (m *mockAdapter) GetSafetyStatus() hyperliquid.SafetyStatus { return hyperliquid.SafetyStatus{} }

func rejected(msg string) hyperliquid.OrderResult {
	return hyperliquid.OrderResult{Success: false, Error: msg}
}

func testEngine(adapter *mockAdapter) *Engine {
	return NewEngine(adapter, nil, Config{FeeRate: 0.001}, zerolog.Nop())
}

func allowedDecision() risk.Decision {
	tp := 115.0
	return risk.Decision{Allowed: true, Quantity: 2, StopLoss: 90, TakeProfit: &tp}
}

func TestExecuteSignalOpensTradeWithProtection(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if trade.Status != StatusOpen {
		t.Errorf("Status = %s, want open", trade.Status)
	}
	if trade.EntryPrice != 100 || trade.Quantity != 2 {
		t.Errorf("entry = %v x %v, want 100 x 2", trade.EntryPrice, trade.Quantity)
	}
	if trade.StopOrderID == nil || trade.TPOrderID == nil {
		t.Error("protective order IDs not recorded")
	}

	// Entry, stop-loss, take-profit.
	if len(adapter.placed) != 3 {
		t.Fatalf("placed %d orders, want 3", len(adapter.placed))
	}
	stop := adapter.placed[1]
	if stop.Type != hyperliquid.OrderTypeStopMarket || !stop.ReduceOnly || stop.Side != hyperliquid.SideSell {
		t.Errorf("stop order = %+v", stop)
	}
	tp := adapter.placed[2]
	if tp.Type != hyperliquid.OrderTypeLimit || !tp.ReduceOnly || tp.Price != 115 {
		t.Errorf("take-profit order = %+v", tp)
	}

	if got := len(e.OpenTrades()); got != 1 {
		t.Errorf("open trades = %d, want 1", got)
	}
}

func TestExecuteSignalRejectedEntryCreatesNoTrade(t *testing.T) {
	adapter := &mockAdapter{results: []hyperliquid.OrderResult{rejected("insufficient margin")}}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err == nil {
		t.Fatal("expected error for rejected entry")
	}
	if trade != nil {
		t.Error("rejected entry produced a trade record")
	}
	if got := len(e.OpenTrades()); got != 0 {
		t.Errorf("open trades = %d, want 0", got)
	}
}

func TestExecuteSignalPartialProtectionKeepsTradeOpen(t *testing.T) {
	adapter := &mockAdapter{
		fillPrice: 100,
		results: []hyperliquid.OrderResult{
			{Success: true, Order: &hyperliquid.Order{OrderID: "entry-1", Price: 100}},
			rejected("stop placement failed"),
			rejected("tp placement failed"),
		},
	}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if !errors.Is(err, ErrPartialProtection) {
		t.Fatalf("err = %v, want ErrPartialProtection", err)
	}
	if trade == nil || trade.Status != StatusOpen {
		t.Fatal("trade must stay open when protection fails")
	}
	if got := len(e.OpenTrades()); got != 1 {
		t.Errorf("open trades = %d, want 1", got)
	}
}

func TestExecuteSignalRejectsNonEntryActions(t *testing.T) {
	e := testEngine(&mockAdapter{})
	for _, action := range []decision.Action{decision.ActionHold, decision.ActionCloseLong, decision.ActionCloseShort} {
		sig := &decision.Signal{Symbol: "BTC", Action: action}
		if _, err := e.ExecuteSignal(context.Background(), sig, allowedDecision()); err == nil {
			t.Errorf("action %s accepted as entry", action)
		}
	}
	if _, err := e.ExecuteSignal(context.Background(), nil, allowedDecision()); err == nil {
		t.Error("nil signal accepted")
	}
}

func TestExecuteSignalRejectsDisallowedDecision(t *testing.T) {
	e := testEngine(&mockAdapter{})
	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong}
	rd := risk.Decision{Allowed: false, Reason: "cooldown"}
	_, err := e.ExecuteSignal(context.Background(), sig, rd)
	if err == nil || !strings.Contains(err.Error(), "cooldown") {
		t.Errorf("err = %v, want denial carrying the risk reason", err)
	}
}

func TestCloseTradeRealizesPnL(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	adapter.fillPrice = 110
	closed, err := e.CloseTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Errorf("Status = %s, want closed", closed.Status)
	}

	// (110-100)*2 minus entry fee 100*2*0.001 and exit fee 110*2*0.001.
	wantPnL := 20.0 - 0.2 - 0.22
	if closed.PnL == nil || math.Abs(*closed.PnL-wantPnL) > 1e-9 {
		t.Errorf("PnL = %v, want %v", closed.PnL, wantPnL)
	}
	if got := len(e.OpenTrades()); got != 0 {
		t.Errorf("open trades = %d, want 0", got)
	}

	// Both protective orders get canceled after the close.
	if len(adapter.canceled) != 2 {
		t.Errorf("canceled %d orders, want 2", len(adapter.canceled))
	}
}

func TestCloseTradeShortPnLSign(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "ETH", Action: decision.ActionShort, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if trade.Side != hyperliquid.SideSell {
		t.Fatalf("Side = %s, want SELL", trade.Side)
	}

	adapter.fillPrice = 90
	closed, err := e.CloseTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	if closed.PnL == nil || *closed.PnL <= 0 {
		t.Errorf("short PnL = %v, want profit on price drop", closed.PnL)
	}
}

func TestCloseTradeFailureRestoresOpenStatus(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	adapter.results = []hyperliquid.OrderResult{rejected("venue busy")}
	if _, err := e.CloseTrade(context.Background(), trade.ID); err == nil {
		t.Fatal("expected close failure")
	}

	open := e.OpenTrades()
	if len(open) != 1 || open[0].Status != StatusOpen {
		t.Errorf("trade not restored to open after failed close: %+v", open)
	}
}

func TestCloseTradeUnknownID(t *testing.T) {
	e := testEngine(&mockAdapter{})
	if _, err := e.CloseTrade(context.Background(), "nope"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("err = %v, want ErrTradeNotFound", err)
	}
}

func TestCloseBySignalMatchesSide(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	long := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	if _, err := e.ExecuteSignal(context.Background(), long, allowedDecision()); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}

	// CLOSE_SHORT must not touch the long.
	closeShort := &decision.Signal{Symbol: "BTC", Action: decision.ActionCloseShort}
	if _, err := e.CloseBySignal(context.Background(), closeShort); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("err = %v, want ErrTradeNotFound for side mismatch", err)
	}

	closeLong := &decision.Signal{Symbol: "BTC", Action: decision.ActionCloseLong}
	closed, err := e.CloseBySignal(context.Background(), closeLong)
	if err != nil {
		t.Fatalf("CloseBySignal: %v", err)
	}
	if closed.Side != hyperliquid.SideBuy {
		t.Errorf("closed Side = %s, want BUY", closed.Side)
	}
}

func TestSyncWithPositionsClosesOrphans(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	btc := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	eth := &decision.Signal{Symbol: "ETH", Action: decision.ActionLong, Price: 100}
	if _, err := e.ExecuteSignal(context.Background(), btc, allowedDecision()); err != nil {
		t.Fatalf("ExecuteSignal BTC: %v", err)
	}
	if _, err := e.ExecuteSignal(context.Background(), eth, allowedDecision()); err != nil {
		t.Fatalf("ExecuteSignal ETH: %v", err)
	}

	// Only BTC is still live on the venue; the ETH stop was hit.
	adapter.positions = []hyperliquid.Position{{Symbol: "BTC", Size: 2, EntryPrice: 100}}
	if err := e.SyncWithPositions(context.Background()); err != nil {
		t.Fatalf("SyncWithPositions: %v", err)
	}

	open := e.OpenTrades()
	if len(open) != 1 || open[0].Symbol != "BTC" {
		t.Errorf("open trades after sync = %+v, want just BTC", open)
	}
}

func TestRejectedEntryPublishesRejectedStatus(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventTradeRejected, func(e events.Event) { got <- e })

	adapter := &mockAdapter{results: []hyperliquid.OrderResult{rejected("insufficient margin")}}
	e := NewEngine(adapter, bus, Config{FeeRate: 0.001}, zerolog.Nop())

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	if _, err := e.ExecuteSignal(context.Background(), sig, allowedDecision()); err == nil {
		t.Fatal("expected error for rejected entry")
	}

	select {
	case ev := <-got:
		if ev.Data["status"] != string(StatusRejected) {
			t.Errorf("event status = %v, want %s", ev.Data["status"], StatusRejected)
		}
		if ev.Data["trade_id"] == "" || ev.Data["trade_id"] == nil {
			t.Error("rejected event carries no trade id")
		}
	case <-time.After(time.Second):
		t.Fatal("no trade-rejected event published")
	}
}

func TestAdjustStopReplacesProtectiveOrder(t *testing.T) {
	adapter := &mockAdapter{fillPrice: 100}
	e := testEngine(adapter)

	sig := &decision.Signal{Symbol: "BTC", Action: decision.ActionLong, Price: 100}
	trade, err := e.ExecuteSignal(context.Background(), sig, allowedDecision())
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	oldStopID := *trade.StopOrderID

	if err := e.AdjustStop(context.Background(), trade.ID, 98); err != nil {
		t.Fatalf("AdjustStop: %v", err)
	}

	if len(adapter.canceled) != 1 || adapter.canceled[0] != oldStopID {
		t.Errorf("canceled = %v, want the old stop order %s", adapter.canceled, oldStopID)
	}
	last := adapter.placed[len(adapter.placed)-1]
	if last.Type != hyperliquid.OrderTypeStopMarket || last.StopPrice != 98 || !last.ReduceOnly || last.Side != hyperliquid.SideSell {
		t.Errorf("replacement stop = %+v", last)
	}
	if trade.StopLoss == nil || *trade.StopLoss != 98 {
		t.Errorf("StopLoss = %v, want 98", trade.StopLoss)
	}
	if trade.StopOrderID == nil || *trade.StopOrderID == oldStopID {
		t.Error("stop order id not replaced")
	}

	if err := e.AdjustStop(context.Background(), "nope", 98); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("unknown trade: %v", err)
	}
}
