package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/risk"
)

// ErrPartialProtection marks an entry that filled but whose stop-loss or
// take-profit order could not be placed. The entry is never rolled back;
// the degraded state is surfaced to the caller instead of being swallowed.
var ErrPartialProtection = errors.New("protective order placement failed")

// ErrTradeNotFound is returned when a close references an unknown trade.
var ErrTradeNotFound = errors.New("trade not found")

// Config controls execution behavior.
type Config struct {
	Leverage    float64       `json:"leverage"`     // 0 skips SetLeverage
	CallTimeout time.Duration `json:"call_timeout"` // bound on each adapter call
	FeeRate     float64       `json:"fee_rate"`     // taker fee fraction per fill
}

// Engine owns the active-trade table for one bot and drives the adapter.
type Engine struct {
	mu      sync.RWMutex
	adapter hyperliquid.ExecutionAdapter
	bus     *events.EventBus
	cfg     Config
	trades  map[string]*Trade
	logger  zerolog.Logger
}

// NewEngine creates an execution engine on top of an adapter.
func NewEngine(adapter hyperliquid.ExecutionAdapter, bus *events.EventBus, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Engine{
		adapter: adapter,
		bus:     bus,
		cfg:     cfg,
		trades:  make(map[string]*Trade),
		logger:  logger.With().Str("component", "ExecutionEngine").Logger(),
	}
}

// OpenTrades returns a copy of the active-trade table.
func (e *Engine) OpenTrades() []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Trade, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, *t)
	}
	return out
}

// ExecuteSignal places the entry order for an allowed decision and, on
// fill, registers the trade and places its protective orders. A failed
// entry never creates a trade record; failed protective orders leave the
// trade open and return ErrPartialProtection.
func (e *Engine) ExecuteSignal(ctx context.Context, sig *decision.Signal, rd risk.Decision) (*Trade, error) {
	if sig == nil || !sig.Action.IsEntry() {
		return nil, fmt.Errorf("signal is not an entry action")
	}
	if !rd.Allowed {
		return nil, fmt.Errorf("risk decision not allowed: %s", rd.Reason)
	}

	side := hyperliquid.SideBuy
	if sig.Action == decision.ActionShort {
		side = hyperliquid.SideSell
	}

	if e.cfg.Leverage > 0 {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := e.adapter.SetLeverage(callCtx, sig.Symbol, e.cfg.Leverage)
		cancel()
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("SetLeverage failed, continuing with venue default")
		}
	}

	trade := &Trade{
		ID:       uuid.NewString(),
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: rd.Quantity,
		Status:   StatusPlacing,
	}

	entryCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	result := e.adapter.PlaceOrder(entryCtx, hyperliquid.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     side,
		Type:     hyperliquid.OrderTypeMarket,
		Quantity: rd.Quantity,
		Leverage: e.cfg.Leverage,
	})
	cancel()

	if !result.Success {
		trade.Status = StatusRejected
		e.logger.Error().Str("symbol", sig.Symbol).Str("error", result.Error).Msg("Entry order rejected")
		e.publish(events.EventTradeRejected, map[string]interface{}{
			"trade_id": trade.ID,
			"symbol":   sig.Symbol,
			"action":   string(sig.Action),
			"status":   string(trade.Status),
			"error":    result.Error,
		})
		return nil, fmt.Errorf("entry order failed: %s", result.Error)
	}

	entryPrice := result.Order.Price
	if entryPrice <= 0 {
		entryPrice = sig.Price
	}

	trade.EntryPrice = entryPrice
	trade.EntryTime = time.Now()
	trade.Fees = entryPrice * rd.Quantity * e.cfg.FeeRate
	trade.Status = StatusOpen
	trade.OrderID = result.Order.OrderID
	if rd.StopLoss > 0 {
		sl := rd.StopLoss
		trade.StopLoss = &sl
	}
	trade.TakeProfit = rd.TakeProfit

	e.mu.Lock()
	e.trades[trade.ID] = trade
	e.mu.Unlock()

	e.publish(events.EventTradeOpened, map[string]interface{}{
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"side":     string(trade.Side),
		"quantity": trade.Quantity,
		"price":    trade.EntryPrice,
	})
	e.logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("side", string(side)).
		Float64("quantity", rd.Quantity).
		Float64("entry_price", entryPrice).
		Msg("Entry filled")

	if err := e.placeProtectiveOrders(ctx, trade); err != nil {
		return trade, fmt.Errorf("%w: %v", ErrPartialProtection, err)
	}
	return trade, nil
}

// placeProtectiveOrders attaches the reduce-only stop-market and limit
// take-profit orders to an open trade.
func (e *Engine) placeProtectiveOrders(ctx context.Context, trade *Trade) error {
	var errs []error
	exitSide := trade.Side.Opposite()

	if trade.StopLoss != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		res := e.adapter.PlaceOrder(callCtx, hyperliquid.OrderRequest{
			Symbol:     trade.Symbol,
			Side:       exitSide,
			Type:       hyperliquid.OrderTypeStopMarket,
			Quantity:   trade.Quantity,
			StopPrice:  *trade.StopLoss,
			ReduceOnly: true,
		})
		cancel()
		if res.Success {
			e.mu.Lock()
			trade.StopOrderID = &res.Order.OrderID
			e.mu.Unlock()
		} else {
			e.logger.Error().Str("trade_id", trade.ID).Str("error", res.Error).Msg("Stop-loss order failed, position is unprotected")
			errs = append(errs, fmt.Errorf("stop-loss: %s", res.Error))
		}
	}

	if trade.TakeProfit != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		res := e.adapter.PlaceOrder(callCtx, hyperliquid.OrderRequest{
			Symbol:     trade.Symbol,
			Side:       exitSide,
			Type:       hyperliquid.OrderTypeLimit,
			Quantity:   trade.Quantity,
			Price:      *trade.TakeProfit,
			ReduceOnly: true,
		})
		cancel()
		if res.Success {
			e.mu.Lock()
			trade.TPOrderID = &res.Order.OrderID
			e.mu.Unlock()
		} else {
			e.logger.Error().Str("trade_id", trade.ID).Str("error", res.Error).Msg("Take-profit order failed")
			errs = append(errs, fmt.Errorf("take-profit: %s", res.Error))
		}
	}

	return errors.Join(errs...)
}

// AdjustStop moves a trade's protective stop to a new level by cancelling
// the resting stop order and placing a fresh one. The trade keeps its old
// stop when the replacement fails to place.
func (e *Engine) AdjustStop(ctx context.Context, tradeID string, newStop float64) error {
	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return ErrTradeNotFound
	}
	if trade.Status != StatusOpen {
		e.mu.Unlock()
		return fmt.Errorf("trade %s is %s, not open", tradeID, trade.Status)
	}
	oldOrderID := trade.StopOrderID
	e.mu.Unlock()

	if oldOrderID != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := e.adapter.CancelOrder(callCtx, trade.Symbol, *oldOrderID)
		cancel()
		if err != nil {
			return fmt.Errorf("cancel old stop: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	res := e.adapter.PlaceOrder(callCtx, hyperliquid.OrderRequest{
		Symbol:     trade.Symbol,
		Side:       trade.Side.Opposite(),
		Type:       hyperliquid.OrderTypeStopMarket,
		Quantity:   trade.Quantity,
		StopPrice:  newStop,
		ReduceOnly: true,
	})
	cancel()
	if !res.Success {
		e.logger.Error().Str("trade_id", trade.ID).Str("error", res.Error).Msg("Replacement stop order failed, position is unprotected")
		e.mu.Lock()
		trade.StopOrderID = nil
		e.mu.Unlock()
		return fmt.Errorf("place new stop: %s", res.Error)
	}

	e.mu.Lock()
	trade.StopOrderID = &res.Order.OrderID
	trade.StopLoss = &newStop
	e.mu.Unlock()

	e.logger.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Float64("stop", newStop).
		Msg("Stop order moved")
	return nil
}

// CloseTrade closes one tracked trade with an opposite reduce-only market
// order and realizes its PnL.
func (e *Engine) CloseTrade(ctx context.Context, tradeID string) (*Trade, error) {
	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusOpen {
		e.mu.Unlock()
		return nil, fmt.Errorf("trade %s is %s, not open", tradeID, trade.Status)
	}
	trade.Status = StatusClosing
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	result := e.adapter.PlaceOrder(callCtx, hyperliquid.OrderRequest{
		Symbol:     trade.Symbol,
		Side:       trade.Side.Opposite(),
		Type:       hyperliquid.OrderTypeMarket,
		Quantity:   trade.Quantity,
		ReduceOnly: true,
	})
	cancel()

	if !result.Success {
		e.mu.Lock()
		trade.Status = StatusOpen
		e.mu.Unlock()
		return nil, fmt.Errorf("close order failed: %s", result.Error)
	}

	exitPrice := result.Order.Price
	if exitPrice <= 0 {
		exitPrice = trade.EntryPrice
	}

	e.mu.Lock()
	trade.Fees += exitPrice * trade.Quantity * e.cfg.FeeRate
	now := time.Now()
	pnl, pnlPercent := trade.realizePnL(exitPrice)
	trade.ExitPrice = &exitPrice
	trade.ExitTime = &now
	trade.PnL = &pnl
	trade.PnLPercent = &pnlPercent
	trade.ExitOrderID = &result.Order.OrderID
	trade.Status = StatusClosed
	closed := *trade
	delete(e.trades, tradeID)
	e.mu.Unlock()

	e.cancelProtectiveOrders(ctx, &closed)

	e.publish(events.EventTradeClosed, map[string]interface{}{
		"trade_id":    closed.ID,
		"symbol":      closed.Symbol,
		"pnl":         pnl,
		"pnl_percent": pnlPercent,
	})
	e.logger.Info().
		Str("trade_id", closed.ID).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Msg("Trade closed")

	return &closed, nil
}

// cancelProtectiveOrders best-effort cancels any remaining SL/TP orders
// after a close.
func (e *Engine) cancelProtectiveOrders(ctx context.Context, trade *Trade) {
	for _, orderID := range []*string{trade.StopOrderID, trade.TPOrderID} {
		if orderID == nil {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		if err := e.adapter.CancelOrder(callCtx, trade.Symbol, *orderID); err != nil {
			e.logger.Warn().Err(err).Str("order_id", *orderID).Msg("Protective order cancel failed")
		}
		cancel()
	}
}

// CloseBySignal closes the first open trade on the signal's symbol whose
// side matches the close direction the signal implies.
func (e *Engine) CloseBySignal(ctx context.Context, sig *decision.Signal) (*Trade, error) {
	if sig == nil || !sig.Action.IsClose() {
		return nil, fmt.Errorf("signal is not a close action")
	}

	wantSide := hyperliquid.SideBuy // CLOSE_LONG closes a long (BUY entry)
	if sig.Action == decision.ActionCloseShort {
		wantSide = hyperliquid.SideSell
	}

	e.mu.RLock()
	var target string
	for id, t := range e.trades {
		if t.Symbol == sig.Symbol && t.Side == wantSide && t.Status == StatusOpen {
			target = id
			break
		}
	}
	e.mu.RUnlock()

	if target == "" {
		return nil, fmt.Errorf("%w: no open %s trade on %s", ErrTradeNotFound, wantSide, sig.Symbol)
	}
	return e.CloseTrade(ctx, target)
}

// SyncWithPositions reconciles the trade table against live exchange
// positions. A tracked open trade with no matching position was closed
// externally (stop hit, liquidation, manual close) and is marked closed
// locally. This is also the recovery path after a timed-out placement.
func (e *Engine) SyncWithPositions(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	positions, err := e.adapter.GetPositions(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("position sync failed: %w", err)
	}

	bySymbol := make(map[string]hyperliquid.Position, len(positions))
	for _, p := range positions {
		if p.Size != 0 {
			bySymbol[p.Symbol] = p
		}
	}

	e.mu.Lock()
	var orphaned []*Trade
	for id, t := range e.trades {
		if t.Status != StatusOpen {
			continue
		}
		if _, live := bySymbol[t.Symbol]; !live {
			now := time.Now()
			t.Status = StatusClosed
			t.ExitTime = &now
			orphaned = append(orphaned, t)
			delete(e.trades, id)
		}
	}
	e.mu.Unlock()

	for _, t := range orphaned {
		e.logger.Warn().
			Str("trade_id", t.ID).
			Str("symbol", t.Symbol).
			Msg("Tracked trade has no live position, marked closed (external stop or liquidation)")
		e.publish(events.EventTradeClosed, map[string]interface{}{
			"trade_id": t.ID,
			"symbol":   t.Symbol,
			"external": true,
		})
	}
	return nil
}

func (e *Engine) publish(typ events.EventType, data map[string]interface{}) {
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: typ, Data: data})
	}
}
