package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// PriceProvider supplies the simulated fill price for a symbol.
type PriceProvider func(symbol string) (float64, error)

// PaperAdapter simulates fills deterministically for testing and dry-run
// trading: every market order fills immediately and completely at the
// provider price, with no slippage. The ARMED gate does not apply; paper
// orders are always accepted.
type PaperAdapter struct {
	mu          sync.RWMutex
	balance     float64
	positions   map[string]*Position
	openOrders  map[string]*Order
	leverage    map[string]float64
	nextOrderID int64
	prices      PriceProvider
	connected   bool
}

var _ ExecutionAdapter = (*PaperAdapter)(nil)

// NewPaperAdapter creates a paper adapter with the given starting balance.
func NewPaperAdapter(initialBalance float64, prices PriceProvider) *PaperAdapter {
	return &PaperAdapter{
		balance:     initialBalance,
		positions:   make(map[string]*Position),
		openOrders:  make(map[string]*Order),
		leverage:    make(map[string]float64),
		nextOrderID: 1000,
		prices:      prices,
	}
}

// Connect marks the adapter connected.
func (a *PaperAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

// Disconnect marks the adapter disconnected.
func (a *PaperAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

// Arm is a no-op for paper trading.
func (a *PaperAdapter) Arm() error { return nil }

// Disarm is a no-op for paper trading.
func (a *PaperAdapter) Disarm() {}

// IsArmed always reports true: paper orders carry no real-money risk.
func (a *PaperAdapter) IsArmed() bool { return true }

// GetSafetyStatus reports the paper safety state.
func (a *PaperAdapter) GetSafetyStatus() SafetyStatus {
	return SafetyStatus{Armed: true}
}

// PlaceOrder fills market orders immediately at the provider price and
// books the position change. Limit and stop orders rest as open orders.
func (a *PaperAdapter) PlaceOrder(ctx context.Context, req OrderRequest) OrderResult {
	if req.Quantity <= 0 {
		return OrderResult{Error: "quantity must be positive"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextOrderID++
	order := &Order{
		OrderID:   strconv.FormatInt(a.nextOrderID, 10),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		CreatedAt: time.Now(),
	}

	if req.Type != OrderTypeMarket {
		order.Status = "NEW"
		a.openOrders[order.OrderID] = order
		return OrderResult{Success: true, Order: order}
	}

	price, err := a.fillPrice(req)
	if err != nil {
		return OrderResult{Error: err.Error()}
	}
	order.Price = price
	order.Status = "FILLED"

	a.applyFill(req, price)
	return OrderResult{Success: true, Order: order}
}

func (a *PaperAdapter) fillPrice(req OrderRequest) (float64, error) {
	if a.prices != nil {
		if p, err := a.prices(req.Symbol); err == nil && p > 0 {
			return p, nil
		}
	}
	if req.Price > 0 {
		return req.Price, nil
	}
	return 0, fmt.Errorf("no price available for %s", req.Symbol)
}

// applyFill books a fill into the position table, realizing PnL into the
// balance when the fill reduces an existing position.
func (a *PaperAdapter) applyFill(req OrderRequest, price float64) {
	delta := req.Quantity
	if req.Side == SideSell {
		delta = -delta
	}

	pos, ok := a.positions[req.Symbol]
	if !ok {
		a.positions[req.Symbol] = &Position{
			Symbol:     req.Symbol,
			Size:       delta,
			EntryPrice: price,
			Leverage:   a.leverage[req.Symbol],
		}
		return
	}

	// Reducing or flipping: realize PnL on the closed portion, signed by
	// the side of the position being reduced.
	if pos.Size != 0 && (pos.Size > 0) != (delta > 0) {
		closed := minAbs(pos.Size, delta)
		if pos.Size < 0 {
			closed = -closed
		}
		a.balance += (price - pos.EntryPrice) * closed
	}

	newSize := pos.Size + delta
	switch {
	case newSize == 0:
		delete(a.positions, req.Symbol)
	case (pos.Size > 0) == (newSize > 0) && abs(newSize) > abs(pos.Size):
		// Adding: blend entry price.
		pos.EntryPrice = (pos.EntryPrice*abs(pos.Size) + price*abs(delta)) / abs(newSize)
		pos.Size = newSize
	default:
		pos.Size = newSize
	}
}

// CancelOrder removes a resting order.
func (a *PaperAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.openOrders[orderID]; !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	delete(a.openOrders, orderID)
	return nil
}

// CancelAllOrders removes all resting orders for a symbol.
func (a *PaperAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, o := range a.openOrders {
		if o.Symbol == symbol {
			delete(a.openOrders, id)
		}
	}
	return nil
}

// GetOpenOrders lists resting orders for a symbol.
func (a *PaperAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range a.openOrders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out, nil
}

// GetPositions returns all open simulated positions with refreshed
// unrealized PnL.
func (a *PaperAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Position, 0, len(a.positions))
	for _, pos := range a.positions {
		p := *pos
		if a.prices != nil {
			if price, err := a.prices(p.Symbol); err == nil && price > 0 {
				p.UnrealizedPnL = (price - p.EntryPrice) * p.Size
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// GetAccountInfo returns the simulated account snapshot.
func (a *PaperAdapter) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	unrealized := 0.0
	for _, pos := range a.positions {
		if a.prices != nil {
			if price, err := a.prices(pos.Symbol); err == nil && price > 0 {
				unrealized += (price - pos.EntryPrice) * pos.Size
			}
		}
	}
	return &AccountInfo{
		Equity:           a.balance + unrealized,
		AvailableBalance: a.balance,
	}, nil
}

// SetLeverage records the leverage for a symbol.
func (a *PaperAdapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	if leverage <= 0 {
		return fmt.Errorf("invalid leverage %.1f", leverage)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leverage[symbol] = leverage
	if pos, ok := a.positions[symbol]; ok {
		pos.Leverage = leverage
	}
	return nil
}

// Balance returns the realized balance (test hook).
func (a *PaperAdapter) Balance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// minAbs returns the smaller magnitude of two same-direction quantities.
func minAbs(a, b float64) float64 {
	if abs(a) < abs(b) {
		return abs(a)
	}
	return abs(b)
}
