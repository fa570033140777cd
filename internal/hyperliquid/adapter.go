// Package hyperliquid defines the execution-adapter boundary and its three
// implementations: the live Hyperliquid adapter, a deterministic paper
// adapter, and an unimplemented placeholder for unlaunched venues.
package hyperliquid

import (
	"context"
	"errors"
	"time"
)

// ErrNotImplemented is returned by every method of the placeholder
// adapter.
var ErrNotImplemented = errors.New("adapter not implemented for this venue")

// Side is the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the order execution type.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// OrderRequest describes one order to place.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price,omitempty"`      // limit price
	StopPrice  float64   `json:"stop_price,omitempty"` // trigger for stop orders
	Leverage   float64   `json:"leverage,omitempty"`
	ReduceOnly bool      `json:"reduce_only"`
}

// Order is an order acknowledged by the venue.
type Order struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderResult is the uniform outcome of a placement attempt. Adapter
// failures are carried in Error, never panics; Success false must never
// mutate engine-side trade state.
type OrderResult struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Position is one live exchange position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Size          float64 `json:"size"` // signed, negative for shorts
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      float64 `json:"leverage"`
}

// AccountInfo is the account snapshot consumed by the risk engine.
type AccountInfo struct {
	Equity           float64 `json:"equity"`
	AvailableBalance float64 `json:"available_balance"`
}

// SafetyStatus reports the adapter's arming state for display and audit.
type SafetyStatus struct {
	LiveTradingEnabled bool    `json:"live_trading_enabled"`
	Armed              bool    `json:"armed"`
	KillSwitch         bool    `json:"kill_switch"`
	MaxLeverage        float64 `json:"max_leverage"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
}

// ExecutionAdapter is the boundary contract every venue implementation
// satisfies. Blocking calls take a context and must be invoked with a
// bounded timeout; a timed-out placement is an unknown outcome, reconciled
// by the next position sync rather than retried blindly.
type ExecutionAdapter interface {
	Connect(ctx context.Context) error
	Disconnect() error

	PlaceOrder(ctx context.Context, req OrderRequest) OrderResult
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error

	// ARMED safety gate. Arm requires the live-enabled switch and valid
	// credentials; Disarm always succeeds and is idempotent.
	Arm() error
	Disarm()
	IsArmed() bool
	GetSafetyStatus() SafetyStatus
}
