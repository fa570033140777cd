// Package execution turns allowed decisions into adapter order calls,
// tracks in-flight trades through their state machine and reconciles the
// local trade table with live exchange positions.
package execution

import (
	"time"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// TradeStatus is the lifecycle state of one tracked trade.
type TradeStatus string

const (
	StatusPlacing  TradeStatus = "placing"
	StatusOpen     TradeStatus = "open"
	StatusClosing  TradeStatus = "closing"
	StatusClosed   TradeStatus = "closed"
	StatusRejected TradeStatus = "rejected"
)

// Trade is one in-flight trade owned by the execution engine. Created on a
// successful entry fill, mutated on close, then dropped from the active
// table.
type Trade struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Side        hyperliquid.Side `json:"side"`
	EntryPrice  float64          `json:"entry_price"`
	Quantity    float64          `json:"quantity"`
	EntryTime   time.Time        `json:"entry_time"`
	ExitPrice   *float64         `json:"exit_price,omitempty"`
	ExitTime    *time.Time       `json:"exit_time,omitempty"`
	PnL         *float64         `json:"pnl,omitempty"`
	PnLPercent  *float64         `json:"pnl_percent,omitempty"`
	Fees        float64          `json:"fees"`
	Status      TradeStatus      `json:"status"`
	StopLoss    *float64         `json:"stop_loss,omitempty"`
	TakeProfit  *float64         `json:"take_profit,omitempty"`
	OrderID     string           `json:"order_id"`
	ExitOrderID *string          `json:"exit_order_id,omitempty"`
	StopOrderID *string          `json:"stop_order_id,omitempty"`
	TPOrderID   *string          `json:"tp_order_id,omitempty"`
}

// realizePnL computes the realized result of closing qty at exitPrice.
func (t *Trade) realizePnL(exitPrice float64) (pnl, pnlPercent float64) {
	if t.Side == hyperliquid.SideBuy {
		pnl = (exitPrice-t.EntryPrice)*t.Quantity - t.Fees
	} else {
		pnl = (t.EntryPrice-exitPrice)*t.Quantity - t.Fees
	}
	notional := t.EntryPrice * t.Quantity
	if notional > 0 {
		pnlPercent = pnl / notional * 100
	}
	return pnl, pnlPercent
}
