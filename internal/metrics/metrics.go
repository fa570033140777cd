// Package metrics provides Prometheus instrumentation for the trading bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts pipeline decisions, partitioned by final action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlbot_decisions_total",
		Help: "Total decisions produced by the pipeline",
	}, []string{"symbol", "action"})

	// HardBlocksTotal counts decisions forced to NO_TRADE by a gate.
	HardBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlbot_hard_blocks_total",
		Help: "Decisions blocked by a hard gate",
	}, []string{"symbol", "gate"})

	// ConfidenceScore tracks the distribution of total confidence scores.
	ConfidenceScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlbot_confidence_score",
		Help:    "Total confidence score per decision",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	}, []string{"symbol"})

	// OrdersTotal counts adapter order placements by type and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlbot_orders_total",
		Help: "Orders submitted to the execution adapter",
	}, []string{"type", "outcome"})

	// TradesClosedTotal counts closed trades by outcome.
	TradesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlbot_trades_closed_total",
		Help: "Closed trades partitioned by win or loss",
	}, []string{"symbol", "outcome"})

	// AccountEquity tracks current account equity.
	AccountEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlbot_account_equity",
		Help: "Current account equity in quote currency",
	})

	// DrawdownPercent tracks drawdown from the equity peak.
	DrawdownPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlbot_drawdown_percent",
		Help: "Current drawdown from peak equity in percent",
	})

	// FeedConnected is 1 while the market data stream is connected.
	FeedConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hlbot_feed_connected",
		Help: "Market data stream connectivity (1 connected, 0 not)",
	}, []string{"symbol"})

	// BridgeCallDuration tracks exchange bridge call latency.
	BridgeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlbot_bridge_call_duration_seconds",
		Help:    "Exchange bridge call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
