// Package risk owns the per-bot equity, drawdown and streak state and
// turns candidate signals into hard allow/deny decisions with a computed
// position size and protective price levels.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/indicators"
)

// Config holds risk management configuration.
type Config struct {
	MaxPositionSizePercent  float64       `json:"max_position_size_percent"` // equity % risked per trade
	MaxLeverage             float64       `json:"max_leverage"`
	MaxDrawdownPercent      float64       `json:"max_drawdown_percent"`
	MaxDailyLossPercent     float64       `json:"max_daily_loss_percent"`
	MaxOpenPositions        int           `json:"max_open_positions"`
	StopLossATRMultiplier   float64       `json:"stop_loss_atr_multiplier"`
	TakeProfitATRMultiplier float64       `json:"take_profit_atr_multiplier"` // 0 disables take-profit
	CooldownAfterLoss       time.Duration `json:"cooldown_after_loss"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositionSizePercent:  2.0,
		MaxLeverage:             5,
		MaxDrawdownPercent:      10,
		MaxDailyLossPercent:     5,
		MaxOpenPositions:        3,
		StopLossATRMultiplier:   2.0,
		TakeProfitATRMultiplier: 3.0,
		CooldownAfterLoss:       15 * time.Minute,
	}
}

// State is the running risk state, mutated only by UpdateState and
// RecordTrade.
type State struct {
	Equity            float64    `json:"equity"`
	AvailableBalance  float64    `json:"available_balance"`
	PeakEquity        float64    `json:"peak_equity"`
	OpenPositions     int        `json:"open_positions"`
	CurrentDrawdown   float64    `json:"current_drawdown"` // percent
	MaxDrawdownSeen   float64    `json:"max_drawdown_seen"`
	DailyPnL          float64    `json:"daily_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	ConsecutiveWins   int        `json:"consecutive_wins"`
	LastLossTime      *time.Time `json:"last_loss_time,omitempty"`
}

// TradeStats holds the exponentially-smoothed Kelly inputs, distinct from
// any persisted trade records.
type TradeStats struct {
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	TotalTrades int     `json:"total_trades"`
}

// ClosedTrade is the realized outcome fed back into the risk state.
type ClosedTrade struct {
	PnL        float64
	PnLPercent float64
	ClosedAt   time.Time
}

// Decision is the outcome of a trade-allowed check. Denials are expected
// operation, not errors; Reason is stable and display-ready.
type Decision struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason,omitempty"`
	Quantity   float64  `json:"quantity"`
	StopLoss   float64  `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

const (
	// statsAlpha is the smoothing factor for the running Kelly statistics.
	statsAlpha = 0.1

	// kellyMinTrades gates Kelly blending until enough history exists.
	kellyMinTrades = 20

	// varMinReturns gates the VaR cap until enough returns are recorded.
	varMinReturns = 20

	// varTarget is the maximum tolerated 95% VaR of equity per trade.
	varTarget = 0.02

	// maxRecentReturns bounds the rolling returns buffer.
	maxRecentReturns = 100
)

// Manager is the per-bot risk engine. One instance per bot; no state is
// shared across bots.
type Manager struct {
	mu            sync.RWMutex
	config        Config
	state         State
	stats         TradeStats
	recentReturns []float64
	dailyReset    time.Time
	logger        zerolog.Logger
	now           func() time.Time
}

// NewManager creates a risk manager.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		config:     cfg,
		dailyReset: time.Now().Truncate(24 * time.Hour),
		logger:     logger.With().Str("component", "RiskManager").Logger(),
		now:        time.Now,
	}
}

// Config returns a copy of the active configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the configuration (learning updates).
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// State returns a copy of the running risk state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stats returns a copy of the smoothed trade statistics.
func (m *Manager) Stats() TradeStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// RecentReturns returns a copy of the rolling returns buffer.
func (m *Manager) RecentReturns() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.recentReturns))
	copy(out, m.recentReturns)
	return out
}

// UpdateState refreshes equity, peak equity and drawdown from an account
// snapshot.
func (m *Manager) UpdateState(equity, availableBalance float64, openPositions int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Equity = equity
	m.state.AvailableBalance = availableBalance
	m.state.OpenPositions = openPositions

	if equity > m.state.PeakEquity {
		m.state.PeakEquity = equity
	}

	if m.state.PeakEquity > 0 {
		m.state.CurrentDrawdown = (m.state.PeakEquity - equity) / m.state.PeakEquity * 100
	} else {
		m.state.CurrentDrawdown = 0
	}
	if m.state.CurrentDrawdown > m.state.MaxDrawdownSeen {
		m.state.MaxDrawdownSeen = m.state.CurrentDrawdown
	}
}

// RecordTrade folds a closed trade into daily PnL, streaks, the rolling
// returns buffer and the smoothed Kelly statistics.
func (m *Manager) RecordTrade(t ClosedTrade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkDailyReset()
	m.state.DailyPnL += t.PnL
	m.state.DailyTrades++

	if t.PnL >= 0 {
		m.state.ConsecutiveWins++
		m.state.ConsecutiveLosses = 0
	} else {
		m.state.ConsecutiveLosses++
		m.state.ConsecutiveWins = 0
		lossTime := t.ClosedAt
		if lossTime.IsZero() {
			lossTime = m.now()
		}
		m.state.LastLossTime = &lossTime
	}

	m.recentReturns = append(m.recentReturns, t.PnLPercent/100)
	if len(m.recentReturns) > maxRecentReturns {
		m.recentReturns = m.recentReturns[len(m.recentReturns)-maxRecentReturns:]
	}

	win := 0.0
	if t.PnL >= 0 {
		win = 1.0
	}
	if m.stats.TotalTrades == 0 {
		m.stats.WinRate = win
	} else {
		m.stats.WinRate = (1-statsAlpha)*m.stats.WinRate + statsAlpha*win
	}
	if t.PnL >= 0 {
		if m.stats.AvgWin == 0 {
			m.stats.AvgWin = t.PnL
		} else {
			m.stats.AvgWin = (1-statsAlpha)*m.stats.AvgWin + statsAlpha*t.PnL
		}
	} else {
		loss := -t.PnL
		if m.stats.AvgLoss == 0 {
			m.stats.AvgLoss = loss
		} else {
			m.stats.AvgLoss = (1-statsAlpha)*m.stats.AvgLoss + statsAlpha*loss
		}
	}
	m.stats.TotalTrades++

	m.logger.Info().
		Float64("pnl", t.PnL).
		Float64("daily_pnl", m.state.DailyPnL).
		Int("consecutive_losses", m.state.ConsecutiveLosses).
		Msg("Trade recorded")
}

// CheckTradeAllowed applies the hard risk gates and, when they pass,
// computes position size and protective levels for the signal.
func (m *Manager) CheckTradeAllowed(sig *decision.Signal, price, atr, volRatio float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	if m.state.CurrentDrawdown >= m.config.MaxDrawdownPercent {
		return Decision{Reason: fmt.Sprintf("Max drawdown reached (%.1f%% >= %.0f%%)",
			m.state.CurrentDrawdown, m.config.MaxDrawdownPercent)}
	}

	if m.state.OpenPositions >= m.config.MaxOpenPositions {
		return Decision{Reason: fmt.Sprintf("Max open positions reached (%d/%d)",
			m.state.OpenPositions, m.config.MaxOpenPositions)}
	}

	if m.state.LastLossTime != nil && m.config.CooldownAfterLoss > 0 {
		elapsed := m.now().Sub(*m.state.LastLossTime)
		if elapsed < m.config.CooldownAfterLoss {
			remaining := m.config.CooldownAfterLoss - elapsed
			return Decision{Reason: fmt.Sprintf("Post-loss cooldown active (%s remaining)",
				remaining.Round(time.Second))}
		}
	}

	qty := m.positionSize(price, atr, volRatio)
	if qty <= 0 {
		return Decision{Reason: "Computed position size is zero"}
	}

	stopLoss, takeProfit := m.protectiveLevels(sig.Action, price, atr)

	return Decision{
		Allowed:    true,
		Quantity:   qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
}

// CalculatePositionSize computes the risk-adjusted quantity for an entry at
// price with the given ATR. Never negative; 0 on invalid inputs.
func (m *Manager) CalculatePositionSize(price, atr, volRatio float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionSize(price, atr, volRatio)
}

func (m *Manager) positionSize(price, atr, volRatio float64) float64 {
	if price <= 0 || atr <= 0 || m.state.Equity <= 0 {
		return 0
	}

	stopDistance := atr * m.config.StopLossATRMultiplier
	if stopDistance <= 0 {
		return 0
	}

	riskFraction := m.config.MaxPositionSizePercent / 100

	// Blend with quarter-Kelly once enough history exists.
	if m.stats.TotalTrades >= kellyMinTrades && m.stats.AvgLoss > 0 {
		kelly := indicators.KellyFraction(m.stats.WinRate, m.stats.AvgWin, m.stats.AvgLoss, 0.25)
		riskFraction = 0.5*riskFraction + 0.5*kelly
	}

	// Loss streak damping.
	streak := m.state.ConsecutiveLosses
	if streak > 5 {
		streak = 5
	}
	riskFraction *= math.Pow(0.8, float64(streak))

	// Cut size in elevated volatility.
	if volRatio > 1.5 {
		riskFraction *= 0.7
	}

	// Keep the historical 95% VaR of the resulting exposure at or below
	// the target fraction of equity.
	if len(m.recentReturns) >= varMinReturns {
		if v := indicators.ValueAtRisk(m.recentReturns, 0.95); v > 0 {
			if limit := varTarget / v; riskFraction > limit {
				riskFraction = limit
			}
		}
	}

	if riskFraction <= 0 {
		return 0
	}

	qty := m.state.Equity * riskFraction / stopDistance
	maxQty := m.state.Equity * m.config.MaxLeverage / price
	if qty > maxQty {
		qty = maxQty
	}
	if qty < 0 {
		return 0
	}
	return qty
}

func (m *Manager) protectiveLevels(action decision.Action, price, atr float64) (float64, *float64) {
	slDist := atr * m.config.StopLossATRMultiplier

	var stopLoss float64
	var takeProfit *float64
	if action.Bullish() {
		stopLoss = price - slDist
		if m.config.TakeProfitATRMultiplier > 0 {
			tp := price + atr*m.config.TakeProfitATRMultiplier
			takeProfit = &tp
		}
	} else {
		stopLoss = price + slDist
		if m.config.TakeProfitATRMultiplier > 0 {
			tp := price - atr*m.config.TakeProfitATRMultiplier
			takeProfit = &tp
		}
	}
	return stopLoss, takeProfit
}

// ShouldStopBot reports the authoritative kill condition: drawdown at or
// above the configured maximum.
func (m *Manager) ShouldStopBot() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.CurrentDrawdown >= m.config.MaxDrawdownPercent {
		return true, fmt.Sprintf("Max drawdown reached (%.1f%% >= %.0f%%)",
			m.state.CurrentDrawdown, m.config.MaxDrawdownPercent)
	}
	return false, ""
}

// CheckPositionRisk reports whether open positions must be force-closed.
// Same kill condition as ShouldStopBot; the execution layer must honor it.
func (m *Manager) CheckPositionRisk() (bool, string) {
	return m.ShouldStopBot()
}

func (m *Manager) checkDailyReset() {
	today := m.now().Truncate(24 * time.Hour)
	if today.After(m.dailyReset) {
		m.state.DailyPnL = 0
		m.state.DailyTrades = 0
		m.dailyReset = today
	}
}
