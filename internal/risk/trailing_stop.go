package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// TrailingConfig controls the ratchet that tightens protective stops as a
// trade moves into profit.
type TrailingConfig struct {
	Enabled           bool    `json:"enabled"`
	TrailingPercent   float64 `json:"trailing_percent"`   // stop distance from the water mark
	ActivationPercent float64 `json:"activation_percent"` // profit needed before trailing starts
}

// DefaultTrailingConfig trails 1.5% behind the water mark once a trade is
// 1% in profit.
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		Enabled:           true,
		TrailingPercent:   1.5,
		ActivationPercent: 1.0,
	}
}

// StopAdjustment is the outcome of a price update on a tracked symbol.
// Triggered means the price crossed the current stop level; paper trades
// depend on this signal because their resting stop orders never fill.
type StopAdjustment struct {
	Symbol    string  `json:"symbol"`
	OldStop   float64 `json:"old_stop"`
	NewStop   float64 `json:"new_stop"`
	Triggered bool    `json:"triggered"`
}

type trailingState struct {
	side      hyperliquid.Side
	entry     float64
	stop      float64
	waterMark float64 // highest price since entry for longs, lowest for shorts
	active    bool
	updated   time.Time
}

// TrailingStops ratchets stop levels per symbol. A stop only ever
// tightens: up for longs, down for shorts.
type TrailingStops struct {
	cfg    TrailingConfig
	logger zerolog.Logger

	mu     sync.Mutex
	states map[string]*trailingState
}

// NewTrailingStops creates a trailing stop tracker.
func NewTrailingStops(cfg TrailingConfig, logger zerolog.Logger) *TrailingStops {
	if cfg.TrailingPercent <= 0 {
		cfg.TrailingPercent = DefaultTrailingConfig().TrailingPercent
	}
	if cfg.ActivationPercent < 0 {
		cfg.ActivationPercent = DefaultTrailingConfig().ActivationPercent
	}
	return &TrailingStops{
		cfg:    cfg,
		logger: logger.With().Str("component", "TrailingStops").Logger(),
		states: make(map[string]*trailingState),
	}
}

// Enabled reports whether trailing is configured on.
func (t *TrailingStops) Enabled() bool { return t.cfg.Enabled }

// Track starts trailing a trade from its entry price and initial stop.
// Tracking an already-tracked symbol is a no-op, so a cycle can call it
// for every open trade without resetting the ratchet.
func (t *TrailingStops) Track(symbol string, side hyperliquid.Side, entry, stop float64) {
	if !t.cfg.Enabled || entry <= 0 || stop <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[symbol]; ok {
		return
	}
	t.states[symbol] = &trailingState{
		side:      side,
		entry:     entry,
		stop:      stop,
		waterMark: entry,
		updated:   time.Now(),
	}
	t.logger.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry", entry).
		Float64("stop", stop).
		Msg("Trailing stop tracking started")
}

// Drop stops tracking a symbol.
func (t *TrailingStops) Drop(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, symbol)
}

// StopLevel returns the current trailed stop for a symbol.
func (t *TrailingStops) StopLevel(symbol string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[symbol]; ok {
		return st.stop, true
	}
	return 0, false
}

// Update feeds a fresh price into the ratchet. It returns nil when
// nothing changed, an adjustment when the stop tightened, and a triggered
// adjustment when the price crossed the current stop.
func (t *TrailingStops) Update(symbol string, price float64) *StopAdjustment {
	if !t.cfg.Enabled || price <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[symbol]
	if !ok {
		return nil
	}
	st.updated = time.Now()

	if st.side == hyperliquid.SideBuy {
		return t.updateLong(symbol, st, price)
	}
	return t.updateShort(symbol, st, price)
}

func (t *TrailingStops) updateLong(symbol string, st *trailingState, price float64) *StopAdjustment {
	if price <= st.stop {
		return &StopAdjustment{Symbol: symbol, OldStop: st.stop, NewStop: st.stop, Triggered: true}
	}
	if price > st.waterMark {
		st.waterMark = price
	}

	profitPct := (price - st.entry) / st.entry * 100
	if !st.active && profitPct >= t.cfg.ActivationPercent {
		st.active = true
		t.logger.Info().Str("symbol", symbol).Float64("profit_pct", profitPct).Msg("Trailing stop activated")
	}
	if !st.active {
		return nil
	}

	newStop := st.waterMark * (1 - t.cfg.TrailingPercent/100)
	if newStop <= st.stop {
		return nil
	}
	old := st.stop
	st.stop = newStop
	t.logger.Info().
		Str("symbol", symbol).
		Float64("old_stop", old).
		Float64("new_stop", newStop).
		Float64("water_mark", st.waterMark).
		Msg("Stop trailed up")
	return &StopAdjustment{Symbol: symbol, OldStop: old, NewStop: newStop}
}

func (t *TrailingStops) updateShort(symbol string, st *trailingState, price float64) *StopAdjustment {
	if price >= st.stop {
		return &StopAdjustment{Symbol: symbol, OldStop: st.stop, NewStop: st.stop, Triggered: true}
	}
	if price < st.waterMark {
		st.waterMark = price
	}

	profitPct := (st.entry - price) / st.entry * 100
	if !st.active && profitPct >= t.cfg.ActivationPercent {
		st.active = true
		t.logger.Info().Str("symbol", symbol).Float64("profit_pct", profitPct).Msg("Trailing stop activated")
	}
	if !st.active {
		return nil
	}

	newStop := st.waterMark * (1 + t.cfg.TrailingPercent/100)
	if newStop >= st.stop {
		return nil
	}
	old := st.stop
	st.stop = newStop
	t.logger.Info().
		Str("symbol", symbol).
		Float64("old_stop", old).
		Float64("new_stop", newStop).
		Float64("water_mark", st.waterMark).
		Msg("Stop trailed down")
	return &StopAdjustment{Symbol: symbol, OldStop: old, NewStop: newStop}
}
