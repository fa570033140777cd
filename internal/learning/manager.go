package learning

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// snapshotCapacity caps the retained history; the oldest entry is evicted.
const snapshotCapacity = 20

// BotParams is the strongly-typed live configuration the learner mutates.
// MaxLeverage and MaxDrawdownPercent are carried for completeness but are
// permanently forbidden to the learner.
type BotParams struct {
	MinConfirmations         int     `json:"min_confirmations"`
	MinConfidence            float64 `json:"min_confidence"`
	RSIOverbought            float64 `json:"rsi_overbought"`
	RSIOversold              float64 `json:"rsi_oversold"`
	MaxPositionSizePercent   float64 `json:"max_position_size_percent"`
	StopLossATRMultiplier    float64 `json:"stop_loss_atr_multiplier"`
	TakeProfitATRMultiplier  float64 `json:"take_profit_atr_multiplier"`
	CooldownAfterLossMinutes float64 `json:"cooldown_after_loss_minutes"`
	MaxLeverage              float64 `json:"max_leverage"`
	MaxDrawdownPercent       float64 `json:"max_drawdown_percent"`
}

// value reads one parameter. The switch is exhaustive over the enum.
func (p BotParams) value(param Parameter) (float64, error) {
	switch param {
	case ParamMinConfirmations:
		return float64(p.MinConfirmations), nil
	case ParamMinConfidence:
		return p.MinConfidence, nil
	case ParamRSIOverbought:
		return p.RSIOverbought, nil
	case ParamRSIOversold:
		return p.RSIOversold, nil
	case ParamMaxPositionSize:
		return p.MaxPositionSizePercent, nil
	case ParamStopLossATRMult:
		return p.StopLossATRMultiplier, nil
	case ParamTakeProfitATRMult:
		return p.TakeProfitATRMultiplier, nil
	case ParamCooldownAfterLossMin:
		return p.CooldownAfterLossMinutes, nil
	case ParamMaxLeverage:
		return p.MaxLeverage, nil
	case ParamMaxDrawdown:
		return p.MaxDrawdownPercent, nil
	default:
		return 0, fmt.Errorf("unknown parameter %s", param)
	}
}

// set writes one whitelisted parameter.
func (p *BotParams) set(param Parameter, v float64) error {
	switch param {
	case ParamMinConfirmations:
		p.MinConfirmations = int(v)
	case ParamMinConfidence:
		p.MinConfidence = v
	case ParamRSIOverbought:
		p.RSIOverbought = v
	case ParamRSIOversold:
		p.RSIOversold = v
	case ParamMaxPositionSize:
		p.MaxPositionSizePercent = v
	case ParamStopLossATRMult:
		p.StopLossATRMultiplier = v
	case ParamTakeProfitATRMult:
		p.TakeProfitATRMultiplier = v
	case ParamCooldownAfterLossMin:
		p.CooldownAfterLossMinutes = v
	default:
		return fmt.Errorf("parameter %s is not writable", param)
	}
	return nil
}

// Snapshot is one append-only configuration history entry.
type Snapshot struct {
	ID         string    `json:"id"`
	Config     BotParams `json:"config"`
	CritiqueID string    `json:"critique_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
}

// snapshotRing is a fixed-capacity ring buffer; writing past capacity
// evicts the oldest snapshot.
type snapshotRing struct {
	entries []Snapshot
	start   int
	count   int
}

func newSnapshotRing(capacity int) *snapshotRing {
	return &snapshotRing{entries: make([]Snapshot, capacity)}
}

func (r *snapshotRing) push(s Snapshot) {
	idx := (r.start + r.count) % len(r.entries)
	if r.count == len(r.entries) {
		r.start = (r.start + 1) % len(r.entries)
		r.entries[idx] = s
		return
	}
	r.entries[idx] = s
	r.count++
}

// all returns snapshots oldest first.
func (r *snapshotRing) all() []Snapshot {
	out := make([]Snapshot, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%len(r.entries)])
	}
	return out
}

func (r *snapshotRing) len() int { return r.count }

// at returns the i-th snapshot, oldest first.
func (r *snapshotRing) at(i int) Snapshot {
	return r.entries[(r.start+i)%len(r.entries)]
}

// Manager owns the single authoritative live configuration and its capped
// snapshot history. One instance per bot.
type Manager struct {
	mu      sync.RWMutex
	current BotParams
	history *snapshotRing
	logger  zerolog.Logger
}

// NewManager creates a learning manager seeded with the human-set initial
// configuration, recorded as the first (stable) snapshot.
func NewManager(initial BotParams, logger zerolog.Logger) *Manager {
	m := &Manager{
		current: initial,
		history: newSnapshotRing(snapshotCapacity),
		logger:  logger.With().Str("component", "LearningManager").Logger(),
	}
	m.history.push(Snapshot{
		ID:        uuid.NewString(),
		Config:    initial,
		Timestamp: time.Now(),
		Reason:    "initial configuration",
	})
	return m
}

// Current returns the live configuration.
func (m *Manager) Current() BotParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshots returns the history, oldest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.all()
}

// ApplyRecommendations applies each whitelisted, in-bounds change from the
// critique. Rejected changes are logged and skipped without aborting the
// batch. Exactly one snapshot is recorded per batch with at least one
// applied change.
func (m *Manager) ApplyRecommendations(report CritiqueReport) []ParameterChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]ParameterChange, 0, len(report.Recommendations))
	applied := 0

	for _, rec := range report.Recommendations {
		change := rec
		change.Applied = false

		current, err := m.current.value(change.Parameter)
		if err == nil {
			change.PreviousValue = current
			err = validate(change.Parameter, current, change.NewValue)
		}
		if err == nil {
			err = m.current.set(change.Parameter, change.NewValue)
		}

		if err != nil {
			m.logger.Warn().
				Str("parameter", string(change.Parameter)).
				Float64("new_value", change.NewValue).
				Err(err).
				Msg("Recommendation rejected")
			results = append(results, change)
			continue
		}

		change.Applied = true
		applied++
		m.logger.Info().
			Str("parameter", string(change.Parameter)).
			Float64("previous", change.PreviousValue).
			Float64("new", change.NewValue).
			Str("critique_id", report.ID).
			Msg("Parameter updated")
		results = append(results, change)
	}

	if applied > 0 {
		m.history.push(Snapshot{
			ID:         uuid.NewString(),
			Config:     m.current,
			CritiqueID: report.ID,
			Timestamp:  time.Now(),
			Reason:     fmt.Sprintf("applied %d/%d recommendations", applied, len(report.Recommendations)),
		})
	}
	return results
}

// RecordManualChange replaces the live configuration with a human-set one
// and records a stable (critique-free) snapshot.
func (m *Manager) RecordManualChange(cfg BotParams, reason string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = cfg
	snap := Snapshot{
		ID:        uuid.NewString(),
		Config:    cfg,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	m.history.push(snap)
	return snap
}

// Rollback restores a named snapshot, or with an empty id the snapshot
// immediately preceding the newest (which requires at least two snapshots
// in history). The restore itself is recorded as a new snapshot; history
// is never truncated. Returns nil, leaving the configuration unchanged,
// when the target cannot be resolved.
func (m *Manager) Rollback(snapshotID string) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *Snapshot
	if snapshotID == "" {
		if m.history.len() < 2 {
			return nil
		}
		s := m.history.at(m.history.len() - 2)
		target = &s
	} else {
		for i := 0; i < m.history.len(); i++ {
			s := m.history.at(i)
			if s.ID == snapshotID {
				target = &s
				break
			}
		}
		if target == nil {
			return nil
		}
	}

	m.current = target.Config
	restored := Snapshot{
		ID:        uuid.NewString(),
		Config:    target.Config,
		Timestamp: time.Now(),
		Reason:    fmt.Sprintf("rolled back to %s", target.ID),
	}
	m.history.push(restored)

	m.logger.Info().Str("restored_from", target.ID).Msg("Configuration rolled back")
	return target
}

// LastStableConfig returns the most recent snapshot with no critique id,
// i.e. the last human-set configuration, or nil when none remains in the
// retained history.
func (m *Manager) LastStableConfig() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := m.history.len() - 1; i >= 0; i-- {
		s := m.history.at(i)
		if s.CritiqueID == "" {
			return &s
		}
	}
	return nil
}
