// Package learning applies critique-derived parameter changes to the live
// bot configuration inside a fixed whitelist/bounds table, with full
// snapshot history and non-destructive rollback.
package learning

import "fmt"

// Parameter is the closed enum of tunable configuration fields. Anything
// outside this enum is rejected; there is no string-path lookup into the
// config.
type Parameter string

const (
	ParamMinConfirmations     Parameter = "decision.min_confirmations"
	ParamMinConfidence        Parameter = "decision.min_confidence"
	ParamRSIOverbought        Parameter = "decision.rsi_overbought"
	ParamRSIOversold          Parameter = "decision.rsi_oversold"
	ParamMaxPositionSize      Parameter = "risk.max_position_size_percent"
	ParamStopLossATRMult      Parameter = "risk.stop_loss_atr_multiplier"
	ParamTakeProfitATRMult    Parameter = "risk.take_profit_atr_multiplier"
	ParamCooldownAfterLossMin Parameter = "risk.cooldown_after_loss_minutes"

	// Permanently forbidden: safety caps the learner may never touch.
	ParamMaxLeverage Parameter = "risk.max_leverage"
	ParamMaxDrawdown Parameter = "risk.max_drawdown_percent"
)

// Bounds is the declared [Min,Max] range for a whitelisted parameter.
type Bounds struct {
	Min float64
	Max float64
}

// parameterBounds is the whitelist. Parameters absent from this table are
// not tunable, whatever the critique recommends.
var parameterBounds = map[Parameter]Bounds{
	ParamMinConfirmations:     {Min: 1, Max: 5},
	ParamMinConfidence:        {Min: 40, Max: 90},
	ParamRSIOverbought:        {Min: 60, Max: 85},
	ParamRSIOversold:          {Min: 15, Max: 40},
	ParamMaxPositionSize:      {Min: 0.5, Max: 5},
	ParamStopLossATRMult:      {Min: 1, Max: 4},
	ParamTakeProfitATRMult:    {Min: 1, Max: 6},
	ParamCooldownAfterLossMin: {Min: 0, Max: 120},
}

// forbiddenParameters may never be mutated by the learner.
var forbiddenParameters = map[Parameter]bool{
	ParamMaxLeverage: true,
	ParamMaxDrawdown: true,
}

// validate checks a proposed change against the whitelist and bounds.
// The stop-loss multiplier may only be widened, never tightened.
func validate(p Parameter, current, proposed float64) error {
	if forbiddenParameters[p] {
		return fmt.Errorf("parameter %s is permanently forbidden", p)
	}
	bounds, ok := parameterBounds[p]
	if !ok {
		return fmt.Errorf("parameter %s is not in the whitelist", p)
	}
	if proposed < bounds.Min || proposed > bounds.Max {
		return fmt.Errorf("value %.2f for %s outside bounds [%.2f, %.2f]", proposed, p, bounds.Min, bounds.Max)
	}
	if p == ParamStopLossATRMult && proposed < current {
		return fmt.Errorf("stop-loss multiplier may only be widened (%.2f < current %.2f)", proposed, current)
	}
	return nil
}

// ParameterChange is one recommended (and possibly applied) mutation.
type ParameterChange struct {
	Parameter     Parameter `json:"parameter"`
	PreviousValue float64   `json:"previous_value"`
	NewValue      float64   `json:"new_value"`
	Reason        string    `json:"reason"`
	Applied       bool      `json:"applied"`
	RolledBack    bool      `json:"rolled_back"`
}

// CritiqueReport is the external critique input: a batch of recommended
// parameter changes.
type CritiqueReport struct {
	ID              string            `json:"id"`
	Recommendations []ParameterChange `json:"recommendations"`
}
