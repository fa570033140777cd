// Package decision evaluates candidate trade signals against a set of
// weighted, independent confirmation checks and declares whether enough of
// them agree for the signal to be executable.
package decision

// Action is a trading action carried by a signal or decision.
type Action string

const (
	ActionLong       Action = "LONG"
	ActionShort      Action = "SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionHold       Action = "HOLD"
	// ActionNoTrade is emitted downstream when gating blocks an otherwise
	// executable signal.
	ActionNoTrade Action = "NO_TRADE"
)

// IsEntry reports whether the action opens a new position.
func (a Action) IsEntry() bool {
	return a == ActionLong || a == ActionShort
}

// IsClose reports whether the action closes an existing position.
func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort
}

// Bullish reports whether the action profits from rising prices. Closing a
// short is bullish, closing a long bearish.
func (a Action) Bullish() bool {
	return a == ActionLong || a == ActionCloseShort
}

// Signal is a candidate trading signal produced upstream and consumed as
// decision-policy input.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// Confirmation is one independent weighted boolean check. Recomputed on
// every evaluation, never persisted.
type Confirmation struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
	Weight float64 `json:"weight"` // in [0,1]
}

// Result is the outcome of one decision-policy evaluation.
type Result struct {
	Action        Action         `json:"action"`
	Confirmations []Confirmation `json:"confirmations"`
	PassedCount   int            `json:"passed_count"`
	RequiredCount int            `json:"required_count"`
	Confidence    float64        `json:"confidence"`
	Reason        string         `json:"reason"`
	CanExecute    bool           `json:"can_execute"`
}

// NewsSentiment is an optional external sentiment result fed into the news
// confirmation and the downstream news-bonus scoring.
type NewsSentiment struct {
	Sentiment  string   `json:"sentiment"` // "bullish", "bearish", "neutral"
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}
