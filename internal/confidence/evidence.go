// Package confidence composes five independently-scored families into a
// single 0-100 confidence score with hard-block gating and a full,
// serializable evidence trail for audit.
package confidence

import "hyperliquid-trading-bot/internal/decision"

// EvidenceType labels which family produced an evidence entry.
type EvidenceType string

const (
	EvidenceIndicator EvidenceType = "INDICATOR"
	EvidenceGrok      EvidenceType = "GROK"
	EvidenceRisk      EvidenceType = "RISK"
	EvidenceData      EvidenceType = "DATA"
	EvidenceRegime    EvidenceType = "REGIME"
)

// EvidenceStatus is the outcome of an individual evidence check.
type EvidenceStatus string

const (
	StatusPass    EvidenceStatus = "PASS"
	StatusFail    EvidenceStatus = "FAIL"
	StatusUnknown EvidenceStatus = "UNKNOWN"
)

// Evidence is one append-only audit unit. The ordered list for a decision
// is the explainability trail; each entry carries enough information to
// reconstruct the human-readable reason without recomputation.
type Evidence struct {
	Type      EvidenceType   `json:"type"`
	Label     string         `json:"label"`
	Value     string         `json:"value"`
	Status    EvidenceStatus `json:"status"`
	Weight    float64        `json:"weight"`
	SourceURL string         `json:"source_url,omitempty"`
}

// Breakdown holds the five bounded sub-scores. Total is always the exact
// sum of the five.
type Breakdown struct {
	DataQuality     float64 `json:"data_quality"`     // 0-20
	SignalAgreement float64 `json:"signal_agreement"` // 0-30
	RiskFit         float64 `json:"risk_fit"`         // 0-25
	RegimeMatch     float64 `json:"regime_match"`     // 0-15
	NewsBonus       float64 `json:"news_bonus"`       // 0-10
	Total           float64 `json:"total"`            // 0-100
}

// Gating is the hard-block verdict. Allowed is false exactly when
// HardBlocks is non-empty.
type Gating struct {
	Allowed       bool     `json:"allowed"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
	HardBlocks    []string `json:"hard_blocks,omitempty"`
}

// Result is one full confidence evaluation: the gated action, the score
// breakdown, the gating verdict and the ordered evidence trail.
type Result struct {
	SuggestedAction decision.Action `json:"suggested_action"`
	Action          decision.Action `json:"action"`
	Breakdown       Breakdown       `json:"breakdown"`
	Gating          Gating          `json:"gating"`
	Evidence        []Evidence      `json:"evidence"`
}
