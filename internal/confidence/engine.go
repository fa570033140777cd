package confidence

import (
	"fmt"
	"math"
	"time"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/regime"
)

// Family score bounds.
const (
	maxDataQuality     = 20.0
	maxSignalAgreement = 30.0
	maxRiskFit         = 25.0
	maxRegimeMatch     = 15.0
	maxNewsBonus       = 10.0

	// minDataQualityScore is the hard-block floor for the data family.
	minDataQualityScore = 8.0
)

// RiskInputs are the risk-engine ratios scored by the risk-fit family.
// Each ratio is current value over its configured maximum; a ratio >= 1 on
// drawdown, daily loss, position size or leverage is a hard limit breach.
type RiskInputs struct {
	DrawdownRatio      float64 `json:"drawdown_ratio"`
	DailyLossRatio     float64 `json:"daily_loss_ratio"`
	PositionSizeRatio  float64 `json:"position_size_ratio"`
	LeverageRatio      float64 `json:"leverage_ratio"`
	OpenPositionsRatio float64 `json:"open_positions_ratio"`
}

// Input bundles everything one confidence evaluation consumes.
type Input struct {
	Signal   *decision.Signal
	Decision *decision.Result
	Quality  regime.DataQuality
	Regime   regime.Regime
	Risk     RiskInputs
	News     *decision.NewsSentiment
}

// Evaluate is a pure function: same input, same result. It scores the five
// families, gates on the hard-block rules and emits the evidence trail.
func Evaluate(in Input) *Result {
	res := &Result{
		SuggestedAction: decision.ActionHold,
		Evidence:        make([]Evidence, 0, 16),
	}
	if in.Decision != nil {
		res.SuggestedAction = in.Decision.Action
	}

	var hardBlocks []string

	res.Breakdown.DataQuality = scoreDataQuality(in.Quality, &res.Evidence)
	res.Breakdown.SignalAgreement = scoreSignalAgreement(in.Decision, &res.Evidence)

	riskFit, riskBlocks := scoreRiskFit(in.Risk, &res.Evidence)
	res.Breakdown.RiskFit = riskFit
	hardBlocks = append(hardBlocks, riskBlocks...)

	res.Breakdown.RegimeMatch = scoreRegimeMatch(res.SuggestedAction, in.Regime, &res.Evidence)
	res.Breakdown.NewsBonus = scoreNewsBonus(res.SuggestedAction, in.News, &res.Evidence)

	res.Breakdown.Total = res.Breakdown.DataQuality +
		res.Breakdown.SignalAgreement +
		res.Breakdown.RiskFit +
		res.Breakdown.RegimeMatch +
		res.Breakdown.NewsBonus

	if res.Breakdown.DataQuality < minDataQualityScore {
		hardBlocks = append(hardBlocks, fmt.Sprintf("Data quality too low (%.0f < %.0f)",
			res.Breakdown.DataQuality, minDataQualityScore))
	}

	if in.Decision != nil && in.Decision.PassedCount < in.Decision.RequiredCount {
		hardBlocks = append(hardBlocks, fmt.Sprintf("Insufficient confirmations (%d < %d)",
			in.Decision.PassedCount, in.Decision.RequiredCount))
	}

	res.Gating.HardBlocks = hardBlocks
	res.Gating.Allowed = len(hardBlocks) == 0
	if !res.Gating.Allowed {
		res.Gating.BlockedReason = hardBlocks[0]
	}

	// HOLD passes through; anything else only survives when allowed.
	switch {
	case res.SuggestedAction == decision.ActionHold:
		res.Action = decision.ActionHold
	case res.Gating.Allowed:
		res.Action = res.SuggestedAction
	default:
		res.Action = decision.ActionNoTrade
	}

	return res
}

// scoreDataQuality: +5 connected, up to +8 freshness, up to +4 gap count,
// up to +3 latency.
func scoreDataQuality(q regime.DataQuality, evidence *[]Evidence) float64 {
	score := 0.0

	if q.Connected {
		score += 5
		appendEvidence(evidence, EvidenceData, "feed_connected", "connected", StatusPass, 5)
	} else {
		appendEvidence(evidence, EvidenceData, "feed_connected", "disconnected", StatusFail, 5)
	}

	age := q.LastCandleAge
	var freshness float64
	switch {
	case age < 5*time.Second:
		freshness = 8
	case age < 30*time.Second:
		freshness = 6
	case age < time.Minute:
		freshness = 3
	default:
		freshness = 0
	}
	score += freshness
	appendEvidence(evidence, EvidenceData, "candle_freshness",
		fmt.Sprintf("last candle %s old", age.Round(time.Millisecond)), passFail(freshness > 0), 8)

	var gapScore float64
	switch {
	case q.GapCount == 0:
		gapScore = 4
	case q.GapCount <= 2:
		gapScore = 2
	default:
		gapScore = 0
	}
	score += gapScore
	appendEvidence(evidence, EvidenceData, "candle_gaps",
		fmt.Sprintf("%d gaps", q.GapCount), passFail(gapScore > 0), 4)

	var latencyScore float64
	switch {
	case q.Latency < 100*time.Millisecond:
		latencyScore = 3
	case q.Latency < 500*time.Millisecond:
		latencyScore = 2
	default:
		latencyScore = 0
	}
	score += latencyScore
	appendEvidence(evidence, EvidenceData, "feed_latency",
		q.Latency.Round(time.Millisecond).String(), passFail(latencyScore > 0), 3)

	return clamp(score, 0, maxDataQuality)
}

// scoreSignalAgreement: round(20*min(passed/required,1) + 10*(sum passed
// weight / (N*10))).
func scoreSignalAgreement(d *decision.Result, evidence *[]Evidence) float64 {
	if d == nil || len(d.Confirmations) == 0 {
		appendEvidence(evidence, EvidenceIndicator, "confirmations", "none evaluated", StatusUnknown, maxSignalAgreement)
		return 0
	}

	weightPassed := 0.0
	for _, c := range d.Confirmations {
		status := StatusFail
		if c.Passed {
			status = StatusPass
			weightPassed += c.Weight
		}
		appendEvidence(evidence, EvidenceIndicator, c.Name, c.Reason, status, c.Weight)
	}

	required := d.RequiredCount
	if required <= 0 {
		required = 1
	}

	ratio := float64(d.PassedCount) / float64(required)
	if ratio > 1 {
		ratio = 1
	}
	score := math.Round(20*ratio + 10*(weightPassed/(float64(len(d.Confirmations))*10)))

	return clamp(score, 0, maxSignalAgreement)
}

// riskSubWeights distribute the 25 risk-fit points across the five checks.
var riskSubWeights = []struct {
	label  string
	weight float64
	hard   bool // ratio >= 1 is a hard limit breach
}{
	{"drawdown_ratio", 7, true},
	{"daily_loss_ratio", 6, true},
	{"position_size_ratio", 5, true},
	{"leverage_ratio", 4, true},
	{"open_positions_ratio", 3, false},
}

// scoreRiskFit sums the five weighted sub-checks. Any hard limit breach
// forces the whole family to 0 and hard-blocks the decision.
func scoreRiskFit(r RiskInputs, evidence *[]Evidence) (float64, []string) {
	ratios := []float64{r.DrawdownRatio, r.DailyLossRatio, r.PositionSizeRatio, r.LeverageRatio, r.OpenPositionsRatio}

	score := 0.0
	var blocks []string
	for i, sub := range riskSubWeights {
		ratio := ratios[i]
		breached := sub.hard && ratio >= 1

		if breached {
			switch sub.label {
			case "drawdown_ratio":
				blocks = append(blocks, fmt.Sprintf("Risk limit breached: drawdown at %.0f%% of maximum", ratio*100))
			case "daily_loss_ratio":
				blocks = append(blocks, fmt.Sprintf("Risk limit breached: daily loss at %.0f%% of maximum", ratio*100))
			case "position_size_ratio":
				blocks = append(blocks, "Risk limit breached: position size exceeds maximum")
			case "leverage_ratio":
				blocks = append(blocks, "Risk limit breached: leverage exceeds maximum")
			}
			appendEvidence(evidence, EvidenceRisk, sub.label, fmt.Sprintf("%.2f", ratio), StatusFail, sub.weight)
			continue
		}

		score += sub.weight * (1 - clamp(ratio, 0, 1))
		appendEvidence(evidence, EvidenceRisk, sub.label, fmt.Sprintf("%.2f", ratio), passFail(ratio < 1), sub.weight)
	}

	if len(blocks) > 0 {
		return 0, blocks
	}
	return clamp(score, 0, maxRiskFit), nil
}

// scoreRegimeMatch: trend alignment 8, volatility suitability 4 (medium
// preferred), non-ranging or HOLD bonus 3.
func scoreRegimeMatch(action decision.Action, rg regime.Regime, evidence *[]Evidence) float64 {
	score := 0.0

	const slopeThreshold = 0.0005
	trendAligned := false
	switch {
	case action == decision.ActionHold:
		trendAligned = true
	case action.Bullish():
		trendAligned = rg.TrendSlope > slopeThreshold
	default:
		trendAligned = rg.TrendSlope < -slopeThreshold
	}
	if trendAligned {
		score += 8
	}
	appendEvidence(evidence, EvidenceRegime, "trend_alignment",
		fmt.Sprintf("slope %.5f vs %s", rg.TrendSlope, action), passFail(trendAligned), 8)

	var volScore float64
	switch rg.Volatility {
	case regime.VolatilityMedium:
		volScore = 4
	case regime.VolatilityLow:
		volScore = 2
	default:
		volScore = 0
	}
	score += volScore
	appendEvidence(evidence, EvidenceRegime, "volatility_suitability",
		string(rg.Volatility), passFail(volScore > 0), 4)

	if !rg.Ranging || action == decision.ActionHold {
		score += 3
		appendEvidence(evidence, EvidenceRegime, "ranging", "not ranging", StatusPass, 3)
	} else {
		appendEvidence(evidence, EvidenceRegime, "ranging", "ranging market", StatusFail, 3)
	}

	return clamp(score, 0, maxRegimeMatch)
}

// scoreNewsBonus awards 10/6/3/0 by sentiment alignment and confidence
// tier. Absent or ungrounded sentiment withholds the bonus (UNKNOWN), it
// never subtracts.
func scoreNewsBonus(action decision.Action, news *decision.NewsSentiment, evidence *[]Evidence) float64 {
	if news == nil || len(news.Sources) == 0 {
		appendEvidence(evidence, EvidenceGrok, "news_sentiment", "no grounded sources", StatusUnknown, maxNewsBonus)
		return 0
	}

	aligned := (action.Bullish() && news.Sentiment == "bullish") ||
		(!action.Bullish() && action != decision.ActionHold && news.Sentiment == "bearish")

	var score float64
	switch {
	case aligned && news.Confidence >= 0.8:
		score = 10
	case aligned && news.Confidence >= 0.6:
		score = 6
	case aligned && news.Confidence >= 0.4:
		score = 3
	default:
		score = 0
	}

	ev := Evidence{
		Type:   EvidenceGrok,
		Label:  "news_sentiment",
		Value:  fmt.Sprintf("%s at %.0f%% confidence (%d sources)", news.Sentiment, news.Confidence*100, len(news.Sources)),
		Status: passFail(score > 0),
		Weight: maxNewsBonus,
	}
	ev.SourceURL = news.Sources[0]
	*evidence = append(*evidence, ev)

	return score
}

func appendEvidence(evidence *[]Evidence, typ EvidenceType, label, value string, status EvidenceStatus, weight float64) {
	*evidence = append(*evidence, Evidence{
		Type:   typ,
		Label:  label,
		Value:  value,
		Status: status,
		Weight: weight,
	})
}

func passFail(ok bool) EvidenceStatus {
	if ok {
		return StatusPass
	}
	return StatusFail
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
