package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperliquid-trading-bot/internal/decision"
	"hyperliquid-trading-bot/internal/regime"
)

func goodQuality() regime.DataQuality {
	return regime.DataQuality{
		Connected:     true,
		LastCandleAge: 2 * time.Second,
		GapCount:      0,
		Latency:       50 * time.Millisecond,
	}
}

func goodRegime() regime.Regime {
	return regime.Regime{
		TrendSlope:     0.001,
		Volatility:     regime.VolatilityMedium,
		Ranging:        false,
		SufficientData: true,
	}
}

func passingDecision() *decision.Result {
	return &decision.Result{
		Action: decision.ActionLong,
		Confirmations: []decision.Confirmation{
			{Name: "ema_trend", Passed: true, Weight: 1.0},
			{Name: "ichimoku", Passed: true, Weight: 0.9},
			{Name: "atr_band", Passed: true, Weight: 0.7},
			{Name: "rsi_regime", Passed: false, Weight: 0.8},
		},
		PassedCount:   3,
		RequiredCount: 3,
		CanExecute:    true,
	}
}

func TestTotalIsExactSumOfFamilies(t *testing.T) {
	res := Evaluate(Input{
		Decision: passingDecision(),
		Quality:  goodQuality(),
		Regime:   goodRegime(),
		Risk:     RiskInputs{DrawdownRatio: 0.2, OpenPositionsRatio: 0.33},
	})

	sum := res.Breakdown.DataQuality + res.Breakdown.SignalAgreement +
		res.Breakdown.RiskFit + res.Breakdown.RegimeMatch + res.Breakdown.NewsBonus
	assert.Equal(t, sum, res.Breakdown.Total)
	assert.LessOrEqual(t, res.Breakdown.Total, 100.0)
}

func TestFullyHealthyDecisionAllowed(t *testing.T) {
	res := Evaluate(Input{
		Decision: passingDecision(),
		Quality:  goodQuality(),
		Regime:   goodRegime(),
		Risk:     RiskInputs{},
	})

	require.True(t, res.Gating.Allowed, "hard blocks: %v", res.Gating.HardBlocks)
	assert.Equal(t, decision.ActionLong, res.Action)
	assert.Equal(t, 20.0, res.Breakdown.DataQuality)
	assert.Equal(t, 15.0, res.Breakdown.RegimeMatch)
	assert.Equal(t, 25.0, res.Breakdown.RiskFit)
}

func TestDataQualityScoreExample(t *testing.T) {
	// Disconnected, 90s-old candle, zero gaps, 50ms latency:
	// 0 + 0 + 4 + 3 = 7, under the floor of 8.
	q := regime.DataQuality{
		Connected:     false,
		LastCandleAge: 90 * time.Second,
		GapCount:      0,
		Latency:       50 * time.Millisecond,
		Delayed:       true,
	}

	res := Evaluate(Input{
		Decision: passingDecision(),
		Quality:  q,
		Regime:   goodRegime(),
	})

	assert.Equal(t, 7.0, res.Breakdown.DataQuality)
	require.False(t, res.Gating.Allowed)
	assert.Equal(t, decision.ActionNoTrade, res.Action)
	assert.Contains(t, res.Gating.BlockedReason, "Data quality too low")
}

func TestRiskBreachForcesRiskFitToZero(t *testing.T) {
	res := Evaluate(Input{
		Decision: passingDecision(),
		Quality:  goodQuality(),
		Regime:   goodRegime(),
		Risk:     RiskInputs{DrawdownRatio: 1.2},
	})

	assert.Equal(t, 0.0, res.Breakdown.RiskFit)
	require.False(t, res.Gating.Allowed)
	assert.Equal(t, decision.ActionNoTrade, res.Action)
	assert.Contains(t, res.Gating.HardBlocks[0], "drawdown")
}

func TestInsufficientConfirmationsHardBlock(t *testing.T) {
	d := passingDecision()
	d.PassedCount = 2
	d.CanExecute = false

	res := Evaluate(Input{
		Decision: d,
		Quality:  goodQuality(),
		Regime:   goodRegime(),
	})

	require.False(t, res.Gating.Allowed)
	assert.Contains(t, res.Gating.BlockedReason, "Insufficient confirmations")
	assert.Equal(t, decision.ActionNoTrade, res.Action)
}

func TestAllTriggeredBlocksListed(t *testing.T) {
	d := passingDecision()
	d.PassedCount = 1

	res := Evaluate(Input{
		Decision: d,
		Quality:  regime.DataQuality{Connected: false, LastCandleAge: 5 * time.Minute, GapCount: 9, Latency: time.Second},
		Regime:   goodRegime(),
		Risk:     RiskInputs{DrawdownRatio: 1.5, LeverageRatio: 1.1},
	})

	require.False(t, res.Gating.Allowed)
	assert.Len(t, res.Gating.HardBlocks, 4)
	assert.Equal(t, res.Gating.HardBlocks[0], res.Gating.BlockedReason)
}

func TestHoldPassesThroughGating(t *testing.T) {
	d := &decision.Result{Action: decision.ActionHold, RequiredCount: 3}

	res := Evaluate(Input{
		Decision: d,
		Quality:  regime.DataQuality{Connected: false, LastCandleAge: time.Hour},
		Regime:   goodRegime(),
	})

	// Blocked, but a HOLD stays HOLD rather than becoming NO_TRADE.
	require.False(t, res.Gating.Allowed)
	assert.Equal(t, decision.ActionHold, res.Action)
}

func TestSignalAgreementExample(t *testing.T) {
	// 3/3 passed, weights 2.6 of 4 checks:
	// round(20*1 + 10*(2.6/40)) = round(20.65) = 21.
	var evidence []Evidence
	got := scoreSignalAgreement(passingDecision(), &evidence)
	assert.Equal(t, 21.0, got)
}

func TestNewsBonusTiers(t *testing.T) {
	tests := []struct {
		name       string
		sentiment  string
		confidence float64
		sources    []string
		want       float64
	}{
		{"aligned high confidence", "bullish", 0.85, []string{"https://example.com"}, 10},
		{"aligned mid confidence", "bullish", 0.65, []string{"https://example.com"}, 6},
		{"aligned low confidence", "bullish", 0.45, []string{"https://example.com"}, 3},
		{"aligned below tiers", "bullish", 0.2, []string{"https://example.com"}, 0},
		{"misaligned", "bearish", 0.9, []string{"https://example.com"}, 0},
		{"no sources withholds bonus", "bullish", 0.9, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var evidence []Evidence
			news := &decision.NewsSentiment{Sentiment: tt.sentiment, Confidence: tt.confidence, Sources: tt.sources}
			got := scoreNewsBonus(decision.ActionLong, news, &evidence)
			assert.Equal(t, tt.want, got)

			// Absent sources are UNKNOWN, never FAIL.
			if len(tt.sources) == 0 {
				require.Len(t, evidence, 1)
				assert.Equal(t, StatusUnknown, evidence[0].Status)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	in := Input{
		Decision: passingDecision(),
		Quality:  goodQuality(),
		Regime:   goodRegime(),
		Risk:     RiskInputs{DrawdownRatio: 0.4, DailyLossRatio: 0.1},
		News:     &decision.NewsSentiment{Sentiment: "bullish", Confidence: 0.9, Sources: []string{"https://example.com"}},
	}

	a := Evaluate(in)
	b := Evaluate(in)
	assert.Equal(t, a.Breakdown, b.Breakdown)
	assert.Equal(t, a.Gating, b.Gating)
	assert.Equal(t, a.Evidence, b.Evidence)
}
