package learning

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func defaultParams() BotParams {
	return BotParams{
		MinConfirmations:         3,
		MinConfidence:            70,
		RSIOverbought:            70,
		RSIOversold:              30,
		MaxPositionSizePercent:   2,
		StopLossATRMultiplier:    2,
		TakeProfitATRMultiplier:  3,
		CooldownAfterLossMinutes: 15,
		MaxLeverage:              5,
		MaxDrawdownPercent:       10,
	}
}

func testLearner() *Manager {
	return NewManager(defaultParams(), zerolog.Nop())
}

func critique(id string, recs ...ParameterChange) CritiqueReport {
	return CritiqueReport{ID: id, Recommendations: recs}
}

func TestNewManagerRecordsInitialSnapshot(t *testing.T) {
	m := testLearner()
	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].CritiqueID != "" {
		t.Error("initial snapshot carries a critique id")
	}
	if snaps[0].Config != defaultParams() {
		t.Errorf("initial config = %+v", snaps[0].Config)
	}
}

func TestApplyRecommendationsInBounds(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 75},
		ParameterChange{Parameter: ParamRSIOverbought, NewValue: 80},
	))

	for _, r := range results {
		if !r.Applied {
			t.Errorf("%s not applied", r.Parameter)
		}
	}
	cur := m.Current()
	if cur.MinConfidence != 75 || cur.RSIOverbought != 80 {
		t.Errorf("current = %+v", cur)
	}

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2 (one per batch)", len(snaps))
	}
	if snaps[1].CritiqueID != "c-1" {
		t.Errorf("CritiqueID = %q, want c-1", snaps[1].CritiqueID)
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 95},
	))

	if results[0].Applied {
		t.Error("out-of-bounds change applied")
	}
	if m.Current().MinConfidence != 70 {
		t.Errorf("MinConfidence mutated to %v", m.Current().MinConfidence)
	}
	if len(m.Snapshots()) != 1 {
		t.Error("snapshot recorded for an all-rejected batch")
	}
}

func TestApplyRejectsForbiddenParameters(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMaxLeverage, NewValue: 10},
		ParameterChange{Parameter: ParamMaxDrawdown, NewValue: 50},
	))

	for _, r := range results {
		if r.Applied {
			t.Errorf("forbidden parameter %s applied", r.Parameter)
		}
	}
	cur := m.Current()
	if cur.MaxLeverage != 5 || cur.MaxDrawdownPercent != 10 {
		t.Errorf("safety caps mutated: %+v", cur)
	}
}

func TestApplyRejectsUnknownParameter(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: Parameter("risk.something_else"), NewValue: 1},
	))
	if results[0].Applied {
		t.Error("unknown parameter applied")
	}
}

func TestStopLossMultiplierWidenOnly(t *testing.T) {
	m := testLearner()

	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamStopLossATRMult, NewValue: 1.5},
	))
	if results[0].Applied {
		t.Error("stop-loss multiplier tightened")
	}
	if m.Current().StopLossATRMultiplier != 2 {
		t.Errorf("multiplier = %v, want 2", m.Current().StopLossATRMultiplier)
	}

	results = m.ApplyRecommendations(critique("c-2",
		ParameterChange{Parameter: ParamStopLossATRMult, NewValue: 2.5},
	))
	if !results[0].Applied {
		t.Error("widening rejected")
	}
	if m.Current().StopLossATRMultiplier != 2.5 {
		t.Errorf("multiplier = %v, want 2.5", m.Current().StopLossATRMultiplier)
	}
}

func TestBatchContinuesPastRejects(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMaxLeverage, NewValue: 10},   // forbidden
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 95}, // out of bounds
		ParameterChange{Parameter: ParamRSIOversold, NewValue: 25},   // fine
	))

	if results[0].Applied || results[1].Applied {
		t.Error("rejected changes marked applied")
	}
	if !results[2].Applied {
		t.Error("valid change after rejects not applied")
	}
	if m.Current().RSIOversold != 25 {
		t.Errorf("RSIOversold = %v, want 25", m.Current().RSIOversold)
	}
	if len(m.Snapshots()) != 2 {
		t.Errorf("snapshots = %d, want 2", len(m.Snapshots()))
	}
}

func TestChangeRecordsPreviousValue(t *testing.T) {
	m := testLearner()
	results := m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 60},
	))
	if results[0].PreviousValue != 70 {
		t.Errorf("PreviousValue = %v, want 70", results[0].PreviousValue)
	}
}

func TestRollbackUnnamedNeedsTwoSnapshots(t *testing.T) {
	m := testLearner()
	if got := m.Rollback(""); got != nil {
		t.Error("rollback succeeded with a single snapshot")
	}
	if m.Current() != defaultParams() {
		t.Error("configuration mutated by failed rollback")
	}
}

func TestRollbackUnnamedRestoresPrevious(t *testing.T) {
	m := testLearner()
	m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 80},
	))

	restored := m.Rollback("")
	if restored == nil {
		t.Fatal("rollback failed")
	}
	if m.Current().MinConfidence != 70 {
		t.Errorf("MinConfidence = %v, want restored 70", m.Current().MinConfidence)
	}

	// The restore is itself a new snapshot; history is never truncated.
	if got := len(m.Snapshots()); got != 3 {
		t.Errorf("snapshots = %d, want 3", got)
	}
}

func TestRollbackByID(t *testing.T) {
	m := testLearner()
	initial := m.Snapshots()[0]

	m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 80},
	))
	m.ApplyRecommendations(critique("c-2",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 85},
	))

	restored := m.Rollback(initial.ID)
	if restored == nil {
		t.Fatal("rollback failed")
	}
	if m.Current().MinConfidence != 70 {
		t.Errorf("MinConfidence = %v, want 70", m.Current().MinConfidence)
	}

	if got := m.Rollback("no-such-id"); got != nil {
		t.Error("rollback to unknown id succeeded")
	}
}

func TestSnapshotRingEvictsOldest(t *testing.T) {
	m := testLearner()
	initial := m.Snapshots()[0]

	// 20 more batches push the initial snapshot out of the ring.
	for i := 0; i < 20; i++ {
		v := 41 + float64(i)
		m.ApplyRecommendations(critique(fmt.Sprintf("c-%d", i),
			ParameterChange{Parameter: ParamMinConfidence, NewValue: v},
		))
	}

	snaps := m.Snapshots()
	if len(snaps) != 20 {
		t.Fatalf("snapshots = %d, want capacity 20", len(snaps))
	}
	for _, s := range snaps {
		if s.ID == initial.ID {
			t.Fatal("oldest snapshot not evicted")
		}
	}
	if m.Rollback(initial.ID) != nil {
		t.Error("rollback to evicted snapshot succeeded")
	}
}

func TestLastStableConfig(t *testing.T) {
	m := testLearner()
	m.ApplyRecommendations(critique("c-1",
		ParameterChange{Parameter: ParamMinConfidence, NewValue: 80},
	))

	stable := m.LastStableConfig()
	if stable == nil {
		t.Fatal("no stable config found")
	}
	if stable.Config.MinConfidence != 70 {
		t.Errorf("stable MinConfidence = %v, want 70", stable.Config.MinConfidence)
	}

	manual := defaultParams()
	manual.MinConfidence = 65
	m.RecordManualChange(manual, "operator tweak")
	stable = m.LastStableConfig()
	if stable == nil || stable.Config.MinConfidence != 65 {
		t.Errorf("stable after manual change = %+v", stable)
	}
}
