package strategy

import (
	"testing"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
)

func newTestSelector(t *testing.T) *Selector {
	t.Helper()
	selector := NewSelector(nil, logx.NewLogger("error", "strategy"))
	for _, strategy := range DefaultStrategies() {
		if err := selector.Register(strategy); err != nil {
			t.Fatalf("Failed to register %s: %v", strategy.ID, err)
		}
	}
	return selector
}

func TestSelector_CauseDrivenSelection(t *testing.T) {
	selector := newTestSelector(t)

	cases := []struct {
		name string
		ctx  Context
		want string
	}{
		{"server failure picks immediate", Context{Cause: pkg.CauseServerUnhealthy, Quality: 80, Attempts: 0}, "immediate"},
		{"congestion picks progressive", Context{Cause: pkg.CauseNetworkCongestion, Quality: 60, Attempts: 2}, "progressive"},
		{"degradation picks adaptive", Context{Cause: pkg.CauseQualityDegradation, Quality: 25, Attempts: 0}, "adaptive"},
		{"collapse picks parallel", Context{Cause: pkg.CauseThroughputCollapse, Quality: 60, Attempts: 3}, "parallel"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			selected, score, err := selector.Select(tc.ctx)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if selected.ID != tc.want {
				t.Errorf("Expected %s, got %s (score %.3f)", tc.want, selected.ID, score)
			}
			if score <= 0 || score > 1 {
				t.Errorf("Expected score in (0, 1], got %.3f", score)
			}
		})
	}
}

func TestSelector_FallbackWhenNothingMatches(t *testing.T) {
	selector := NewSelector(nil, logx.NewLogger("error", "strategy"))

	first := &Strategy{
		ID:   "first",
		Type: TypeImmediate,
		Conditions: []Condition{
			{Kind: ConditionCauseIs, Cause: pkg.CauseServerUnhealthy, Weight: 0.9},
		},
		MaxAttempts: 1,
		BaseDelay:   time.Second,
	}
	second := &Strategy{
		ID:   "second",
		Type: TypeProgressive,
		Conditions: []Condition{
			{Kind: ConditionQualityBelow, Threshold: 10, Weight: 0.9},
		},
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
	if err := selector.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := selector.Register(second); err != nil {
		t.Fatal(err)
	}

	// Unknown cause and healthy quality: no condition matches anywhere
	selected, _, err := selector.Select(Context{Cause: pkg.CauseUnknown, Quality: 90, Attempts: 0})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.ID != "first" {
		t.Errorf("Expected first-registered fallback, got %s", selected.ID)
	}
}

func TestSelector_SuccessRateShiftsSelection(t *testing.T) {
	selector := newTestSelector(t)

	ctx := Context{Cause: pkg.CauseQualityDegradation, Quality: 25, Attempts: 0}

	// Drive the adaptive strategy's success rate toward zero
	for i := 0; i < 20; i++ {
		if err := selector.ReportOutcome("adaptive", false, 0); err != nil {
			t.Fatal(err)
		}
	}
	adaptive, _ := selector.Get("adaptive")
	if adaptive.SuccessRate > 0.1 {
		t.Fatalf("Expected success rate near zero after 20 failures, got %.3f", adaptive.SuccessRate)
	}
	if adaptive.Uses != 20 || adaptive.Successes != 0 {
		t.Errorf("Expected 20 uses and 0 successes, got %d/%d", adaptive.Uses, adaptive.Successes)
	}

	// Adaptive still matches best on conditions, but its score reflects the record
	_, degradedScore, err := selector.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}

	fresh := newTestSelector(t)
	_, freshScore, err := fresh.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if degradedScore >= freshScore {
		t.Errorf("Expected failures to lower the score: degraded %.3f, fresh %.3f", degradedScore, freshScore)
	}
}

func TestSelector_RecoveryTimeTracksSuccesses(t *testing.T) {
	selector := newTestSelector(t)

	if err := selector.ReportOutcome("immediate", true, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := selector.ReportOutcome("immediate", false, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := selector.ReportOutcome("immediate", true, 4*time.Second); err != nil {
		t.Fatal(err)
	}

	immediate, _ := selector.Get("immediate")
	if immediate.AvgRecoveryTime != 3*time.Second {
		t.Errorf("Expected mean recovery over successes only (3s), got %v", immediate.AvgRecoveryTime)
	}
	if immediate.LastUsed.IsZero() {
		t.Error("Expected last-used stamp after outcomes")
	}
	if immediate.SuccessRate < 0 || immediate.SuccessRate > 1 {
		t.Errorf("Success rate must stay within [0,1], got %.3f", immediate.SuccessRate)
	}
}

func TestSelector_RegisterRejectsDuplicates(t *testing.T) {
	selector := newTestSelector(t)

	err := selector.Register(&Strategy{ID: "immediate", Type: TypeImmediate})
	if err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	if err := selector.ReportOutcome("missing", true, 0); err == nil {
		t.Error("Expected outcome for unknown strategy to fail")
	}

	if got := len(selector.List()); got != 4 {
		t.Errorf("Expected 4 registered strategies, got %d", got)
	}
}
