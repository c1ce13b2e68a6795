package patterns

import (
	"testing"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/telem"
)

func newTestStore() *telem.Store {
	return telem.NewStore(&telem.Config{
		MaxSamples:      300,
		MaxMetricPoints: 300,
		MaxEvents:       100,
		MinWindow:       5,
	})
}

func feedQuality(store *telem.Store, base time.Time, qualities []float64) {
	for i, quality := range qualities {
		store.Record(pkg.ConnectionSample{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			Connected:     true,
			Quality:       quality,
			LatencyMS:     50,
			BandwidthKbps: 5000,
		})
	}
}

func TestDetector_StableWindow(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	now := time.Now()
	qualities := make([]float64, 20)
	for i := range qualities {
		if i%2 == 0 {
			qualities[i] = 95
		} else {
			qualities[i] = 98
		}
	}
	feedQuality(store, now.Add(-20*time.Second), qualities)

	discovered := detector.Analyze(now)

	var stable *Pattern
	for _, pattern := range discovered {
		if pattern.Type == PatternVolatile {
			t.Fatal("Stable window must never classify as volatile")
		}
		if pattern.Type == PatternStable {
			stable = pattern
		}
	}

	if stable == nil {
		t.Fatal("Expected a stable pattern for a low-variance window")
	}
	if stable.Confidence <= 0.85 {
		t.Errorf("Expected confidence > 0.85 for variance < 10, got %.3f", stable.Confidence)
	}
}

func TestDetector_VolatileWindow(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	now := time.Now()
	qualities := make([]float64, 20)
	for i := range qualities {
		if i%2 == 0 {
			qualities[i] = 5
		} else {
			qualities[i] = 95
		}
	}
	feedQuality(store, now.Add(-20*time.Second), qualities)

	discovered := detector.Analyze(now)

	var volatile *Pattern
	for _, pattern := range discovered {
		if pattern.Type == PatternStable {
			t.Fatal("Volatile window must never classify as stable")
		}
		if pattern.Type == PatternVolatile {
			volatile = pattern
		}
	}

	if volatile == nil {
		t.Fatal("Expected a volatile pattern for a high-variance window")
	}
}

func TestDetector_PeriodicDrops(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	now := time.Now()
	feedQuality(store, now.Add(-30*time.Second), []float64{80, 80, 80, 80, 80})

	// Five disconnects, 10 minutes apart
	interval := 10 * time.Minute
	var last time.Time
	for i := 0; i < 5; i++ {
		last = now.Add(-time.Duration(4-i) * interval)
		store.RecordEvent(pkg.ConnectionEvent{
			Timestamp: last,
			Type:      pkg.EventDisconnected,
			Quality:   20,
		})
	}

	discovered := detector.Analyze(now)

	var periodic *Pattern
	for _, pattern := range discovered {
		if pattern.Type == PatternPeriodicDrops {
			periodic = pattern
		}
	}
	if periodic == nil {
		t.Fatal("Expected a periodic-drops pattern for evenly spaced disconnects")
	}

	if periodic.Characteristics.RepeatInterval == nil {
		t.Fatal("Expected a repeat interval on the periodic pattern")
	}
	if diff := (*periodic.Characteristics.RepeatInterval - interval).Abs(); diff > time.Second {
		t.Errorf("Expected repeat interval ~%v, got %v", interval, *periodic.Characteristics.RepeatInterval)
	}

	if periodic.NextExpected == nil {
		t.Fatal("Expected a forward prediction on the periodic pattern")
	}
	expected := last.Add(interval)
	if diff := periodic.NextExpected.Sub(expected).Abs(); diff > time.Second {
		t.Errorf("Expected next occurrence %v, got %v", expected, *periodic.NextExpected)
	}
}

func TestDetector_DegradingTrend(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	now := time.Now()
	qualities := make([]float64, 15)
	for i := range qualities {
		qualities[i] = 90 - float64(i)*5 // 90 down to 20
	}
	feedQuality(store, now.Add(-15*time.Second), qualities)

	discovered := detector.Analyze(now)

	var degrading *Pattern
	for _, pattern := range discovered {
		if pattern.Type == PatternDegrading {
			degrading = pattern
		}
	}
	if degrading == nil {
		t.Fatal("Expected a degrading pattern for a steep negative quality trend")
	}
	if degrading.Confidence < 0.9 {
		t.Errorf("Expected high confidence for a steep slope, got %.3f", degrading.Confidence)
	}
}

func TestDetector_MergeAndCallback(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	var callbacks int
	detector.SetPatternCallback(func(*Pattern) { callbacks++ })

	now := time.Now()
	qualities := make([]float64, 20)
	for i := range qualities {
		qualities[i] = 96
	}
	feedQuality(store, now.Add(-20*time.Second), qualities)

	first := detector.Analyze(now)
	second := detector.Analyze(now.Add(30 * time.Second))

	if len(first) == 0 || len(second) == 0 {
		t.Fatal("Expected a stable pattern on both passes")
	}

	// Callback fires only on discovery, rediscoveries merge
	if callbacks != 1 {
		t.Errorf("Expected exactly one discovery callback, got %d", callbacks)
	}
	if second[0].Occurrences != 2 {
		t.Errorf("Expected merged pattern with 2 occurrences, got %d", second[0].Occurrences)
	}
	if len(detector.Active(time.Hour)) != 1 {
		t.Errorf("Expected one registered pattern, got %d", len(detector.Active(time.Hour)))
	}
}

func TestDetector_InsufficientData(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(nil, logx.NewLogger("error", "patterns"), store)

	now := time.Now()
	feedQuality(store, now, []float64{90, 91}) // below the minimum window

	if discovered := detector.Analyze(now); len(discovered) != 0 {
		t.Errorf("Expected no patterns on insufficient data, got %d", len(discovered))
	}
}
