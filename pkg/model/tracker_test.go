package model

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/predict"
)

func newTestTracker(t *testing.T, config *TrackerConfig) *Tracker {
	t.Helper()
	tracker, err := NewTracker(config, logx.NewLogger("error", "model"))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestTracker_AccuracyRecompute(t *testing.T) {
	tracker := newTestTracker(t, &TrackerConfig{
		MaxTrainingPoints: 100,
		MaxResults:        100,
		InitialAccuracy:   0.7,
		MinResults:        10,
	})

	if tracker.Accuracy() != 0.7 {
		t.Errorf("Expected initial accuracy 0.7, got %.2f", tracker.Accuracy())
	}

	// Below the result minimum the initial accuracy holds
	for i := 0; i < 5; i++ {
		tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: false})
	}
	tracker.Retrain(time.Now())
	if tracker.Accuracy() != 0.7 {
		t.Errorf("Expected accuracy untouched below minimum results, got %.2f", tracker.Accuracy())
	}

	// 4 correct of 10 total
	tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: false})
	for i := 0; i < 4; i++ {
		tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: true})
	}
	tracker.Retrain(time.Now())
	if got := tracker.Accuracy(); got != 0.4 {
		t.Errorf("Expected accuracy 0.4 from 4/10 correct, got %.2f", got)
	}
}

func TestTracker_VersionMonotonicAndCallback(t *testing.T) {
	tracker := newTestTracker(t, nil)

	var versions []int
	tracker.SetUpdateCallback(func(version int, accuracy float64) {
		versions = append(versions, version)
	})

	if tracker.Version() != 1 {
		t.Fatalf("Expected initial version 1, got %d", tracker.Version())
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		tracker.Retrain(now.Add(time.Duration(i) * time.Hour))
	}

	if tracker.Version() != 4 {
		t.Errorf("Expected version 4 after 3 retrains, got %d", tracker.Version())
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("Version must be strictly increasing, got %v", versions)
		}
	}
}

func TestTracker_CappedLogs(t *testing.T) {
	tracker := newTestTracker(t, &TrackerConfig{
		MaxTrainingPoints: 5,
		MaxResults:        5,
		InitialAccuracy:   0.7,
		MinResults:        3,
	})

	now := time.Now()
	for i := 0; i < 20; i++ {
		tracker.RecordTrainingPoint(TrainingPoint{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Features:  predict.Features{MeanQuality: float64(i)},
			Outcome:   pkg.OutcomeConnected,
		})
		tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: i >= 15})
	}

	points := tracker.TrainingPoints()
	if len(points) != 5 {
		t.Fatalf("Expected training log capped at 5, got %d", len(points))
	}
	if points[len(points)-1].Features.MeanQuality != 19 {
		t.Error("Expected the newest training point to survive eviction")
	}

	// Only the last 5 results remain, all correct
	tracker.Retrain(now)
	if got := tracker.Accuracy(); got != 1.0 {
		t.Errorf("Expected accuracy 1.0 over the surviving results, got %.2f", got)
	}
}

func TestTracker_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.db")
	config := &TrackerConfig{
		MaxTrainingPoints: 100,
		MaxResults:        100,
		InitialAccuracy:   0.7,
		MinResults:        2,
		SnapshotPath:      path,
	}

	tracker := newTestTracker(t, config)
	tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: true})
	tracker.RecordResult(PredictionResult{PredictionID: "p", Correct: true})
	version, accuracy := tracker.Retrain(time.Now())
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := newTestTracker(t, config)
	if restored.Version() != version {
		t.Errorf("Expected restored version %d, got %d", version, restored.Version())
	}
	if restored.Accuracy() != accuracy {
		t.Errorf("Expected restored accuracy %.2f, got %.2f", accuracy, restored.Accuracy())
	}
}
