// Package model tracks prediction accuracy and the heuristic model's version.
package model

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/predict"
)

var snapshotBucket = []byte("model")

var snapshotKey = []byte("state")

// TrainingPoint pairs an observed feature snapshot with what actually happened
type TrainingPoint struct {
	Timestamp time.Time        `json:"timestamp"`
	Features  predict.Features `json:"features"`
	Outcome   pkg.Outcome      `json:"outcome"`
}

// PredictionResult records whether a resolved prediction was correct
type PredictionResult struct {
	PredictionID string    `json:"prediction_id"`
	PredictedAt  time.Time `json:"predicted_at"`
	Probability  float64   `json:"probability"`
	ResolvedAt   time.Time `json:"resolved_at"`
	Correct      bool      `json:"correct"`
}

// TrackerConfig holds the log caps and accuracy knobs
type TrackerConfig struct {
	MaxTrainingPoints int     `json:"max_training_points"`
	MaxResults        int     `json:"max_results"`
	InitialAccuracy   float64 `json:"initial_accuracy"`   // Used until enough results exist
	MinResults        int     `json:"min_results"`        // Results required before accuracy is recomputed
	SnapshotPath      string  `json:"snapshot_path"`      // Optional bbolt file, empty disables persistence
}

// DefaultTrackerConfig returns the default tracker knobs
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxTrainingPoints: 1000,
		MaxResults:        500,
		InitialAccuracy:   0.7,
		MinResults:        10,
	}
}

// snapshot is the scalar state persisted across restarts. Raw sample and
// training history stays in memory only.
type snapshot struct {
	Version     int       `json:"version"`
	Accuracy    float64   `json:"accuracy"`
	LastTrained time.Time `json:"last_trained"`
}

// Tracker maintains the capped training and result logs plus the model version
type Tracker struct {
	mu sync.RWMutex

	config *TrackerConfig
	logger *logx.Logger

	points  []TrainingPoint
	results []PredictionResult

	version     int
	accuracy    float64
	lastTrained time.Time

	onUpdate func(version int, accuracy float64)
	db       *bolt.DB
}

// NewTracker creates a model tracker, restoring the persisted snapshot when a
// snapshot path is configured.
func NewTracker(config *TrackerConfig, logger *logx.Logger) (*Tracker, error) {
	if config == nil {
		config = DefaultTrackerConfig()
	}

	tracker := &Tracker{
		config:   config,
		logger:   logger,
		version:  1,
		accuracy: config.InitialAccuracy,
	}

	if config.SnapshotPath != "" {
		db, err := bolt.Open(config.SnapshotPath, 0o600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open model snapshot: %w", err)
		}
		tracker.db = db
		if err := tracker.restore(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return tracker, nil
}

// SetUpdateCallback registers the hook invoked after every retrain
func (t *Tracker) SetUpdateCallback(callback func(version int, accuracy float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = callback
}

// RecordTrainingPoint appends to the capped training log
func (t *Tracker) RecordTrainingPoint(point TrainingPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.points = append(t.points, point)
	if len(t.points) > t.config.MaxTrainingPoints {
		t.points = t.points[1:]
	}
}

// RecordResult appends a resolved prediction to the capped result log
func (t *Tracker) RecordResult(result PredictionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.results = append(t.results, result)
	if len(t.results) > t.config.MaxResults {
		t.results = t.results[1:]
	}
}

// Retrain recomputes accuracy from the result log and bumps the version.
// The version only moves forward.
func (t *Tracker) Retrain(now time.Time) (int, float64) {
	t.mu.Lock()

	if len(t.results) >= t.config.MinResults {
		correct := 0
		for _, result := range t.results {
			if result.Correct {
				correct++
			}
		}
		t.accuracy = float64(correct) / float64(len(t.results))
	}

	t.version++
	t.lastTrained = now

	version := t.version
	accuracy := t.accuracy
	results := len(t.results)
	callback := t.onUpdate
	t.mu.Unlock()

	t.logger.Info("Model retrained",
		"version", version,
		"accuracy", accuracy,
		"results", results)

	if err := t.persist(); err != nil {
		t.logger.Warn("Failed to persist model snapshot", "error", err)
	}

	if callback != nil {
		callback(version, accuracy)
	}
	return version, accuracy
}

// Accuracy returns the current model accuracy
func (t *Tracker) Accuracy() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.accuracy
}

// Version returns the current model version
func (t *Tracker) Version() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// TrainingPoints returns a copy of the training log
func (t *Tracker) TrainingPoints() []TrainingPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TrainingPoint, len(t.points))
	copy(out, t.points)
	return out
}

// GetStatus returns tracker state for diagnostics
func (t *Tracker) GetStatus() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return map[string]interface{}{
		"version":         t.version,
		"accuracy":        t.accuracy,
		"training_points": len(t.points),
		"results":         len(t.results),
		"last_trained":    t.lastTrained,
		"persisted":       t.db != nil,
	}
}

// Close releases the snapshot database
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

// restore loads the persisted snapshot, keeping defaults when none exists
func (t *Tracker) restore() error {
	return t.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(snapshotBucket)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get(snapshotKey)
		if raw == nil {
			return nil
		}

		var state snapshot
		if err := json.Unmarshal(raw, &state); err != nil {
			return fmt.Errorf("corrupt model snapshot: %w", err)
		}

		if state.Version > t.version {
			t.version = state.Version
		}
		t.accuracy = state.Accuracy
		t.lastTrained = state.LastTrained

		t.logger.Info("Model snapshot restored", "version", t.version, "accuracy", t.accuracy)
		return nil
	})
}

// persist writes the scalar snapshot when persistence is enabled
func (t *Tracker) persist() error {
	t.mu.RLock()
	db := t.db
	state := snapshot{
		Version:     t.version,
		Accuracy:    t.accuracy,
		LastTrained: t.lastTrained,
	}
	t.mu.RUnlock()

	if db == nil {
		return nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return err
		}
		return bucket.Put(snapshotKey, raw)
	})
}
