// Package engine runs the periodic intelligence cycles over the shared store
// and exposes the operations clients call.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/metrics"
	"github.com/netwarden/netwarden/pkg/model"
	"github.com/netwarden/netwarden/pkg/mqtt"
	"github.com/netwarden/netwarden/pkg/notify"
	"github.com/netwarden/netwarden/pkg/patterns"
	"github.com/netwarden/netwarden/pkg/predict"
	"github.com/netwarden/netwarden/pkg/strategy"
	"github.com/netwarden/netwarden/pkg/telem"
)

// Config holds the cycle intervals and transition thresholds
type Config struct {
	AnalysisInterval   time.Duration `json:"analysis_interval"`   // Pattern analysis cadence
	PredictionInterval time.Duration `json:"prediction_interval"` // Prediction cadence
	RetrainInterval    time.Duration `json:"retrain_interval"`    // Model accuracy recompute cadence
	SweepInterval      time.Duration `json:"sweep_interval"`      // Notification expiry cadence
	DegradedThreshold  float64       `json:"degraded_threshold"`  // Quality below this emits a degraded event
	PatternFreshness   time.Duration `json:"pattern_freshness"`   // How recent a pattern must be to inform predictions
}

// DefaultConfig returns the default engine cadence
func DefaultConfig() *Config {
	return &Config{
		AnalysisInterval:   30 * time.Second,
		PredictionInterval: 5 * time.Second,
		RetrainInterval:    time.Hour,
		SweepInterval:      10 * time.Second,
		DegradedThreshold:  40,
		PatternFreshness:   10 * time.Minute,
	}
}

// Engine owns the single goroutine that multiplexes the periodic cycles.
// External mutations go through its methods; components are never shared.
type Engine struct {
	mu sync.Mutex

	config *Config
	logger *logx.Logger

	store     *telem.Store
	detector  *patterns.Detector
	predictor *predict.Predictor
	selector  *strategy.Selector
	notifier  *notify.Manager
	tracker   *model.Tracker
	metrics   *metrics.Metrics
	publisher *mqtt.Client

	lastSample *pkg.ConnectionSample

	onPattern      func(*patterns.Pattern)
	onPrediction   func(*predict.Prediction)
	onStrategy     func(*strategy.Strategy)
	onNotification func(*notify.Notification)
	onModelUpdate  func(version int, accuracy float64)

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the engine over its components. The metrics set and publisher may
// be nil when instrumentation or MQTT is disabled.
func New(config *Config, logger *logx.Logger, store *telem.Store, detector *patterns.Detector,
	predictor *predict.Predictor, selector *strategy.Selector, notifier *notify.Manager,
	tracker *model.Tracker, m *metrics.Metrics, publisher *mqtt.Client) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	predictor.SetAccuracySource(tracker.Accuracy)

	e := &Engine{
		config:    config,
		logger:    logger,
		store:     store,
		detector:  detector,
		predictor: predictor,
		selector:  selector,
		notifier:  notifier,
		tracker:   tracker,
		metrics:   m,
		publisher: publisher,
	}

	// Discovery-only fan-out; merges of known patterns stay internal
	detector.SetPatternCallback(func(pattern *patterns.Pattern) {
		e.mu.Lock()
		callback := e.onPattern
		e.mu.Unlock()
		if callback != nil {
			callback(pattern)
		}
	})

	return e
}

// SetPatternCallback registers the hook invoked when a new pattern is discovered
func (e *Engine) SetPatternCallback(callback func(*patterns.Pattern)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPattern = callback
}

// SetPredictionCallback registers the hook invoked for each emitted prediction
func (e *Engine) SetPredictionCallback(callback func(*predict.Prediction)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPrediction = callback
}

// SetStrategyCallback registers the hook invoked for each strategy selection
func (e *Engine) SetStrategyCallback(callback func(*strategy.Strategy)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStrategy = callback
}

// SetNotificationCallback registers the hook invoked for each delivered notification
func (e *Engine) SetNotificationCallback(callback func(*notify.Notification)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNotification = callback
}

// SetModelUpdateCallback registers the hook invoked after each retrain
func (e *Engine) SetModelUpdateCallback(callback func(version int, accuracy float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onModelUpdate = callback
}

// Start launches the cycle goroutine. Repeat calls are no-ops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.run(runCtx)

	e.logger.Info("Engine started",
		"analysis_interval", e.config.AnalysisInterval,
		"prediction_interval", e.config.PredictionInterval)
	return nil
}

// Stop halts the cycle goroutine and waits for it. Repeat calls are no-ops.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.logger.Info("Engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	analysis := time.NewTicker(e.config.AnalysisInterval)
	prediction := time.NewTicker(e.config.PredictionInterval)
	retrain := time.NewTicker(e.config.RetrainInterval)
	sweep := time.NewTicker(e.config.SweepInterval)
	defer analysis.Stop()
	defer prediction.Stop()
	defer retrain.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-analysis.C:
			e.analyze(now)
		case now := <-prediction.C:
			e.predictCycle(now)
		case now := <-retrain.C:
			e.retrain(now)
		case now := <-sweep.C:
			e.notifier.Sweep(now)
		}
	}
}

// RecordSample ingests one connection sample, deriving transition events from
// the previous sample.
func (e *Engine) RecordSample(sample pkg.ConnectionSample) {
	e.mu.Lock()
	prev := e.lastSample
	clone := sample
	e.lastSample = &clone
	e.mu.Unlock()

	e.store.Record(sample)
	if e.metrics != nil {
		e.metrics.SamplesRecorded.Inc()
	}

	if prev == nil {
		return
	}

	var event *pkg.ConnectionEvent
	switch {
	case prev.Connected && !sample.Connected:
		event = &pkg.ConnectionEvent{
			Timestamp: sample.Timestamp,
			Type:      pkg.EventDisconnected,
			Quality:   sample.Quality,
		}
	case !prev.Connected && sample.Connected:
		event = &pkg.ConnectionEvent{
			Timestamp: sample.Timestamp,
			Type:      pkg.EventConnected,
			Quality:   sample.Quality,
		}
	case sample.Connected && sample.Quality < e.config.DegradedThreshold && prev.Quality >= e.config.DegradedThreshold:
		event = &pkg.ConnectionEvent{
			Timestamp: sample.Timestamp,
			Type:      pkg.EventDegraded,
			Quality:   sample.Quality,
			Detail:    fmt.Sprintf("quality fell below %.0f", e.config.DegradedThreshold),
		}
	}

	if event == nil {
		return
	}

	e.store.RecordEvent(*event)
	if e.metrics != nil {
		e.metrics.EventsRecorded.WithLabelValues(string(event.Type)).Inc()
	}

	e.tracker.RecordTrainingPoint(model.TrainingPoint{
		Timestamp: sample.Timestamp,
		Features: predict.Features{
			MeanQuality:       sample.Quality,
			MeanLatencyMS:     sample.LatencyMS,
			MeanBandwidthKbps: sample.BandwidthKbps,
			HourOfDay:         sample.Timestamp.Hour(),
			ServerHealthy:     sample.ServerHealthy,
		},
		Outcome: outcomeForEvent(event.Type),
	})

	e.logger.Debug("Connection transition", "type", event.Type, "quality", event.Quality)
}

func outcomeForEvent(eventType pkg.EventType) pkg.Outcome {
	switch eventType {
	case pkg.EventDisconnected:
		return pkg.OutcomeDisconnected
	case pkg.EventDegraded:
		return pkg.OutcomeDegraded
	default:
		return pkg.OutcomeConnected
	}
}

// analyze runs one pattern analysis cycle
func (e *Engine) analyze(now time.Time) {
	discovered := e.detector.Analyze(now)

	if e.metrics != nil {
		counts := make(map[patterns.PatternType]int)
		for _, pattern := range e.detector.Active(e.config.PatternFreshness) {
			counts[pattern.Type]++
			e.metrics.PatternConfidence.WithLabelValues(string(pattern.Type)).Set(pattern.Confidence)
		}
		for _, patternType := range patterns.AllPatternTypes {
			e.metrics.ActivePatterns.WithLabelValues(string(patternType)).Set(float64(counts[patternType]))
		}
	}

	if e.publisher != nil {
		for _, pattern := range discovered {
			if err := e.publisher.PublishPattern(pattern); err != nil {
				e.logger.Warn("Failed to publish pattern", "error", err)
			}
		}
	}
}

// predictCycle runs one prediction cycle and fans the result out
func (e *Engine) predictCycle(now time.Time) {
	active := e.detector.Active(e.config.PatternFreshness)
	prediction := e.predictor.Evaluate(now, active)

	if e.metrics != nil {
		if prediction != nil {
			e.metrics.PredictionRisk.Set(prediction.Probability)
		} else {
			e.metrics.PredictionRisk.Set(0)
		}
	}
	if prediction == nil {
		return
	}

	if e.metrics != nil {
		e.metrics.PredictionsTotal.WithLabelValues(string(prediction.Severity)).Inc()
	}
	if e.publisher != nil {
		if err := e.publisher.PublishPrediction(prediction); err != nil {
			e.logger.Warn("Failed to publish prediction", "error", err)
		}
	}

	e.mu.Lock()
	onPrediction := e.onPrediction
	onNotification := e.onNotification
	e.mu.Unlock()

	if onPrediction != nil {
		onPrediction(prediction)
	}

	notification, err := e.notifier.NotifyPrediction(now, prediction)
	if err != nil {
		e.logger.Warn("Failed to notify prediction", "error", err)
		return
	}
	if notification == nil {
		if e.metrics != nil {
			e.metrics.NotificationsMuted.Inc()
		}
		return
	}

	if e.metrics != nil {
		e.metrics.NotificationsSent.WithLabelValues(string(notification.Priority)).Inc()
	}
	if e.publisher != nil {
		if err := e.publisher.PublishNotification(notification); err != nil {
			e.logger.Warn("Failed to publish notification", "error", err)
		}
	}
	if onNotification != nil {
		onNotification(notification)
	}
}

// retrain runs one model accuracy recompute
func (e *Engine) retrain(now time.Time) {
	version, accuracy := e.tracker.Retrain(now)

	if e.metrics != nil {
		e.metrics.ModelVersion.Set(float64(version))
		e.metrics.ModelAccuracy.Set(accuracy)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishModelUpdate(version, accuracy); err != nil {
			e.logger.Warn("Failed to publish model update", "error", err)
		}
	}

	e.mu.Lock()
	callback := e.onModelUpdate
	e.mu.Unlock()
	if callback != nil {
		callback(version, accuracy)
	}
}

// SelectStrategy picks the best reconnection strategy for the given situation
func (e *Engine) SelectStrategy(cause pkg.DisconnectCause, quality float64, attempts int) (*strategy.Strategy, error) {
	selected, score, err := e.selector.Select(strategy.Context{
		Cause:    cause,
		Quality:  quality,
		Attempts: attempts,
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.StrategySelections.WithLabelValues(selected.ID).Inc()
	}
	e.logger.Debug("Strategy selected", "id", selected.ID, "score", score)

	e.mu.Lock()
	callback := e.onStrategy
	e.mu.Unlock()
	if callback != nil {
		callback(selected)
	}
	return selected, nil
}

// ReportStrategyOutcome folds a reconnection result into the strategy's record
func (e *Engine) ReportStrategyOutcome(id string, success bool, recoveryTime time.Duration) error {
	if err := e.selector.ReportOutcome(id, success, recoveryTime); err != nil {
		return err
	}

	if e.metrics != nil {
		if updated, ok := e.selector.Get(id); ok {
			e.metrics.StrategySuccess.WithLabelValues(id).Set(updated.SuccessRate)
		}
	}
	return nil
}

// ReportPredictionOutcome resolves a prediction against what actually happened.
// A prediction counts as correct when the connection did not stay healthy.
func (e *Engine) ReportPredictionOutcome(predictionID string, outcome pkg.Outcome, resolvedAt time.Time) error {
	prediction, ok := e.predictor.Get(predictionID)
	if !ok {
		return fmt.Errorf("prediction %s not active", predictionID)
	}

	e.tracker.RecordResult(model.PredictionResult{
		PredictionID: prediction.ID,
		PredictedAt:  prediction.CreatedAt,
		Probability:  prediction.Probability,
		ResolvedAt:   resolvedAt,
		Correct:      outcome != pkg.OutcomeConnected,
	})
	return nil
}

// Patterns returns the currently fresh patterns
func (e *Engine) Patterns() []*patterns.Pattern {
	return e.detector.Active(e.config.PatternFreshness)
}

// Predictions returns the non-expired predictions
func (e *Engine) Predictions() []*predict.Prediction {
	return e.predictor.Active(time.Now())
}

// Notifications returns the live notifications
func (e *Engine) Notifications() []*notify.Notification {
	return e.notifier.Active()
}

// ModelAccuracy returns the current model accuracy
func (e *Engine) ModelAccuracy() float64 {
	return e.tracker.Accuracy()
}

// ModelVersion returns the current model version
func (e *Engine) ModelVersion() int {
	return e.tracker.Version()
}

// AcknowledgeNotification marks a notification acknowledged
func (e *Engine) AcknowledgeNotification(id string) bool {
	return e.notifier.Acknowledge(id)
}

// DismissNotification removes a notification
func (e *Engine) DismissNotification(id string) bool {
	return e.notifier.Dismiss(id)
}

// Status aggregates component diagnostics
func (e *Engine) Status() map[string]interface{} {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	status := map[string]interface{}{
		"running":       running,
		"store":         e.store.GetStatus(),
		"patterns":      e.detector.GetStatus(),
		"predictions":   e.predictor.GetStatus(),
		"strategies":    e.selector.GetStatus(),
		"notifications": e.notifier.GetStatus(),
		"model":         e.tracker.GetStatus(),
	}
	if e.publisher != nil {
		status["mqtt"] = e.publisher.GetStatus()
	}
	return status
}
