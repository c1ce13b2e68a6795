// Package predict converts recent samples and active patterns into disconnect forecasts.
package predict

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/patterns"
	"github.com/netwarden/netwarden/pkg/telem"
)

// Features is the snapshot the probability model scores
type Features struct {
	MeanQuality       float64 `json:"mean_quality"`
	MeanLatencyMS     float64 `json:"mean_latency_ms"`
	MeanBandwidthKbps float64 `json:"mean_bandwidth_kbps"`
	QualitySlope      float64 `json:"quality_slope"`      // Quality change per sample
	LatencySlope      float64 `json:"latency_slope"`      // Latency change per sample (ms)
	HourOfDay         int     `json:"hour_of_day"`
	ActivePatterns    int     `json:"active_patterns"`
	RiskyPatterns     int     `json:"risky_patterns"` // Active volatile/degrading patterns
	ServerHealthy     bool    `json:"server_healthy"`
}

// Cause explains one contributing reason for a forecast
type Cause struct {
	Cause      pkg.DisconnectCause `json:"cause"`
	Indicators []string            `json:"indicators"`
	Mitigation string              `json:"mitigation"`
}

// Countdown is the bounded window a predicted disconnection is expected to land in
type Countdown struct {
	StartedAt           time.Time `json:"started_at"`
	EstimatedDisconnect time.Time `json:"estimated_disconnect"`
	WarnThreshold       float64   `json:"warn_threshold"`
	CriticalThreshold   float64   `json:"critical_threshold"`
	Active              bool      `json:"active"`
}

// Prediction is a forecast of imminent disconnection
type Prediction struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	Probability     float64       `json:"probability"` // 0-1
	Confidence      float64       `json:"confidence"`  // 0-1, derived from model accuracy
	TimeToEvent     time.Duration `json:"time_to_event"`
	Severity        pkg.Severity  `json:"severity"`
	Features        Features      `json:"features"`
	Causes          []Cause       `json:"causes"`
	Recommendations []string      `json:"recommendations"`
	Countdown       *Countdown    `json:"countdown,omitempty"`
}

// PredictorConfig holds the weighted heuristic model parameters.
// This is a deterministic scoring function, not a trained classifier.
type PredictorConfig struct {
	FeatureWindow     int           `json:"feature_window"`      // Samples per feature extraction
	WarnThreshold     float64       `json:"warn_threshold"`      // Probability that yields a prediction
	CriticalThreshold float64       `json:"critical_threshold"`  // Probability that escalates severity
	QualityWeight     float64       `json:"quality_weight"`      // Inverse-quality factor weight
	LatencyWeight     float64       `json:"latency_weight"`      // Normalized-latency factor weight
	TrendWeight       float64       `json:"trend_weight"`        // Negative-trend factor weight
	PatternWeight     float64       `json:"pattern_weight"`      // Risky-pattern-count factor weight
	QualityFloor      float64       `json:"quality_floor"`       // Quality below this is failing
	LatencyNormMS     float64       `json:"latency_norm_ms"`     // Latency that saturates its factor
	LatencyCeilingMS  float64       `json:"latency_ceiling_ms"`  // Latency above this indicates congestion
	BandwidthFloor    float64       `json:"bandwidth_floor"`     // Kbps below this indicates collapse
	SlopeNorm         float64       `json:"slope_norm"`          // |quality slope| that saturates the trend factor
	MinLeadTime       time.Duration `json:"min_lead_time"`       // Lower bound on time-to-event
	MaxLeadTime       time.Duration `json:"max_lead_time"`       // Upper bound on time-to-event
	RetentionWindow   time.Duration `json:"retention_window"`    // How long predictions stay active
	MaxConfidence     float64       `json:"max_confidence"`      // Cap on model-derived confidence
}

// DefaultPredictorConfig returns the default model parameters
func DefaultPredictorConfig() *PredictorConfig {
	return &PredictorConfig{
		FeatureWindow:     10,
		WarnThreshold:     0.6,
		CriticalThreshold: 0.85,
		QualityWeight:     0.4,
		LatencyWeight:     0.2,
		TrendWeight:       0.25,
		PatternWeight:     0.15,
		QualityFloor:      30,
		LatencyNormMS:     500,
		LatencyCeilingMS:  300,
		BandwidthFloor:    500,
		SlopeNorm:         5.0,
		MinLeadTime:       10 * time.Second,
		MaxLeadTime:       60 * time.Second,
		RetentionWindow:   5 * time.Minute,
		MaxConfidence:     0.95,
	}
}

// Predictor scores the latest window and maintains the active prediction set
type Predictor struct {
	mu sync.RWMutex

	config *PredictorConfig
	logger *logx.Logger
	store  *telem.Store

	active []*Prediction

	// accuracyFn supplies the model tracker's current accuracy
	accuracyFn   func() float64
	onPrediction func(*Prediction)
}

// NewPredictor creates a disconnect predictor over the given store
func NewPredictor(config *PredictorConfig, logger *logx.Logger, store *telem.Store) *Predictor {
	if config == nil {
		config = DefaultPredictorConfig()
	}

	return &Predictor{
		config: config,
		logger: logger,
		store:  store,
	}
}

// SetAccuracySource wires the model tracker's accuracy into prediction confidence
func (p *Predictor) SetAccuracySource(fn func() float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accuracyFn = fn
}

// SetPredictionCallback registers the hook invoked for each qualifying prediction
func (p *Predictor) SetPredictionCallback(callback func(*Prediction)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPrediction = callback
}

// Evaluate runs one prediction cycle. It returns nil when there is not enough
// data or the probability stays below the warning threshold.
func (p *Predictor) Evaluate(now time.Time, activePatterns []*patterns.Pattern) *Prediction {
	p.prune(now)

	features, ok := p.extractFeatures(now, activePatterns)
	if !ok {
		return nil
	}

	probability := p.probability(features)
	if probability < p.config.WarnThreshold {
		p.logger.Trace("Probability below warning threshold",
			"probability", probability,
			"mean_quality", features.MeanQuality)
		return nil
	}

	prediction := p.build(now, features, probability)

	p.mu.Lock()
	p.active = append(p.active, prediction)
	callback := p.onPrediction
	p.mu.Unlock()

	p.logger.Info("Disconnect predicted",
		"probability", prediction.Probability,
		"severity", prediction.Severity,
		"time_to_event", prediction.TimeToEvent,
		"causes", len(prediction.Causes))

	if callback != nil {
		callback(prediction)
	}

	return prediction
}

// extractFeatures summarizes the newest window of samples
func (p *Predictor) extractFeatures(now time.Time, activePatterns []*patterns.Pattern) (Features, bool) {
	samples := p.store.Recent(p.config.FeatureWindow)
	if samples == nil {
		return Features{}, false
	}

	var quality, latency, bandwidth float64
	for _, sample := range samples {
		quality += sample.Quality
		latency += sample.LatencyMS
		bandwidth += sample.BandwidthKbps
	}
	n := float64(len(samples))

	risky := 0
	for _, pattern := range activePatterns {
		if pattern.Type == patterns.PatternVolatile || pattern.Type == patterns.PatternDegrading {
			risky++
		}
	}

	return Features{
		MeanQuality:       quality / n,
		MeanLatencyMS:     latency / n,
		MeanBandwidthKbps: bandwidth / n,
		QualitySlope:      slope(samples, func(s pkg.ConnectionSample) float64 { return s.Quality }),
		LatencySlope:      slope(samples, func(s pkg.ConnectionSample) float64 { return s.LatencyMS }),
		HourOfDay:         now.Hour(),
		ActivePatterns:    len(activePatterns),
		RiskyPatterns:     risky,
		ServerHealthy:     samples[len(samples)-1].ServerHealthy,
	}, true
}

// probability is the bounded weighted sum of the four factors
func (p *Predictor) probability(features Features) float64 {
	// Inverse quality, saturating once the mean reaches the failure floor
	qualityFactor := math.Min(1.0, (100-features.MeanQuality)/(100-p.config.QualityFloor))
	qualityFactor = math.Max(0, qualityFactor)

	latencyFactor := math.Min(1.0, features.MeanLatencyMS/p.config.LatencyNormMS)

	// The trend only contributes while quality is falling
	trendFactor := 0.0
	if features.QualitySlope < 0 {
		trendFactor = math.Min(1.0, -features.QualitySlope/p.config.SlopeNorm)
	}

	patternFactor := math.Min(1.0, float64(features.RiskyPatterns)/2.0)

	probability := p.config.QualityWeight*qualityFactor +
		p.config.LatencyWeight*latencyFactor +
		p.config.TrendWeight*trendFactor +
		p.config.PatternWeight*patternFactor

	return math.Min(1.0, math.Max(0, probability))
}

func (p *Predictor) build(now time.Time, features Features, probability float64) *Prediction {
	severity := pkg.SeverityModerate
	if probability >= p.config.CriticalThreshold {
		severity = pkg.SeverityCritical
	}

	timeToEvent := p.estimateTimeToEvent(features)
	causes, recommendations := p.diagnose(features)

	confidence := 0.0
	if p.accuracyFn != nil {
		confidence = p.accuracyFn()
	}
	confidence = math.Min(p.config.MaxConfidence, math.Max(0, confidence))

	return &Prediction{
		ID:              fmt.Sprintf("pred_%d", now.UnixNano()),
		CreatedAt:       now,
		Probability:     probability,
		Confidence:      confidence,
		TimeToEvent:     timeToEvent,
		Severity:        severity,
		Features:        features,
		Causes:          causes,
		Recommendations: recommendations,
		Countdown: &Countdown{
			StartedAt:           now,
			EstimatedDisconnect: now.Add(timeToEvent),
			WarnThreshold:       p.config.WarnThreshold,
			CriticalThreshold:   p.config.CriticalThreshold,
			Active:              true,
		},
	}
}

// estimateTimeToEvent projects how long the current degradation rate takes to
// reach the quality floor, clamped to the configured lead-time bounds.
func (p *Predictor) estimateTimeToEvent(features Features) time.Duration {
	if features.QualitySlope >= 0 {
		return p.config.MaxLeadTime
	}

	remaining := features.MeanQuality - p.config.QualityFloor
	if remaining <= 0 {
		return p.config.MinLeadTime
	}

	samplesLeft := remaining / -features.QualitySlope
	estimate := time.Duration(samplesLeft * float64(time.Second))

	if estimate < p.config.MinLeadTime {
		return p.config.MinLeadTime
	}
	if estimate > p.config.MaxLeadTime {
		return p.config.MaxLeadTime
	}
	return estimate
}

// diagnose enumerates causes and recommendations from the rule checks
func (p *Predictor) diagnose(features Features) ([]Cause, []string) {
	var causes []Cause
	var recommendations []string

	if features.MeanQuality < p.config.QualityFloor {
		causes = append(causes, Cause{
			Cause: pkg.CauseQualityDegradation,
			Indicators: []string{
				fmt.Sprintf("mean quality %.1f below floor %.1f", features.MeanQuality, p.config.QualityFloor),
				fmt.Sprintf("quality slope %.2f per sample", features.QualitySlope),
			},
			Mitigation: "prepare an adaptive reconnection before the link drops",
		})
		recommendations = append(recommendations, "reduce session quality requirements until the link recovers")
	}

	if features.MeanLatencyMS > p.config.LatencyCeilingMS {
		causes = append(causes, Cause{
			Cause: pkg.CauseNetworkCongestion,
			Indicators: []string{
				fmt.Sprintf("mean latency %.0fms above ceiling %.0fms", features.MeanLatencyMS, p.config.LatencyCeilingMS),
				fmt.Sprintf("latency slope %.2fms per sample", features.LatencySlope),
			},
			Mitigation: "back off concurrent transfers or switch network paths",
		})
		recommendations = append(recommendations, "defer bulk transfers while congestion persists")
	}

	if features.MeanBandwidthKbps < p.config.BandwidthFloor {
		causes = append(causes, Cause{
			Cause: pkg.CauseThroughputCollapse,
			Indicators: []string{
				fmt.Sprintf("mean bandwidth %.0fkbps below floor %.0fkbps", features.MeanBandwidthKbps, p.config.BandwidthFloor),
			},
			Mitigation: "pre-buffer critical data before throughput disappears",
		})
		recommendations = append(recommendations, "pause non-essential downloads")
	}

	if !features.ServerHealthy {
		causes = append(causes, Cause{
			Cause:      pkg.CauseServerUnhealthy,
			Indicators: []string{"remote end reports unhealthy"},
			Mitigation: "select a fallback endpoint",
		})
		recommendations = append(recommendations, "rotate to a healthy server endpoint")
	}

	if len(causes) == 0 {
		causes = append(causes, Cause{
			Cause:      pkg.CauseUnknown,
			Indicators: []string{"composite risk exceeded threshold without a single dominant factor"},
			Mitigation: "monitor closely and keep a recovery strategy warm",
		})
		recommendations = append(recommendations, "keep the reconnection executor primed")
	}

	return causes, recommendations
}

// Active returns copies of the non-expired predictions, newest first
func (p *Predictor) Active(now time.Time) []*Prediction {
	p.prune(now)

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Prediction, 0, len(p.active))
	for _, prediction := range p.active {
		clone := *prediction
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Get returns the active prediction with the given ID
func (p *Predictor) Get(id string) (*Prediction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, prediction := range p.active {
		if prediction.ID == id {
			clone := *prediction
			return &clone, true
		}
	}
	return nil, false
}

// prune drops predictions older than the retention window and expires countdowns
func (p *Predictor) prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.active[:0]
	for _, prediction := range p.active {
		if now.Sub(prediction.CreatedAt) > p.config.RetentionWindow {
			continue
		}
		if prediction.Countdown != nil && now.After(prediction.Countdown.EstimatedDisconnect) {
			prediction.Countdown.Active = false
		}
		kept = append(kept, prediction)
	}
	p.active = kept
}

// GetStatus returns predictor state for diagnostics
func (p *Predictor) GetStatus() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"active_predictions": len(p.active),
		"warn_threshold":     p.config.WarnThreshold,
		"critical_threshold": p.config.CriticalThreshold,
	}
}

// slope is a least-squares fit of the metric against sample index
func slope(samples []pkg.ConnectionSample, metric func(pkg.ConnectionSample) float64) float64 {
	if len(samples) < 3 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, sample := range samples {
		x := float64(i)
		y := metric(sample)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	n := float64(len(samples))
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
