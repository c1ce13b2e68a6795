// Package patterns classifies recent connection history into named behavioral patterns.
package patterns

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sajari/regression"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/telem"
)

// PatternType names a recognized recurring behavior
type PatternType string

const (
	PatternStable        PatternType = "stable"
	PatternVolatile      PatternType = "volatile"
	PatternPeriodicDrops PatternType = "periodic-drops"
	PatternDegrading     PatternType = "degrading"
	PatternImproving     PatternType = "improving"
	PatternTimeBased     PatternType = "time-based"
)

// AllPatternTypes lists every pattern type the detector can emit
var AllPatternTypes = []PatternType{
	PatternStable,
	PatternVolatile,
	PatternPeriodicDrops,
	PatternDegrading,
	PatternImproving,
	PatternTimeBased,
}

// Characteristics summarizes the window a pattern was observed in
type Characteristics struct {
	AvgQuality       float64        `json:"avg_quality"`
	AvgLatencyMS     float64        `json:"avg_latency_ms"`
	AvgBandwidthKbps float64        `json:"avg_bandwidth_kbps"`
	Volatility       float64        `json:"volatility"` // Standard deviation of the quality score
	RepeatInterval   *time.Duration `json:"repeat_interval,omitempty"`
	HoursOfDay       []int          `json:"hours_of_day,omitempty"`
}

// Pattern represents a recognized recurring behavior with its evidence strength
type Pattern struct {
	ID              string          `json:"id"`
	Type            PatternType     `json:"type"`
	Confidence      float64         `json:"confidence"` // 0-1 strength of evidence
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	Occurrences     int             `json:"occurrences"`
	Characteristics Characteristics `json:"characteristics"`
	NextExpected    *time.Time      `json:"next_expected,omitempty"` // Forward prediction for periodic drops
}

// DetectorConfig holds the classifier thresholds.
// The variance/slope/CV bounds are heuristic defaults carried over from
// operational tuning, not derived statistics; treat them as starting points.
type DetectorConfig struct {
	AnalysisWindow      int           `json:"analysis_window"`       // Samples per classifier pass
	StableVarianceMax   float64       `json:"stable_variance_max"`   // Quality variance below this reads as stable
	VolatileVarianceMin float64       `json:"volatile_variance_min"` // Quality variance above this reads as volatile
	TrendSlopeMin       float64       `json:"trend_slope_min"`       // Minimum |slope| (quality/sample) for a trend
	PeriodicCVTolerance float64       `json:"periodic_cv_tolerance"` // Max coefficient of variation for periodicity
	PeriodicMinEvents   int           `json:"periodic_min_events"`   // Disconnect events needed for periodicity
	MinHourlySamples    int           `json:"min_hourly_samples"`    // Events needed to implicate an hour
	LowQualityHourMax   float64       `json:"low_quality_hour_max"`  // Mean hourly quality below this is a bad hour
	ConfidenceThreshold float64       `json:"confidence_threshold"`  // Candidates below this are discarded
	MaxPatterns         int           `json:"max_patterns"`          // Registry cap
	SmoothingWeight     float64       `json:"smoothing_weight"`      // EMA weight for merged rediscoveries
	FreshnessWindow     time.Duration `json:"freshness_window"`      // Last-seen horizon for Active()
}

// DefaultDetectorConfig returns the default classifier thresholds
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		AnalysisWindow:      20,
		StableVarianceMax:   100,
		VolatileVarianceMin: 500,
		TrendSlopeMin:       0.5,
		PeriodicCVTolerance: 0.2,
		PeriodicMinEvents:   5,
		MinHourlySamples:    3,
		LowQualityHourMax:   50,
		ConfidenceThreshold: 0.6,
		MaxPatterns:         50,
		SmoothingWeight:     0.1,
		FreshnessWindow:     10 * time.Minute,
	}
}

// Detector runs the four classifiers over the sample store and maintains the pattern registry
type Detector struct {
	mu sync.RWMutex

	config *DetectorConfig
	logger *logx.Logger
	store  *telem.Store

	registry map[PatternType]*Pattern

	onPattern func(*Pattern)
}

// NewDetector creates a pattern detector over the given store
func NewDetector(config *DetectorConfig, logger *logx.Logger, store *telem.Store) *Detector {
	if config == nil {
		config = DefaultDetectorConfig()
	}

	return &Detector{
		config:   config,
		logger:   logger,
		store:    store,
		registry: make(map[PatternType]*Pattern),
	}
}

// SetPatternCallback registers the hook invoked when a new pattern is discovered
func (d *Detector) SetPatternCallback(callback func(*Pattern)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPattern = callback
}

// Analyze runs all classifiers once and folds the candidates into the registry.
// It returns the candidates that met the confidence threshold this pass.
func (d *Detector) Analyze(now time.Time) []*Pattern {
	candidates := make([]*Pattern, 0, 4)

	if c := d.classifyStability(now); c != nil {
		candidates = append(candidates, c)
	}
	if c := d.classifyPeriodicity(now); c != nil {
		candidates = append(candidates, c)
	}
	if c := d.classifyTrend(now); c != nil {
		candidates = append(candidates, c)
	}
	if c := d.classifyTimeOfDay(now); c != nil {
		candidates = append(candidates, c)
	}

	accepted := make([]*Pattern, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Confidence < d.config.ConfidenceThreshold {
			continue
		}
		accepted = append(accepted, d.merge(candidate))
	}

	d.evictOverCap()

	return accepted
}

// Active returns patterns last seen within the given freshness window (config default when <= 0)
func (d *Detector) Active(freshness time.Duration) []*Pattern {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if freshness <= 0 {
		freshness = d.config.FreshnessWindow
	}

	cutoff := time.Now().Add(-freshness)
	out := make([]*Pattern, 0, len(d.registry))
	for _, pattern := range d.registry {
		if pattern.LastSeen.After(cutoff) {
			clone := *pattern
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// classifyStability reports stable or volatile from quality variance, never both
func (d *Detector) classifyStability(now time.Time) *Pattern {
	points := d.store.RecentMetrics(d.config.AnalysisWindow)
	if points == nil {
		return nil
	}

	variance := qualityVariance(points)

	switch {
	case variance < d.config.StableVarianceMax:
		confidence := 1.0 - variance/d.config.StableVarianceMax
		return d.candidate(PatternStable, confidence, now, points)
	case variance > d.config.VolatileVarianceMin:
		confidence := math.Min(1.0, variance/(2*d.config.VolatileVarianceMin))
		return d.candidate(PatternVolatile, confidence, now, points)
	default:
		return nil
	}
}

// classifyPeriodicity looks for evenly spaced disconnect events
func (d *Detector) classifyPeriodicity(now time.Time) *Pattern {
	events := d.store.EventsOfType(pkg.EventDisconnected, d.config.PeriodicMinEvents*2)
	if len(events) < d.config.PeriodicMinEvents {
		return nil
	}

	intervals := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		intervals = append(intervals, events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds())
	}

	mean, std := meanStd(intervals)
	if mean <= 0 {
		return nil
	}

	cv := std / mean
	if cv >= d.config.PeriodicCVTolerance {
		return nil
	}

	points := d.store.RecentMetrics(d.config.AnalysisWindow)
	repeat := time.Duration(mean * float64(time.Second))
	next := events[len(events)-1].Timestamp.Add(repeat)

	candidate := d.candidate(PatternPeriodicDrops, math.Max(0, 1.0-cv), now, points)
	candidate.Characteristics.RepeatInterval = &repeat
	candidate.NextExpected = &next
	return candidate
}

// classifyTrend fits quality against sample index and reports a direction when the slope is material
func (d *Detector) classifyTrend(now time.Time) *Pattern {
	points := d.store.RecentMetrics(d.config.AnalysisWindow)
	if points == nil || len(points) < 3 {
		return nil
	}

	r := new(regression.Regression)
	r.SetObserved("quality")
	r.SetVar(0, "sample_index")
	for i, point := range points {
		r.Train(regression.DataPoint(point.Quality, []float64{float64(i)}))
	}
	if err := r.Run(); err != nil {
		d.logger.Debug("Trend regression skipped", "error", err, "points", len(points))
		return nil
	}

	slope := r.Coeff(1)
	if math.Abs(slope) <= d.config.TrendSlopeMin {
		return nil
	}

	patternType := PatternImproving
	if slope < 0 {
		patternType = PatternDegrading
	}

	confidence := math.Min(1.0, math.Abs(slope)/(2*d.config.TrendSlopeMin))
	return d.candidate(patternType, confidence, now, points)
}

// classifyTimeOfDay buckets transition events by hour and implicates recurring bad hours
func (d *Detector) classifyTimeOfDay(now time.Time) *Pattern {
	events := d.store.Events(0)
	if len(events) == 0 {
		return nil
	}

	counts := make(map[int]int)
	qualitySums := make(map[int]float64)
	for _, event := range events {
		if event.Type == pkg.EventConnected {
			continue
		}
		hour := event.Timestamp.Hour()
		counts[hour]++
		qualitySums[hour] += event.Quality
	}

	var badHours []int
	badEvents := 0
	for hour, count := range counts {
		if count < d.config.MinHourlySamples {
			continue
		}
		if qualitySums[hour]/float64(count) < d.config.LowQualityHourMax {
			badHours = append(badHours, hour)
			badEvents += count
		}
	}

	if len(badHours) == 0 {
		return nil
	}
	sort.Ints(badHours)

	points := d.store.RecentMetrics(d.config.AnalysisWindow)
	confidence := math.Min(1.0, float64(badEvents)/float64(d.config.MinHourlySamples*3))
	candidate := d.candidate(PatternTimeBased, confidence, now, points)
	candidate.Characteristics.HoursOfDay = badHours
	return candidate
}

func (d *Detector) candidate(patternType PatternType, confidence float64, now time.Time, points []telem.MetricPoint) *Pattern {
	chars := Characteristics{}
	if len(points) > 0 {
		var quality, latency, bandwidth float64
		for _, point := range points {
			quality += point.Quality
			latency += point.LatencyMS
			bandwidth += point.BandwidthKbps
		}
		n := float64(len(points))
		chars.AvgQuality = quality / n
		chars.AvgLatencyMS = latency / n
		chars.AvgBandwidthKbps = bandwidth / n
		chars.Volatility = math.Sqrt(qualityVariance(points))
	}

	return &Pattern{
		ID:              fmt.Sprintf("pat_%s_%d", patternType, now.UnixNano()),
		Type:            patternType,
		Confidence:      math.Min(1.0, math.Max(0, confidence)),
		FirstSeen:       now,
		LastSeen:        now,
		Occurrences:     1,
		Characteristics: chars,
	}
}

// merge folds a candidate into the registry: new types are registered and reported,
// rediscoveries are smoothed into the existing entry instead of duplicated.
func (d *Detector) merge(candidate *Pattern) *Pattern {
	d.mu.Lock()

	existing, ok := d.registry[candidate.Type]
	if !ok {
		d.registry[candidate.Type] = candidate
		callback := d.onPattern
		d.mu.Unlock()

		d.logger.Info("Pattern discovered",
			"type", candidate.Type,
			"confidence", candidate.Confidence,
			"avg_quality", candidate.Characteristics.AvgQuality)

		if callback != nil {
			callback(candidate)
		}
		return candidate
	}

	w := d.config.SmoothingWeight
	existing.Confidence = existing.Confidence*(1-w) + candidate.Confidence*w
	existing.Characteristics.AvgQuality = existing.Characteristics.AvgQuality*(1-w) + candidate.Characteristics.AvgQuality*w
	existing.Characteristics.AvgLatencyMS = existing.Characteristics.AvgLatencyMS*(1-w) + candidate.Characteristics.AvgLatencyMS*w
	existing.Characteristics.AvgBandwidthKbps = existing.Characteristics.AvgBandwidthKbps*(1-w) + candidate.Characteristics.AvgBandwidthKbps*w
	existing.Characteristics.Volatility = existing.Characteristics.Volatility*(1-w) + candidate.Characteristics.Volatility*w
	if candidate.Characteristics.RepeatInterval != nil {
		existing.Characteristics.RepeatInterval = candidate.Characteristics.RepeatInterval
	}
	if len(candidate.Characteristics.HoursOfDay) > 0 {
		existing.Characteristics.HoursOfDay = candidate.Characteristics.HoursOfDay
	}
	existing.NextExpected = candidate.NextExpected
	existing.LastSeen = candidate.LastSeen
	existing.Occurrences++

	d.mu.Unlock()

	d.logger.Debug("Pattern rediscovered",
		"type", existing.Type,
		"confidence", existing.Confidence,
		"occurrences", existing.Occurrences)

	return existing
}

// evictOverCap drops the lowest-confidence entries once the registry exceeds its cap
func (d *Detector) evictOverCap() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.registry) > d.config.MaxPatterns {
		var weakest PatternType
		lowest := math.MaxFloat64
		for patternType, pattern := range d.registry {
			if pattern.Confidence < lowest {
				lowest = pattern.Confidence
				weakest = patternType
			}
		}
		d.logger.Debug("Evicting pattern over registry cap", "type", weakest, "confidence", lowest)
		delete(d.registry, weakest)
	}
}

// GetStatus returns registry occupancy for diagnostics
func (d *Detector) GetStatus() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.registry))
	for patternType := range d.registry {
		types = append(types, string(patternType))
	}
	sort.Strings(types)

	return map[string]interface{}{
		"patterns":     len(d.registry),
		"max_patterns": d.config.MaxPatterns,
		"types":        types,
	}
}

func qualityVariance(points []telem.MetricPoint) float64 {
	if len(points) == 0 {
		return 0
	}

	var sum float64
	for _, point := range points {
		sum += point.Quality
	}
	mean := sum / float64(len(points))

	var sq float64
	for _, point := range points {
		diff := point.Quality - mean
		sq += diff * diff
	}
	return sq / float64(len(points))
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		diff := v - mean
		sq += diff * diff
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
