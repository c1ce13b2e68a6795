// Package telem keeps the rolling in-memory history the intelligence engine works on.
package telem

import (
	"sync"
	"time"

	"github.com/netwarden/netwarden/pkg"
)

// MetricPoint is one entry of the generic metric ring used by the pattern detector
type MetricPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Quality       float64   `json:"quality"`
	LatencyMS     float64   `json:"latency_ms"`
	BandwidthKbps float64   `json:"bandwidth_kbps"`
}

// Config holds the buffer caps for the store
type Config struct {
	MaxSamples      int `json:"max_samples"`       // Raw connection sample cap
	MaxMetricPoints int `json:"max_metric_points"` // Generic metric ring cap
	MaxEvents       int `json:"max_events"`        // Connection transition event cap
	MinWindow       int `json:"min_window"`        // Minimum samples before readers compute anything
}

// DefaultConfig returns the default buffer caps
func DefaultConfig() *Config {
	return &Config{
		MaxSamples:      300, // 5 minutes at 1s sampling
		MaxMetricPoints: 500,
		MaxEvents:       100,
		MinWindow:       5,
	}
}

// Store manages the three parallel rolling buffers in RAM.
// All buffers truncate FIFO at their cap; they never grow past it.
type Store struct {
	mu sync.RWMutex

	config *Config

	samples []pkg.ConnectionSample
	metrics []MetricPoint
	events  []pkg.ConnectionEvent
}

// NewStore creates a store with the given caps
func NewStore(config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}

	return &Store{
		config:  config,
		samples: make([]pkg.ConnectionSample, 0, config.MaxSamples),
		metrics: make([]MetricPoint, 0, config.MaxMetricPoints),
		events:  make([]pkg.ConnectionEvent, 0, config.MaxEvents),
	}
}

// Record appends a sample to the raw buffer and its derived metric point to the metric ring
func (s *Store) Record(sample pkg.ConnectionSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if len(s.samples) > s.config.MaxSamples {
		s.samples = s.samples[1:]
	}

	s.metrics = append(s.metrics, MetricPoint{
		Timestamp:     sample.Timestamp,
		Quality:       sample.Quality,
		LatencyMS:     sample.LatencyMS,
		BandwidthKbps: sample.BandwidthKbps,
	})
	if len(s.metrics) > s.config.MaxMetricPoints {
		s.metrics = s.metrics[1:]
	}
}

// RecordEvent appends a connection transition event
func (s *Store) RecordEvent(event pkg.ConnectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if len(s.events) > s.config.MaxEvents {
		s.events = s.events[1:]
	}
}

// Recent returns a copy of the newest count samples.
// Below the minimum window it returns nil so callers report "no data" instead of computing on noise.
func (s *Store) Recent(count int) []pkg.ConnectionSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) < s.config.MinWindow {
		return nil
	}
	if count > len(s.samples) {
		count = len(s.samples)
	}

	out := make([]pkg.ConnectionSample, count)
	copy(out, s.samples[len(s.samples)-count:])
	return out
}

// Since returns a copy of samples newer than the given time, subject to the minimum window guard
func (s *Store) Since(since time.Time) []pkg.ConnectionSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) < s.config.MinWindow {
		return nil
	}

	var out []pkg.ConnectionSample
	for _, sample := range s.samples {
		if sample.Timestamp.After(since) {
			out = append(out, sample)
		}
	}
	return out
}

// RecentMetrics returns a copy of the newest count metric points
func (s *Store) RecentMetrics(count int) []MetricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.metrics) < s.config.MinWindow {
		return nil
	}
	if count > len(s.metrics) {
		count = len(s.metrics)
	}

	out := make([]MetricPoint, count)
	copy(out, s.metrics[len(s.metrics)-count:])
	return out
}

// Events returns a copy of the newest count transition events (all when count <= 0)
func (s *Store) Events(count int) []pkg.ConnectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.events) {
		count = len(s.events)
	}

	out := make([]pkg.ConnectionEvent, count)
	copy(out, s.events[len(s.events)-count:])
	return out
}

// EventsOfType returns the newest count events matching the given type
func (s *Store) EventsOfType(eventType pkg.EventType, count int) []pkg.ConnectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pkg.ConnectionEvent
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}

	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out
}

// Len returns the number of raw samples currently buffered
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// GetStatus returns buffer occupancy for diagnostics
func (s *Store) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"samples":           len(s.samples),
		"max_samples":       s.config.MaxSamples,
		"metric_points":     len(s.metrics),
		"max_metric_points": s.config.MaxMetricPoints,
		"events":            len(s.events),
		"max_events":        s.config.MaxEvents,
	}
}
