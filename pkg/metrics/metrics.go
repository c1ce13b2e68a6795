// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the engine updates on each cycle
type Metrics struct {
	registry *prometheus.Registry

	SamplesRecorded    prometheus.Counter
	EventsRecorded     *prometheus.CounterVec
	ActivePatterns     *prometheus.GaugeVec
	PatternConfidence  *prometheus.GaugeVec
	PredictionsTotal   *prometheus.CounterVec
	PredictionRisk     prometheus.Gauge
	NotificationsSent  *prometheus.CounterVec
	NotificationsMuted prometheus.Counter
	StrategySelections *prometheus.CounterVec
	StrategySuccess    *prometheus.GaugeVec
	ModelAccuracy      prometheus.Gauge
	ModelVersion       prometheus.Gauge
}

// New creates the collector set on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SamplesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwarden_samples_recorded_total",
			Help: "Connection samples ingested into the rolling store",
		}),
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwarden_events_recorded_total",
			Help: "Connection transition events by type",
		}, []string{"type"}),
		ActivePatterns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwarden_active_patterns",
			Help: "Patterns currently registered, by type",
		}, []string{"type"}),
		PatternConfidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwarden_pattern_confidence",
			Help: "Confidence of the registered pattern, by type",
		}, []string{"type"}),
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwarden_predictions_total",
			Help: "Disconnect predictions emitted, by severity",
		}, []string{"severity"}),
		PredictionRisk: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwarden_prediction_risk",
			Help: "Probability of the most recent prediction cycle (0 when none)",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwarden_notifications_sent_total",
			Help: "Notifications delivered, by priority",
		}, []string{"priority"}),
		NotificationsMuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwarden_notifications_suppressed_total",
			Help: "Notifications dropped by the hourly budget",
		}),
		StrategySelections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwarden_strategy_selections_total",
			Help: "Reconnection strategy selections, by strategy ID",
		}, []string{"strategy"}),
		StrategySuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwarden_strategy_success_rate",
			Help: "Running success rate per reconnection strategy",
		}, []string{"strategy"}),
		ModelAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwarden_model_accuracy",
			Help: "Accuracy of the prediction model over resolved outcomes",
		}),
		ModelVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwarden_model_version",
			Help: "Monotonic version of the prediction model",
		}),
	}
}

// Handler returns the scrape endpoint for the private registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
