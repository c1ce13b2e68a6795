package pkg

import "time"

// ConnectionSample represents one observed measurement of the monitored connection
type ConnectionSample struct {
	Timestamp     time.Time `json:"timestamp"`
	Connected     bool      `json:"connected"`
	Quality       float64   `json:"quality"`        // Normalized quality score (0-100)
	LatencyMS     float64   `json:"latency_ms"`     // Round-trip latency in milliseconds
	BandwidthKbps float64   `json:"bandwidth_kbps"` // Available bandwidth in kbit/s
	ServerHealthy bool      `json:"server_healthy"` // Health flag reported by the remote end
}

// EventType classifies a discrete connection transition
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventDegraded     EventType = "degraded"
)

// ConnectionEvent represents a discrete connection-state transition
type ConnectionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Quality   float64   `json:"quality"` // Quality score at the time of the transition
	Detail    string    `json:"detail,omitempty"`
}

// DisconnectCause identifies why a disconnection happened or is expected to happen
type DisconnectCause string

const (
	CauseQualityDegradation DisconnectCause = "quality_degradation"
	CauseNetworkCongestion  DisconnectCause = "network_congestion"
	CauseThroughputCollapse DisconnectCause = "throughput_collapse"
	CauseServerUnhealthy    DisconnectCause = "server_unhealthy"
	CauseUnknown            DisconnectCause = "unknown"
)

// Severity grades how serious a predicted disconnection is
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Outcome is the observed result reported back for a prediction
type Outcome string

const (
	OutcomeConnected    Outcome = "connected"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeDegraded     Outcome = "degraded"
)
