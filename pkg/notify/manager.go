// Package notify turns disconnect predictions into user-facing notifications
// with budget-based rate limiting.
package notify

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/predict"
)

// Priority orders notifications by urgency
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// Channel is a delivery surface
type Channel string

const (
	ChannelBanner Channel = "banner"
	ChannelToast  Channel = "toast"
	ChannelModal  Channel = "modal"
	ChannelSystem Channel = "system"
)

// Notification is one user-facing alert derived from a prediction
type Notification struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Priority     Priority  `json:"priority"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Channels     []Channel `json:"channels"`
	PredictionID string    `json:"prediction_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// ManagerConfig holds the rate limiting and expiry knobs
type ManagerConfig struct {
	HourlyBudget int           `json:"hourly_budget"` // Non-critical sends per trailing window
	BudgetWindow time.Duration `json:"budget_window"` // Trailing window the budget covers
	ExpiryGrace  time.Duration `json:"expiry_grace"`  // Kept past the predicted event this long
}

// DefaultManagerConfig returns the default notification knobs
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		HourlyBudget: 10,
		BudgetWindow: time.Hour,
		ExpiryGrace:  30 * time.Second,
	}
}

// Manager owns the active notification set and the send budget
type Manager struct {
	mu sync.RWMutex

	config *ManagerConfig
	logger *logx.Logger

	active map[string]*Notification
	order  []string
	sent   []time.Time // Send timestamps inside the budget window

	suppressed int
	onNotify   func(*Notification)
}

// NewManager creates a notification manager
func NewManager(config *ManagerConfig, logger *logx.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}

	return &Manager{
		config: config,
		logger: logger,
		active: make(map[string]*Notification),
	}
}

// SetNotifyCallback registers the hook invoked for each delivered notification
func (m *Manager) SetNotifyCallback(callback func(*Notification)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNotify = callback
}

// NotifyPrediction converts a prediction into a notification. Critical
// predictions always go through; everything else is dropped once the trailing
// budget is spent. A nil return with nil error means the send was suppressed.
func (m *Manager) NotifyPrediction(now time.Time, prediction *predict.Prediction) (*Notification, error) {
	if prediction == nil {
		return nil, fmt.Errorf("nil prediction")
	}

	priority := PriorityWarning
	channels := []Channel{ChannelBanner, ChannelToast}
	if prediction.Severity == pkg.SeverityCritical {
		priority = PriorityCritical
		channels = []Channel{ChannelModal, ChannelSystem}
	}

	m.mu.Lock()

	m.trimSentLocked(now)
	if priority != PriorityCritical && len(m.sent) >= m.config.HourlyBudget {
		m.suppressed++
		m.mu.Unlock()
		m.logger.Debug("Notification suppressed by budget",
			"budget", m.config.HourlyBudget)
		return nil, nil
	}

	seconds := int(math.Round(prediction.TimeToEvent.Seconds()))
	notification := &Notification{
		ID:           fmt.Sprintf("notif_%d", now.UnixNano()),
		CreatedAt:    now,
		Priority:     priority,
		Title:        "Connection at risk",
		Message:      fmt.Sprintf("Connection loss expected in ~%ds (%.0f%% probability)", seconds, prediction.Probability*100),
		Channels:     channels,
		PredictionID: prediction.ID,
		ExpiresAt:    now.Add(prediction.TimeToEvent + m.config.ExpiryGrace),
	}

	m.active[notification.ID] = notification
	m.order = append(m.order, notification.ID)
	m.sent = append(m.sent, now)
	callback := m.onNotify
	clone := *notification
	m.mu.Unlock()

	m.logger.Info("Notification sent",
		"id", notification.ID,
		"priority", notification.Priority,
		"expires_at", notification.ExpiresAt)

	if callback != nil {
		callback(&clone)
	}
	return &clone, nil
}

// Sweep removes expired notifications and, once the trailing budget is spent,
// drops non-critical actives so only the critical tier survives. Returns how
// many notifications were dropped.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trimSentLocked(now)
	overBudget := len(m.sent) >= m.config.HourlyBudget

	removed := 0
	kept := m.order[:0]
	for _, id := range m.order {
		notification := m.active[id]
		if now.After(notification.ExpiresAt) || (overBudget && notification.Priority != PriorityCritical) {
			delete(m.active, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept

	if removed > 0 {
		m.logger.Debug("Notifications swept", "removed", removed, "active", len(m.active))
	}
	return removed
}

// Acknowledge marks a notification acknowledged. Repeat calls are no-ops.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	notification, exists := m.active[id]
	if !exists {
		return false
	}
	notification.Acknowledged = true
	return true
}

// Dismiss removes a notification from the active set. Repeat calls are no-ops.
func (m *Manager) Dismiss(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[id]; !exists {
		return false
	}
	delete(m.active, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Active returns copies of the live notifications, newest first.
// Already-expired entries awaiting the next sweep are filtered out.
func (m *Manager) Active() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make([]*Notification, 0, len(m.active))
	for _, id := range m.order {
		notification := m.active[id]
		if now.After(notification.ExpiresAt) {
			continue
		}
		clone := *notification
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetStatus returns notification state for diagnostics
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"active":         len(m.active),
		"sent_in_window": len(m.sent),
		"hourly_budget":  m.config.HourlyBudget,
		"suppressed":     m.suppressed,
	}
}

// trimSentLocked drops send timestamps that fell out of the budget window
func (m *Manager) trimSentLocked(now time.Time) {
	cutoff := now.Add(-m.config.BudgetWindow)
	kept := m.sent[:0]
	for _, sent := range m.sent {
		if sent.After(cutoff) {
			kept = append(kept, sent)
		}
	}
	m.sent = kept
}
