// Package strategy scores and selects reconnection strategies for predicted or
// actual disconnections.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/logx"
)

// Type identifies a reconnection approach
type Type string

const (
	TypeImmediate   Type = "immediate"   // Single fast retry
	TypeProgressive Type = "progressive" // Exponential backoff retries
	TypeAdaptive    Type = "adaptive"    // Quality-gated retries
	TypeParallel    Type = "parallel"    // Race multiple endpoints
)

// ConditionKind is the closed set of applicability checks a strategy can carry
type ConditionKind string

const (
	ConditionCauseIs       ConditionKind = "cause_is"
	ConditionQualityBelow  ConditionKind = "quality_below"
	ConditionQualityAbove  ConditionKind = "quality_above"
	ConditionAttemptsBelow ConditionKind = "attempts_below"
	ConditionAttemptsAbove ConditionKind = "attempts_above"
)

// Condition is one weighted applicability check
type Condition struct {
	Kind      ConditionKind       `json:"kind"`
	Cause     pkg.DisconnectCause `json:"cause,omitempty"`     // For cause_is
	Threshold float64             `json:"threshold,omitempty"` // For the quality/attempt checks
	Weight    float64             `json:"weight"`              // 0-1 contribution when matched
}

// Context is the situation a strategy is selected for
type Context struct {
	Cause    pkg.DisconnectCause `json:"cause"`
	Quality  float64             `json:"quality"`  // Last known quality, 0-100
	Attempts int                 `json:"attempts"` // Reconnection attempts so far
}

// Matches reports whether the condition applies to the given context
func (c Condition) Matches(ctx Context) bool {
	switch c.Kind {
	case ConditionCauseIs:
		return ctx.Cause == c.Cause
	case ConditionQualityBelow:
		return ctx.Quality < c.Threshold
	case ConditionQualityAbove:
		return ctx.Quality > c.Threshold
	case ConditionAttemptsBelow:
		return float64(ctx.Attempts) < c.Threshold
	case ConditionAttemptsAbove:
		return float64(ctx.Attempts) > c.Threshold
	default:
		return false
	}
}

// Strategy is one registered reconnection approach with its track record
type Strategy struct {
	ID          string      `json:"id"`
	Type        Type        `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Conditions  []Condition `json:"conditions"`

	MaxAttempts   int           `json:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`

	SuccessRate     float64       `json:"success_rate"` // Running mean of reported outcomes
	Uses            int           `json:"uses"`
	Successes       int           `json:"successes"`
	AvgRecoveryTime time.Duration `json:"avg_recovery_time"` // Running mean of successful recoveries
	LastUsed        time.Time     `json:"last_used"`
}

// SelectorConfig holds the scoring shares
type SelectorConfig struct {
	ConditionShare     float64 `json:"condition_share"`      // Weight of condition fit in the score
	SuccessShare       float64 `json:"success_share"`        // Weight of the historical success rate
	InitialSuccessRate float64 `json:"initial_success_rate"` // Prior before any outcome is reported
}

// DefaultSelectorConfig returns the default scoring shares
func DefaultSelectorConfig() *SelectorConfig {
	return &SelectorConfig{
		ConditionShare:     0.6,
		SuccessShare:       0.4,
		InitialSuccessRate: 0.5,
	}
}

// Selector holds the strategy registry and picks the best fit per context
type Selector struct {
	mu sync.RWMutex

	config *SelectorConfig
	logger *logx.Logger

	order      []string // Registration order, first entry is the fallback
	strategies map[string]*Strategy
}

// NewSelector creates an empty strategy selector
func NewSelector(config *SelectorConfig, logger *logx.Logger) *Selector {
	if config == nil {
		config = DefaultSelectorConfig()
	}

	return &Selector{
		config:     config,
		logger:     logger,
		strategies: make(map[string]*Strategy),
	}
}

// Register adds a strategy to the registry. IDs are unique.
func (s *Selector) Register(strategy *Strategy) error {
	if strategy == nil || strategy.ID == "" {
		return fmt.Errorf("strategy requires an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.strategies[strategy.ID]; exists {
		return fmt.Errorf("strategy %s already registered", strategy.ID)
	}

	if strategy.Uses == 0 {
		strategy.SuccessRate = s.config.InitialSuccessRate
	}
	s.strategies[strategy.ID] = strategy
	s.order = append(s.order, strategy.ID)

	s.logger.Debug("Strategy registered", "id", strategy.ID, "type", strategy.Type)
	return nil
}

// Select scores the strategies whose conditions all hold against the context
// and returns the best one. When no strategy is applicable, the first
// registered strategy is returned so callers always get an executable plan.
func (s *Selector) Select(ctx Context) (*Strategy, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, 0, fmt.Errorf("no strategies registered")
	}

	var best *Strategy
	bestScore := -1.0

	for _, id := range s.order {
		strategy := s.strategies[id]
		applicable, score := s.score(strategy, ctx)
		if applicable && score > bestScore {
			best = strategy
			bestScore = score
		}
	}

	if best == nil {
		fallback := s.strategies[s.order[0]]
		s.logger.Debug("No strategy applicable, using fallback",
			"id", fallback.ID, "cause", ctx.Cause)
		clone := *fallback
		return &clone, s.config.SuccessShare * fallback.SuccessRate, nil
	}

	s.logger.Debug("Strategy selected",
		"id", best.ID,
		"score", bestScore,
		"cause", ctx.Cause,
		"attempts", ctx.Attempts)

	clone := *best
	return &clone, bestScore, nil
}

// score returns whether every condition holds and the combined score.
// The condition share uses the mean weight of the strategy's conditions.
func (s *Selector) score(strategy *Strategy, ctx Context) (bool, float64) {
	if len(strategy.Conditions) == 0 {
		return false, 0
	}

	var totalWeight float64
	for _, condition := range strategy.Conditions {
		if !condition.Matches(ctx) {
			return false, 0
		}
		totalWeight += condition.Weight
	}

	meanWeight := totalWeight / float64(len(strategy.Conditions))
	return true, s.config.ConditionShare*meanWeight + s.config.SuccessShare*strategy.SuccessRate
}

// ReportOutcome folds one reconnection result into the strategy's running
// success rate and recovery time. The configured prior counts as one
// observation of the success rate.
func (s *Selector) ReportOutcome(id string, success bool, recoveryTime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategy, exists := s.strategies[id]
	if !exists {
		return fmt.Errorf("strategy %s not registered", id)
	}

	outcome := 0.0
	if success {
		outcome = 1.0
		strategy.Successes++
		// Recovery time only means anything for recoveries that happened
		delta := recoveryTime - strategy.AvgRecoveryTime
		strategy.AvgRecoveryTime += delta / time.Duration(strategy.Successes)
	}
	strategy.Uses++
	strategy.LastUsed = time.Now()
	strategy.SuccessRate += (outcome - strategy.SuccessRate) / float64(strategy.Uses+1)

	s.logger.Debug("Strategy outcome recorded",
		"id", id,
		"success", success,
		"success_rate", strategy.SuccessRate,
		"uses", strategy.Uses)
	return nil
}

// Get returns a copy of the strategy with the given ID
func (s *Selector) Get(id string) (*Strategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strategy, exists := s.strategies[id]
	if !exists {
		return nil, false
	}
	clone := *strategy
	return &clone, true
}

// List returns copies of all strategies in registration order
func (s *Selector) List() []*Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Strategy, 0, len(s.order))
	for _, id := range s.order {
		clone := *s.strategies[id]
		out = append(out, &clone)
	}
	return out
}

// GetStatus returns selector state for diagnostics
func (s *Selector) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := make(map[string]float64, len(s.strategies))
	for id, strategy := range s.strategies {
		rates[id] = strategy.SuccessRate
	}

	return map[string]interface{}{
		"strategies":    len(s.strategies),
		"success_rates": rates,
	}
}

// DefaultStrategies returns the four built-in reconnection strategies
func DefaultStrategies() []*Strategy {
	return []*Strategy{
		{
			ID:          "immediate",
			Type:        TypeImmediate,
			Name:        "Immediate Retry",
			Description: "Single fast retry for transient server-side failures",
			Conditions: []Condition{
				{Kind: ConditionCauseIs, Cause: pkg.CauseServerUnhealthy, Weight: 0.9},
				{Kind: ConditionAttemptsBelow, Threshold: 2, Weight: 0.7},
			},
			MaxAttempts:   1,
			BaseDelay:     500 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			BackoffFactor: 1.0,
		},
		{
			ID:          "progressive",
			Type:        TypeProgressive,
			Name:        "Progressive Backoff",
			Description: "Exponential backoff for congested networks",
			Conditions: []Condition{
				{Kind: ConditionCauseIs, Cause: pkg.CauseNetworkCongestion, Weight: 0.9},
				{Kind: ConditionAttemptsAbove, Threshold: 1, Weight: 0.6},
			},
			MaxAttempts:   5,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
		},
		{
			ID:          "adaptive",
			Type:        TypeAdaptive,
			Name:        "Adaptive Recovery",
			Description: "Quality-gated retries while the link degrades",
			Conditions: []Condition{
				{Kind: ConditionCauseIs, Cause: pkg.CauseQualityDegradation, Weight: 0.9},
				{Kind: ConditionQualityBelow, Threshold: 40, Weight: 0.8},
			},
			MaxAttempts:   4,
			BaseDelay:     2 * time.Second,
			MaxDelay:      20 * time.Second,
			BackoffFactor: 1.5,
		},
		{
			ID:          "parallel",
			Type:        TypeParallel,
			Name:        "Parallel Endpoints",
			Description: "Race fallback endpoints when throughput collapses",
			Conditions: []Condition{
				{Kind: ConditionCauseIs, Cause: pkg.CauseThroughputCollapse, Weight: 0.9},
				{Kind: ConditionAttemptsAbove, Threshold: 2, Weight: 0.7},
			},
			MaxAttempts:   2,
			BaseDelay:     time.Second,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 1.0,
		},
	}
}
