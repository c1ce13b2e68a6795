// Package api exposes the engine over HTTP for sample ingestion and queries.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/netwarden/netwarden/pkg"
	"github.com/netwarden/netwarden/pkg/engine"
	"github.com/netwarden/netwarden/pkg/logx"
)

// Config holds API server configuration
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	AuthKey string `json:"auth_key" yaml:"auth_key"` // Optional bearer token
}

// DefaultConfig returns the default API configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: false, // Disabled by default
		Host:    "localhost",
		Port:    8787,
	}
}

// Server serves the engine's HTTP surface
type Server struct {
	config    *Config
	logger    *logx.Logger
	engine    *engine.Engine
	server    *http.Server
	startTime time.Time
}

// NewServer creates an API server over the given engine
func NewServer(config *Config, logger *logx.Logger, eng *engine.Engine) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		config:    config,
		logger:    logger,
		engine:    eng,
		startTime: time.Now(),
	}
}

// Start begins serving when enabled. It returns once the listener goroutine
// is launched.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Debug("API server disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("API server starting", "address", addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// routes builds the HTTP mux
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/samples", s.auth(s.handleSamples))
	mux.HandleFunc("/api/patterns", s.auth(s.handlePatterns))
	mux.HandleFunc("/api/predictions", s.auth(s.handlePredictions))
	mux.HandleFunc("/api/notifications", s.auth(s.handleNotifications))
	mux.HandleFunc("/api/notifications/ack", s.auth(s.handleAcknowledge))
	mux.HandleFunc("/api/notifications/dismiss", s.auth(s.handleDismiss))
	mux.HandleFunc("/api/strategy/select", s.auth(s.handleSelectStrategy))
	mux.HandleFunc("/api/strategy/outcome", s.auth(s.handleStrategyOutcome))
	mux.HandleFunc("/api/prediction/outcome", s.auth(s.handlePredictionOutcome))
	mux.HandleFunc("/api/status", s.auth(s.handleStatus))
	return mux
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// auth wraps a handler with optional bearer token checking
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthKey != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.config.AuthKey {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

// sampleRequest is the ingest payload
type sampleRequest struct {
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Connected     bool       `json:"connected"`
	Quality       float64    `json:"quality"`
	LatencyMS     float64    `json:"latency_ms"`
	BandwidthKbps float64    `json:"bandwidth_kbps"`
	ServerHealthy bool       `json:"server_healthy"`
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid sample: %v", err))
		return
	}
	if req.Quality < 0 || req.Quality > 100 {
		s.writeError(w, http.StatusBadRequest, "quality must be within [0, 100]")
		return
	}

	timestamp := time.Now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	s.engine.RecordSample(pkg.ConnectionSample{
		Timestamp:     timestamp,
		Connected:     req.Connected,
		Quality:       req.Quality,
		LatencyMS:     req.LatencyMS,
		BandwidthKbps: req.BandwidthKbps,
		ServerHealthy: req.ServerHealthy,
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Patterns())
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Predictions())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Notifications())
}

// idRequest targets one notification or prediction
type idRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.handleNotificationAction(w, r, s.engine.AcknowledgeNotification)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.handleNotificationAction(w, r, s.engine.DismissNotification)
}

func (s *Server) handleNotificationAction(w http.ResponseWriter, r *http.Request, action func(string) bool) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req idRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "notification id required")
		return
	}

	if !action(req.ID) {
		s.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// selectRequest asks for a reconnection strategy
type selectRequest struct {
	Cause    pkg.DisconnectCause `json:"cause"`
	Quality  float64             `json:"quality"`
	Attempts int                 `json:"attempts"`
}

func (s *Server) handleSelectStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	selected, err := s.engine.SelectStrategy(req.Cause, req.Quality, req.Attempts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, selected)
}

// outcomeRequest reports a reconnection attempt result
type outcomeRequest struct {
	ID         string `json:"id"`
	Success    bool   `json:"success"`
	RecoveryMS int64  `json:"recovery_ms"`
}

func (s *Server) handleStrategyOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "strategy id required")
		return
	}

	if err := s.engine.ReportStrategyOutcome(req.ID, req.Success, time.Duration(req.RecoveryMS)*time.Millisecond); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// predictionOutcomeRequest resolves a prediction against reality
type predictionOutcomeRequest struct {
	ID      string      `json:"id"`
	Outcome pkg.Outcome `json:"outcome"`
}

func (s *Server) handlePredictionOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req predictionOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "prediction id required")
		return
	}

	if err := s.engine.ReportPredictionOutcome(req.ID, req.Outcome, time.Now()); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	status := s.engine.Status()
	status["uptime_s"] = int64(time.Since(s.startTime).Seconds())
	status["model_accuracy"] = s.engine.ModelAccuracy()
	status["model_version"] = s.engine.ModelVersion()
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
