package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/netwarden/netwarden/pkg/engine"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/model"
	"github.com/netwarden/netwarden/pkg/notify"
	"github.com/netwarden/netwarden/pkg/patterns"
	"github.com/netwarden/netwarden/pkg/predict"
	"github.com/netwarden/netwarden/pkg/strategy"
	"github.com/netwarden/netwarden/pkg/telem"
)

func newTestServer(t *testing.T, authKey string) *Server {
	t.Helper()

	logger := logx.NewLogger("error", "api")
	store := telem.NewStore(nil)
	detector := patterns.NewDetector(nil, logger, store)
	predictor := predict.NewPredictor(nil, logger, store)
	selector := strategy.NewSelector(nil, logger)
	for _, s := range strategy.DefaultStrategies() {
		if err := selector.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	notifier := notify.NewManager(nil, logger)
	tracker, err := model.NewTracker(nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tracker.Close() })

	eng := engine.New(nil, logger, store, detector, predictor, selector, notifier, tracker, nil, nil)
	return NewServer(&Config{Enabled: true, Host: "localhost", Port: 0, AuthKey: authKey}, logger, eng)
}

func TestServer_SampleIngestAndStatus(t *testing.T) {
	server := newTestServer(t, "")
	mux := server.routes()

	body := `{"connected": true, "quality": 92.5, "latency_ms": 40, "bandwidth_kbps": 8000, "server_healthy": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/samples", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid status JSON: %v", err)
	}
	storeStatus, ok := status["store"].(map[string]interface{})
	if !ok || storeStatus["samples"].(float64) != 1 {
		t.Errorf("Expected one recorded sample in status, got %v", status["store"])
	}
}

func TestServer_SampleValidation(t *testing.T) {
	server := newTestServer(t, "")
	mux := server.routes()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"quality above range", `{"quality": 150}`, http.StatusBadRequest},
		{"quality below range", `{"quality": -1}`, http.StatusBadRequest},
		{"malformed json", `{"quality":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/samples", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	// GET on the ingest endpoint is rejected
	req := httptest.NewRequest(http.MethodGet, "/api/samples", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}
}

func TestServer_StrategyEndpoints(t *testing.T) {
	server := newTestServer(t, "")
	mux := server.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/strategy/select",
		strings.NewReader(`{"cause": "quality_degradation", "quality": 25, "attempts": 0}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var selected strategy.Strategy
	if err := json.Unmarshal(rec.Body.Bytes(), &selected); err != nil {
		t.Fatalf("Invalid strategy JSON: %v", err)
	}
	if selected.ID != "adaptive" {
		t.Errorf("Expected adaptive strategy, got %s", selected.ID)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/strategy/outcome",
		strings.NewReader(`{"id": "adaptive", "success": true, "recovery_ms": 2500}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for outcome, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/strategy/outcome",
		strings.NewReader(`{"id": "missing", "success": true}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown strategy, got %d", rec.Code)
	}
}

func TestServer_AuthKey(t *testing.T) {
	server := newTestServer(t, "secret")
	mux := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}
}
