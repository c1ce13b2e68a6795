package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.Engine.PredictionInterval != 5*time.Second {
		t.Errorf("Expected default prediction interval 5s, got %v", cfg.Engine.PredictionInterval)
	}
	if cfg.MQTT.Enabled {
		t.Error("Expected MQTT disabled by default")
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwarden.yaml")
	raw := `
log_level: debug
engine:
  prediction_interval: 2s
notifications:
  hourly_budget: 3
mqtt:
  enabled: true
  broker: broker.lan
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Engine.PredictionInterval != 2*time.Second {
		t.Errorf("Expected prediction interval 2s, got %v", cfg.Engine.PredictionInterval)
	}
	if cfg.Engine.AnalysisInterval != 30*time.Second {
		t.Errorf("Expected untouched analysis interval 30s, got %v", cfg.Engine.AnalysisInterval)
	}
	if cfg.Notifications.HourlyBudget != 3 {
		t.Errorf("Expected hourly budget 3, got %d", cfg.Notifications.HourlyBudget)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "broker.lan" {
		t.Errorf("Expected MQTT enabled against broker.lan, got %+v", cfg.MQTT)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("Expected default MQTT port preserved, got %d", cfg.MQTT.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NETWARDEN_LOG_LEVEL", "trace")
	t.Setenv("NETWARDEN_MQTT_BROKER", "env-broker")
	t.Setenv("NETWARDEN_MQTT_PORT", "8883")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "trace" {
		t.Errorf("Expected env log level trace, got %s", cfg.LogLevel)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "env-broker" || cfg.MQTT.Port != 8883 {
		t.Errorf("Expected env MQTT settings, got %+v", cfg.MQTT)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"zero interval", "engine:\n  sweep_interval: 0s\n"},
		{"warn out of range", "prediction:\n  warn_threshold: 1.5\n"},
		{"critical below warn", "prediction:\n  warn_threshold: 0.8\n  critical_threshold: 0.7\n"},
		{"zero budget", "notifications:\n  hourly_budget: 0\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tc.raw), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected validation to reject the config")
			}
		})
	}
}
