// Package config loads the daemon configuration from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netwarden/netwarden/pkg/api"
	"github.com/netwarden/netwarden/pkg/mqtt"
)

// Config is the daemon's top-level configuration
type Config struct {
	LogLevel      string `yaml:"log_level"`
	PIDFile       string `yaml:"pid_file"`
	MetricsListen string `yaml:"metrics_listen"` // Empty disables the scrape endpoint

	Engine        EngineConfig        `yaml:"engine"`
	Prediction    PredictionConfig    `yaml:"prediction"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Model         ModelConfig         `yaml:"model"`
	API           api.Config          `yaml:"api"`
	MQTT          mqtt.Config         `yaml:"mqtt"`
}

// EngineConfig holds the periodic cycle intervals
type EngineConfig struct {
	AnalysisInterval   time.Duration `yaml:"analysis_interval"`
	PredictionInterval time.Duration `yaml:"prediction_interval"`
	RetrainInterval    time.Duration `yaml:"retrain_interval"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

// PredictionConfig holds the commonly tuned prediction thresholds
type PredictionConfig struct {
	WarnThreshold     float64 `yaml:"warn_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
}

// NotificationsConfig holds the send budget
type NotificationsConfig struct {
	HourlyBudget int `yaml:"hourly_budget"`
}

// ModelConfig holds model persistence settings
type ModelConfig struct {
	SnapshotPath string `yaml:"snapshot_path"` // Empty keeps the model in memory only
}

// Load reads the YAML file at path, overlaying it on the defaults. A missing
// path returns the defaults untouched. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnvOverrides(cfg)
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		PIDFile:       "/var/run/netwardend.pid",
		MetricsListen: "",
		Engine: EngineConfig{
			AnalysisInterval:   30 * time.Second,
			PredictionInterval: 5 * time.Second,
			RetrainInterval:    time.Hour,
			SweepInterval:      10 * time.Second,
		},
		Prediction: PredictionConfig{
			WarnThreshold:     0.6,
			CriticalThreshold: 0.85,
		},
		Notifications: NotificationsConfig{
			HourlyBudget: 10,
		},
		Model: ModelConfig{},
		API:   *api.DefaultConfig(),
		MQTT:  *mqtt.DefaultConfig(),
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETWARDEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NETWARDEN_PID_FILE"); v != "" {
		cfg.PIDFile = v
	}
	if v := os.Getenv("NETWARDEN_METRICS_LISTEN"); v != "" {
		cfg.MetricsListen = v
	}
	if v := os.Getenv("NETWARDEN_MODEL_SNAPSHOT"); v != "" {
		cfg.Model.SnapshotPath = v
	}
	if v := os.Getenv("NETWARDEN_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("NETWARDEN_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Port = port
		}
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.Engine.AnalysisInterval <= 0 ||
		c.Engine.PredictionInterval <= 0 ||
		c.Engine.RetrainInterval <= 0 ||
		c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("engine intervals must be positive")
	}
	if c.Prediction.WarnThreshold <= 0 || c.Prediction.WarnThreshold >= 1 {
		return fmt.Errorf("warn_threshold must be in (0, 1)")
	}
	if c.Prediction.CriticalThreshold <= c.Prediction.WarnThreshold || c.Prediction.CriticalThreshold > 1 {
		return fmt.Errorf("critical_threshold must exceed warn_threshold and stay within (0, 1]")
	}
	if c.Notifications.HourlyBudget <= 0 {
		return fmt.Errorf("hourly_budget must be positive")
	}
	return nil
}
