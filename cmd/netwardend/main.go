package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netwarden/netwarden/pkg/api"
	"github.com/netwarden/netwarden/pkg/config"
	"github.com/netwarden/netwarden/pkg/engine"
	"github.com/netwarden/netwarden/pkg/logx"
	"github.com/netwarden/netwarden/pkg/metrics"
	"github.com/netwarden/netwarden/pkg/model"
	"github.com/netwarden/netwarden/pkg/mqtt"
	"github.com/netwarden/netwarden/pkg/notify"
	"github.com/netwarden/netwarden/pkg/patterns"
	"github.com/netwarden/netwarden/pkg/pidfile"
	"github.com/netwarden/netwarden/pkg/predict"
	"github.com/netwarden/netwarden/pkg/strategy"
	"github.com/netwarden/netwarden/pkg/telem"
)

var (
	configPath  = flag.String("config", "/etc/netwarden/netwarden.yaml", "Path to configuration file")
	pidPath     = flag.String("pid-file", "", "Override PID file path")
	logLevel    = flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging (equivalent to trace level)")
	showVersion = flag.Bool("version", false, "Show version information")
)

const (
	AppName    = "netwardend"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	effectiveLogLevel := cfg.LogLevel
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	if *verbose {
		effectiveLogLevel = "trace"
	}
	logger := logx.NewLogger(effectiveLogLevel, AppName)

	effectivePIDPath := cfg.PIDFile
	if *pidPath != "" {
		effectivePIDPath = *pidPath
	}
	pidFile := pidfile.New(effectivePIDPath)
	if err := pidFile.Create(); err != nil {
		logger.Error("Failed to create PID file", "error", err, "path", effectivePIDPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting netwarden daemon", "version", AppVersion, "config", *configPath)

	store := telem.NewStore(nil)

	detectorConfig := patterns.DefaultDetectorConfig()
	detector := patterns.NewDetector(detectorConfig, logger.WithComponent("patterns"), store)

	predictorConfig := predict.DefaultPredictorConfig()
	predictorConfig.WarnThreshold = cfg.Prediction.WarnThreshold
	predictorConfig.CriticalThreshold = cfg.Prediction.CriticalThreshold
	predictor := predict.NewPredictor(predictorConfig, logger.WithComponent("predict"), store)

	selector := strategy.NewSelector(nil, logger.WithComponent("strategy"))
	for _, s := range strategy.DefaultStrategies() {
		if err := selector.Register(s); err != nil {
			logger.Error("Failed to register strategy", "id", s.ID, "error", err)
			os.Exit(1)
		}
	}

	notifierConfig := notify.DefaultManagerConfig()
	notifierConfig.HourlyBudget = cfg.Notifications.HourlyBudget
	notifier := notify.NewManager(notifierConfig, logger.WithComponent("notify"))

	trackerConfig := model.DefaultTrackerConfig()
	trackerConfig.SnapshotPath = cfg.Model.SnapshotPath
	tracker, err := model.NewTracker(trackerConfig, logger.WithComponent("model"))
	if err != nil {
		logger.Error("Failed to create model tracker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			logger.Warn("Failed to close model snapshot", "error", err)
		}
	}()

	collectors := metrics.New()

	publisher := mqtt.NewClient(&cfg.MQTT, logger.WithComponent("mqtt"))
	if err := publisher.Connect(); err != nil {
		// The broker is an optional consumer; the engine runs without it
		logger.Warn("MQTT connection failed, continuing without publishing", "error", err)
	}
	defer publisher.Disconnect()

	engineConfig := engine.DefaultConfig()
	engineConfig.AnalysisInterval = cfg.Engine.AnalysisInterval
	engineConfig.PredictionInterval = cfg.Engine.PredictionInterval
	engineConfig.RetrainInterval = cfg.Engine.RetrainInterval
	engineConfig.SweepInterval = cfg.Engine.SweepInterval

	eng := engine.New(engineConfig, logger.WithComponent("engine"), store, detector,
		predictor, selector, notifier, tracker, collectors, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(&cfg.API, logger.WithComponent("api"), eng)
	if err := apiServer.Start(); err != nil {
		logger.Error("Failed to start API server", "error", err)
		eng.Stop()
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collectors.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsListen, Handler: mux}
		go func() {
			logger.Info("Metrics endpoint listening", "address", cfg.MetricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics endpoint failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics endpoint shutdown failed", "error", err)
		}
	}
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", "error", err)
	}
	eng.Stop()

	logger.Info("Shutdown complete")
}
