package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faultlinehq/faultline-engine/internal/api"
	"github.com/faultlinehq/faultline-engine/internal/audit"
	"github.com/faultlinehq/faultline-engine/internal/cache"
	"github.com/faultlinehq/faultline-engine/internal/config"
	"github.com/faultlinehq/faultline-engine/internal/engine"
	"github.com/faultlinehq/faultline-engine/internal/llm"
	"github.com/faultlinehq/faultline-engine/internal/metrics"
	"github.com/faultlinehq/faultline-engine/internal/primitives"
	"github.com/faultlinehq/faultline-engine/internal/repo"
	"github.com/faultlinehq/faultline-engine/internal/services"
	"github.com/faultlinehq/faultline-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting faultline-engine", slog.String("address", cfg.Server.ListenAddress))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "valkey":
			valkey, err := cache.NewValkeyProvider(cache.ValkeyConfig{
				Addr:         cfg.Cache.Address,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
				MaxRetries:   cfg.Cache.MaxRetries,
				TLS:          cfg.Cache.TLS,
			})
			if err != nil {
				logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
				cacheProvider = cache.NewMemoryProvider()
			} else {
				cacheProvider = valkey
			}
		default:
			cacheProvider = cache.NewMemoryProvider()
		}
	}
	defer cacheProvider.Close()

	llmRegistry := llm.NewRegistry()
	model := cfg.Collaborator.Model
	if model == "" {
		model = llmRegistry.DefaultModel(cfg.Collaborator.Provider)
	}
	collaborator, err := llm.New(llm.Options{
		Provider: cfg.Collaborator.Provider,
		Model:    model,
		APIKey:   cfg.Collaborator.APIKey,
		BaseURL:  cfg.Collaborator.BaseURL,
		Timeout:  cfg.Collaborator.Timeout,
	}, llmRegistry, logger)
	if err != nil {
		logger.Error("failed to configure collaborator", slog.Any("error", err))
		os.Exit(1)
	}
	var modelTier llm.CostTier
	if collaborator.Name() != "none" {
		modelTier = llmRegistry.Tier(model)
		logger.Info("language model collaborator enabled",
			slog.String("provider", collaborator.Name()),
			slog.String("model", model),
			slog.String("cost_tier", string(modelTier)))
	}

	telemetry := repo.NewTelemetryClient(repo.TelemetryConfig{
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceToken: cfg.Telemetry.ServiceToken,
		Timeout:      cfg.Telemetry.Timeout,
		CacheTTL:     cfg.Cache.TTL,
	}, cacheProvider, logger)

	actionTable, err := engine.NewActionTable(cfg.Actions.PackPath, cfg.Actions.Watch, logger)
	if err != nil {
		logger.Error("failed to load action pack", slog.Any("error", err))
		os.Exit(1)
	}
	defer actionTable.Close()

	registry := primitives.NewRegistry()
	pipeline := engine.NewPipeline(
		engine.NewClassifier(collaborator, cfg.Classifier.ConfidenceThreshold, logger),
		engine.NewPlanner(nil, logger),
		engine.NewExecutor(registry, cfg.Executor.StepTimeout, logger),
		engine.NewInterpreter(collaborator, actionTable, cfg.Interpreter.DegradedPenalty, cfg.Interpreter.ReviewThreshold, logger),
		telemetry,
		logger,
	)

	trail, err := audit.NewSink(audit.Config{
		Directory:  cfg.Audit.Directory,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
	}, logger)
	if err != nil {
		logger.Error("failed to open audit trail", slog.Any("error", err))
		os.Exit(1)
	}
	defer trail.Close()

	diagnosisService := services.NewDiagnosisService(logger, pipeline, trail, modelTier)
	handler := api.NewHandler(diagnosisService, registry, trail, logger)

	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("diagnosis API listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("faultline-engine stopped")
}
