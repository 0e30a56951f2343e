package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/appointment-gateway/internal/backend"
	"github.com/tjfontaine/appointment-gateway/internal/config"
	"github.com/tjfontaine/appointment-gateway/internal/frontdoor"
	"github.com/tjfontaine/appointment-gateway/internal/pipeline"
	"github.com/tjfontaine/appointment-gateway/internal/server"
	"github.com/tjfontaine/appointment-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
	}

	client := backend.NewClient(cfg.Backend,
		backend.WithMetrics(metrics),
		backend.WithLogger(logger),
		backend.WithRequestIDFunc(server.GetRequestID),
	)

	orchestrator := pipeline.NewOrchestrator(client,
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)

	handler := frontdoor.NewHandler(frontdoor.HandlerConfig{
		Backend:         client,
		Pipeline:        orchestrator,
		ServiceName:     cfg.Telemetry.ServiceName,
		MaxUploadMemory: cfg.Server.MaxUploadMemory,
		Logger:          logger,
	})

	srv := server.New(cfg.Server, logger)
	handler.Mount(srv.Router)
	if metrics != nil {
		srv.Router.Method("GET", cfg.Metrics.Path, metrics.Handler())
	}

	logger.Info("gateway configured",
		slog.String("backend", client.BaseURL()),
		slog.Bool("tracing", cfg.Telemetry.Enabled),
		slog.Bool("metrics", cfg.Metrics.Enabled),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, draining in-flight requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Gateway shutdown complete")
}
