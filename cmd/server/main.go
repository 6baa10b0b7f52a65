package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/audit"
	"github.com/scarecr0w12/ai-server-management/internal/config"
	"github.com/scarecr0w12/ai-server-management/internal/engine"
	"github.com/scarecr0w12/ai-server-management/internal/schedule"
	"github.com/scarecr0w12/ai-server-management/internal/server"
	"github.com/scarecr0w12/ai-server-management/internal/storage"
	"github.com/scarecr0w12/ai-server-management/internal/transport"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Agent transport; the engine reconnects on demand, so a connection
	// failure at startup is not fatal.
	client := transport.NewClient(transport.Config{
		Addr:            cfg.Agent.Addr,
		DialTimeout:     cfg.Agent.DialTimeout,
		ResponseTimeout: cfg.Agent.ResponseTimeout,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.Warn("Agent not reachable at startup, will reconnect on demand",
			zap.String("addr", cfg.Agent.Addr),
			zap.Error(err))
	}
	defer client.Close()

	recorder, closeRecorder := buildRecorder(cfg, logger)
	defer closeRecorder()

	opts := engine.Options{
		InterTaskDelay: cfg.Engine.InterTaskDelay,
		Backoff:        &engine.FixedBackoff{Delay: cfg.Engine.RetryDelay},
	}

	if cfg.History.Enabled {
		history, err := storage.NewRunHistory(logger, cfg.History.Path)
		if err != nil {
			logger.Fatal("Failed to open run history", zap.Error(err))
		}
		defer history.Close()
		opts.History = history
	}

	eng := engine.New(client, recorder, opts, logger)

	runner := schedule.NewRunner(eng, logger)
	for _, entry := range cfg.Schedules {
		if err := runner.Add(entry); err != nil {
			logger.Error("Skipping schedule", zap.String("name", entry.Name), zap.Error(err))
		}
	}
	runner.Start()
	defer runner.Stop()

	api := server.New(eng, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	logger.Info("Server shutting down gracefully")
}

// buildRecorder selects the audit backend from configuration
func buildRecorder(cfg *config.Config, logger *zap.Logger) (audit.Recorder, func()) {
	switch cfg.Audit.Backend {
	case "memory":
		recorder := audit.NewMemoryService(audit.MemoryServiceConfig{
			BaseURL: cfg.Audit.Memory.BaseURL,
			APIKey:  cfg.Audit.Memory.APIKey,
			Timeout: cfg.Audit.Memory.Timeout,
		}, logger)
		return recorder, func() {}

	case "nats":
		nc, err := nats.Connect(cfg.Audit.NATS.URL,
			nats.Name(cfg.App.Name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second))
		if err != nil {
			logger.Error("Failed to connect to NATS, audit disabled", zap.Error(err))
			return audit.Nop{}, func() {}
		}

		js, err := nc.JetStream()
		if err != nil {
			logger.Error("Failed to create JetStream context, audit disabled", zap.Error(err))
			nc.Close()
			return audit.Nop{}, func() {}
		}

		recorder, err := audit.NewNATSRecorder(js, logger)
		if err != nil {
			logger.Error("Failed to create audit stream, audit disabled", zap.Error(err))
			nc.Close()
			return audit.Nop{}, func() {}
		}
		return recorder, nc.Close

	default:
		return audit.Nop{}, func() {}
	}
}
