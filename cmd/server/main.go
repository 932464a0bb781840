package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/studentmarks-service/internal/client"
	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/loader"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/server"
	"github.com/skypro1111/studentmarks-service/internal/store"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "studentmarks-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	sourceHost := flag.String("source-host", "", "Override the mark-list server host")
	sourcePort := flag.Int("source-port", 0, "Override the mark-list server port")
	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *sourceHost != "" {
			c.Source.Host = *sourceHost
		}
		if *sourcePort != 0 {
			c.Source.Port = *sourcePort
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("source_address", cfg.Source.Address()),
		slog.Duration("source_timeout", cfg.Source.GetTimeoutDuration()),
		slog.Int("buffer_size", cfg.Source.BufferSize),
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Any("allowed_origins", cfg.HTTP.AllowedOrigins),
		slog.Duration("refresh_interval", cfg.Refresh.GetIntervalDuration()),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	markClient, err := client.New(client.Config{
		Host:       cfg.Source.Host,
		Port:       cfg.Source.Port,
		Timeout:    cfg.Source.GetTimeoutDuration(),
		BufferSize: cfg.Source.BufferSize,
	})
	if err != nil {
		logger.Error("Failed to create mark-list client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	records := store.New()
	markLoader := loader.New(markClient, records, appMetrics, logger, cfg.Refresh.GetIntervalDuration())

	// A failed initial load is logged and the API starts with an empty store
	if err := markLoader.Load(); err != nil {
		logger.Warn("Starting with empty mark list", slog.String("error", err.Error()))
	}

	go markLoader.Run(ctx)

	httpServer := server.NewHTTPServer(cfg.HTTP, server.ServiceInfo{Name: serviceName, Version: serviceVersion}, logger, records, markLoader, appMetrics, prometheus.DefaultGatherer)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop the refresh loop before the API goes away
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	status := markLoader.Status()
	logger.Info("Service stopped",
		slog.Uint64("loads", status.Loads),
		slog.Uint64("load_failures", status.Failures),
		slog.Int("records", records.Len()),
	)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
