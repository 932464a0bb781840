// Command markserver answers mark-list requests with records read from a YAML
// file, standing in for the remote server during local development.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/server"
)

func main() {
	listPath := flag.String("marks", "configs/marks.yaml", "Path to the mark list file")
	port := flag.Int("port", 0, "Override the UDP port")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	list, err := config.LoadMarkList(*listPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load mark list: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		list.Port = *port
	}

	responder, err := server.NewUDPResponder(list, logger, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		logger.Error("Failed to create responder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := responder.Start(); err != nil {
		logger.Error("Failed to start responder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	if err := responder.Stop(); err != nil {
		logger.Error("Error stopping responder", slog.String("error", err.Error()))
	}
}
