package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/tiempo-relay/internal/api"
	"github.com/Guizzs26/tiempo-relay/internal/broker"
	"github.com/Guizzs26/tiempo-relay/internal/db"
	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/notify"
	"github.com/Guizzs26/tiempo-relay/internal/service"
	"github.com/Guizzs26/tiempo-relay/internal/tracing"
)

const publisherBuffer = 256

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poll loop with the HTTP API and live event socket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tracing.Init(ctx, "tiempo-relay", cfg.OTLPEndpoint, logger); err != nil {
		logger.Warn("Tracing unavailable", "error", err)
	}

	aligner, err := newAligner()
	if err != nil {
		return err
	}

	source, err := newSource()
	if err != nil {
		return err
	}
	defer source.Close()

	// Unreachable stores degrade the service: the loop keeps backing off until they return
	if err := source.Ping(ctx); err != nil {
		logger.Error("Source database unreachable, running degraded", "error", err)
	}

	dest, err := db.NewDestinationRepository(ctx, cfg.DestinationURL, cfg.DestinationTable, cfg.WellTable, logger)
	if err != nil {
		return err
	}
	defer dest.Close()

	destReady := true
	if err := dest.Ping(ctx); err != nil {
		destReady = false
		logger.Error("Destination database unreachable, running degraded", "error", err)
	}

	state := models.NewStateStore(aligner.CurrentTableName())
	dispatcher := notify.NewDispatcher(logger)

	monitor := service.NewMonitor(service.MonitorParams{
		Aligner:      aligner,
		Source:       source,
		Forwarder:    service.NewForwarder(dest, service.NewDedupGuard(), state, logger),
		Wells:        dest,
		Notifier:     dispatcher,
		State:        state,
		QueryDelay:   cfg.QueryDelay,
		ErrorBackoff: cfg.ErrorBackoff,
		Logger:       logger,
	})

	hub := notify.NewHub(monitor, logger)
	dispatcher.AddSink(hub)

	var closers []func() error
	if cfg.RabbitMQURL != "" {
		rabbit := broker.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		rabbit.Start()
		dispatcher.AddPublisher(rabbit, publisherBuffer)
		closers = append(closers, rabbit.Close)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		dispatcher.AddPublisher(kafka, publisherBuffer)
		closers = append(closers, kafka.Close)
	}

	if destReady {
		monitor.RefreshWellData(ctx)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(monitor, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "timezone", aligner.Label())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.AutoStart {
		monitor.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	monitor.Close()
	dispatcher.Close()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("Publisher close failed", "error", err)
		}
	}
	tracing.Shutdown(shutdownCtx, logger)

	logger.Info("Shutdown complete")
	return runErr
}
