package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	httpadapter "github.com/couchcryptid/nasa-explorer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nasa-explorer/internal/adapter/kafka"
	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/config"
	"github.com/couchcryptid/nasa-explorer/internal/game"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/pipeline"
	"github.com/couchcryptid/nasa-explorer/internal/scheduler"
	"github.com/couchcryptid/nasa-explorer/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	client := nasa.NewClient(nasa.Config{
		APIKey:    cfg.NASAAPIKey,
		Timeout:   cfg.NASATimeout,
		RateLimit: cfg.NASARateLimit,
		RateBurst: cfg.NASARateBurst,
	}, metrics, logger)
	nasaAPI := nasa.NewCachedClient(client, cfg.NASACacheSize, cfg.NASACacheTTL, cfg.NASATimeout, metrics)

	// Game events are feature-flagged via EVENTS_ENABLED.
	var (
		events     game.EventPublisher
		dispatcher *pipeline.Dispatcher
		writer     *kafkaadapter.Writer
	)
	ready := readiness{}
	if cfg.EventsEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		dispatcher = pipeline.New(writer, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval)
		events = dispatcher
		ready = append(ready, dispatcher)
		logger.Info("game events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("game events disabled")
	}

	svc := game.NewService(st, nasaAPI, events, metrics, logger)
	ready = append(ready, svc)

	srv := httpadapter.NewServer(cfg.HTTPAddr, cfg.CORSAllowedOrigins, svc, nasaAPI, ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start event dispatcher.
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if dispatcher == nil {
			return
		}
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("event dispatcher error", "error", err)
		}
	}()

	if cfg.NASAPrefetchSchedule != "" {
		prefetcher, err := scheduler.New(cfg.NASAPrefetchSchedule, nasaAPI, logger)
		if err != nil {
			logger.Error("invalid prefetch schedule", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := prefetcher.Start(ctx); err != nil {
				logger.Error("prefetch scheduler error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.Warn("event dispatcher did not drain before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := store.NewPostgres(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StoreDynamoDB:
		return store.NewDynamoDB(ctx, cfg.AWSRegion, cfg.DynamoDBStatsTable, cfg.DynamoDBLocationsTable)
	case config.StoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// readiness is ready only when every checker is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
