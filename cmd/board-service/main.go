// Package main provides the tracking board service entry point.
// It tails the compacted snapshot topic into an in-memory read model and
// serves the ordered board view over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/api/handlers"
	"github.com/meridianrx/rxsub/internal/api/middleware"
	"github.com/meridianrx/rxsub/internal/board"
	"github.com/meridianrx/rxsub/internal/config"
	"github.com/meridianrx/rxsub/internal/infrastructure/redpanda"
	"github.com/meridianrx/rxsub/internal/observability/metrics"
	"github.com/meridianrx/rxsub/internal/observability/tracing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	tracingCfg := tracing.DefaultConfig("board-service")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tracingCfg.SampleRate = cfg.TraceSampleRate
	tracingCfg.Environment = cfg.Environment
	provider, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		logger.Warn("tracing init failed", zap.Error(err))
	} else {
		defer provider.Shutdown(context.Background())
	}

	admin, err := redpanda.NewAdmin(cfg.Brokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic setup failed", zap.Error(err))
	}
	admin.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	b := board.New(logger)

	// Tail the compacted topic without a consumer group: every replica
	// reads all partitions from the start and rebuilds the full view.
	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.Brokers
	consumerCfg.GroupID = ""
	consumerCfg.Topics = []string{redpanda.TopicSnapshots}
	consumerCfg.StartOffset = "earliest"

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		if err := b.Apply(string(msg.Key), msg.Value); err != nil {
			logger.Error("snapshot apply failed",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			// Bad records are skipped; the next snapshot for this key
			// supersedes them anyway.
			return nil
		}
		m.SnapshotsApplied.Inc()
		m.BoardSubscriptions.Set(float64(b.Stats().Subscriptions))
		return nil
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("tailing snapshot topic", zap.Strings("brokers", cfg.Brokers))

	boardHandler := handlers.NewBoardHandler(b, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.SessionIdentity)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m.RequestDuration))
	r.Use(middleware.Tracing("board-service"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","service":"board-service","version":"1.0.0"}`)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/board", boardHandler.Routes())
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		consumer.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting board service", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("board service stopped")
}
