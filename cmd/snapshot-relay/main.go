// Package main provides the snapshot relay service entry point.
// It drains the transactional outbox to the snapshot and audit topics.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/config"
	"github.com/meridianrx/rxsub/internal/infrastructure/postgres"
	"github.com/meridianrx/rxsub/internal/infrastructure/redpanda"
	"github.com/meridianrx/rxsub/internal/observability/metrics"
	"github.com/meridianrx/rxsub/internal/observability/tracing"
	"github.com/meridianrx/rxsub/pkg/circuitbreaker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	tracingCfg := tracing.DefaultConfig("snapshot-relay")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tracingCfg.SampleRate = cfg.TraceSampleRate
	tracingCfg.Environment = cfg.Environment
	provider, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		logger.Warn("tracing init failed", zap.Error(err))
	} else {
		defer provider.Shutdown(context.Background())
	}

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Make sure the topics exist before draining into them
	admin, err := redpanda.NewAdmin(cfg.Brokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic setup failed", zap.Error(err))
	}
	admin.Close()

	// Create Redpanda producer
	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.Brokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.Brokers))

	// Publishes go through a circuit breaker; staged entries survive an
	// open circuit and drain once the broker recovers.
	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("redpanda-publish"), logger)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	// Create outbox relay
	outboxCfg := postgres.DefaultOutboxConfig()
	outboxCfg.DeadLetterTopic = redpanda.TopicDeadLetter
	outbox := postgres.NewOutbox(pool, &breakerPublisher{producer, breaker}, outboxCfg, logger)

	outbox.Start()
	logger.Info("snapshot relay started")

	m := metrics.New(prometheus.DefaultRegisterer)

	// Housekeeping: park exhausted entries, trim processed ones, refresh
	// backlog gauges.
	houseCtx, houseCancel := context.WithCancel(ctx)
	go housekeeping(houseCtx, outbox, breaker, m, logger)

	server := statsServer(cfg.HTTPAddr, pool, outbox, producer, breaker, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("stats server error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	houseCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	outbox.Stop()
	logger.Info("snapshot relay stopped")
}

// breakerPublisher adapts the Redpanda producer to the OutboxPublisher
// interface with a circuit breaker in front.
type breakerPublisher struct {
	producer *redpanda.Producer
	breaker  *circuitbreaker.CircuitBreaker
}

func (p *breakerPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.ProduceMessage(ctx, topic, key, value)
	})
	return err
}

func housekeeping(ctx context.Context, outbox *postgres.Outbox, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if moved, err := outbox.MoveToDeadLetter(ctx); err != nil {
				logger.Error("dead letter sweep failed", zap.Error(err))
			} else if moved > 0 {
				logger.Warn("entries moved to dead letter", zap.Int64("count", moved))
			}

			if _, err := outbox.CleanupProcessed(ctx, 24*time.Hour); err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
			}

			stats, err := outbox.GetStats(ctx)
			if err != nil {
				logger.Error("outbox stats failed", zap.Error(err))
				continue
			}
			m.OutboxPending.Set(float64(stats.Pending))
			m.CircuitBreakerState.WithLabelValues("redpanda-publish").Set(stateValue(breaker.GetState()))
		}
	}
}

func stateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateOpen:
		return 1
	case circuitbreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func statsServer(addr string, pool *pgxpool.Pool, outbox *postgres.Outbox, producer *redpanda.Producer, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		outboxStats, err := outbox.GetStats(r.Context())
		if err != nil {
			logger.Error("stats failed", zap.Error(err))
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"outbox":   outboxStats,
			"producer": producer.Stats(),
			"breaker":  breaker.GetState(),
		})
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
