// Package main provides the transition worker entry point.
// It consumes fulfillment transition commands from pharmacy integrations,
// applies them to subscription records exactly once, and parks commands
// that cannot be applied on the dead letter topic.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/config"
	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/infrastructure/postgres"
	"github.com/meridianrx/rxsub/internal/infrastructure/redpanda"
	"github.com/meridianrx/rxsub/internal/observability/metrics"
	"github.com/meridianrx/rxsub/internal/observability/tracing"
	"github.com/meridianrx/rxsub/internal/storage"
	"github.com/meridianrx/rxsub/pkg/circuitbreaker"
	"github.com/meridianrx/rxsub/pkg/idempotency"
	"github.com/meridianrx/rxsub/pkg/workerpool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	tracingCfg := tracing.DefaultConfig("transition-worker")
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

	admin, err := redpanda.NewAdmin(cfg.Brokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic setup failed", zap.Error(err))
	}
	admin.Close()

	// Producer and breaker for dead letter parking
	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.Brokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("dead-letter-publish"), logger)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	w := &worker{
		store:    postgres.NewStore(pool, postgres.DefaultStoreConfig(), logger),
		inbox:    inbox,
		producer: producer,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
	}

	// Commands for the same subscription share a pool key, so they apply
	// in arrival order.
	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.Workers

	workerPool, err := workerpool.New(poolCfg, w.process, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workerPool.Start()

	// Final failures come out of the result channel; park them so the
	// command is not lost after its offset was committed.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for result := range workerPool.Results() {
			if !result.Success {
				w.park(result)
			}
		}
	}()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.Brokers
	consumerCfg.GroupID = cfg.ConsumerGroup
	consumerCfg.Topics = []string{redpanda.TopicTransitions}

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		task := &workerpool.Task{
			ID:      msg.Topic + "/" + string(msg.Key),
			Key:     string(msg.Key),
			Payload: msg.Value,
		}
		return workerPool.Submit(task)
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("transition worker started",
		zap.String("group", cfg.ConsumerGroup),
		zap.Int("workers", poolCfg.Workers))

	server := statsServer(cfg.HTTPAddr, workerPool, consumer, inbox)
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
	consumer.Stop()
	workerPool.Stop()
	<-drained

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	logger.Info("transition worker stopped")
}

// worker applies transition commands to subscription records.
type worker struct {
	store    storage.Store
	inbox    *idempotency.Inbox
	producer *redpanda.Producer
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// process handles one command attempt. The pool retries failures, and the
// inbox turns redelivered or raced commands into cheap no-ops.
func (w *worker) process(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	payload, ok := task.Payload.([]byte)
	if !ok || payload == nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: errors.New("empty command payload")}
	}

	var cmd subscription.TransitionCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err, Data: payload}
	}
	if err := cmd.Validate(); err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err, Data: payload}
	}

	res, err := w.inbox.Process(ctx, commandKey(&cmd), "transition-worker", payload,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return w.apply(ctx, &cmd)
		})
	if err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err, Data: payload}
	}

	if !res.IsNew {
		w.logger.Debug("duplicate command ignored",
			zap.String("subscription_id", cmd.SubscriptionID),
			zap.String("command_id", cmd.ID))
		return &workerpool.Result{TaskID: task.ID, Success: true}
	}

	w.metrics.TransitionsApplied.WithLabelValues(string(cmd.Status)).Inc()
	w.logger.Info("transition applied",
		zap.String("subscription_id", cmd.SubscriptionID),
		zap.String("status", string(cmd.Status)),
		zap.String("source", cmd.Source))
	return &workerpool.Result{TaskID: task.ID, Success: true}
}

// apply runs the read-transform-write cycle for one command.
func (w *worker) apply(ctx context.Context, cmd *subscription.TransitionCommand) (json.RawMessage, error) {
	sub, err := w.store.Get(ctx, cmd.SubscriptionID)
	if err != nil {
		return nil, err
	}

	entry, err := cmd.Apply(sub)
	if err != nil {
		return nil, err
	}
	sub.Status = sub.DeriveStatus()

	if err := w.store.Put(ctx, sub); err != nil {
		return nil, err
	}
	return json.Marshal(entry)
}

// park publishes a command that exhausted its retries to the dead letter
// topic. The offset is already committed, so this is the last copy.
func (w *worker) park(result *workerpool.Result) {
	w.metrics.TransitionsRejected.Inc()

	payload, ok := result.Data.([]byte)
	if !ok || payload == nil {
		w.logger.Error("dropping unparkable command", zap.String("task_id", result.TaskID), zap.Error(result.Error))
		return
	}

	key := result.TaskID
	var target struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(payload, &target); err == nil && target.SubscriptionID != "" {
		key = target.SubscriptionID
	}

	body, err := json.Marshal(map[string]interface{}{
		"command":   json.RawMessage(payload),
		"error":     result.Error.Error(),
		"source":    "transition-worker",
		"failed_at": time.Now().UTC(),
	})
	if err != nil {
		w.logger.Error("dead letter marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = w.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, w.producer.ProduceMessage(ctx, redpanda.TopicDeadLetter, key, body)
	})
	if err != nil {
		w.logger.Error("dead letter publish failed",
			zap.String("task_id", result.TaskID),
			zap.Error(err))
		return
	}

	w.logger.Warn("command parked on dead letter topic",
		zap.String("key", key),
		zap.Error(result.Error))
}

// commandKey derives the idempotency key for a command. Commands that
// address a fulfillment by date key on the date instead of the ID.
func commandKey(cmd *subscription.TransitionCommand) string {
	target := cmd.FulfillmentID
	if target == "" && cmd.FulfillmentDate != nil {
		target = cmd.FulfillmentDate.UTC().Format(time.RFC3339)
	}
	return idempotency.GenerateKey(cmd.SubscriptionID, target, string(cmd.Status), cmd.RequestedAt)
}

func statsServer(addr string, pool *workerpool.Pool, consumer *redpanda.Consumer, inbox *idempotency.Inbox) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !pool.IsHealthy() {
			http.Error(w, "worker queues saturated", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"pool":     pool.Stats(),
			"consumer": consumer.Stats(),
		}
		if inboxStats, err := inbox.GetStats(r.Context()); err == nil {
			stats["inbox"] = inboxStats
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
