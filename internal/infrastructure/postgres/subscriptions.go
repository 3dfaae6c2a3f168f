package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/api/middleware"
	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/storage"
)

// Event types written to the outbox alongside each record mutation.
const (
	EventSnapshot     = "subscription.snapshot"
	EventTombstone    = "subscription.tombstone"
	EventLogAppended  = "communication.logged"
	aggregateTypeName = "subscription"
)

// StoreConfig holds the topic names stamped onto outbox entries.
type StoreConfig struct {
	// SnapshotTopic receives the full record on every write, keyed by
	// subscription ID, and a tombstone on delete.
	SnapshotTopic string
	// AuditTopic receives one event per appended communication log entry.
	AuditTopic string
}

// DefaultStoreConfig returns the production topic names.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SnapshotTopic: "subscription.snapshots",
		AuditTopic:    "audit.trail",
	}
}

// Store persists subscription records as JSONB documents. Every mutation
// writes matching outbox entries in the same transaction so downstream
// consumers observe exactly the states that were committed.
type Store struct {
	pool   *pgxpool.Pool
	config StoreConfig
	logger *zap.Logger
}

// NewStore creates a Postgres-backed subscription store.
func NewStore(pool *pgxpool.Pool, cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, config: cfg, logger: logger}
}

// Create inserts a new record and stages its first snapshot plus one audit
// event per log entry already on the record.
func (s *Store) Create(ctx context.Context, sub *subscription.Subscription) error {
	record, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (id, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, sub.ID, record, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAlreadyExists
	}

	if err := s.stageSnapshot(ctx, tx, sub.ID, record); err != nil {
		return err
	}
	if err := s.stageAudit(ctx, tx, sub.ID, sub.CommunicationLog); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.Int("fulfillments", len(sub.Fulfillments)))
	return nil
}

// Get loads one record by identifier.
func (s *Store) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM subscriptions WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}

	sub := &subscription.Subscription{}
	if err := json.Unmarshal(record, sub); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return sub, nil
}

// Put replaces an existing record whole. The previous copy is read inside
// the transaction only to detect freshly appended log entries for the audit
// trail; the write itself is last-writer-wins with no version check.
func (s *Store) Put(ctx context.Context, sub *subscription.Subscription) error {
	record, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous []byte
	err = tx.QueryRow(ctx, `SELECT record FROM subscriptions WHERE id = $1 FOR UPDATE`, sub.ID).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select for update: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE subscriptions SET record = $2, updated_at = $3 WHERE id = $1
	`, sub.ID, record, sub.UpdatedAt); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	if err := s.stageSnapshot(ctx, tx, sub.ID, record); err != nil {
		return err
	}

	appended, err := appendedEntries(previous, sub.CommunicationLog)
	if err != nil {
		return err
	}
	if err := s.stageAudit(ctx, tx, sub.ID, appended); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes a record and stages a tombstone so compacted consumers
// drop it too.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	entry := &OutboxEntry{
		AggregateID:   id,
		AggregateType: aggregateTypeName,
		EventType:     EventTombstone,
		Payload:       nil,
		KafkaTopic:    s.config.SnapshotTopic,
		KafkaKey:      id,
	}
	if err := WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("subscription deleted", zap.String("subscription_id", id))
	return nil
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM subscriptions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		sub := &subscription.Subscription{}
		if err := json.Unmarshal(record, sub); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// stageSnapshot writes the full-record outbox entry for the snapshot topic.
func (s *Store) stageSnapshot(ctx context.Context, tx pgx.Tx, id string, record []byte) error {
	entry := &OutboxEntry{
		AggregateID:   id,
		AggregateType: aggregateTypeName,
		EventType:     EventSnapshot,
		Payload:       record,
		KafkaTopic:    s.config.SnapshotTopic,
		KafkaKey:      id,
	}
	return WriteEntry(ctx, tx, entry)
}

// stageAudit writes one outbox entry per communication log entry.
func (s *Store) stageAudit(ctx context.Context, tx pgx.Tx, id string, entries []subscription.LogEntry) error {
	sessionID := middleware.GetSessionID(ctx)
	for _, logEntry := range entries {
		payload, err := json.Marshal(auditEvent{
			SubscriptionID: id,
			SessionID:      sessionID,
			Entry:          logEntry,
		})
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		entry := &OutboxEntry{
			AggregateID:   id,
			AggregateType: aggregateTypeName,
			EventType:     EventLogAppended,
			Payload:       payload,
			KafkaTopic:    s.config.AuditTopic,
			KafkaKey:      id,
		}
		if err := WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// auditEvent is the audit trail wire shape. SessionID is empty for writes
// that did not originate from an HTTP request.
type auditEvent struct {
	SubscriptionID string                `json:"subscription_id"`
	SessionID      string                `json:"session_id,omitempty"`
	Entry          subscription.LogEntry `json:"entry"`
}

// appendedEntries returns the log entries present on the new record beyond
// the length stored in the previous copy. The log is append-only, so a
// length comparison is sufficient.
func appendedEntries(previous []byte, current []subscription.LogEntry) ([]subscription.LogEntry, error) {
	var old struct {
		CommunicationLog []subscription.LogEntry `json:"communication_log"`
	}
	if err := json.Unmarshal(previous, &old); err != nil {
		return nil, fmt.Errorf("unmarshal previous record: %w", err)
	}
	if len(current) <= len(old.CommunicationLog) {
		return nil, nil
	}
	return current[len(old.CommunicationLog):], nil
}
