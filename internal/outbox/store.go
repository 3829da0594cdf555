package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/domain"
)

// PendingEvent is an outbox row waiting to be published.
type PendingEvent struct {
	domain.OutboxEvent
	Attempts int
}

// PgStore reads and writes the outbox_events table. Insert is meant to run on
// the transaction that changes the aggregate, so the event commits with it.
type PgStore struct {
	db database.DBTX
}

// NewPgStore creates a store on a pool or transaction.
func NewPgStore(db database.DBTX) *PgStore {
	return &PgStore{db: db}
}

// Insert appends an event to the outbox.
func (s *PgStore) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("outbox: nil event")
	}
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("outbox: marshal metadata: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO outbox_events (id, event_version, aggregate_type, aggregate_id, event_type, payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.EventID, event.EventVersion, event.AggregateType, event.AggregateID,
		event.EventType, event.Payload, meta, createdAt)
	if err != nil {
		return fmt.Errorf("outbox: insert event: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit unpublished events with fewer than
// maxAttempts attempts. Rows stay locked until the caller's transaction ends,
// so concurrent relays skip them.
func (s *PgStore) ClaimPending(ctx context.Context, limit, maxAttempts int) ([]PendingEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_version, aggregate_type, aggregate_id, event_type, payload, metadata, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	defer rows.Close()

	var events []PendingEvent
	for rows.Next() {
		var e PendingEvent
		var meta []byte
		if err := rows.Scan(&e.EventID, &e.EventVersion, &e.AggregateType, &e.AggregateID, &e.EventType,
			&e.Payload, &meta, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("outbox: scan event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("outbox: unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate events: %w", err)
	}
	return events, nil
}

// MarkPublished stamps events as delivered.
func (s *PgStore) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("outbox: mark published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *PgStore) MarkFailed(ctx context.Context, ids []string, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $1
		WHERE id = ANY($2)`, msg, ids); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}
