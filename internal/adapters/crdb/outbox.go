package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ticketnft/escrow-service/internal/domain"
)

// OutboxRecord is one escrow event awaiting publication. Records are
// inserted in the same transaction as the state change they describe, so
// an event exists iff its transition committed.
type OutboxRecord struct {
	ID          uuid.UUID
	OrderID     int64
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Status      string // NEW, PUBLISHED
	DedupeKey   string
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal outbox payload")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (id, order_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, 'NEW', $5)
	`, uuid.New(), ev.OrderID, ev.Type, payload, uuid.New().String())
	return err
}

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.OrderID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}

// OldestUnpublishedAge reports the publishing lag for the outbox gauge.
// Zero when the outbox is drained.
func (r *Repository) OldestUnpublishedAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT created_at FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT 1
	`).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return now.Sub(createdAt), nil
}
