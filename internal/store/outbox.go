package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

func insertOutbox(ctx context.Context, q queryer, events []models.OutboxEvent) error {
	const query = `
		INSERT INTO event_outbox (id, event_type, event_key, envelope, created_at)
		VALUES ($1,$2,$3,$4::jsonb,NOW())
	`
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if _, err := q.ExecContext(ctx, query, ev.ID, ev.EventType, ev.Key, []byte(ev.Envelope)); err != nil {
			return fmt.Errorf("enqueue %s event: %w", ev.EventType, err)
		}
	}
	return nil
}

func (s *PGStore) ClaimOutbox(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	const query = `
		UPDATE event_outbox
		SET claimed_until = NOW() + ($3 * INTERVAL '1 millisecond')
		WHERE id IN (
			SELECT id
			FROM event_outbox
			WHERE published_at IS NULL
			  AND attempts < $2
			  AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, event_key, envelope, attempts, last_error, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, limit, maxAttempts, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			raw     []byte
			lastErr sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Key, &raw, &ev.Attempts, &lastErr, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Envelope = append(json.RawMessage(nil), raw...)
		ev.LastError = lastErr.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PGStore) MarkPublished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE event_outbox SET published_at=NOW(), claimed_until=NULL WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	const query = `
		UPDATE event_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_until = NULL
		WHERE id=$1
	`
	res, err := s.db.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
