package postgres

import (
	"context"
	"fmt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/webhook"
)

const webhookColumns = `id, COALESCE(tenant_id::text, ''), external_id, event_type, payload,
	processed_at, attempts, last_error, received_at`

func scanWebhookEvent(row scannable) (webhook.Event, error) {
	var e webhook.Event
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ExternalID, &e.Type, &e.Payload,
		&e.ProcessedAt, &e.Attempts, &e.LastError, &e.ReceivedAt,
	)
	return e, err
}

// InsertWebhookEvent records a delivery exactly once. A replay of the same
// external event id collides with the unique index and comes back as
// domain.ErrAlreadyProcessed.
func (s *Store) InsertWebhookEvent(ctx context.Context, e webhook.Event) (*webhook.Event, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO webhook_events (tenant_id, external_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+webhookColumns,
		nullIfEmpty(e.TenantID), e.ExternalID, string(e.Type), e.Payload)

	created, err := scanWebhookEvent(row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("webhook event %s already recorded: %w",
				e.ExternalID, domain.ErrAlreadyProcessed)
		}
		return nil, fmt.Errorf("insert webhook event: %w", err)
	}
	return &created, nil
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET processed_at = now() WHERE id = $1`, id)
	return execExpectOne(tag, err, "mark webhook %s processed", id)
}

func (s *Store) RecordWebhookFailure(ctx context.Context, id, lastError string) error {
	if len(lastError) > 1024 {
		lastError = lastError[:1024]
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, lastError)
	return execExpectOne(tag, err, "record webhook %s failure", id)
}

func (s *Store) ListUnprocessedWebhooks(ctx context.Context, limit int32) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhook_events
		 WHERE processed_at IS NULL
		 ORDER BY received_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed webhooks: %w", err)
	}
	defer rows.Close()

	var events []webhook.Event
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return orEmpty(events), rows.Err()
}
