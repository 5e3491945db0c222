package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opsdesk/internal/models"
)

type AuditRepository struct {
	db DB
}

func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, event models.AuditEvent) error {
	const query = `
		INSERT INTO audit_events (event_type, actor_id, client_ip, location, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	if event.Details == nil {
		details = []byte("{}")
	}

	if _, err := r.db.Exec(ctx, query,
		event.Type,
		event.ActorID,
		event.ClientIP,
		event.Location,
		details,
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBetween returns events with from <= created_at < to, oldest first.
func (r *AuditRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.AuditEvent, error) {
	const query = `
		SELECT id, event_type, actor_id, client_ip, location, details, created_at
		FROM audit_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AuditEvent, 0)
	for rows.Next() {
		var (
			event   models.AuditEvent
			details []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.ActorID,
			&event.ClientIP,
			&event.Location,
			&details,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
