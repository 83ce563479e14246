package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentdesk/agentdesk/internal/model"
)

// Activity listing bounds.
const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

// ActivityRepository provides database access for activity events.
type ActivityRepository struct {
	repo *Repository
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(repo *Repository) *ActivityRepository {
	return &ActivityRepository{repo: repo}
}

// BulkInsert inserts multiple activity events with idempotency via ON CONFLICT
// DO NOTHING. Events of users deleted since they were published are skipped.
func (r *ActivityRepository) BulkInsert(ctx context.Context, events []*model.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO activity_events (
			id, event_id, user_id, project_id, action, detail, occurred_at, created_at
		)
		SELECT $1::text, $2::text, u.id, $4::text, $5::text, $6::jsonb, $7::timestamptz, NOW()
		FROM users u
		WHERE u.id = $3::text
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		detail := []byte(event.Detail)
		if len(detail) == 0 {
			detail = []byte("{}")
		}
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.UserID,
			nullableString(event.ProjectID),
			event.Action,
			detail,
			event.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	// Check for errors in batch execution
	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// ListByUser returns a user's most recent activity events.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.ActivityEvent, error) {
	query := `
		SELECT id, event_id, user_id, COALESCE(project_id, ''), action, detail, occurred_at
		FROM activity_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, ClampActivityLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	events := make([]*model.ActivityEvent, 0)
	for rows.Next() {
		var (
			e      model.ActivityEvent
			detail []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.UserID,
			&e.ProjectID,
			&e.Action,
			&detail,
			&e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		e.Detail = detail
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	return events, nil
}

// ClampActivityLimit maps a requested page size into [1, MaxActivityLimit].
// Non-positive values select DefaultActivityLimit.
func ClampActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultActivityLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return limit
	}
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
