package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentdesk/agentdesk/internal/model"
)

// ErrSessionNotFound is returned when a session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, expires_at, user_agent, ip_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.ExpiresAt,
		session.UserAgent,
		session.IPHash,
		session.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByID retrieves a session, including revoked and expired ones.
func (r *Repository) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
		SELECT id, user_id, expires_at, revoked_at, user_agent, ip_hash, created_at
		FROM sessions
		WHERE id = $1
	`

	var s model.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.ExpiresAt,
		&s.RevokedAt,
		&s.UserAgent,
		&s.IPHash,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// RevokeSession marks a session as revoked. Revoking twice is a no-op.
func (r *Repository) RevokeSession(ctx context.Context, id string) error {
	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// RevokeUserSessions revokes every active session of a user and returns their IDs.
func (r *Repository) RevokeUserSessions(ctx context.Context, userID string) ([]string, error) {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan revoked sessions: %w", err)
	}

	return ids, nil
}

// SessionRetention is how long expired or revoked sessions are kept.
const SessionRetention = 7 * 24 * time.Hour

// DeleteStaleSessions removes sessions that expired or were revoked more than
// SessionRetention ago.
func (r *Repository) DeleteStaleSessions(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR revoked_at < $1
	`

	result, err := r.pool.Exec(ctx, query, time.Now().Add(-SessionRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
