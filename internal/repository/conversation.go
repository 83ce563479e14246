package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentdesk/agentdesk/internal/model"
)

// ErrConversationNotFound is returned when a conversation does not exist in the project.
var ErrConversationNotFound = errors.New("conversation not found")

// CreateConversation inserts a new conversation.
func (r *Repository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	messages, err := encodeMessages(conv.Messages)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (id, project_id, user_id, title, messages, loop_reset_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		conv.ID,
		conv.ProjectID,
		conv.UserID,
		conv.Title,
		messages,
		conv.LoopResetIndex,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	conv.MessageCount = len(conv.Messages)
	return nil
}

// ListConversations returns conversation summaries of a project, most recently
// updated first. Messages are not loaded.
func (r *Repository) ListConversations(ctx context.Context, projectID string) ([]*model.Conversation, error) {
	query := `
		SELECT id, project_id, user_id, title, jsonb_array_length(messages), loop_reset_index, created_at, updated_at
		FROM conversations
		WHERE project_id = $1
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*model.Conversation, 0)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(
			&c.ID,
			&c.ProjectID,
			&c.UserID,
			&c.Title,
			&c.MessageCount,
			&c.LoopResetIndex,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return convs, nil
}

// GetConversation retrieves a conversation with its messages.
func (r *Repository) GetConversation(ctx context.Context, projectID, id string) (*model.Conversation, error) {
	conv, err := getConversation(ctx, r.pool, projectID, id, false)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// MutateConversation loads a conversation under a row lock, applies fn and
// persists title, messages and reset index. Nothing is written if fn fails.
func (r *Repository) MutateConversation(ctx context.Context, projectID, id string, fn func(conv *model.Conversation) error) (*model.Conversation, error) {
	var conv *model.Conversation
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		conv, err = getConversation(ctx, tx, projectID, id, true)
		if err != nil {
			return err
		}

		if err := fn(conv); err != nil {
			return err
		}

		messages, err := encodeMessages(conv.Messages)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE conversations
			SET title = $2, messages = $3, loop_reset_index = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, conv.ID, conv.Title, messages, conv.LoopResetIndex).Scan(&conv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	conv.MessageCount = len(conv.Messages)
	return conv, nil
}

// DeleteConversation removes a conversation from a project.
func (r *Repository) DeleteConversation(ctx context.Context, projectID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getConversation(ctx context.Context, q queryRower, projectID, id string, forUpdate bool) (*model.Conversation, error) {
	query := `
		SELECT id, project_id, user_id, title, messages, loop_reset_index, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND project_id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		c   model.Conversation
		raw []byte
	)
	err := q.QueryRow(ctx, query, id, projectID).Scan(
		&c.ID,
		&c.ProjectID,
		&c.UserID,
		&c.Title,
		&raw,
		&c.LoopResetIndex,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := json.Unmarshal(raw, &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode conversation messages: %w", err)
	}
	if c.Messages == nil {
		c.Messages = []model.Message{}
	}
	c.MessageCount = len(c.Messages)

	return &c, nil
}

func encodeMessages(messages []model.Message) ([]byte, error) {
	if messages == nil {
		messages = []model.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation messages: %w", err)
	}
	return data, nil
}
