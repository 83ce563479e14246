package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentdesk/agentdesk/internal/model"
)

// Common errors for MCP config repository operations.
var (
	ErrMCPConfigNotFound = errors.New("mcp config not found")
	ErrMCPConfigExists   = errors.New("mcp config name already used in project")
)

const mcpConfigColumns = `id, project_id, name, server_url, auth_token_sealed, auth_token_hint, enabled, created_at, updated_at`

// CreateMCPConfig inserts a new MCP config.
func (r *Repository) CreateMCPConfig(ctx context.Context, cfg *model.MCPConfig) error {
	query := `
		INSERT INTO mcp_configs (` + mcpConfigColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		cfg.ID,
		cfg.ProjectID,
		cfg.Name,
		cfg.ServerURL,
		nullableBytes(cfg.AuthTokenSealed),
		cfg.AuthTokenHint,
		cfg.Enabled,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrMCPConfigExists
		case isForeignKeyViolation(err):
			return ErrProjectNotFound
		case isCheckViolation(err):
			return ErrConstraint
		}
		return fmt.Errorf("failed to create mcp config: %w", err)
	}

	return nil
}

// ListMCPConfigs returns the MCP configs of a project ordered by name.
func (r *Repository) ListMCPConfigs(ctx context.Context, projectID string) ([]*model.MCPConfig, error) {
	query := `SELECT ` + mcpConfigColumns + ` FROM mcp_configs WHERE project_id = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*model.MCPConfig, 0)
	for rows.Next() {
		cfg, err := scanMCPConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mcp config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mcp configs: %w", err)
	}

	return configs, nil
}

// GetMCPConfig retrieves an MCP config within a project.
func (r *Repository) GetMCPConfig(ctx context.Context, projectID, id string) (*model.MCPConfig, error) {
	query := `SELECT ` + mcpConfigColumns + ` FROM mcp_configs WHERE id = $1 AND project_id = $2`

	cfg, err := scanMCPConfig(r.pool.QueryRow(ctx, query, id, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMCPConfigNotFound
		}
		return nil, fmt.Errorf("failed to get mcp config: %w", err)
	}

	return cfg, nil
}

// UpdateMCPConfig replaces the mutable fields of an MCP config.
func (r *Repository) UpdateMCPConfig(ctx context.Context, cfg *model.MCPConfig) error {
	query := `
		UPDATE mcp_configs
		SET name = $3, server_url = $4, auth_token_sealed = $5, auth_token_hint = $6, enabled = $7, updated_at = NOW()
		WHERE id = $1 AND project_id = $2
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		cfg.ID,
		cfg.ProjectID,
		cfg.Name,
		cfg.ServerURL,
		nullableBytes(cfg.AuthTokenSealed),
		cfg.AuthTokenHint,
		cfg.Enabled,
	).Scan(&cfg.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrMCPConfigNotFound
		case isUniqueViolation(err):
			return ErrMCPConfigExists
		case isCheckViolation(err):
			return ErrConstraint
		}
		return fmt.Errorf("failed to update mcp config: %w", err)
	}

	return nil
}

// DeleteMCPConfig removes an MCP config from a project.
func (r *Repository) DeleteMCPConfig(ctx context.Context, projectID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM mcp_configs WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete mcp config: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrMCPConfigNotFound
	}

	return nil
}

func scanMCPConfig(row pgx.Row) (*model.MCPConfig, error) {
	var cfg model.MCPConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.ProjectID,
		&cfg.Name,
		&cfg.ServerURL,
		&cfg.AuthTokenSealed,
		&cfg.AuthTokenHint,
		&cfg.Enabled,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	return &cfg, err
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
