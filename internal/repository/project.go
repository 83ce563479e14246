package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/agentdesk/agentdesk/internal/model"
)

// Common errors for project repository operations.
var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrMetadataNotFound = errors.New("project metadata not found")
	ErrConstraint       = errors.New("value violates a database constraint")
)

const projectSelect = `
	SELECT p.id, p.user_id, p.name, p.description, p.created_at, p.updated_at,
	       m.project_id, m.framework, m.template, m.tags, m.settings, m.updated_at,
	       (SELECT COUNT(*) FROM conversations c WHERE c.project_id = p.id)
	FROM projects p
	LEFT JOIN project_metadata m ON m.project_id = p.id
`

// CreateProject inserts a project and, when present, its metadata.
func (r *Repository) CreateProject(ctx context.Context, project *model.Project) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (id, user_id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			project.ID,
			project.UserID,
			project.Name,
			project.Description,
			project.CreatedAt,
			project.UpdatedAt,
		)
		if err != nil {
			switch {
			case isForeignKeyViolation(err):
				return ErrUserNotFound
			case isCheckViolation(err):
				return ErrConstraint
			}
			return fmt.Errorf("failed to create project: %w", err)
		}

		if project.Metadata != nil {
			project.Metadata.ProjectID = project.ID
			if err := upsertMetadata(ctx, tx, project.Metadata); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProjectForUser retrieves a project owned by userID.
// Projects owned by someone else are reported as not found.
func (r *Repository) GetProjectForUser(ctx context.Context, id, userID string) (*model.Project, error) {
	query := projectSelect + ` WHERE p.id = $1 AND p.user_id = $2`

	project, err := scanProject(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjectsByUserID returns a user's projects, newest first, with metadata
// and conversation counts.
func (r *Repository) ListProjectsByUserID(ctx context.Context, userID string) ([]*model.Project, error) {
	query := projectSelect + ` WHERE p.user_id = $1 ORDER BY p.created_at DESC, p.id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*model.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// UpdateProject updates name and description of a project owned by the project's UserID.
func (r *Repository) UpdateProject(ctx context.Context, project *model.Project) error {
	query := `
		UPDATE projects
		SET name = $3, description = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		project.ID,
		project.UserID,
		project.Name,
		project.Description,
	).Scan(&project.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrProjectNotFound
		case isCheckViolation(err):
			return ErrConstraint
		}
		return fmt.Errorf("failed to update project: %w", err)
	}

	return nil
}

// DeleteProject deletes a project owned by userID. Metadata, conversations
// and MCP configs cascade.
func (r *Repository) DeleteProject(ctx context.Context, id, userID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// GetProjectMetadata returns the metadata row of a project.
func (r *Repository) GetProjectMetadata(ctx context.Context, projectID string) (*model.ProjectMetadata, error) {
	query := `
		SELECT project_id, framework, template, tags, settings, updated_at
		FROM project_metadata
		WHERE project_id = $1
	`

	var (
		m        model.ProjectMetadata
		tags     []string
		settings []byte
	)
	err := r.pool.QueryRow(ctx, query, projectID).Scan(
		&m.ProjectID,
		&m.Framework,
		&m.Template,
		pq.Array(&tags),
		&settings,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to get project metadata: %w", err)
	}

	m.Tags = nonNilTags(tags)
	m.Settings = json.RawMessage(settings)
	return &m, nil
}

// UpsertProjectMetadata creates or replaces the metadata of a project.
func (r *Repository) UpsertProjectMetadata(ctx context.Context, metadata *model.ProjectMetadata) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return upsertMetadata(ctx, tx, metadata)
	})
}

func upsertMetadata(ctx context.Context, tx pgx.Tx, m *model.ProjectMetadata) error {
	settings := []byte(m.Settings)
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	query := `
		INSERT INTO project_metadata (project_id, framework, template, tags, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (project_id) DO UPDATE
		SET framework = EXCLUDED.framework,
		    template = EXCLUDED.template,
		    tags = EXCLUDED.tags,
		    settings = EXCLUDED.settings,
		    updated_at = NOW()
		RETURNING updated_at
	`

	err := tx.QueryRow(ctx, query,
		m.ProjectID,
		m.Framework,
		m.Template,
		pq.Array(nonNilTags(m.Tags)),
		settings,
	).Scan(&m.UpdatedAt)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return ErrProjectNotFound
		case isCheckViolation(err):
			return ErrConstraint
		}
		return fmt.Errorf("failed to upsert project metadata: %w", err)
	}

	m.Tags = nonNilTags(m.Tags)
	m.Settings = json.RawMessage(settings)
	return nil
}

// scanProject scans a projectSelect row. Metadata is nil when the project has none.
func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		p             model.Project
		metaProjectID *string
		framework     *string
		template      *string
		tags          []string
		settings      []byte
		metaUpdatedAt *time.Time
	)

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&p.CreatedAt,
		&p.UpdatedAt,
		&metaProjectID,
		&framework,
		&template,
		pq.Array(&tags),
		&settings,
		&metaUpdatedAt,
		&p.ConversationCount,
	)
	if err != nil {
		return nil, err
	}

	if metaProjectID != nil {
		p.Metadata = &model.ProjectMetadata{
			ProjectID: *metaProjectID,
			Tags:      nonNilTags(tags),
			Settings:  json.RawMessage(settings),
		}
		if framework != nil {
			p.Metadata.Framework = *framework
		}
		if template != nil {
			p.Metadata.Template = *template
		}
		if metaUpdatedAt != nil {
			p.Metadata.UpdatedAt = *metaUpdatedAt
		}
	}

	return &p, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
