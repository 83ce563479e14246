package model

import (
	"encoding/json"
	"time"
)

// Project is a workspace owned by a single user.
type Project struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Metadata          *ProjectMetadata `json:"metadata,omitempty"`
	ConversationCount int              `json:"conversation_count"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ProjectMetadata holds per-project settings. One row per project.
type ProjectMetadata struct {
	ProjectID string          `json:"project_id"`
	Framework string          `json:"framework,omitempty"`
	Template  string          `json:"template,omitempty"`
	Tags      []string        `json:"tags"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
