package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
)

// ProjectService handles project business logic.
type ProjectService struct {
	projects ProjectStore
	events   ActivityPublisher
	now      func() time.Time
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projects ProjectStore, events ActivityPublisher) *ProjectService {
	return &ProjectService{projects: projects, events: events, now: time.Now}
}

// MetadataInput defines project metadata fields.
type MetadataInput struct {
	Framework string
	Template  string
	Tags      []string
	Settings  json.RawMessage
}

// CreateProjectInput defines input for creating a project.
type CreateProjectInput struct {
	Name        string
	Description string
	Metadata    *MetadataInput
}

// UpdateProjectInput defines input for updating a project. Nil fields are unchanged.
type UpdateProjectInput struct {
	Name        *string
	Description *string
}

// List returns the user's projects.
func (s *ProjectService) List(ctx context.Context, userID string) ([]*model.Project, error) {
	return s.projects.ListProjectsByUserID(ctx, userID)
}

// Create creates a project owned by userID.
func (s *ProjectService) Create(ctx context.Context, userID string, input CreateProjectInput) (*model.Project, error) {
	name := strings.TrimSpace(input.Name)
	if err := validateProjectName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	project := &model.Project{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Name:        name,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.Metadata != nil {
		metadata, err := buildMetadata(project.ID, *input.Metadata, now)
		if err != nil {
			return nil, err
		}
		project.Metadata = metadata
	}

	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, mapProjectError(err)
	}

	publish(s.events, userID, project.ID, model.ActionProjectCreated, map[string]string{"name": project.Name})
	return project, nil
}

// Get returns a project owned by userID.
func (s *ProjectService) Get(ctx context.Context, userID, id string) (*model.Project, error) {
	project, err := s.projects.GetProjectForUser(ctx, id, userID)
	if err != nil {
		return nil, mapProjectError(err)
	}
	return project, nil
}

// Update changes name and description of a project owned by userID.
func (s *ProjectService) Update(ctx context.Context, userID, id string, input UpdateProjectInput) (*model.Project, error) {
	project, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validateProjectName(name); err != nil {
			return nil, err
		}
		project.Name = name
	}
	if input.Description != nil {
		if err := validateDescription(*input.Description); err != nil {
			return nil, err
		}
		project.Description = *input.Description
	}

	if err := s.projects.UpdateProject(ctx, project); err != nil {
		return nil, mapProjectError(err)
	}

	publish(s.events, userID, project.ID, model.ActionProjectUpdated, nil)
	return project, nil
}

// Delete removes a project owned by userID.
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if err := s.projects.DeleteProject(ctx, id, userID); err != nil {
		return mapProjectError(err)
	}
	publish(s.events, userID, id, model.ActionProjectDeleted, nil)
	return nil
}

// GetMetadata returns a project's metadata. Projects without a metadata row
// get empty defaults.
func (s *ProjectService) GetMetadata(ctx context.Context, userID, id string) (*model.ProjectMetadata, error) {
	project, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	metadata, err := s.projects.GetProjectMetadata(ctx, project.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMetadataNotFound) {
			return &model.ProjectMetadata{ProjectID: project.ID, Tags: []string{}}, nil
		}
		return nil, err
	}
	return metadata, nil
}

// PutMetadata replaces a project's metadata.
func (s *ProjectService) PutMetadata(ctx context.Context, userID, id string, input MetadataInput) (*model.ProjectMetadata, error) {
	project, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	metadata, err := buildMetadata(project.ID, input, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.projects.UpsertProjectMetadata(ctx, metadata); err != nil {
		return nil, mapProjectError(err)
	}

	publish(s.events, userID, project.ID, model.ActionProjectUpdated, map[string]bool{"metadata": true})
	return metadata, nil
}

func buildMetadata(projectID string, input MetadataInput, now time.Time) (*model.ProjectMetadata, error) {
	framework := strings.TrimSpace(input.Framework)
	if err := validateShortField("framework", framework, maxFrameworkLength); err != nil {
		return nil, err
	}
	template := strings.TrimSpace(input.Template)
	if err := validateShortField("template", template, maxFrameworkLength); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}
	if err := validateSettings(input.Settings); err != nil {
		return nil, err
	}

	return &model.ProjectMetadata{
		ProjectID: projectID,
		Framework: framework,
		Template:  template,
		Tags:      tags,
		Settings:  input.Settings,
		UpdatedAt: now,
	}, nil
}

func mapProjectError(err error) error {
	switch {
	case errors.Is(err, repository.ErrProjectNotFound):
		return ErrProjectNotFound
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}
