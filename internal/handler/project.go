package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

// ProjectService is the project API used by ProjectHandler.
type ProjectService interface {
	List(ctx context.Context, userID string) ([]*model.Project, error)
	Create(ctx context.Context, userID string, input service.CreateProjectInput) (*model.Project, error)
	Get(ctx context.Context, userID, id string) (*model.Project, error)
	Update(ctx context.Context, userID, id string, input service.UpdateProjectInput) (*model.Project, error)
	Delete(ctx context.Context, userID, id string) error
	GetMetadata(ctx context.Context, userID, id string) (*model.ProjectMetadata, error)
	PutMetadata(ctx context.Context, userID, id string, input service.MetadataInput) (*model.ProjectMetadata, error)
}

// ProjectHandler handles HTTP requests for projects.
type ProjectHandler struct {
	svc    ProjectService
	logger *slog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(svc ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projects, err := h.svc.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProjectsResponse{Success: true, Projects: projects})
}

// Create handles POST /api/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := service.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Metadata != nil {
		md := toMetadataInput(*req.Metadata)
		input.Metadata = &md
	}

	project, err := h.svc.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("project_created",
		"project_id", project.ID,
		"user_id", userID,
	)
	writeJSON(w, http.StatusCreated, dto.ProjectResponse{Success: true, Project: project})
}

// Get handles GET /api/projects/{id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	project, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProjectResponse{Success: true, Project: project})
}

// Update handles PATCH /api/projects/{id}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), service.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProjectResponse{Success: true, Project: project})
}

// Delete handles DELETE /api/projects/{id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("project_deleted", "project_id", id, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// GetMetadata handles GET /api/projects/{id}/metadata.
func (h *ProjectHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	md, err := h.svc.GetMetadata(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MetadataResponse{Success: true, Metadata: md})
}

// PutMetadata handles PUT /api/projects/{id}/metadata.
func (h *ProjectHandler) PutMetadata(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.MetadataRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	md, err := h.svc.PutMetadata(r.Context(), userID, chi.URLParam(r, "id"), toMetadataInput(req))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MetadataResponse{Success: true, Metadata: md})
}

func toMetadataInput(req dto.MetadataRequest) service.MetadataInput {
	return service.MetadataInput{
		Framework: req.Framework,
		Template:  req.Template,
		Tags:      req.Tags,
		Settings:  req.Settings,
	}
}
