package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

// MCPConfigService is the MCP config API used by MCPHandler.
type MCPConfigService interface {
	List(ctx context.Context, userID, projectID string) ([]*model.MCPConfig, error)
	Create(ctx context.Context, userID, projectID string, input service.CreateMCPConfigInput) (*model.MCPConfig, error)
	Update(ctx context.Context, userID, projectID, id string, input service.UpdateMCPConfigInput) (*model.MCPConfig, error)
	Delete(ctx context.Context, userID, projectID, id string) error
	Probe(ctx context.Context, userID, projectID, id string) (*mcpprobe.Result, error)
}

// MCPHandler handles per-project MCP server configs.
type MCPHandler struct {
	svc    MCPConfigService
	logger *slog.Logger
}

// NewMCPHandler creates a new MCPHandler.
func NewMCPHandler(svc MCPConfigService, logger *slog.Logger) *MCPHandler {
	return &MCPHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/projects/{id}/mcp-configs.
func (h *MCPHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cfgs, err := h.svc.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MCPConfigsResponse{Success: true, Configs: dto.ToMCPConfigs(cfgs)})
}

// Create handles POST /api/projects/{id}/mcp-configs.
func (h *MCPHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateMCPConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.svc.Create(r.Context(), userID, chi.URLParam(r, "id"), service.CreateMCPConfigInput{
		Name:      req.Name,
		ServerURL: req.ServerURL,
		AuthToken: req.AuthToken,
		Enabled:   req.Enabled,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.MCPConfigResponse{Success: true, Config: dto.ToMCPConfig(cfg)})
}

// Update handles PATCH /api/projects/{id}/mcp-configs/{mid}.
func (h *MCPHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateMCPConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "mid"), service.UpdateMCPConfigInput{
		Name:      req.Name,
		ServerURL: req.ServerURL,
		AuthToken: req.AuthToken,
		Enabled:   req.Enabled,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MCPConfigResponse{Success: true, Config: dto.ToMCPConfig(cfg)})
}

// Delete handles DELETE /api/projects/{id}/mcp-configs/{mid}.
func (h *MCPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "mid")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Probe handles POST /api/projects/{id}/mcp-configs/{mid}/probe.
func (h *MCPHandler) Probe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Probe(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "mid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProbeResponse{Success: true, Probe: res})
}
