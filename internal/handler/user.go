package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

// UserService is the profile API used by UserHandler.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, input service.UpdateProfileInput) (*model.User, error)
	DeleteProfile(ctx context.Context, userID string) error
	ListProjects(ctx context.Context, userID string) ([]*model.Project, error)
	ListAccounts(ctx context.Context, userID string) ([]*model.Account, error)
	UnlinkAccount(ctx context.Context, userID, accountID string) error
	ListActivity(ctx context.Context, userID string, limit int) ([]*model.ActivityEvent, error)
}

// UserHandler handles the authenticated user's own resources.
type UserHandler struct {
	svc    UserService
	cookie SessionCookie
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc UserService, cookie SessionCookie, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		cookie: cookie,
		logger: logger,
	}
}

// GetProfile handles GET /api/user/profile.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UserResponse{Success: true, User: user})
}

// UpdateProfile handles PATCH /api/user/profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		Name:  req.Name,
		Image: req.Image,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UserResponse{Success: true, User: user})
}

// DeleteProfile handles DELETE /api/user/profile.
func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteProfile(r.Context(), userID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_deleted", "user_id", userID)
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// ListProjects handles GET /api/user/projects.
func (h *UserHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projects, err := h.svc.ListProjects(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProjectsResponse{Success: true, Projects: projects})
}

// ListAccounts handles GET /api/user/accounts.
func (h *UserHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountsResponse{Success: true, Accounts: accounts})
}

// UnlinkAccount handles DELETE /api/user/accounts/{id}.
func (h *UserHandler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.UnlinkAccount(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// ListActivity handles GET /api/user/activity.
func (h *UserHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	// Invalid limits fall back to the default page size.
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.svc.ListActivity(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ActivityResponse{Success: true, Events: events})
}
