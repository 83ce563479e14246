package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentdesk/agentdesk/internal/agentloop"
	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

// ConversationService is the conversation API used by ConversationHandler.
type ConversationService interface {
	List(ctx context.Context, userID, projectID string) ([]*model.Conversation, error)
	Create(ctx context.Context, userID, projectID string, input service.CreateConversationInput) (*model.Conversation, error)
	Get(ctx context.Context, userID, projectID, id string) (*model.Conversation, error)
	Delete(ctx context.Context, userID, projectID, id string) error
	AppendMessages(ctx context.Context, userID, projectID, id string, messages []model.Message) (*model.Conversation, error)
	LoopState(ctx context.Context, userID, projectID, id string) (*service.LoopView, error)
	ApproveLoop(ctx context.Context, userID, projectID, id string, decision agentloop.Decision) (*service.LoopView, error)
	ResetLoop(ctx context.Context, userID, projectID, id string) (*service.LoopView, error)
}

// ConversationHandler handles conversations and their agent loop.
type ConversationHandler struct {
	svc    ConversationService
	logger *slog.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(svc ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/projects/{id}/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	convs, err := h.svc.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConversationsResponse{Success: true, Conversations: convs})
}

// Create handles POST /api/projects/{id}/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.svc.Create(r.Context(), userID, chi.URLParam(r, "id"), service.CreateConversationInput{
		Title:    req.Title,
		Messages: req.Messages,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ConversationResponse{Success: true, Conversation: conv})
}

// Get handles GET /api/projects/{id}/conversations/{cid}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conv, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "cid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConversationResponse{Success: true, Conversation: conv})
}

// Delete handles DELETE /api/projects/{id}/conversations/{cid}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "cid")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AppendMessages handles POST /api/projects/{id}/conversations/{cid}/messages.
func (h *ConversationHandler) AppendMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.AppendMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.svc.AppendMessages(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "cid"), req.Messages)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConversationResponse{Success: true, Conversation: conv})
}

// Loop handles GET /api/projects/{id}/conversations/{cid}/loop.
func (h *ConversationHandler) Loop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	view, err := h.svc.LoopState(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "cid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoopResponse(view))
}

// ApproveLoop handles POST /api/projects/{id}/conversations/{cid}/loop/approve.
func (h *ConversationHandler) ApproveLoop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.ApproveLoopRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Approved == nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: "approved: is required",
			Code:  "VALIDATION_ERROR",
			Field: "approved",
		})
		return
	}

	projectID, convID := chi.URLParam(r, "id"), chi.URLParam(r, "cid")
	view, err := h.svc.ApproveLoop(r.Context(), userID, projectID, convID, agentloop.Decision{
		Approved: *req.Approved,
		Reason:   req.Reason,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("loop_decision",
		"conversation_id", convID,
		"approved", *req.Approved,
		"stage", string(view.State.Stage),
	)
	writeJSON(w, http.StatusOK, toLoopResponse(view))
}

// ResetLoop handles POST /api/projects/{id}/conversations/{cid}/loop/reset.
func (h *ConversationHandler) ResetLoop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	view, err := h.svc.ResetLoop(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "cid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoopResponse(view))
}

func toLoopResponse(view *service.LoopView) dto.LoopResponse {
	return dto.LoopResponse{
		Success:        true,
		ConversationID: view.ConversationID,
		ResetIndex:     view.ResetIndex,
		MessageCount:   view.MessageCount,
		Loop:           view.State,
	}
}
