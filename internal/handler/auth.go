package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/middleware"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

// AuthService is the session API used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput, client service.ClientInfo) (*service.SessionResult, error)
	SignIn(ctx context.Context, email, password string, client service.ClientInfo) (*service.SessionResult, error)
	SignOut(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, token string) (*model.AuthContext, error)
	CurrentSession(ctx context.Context, ac *model.AuthContext) (*service.SessionInfo, error)
}

// SessionCookie describes the session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) set(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthHandler handles registration, sign-in and sign-out.
type AuthHandler struct {
	svc    AuthService
	cookie SessionCookie
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, cookie SessionCookie, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		cookie: cookie,
		logger: logger,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, clientInfo(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.startSession(w, http.StatusCreated, res)
}

// SignIn handles POST /api/auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.SignIn(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("session_started",
		"user_id", res.User.ID,
		"session_id", res.Session.ID,
	)
	h.startSession(w, http.StatusOK, res)
}

// SignOut handles POST /api/auth/signout.
// It always clears the cookie, even when the session is already gone.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractSessionToken(r, h.cookie.Name)
	if token != "" {
		if ac, err := h.svc.Authenticate(r.Context(), token); err == nil {
			if err := h.svc.SignOut(r.Context(), ac.SessionID); err != nil {
				handleServiceError(w, r, h.logger, err)
				return
			}
			h.logger.Info("session_ended", "user_id", ac.UserID, "session_id", ac.SessionID)
		}
	}

	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	info, err := h.svc.CurrentSession(r.Context(), ac)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionResponse{
		Success:   true,
		User:      info.User,
		ExpiresAt: info.ExpiresAt,
	})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, res *service.SessionResult) {
	h.cookie.set(w, res.Token, res.Session.ExpiresAt)
	writeJSON(w, status, dto.SessionResponse{
		Success:   true,
		User:      res.User,
		Token:     res.Token,
		ExpiresAt: res.Session.ExpiresAt,
	})
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	}
}
