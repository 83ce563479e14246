package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
)

const maxUserAgentLength = 500

// AuthServiceConfig wires the dependencies of AuthService.
type AuthServiceConfig struct {
	Users      UserStore
	Sessions   SessionStore
	Cache      SessionCache
	Tokens     *auth.TokenManager
	SessionTTL time.Duration
	// Fingerprint hashes client IPs before they are stored on sessions.
	Fingerprint auth.Fingerprinter
	Activity    ActivityPublisher
	Metrics     metrics.Recorder
	Logger      *slog.Logger
}

// AuthService handles registration, sign-in and session validation.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	cache    SessionCache
	tokens   *auth.TokenManager
	ttl      time.Duration
	ipHash   auth.Fingerprinter
	activity ActivityPublisher
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthService{
		users:    cfg.Users,
		sessions: cfg.Sessions,
		cache:    cfg.Cache,
		tokens:   cfg.Tokens,
		ttl:      cfg.SessionTTL,
		ipHash:   cfg.Fingerprint,
		activity: cfg.Activity,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "auth"),
		now:      time.Now,
	}
}

// RegisterInput defines input for creating a credentials user.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// ClientInfo describes the client starting a session.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// SessionResult is returned after a successful sign-in.
type SessionResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// CreateUser creates a user with a credentials account without signing in.
func (s *AuthService) CreateUser(ctx context.Context, input RegisterInput) (*model.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, invalid("password", err.Error())
	}
	name := strings.TrimSpace(input.Name)
	if err := validateUserName(name); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:        ulid.Make().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &model.Account{
		ID:                ulid.Make().String(),
		UserID:            user.ID,
		Type:              model.AccountTypeCredentials,
		Provider:          model.ProviderCredentials,
		ProviderAccountID: email,
		PasswordHash:      hash,
		CreatedAt:         now,
	}

	if err := s.users.CreateUserWithAccount(ctx, user, account); err != nil {
		if errors.Is(err, repository.ErrEmailExists) || errors.Is(err, repository.ErrAccountExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Register creates a credentials user and starts a session for it.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, client ClientInfo) (*SessionResult, error) {
	user, err := s.CreateUser(ctx, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user_registered", "user_id", user.ID)
	return s.startSession(ctx, user, client)
}

// SignIn verifies email and password and starts a session.
// Unknown emails and wrong passwords return the same error.
func (s *AuthService) SignIn(ctx context.Context, email, password string, client ClientInfo) (*SessionResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.users.GetCredentialsAccount(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// Burn the same time as a real verification.
			_, _ = auth.VerifyPassword(password, dummyPasswordHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	ok, err := auth.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByID(ctx, account.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return s.startSession(ctx, user, client)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User, client ClientInfo) (*SessionResult, error) {
	now := s.now().UTC()
	session := &model.Session{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: truncateRunes(client.UserAgent, maxUserAgentLength),
		CreatedAt: now,
	}
	if client.IP != "" {
		session.IPHash = s.ipHash.Sum(client.IP)
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokens.Sign(session.ID, user.ID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	s.cacheSession(ctx, &model.AuthContext{
		SessionID: session.ID,
		UserID:    user.ID,
		ExpiresAt: session.ExpiresAt,
	})
	publish(s.activity, user.ID, "", model.ActionSessionCreated, nil)

	return &SessionResult{User: user, Session: session, Token: token}, nil
}

// Authenticate validates a session token. It implements the middleware's
// session authenticator: the token must verify and its session must be
// neither revoked nor expired.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.AuthContext, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if s.cache != nil {
		cached, err := s.cache.GetSession(ctx, claims.SessionID)
		if err != nil {
			s.logger.Warn("session cache read failed", "error", err)
		}
		if cached != nil {
			if cached.UserID == claims.Subject && s.now().Before(cached.ExpiresAt) {
				s.metrics.IncSessionCacheHit()
				return cached, nil
			}
			return nil, ErrUnauthenticated
		}
		s.metrics.IncSessionCacheMiss()
	}

	session, err := s.sessions.GetSessionByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != claims.Subject || !session.IsActive(s.now()) {
		return nil, ErrUnauthenticated
	}

	ac := &model.AuthContext{
		SessionID: session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}
	s.cacheSession(ctx, ac)
	return ac, nil
}

// SignOut revokes a session. Signing out twice is not an error.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.RevokeSession(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.evictSessions(ctx, sessionID)
	return nil
}

// RevokeUserSessions revokes every active session of a user and returns how many were revoked.
func (s *AuthService) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	ids, err := s.sessions.RevokeUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	s.evictSessions(ctx, ids...)
	return len(ids), nil
}

// SessionInfo describes the current session.
type SessionInfo struct {
	User      *model.User
	ExpiresAt time.Time
}

// CurrentSession returns the user behind an authenticated request.
func (s *AuthService) CurrentSession(ctx context.Context, ac *model.AuthContext) (*SessionInfo, error) {
	if ac == nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, ac.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &SessionInfo{User: user, ExpiresAt: ac.ExpiresAt}, nil
}

func (s *AuthService) cacheSession(ctx context.Context, ac *model.AuthContext) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSession(ctx, ac); err != nil {
		s.logger.Warn("session cache write failed", "error", err)
	}
}

func (s *AuthService) evictSessions(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.DeleteSessions(ctx, ids...); err != nil {
		s.logger.Warn("session cache eviction failed", "error", err)
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash is verified against when the email is unknown so that
// response time does not reveal which emails are registered.
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("agentdesk-timing-equalizer")
	})
	return dummyHash
}
