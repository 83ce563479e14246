package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
	"github.com/agentdesk/agentdesk/internal/telemetry"
)

// MCPConfigServiceConfig wires the dependencies of MCPConfigService.
type MCPConfigServiceConfig struct {
	Projects  ProjectOwnership
	Configs   MCPConfigStore
	Sealer    *auth.Sealer
	Validator URLValidator
	Prober    MCPProber
	Activity  ActivityPublisher
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// MCPConfigService manages per-project MCP server connections.
// Auth tokens are sealed with the config id as associated data so a sealed
// token cannot be moved to another config.
type MCPConfigService struct {
	projects  ProjectOwnership
	configs   MCPConfigStore
	sealer    *auth.Sealer
	validator URLValidator
	prober    MCPProber
	events    ActivityPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewMCPConfigService creates a new MCPConfigService.
func NewMCPConfigService(cfg MCPConfigServiceConfig) *MCPConfigService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MCPConfigService{
		projects:  cfg.Projects,
		configs:   cfg.Configs,
		sealer:    cfg.Sealer,
		validator: cfg.Validator,
		prober:    cfg.Prober,
		events:    cfg.Activity,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "mcp"),
		now:       time.Now,
	}
}

// CreateMCPConfigInput defines input for adding an MCP server.
type CreateMCPConfigInput struct {
	Name      string
	ServerURL string
	AuthToken string
	Enabled   *bool
}

// UpdateMCPConfigInput defines input for changing an MCP server.
// Nil fields are unchanged; an empty AuthToken removes the stored token.
type UpdateMCPConfigInput struct {
	Name      *string
	ServerURL *string
	AuthToken *string
	Enabled   *bool
}

// List returns the MCP configs of a project.
func (s *MCPConfigService) List(ctx context.Context, userID, projectID string) ([]*model.MCPConfig, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.configs.ListMCPConfigs(ctx, projectID)
}

// Create validates and stores a new MCP config.
func (s *MCPConfigService) Create(ctx context.Context, userID, projectID string, input CreateMCPConfigInput) (*model.MCPConfig, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if err := validateMCPName(name); err != nil {
		return nil, err
	}
	serverURL := strings.TrimSpace(input.ServerURL)
	if err := s.validateServerURL(ctx, serverURL); err != nil {
		return nil, err
	}
	if err := validateAuthToken(input.AuthToken); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cfg := &model.MCPConfig{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Name:      name,
		ServerURL: serverURL,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Enabled != nil {
		cfg.Enabled = *input.Enabled
	}
	if err := s.setToken(cfg, input.AuthToken); err != nil {
		return nil, err
	}

	if err := s.configs.CreateMCPConfig(ctx, cfg); err != nil {
		return nil, mapMCPConfigError(err)
	}

	s.logger.Info("mcp_config_created",
		"config_id", cfg.ID,
		"project_id", projectID,
		"host", mcpprobe.ExtractHost(serverURL),
	)
	publish(s.events, userID, projectID, model.ActionMCPConfigCreated, map[string]string{"config_id": cfg.ID, "name": cfg.Name})
	return cfg, nil
}

// Update applies changes to an MCP config.
func (s *MCPConfigService) Update(ctx context.Context, userID, projectID, id string, input UpdateMCPConfigInput) (*model.MCPConfig, error) {
	cfg, err := s.get(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validateMCPName(name); err != nil {
			return nil, err
		}
		cfg.Name = name
	}
	if input.ServerURL != nil {
		serverURL := strings.TrimSpace(*input.ServerURL)
		if err := s.validateServerURL(ctx, serverURL); err != nil {
			return nil, err
		}
		cfg.ServerURL = serverURL
	}
	if input.AuthToken != nil {
		if err := validateAuthToken(*input.AuthToken); err != nil {
			return nil, err
		}
		if err := s.setToken(cfg, *input.AuthToken); err != nil {
			return nil, err
		}
	}
	if input.Enabled != nil {
		cfg.Enabled = *input.Enabled
	}

	if err := s.configs.UpdateMCPConfig(ctx, cfg); err != nil {
		return nil, mapMCPConfigError(err)
	}

	publish(s.events, userID, projectID, model.ActionMCPConfigUpdated, map[string]string{"config_id": cfg.ID})
	return cfg, nil
}

// Delete removes an MCP config.
func (s *MCPConfigService) Delete(ctx context.Context, userID, projectID, id string) error {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.configs.DeleteMCPConfig(ctx, projectID, id); err != nil {
		return mapMCPConfigError(err)
	}
	publish(s.events, userID, projectID, model.ActionMCPConfigDeleted, map[string]string{"config_id": id})
	return nil
}

// Probe connects to the configured server and lists its tools.
func (s *MCPConfigService) Probe(ctx context.Context, userID, projectID, id string) (*mcpprobe.Result, error) {
	cfg, err := s.get(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}

	token, err := s.openToken(cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "mcp.probe")
	defer span.End()
	span.SetAttributes(
		attribute.String("mcp.config_id", cfg.ID),
		attribute.String("mcp.host", mcpprobe.ExtractHost(cfg.ServerURL)),
	)

	start := time.Now()
	result, err := s.prober.Probe(ctx, cfg.ServerURL, token)
	if err != nil {
		s.metrics.ObserveMCPProbe("unreachable", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")

		if errors.Is(err, mcpprobe.ErrUnreachable) {
			s.logger.Warn("mcp_probe_failed",
				"config_id", cfg.ID,
				"host", mcpprobe.ExtractHost(cfg.ServerURL),
				"error", err,
			)
			return nil, fmt.Errorf("%w: %v", ErrMCPUnreachable, err)
		}
		if errors.Is(err, mcpprobe.ErrUnsafeURL) {
			return nil, invalid("server_url", err.Error())
		}
		return nil, err
	}

	s.metrics.ObserveMCPProbe("ok", time.Since(start))
	span.SetAttributes(attribute.Int("mcp.tool_count", len(result.Tools)))
	return result, nil
}

func (s *MCPConfigService) get(ctx context.Context, userID, projectID, id string) (*model.MCPConfig, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetMCPConfig(ctx, projectID, id)
	if err != nil {
		return nil, mapMCPConfigError(err)
	}
	return cfg, nil
}

func (s *MCPConfigService) checkProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.projects.GetProjectForUser(ctx, projectID, userID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

func (s *MCPConfigService) validateServerURL(ctx context.Context, serverURL string) error {
	if serverURL == "" {
		return invalid("server_url", "is required")
	}
	if len(serverURL) > maxServerURLLength {
		return invalid("server_url", "is too long")
	}
	if s.validator == nil {
		return nil
	}
	if err := s.validator.ValidateServerURL(ctx, serverURL); err != nil {
		return invalid("server_url", err.Error())
	}
	return nil
}

// setToken seals token into cfg, or clears the stored token when empty.
func (s *MCPConfigService) setToken(cfg *model.MCPConfig, token string) error {
	if token == "" {
		cfg.AuthTokenSealed = nil
		cfg.AuthTokenHint = ""
		return nil
	}
	sealed, err := s.sealer.Seal([]byte(token), []byte(cfg.ID))
	if err != nil {
		return fmt.Errorf("seal auth token: %w", err)
	}
	cfg.AuthTokenSealed = sealed
	cfg.AuthTokenHint = tokenHint(token)
	return nil
}

func (s *MCPConfigService) openToken(cfg *model.MCPConfig) (string, error) {
	if !cfg.HasAuthToken() {
		return "", nil
	}
	plain, err := s.sealer.Open(cfg.AuthTokenSealed, []byte(cfg.ID))
	if err != nil {
		return "", fmt.Errorf("open auth token: %w", err)
	}
	return string(plain), nil
}

func mapMCPConfigError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMCPConfigNotFound):
		return ErrMCPConfigNotFound
	case errors.Is(err, repository.ErrMCPConfigExists):
		return ErrMCPConfigExists
	case errors.Is(err, repository.ErrProjectNotFound):
		return ErrProjectNotFound
	default:
		return err
	}
}
