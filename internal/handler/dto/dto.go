// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"
	"time"

	"github.com/agentdesk/agentdesk/internal/agentloop"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

// SuccessResponse is returned by endpoints without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// RegisterRequest represents the request body for creating an account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// SignInRequest represents the request body for signing in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes an active session.
// Token is only set when a session is created.
type SessionResponse struct {
	Success   bool        `json:"success"`
	User      *model.User `json:"user"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// UpdateProfileRequest represents the request body for updating a profile.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Image *string `json:"image,omitempty"`
}

// UserResponse wraps a user.
type UserResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

// AccountsResponse lists linked accounts.
type AccountsResponse struct {
	Success  bool             `json:"success"`
	Accounts []*model.Account `json:"accounts"`
}

// ActivityResponse lists activity events.
type ActivityResponse struct {
	Success bool                   `json:"success"`
	Events  []*model.ActivityEvent `json:"events"`
}

// MetadataRequest represents project metadata in requests.
type MetadataRequest struct {
	Framework string          `json:"framework,omitempty"`
	Template  string          `json:"template,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Metadata    *MetadataRequest `json:"metadata,omitempty"`
}

// UpdateProjectRequest represents the request body for updating a project.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ProjectResponse wraps a project.
type ProjectResponse struct {
	Success bool           `json:"success"`
	Project *model.Project `json:"project"`
}

// ProjectsResponse lists projects.
type ProjectsResponse struct {
	Success  bool             `json:"success"`
	Projects []*model.Project `json:"projects"`
}

// MetadataResponse wraps project metadata.
type MetadataResponse struct {
	Success  bool                   `json:"success"`
	Metadata *model.ProjectMetadata `json:"metadata"`
}

// CreateConversationRequest represents the request body for starting a conversation.
type CreateConversationRequest struct {
	Title    string          `json:"title,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
}

// AppendMessagesRequest represents the request body for appending messages.
type AppendMessagesRequest struct {
	Messages []model.Message `json:"messages"`
}

// ConversationResponse wraps a conversation.
type ConversationResponse struct {
	Success      bool                `json:"success"`
	Conversation *model.Conversation `json:"conversation"`
}

// ConversationsResponse lists conversation summaries.
type ConversationsResponse struct {
	Success       bool                  `json:"success"`
	Conversations []*model.Conversation `json:"conversations"`
}

// ApproveLoopRequest carries the user's decision on a pending approval.
type ApproveLoopRequest struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// LoopResponse describes the agent loop of a conversation.
type LoopResponse struct {
	Success        bool            `json:"success"`
	ConversationID string          `json:"conversation_id"`
	ResetIndex     int             `json:"reset_index"`
	MessageCount   int             `json:"message_count"`
	Loop           agentloop.State `json:"loop"`
}

// CreateMCPConfigRequest represents the request body for adding an MCP server.
type CreateMCPConfigRequest struct {
	Name      string `json:"name"`
	ServerURL string `json:"server_url"`
	AuthToken string `json:"auth_token,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// UpdateMCPConfigRequest represents the request body for changing an MCP server.
type UpdateMCPConfigRequest struct {
	Name      *string `json:"name,omitempty"`
	ServerURL *string `json:"server_url,omitempty"`
	AuthToken *string `json:"auth_token,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// MCPConfig is an MCP config as exposed by the API. The auth token itself
// is never returned.
type MCPConfig struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Name          string    `json:"name"`
	ServerURL     string    `json:"server_url"`
	HasAuthToken  bool      `json:"has_auth_token"`
	AuthTokenHint string    `json:"auth_token_hint,omitempty"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MCPConfigResponse wraps an MCP config.
type MCPConfigResponse struct {
	Success bool       `json:"success"`
	Config  *MCPConfig `json:"config"`
}

// MCPConfigsResponse lists MCP configs.
type MCPConfigsResponse struct {
	Success bool         `json:"success"`
	Configs []*MCPConfig `json:"configs"`
}

// ProbeResponse reports the outcome of an MCP handshake.
type ProbeResponse struct {
	Success bool             `json:"success"`
	Probe   *mcpprobe.Result `json:"probe"`
}

// ToMCPConfig converts an MCPConfig model to its API representation.
func ToMCPConfig(cfg *model.MCPConfig) *MCPConfig {
	return &MCPConfig{
		ID:            cfg.ID,
		ProjectID:     cfg.ProjectID,
		Name:          cfg.Name,
		ServerURL:     cfg.ServerURL,
		HasAuthToken:  cfg.HasAuthToken(),
		AuthTokenHint: cfg.AuthTokenHint,
		Enabled:       cfg.Enabled,
		CreatedAt:     cfg.CreatedAt,
		UpdatedAt:     cfg.UpdatedAt,
	}
}

// ToMCPConfigs converts a list of MCPConfig models.
func ToMCPConfigs(cfgs []*model.MCPConfig) []*MCPConfig {
	out := make([]*MCPConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, ToMCPConfig(cfg))
	}
	return out
}
