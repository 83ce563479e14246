package model

import "time"

// MCPConfig is a per-project connection to an MCP server.
// The auth token is stored sealed; only a short hint is ever returned.
type MCPConfig struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	ServerURL       string    `json:"server_url"`
	AuthTokenSealed []byte    `json:"-"`
	AuthTokenHint   string    `json:"auth_token_hint,omitempty"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasAuthToken reports whether a token is stored for this config.
func (c *MCPConfig) HasAuthToken() bool {
	return len(c.AuthTokenSealed) > 0
}

// MCPTool is a tool advertised by an MCP server.
type MCPTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
