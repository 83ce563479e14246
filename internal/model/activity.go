package model

import (
	"encoding/json"
	"time"
)

// Activity actions.
const (
	ActionProfileUpdated      = "profile.updated"
	ActionProjectCreated      = "project.created"
	ActionProjectUpdated      = "project.updated"
	ActionProjectDeleted      = "project.deleted"
	ActionConversationCreated = "conversation.created"
	ActionConversationDeleted = "conversation.deleted"
	ActionLoopApproved        = "loop.approved"
	ActionLoopRejected        = "loop.rejected"
	ActionLoopReset           = "loop.reset"
	ActionMCPConfigCreated    = "mcp_config.created"
	ActionMCPConfigUpdated    = "mcp_config.updated"
	ActionMCPConfigDeleted    = "mcp_config.deleted"
	ActionSessionCreated      = "session.created"
)

// ActivityEvent is a persisted audit record of a user mutation.
type ActivityEvent struct {
	ID         string          `json:"id"`
	EventID    string          `json:"-"` // Redis stream ID, idempotency key
	UserID     string          `json:"user_id"`
	ProjectID  string          `json:"project_id,omitempty"`
	Action     string          `json:"action"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
