package model

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is a chat thread inside a project.
// Messages are stored as a single JSON document.
type Conversation struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	MessageCount   int       `json:"message_count"`
	LoopResetIndex int       `json:"loop_reset_index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is a single chat message made of typed parts.
type Message struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Parts     []MessagePart `json:"parts"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
}

// MessagePart is either text or a tool invocation.
// Tool parts use Type "tool-<name>" and carry a lifecycle State.
type MessagePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// IsValidRole reports whether role is a known message role.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}
