// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"

	"github.com/agentdesk/agentdesk/internal/auth"
)

// Service errors.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrUnauthenticated      = auth.ErrUnauthenticated
	ErrEmailTaken           = errors.New("email already registered")
	ErrUserNotFound         = errors.New("user not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrLastAccount          = errors.New("cannot remove the last linked account")
	ErrProjectNotFound      = errors.New("project not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDuplicateMessageID   = errors.New("message id already exists in conversation")
	ErrNotAwaitingApproval  = errors.New("agent loop is not awaiting approval")
	ErrMCPConfigNotFound    = errors.New("mcp config not found")
	ErrMCPConfigExists      = errors.New("mcp config name already used in project")
	ErrMCPUnreachable       = errors.New("mcp server unreachable")
)

// ValidationError describes a rejected input field.
// It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers test for ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
