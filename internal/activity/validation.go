package activity

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxIDLength     = 64
	maxActionLength = 64
	maxDetailLength = 4096
)

// ValidateEvent validates activity event fields.
func ValidateEvent(event Event) error {
	if event.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(event.UserID) > maxIDLength {
		return fmt.Errorf("user_id too long")
	}
	if len(event.ProjectID) > maxIDLength {
		return fmt.Errorf("project_id too long")
	}
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if len(event.Action) > maxActionLength || !strings.Contains(event.Action, ".") {
		return fmt.Errorf("action must look like <entity>.<verb>")
	}
	if event.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	if len(event.Detail) > maxDetailLength {
		return fmt.Errorf("detail too long")
	}
	if len(event.Detail) > 0 && !json.Valid(event.Detail) {
		return fmt.Errorf("detail must be valid JSON")
	}
	return nil
}
