package agentloop

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/agentdesk/agentdesk/internal/model"
)

// ErrNotAwaitingApproval is returned when a decision is submitted outside the reviewing stage.
var ErrNotAwaitingApproval = errors.New("loop is not awaiting approval")

// Decision is a user's answer to requestApproval.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// ApprovalMessage builds the assistant message that records a decision.
// The decision answers the pending requestApproval call when there is one;
// otherwise fallbackCallID identifies the new tool call.
func ApprovalMessage(st State, messageID, fallbackCallID string, d Decision, now time.Time) (model.Message, error) {
	if st.Stage != StageReviewing {
		return model.Message{}, ErrNotAwaitingApproval
	}

	callID := fallbackCallID
	if st.Approval != nil && st.Approval.ToolCallID != "" {
		callID = st.Approval.ToolCallID
	}

	output, err := json.Marshal(d)
	if err != nil {
		return model.Message{}, err
	}

	created := now.UTC()
	return model.Message{
		ID:   messageID,
		Role: model.RoleAssistant,
		Parts: []model.MessagePart{{
			Type:       ToolPartPrefix + ToolRequestApproval,
			ToolCallID: callID,
			State:      PartStateOutputAvailable,
			Output:     output,
		}},
		CreatedAt: &created,
	}, nil
}
