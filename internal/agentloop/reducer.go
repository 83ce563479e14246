package agentloop

import (
	"encoding/json"
	"strings"

	"github.com/agentdesk/agentdesk/internal/model"
)

// State is the derived view of the loop for a conversation.
type State struct {
	Stage     Stage          `json:"stage"`
	Generated *GeneratedCode `json:"generated,omitempty"`
	Analysis  *Analysis      `json:"analysis,omitempty"`
	Approval  *Approval      `json:"approval,omitempty"`
	Execution *Execution     `json:"execution,omitempty"`
	Errors    []ToolError    `json:"errors"`
	// ScannedMessages is the number of messages the reducer looked at.
	ScannedMessages int `json:"scanned_messages"`
}

// partRecord is the latest part seen for one tool.
type partRecord struct {
	toolCallID string
	state      string
	input      json.RawMessage
	output     json.RawMessage
	errorText  string
}

func (p *partRecord) hasOutput() bool {
	return p != nil && p.state == PartStateOutputAvailable
}

// Reduce scans messages once and returns the loop state.
//
// The latest part of each tool wins. A part for an earlier tool in the cycle
// starts a new cycle and discards what was recorded for later tools, so a
// regenerated snippet is analyzed and approved again before it runs.
func Reduce(messages []model.Message) State {
	var parts [len(cycle)]*partRecord

	for _, msg := range messages {
		for _, part := range msg.Parts {
			name, ok := ToolName(part.Type)
			if !ok {
				continue
			}
			idx := toolOrder[name]
			parts[idx] = &partRecord{
				toolCallID: part.ToolCallID,
				state:      part.State,
				input:      part.Input,
				output:     part.Output,
				errorText:  part.ErrorText,
			}
			for later := idx + 1; later < len(parts); later++ {
				parts[later] = nil
			}
		}
	}

	st := State{Errors: []ToolError{}, ScannedMessages: len(messages)}

	gen, analyze, approval, execute := parts[0], parts[1], parts[2], parts[3]
	if gen.hasOutput() {
		st.Generated = decodeGenerated(*gen)
	}
	if analyze.hasOutput() {
		st.Analysis = decodeAnalysis(*analyze)
	}
	if approval != nil {
		st.Approval = decodeApproval(*approval)
	}
	if execute.hasOutput() {
		st.Execution = decodeExecution(*execute)
	}

	for i, p := range parts {
		if p != nil && p.state == PartStateOutputError {
			st.Errors = append(st.Errors, ToolError{
				Tool:       cycle[i],
				ToolCallID: p.toolCallID,
				Message:    firstNonEmpty(p.errorText, "tool call failed"),
			})
		}
	}

	st.Stage = stageOf(parts)
	return st
}

// ReduceConversation reduces the messages after the conversation's reset point.
func ReduceConversation(conv *model.Conversation) State {
	return Reduce(VisibleMessages(conv.Messages, conv.LoopResetIndex))
}

// VisibleMessages returns the messages at or after resetIndex.
// Out of range indexes are clamped.
func VisibleMessages(messages []model.Message, resetIndex int) []model.Message {
	if resetIndex <= 0 {
		return messages
	}
	if resetIndex >= len(messages) {
		return nil
	}
	return messages[resetIndex:]
}

// ToolName extracts the loop tool name from a part type such as
// "tool-generateCode". ok is false for text parts and unknown tools.
func ToolName(partType string) (name string, ok bool) {
	name, found := strings.CutPrefix(partType, ToolPartPrefix)
	if !found || !IsLoopTool(name) {
		return "", false
	}
	return name, true
}

var cycle = [...]string{ToolGenerateCode, ToolAnalyzeCode, ToolRequestApproval, ToolExecuteCode}

func stageOf(parts [len(cycle)]*partRecord) Stage {
	gen, analyze, approval, execute := parts[0], parts[1], parts[2], parts[3]

	switch {
	case execute.hasOutput():
		return StageCompleted
	case execute != nil:
		return StageExecuting
	case approval.hasOutput():
		a := decodeApproval(*approval)
		switch {
		case a.Pending:
			return StageReviewing
		case a.Approved:
			return StageExecuting
		default:
			return StageIdle
		}
	case approval != nil:
		return StageReviewing
	case analyze.hasOutput():
		return StageReviewing
	case analyze != nil, gen.hasOutput():
		return StageAnalyzing
	case gen != nil:
		return StageGenerating
	default:
		return StageIdle
	}
}
