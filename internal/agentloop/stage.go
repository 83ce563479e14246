// Package agentloop derives the state of the generate, analyze, approve and
// execute cycle from the tool parts of a conversation's messages.
package agentloop

// Stage is the position of the loop in the code generation cycle.
type Stage string

// Loop stages.
const (
	StageIdle       Stage = "idle"
	StageGenerating Stage = "generating"
	StageAnalyzing  Stage = "analyzing"
	StageReviewing  Stage = "reviewing"
	StageExecuting  Stage = "executing"
	StageCompleted  Stage = "completed"
)

// Tool names recognised by the reducer, in cycle order.
const (
	ToolGenerateCode    = "generateCode"
	ToolAnalyzeCode     = "analyzeCode"
	ToolRequestApproval = "requestApproval"
	ToolExecuteCode     = "executeCode"
)

// Tool part lifecycle states.
const (
	PartStateInputStreaming  = "input-streaming"
	PartStateInputAvailable  = "input-available"
	PartStateOutputAvailable = "output-available"
	PartStateOutputError     = "output-error"
)

// ToolPartPrefix prefixes the type of every tool part.
const ToolPartPrefix = "tool-"

// toolOrder maps each loop tool to its position in the cycle.
var toolOrder = map[string]int{
	ToolGenerateCode:    0,
	ToolAnalyzeCode:     1,
	ToolRequestApproval: 2,
	ToolExecuteCode:     3,
}

// IsLoopTool reports whether name is one of the four loop tools.
func IsLoopTool(name string) bool {
	_, ok := toolOrder[name]
	return ok
}
