package agentloop

import "encoding/json"

// Default values used when a tool payload omits a field or cannot be decoded.
const (
	DefaultLanguage = "plaintext"
	DefaultSeverity = "info"
	DefaultRisk     = "low"
)

// GeneratedCode is the output of generateCode.
type GeneratedCode struct {
	ToolCallID  string `json:"tool_call_id"`
	Code        string `json:"code"`
	Language    string `json:"language"`
	Filename    string `json:"filename,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// Issue is a single finding reported by analyzeCode.
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// Analysis is the output of analyzeCode.
type Analysis struct {
	ToolCallID  string   `json:"tool_call_id"`
	Summary     string   `json:"summary"`
	RiskLevel   string   `json:"risk_level"`
	Score       int      `json:"score"`
	Issues      []Issue  `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// Approval records the user's decision on requestApproval.
// Pending is true while the tool is waiting for a decision.
type Approval struct {
	ToolCallID string `json:"tool_call_id"`
	Pending    bool   `json:"pending"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason,omitempty"`
}

// Execution is the output of executeCode.
type Execution struct {
	ToolCallID string `json:"tool_call_id"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// ToolError is an output-error reported by a loop tool.
type ToolError struct {
	Tool       string `json:"tool"`
	ToolCallID string `json:"tool_call_id"`
	Message    string `json:"message"`
}

// Wire shapes accept both camelCase and snake_case keys. Pointer fields
// distinguish a missing value from a zero value.
type generateWire struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Filename    string `json:"filename"`
	Explanation string `json:"explanation"`
}

type issueWire struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

type analyzeWire struct {
	Summary      string      `json:"summary"`
	RiskLevel    string      `json:"riskLevel"`
	RiskLevelAlt string      `json:"risk_level"`
	Score        *int        `json:"score"`
	Issues       []issueWire `json:"issues"`
	Suggestions  []string    `json:"suggestions"`
}

type approvalWire struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason"`
}

type executeWire struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	Output        string `json:"output"`
	ExitCode      *int   `json:"exitCode"`
	ExitCodeAlt   *int   `json:"exit_code"`
	DurationMS    int64  `json:"durationMs"`
	DurationMSAlt int64  `json:"duration_ms"`
}

// decodeLenient unmarshals raw into dst and ignores malformed payloads,
// leaving dst at its zero value.
func decodeLenient(raw json.RawMessage, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func decodeGenerated(p partRecord) *GeneratedCode {
	var out, in generateWire
	decodeLenient(p.output, &out)
	decodeLenient(p.input, &in)

	language := firstNonEmpty(out.Language, in.Language, DefaultLanguage)
	filename := firstNonEmpty(out.Filename, in.Filename)

	return &GeneratedCode{
		ToolCallID:  p.toolCallID,
		Code:        out.Code,
		Language:    language,
		Filename:    filename,
		Explanation: out.Explanation,
	}
}

func decodeAnalysis(p partRecord) *Analysis {
	var w analyzeWire
	decodeLenient(p.output, &w)

	a := &Analysis{
		ToolCallID:  p.toolCallID,
		Summary:     w.Summary,
		RiskLevel:   firstNonEmpty(w.RiskLevel, w.RiskLevelAlt, DefaultRisk),
		Issues:      make([]Issue, 0, len(w.Issues)),
		Suggestions: w.Suggestions,
	}
	if w.Score != nil {
		a.Score = *w.Score
	}
	if a.Suggestions == nil {
		a.Suggestions = []string{}
	}
	for _, iw := range w.Issues {
		if iw.Message == "" {
			continue
		}
		a.Issues = append(a.Issues, Issue{
			Severity: firstNonEmpty(iw.Severity, DefaultSeverity),
			Message:  iw.Message,
			Line:     iw.Line,
		})
	}
	return a
}

func decodeApproval(p partRecord) *Approval {
	a := &Approval{ToolCallID: p.toolCallID}
	if p.state != PartStateOutputAvailable {
		a.Pending = p.state != PartStateOutputError
		return a
	}

	var w approvalWire
	decodeLenient(p.output, &w)
	if w.Approved == nil {
		// An output without a decision is still awaiting the user.
		a.Pending = true
		return a
	}
	a.Approved = *w.Approved
	a.Reason = w.Reason
	return a
}

func decodeExecution(p partRecord) *Execution {
	var w executeWire
	decodeLenient(p.output, &w)

	e := &Execution{
		ToolCallID: p.toolCallID,
		Stdout:     firstNonEmpty(w.Stdout, w.Output),
		Stderr:     w.Stderr,
		DurationMS: w.DurationMS,
	}
	if e.DurationMS == 0 {
		e.DurationMS = w.DurationMSAlt
	}
	switch {
	case w.ExitCode != nil:
		e.ExitCode = *w.ExitCode
	case w.ExitCodeAlt != nil:
		e.ExitCode = *w.ExitCodeAlt
	}
	e.Success = e.ExitCode == 0
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
