package mcpprobe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnreachable is returned when the MCP handshake or tool listing fails.
var ErrUnreachable = errors.New("mcp server unreachable")

// ClientName is reported to MCP servers during initialization.
const ClientName = "agentdesk"

// Tool describes a tool advertised by an MCP server.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Result is the outcome of a successful probe.
type Result struct {
	ServerName      string        `json:"server_name"`
	ServerVersion   string        `json:"server_version"`
	ProtocolVersion string        `json:"protocol_version"`
	Tools           []Tool        `json:"tools"`
	Latency         time.Duration `json:"-"`
	LatencyMS       int64         `json:"latency_ms"`
}

// Prober connects to MCP servers over streamable HTTP.
type Prober struct {
	validator  *Validator
	httpClient *http.Client
	timeout    time.Duration
	version    string
}

// NewProber creates a prober. timeout bounds the whole handshake.
func NewProber(timeout time.Duration, allowPrivate bool, version string) *Prober {
	return &Prober{
		validator:  NewValidator(allowPrivate),
		httpClient: NewHTTPClient(timeout, allowPrivate),
		timeout:    timeout,
		version:    version,
	}
}

// Validator returns the URL validator used before each probe.
func (p *Prober) Validator() *Validator {
	return p.validator
}

// Probe initializes an MCP session against serverURL and lists its tools.
// token, when non-empty, is sent as a bearer credential.
func (p *Prober) Probe(ctx context.Context, serverURL, token string) (*Result, error) {
	if err := p.validator.ValidateServerURL(ctx, serverURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	opts := []transport.StreamableHTTPCOption{
		transport.WithHTTPBasicClient(p.httpClient),
	}
	if token != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}))
	}

	start := time.Now()

	c, err := client.NewStreamableHttpClient(serverURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrUnreachable, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: p.version,
	}

	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize: %v", ErrUnreachable, err)
	}

	toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: list tools: %v", ErrUnreachable, err)
	}

	latency := time.Since(start)
	result := &Result{
		ServerName:      initResult.ServerInfo.Name,
		ServerVersion:   initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
		Tools:           make([]Tool, 0, len(toolsResult.Tools)),
		Latency:         latency,
		LatencyMS:       latency.Milliseconds(),
	}
	for _, tool := range toolsResult.Tools {
		result.Tools = append(result.Tools, Tool{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}

	return result, nil
}
