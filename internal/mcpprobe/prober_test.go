package mcpprobe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newTestMCPServer(t *testing.T, wantToken string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	s := server.NewMCPServer("fixture-server", "1.2.3", server.WithToolCapabilities(true))
	s.AddTool(
		mcp.NewTool("run_tests", mcp.WithDescription("Run the project's test suite")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	)

	var unauthorized atomic.Int32
	streamable := server.NewStreamableHTTPServer(s)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			unauthorized.Add(1)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		streamable.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	return ts, &unauthorized
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ts, unauthorized := newTestMCPServer(t, "s3cret-token")
	p := NewProber(5*time.Second, true, "test")

	result, err := p.Probe(context.Background(), ts.URL+"/mcp", "s3cret-token")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if unauthorized.Load() != 0 {
		t.Errorf("server saw %d requests without the bearer token", unauthorized.Load())
	}
	if result.ServerName != "fixture-server" || result.ServerVersion != "1.2.3" {
		t.Errorf("server info = %s %s", result.ServerName, result.ServerVersion)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "run_tests" {
		t.Fatalf("tools = %+v", result.Tools)
	}
	if result.Tools[0].Description == "" {
		t.Error("expected tool description")
	}
}

func TestProbe_WrongToken(t *testing.T) {
	t.Parallel()

	ts, _ := newTestMCPServer(t, "expected")
	p := NewProber(5*time.Second, true, "test")

	_, err := p.Probe(context.Background(), ts.URL+"/mcp", "wrong")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/mcp"
	ts.Close()

	p := NewProber(2*time.Second, true, "test")
	if _, err := p.Probe(context.Background(), url, ""); !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestProbe_RejectsPrivateHost(t *testing.T) {
	t.Parallel()

	ts, _ := newTestMCPServer(t, "")
	p := NewProber(2*time.Second, false, "test")

	_, err := p.Probe(context.Background(), ts.URL+"/mcp", "")
	if !errors.Is(err, ErrInvalidScheme) {
		t.Errorf("expected ErrInvalidScheme for plain-HTTP loopback server, got %v", err)
	}
}
