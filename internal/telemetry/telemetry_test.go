package telemetry

import (
	"context"
	"testing"
)

func TestInit_WithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{
		ServiceName: "agentdesk-test",
		Version:     "test",
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	_, span := Tracer().Start(context.Background(), "test-span")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected a valid span context from the SDK provider")
	}
}

func TestExporterOptions(t *testing.T) {
	t.Parallel()

	if got := len(exporterOptions("collector:4317")); got != 2 {
		t.Errorf("bare endpoint options = %d, want 2", got)
	}
	if got := len(exporterOptions("https://collector.example.com:4317")); got != 1 {
		t.Errorf("url endpoint options = %d, want 1", got)
	}
}
