// Package logging builds the process logger and scrubs secrets from
// connection strings before they reach a log line.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// New returns a slog logger writing JSON (format "json") or text to w.
// Records logged with a context that carries a sampled span get trace_id and
// span_id attributes unless the caller set trace_id itself.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(traceHandler{h})
}

// ParseLevel accepts slog level names ("debug", "WARN", "error+2").
// Anything else yields info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsSampled() && !hasAttr(r, "trace_id") {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

// RedactURL drops the password from a connection URL, keeping the user name.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if u.User == nil {
		return u.String()
	}
	if name := u.User.Username(); name != "" {
		u.User = url.User(name)
	} else {
		u.User = url.User("redacted")
	}
	return u.String()
}

var inlinePassword = regexp.MustCompile(`(?i)\b(password|pass|pwd)=\S+`)

// SanitizeError renders err with each connection string in secrets replaced by
// its redacted form and inline password=... pairs masked.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, RedactURL(s))
		}
	}
	return inlinePassword.ReplaceAllString(msg, "${1}=redacted")
}
