package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.With(String("doc", "a.pdf")).Info("opened", Int("pages", 3), Error("cause", errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"msg=opened", "doc=a.pdf", "pages=3", "cause=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestMaskingHandler(t *testing.T) {
	tests := []struct {
		key      string
		value    string
		wantMask bool
	}{
		{"query", "jane@example.com", true},
		{"Term", "555-0100", true},
		{"matched_text", "secret stuff", true},
		{"password", "hunter2", true},
		{"caption", "[REDACTED]", true},
		{"page", "1", false},
		{"component", "xref", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))
			logger.Info("event", tt.key, tt.value)
			out := buf.String()
			masked := strings.Contains(out, MaskValue)
			if masked != tt.wantMask {
				t.Fatalf("key %q: masked=%v, want %v (%s)", tt.key, masked, tt.wantMask, out)
			}
			if tt.wantMask && strings.Contains(out, tt.value) {
				t.Fatalf("value leaked into log: %s", out)
			}
		})
	}
}

func TestMaskingHandlerGroupsAndWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))
	logger.With("text", "leak").Info("event", slog.Group("req", slog.String("query", "leak2"), slog.Int("page", 2)))
	out := buf.String()
	if strings.Contains(out, "leak") {
		t.Fatalf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "req.page=2") {
		t.Fatalf("non-sensitive group attribute lost: %s", out)
	}
}

func TestLogTracerLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	tr := LogTracer(NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	_, span := tr.StartSpan(context.Background(), SpanWrite)
	span.SetTag("objects", 12)
	span.SetError(errors.New("disk full"))
	span.Finish()
	out := buf.String()
	if !strings.Contains(out, "span=pdf.write") || !strings.Contains(out, "disk full") {
		t.Fatalf("unexpected span log: %s", out)
	}
}

func TestNewMaskedLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewMaskedLogger(&buf, "warn", true)
	if err != nil {
		t.Fatalf("NewMaskedLogger: %v", err)
	}
	l.Info("dropped")
	l.Warn("kept", String("query", "jane@example.com"), Int("page", 2))
	out := buf.String()
	if strings.Contains(out, "dropped") || strings.Contains(out, "jane") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, `"page":2`) || !strings.Contains(out, MaskValue) {
		t.Errorf("output = %s", out)
	}
	if _, err := NewMaskedLogger(&buf, "loud", false); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
