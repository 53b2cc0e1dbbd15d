package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wudi/pdfredact/writer"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
redact:
  fill: "#ff0000"
  caption_color: white
  caption: "[REMOVED]"
  caption_size: 9
search:
  timeout: 500ms
writer:
  filter: ascii85
  compression: 0
  deterministic: true
batch:
  concurrency: 8
audit:
  enabled: true
  path: /tmp/journal.db
limits:
  max_xref_depth: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.Timeout != 500*time.Millisecond || cfg.Batch.Concurrency != 8 {
		t.Errorf("search/batch = %+v %+v", cfg.Search, cfg.Batch)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("unset log level = %q, want default", cfg.Log.Level)
	}
	if got := cfg.AuditPath(); got != "/tmp/journal.db" {
		t.Errorf("AuditPath = %q", got)
	}
	if cfg.Style().Caption != "[REMOVED]" {
		t.Errorf("style = %+v", cfg.Style())
	}

	opts, err := cfg.SessionOptions()
	if err != nil {
		t.Fatalf("SessionOptions: %v", err)
	}
	if opts.Redact.Fill == nil || opts.Redact.Fill.R != 1 || opts.Redact.Fill.G != 0 {
		t.Errorf("fill = %+v", opts.Redact.Fill)
	}
	if opts.Redact.CaptionSize != 9 || opts.Redact.MinCaptionSize != 4 {
		t.Errorf("caption sizes = %v/%v", opts.Redact.CaptionSize, opts.Redact.MinCaptionSize)
	}
	if opts.Writer.ContentFilter != writer.FilterASCII85 || opts.Writer.Compression != 0 || !opts.Writer.Deterministic {
		t.Errorf("writer = %+v", opts.Writer)
	}
	if opts.Limits.MaxXRefDepth != 10 || opts.Writer.Limits.MaxXRefDepth != 10 {
		t.Errorf("limits = %+v", opts.Limits)
	}
	if opts.Limits.MaxXObjectDepth != 20 {
		t.Errorf("unset limit changed: %+v", opts.Limits)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("Load error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	neg := -2
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"negative concurrency", func(c *Config) { c.Batch.Concurrency = -1 }},
		{"bad color", func(c *Config) { c.Redact.Fill = "chartreuse-ish" }},
		{"bad filter", func(c *Config) { c.Writer.Filter = "jbig2" }},
		{"bad compression", func(c *Config) { c.Writer.Compression = &neg }},
		{"caption sizes", func(c *Config) { c.Redact.CaptionSize, c.Redact.MinCaptionSize = 6, 8 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mod(c)
			if err := c.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if Default().AuditPath() != "" {
		t.Error("audit enabled by default")
	}
}
