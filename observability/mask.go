package observability

import (
	"context"
	"log/slog"
	"strings"
)

// MaskValue replaces attribute values that may carry document content.
const MaskValue = "***REDACTED***"

// sensitiveKeys name attributes that can contain document text, search
// terms or secrets. Redacted content must never end up in a log file.
var sensitiveKeys = map[string]bool{
	"text":     true,
	"query":    true,
	"term":     true,
	"terms":    true,
	"pattern":  true,
	"match":    true,
	"caption":  true,
	"password": true,
	"passwd":   true,
	"content":  true,
}

var sensitiveKeywords = []string{"password", "secret", "token", "text", "term"}

// MaskingHandler wraps a slog.Handler and masks sensitive attributes.
type MaskingHandler struct {
	handler slog.Handler
}

func NewMaskingHandler(handler slog.Handler) *MaskingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &MaskingHandler{handler: handler}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = maskAttr(a)
	}
	return &MaskingHandler{handler: h.handler.WithAttrs(out)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{handler: h.handler.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, g := range group {
			out[i] = maskAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}
