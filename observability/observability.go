package observability

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

func String(key, value string) Field             { return field{key, value} }
func Int(key string, value int) Field            { return field{key, value} }
func Int64(key string, value int64) Field        { return field{key, value} }
func Float64(key string, value float64) Field    { return field{key, value} }
func Bool(key string, value bool) Field          { return field{key, value} }
func Duration(key string, d time.Duration) Field { return field{key, d} }
func Error(key string, err error) Field          { return field{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// Tracer provides tracing hooks for long-running operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// LogTracer returns a tracer that logs each finished span with its duration.
func LogTracer(l Logger) Tracer { return logTracer{l: OrNop(l)} }

type logTracer struct{ l Logger }

func (t logTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &logSpan{l: t.l, name: name, start: time.Now()}
}

type logSpan struct {
	l      Logger
	name   string
	start  time.Time
	fields []Field
	err    error
}

func (s *logSpan) SetTag(key string, value interface{}) {
	s.fields = append(s.fields, field{key, value})
}
func (s *logSpan) SetError(err error) { s.err = err }
func (s *logSpan) Finish() {
	fields := append([]Field{String("span", s.name), Duration("elapsed", time.Since(s.start))}, s.fields...)
	if s.err != nil {
		s.l.Warn("span failed", append(fields, Error("error", s.err))...)
		return
	}
	s.l.Debug("span finished", fields...)
}

// Span names and metric field keys emitted by the library.
const (
	SpanOpen    = "pdf.open"
	SpanSearch  = "pdf.search"
	SpanRedact  = "pdf.redact"
	SpanWrite   = "pdf.write"
	SpanVerify  = "pdf.verify"
	SpanExtract = "pdf.extract"

	MetricObjectCount   = "pdf.objects.count"
	MetricPageCount     = "pdf.pages.count"
	MetricGlyphsRemoved = "pdf.redact.glyphs_removed"
	MetricImagesRemoved = "pdf.redact.images_removed"
)
