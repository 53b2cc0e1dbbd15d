// Package session keeps open documents behind handles and exposes the
// operations callers run against them. Every handle has its own lock:
// reads share it, redaction holds it exclusively.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/wudi/pdfredact/audit"
	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/parser"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/security"
	"github.com/wudi/pdfredact/writer"
)

var ErrUnknownHandle = errors.New("unknown document handle")

// Handle names an open document.
type Handle string

type Options struct {
	Limits      security.Limits
	Interpreter contentstream.Options
	Redact      redact.Options
	Writer      writer.Config
	// Journal receives a record of every applied redaction when set.
	Journal *audit.Journal
	Logger  observability.Logger
	// Tracer times open, search, redact, verify and save.
	Tracer observability.Tracer
}

func DefaultOptions() Options {
	return Options{
		Limits: security.DefaultLimits(),
		Redact: redact.DefaultOptions(),
		Writer: writer.DefaultConfig(),
	}
}

type document struct {
	mu          sync.RWMutex
	handle      Handle
	name        string
	fingerprint string
	doc         *raw.Document
	ext         *extractor.Extractor
}

// Manager is safe for concurrent use.
type Manager struct {
	opts   Options
	log    observability.Logger
	tracer observability.Tracer

	mu   sync.Mutex
	next int
	docs map[Handle]*document
}

func NewManager(opts Options) *Manager {
	opts.Limits = opts.Limits.Normalize()
	log := observability.OrNop(opts.Logger)
	if opts.Redact.Logger == nil {
		opts.Redact.Logger = log
	}
	if opts.Writer.Logger == nil {
		opts.Writer.Logger = log
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Manager{opts: opts, log: log, tracer: tracer, docs: make(map[Handle]*document)}
}

// traced runs fn inside a span named name.
func (m *Manager) traced(ctx context.Context, name string, h Handle, fn func(ctx context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, name)
	if h != "" {
		span.SetTag("handle", string(h))
	}
	err := fn(ctx)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	return err
}

// Open parses data and returns a handle to it. An empty password also
// opens encrypted documents whose user password is empty.
func (m *Manager) Open(ctx context.Context, data []byte, password string) (Handle, error) {
	return m.open(ctx, data, password, "")
}

// OpenFile reads and opens the file at path.
func (m *Manager) OpenFile(ctx context.Context, path, password string) (Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return m.open(ctx, data, password, filepath.Base(path))
}

func (m *Manager) open(ctx context.Context, data []byte, password, name string) (h Handle, err error) {
	err = m.traced(ctx, observability.SpanOpen, "", func(ctx context.Context) error {
		h, err = m.load(ctx, data, password, name)
		return err
	})
	return h, err
}

func (m *Manager) load(ctx context.Context, data []byte, password, name string) (Handle, error) {
	cfg := parser.Config{Password: password, Limits: m.opts.Limits, Logger: m.log}
	doc, err := parser.Open(ctx, data, cfg)
	if err != nil {
		return "", err
	}
	ext, err := extractor.New(doc, parser.NewStreamDecoder(doc, m.opts.Limits), extractor.Options{
		Interpreter: m.opts.Interpreter,
		Logger:      m.log,
	})
	if err != nil {
		return "", fmt.Errorf("read page tree: %w", err)
	}

	m.mu.Lock()
	m.next++
	h := Handle(fmt.Sprintf("doc-%d", m.next))
	m.docs[h] = &document{
		handle:      h,
		name:        name,
		fingerprint: audit.Fingerprint(data),
		doc:         doc,
		ext:         ext,
	}
	m.mu.Unlock()

	m.log.Info("document opened",
		observability.String("handle", string(h)),
		observability.Int(observability.MetricPageCount, ext.PageCount()),
		observability.Int(observability.MetricObjectCount, len(doc.Objects)),
		observability.Bool("encrypted", doc.Encrypted))
	return h, nil
}

// Close drops the document behind h.
func (m *Manager) Close(h Handle) error {
	m.mu.Lock()
	d, ok := m.docs[h]
	delete(m.docs, h)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	// Wait for running operations.
	d.mu.Lock()
	d.mu.Unlock()
	return nil
}

// Handles lists the open documents in opening order.
func (m *Manager) Handles() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.docs))
	for h := range m.docs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func (m *Manager) lookup(h Handle) (*document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return d, nil
}

// read runs fn under the shared lock of h.
func (m *Manager) read(h Handle, fn func(d *document) error) error {
	d, err := m.lookup(h)
	if err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(d)
}

// write runs fn under the exclusive lock of h.
func (m *Manager) write(h Handle, fn func(d *document) error) error {
	d, err := m.lookup(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d)
}
