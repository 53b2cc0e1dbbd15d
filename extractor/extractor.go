// Package extractor turns interpreted page content into lines, blocks and
// page text, and summarizes the images and annotations of each page.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/ir/semantic"
	"github.com/wudi/pdfredact/observability"
)

// ErrPageRange is returned for a page index outside the document.
var ErrPageRange = errors.New("page index out of range")

type Options struct {
	Interpreter contentstream.Options
	Logger      observability.Logger
}

// Extractor memoizes page interpretation for one document. It is safe for
// concurrent use; Invalidate must be called after the page content or the
// page tree changes.
type Extractor struct {
	doc    *raw.Document
	res    contentstream.Resolver
	interp *contentstream.Interpreter
	log    observability.Logger

	mu    sync.Mutex
	pages []*semantic.Page
	cache map[int]*contentstream.Result
}

// New reads the page tree of doc. res decodes its streams.
func New(doc *raw.Document, res contentstream.Resolver, opts Options) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	pages, err := semantic.Pages(doc)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		doc:    doc,
		res:    res,
		interp: contentstream.NewInterpreter(res, opts.Interpreter),
		log:    observability.OrNop(opts.Logger),
		pages:  pages,
		cache:  make(map[int]*contentstream.Result),
	}, nil
}

func (e *Extractor) Document() *raw.Document                 { return e.doc }
func (e *Extractor) Resolver() contentstream.Resolver        { return e.res }
func (e *Extractor) Interpreter() *contentstream.Interpreter { return e.interp }

func (e *Extractor) PageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pages)
}

// Pages returns the current page list.
func (e *Extractor) Pages() []*semantic.Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*semantic.Page, len(e.pages))
	copy(out, e.pages)
	return out
}

// PageInfo returns page i.
func (e *Extractor) PageInfo(i int) (*semantic.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", i+1, len(e.pages), ErrPageRange)
	}
	return e.pages[i], nil
}

// Page interprets page i, or returns the memoized result.
func (e *Extractor) Page(ctx context.Context, i int) (*contentstream.Result, error) {
	page, err := e.PageInfo(i)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	r, ok := e.cache[i]
	e.mu.Unlock()
	if ok {
		return r, nil
	}
	r = e.interp.Page(ctx, page)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		e.log.Warn("page content unreadable", observability.Int("page", i+1), observability.Error("error", r.Err))
	} else if len(r.Diagnostics) > 0 {
		e.log.Debug("page interpreted with diagnostics",
			observability.Int("page", i+1), observability.Int("diagnostics", len(r.Diagnostics)))
	}
	e.mu.Lock()
	e.cache[i] = r
	e.mu.Unlock()
	return r, nil
}

// Lines interprets page i and groups its runs into lines.
func (e *Extractor) Lines(ctx context.Context, i int) ([]Line, *contentstream.Result, error) {
	r, err := e.Page(ctx, i)
	if err != nil {
		return nil, nil, err
	}
	return GroupLines(r.Page, r.Runs), r, nil
}

// Invalidate drops memoized results and rereads the page tree.
func (e *Extractor) Invalidate() error {
	pages, err := semantic.Pages(e.doc)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.pages = pages
	e.cache = make(map[int]*contentstream.Result)
	e.mu.Unlock()
	return nil
}
