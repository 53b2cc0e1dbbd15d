// Package redact removes text and images under marked areas from pages,
// paints fills and captions over them and purges the page residue that
// could still carry the removed content.
package redact

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/contentstream/editor"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/fonts"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/search"
)

// DefaultImageCaption is written over images removed by MarkImages.
const DefaultImageCaption = "[IMAGE REDACTED]"

// Spec is one area to redact on a 0-based page, in default user space.
type Spec struct {
	Page int
	Rect coords.Rect
	// Fill and CaptionColor override the engine defaults when set.
	Fill         *Color
	Caption      string
	CaptionColor *Color
	// ImagesOnly removes the images under Rect and leaves text alone.
	ImagesOnly bool
}

// Style is the appearance shared by specs built from search matches.
type Style struct {
	Fill         *Color
	Caption      string
	CaptionColor *Color
}

// Spec returns a spec for rect on page with this style.
func (s Style) Spec(page int, rect coords.Rect) Spec {
	return Spec{Page: page, Rect: rect, Fill: s.Fill, Caption: s.Caption, CaptionColor: s.CaptionColor}
}

// FromMatches returns one spec per line rectangle of each match.
func FromMatches(matches []search.Match, style Style) []Spec {
	var out []Spec
	for _, m := range matches {
		for _, r := range m.Rects {
			out = append(out, style.Spec(m.Page, r))
		}
	}
	return out
}

type Options struct {
	// Fill defaults to black, CaptionColor to white.
	Fill         *Color
	CaptionColor *Color
	// CaptionSize is the largest caption font size; captions shrink in
	// half-point steps down to MinCaptionSize to fit their area.
	CaptionSize    float64
	MinCaptionSize float64
	// Font renders captions; Go Regular when nil.
	Font   *fonts.Embedded
	Editor editor.Options
	Logger observability.Logger
}

func DefaultOptions() Options {
	return Options{CaptionSize: 11, MinCaptionSize: 4}
}

type mark struct {
	index int
	spec  Spec
}

// Engine marks areas of one document and applies them in one pass per
// page. It is not safe for concurrent use.
type Engine struct {
	ext  *extractor.Extractor
	doc  *raw.Document
	ed   *editor.Editor
	opts Options
	log  observability.Logger

	next     int
	marks    map[int][]mark
	rejected []Item
}

// NewEngine returns an engine editing the document behind ext.
func NewEngine(ext *extractor.Extractor, opts Options) *Engine {
	def := DefaultOptions()
	if opts.CaptionSize <= 0 {
		opts.CaptionSize = def.CaptionSize
	}
	if opts.MinCaptionSize <= 0 || opts.MinCaptionSize > opts.CaptionSize {
		opts.MinCaptionSize = min(def.MinCaptionSize, opts.CaptionSize)
	}
	return &Engine{
		ext:   ext,
		doc:   ext.Document(),
		ed:    editor.New(ext.Resolver(), ext.Interpreter(), opts.Editor),
		opts:  opts,
		log:   observability.OrNop(opts.Logger),
		marks: make(map[int][]mark),
	}
}

// Pending returns the number of marked specs not yet applied.
func (e *Engine) Pending() int {
	n := 0
	for _, ms := range e.marks {
		n += len(ms)
	}
	return n
}

// Mark records specs against their pages without touching content. Specs
// with a zero-area rectangle or a page outside the document are rejected;
// the rejections are returned and reported again by Apply.
func (e *Engine) Mark(specs ...Spec) error {
	var errs []error
	count := e.ext.PageCount()
	for _, s := range specs {
		s.Rect = s.Rect.Normalize()
		switch {
		case s.Page < 0 || s.Page >= count:
			errs = append(errs, e.reject(KindOutOfRange, s, fmt.Errorf("document has %d pages", count)))
		case s.Rect.IsEmpty():
			errs = append(errs, e.reject(KindEmptySpec, s, nil))
		default:
			e.marks[s.Page] = append(e.marks[s.Page], mark{index: e.next, spec: s})
			e.next++
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) reject(kind ErrorKind, s Spec, cause error) *RedactError {
	rerr := &RedactError{Kind: kind, Index: e.next, Page: s.Page, Err: cause}
	e.rejected = append(e.rejected, Item{Index: e.next, Page: s.Page, Rect: s.Rect, Err: rerr})
	e.next++
	return rerr
}

// MarkImages marks every image painted on the given pages for removal. The
// caption defaults to DefaultImageCaption. It returns the number of images
// marked.
func (e *Engine) MarkImages(ctx context.Context, style Style, pages ...int) (int, error) {
	if style.Caption == "" {
		style.Caption = DefaultImageCaption
	}
	n := 0
	var errs []error
	for _, p := range pages {
		imgs, err := e.ext.Images(ctx, p)
		if errors.Is(err, extractor.ErrPageRange) {
			errs = append(errs, e.reject(KindOutOfRange, Spec{Page: p}, err))
			continue
		}
		if err != nil {
			return n, err
		}
		for _, img := range imgs {
			if img.Rect.IsEmpty() {
				continue
			}
			spec := style.Spec(p, img.Rect)
			spec.ImagesOnly = true
			if err := e.Mark(spec); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
	}
	return n, errors.Join(errs...)
}

// Apply rewrites every marked page. Failures of individual specs are
// collected in the report; the returned error is reserved for
// cancellation and for failures that affect the whole document.
func (e *Engine) Apply(ctx context.Context) (*Report, error) {
	rep := &Report{Items: append([]Item(nil), e.rejected...)}
	pages := make([]int, 0, len(e.marks))
	for p := range e.marks {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	captions, err := e.prepareCaptions()
	if err != nil {
		return nil, err
	}

	changed := make(map[int]bool)
	purged := make(map[raw.ObjectRef]bool)
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		marks := e.marks[p]
		pr, err := e.applyPage(ctx, p, marks, captions)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.log.Warn("page not redacted", observability.Int("page", p+1), observability.Error("error", err))
			for _, m := range marks {
				rep.Items = append(rep.Items, Item{Index: m.index, Page: p, Rect: m.spec.Rect,
					Err: &RedactError{Kind: KindContentUnavailable, Index: m.index, Page: p, Err: err}})
			}
			continue
		}
		changed[p] = true
		for _, ref := range pr.purgedRefs {
			purged[ref] = true
		}
		rep.Pages = append(rep.Pages, pr)
		for _, m := range marks {
			rep.Items = append(rep.Items, Item{Index: m.index, Page: p, Rect: m.spec.Rect, Applied: true})
		}
		e.log.Info("page redacted",
			observability.Int("page", p+1),
			observability.Int("areas", len(marks)),
			observability.Int("glyphs", pr.GlyphsRemoved),
			observability.Int("images", pr.ImagesRemoved),
			observability.Int("annotations", pr.AnnotationsRemoved))
	}
	sort.Slice(rep.Items, func(i, j int) bool { return rep.Items[i].Index < rep.Items[j].Index })

	e.marks = make(map[int][]mark)
	e.rejected = nil
	if len(changed) > 0 {
		if n := e.purgeShared(ctx, purged, changed); n > 0 {
			e.log.Debug("purged shared XObject entries", observability.Int("entries", n))
		}
		e.doc.Redacted = true
		if err := e.ext.Invalidate(); err != nil {
			return rep, fmt.Errorf("reload pages: %w", err)
		}
	}
	return rep, nil
}

func (e *Engine) applyPage(ctx context.Context, p int, marks []mark, captions *captionFont) (PageReport, error) {
	pr := PageReport{Page: p, Specs: len(marks)}
	page, err := e.ext.PageInfo(p)
	if err != nil {
		return pr, err
	}
	res := e.ext.Resolver()
	content, err := contentstream.PageContent(ctx, res, page)
	if err != nil {
		return pr, err
	}
	ops, err := contentstream.Parse(content)
	if err != nil {
		return pr, err
	}

	regions := make([]editor.Region, len(marks))
	rects := make([]coords.Rect, len(marks))
	for i, m := range marks {
		regions[i] = editor.Region{Rect: m.spec.Rect, ImagesOnly: m.spec.ImagesOnly}
		rects[i] = m.spec.Rect
	}
	resources := page.Resources.Clone()
	if resources == nil {
		resources = raw.Dict()
	}
	out, err := e.ed.Redact(ctx, p, ops, resources, editor.NewRegionSet(regions))
	if err != nil {
		return pr, err
	}
	if out.Unreached > 0 {
		return pr, fmt.Errorf("%d covered items are painted by forms nested too deeply to rewrite", out.Unreached)
	}
	pr.GlyphsRemoved = out.GlyphsRemoved
	pr.RunsRewritten = out.RunsRewritten
	pr.ImagesRemoved = out.ImagesRemoved
	pr.FormsInlined = out.FormsInlined
	pr.Diagnostics = len(out.Diagnostics)

	final := make([]contentstream.Op, 0, len(out.Ops)+8*len(marks)+2)
	final = append(final, contentstream.NewOp("q"))
	final = append(final, out.Ops...)
	for d := openSaves(out.Ops); d >= 0; d-- {
		final = append(final, contentstream.NewOp("Q"))
	}
	overlay, err := e.overlay(marks, resources, captions)
	if err != nil {
		return pr, err
	}
	final = append(final, overlay...)

	stm := raw.NewStream(raw.Dict(), nil)
	stm.SetData(contentstream.Serialize(final))
	ref := e.doc.Add(stm)
	page.Dict.Set("Contents", raw.Ref(ref.Num, ref.Gen))

	pr.XObjectsRemoved, pr.purgedRefs = purgeXObjects(res, resources, editor.Unpainted(resources, res, out.Painted))
	page.Dict.Set("Resources", resources)
	pr.ThumbnailRemoved = purgePageResidue(page.Dict)
	pr.AnnotationsRemoved = purgeAnnotations(e.doc, page, rects)
	e.doc.MarkDirty(page.Ref)
	return pr, nil
}

// openSaves counts the q operators left open at the end of ops.
func openSaves(ops []contentstream.Op) int {
	depth := 0
	for _, op := range ops {
		switch op.Kind {
		case contentstream.OpSave:
			depth++
		case contentstream.OpRestore:
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}

func (e *Engine) fill(s Spec) Color {
	switch {
	case s.Fill != nil:
		return s.Fill.Clamp()
	case e.opts.Fill != nil:
		return e.opts.Fill.Clamp()
	}
	return Black
}

func (e *Engine) captionColor(s Spec) Color {
	switch {
	case s.CaptionColor != nil:
		return s.CaptionColor.Clamp()
	case e.opts.CaptionColor != nil:
		return e.opts.CaptionColor.Clamp()
	}
	return White
}
