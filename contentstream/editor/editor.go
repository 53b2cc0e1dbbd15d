// Package editor rewrites page content so that glyphs and images covered by
// a set of regions are removed from the operator stream itself.
package editor

import (
	"context"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
)

// Region is a rectangle content is removed from. An ImagesOnly region
// leaves text in place.
type Region struct {
	Rect       coords.Rect
	ImagesOnly bool
}

// Regions indexes the rectangles content is removed from.
type Regions struct {
	regions []Region
	tree    *QuadTree
}

// NewRegions indexes rects as regions removing both text and images.
func NewRegions(rects []coords.Rect) *Regions {
	rs := make([]Region, len(rects))
	for i, r := range rects {
		rs[i] = Region{Rect: r}
	}
	return NewRegionSet(rs)
}

// NewRegionSet indexes rs, skipping empty rectangles.
func NewRegionSet(rs []Region) *Regions {
	r := &Regions{}
	var bounds coords.Rect
	for _, reg := range rs {
		reg.Rect = reg.Rect.Normalize()
		if reg.Rect.IsEmpty() {
			continue
		}
		r.regions = append(r.regions, reg)
		bounds = bounds.Union(reg.Rect)
	}
	r.tree = NewQuadTree(bounds, 8)
	for i, reg := range r.regions {
		r.tree.Insert(reg.Rect, i)
	}
	return r
}

func (r *Regions) Len() int { return len(r.regions) }

// hitTolerance absorbs rounding between adjacent glyph boxes, so a region
// built from the union of some glyphs does not clip their neighbours.
const hitTolerance = 1e-3

// Hit reports whether box overlaps a region that removes text.
func (r *Regions) Hit(box coords.Rect) bool {
	return r.hit(box, false)
}

// HitImage reports whether box overlaps any region.
func (r *Regions) HitImage(box coords.Rect) bool {
	return r.hit(box, true)
}

// hit tests for an overlap wider than hitTolerance in both axes. A box
// that is degenerate along an axis, such as a zero-advance glyph, hits
// when its midpoint lies strictly inside the region on that axis.
func (r *Regions) hit(box coords.Rect, images bool) bool {
	if len(r.regions) == 0 {
		return false
	}
	box = box.Normalize()
	query := coords.Rect{LLX: box.LLX - hitTolerance, LLY: box.LLY - hitTolerance, URX: box.URX + hitTolerance, URY: box.URY + hitTolerance}
	for _, i := range r.tree.Query(query) {
		reg := r.regions[i]
		if reg.ImagesOnly && !images {
			continue
		}
		if overlap(reg.Rect.LLX, reg.Rect.URX, box.LLX, box.URX) && overlap(reg.Rect.LLY, reg.Rect.URY, box.LLY, box.URY) {
			return true
		}
	}
	return false
}

func overlap(a0, a1, b0, b1 float64) bool {
	if b1-b0 <= hitTolerance {
		c := (b0 + b1) / 2
		return c > a0 && c < a1
	}
	return min(a1, b1)-max(a0, b0) > hitTolerance
}

// Options bounds the rewrite.
type Options struct {
	// MaxInlinePasses bounds how many levels of nested forms are inlined.
	MaxInlinePasses int
}

// Editor removes covered content from pages of one document.
type Editor struct {
	res    contentstream.Resolver
	interp *contentstream.Interpreter
	opts   Options
}

func New(res contentstream.Resolver, interp *contentstream.Interpreter, opts Options) *Editor {
	if opts.MaxInlinePasses <= 0 {
		opts.MaxInlinePasses = contentstream.DefaultMaxFormDepth
	}
	if interp == nil {
		interp = contentstream.NewInterpreter(res, contentstream.Options{})
	}
	return &Editor{res: res, interp: interp, opts: opts}
}

// Outcome is the rewritten content of one page.
type Outcome struct {
	Ops []contentstream.Op
	// Painted lists the XObject resource names still reachable from Ops.
	Painted       map[string]bool
	GlyphsRemoved int
	RunsRewritten int
	ImagesRemoved int
	FormsInlined  int
	// Unreached counts covered glyphs and images left in place because
	// their forms are nested deeper than MaxInlinePasses.
	Unreached   int
	Diagnostics []contentstream.Diagnostic
}

// Redact rewrites ops so that nothing covered by regions is painted.
// resources must be a private copy: inlined forms add entries to it.
func (e *Editor) Redact(ctx context.Context, page int, ops []contentstream.Op, resources *raw.DictObj, regions *Regions) (*Outcome, error) {
	out := &Outcome{}
	result := e.interp.Run(ctx, page, ops, resources)
	for pass := 0; pass < e.opts.MaxInlinePasses; pass++ {
		if result.Err != nil {
			return nil, result.Err
		}
		next, n, err := e.InlineForms(ctx, ops, result, resources, regions)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		out.FormsInlined += n
		ops = next
		result = e.interp.Run(ctx, page, ops, resources)
	}
	if result.Err != nil {
		return nil, result.Err
	}
	out.Diagnostics = result.Diagnostics

	ops, stats := removeCovered(ops, result, regions, e.namedScrubber(resources))
	out.Ops = ops
	out.GlyphsRemoved = stats.Glyphs
	out.RunsRewritten = stats.Runs
	out.ImagesRemoved = stats.Images
	out.Unreached = stats.Unreached
	out.Painted = e.PaintedXObjects(ops, resources)
	return out, nil
}

// namedScrubber rewrites named property lists of resources without their
// alternate text. The Properties category is copied into resources on
// first use.
func (e *Editor) namedScrubber(resources *raw.DictObj) scrubFunc {
	var props *raw.DictObj
	return func(name string) bool {
		if props == nil {
			d, ok := e.res.Resolve(entry(resources, "Properties")).(*raw.DictObj)
			if !ok {
				return false
			}
			props = d.Clone()
			resources.Set("Properties", props)
		}
		d, ok := e.res.Resolve(entry(props, name)).(*raw.DictObj)
		if !ok {
			return false
		}
		if hasAlternate(d) {
			props.Set(name, withoutAlternate(d))
		}
		return true
	}
}
