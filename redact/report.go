package redact

import (
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
)

// Item is the outcome of one spec.
type Item struct {
	Index   int
	Page    int
	Rect    coords.Rect
	Applied bool
	Err     *RedactError
}

// PageReport summarizes the rewrite of one page.
type PageReport struct {
	Page               int
	Specs              int
	GlyphsRemoved      int
	RunsRewritten      int
	ImagesRemoved      int
	FormsInlined       int
	AnnotationsRemoved int
	XObjectsRemoved    []string
	ThumbnailRemoved   bool
	Diagnostics        int

	purgedRefs []raw.ObjectRef
}

// Report is the result of Apply. Items are in marking order.
type Report struct {
	Items []Item
	Pages []PageReport
}

// Applied counts the specs that were applied.
func (r *Report) Applied() int {
	n := 0
	for _, it := range r.Items {
		if it.Applied {
			n++
		}
	}
	return n
}

// Failures returns the errors of the specs that were not applied.
func (r *Report) Failures() []*RedactError {
	var out []*RedactError
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it.Err)
		}
	}
	return out
}

// Totals sums the page reports.
func (r *Report) Totals() PageReport {
	t := PageReport{Page: -1}
	for _, p := range r.Pages {
		t.Specs += p.Specs
		t.GlyphsRemoved += p.GlyphsRemoved
		t.RunsRewritten += p.RunsRewritten
		t.ImagesRemoved += p.ImagesRemoved
		t.FormsInlined += p.FormsInlined
		t.AnnotationsRemoved += p.AnnotationsRemoved
		t.XObjectsRemoved = append(t.XObjectsRemoved, p.XObjectsRemoved...)
		if p.ThumbnailRemoved {
			t.ThumbnailRemoved = true
		}
		t.Diagnostics += p.Diagnostics
	}
	return t
}
