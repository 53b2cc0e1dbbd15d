// Package semantic resolves the page tree of a raw document into pages with
// their inherited attributes applied.
package semantic

import (
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
)

// Letter is used when neither the page nor an ancestor carries a MediaBox.
var Letter = coords.Rect{LLX: 0, LLY: 0, URX: 612, URY: 792}

// Page is a leaf of the page tree.
type Page struct {
	Index    int // 0-based
	Ref      raw.ObjectRef
	Dict     *raw.DictObj
	MediaBox coords.Rect
	CropBox  coords.Rect
	Rotate   int // degrees: 0/90/180/270

	// Resources is the effective resource dictionary, possibly inherited
	// from an ancestor and shared with other pages. Never nil.
	Resources *raw.DictObj
	// Inherited reports whether Resources came from an ancestor.
	Inherited bool

	// Contents lists the content streams in paint order.
	Contents []raw.ObjectRef
}

// Size returns the displayed width and height, honouring /Rotate.
func (p *Page) Size() (float64, float64) {
	box := p.CropBox
	w, h := box.Width(), box.Height()
	if p.Rotate%180 != 0 {
		return h, w
	}
	return w, h
}

// Annotations returns the page's annotation dictionaries and their ids
// (zero ObjectRef for direct annotations).
func (p *Page) Annotations(doc *raw.Document) []Annotation {
	arr, ok := doc.Array(entry(p.Dict, "Annots"))
	if !ok {
		return nil
	}
	out := make([]Annotation, 0, arr.Len())
	for i, item := range arr.Items {
		d, ok := doc.Dict(item)
		if !ok {
			continue
		}
		a := Annotation{Index: i, Dict: d, Subtype: d.Name("Subtype")}
		if ref, ok := item.(raw.RefObj); ok {
			a.Ref = ref.R
		}
		if r, ok := RectFromObj(doc, entry(d, "Rect")); ok {
			a.Rect = r
		}
		out = append(out, a)
	}
	return out
}

// Annotation is one entry of a page's /Annots array.
type Annotation struct {
	Index   int // position in /Annots
	Ref     raw.ObjectRef
	Dict    *raw.DictObj
	Subtype string
	Rect    coords.Rect
}

func entry(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return raw.NullObj{}
	}
	if o, ok := d.Get(key); ok {
		return o
	}
	return raw.NullObj{}
}
