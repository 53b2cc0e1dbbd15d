package semantic

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
)

// MaxTreeDepth bounds the nesting of /Pages nodes.
const MaxTreeDepth = 64

var (
	ErrNoPageTree = errors.New("catalog has no page tree")
	ErrPageCycle  = errors.New("page tree contains a cycle")
)

type inheritedPageProps struct {
	MediaBox  *coords.Rect
	CropBox   *coords.Rect
	Rotate    *int
	Resources raw.Object
}

// Pages flattens the page tree of doc in document order.
func Pages(doc *raw.Document) ([]*Page, error) {
	cat, ok := doc.Catalog()
	if !ok {
		return nil, ErrNoPageTree
	}
	root, ok := cat.Get("Pages")
	if !ok {
		return nil, ErrNoPageTree
	}
	w := &treeWalker{doc: doc, seen: make(map[raw.ObjectRef]bool)}
	if err := w.parsePages(root, inheritedPageProps{}, 0); err != nil {
		return nil, err
	}
	return w.pages, nil
}

type treeWalker struct {
	doc   *raw.Document
	seen  map[raw.ObjectRef]bool
	pages []*Page
}

// parsePages traverses the page tree and appends every leaf to w.pages.
func (w *treeWalker) parsePages(obj raw.Object, inherited inheritedPageProps, depth int) error {
	if depth > MaxTreeDepth {
		return fmt.Errorf("page tree deeper than %d", MaxTreeDepth)
	}
	var ref raw.ObjectRef
	if r, ok := obj.(raw.RefObj); ok {
		ref = r.R
		if w.seen[ref] {
			return fmt.Errorf("%w at %s", ErrPageCycle, ref)
		}
		w.seen[ref] = true
	}
	dict, ok := w.doc.Dict(obj)
	if !ok {
		return fmt.Errorf("page tree node %s is not a dictionary", ref)
	}

	next := inherited
	if mb, ok := RectFromObj(w.doc, entry(dict, "MediaBox")); ok {
		next.MediaBox = &mb
	}
	if cb, ok := RectFromObj(w.doc, entry(dict, "CropBox")); ok {
		next.CropBox = &cb
	}
	if r, ok := w.doc.Int(entry(dict, "Rotate")); ok {
		rot := normalizeRotation(int(r))
		next.Rotate = &rot
	}
	if res, ok := dict.Get("Resources"); ok {
		next.Resources = res
	}

	kids, hasKids := w.doc.Array(entry(dict, "Kids"))
	isPage := dict.Name("Type") == "Page" || (dict.Name("Type") == "" && !hasKids)
	if isPage {
		w.pages = append(w.pages, w.parsePage(ref, dict, next))
		return nil
	}
	if !hasKids {
		return fmt.Errorf("pages node %s missing Kids", ref)
	}
	for _, kid := range kids.Items {
		if err := w.parsePages(kid, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWalker) parsePage(ref raw.ObjectRef, dict *raw.DictObj, props inheritedPageProps) *Page {
	page := &Page{Index: len(w.pages), Ref: ref, Dict: dict, MediaBox: Letter}
	if props.MediaBox != nil {
		page.MediaBox = *props.MediaBox
	}
	page.CropBox = page.MediaBox
	if props.CropBox != nil {
		if cb, ok := props.CropBox.Intersect(page.MediaBox); ok {
			page.CropBox = cb
		}
	}
	if props.Rotate != nil {
		page.Rotate = *props.Rotate
	}
	page.Resources = raw.Dict()
	if res, ok := w.doc.Dict(props.Resources); ok {
		page.Resources = res
	}
	_, own := dict.Get("Resources")
	page.Inherited = !own && props.Resources != nil
	page.Contents = contentRefs(w.doc, entry(dict, "Contents"))
	return page
}

// contentRefs lists the stream ids of a /Contents entry. Direct streams
// are not allowed there and are skipped.
func contentRefs(doc *raw.Document, obj raw.Object) []raw.ObjectRef {
	if r, ok := obj.(raw.RefObj); ok {
		if _, isStream := doc.Stream(r); isStream {
			return []raw.ObjectRef{r.R}
		}
	}
	arr, ok := doc.Array(obj)
	if !ok {
		return nil
	}
	var out []raw.ObjectRef
	for _, item := range arr.Items {
		if r, ok := item.(raw.RefObj); ok {
			if _, isStream := doc.Stream(r); isStream {
				out = append(out, r.R)
			}
		}
	}
	return out
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r / 90 * 90
}

// Resolver follows indirect references. *raw.Document implements it.
type Resolver interface {
	Resolve(o raw.Object) raw.Object
}

func parseNumberArray(r Resolver, obj raw.Object) []float64 {
	arr, ok := r.Resolve(obj).(*raw.ArrayObj)
	if !ok {
		return nil
	}
	nums := make([]float64, 0, arr.Len())
	for _, item := range arr.Items {
		if n, ok := r.Resolve(item).(raw.NumberObj); ok {
			nums = append(nums, n.Float())
		}
	}
	return nums
}

// RectFromObj reads a four-number rectangle array, normalizing its corners.
func RectFromObj(r Resolver, obj raw.Object) (coords.Rect, bool) {
	nums := parseNumberArray(r, obj)
	if len(nums) < 4 {
		return coords.Rect{}, false
	}
	return coords.Rect{LLX: nums[0], LLY: nums[1], URX: nums[2], URY: nums[3]}.Normalize(), true
}

// MatrixFromObj reads a six-number matrix array.
func MatrixFromObj(r Resolver, obj raw.Object) (coords.Matrix, bool) {
	nums := parseNumberArray(r, obj)
	if len(nums) != 6 {
		return coords.Identity(), false
	}
	var m coords.Matrix
	copy(m[:], nums)
	return m, true
}
