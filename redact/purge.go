package redact

import (
	"context"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/ir/semantic"
)

// purgeXObjects deletes names from the XObject category of resources,
// copying the category first. It returns the names removed and the ids of
// the objects they referred to.
func purgeXObjects(res contentstream.Resolver, resources *raw.DictObj, names []string) ([]string, []raw.ObjectRef) {
	if len(names) == 0 {
		return nil, nil
	}
	o, ok := resources.Get("XObject")
	if !ok {
		return nil, nil
	}
	d, ok := res.Resolve(o).(*raw.DictObj)
	if !ok {
		return nil, nil
	}
	d = d.Clone()
	var removed []string
	var refs []raw.ObjectRef
	for _, n := range names {
		val, _ := d.Get(n)
		if !d.Delete(n) {
			continue
		}
		removed = append(removed, n)
		if ref, ok := val.(raw.RefObj); ok {
			refs = append(refs, ref.R)
		}
	}
	resources.Set("XObject", d)
	return removed, refs
}

// purgeShared removes XObjects whose ids are in refs from the resources of
// every page outside skip that lists but does not paint them. Resource
// dictionaries shared between pages would otherwise keep a purged image
// reachable. Pages whose content cannot be read are left alone.
func (e *Engine) purgeShared(ctx context.Context, refs map[raw.ObjectRef]bool, skip map[int]bool) int {
	if len(refs) == 0 {
		return 0
	}
	res := e.ext.Resolver()
	purged := 0
	for _, page := range e.ext.Pages() {
		if skip[page.Index] {
			continue
		}
		xobjects, ok := res.Resolve(entry(page.Resources, "XObject")).(*raw.DictObj)
		if !ok {
			continue
		}
		var listed []string
		for _, k := range xobjects.Keys() {
			if ref, ok := xobjects.KV[k].(raw.RefObj); ok && refs[ref.R] {
				listed = append(listed, k)
			}
		}
		if len(listed) == 0 {
			continue
		}
		content, err := contentstream.PageContent(ctx, res, page)
		if err != nil {
			continue
		}
		ops, err := contentstream.Parse(content)
		if err != nil {
			continue
		}
		painted := e.ed.PaintedXObjects(ops, page.Resources)
		var unused []string
		for _, k := range listed {
			if !painted[k] {
				unused = append(unused, k)
			}
		}
		if len(unused) == 0 {
			continue
		}
		resources := page.Resources.Clone()
		removed, _ := purgeXObjects(res, resources, unused)
		page.Dict.Set("Resources", resources)
		e.doc.MarkDirty(page.Ref)
		purged += len(removed)
	}
	return purged
}

// purgePageResidue drops the thumbnail and private application data of a
// redacted page. It reports whether a thumbnail was present.
func purgePageResidue(page *raw.DictObj) bool {
	page.Delete("PieceInfo")
	return page.Delete("Thumb")
}

// purgeAnnotations removes the annotations other than form widgets whose
// rectangle overlaps one of rects, together with the popups that belong to
// them. It returns the number removed.
func purgeAnnotations(doc *raw.Document, page *semantic.Page, rects []coords.Rect) int {
	annots := page.Annotations(doc)
	if len(annots) == 0 {
		return 0
	}
	remove := make(map[int]bool)
	parents := make(map[raw.ObjectRef]bool)
	for _, a := range annots {
		if a.Subtype == "Widget" {
			continue
		}
		box := a.Rect.Normalize()
		for _, r := range rects {
			if box.Intersects(r) {
				remove[a.Index] = true
				if a.Ref != (raw.ObjectRef{}) {
					parents[a.Ref] = true
				}
				break
			}
		}
	}
	for _, a := range annots {
		if a.Subtype != "Popup" {
			continue
		}
		if p, ok := a.Dict.Get("Parent"); ok {
			if ref, ok := p.(raw.RefObj); ok && parents[ref.R] {
				remove[a.Index] = true
			}
		}
	}
	if len(remove) == 0 {
		return 0
	}

	o, _ := page.Dict.Get("Annots")
	arr, ok := doc.Array(o)
	if !ok {
		return 0
	}
	kept := make([]raw.Object, 0, arr.Len())
	for i, item := range arr.Items {
		if !remove[i] {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		page.Dict.Delete("Annots")
	} else {
		page.Dict.Set("Annots", raw.NewArray(kept...))
	}
	return len(remove)
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
