package editor

import (
	"context"
	"fmt"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/ir/semantic"
)

// resourceCategories are renamed when a form's resources are merged into
// the page.
var resourceCategories = []string{"ExtGState", "ColorSpace", "Pattern", "Shading", "XObject", "Font", "Properties"}

// InlineForms replaces each top-level Do of a form that paints covered
// content with the form's own operators, so that glyph removal can reach
// them. It returns the new operators and the number of forms inlined.
func (e *Editor) InlineForms(ctx context.Context, ops []contentstream.Op, result *contentstream.Result, resources *raw.DictObj, regions *Regions) ([]contentstream.Op, int, error) {
	targets := make(map[int]bool)
	for _, run := range result.Runs {
		if len(run.Forms) == 0 || targets[run.Op] {
			continue
		}
		for _, g := range run.Glyphs {
			if regions.Hit(g.Rect) {
				targets[run.Op] = true
				break
			}
		}
	}
	for _, img := range result.Images {
		if len(img.Forms) > 0 && regions.HitImage(img.Rect) {
			targets[img.Op] = true
		}
	}
	if len(targets) == 0 {
		return ops, 0, nil
	}

	m := &merger{res: e.res, resources: resources, private: make(map[string]*raw.DictObj)}
	out := make([]contentstream.Op, 0, len(ops))
	inlined := 0
	for i, op := range ops {
		if !targets[i] || op.Kind != contentstream.OpXObject {
			out = append(out, op)
			continue
		}
		body, err := m.inline(ctx, op)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, body...)
		inlined++
	}
	return out, inlined, nil
}

type merger struct {
	res       contentstream.Resolver
	resources *raw.DictObj
	private   map[string]*raw.DictObj
}

func (m *merger) inline(ctx context.Context, do contentstream.Op) ([]contentstream.Op, error) {
	name := operandName(do, 0)
	xobjects, _ := m.res.Resolve(entry(m.resources, "XObject")).(*raw.DictObj)
	if xobjects == nil {
		return nil, fmt.Errorf("form %q: page has no XObject resources", name)
	}
	stm, ok := m.res.Resolve(entry(xobjects, name)).(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("form %q is not a stream", name)
	}
	data, err := m.res.Decode(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", name, err)
	}
	body, err := contentstream.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", name, err)
	}
	if formRes, ok := m.res.Resolve(entry(stm.Dict, "Resources")).(*raw.DictObj); ok {
		renames := m.merge(formRes)
		for i := range body {
			renameOperands(&body[i], renames)
		}
	}

	out := []contentstream.Op{contentstream.NewOp("q")}
	if mx, ok := semantic.MatrixFromObj(m.res, entry(stm.Dict, "Matrix")); ok && mx != coords.Identity() {
		out = append(out, contentstream.NewOp("cm", numbers(mx[:]...)...))
	}
	if bbox, ok := semantic.RectFromObj(m.res, entry(stm.Dict, "BBox")); ok {
		out = append(out,
			contentstream.NewOp("re", numbers(bbox.LLX, bbox.LLY, bbox.Width(), bbox.Height())...),
			contentstream.NewOp("W"),
			contentstream.NewOp("n"))
	}
	out = append(out, balance(body)...)
	return append(out, contentstream.NewOp("Q")), nil
}

// merge copies the entries of a form's resource dictionary into the page
// resources and returns the old-to-new names per category. Entries that
// already exist on the page with the same value keep the page's name.
func (m *merger) merge(formRes *raw.DictObj) map[string]map[string]string {
	renames := make(map[string]map[string]string)
	for _, cat := range resourceCategories {
		src, ok := m.res.Resolve(entry(formRes, cat)).(*raw.DictObj)
		if !ok || src.Len() == 0 {
			continue
		}
		dst := m.category(cat)
		names := make(map[string]string, src.Len())
		for _, key := range src.Keys() {
			val := src.KV[key]
			if existing := sameEntry(dst, val); existing != "" {
				names[key] = existing
				continue
			}
			fresh := freshName(dst, key)
			dst.Set(fresh, raw.Clone(val))
			names[key] = fresh
		}
		renames[cat] = names
	}
	return renames
}

// category returns a page resource category that may be written to.
func (m *merger) category(cat string) *raw.DictObj {
	if d, ok := m.private[cat]; ok {
		return d
	}
	d, ok := m.res.Resolve(entry(m.resources, cat)).(*raw.DictObj)
	if ok {
		d = d.Clone()
	} else {
		d = raw.Dict()
	}
	m.resources.Set(cat, d)
	m.private[cat] = d
	return d
}

func sameEntry(d *raw.DictObj, val raw.Object) string {
	ref, ok := val.(raw.RefObj)
	if !ok {
		return ""
	}
	for _, k := range d.Keys() {
		if r, ok := d.KV[k].(raw.RefObj); ok && r.R == ref.R {
			return k
		}
	}
	return ""
}

func freshName(d *raw.DictObj, base string) string {
	if _, taken := d.Get(base); !taken {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if _, taken := d.Get(name); !taken {
			return name
		}
	}
}

// renameOperands rewrites the resource names an operator refers to.
func renameOperands(op *contentstream.Op, renames map[string]map[string]string) {
	set := func(i int, cat string) {
		if i < 0 || i >= len(op.Operands) {
			return
		}
		n, ok := op.Operands[i].(raw.NameObj)
		if !ok {
			return
		}
		if to, ok := renames[cat][n.Val]; ok {
			op.Operands[i] = raw.NameLiteral(to)
		}
	}
	switch op.Kind {
	case contentstream.OpFont:
		set(0, "Font")
	case contentstream.OpXObject:
		set(0, "XObject")
	case contentstream.OpExtGState:
		set(0, "ExtGState")
	case contentstream.OpFillColorSpace, contentstream.OpStrokeColorSpace:
		set(0, "ColorSpace")
	case contentstream.OpFillColorN, contentstream.OpStrokeColorN:
		set(len(op.Operands)-1, "Pattern")
	case contentstream.OpShading:
		set(0, "Shading")
	case contentstream.OpBeginMarkedProps, contentstream.OpMarkedPointProps:
		set(1, "Properties")
	case contentstream.OpInlineImage:
		if op.Inline == nil {
			return
		}
		for _, key := range []string{"CS", "ColorSpace"} {
			if n, ok := op.Inline.Dict.KV[key].(raw.NameObj); ok {
				if to, ok := renames["ColorSpace"][n.Val]; ok {
					op.Inline.Dict.Set(key, raw.NameLiteral(to))
				}
			}
		}
	}
}

// balance drops unmatched Q operators and closes unmatched q, so that an
// inlined form cannot pop the page's graphics state.
func balance(ops []contentstream.Op) []contentstream.Op {
	out := make([]contentstream.Op, 0, len(ops))
	depth := 0
	for _, op := range ops {
		switch op.Kind {
		case contentstream.OpSave:
			depth++
		case contentstream.OpRestore:
			if depth == 0 {
				continue
			}
			depth--
		}
		out = append(out, op)
	}
	for ; depth > 0; depth-- {
		out = append(out, contentstream.NewOp("Q"))
	}
	return out
}

// PaintedXObjects returns the XObject names of resources that ops paint,
// following forms that inherit the page resources. When such a form
// cannot be read every name counts as painted.
func (e *Editor) PaintedXObjects(ops []contentstream.Op, resources *raw.DictObj) map[string]bool {
	painted := make(map[string]bool)
	xobjects, _ := e.res.Resolve(entry(resources, "XObject")).(*raw.DictObj)
	if xobjects == nil {
		return painted
	}
	visited := make(map[string]bool)
	var walk func(ops []contentstream.Op, depth int) bool
	walk = func(ops []contentstream.Op, depth int) bool {
		for _, op := range ops {
			if op.Kind != contentstream.OpXObject {
				continue
			}
			name := operandName(op, 0)
			painted[name] = true
			if visited[name] {
				continue
			}
			visited[name] = true
			stm, ok := e.res.Resolve(entry(xobjects, name)).(*raw.StreamObj)
			if !ok || stm.Dict.Name("Subtype") != "Form" {
				continue
			}
			if _, own := stm.Dict.Get("Resources"); own {
				continue
			}
			if depth >= e.opts.MaxInlinePasses {
				return false
			}
			data, err := e.res.Decode(context.Background(), stm)
			if err != nil {
				return false
			}
			inner, err := contentstream.Parse(data)
			if err != nil || !walk(inner, depth+1) {
				return false
			}
		}
		return true
	}
	if !walk(ops, 0) {
		for _, k := range xobjects.Keys() {
			painted[k] = true
		}
	}
	return painted
}

// Unpainted lists the XObject names of resources absent from painted, in
// sorted order.
func Unpainted(resources *raw.DictObj, res contentstream.Resolver, painted map[string]bool) []string {
	xobjects, _ := res.Resolve(entry(resources, "XObject")).(*raw.DictObj)
	if xobjects == nil {
		return nil
	}
	var out []string
	for _, k := range xobjects.Keys() {
		if !painted[k] {
			out = append(out, k)
		}
	}
	return out
}

func operandName(op contentstream.Op, i int) string {
	if i < len(op.Operands) {
		if n, ok := op.Operands[i].(raw.NameObj); ok {
			return n.Val
		}
	}
	return ""
}

func numbers(fs ...float64) []raw.Object {
	out := make([]raw.Object, len(fs))
	for i, f := range fs {
		out[i] = number(f)
	}
	return out
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
