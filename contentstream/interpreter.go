package contentstream

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/fonts"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/ir/semantic"
)

// Resolver gives the interpreter access to the owning document.
type Resolver interface {
	Resolve(o raw.Object) raw.Object
	Decode(ctx context.Context, s *raw.StreamObj) ([]byte, error)
}

// DefaultMaxFormDepth bounds nested form XObjects.
const DefaultMaxFormDepth = 12

type Options struct {
	MaxFormDepth int
}

// TextRun is the output of one text-show operator.
type TextRun struct {
	Text     string
	Page     int
	Rect     coords.Rect
	Font     string // resource name
	FontRef  raw.ObjectRef
	FontSize float64 // Tf operand
	HScale   float64 // Tz/100
	// Size is the em size in default user space, Dir the unit vector of
	// the writing direction.
	Size     float64
	Dir      coords.Point
	Vertical bool
	// Op indexes Result.Ops. Runs painted by a form carry the index of the
	// top-level Do and the chain of form names in Forms.
	Op         int
	Start, End int64
	Forms      []string
	Glyphs     []GlyphBox
}

// GlyphBox is one shown glyph in default user space.
type GlyphBox struct {
	Text   string
	Code   []byte
	Rect   coords.Rect
	Origin coords.Point
	// Advance is the displacement along the writing direction in text
	// space, word and character spacing included.
	Advance float64
	// Elem is the index of the string within a TJ array; 0 otherwise.
	Elem  int
	Space bool
}

// ImagePaint is one painted image: a Do of an image XObject or an inline
// image.
type ImagePaint struct {
	Name       string
	Ref        raw.ObjectRef
	Rect       coords.Rect
	Inline     bool
	Op         int
	Start, End int64
	Forms      []string
}

// FormPaint is one Do of a form XObject invoked from the page stream.
type FormPaint struct {
	Name   string
	Ref    raw.ObjectRef
	Rect   coords.Rect
	Matrix coords.Matrix // form matrix concatenated with the CTM at the Do
	Op     int
}

// Result is what interpreting one page yields.
type Result struct {
	Page        int
	Content     []byte
	Ops         []Op
	Runs        []TextRun
	Images      []ImagePaint
	Forms       []FormPaint
	Diagnostics []Diagnostic
	// Err is set when the page content could not be decoded or tokenized;
	// such a page has no runs.
	Err error
}

// Interpreter executes content streams. Fonts are cached across pages, so
// one Interpreter per document is the intended use. It is safe for
// concurrent use.
type Interpreter struct {
	res  Resolver
	opts Options

	mu    sync.Mutex
	fonts map[any]*fonts.Font
}

func NewInterpreter(res Resolver, opts Options) *Interpreter {
	if opts.MaxFormDepth <= 0 {
		opts.MaxFormDepth = DefaultMaxFormDepth
	}
	return &Interpreter{res: res, opts: opts, fonts: make(map[any]*fonts.Font)}
}

// Interpret runs a page's content with a fresh interpreter.
func Interpret(ctx context.Context, page *semantic.Page, res Resolver) *Result {
	return NewInterpreter(res, Options{}).Page(ctx, page)
}

// PageContent decodes and concatenates the content streams of page.
func PageContent(ctx context.Context, res Resolver, page *semantic.Page) ([]byte, error) {
	var out []byte
	for i, ref := range page.Contents {
		s, ok := res.Resolve(raw.RefObj{R: ref}).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := res.Decode(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("content stream %s: %w", ref, err)
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	return out, nil
}

// Page decodes, tokenizes and executes the page content.
func (in *Interpreter) Page(ctx context.Context, page *semantic.Page) *Result {
	content, err := PageContent(ctx, in.res, page)
	if err != nil {
		return failed(page.Index, -1, err)
	}
	ops, err := Parse(content)
	if err != nil {
		off := int64(-1)
		if ie, ok := err.(*InterpretError); ok {
			off = ie.Offset
			err = ie.Err
		}
		r := failed(page.Index, off, err)
		r.Content = content
		return r
	}
	r := in.Run(ctx, page.Index, ops, page.Resources)
	r.Content = content
	return r
}

func failed(page int, off int64, err error) *Result {
	ie := &InterpretError{Kind: KindCorruptContentStream, Page: page, Offset: off, Err: err}
	return &Result{
		Page:        page,
		Err:         ie,
		Diagnostics: []Diagnostic{{Offset: off, Message: ie.Error(), Err: ie}},
	}
}

// Run executes already parsed operators against resources in default user
// space.
func (in *Interpreter) Run(ctx context.Context, pageIndex int, ops []Op, resources *raw.DictObj) *Result {
	r := &Result{Page: pageIndex, Ops: ops}
	m := &machine{in: in, ctx: ctx, out: r, resources: resources, top: true}
	m.state.cur = newGraphicsState(coords.Identity())
	if err := m.run(ops); err != nil {
		r.Err = err
	}
	return r
}

// machine executes one stream: the page or a form.
type machine struct {
	in        *Interpreter
	ctx       context.Context
	out       *Result
	resources *raw.DictObj

	top    bool
	topOp  int
	forms  []string
	active map[raw.ObjectRef]bool // forms being executed, for cycle detection

	state    stateStack
	tm, tlm  coords.Matrix
	inText   bool
	compat   int
	curIndex int
}

func (m *machine) run(ops []Op) error {
	for i, op := range ops {
		if i%256 == 0 {
			if err := m.ctx.Err(); err != nil {
				return err
			}
		}
		m.curIndex = i
		m.exec(op)
		if m.out.Err != nil {
			return m.out.Err
		}
	}
	return nil
}

func (m *machine) opIndex() int {
	if m.top {
		return m.curIndex
	}
	return m.topOp
}

func (m *machine) diag(op Op, format string, args ...any) {
	m.out.Diagnostics = append(m.out.Diagnostics, Diagnostic{Op: op.Name, Offset: op.Start, Message: fmt.Sprintf(format, args...)})
}

func (m *machine) exec(op Op) {
	if n, ok := arity[op.Kind]; ok && len(op.Operands) < n {
		m.diag(op, "expected %d operands, got %d", n, len(op.Operands))
		return
	}
	gs := &m.state.cur
	ts := &gs.Text
	switch op.Kind {
	case OpSave:
		m.state.Save()
	case OpRestore:
		if !m.state.Restore() {
			m.diag(op, "restore without matching save")
		}
	case OpConcat:
		cm := coords.Matrix{op.number(0), op.number(1), op.number(2), op.number(3), op.number(4), op.number(5)}
		gs.CTM = cm.Multiply(gs.CTM)
	case OpBeginText:
		m.inText = true
		m.tm, m.tlm = coords.Identity(), coords.Identity()
	case OpEndText:
		m.inText = false
	case OpFont:
		m.setFont(op)
	case OpCharSpacing:
		ts.CharSpacing = op.number(0)
	case OpWordSpacing:
		ts.WordSpacing = op.number(0)
	case OpHorizScale:
		ts.Scale = op.number(0) / 100
	case OpLeading:
		ts.Leading = op.number(0)
	case OpRise:
		ts.Rise = op.number(0)
	case OpRenderMode:
		ts.Render = int(op.number(0))
	case OpMoveText:
		m.moveLine(op.number(0), op.number(1))
	case OpMoveTextLeading:
		ts.Leading = -op.number(1)
		m.moveLine(op.number(0), op.number(1))
	case OpTextMatrix:
		m.tlm = coords.Matrix{op.number(0), op.number(1), op.number(2), op.number(3), op.number(4), op.number(5)}
		m.tm = m.tlm
	case OpNextLine:
		m.moveLine(0, -ts.Leading)
	case OpShowText:
		m.show(op, []raw.Object{op.Operands[0]})
	case OpShowTextArray:
		arr, ok := op.Operands[0].(*raw.ArrayObj)
		if !ok {
			m.diag(op, "TJ operand is not an array")
			return
		}
		m.show(op, arr.Items)
	case OpNextLineShow:
		m.moveLine(0, -ts.Leading)
		m.show(op, []raw.Object{op.Operands[0]})
	case OpNextLineSpacingShow:
		ts.WordSpacing = op.number(0)
		ts.CharSpacing = op.number(1)
		m.moveLine(0, -ts.Leading)
		m.show(op, []raw.Object{op.Operands[2]})
	case OpXObject:
		m.doXObject(op)
	case OpInlineImage:
		m.out.Images = append(m.out.Images, ImagePaint{
			Inline: true,
			Rect:   gs.CTM.TransformRect(unitSquare),
			Op:     m.opIndex(),
			Start:  op.Start,
			End:    op.End,
			Forms:  m.forms,
		})
	case OpBeginCompat:
		m.compat++
	case OpEndCompat:
		if m.compat > 0 {
			m.compat--
		}
	case OpUnknown:
		if m.compat == 0 {
			m.diag(op, "unsupported operator %q skipped", op.Name)
		}
	}
}

var unitSquare = coords.Rect{LLX: 0, LLY: 0, URX: 1, URY: 1}

func (m *machine) moveLine(tx, ty float64) {
	m.tlm = coords.Translate(tx, ty).Multiply(m.tlm)
	m.tm = m.tlm
}

func (m *machine) setFont(op Op) {
	ts := &m.state.cur.Text
	name := op.name(0)
	ts.Size = op.number(1)
	ts.FontName = name
	ts.FontRef = raw.ObjectRef{}
	obj, ok := m.resource("Font", name)
	if !ok {
		m.diag(op, "font %q not in resources, using standard metrics", name)
		ts.Font = m.in.fallbackFont(m.ctx)
		return
	}
	if ref, isRef := obj.(raw.RefObj); isRef {
		ts.FontRef = ref.R
	}
	f, err := m.in.font(m.ctx, obj)
	if err != nil {
		m.diag(op, "font %q: %v", name, err)
		f = m.in.fallbackFont(m.ctx)
	}
	ts.Font = f
}

func (m *machine) resource(category, name string) (raw.Object, bool) {
	res := m.in.res
	cat, ok := res.Resolve(get(m.resources, category)).(*raw.DictObj)
	if !ok {
		return nil, false
	}
	return cat.Get(name)
}

func (in *Interpreter) font(ctx context.Context, obj raw.Object) (*fonts.Font, error) {
	var key any
	switch v := obj.(type) {
	case raw.RefObj:
		key = v.R
	case *raw.DictObj:
		key = v
	default:
		return nil, fonts.ErrNotFont
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if f, ok := in.fonts[key]; ok {
		return f, nil
	}
	f, err := fonts.Load(ctx, in.res, obj)
	if err != nil {
		return nil, err
	}
	in.fonts[key] = f
	return f, nil
}

func (in *Interpreter) fallbackFont(ctx context.Context) *fonts.Font {
	in.mu.Lock()
	defer in.mu.Unlock()
	if f, ok := in.fonts["fallback"]; ok {
		return f
	}
	d := raw.Dict()
	d.Set("Subtype", raw.NameLiteral("Type1"))
	d.Set("BaseFont", raw.NameLiteral("Helvetica"))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	f, _ := fonts.Load(ctx, in.res, d)
	in.fonts["fallback"] = f
	return f
}

// show runs the glyphs of a text-show operator. items are the strings and
// numbers of the operand array.
func (m *machine) show(op Op, items []raw.Object) {
	gs := &m.state.cur
	ts := &gs.Text
	if ts.Font == nil {
		m.diag(op, "text shown without a font, using standard metrics")
		ts.Font = m.in.fallbackFont(m.ctx)
	}
	if !m.inText {
		m.diag(op, "text shown outside BT/ET")
	}
	f := ts.Font
	run := TextRun{
		Page:     m.out.Page,
		Font:     ts.FontName,
		FontRef:  ts.FontRef,
		FontSize: ts.Size,
		HScale:   ts.Scale,
		Vertical: f.Vertical,
		Op:       m.opIndex(),
		Start:    op.Start,
		End:      op.End,
		Forms:    m.forms,
	}
	asc, desc := f.Ascent/1000, f.Descent/1000
	var text strings.Builder
	for elem, item := range items {
		switch v := item.(type) {
		case raw.NumberObj:
			adj := -v.Float() / 1000 * ts.Size
			if f.Vertical {
				m.tm = coords.Translate(0, adj).Multiply(m.tm)
			} else {
				m.tm = coords.Translate(adj*ts.Scale, 0).Multiply(m.tm)
			}
		case raw.StringObj:
			for _, g := range f.Decode(v.Bytes) {
				trm := coords.Matrix{ts.Size * ts.Scale, 0, 0, ts.Size, 0, ts.Rise}.Multiply(m.tm).Multiply(gs.CTM)
				w0 := g.Width / 1000
				var box coords.Rect
				var adv float64
				if f.Vertical {
					w1, vx := g.VAdvance/1000, g.VX/1000
					box = coords.Rect{LLX: -vx, LLY: w1, URX: w0 - vx, URY: 0}.Normalize()
					adv = w1*ts.Size + ts.CharSpacing
				} else {
					box = coords.Rect{LLX: 0, LLY: desc, URX: w0, URY: asc}
					adv = w0*ts.Size + ts.CharSpacing
					if g.Space {
						adv += ts.WordSpacing
					}
					adv *= ts.Scale
				}
				gb := GlyphBox{
					Text:    g.Text,
					Code:    g.Code,
					Rect:    trm.TransformRect(box),
					Origin:  trm.Transform(coords.Point{}),
					Advance: adv,
					Elem:    elem,
					Space:   g.Space,
				}
				if len(run.Glyphs) == 0 {
					run.Size = math.Abs(ts.Size) * m.tm.Multiply(gs.CTM).ScaleY()
					dir := trm.Transform(coords.Point{X: 1})
					if f.Vertical {
						dir = trm.Transform(coords.Point{Y: -1})
					}
					run.Dir = unit(coords.Point{X: dir.X - gb.Origin.X, Y: dir.Y - gb.Origin.Y})
				}
				run.Glyphs = append(run.Glyphs, gb)
				run.Rect = run.Rect.Union(gb.Rect)
				text.WriteString(g.Text)
				if f.Vertical {
					m.tm = coords.Translate(0, adv).Multiply(m.tm)
				} else {
					m.tm = coords.Translate(adv, 0).Multiply(m.tm)
				}
			}
		}
	}
	if len(run.Glyphs) == 0 {
		return
	}
	run.Text = text.String()
	m.out.Runs = append(m.out.Runs, run)
}

func unit(p coords.Point) coords.Point {
	l := math.Hypot(p.X, p.Y)
	if l == 0 {
		return coords.Point{X: 1}
	}
	return coords.Point{X: p.X / l, Y: p.Y / l}
}

func (m *machine) doXObject(op Op) {
	name := op.name(0)
	obj, ok := m.resource("XObject", name)
	if !ok {
		m.diag(op, "XObject %q not in resources", name)
		return
	}
	stm, ok := m.in.res.Resolve(obj).(*raw.StreamObj)
	if !ok {
		m.diag(op, "XObject %q is not a stream", name)
		return
	}
	var ref raw.ObjectRef
	if r, isRef := obj.(raw.RefObj); isRef {
		ref = r.R
	}
	ctm := m.state.cur.CTM
	switch stm.Dict.Name("Subtype") {
	case "Image":
		m.out.Images = append(m.out.Images, ImagePaint{
			Name:  name,
			Ref:   ref,
			Rect:  ctm.TransformRect(unitSquare),
			Op:    m.opIndex(),
			Start: op.Start,
			End:   op.End,
			Forms: m.forms,
		})
	case "Form":
		m.runForm(op, name, ref, stm)
	}
}

func (m *machine) runForm(op Op, name string, ref raw.ObjectRef, stm *raw.StreamObj) {
	if len(m.forms) >= m.in.opts.MaxFormDepth {
		m.diag(op, "form %q nested deeper than %d", name, m.in.opts.MaxFormDepth)
		return
	}
	if ref.Num > 0 && m.active[ref] {
		m.diag(op, "form %q invokes itself", name)
		return
	}
	matrix, _ := semantic.MatrixFromObj(m.in.res, get(stm.Dict, "Matrix"))
	ctm := matrix.Multiply(m.state.cur.CTM)
	bbox, _ := semantic.RectFromObj(m.in.res, get(stm.Dict, "BBox"))
	if m.top {
		m.out.Forms = append(m.out.Forms, FormPaint{Name: name, Ref: ref, Rect: ctm.TransformRect(bbox), Matrix: ctm, Op: m.curIndex})
	}
	data, err := m.in.res.Decode(m.ctx, stm)
	if err != nil {
		m.diag(op, "form %q: %v", name, err)
		return
	}
	ops, err := Parse(data)
	if err != nil {
		m.diag(op, "form %q: %v", name, err)
	}
	resources := m.resources
	if d, ok := m.in.res.Resolve(get(stm.Dict, "Resources")).(*raw.DictObj); ok {
		resources = d
	}
	active := make(map[raw.ObjectRef]bool, len(m.active)+1)
	for k := range m.active {
		active[k] = true
	}
	if ref.Num > 0 {
		active[ref] = true
	}
	forms := make([]string, len(m.forms), len(m.forms)+1)
	copy(forms, m.forms)
	child := &machine{
		in:        m.in,
		ctx:       m.ctx,
		out:       m.out,
		resources: resources,
		topOp:     m.opIndex(),
		forms:     append(forms, name),
		active:    active,
	}
	child.state.cur = newGraphicsState(ctm)
	child.state.cur.Text = m.state.cur.Text
	child.tm, child.tlm = coords.Identity(), coords.Identity()
	if err := child.run(ops); err != nil {
		m.out.Err = err
	}
}

func get(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return raw.NullObj{}
	}
	if o, ok := d.Get(key); ok {
		return o
	}
	return raw.NullObj{}
}
