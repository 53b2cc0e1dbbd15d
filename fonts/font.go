package fonts

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/ir/raw"
)

// Source resolves references and decodes streams of the owning document.
type Source interface {
	Resolve(o raw.Object) raw.Object
	Decode(ctx context.Context, s *raw.StreamObj) ([]byte, error)
}

// ErrNotFont is returned when the resource is not a font dictionary.
var ErrNotFont = errors.New("not a font dictionary")

// Font carries what text extraction and glyph geometry need from a PDF
// font dictionary. Widths and vertical metrics are in thousandths of an em.
type Font struct {
	BaseFont string
	Subtype  string
	Ascent   float64
	Descent  float64
	Vertical bool

	composite bool
	firstChar int
	widths    []float64
	hasWidths bool
	missing   float64
	scale     float64 // Type3 glyph space to thousandths
	encoding  *Encoding
	std       *stdMetrics

	cmap     *CMap
	identity bool
	dw       float64
	w        map[uint32]float64
	dw2      [2]float64 // vy, w1y
	w2       map[uint32]vmetrics

	toUnicode *CMap
}

// Glyph is one character code shown by a text operator.
type Glyph struct {
	Code  []byte
	CID   uint32
	Text  string
	Width float64
	// Space marks the single-byte code 32, the only code word spacing
	// applies to.
	Space bool
	// VAdvance and VX are the vertical displacement (w1y, normally
	// negative) and the x of the position vector. Set in vertical mode only.
	VAdvance float64
	VX       float64
}

// vmetrics is one /W2 entry.
type vmetrics struct {
	w1y, vx, vy float64
}

// Composite reports whether the font is a Type0 font with multi-byte codes.
func (f *Font) Composite() bool { return f.composite }

// Load builds a Font from a font dictionary.
func Load(ctx context.Context, src Source, obj raw.Object) (*Font, error) {
	dict, ok := asDict(src, obj)
	if !ok {
		return nil, ErrNotFont
	}
	f := &Font{
		BaseFont: nameOf(src, dict, "BaseFont"),
		Subtype:  nameOf(src, dict, "Subtype"),
		scale:    1,
	}
	if f.Subtype == "Type0" {
		if err := f.loadComposite(ctx, src, dict); err != nil {
			return nil, err
		}
	} else {
		f.loadSimple(src, dict)
	}
	if tu, ok := src.Resolve(get(dict, "ToUnicode")).(*raw.StreamObj); ok {
		if data, err := src.Decode(ctx, tu); err == nil {
			if cm, err := ParseCMap(data); err == nil {
				f.toUnicode = cm
			}
		}
	}
	if f.Ascent <= 0 {
		f.Ascent = 800
	}
	if f.Descent >= 0 {
		f.Descent = -200
	}
	return f, nil
}

func (f *Font) loadSimple(src Source, dict *raw.DictObj) {
	if fc, ok := num(src, get(dict, "FirstChar")); ok {
		f.firstChar = int(fc)
	}
	if f.Subtype == "Type3" {
		if fm := numbers(src, get(dict, "FontMatrix")); len(fm) == 6 && fm[0] != 0 {
			f.scale = fm[0] * 1000
		} else {
			f.scale = 1
		}
	}
	if arr, ok := src.Resolve(get(dict, "Widths")).(*raw.ArrayObj); ok {
		f.hasWidths = true
		f.widths = make([]float64, arr.Len())
		for i, item := range arr.Items {
			w, _ := num(src, item)
			f.widths[i] = w * f.scale
		}
	}
	std, isStd := standardFont(f.BaseFont)
	if !f.hasWidths {
		if !isStd {
			std = guessMetrics(f.BaseFont)
		}
		f.std = std
	}
	if fd, ok := asDict(src, get(dict, "FontDescriptor")); ok {
		f.readDescriptor(src, fd)
		if mw, ok := num(src, get(fd, "MissingWidth")); ok {
			f.missing = mw * f.scale
		}
	} else if std != nil {
		f.Ascent, f.Descent = std.ascent, std.descent
	}
	if f.Subtype == "Type3" {
		if bb := numbers(src, get(dict, "FontBBox")); len(bb) == 4 {
			f.Ascent, f.Descent = bb[3]*f.scale, bb[1]*f.scale
		}
	}
	f.encoding = f.simpleEncoding(src, dict, isStd)
}

func (f *Font) simpleEncoding(src Source, dict *raw.DictObj, isStd bool) *Encoding {
	base := &winAnsi
	switch {
	case f.BaseFont == "Symbol":
		e := Encoding(symbolEncoding)
		base = &e
	case f.Subtype == "Type1" && isStd, f.Subtype == "Type1" && f.hasWidths:
		e := Encoding(standardEncoding)
		base = &e
	}
	switch enc := src.Resolve(get(dict, "Encoding")).(type) {
	case raw.NameObj:
		if e, ok := BaseEncoding(enc.Val); ok {
			return e
		}
	case *raw.DictObj:
		if e, ok := BaseEncoding(nameOf(src, enc, "BaseEncoding")); ok {
			base = e
		}
		if diffs, ok := src.Resolve(get(enc, "Differences")).(*raw.ArrayObj); ok {
			var items []any
			for _, d := range diffs.Items {
				switch v := src.Resolve(d).(type) {
				case raw.NumberObj:
					items = append(items, int(v.Int()))
				case raw.NameObj:
					items = append(items, v.Val)
				}
			}
			return base.WithDifferences(items)
		}
	}
	return base
}

func (f *Font) loadComposite(ctx context.Context, src Source, dict *raw.DictObj) error {
	f.composite = true
	f.dw = 1000
	f.dw2 = [2]float64{880, -1000}
	switch enc := src.Resolve(get(dict, "Encoding")).(type) {
	case raw.NameObj:
		f.identity = true
		f.Vertical = len(enc.Val) > 2 && enc.Val[len(enc.Val)-2:] == "-V"
	case *raw.StreamObj:
		data, err := src.Decode(ctx, enc)
		if err != nil {
			return fmt.Errorf("font %s encoding cmap: %w", f.BaseFont, err)
		}
		cm, err := ParseCMap(data)
		if err != nil {
			return fmt.Errorf("font %s encoding cmap: %w", f.BaseFont, err)
		}
		f.cmap = cm
		if wmode, ok := num(src, get(enc.Dict, "WMode")); ok && wmode == 1 {
			f.Vertical = true
		}
	default:
		f.identity = true
	}
	desc, ok := src.Resolve(get(dict, "DescendantFonts")).(*raw.ArrayObj)
	if !ok || desc.Len() == 0 {
		return nil
	}
	cid, ok := asDict(src, desc.Items[0])
	if !ok {
		return nil
	}
	if dw, ok := num(src, get(cid, "DW")); ok {
		f.dw = dw
	}
	f.w = parseW(src, get(cid, "W"))
	if dw2 := numbers(src, get(cid, "DW2")); len(dw2) == 2 {
		f.dw2 = [2]float64{dw2[0], dw2[1]}
	}
	f.w2 = parseW2(src, get(cid, "W2"))
	if fd, ok := asDict(src, get(cid, "FontDescriptor")); ok {
		f.readDescriptor(src, fd)
	}
	return nil
}

// parseW reads a CIDFont /W array: "c [w1 w2 ...]" and "cFirst cLast w".
func parseW(src Source, obj raw.Object) map[uint32]float64 {
	arr, ok := src.Resolve(obj).(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make(map[uint32]float64)
	items := arr.Items
	for i := 0; i < len(items); {
		first, ok := num(src, items[i])
		if !ok || i+1 >= len(items) {
			break
		}
		if list, ok := src.Resolve(items[i+1]).(*raw.ArrayObj); ok {
			for j, item := range list.Items {
				w, _ := num(src, item)
				out[uint32(first)+uint32(j)] = w
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			break
		}
		last, ok1 := num(src, items[i+1])
		w, ok2 := num(src, items[i+2])
		if !ok1 || !ok2 || last < first || last-first > 0xffff {
			break
		}
		for c := uint32(first); c <= uint32(last); c++ {
			out[c] = w
		}
		i += 3
	}
	return out
}

// parseW2 reads a CIDFont /W2 array: "c [w1y vx vy ...]" and
// "cFirst cLast w1y vx vy".
func parseW2(src Source, obj raw.Object) map[uint32]vmetrics {
	arr, ok := src.Resolve(obj).(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make(map[uint32]vmetrics)
	items := arr.Items
	for i := 0; i < len(items); {
		first, ok := num(src, items[i])
		if !ok || i+1 >= len(items) {
			break
		}
		if list, ok := src.Resolve(items[i+1]).(*raw.ArrayObj); ok {
			vals := numbers(src, list)
			for j := 0; j+2 < len(vals); j += 3 {
				out[uint32(first)+uint32(j/3)] = vmetrics{w1y: vals[j], vx: vals[j+1], vy: vals[j+2]}
			}
			i += 2
			continue
		}
		if i+4 >= len(items) {
			break
		}
		last, ok := num(src, items[i+1])
		vals := numbers(src, raw.NewArray(items[i+2:i+5]...))
		if !ok || len(vals) != 3 || last < first || last-first > 0xffff {
			break
		}
		for c := uint32(first); c <= uint32(last); c++ {
			out[c] = vmetrics{w1y: vals[0], vx: vals[1], vy: vals[2]}
		}
		i += 5
	}
	return out
}

// verticalMetrics returns the /W2 entry of cid, or the /DW2 default with
// the position vector centered on the glyph width.
func (f *Font) verticalMetrics(cid uint32, width float64) vmetrics {
	if m, ok := f.w2[cid]; ok {
		return m
	}
	return vmetrics{w1y: f.dw2[1], vx: width / 2, vy: f.dw2[0]}
}

func (f *Font) readDescriptor(src Source, fd *raw.DictObj) {
	if a, ok := num(src, get(fd, "Ascent")); ok {
		f.Ascent = a
	}
	if d, ok := num(src, get(fd, "Descent")); ok {
		f.Descent = d
	}
	if f.Descent > 0 {
		f.Descent = -f.Descent
	}
}

// Decode splits a shown string into glyphs.
func (f *Font) Decode(s []byte) []Glyph {
	if f.composite {
		return f.decodeComposite(s)
	}
	out := make([]Glyph, 0, len(s))
	for i := range s {
		c := s[i]
		g := Glyph{Code: s[i : i+1], CID: uint32(c), Space: c == ' '}
		r := f.encoding[c]
		if txt, ok := f.unicode(g.Code); ok {
			g.Text = txt
		} else if r != 0 {
			g.Text = string(r)
		}
		g.Width = f.simpleWidth(int(c), r)
		out = append(out, g)
	}
	return out
}

func (f *Font) simpleWidth(c int, r rune) float64 {
	if f.hasWidths {
		if i := c - f.firstChar; i >= 0 && i < len(f.widths) {
			return f.widths[i]
		}
		return f.missing
	}
	if r == 0 {
		return f.std.defaultWidth
	}
	return f.std.width(r)
}

func (f *Font) decodeComposite(s []byte) []Glyph {
	out := make([]Glyph, 0, len(s)/2)
	for i := 0; i < len(s); {
		n := 2
		if f.cmap != nil && f.cmap.HasCodespace() {
			n = f.cmap.NextCode(s[i:], 2)
		}
		n = min(n, len(s)-i)
		b := s[i : i+n]
		i += n
		g := Glyph{Code: b, Space: n == 1 && b[0] == ' '}
		if f.identity || f.cmap == nil {
			g.CID = codeOf(b).val
		} else {
			g.CID, _ = f.cmap.CID(b)
		}
		g.Width = f.dw
		if w, ok := f.w[g.CID]; ok {
			g.Width = w
		}
		if f.Vertical {
			m := f.verticalMetrics(g.CID, g.Width)
			g.VAdvance, g.VX = m.w1y, m.vx
		}
		g.Text, _ = f.unicode(b)
		out = append(out, g)
	}
	return out
}

func (f *Font) unicode(code []byte) (string, bool) {
	if f.toUnicode == nil {
		return "", false
	}
	return f.toUnicode.Unicode(code)
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

func asDict(src Source, o raw.Object) (*raw.DictObj, bool) {
	switch v := src.Resolve(o).(type) {
	case *raw.DictObj:
		return v, true
	case *raw.StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func nameOf(src Source, d *raw.DictObj, key string) string {
	if n, ok := src.Resolve(get(d, key)).(raw.NameObj); ok {
		return n.Val
	}
	return ""
}

func num(src Source, o raw.Object) (float64, bool) {
	n, ok := src.Resolve(o).(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func numbers(src Source, o raw.Object) []float64 {
	arr, ok := src.Resolve(o).(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make([]float64, 0, arr.Len())
	for _, item := range arr.Items {
		if v, ok := num(src, item); ok {
			out = append(out, v)
		}
	}
	return out
}
