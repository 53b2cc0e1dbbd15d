package redact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/fonts"
	"github.com/wudi/pdfredact/ir/raw"
)

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

var (
	Black = Color{}
	White = Color{R: 1, G: 1, B: 1}
)

var namedColors = map[string]Color{
	"black": Black,
	"white": White,
	"red":   {R: 1},
	"green": {G: 1},
	"blue":  {B: 1},
	"gray":  {R: 0.5, G: 0.5, B: 0.5},
}

// ParseColor accepts a color name, "#rrggbb", or three comma separated
// components in [0, 1].
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		return Color{
			R: float64(v>>16&0xff) / 255,
			G: float64(v>>8&0xff) / 255,
			B: float64(v&0xff) / 255,
		}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Color{}, fmt.Errorf("parse color %q: want a name, #rrggbb or r,g,b", s)
	}
	var rgb [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		rgb[i] = f
	}
	return Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Clamp(), nil
}

// Clamp limits each component to [0, 1].
func (c Color) Clamp() Color {
	clamp := func(f float64) float64 { return min(max(f, 0), 1) }
	return Color{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B)}
}

func (c Color) operands() []raw.Object {
	return []raw.Object{num(c.R), num(c.G), num(c.B)}
}

// captionFont holds the shaped captions of one Apply. The font objects are
// added to the document the first time a page needs them.
type captionFont struct {
	emb    *fonts.Embedded
	used   fonts.Usage
	shaped map[string][]fonts.ShapedGlyph
	ref    raw.ObjectRef
	added  bool
}

func (e *Engine) prepareCaptions() (*captionFont, error) {
	cf := &captionFont{used: make(fonts.Usage), shaped: make(map[string][]fonts.ShapedGlyph)}
	for _, marks := range e.marks {
		for _, m := range marks {
			text := m.spec.Caption
			if text == "" {
				continue
			}
			if _, ok := cf.shaped[text]; ok {
				continue
			}
			if cf.emb == nil {
				emb := e.opts.Font
				if emb == nil {
					var err error
					if emb, err = fonts.GoRegular(); err != nil {
						return nil, fmt.Errorf("load caption font: %w", err)
					}
				}
				cf.emb = emb
			}
			glyphs := cf.emb.Shape(text)
			cf.shaped[text] = glyphs
			cf.used.Add(glyphs)
		}
	}
	return cf, nil
}

func (cf *captionFont) fontRef(doc *raw.Document) raw.ObjectRef {
	if !cf.added {
		cf.ref = cf.emb.Objects(doc, cf.used)
		cf.added = true
	}
	return cf.ref
}

// width returns the advance of glyphs at size, from the same widths the
// font dictionary declares.
func (cf *captionFont) width(glyphs []fonts.ShapedGlyph, size float64) float64 {
	var w float64
	for _, g := range glyphs {
		w += cf.emb.GlyphWidth(int(g.ID))
	}
	return w * size / 1000
}

// overlay paints the fill of every mark, then its caption.
func (e *Engine) overlay(marks []mark, resources *raw.DictObj, cf *captionFont) ([]contentstream.Op, error) {
	var ops []contentstream.Op
	fontName := ""
	for _, m := range marks {
		r := m.spec.Rect
		ops = append(ops,
			contentstream.NewOp("q"),
			contentstream.NewOp("rg", e.fill(m.spec).operands()...),
			contentstream.NewOp("re", num(r.LLX), num(r.LLY), num(r.Width()), num(r.Height())),
			contentstream.NewOp("f"),
			contentstream.NewOp("Q"))

		glyphs := cf.shaped[m.spec.Caption]
		if len(glyphs) == 0 {
			continue
		}
		if fontName == "" {
			var err error
			if fontName, err = e.addCaptionFont(resources, cf); err != nil {
				return nil, err
			}
		}
		size := e.captionSize(cf, glyphs, r)
		c := r.Center()
		x := c.X - cf.width(glyphs, size)/2
		y := c.Y - (cf.emb.Ascent+cf.emb.Descent)/2*size/1000
		ops = append(ops,
			contentstream.NewOp("q"),
			contentstream.NewOp("re", num(r.LLX), num(r.LLY), num(r.Width()), num(r.Height())),
			contentstream.NewOp("W"),
			contentstream.NewOp("n"),
			contentstream.NewOp("BT"),
			contentstream.NewOp("rg", e.captionColor(m.spec).operands()...),
			contentstream.NewOp("Tf", raw.NameLiteral(fontName), num(size)),
			contentstream.NewOp("Tm", raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), num(x), num(y)),
			contentstream.NewOp("Tj", raw.HexStr(fonts.Encode(glyphs))),
			contentstream.NewOp("ET"),
			contentstream.NewOp("Q"))
	}
	return ops, nil
}

// captionSize is the largest size, in half-point steps, at which the
// caption fits inside r with a one point margin on each side.
func (e *Engine) captionSize(cf *captionFont, glyphs []fonts.ShapedGlyph, r coords.Rect) float64 {
	height := (cf.emb.Ascent - cf.emb.Descent) / 1000
	size := e.opts.CaptionSize
	for ; size > e.opts.MinCaptionSize; size -= 0.5 {
		if cf.width(glyphs, size) <= r.Width()-2 && height*size <= r.Height() {
			break
		}
	}
	return max(size, e.opts.MinCaptionSize)
}

// addCaptionFont registers the caption font in the page's private
// resources and returns its resource name.
func (e *Engine) addCaptionFont(resources *raw.DictObj, cf *captionFont) (string, error) {
	res := e.ext.Resolver()
	var category *raw.DictObj
	if o, ok := resources.Get("Font"); ok {
		d, ok := res.Resolve(o).(*raw.DictObj)
		if !ok {
			return "", fmt.Errorf("page Font resources are not a dictionary")
		}
		category = d.Clone()
	} else {
		category = raw.Dict()
	}
	name := freshName(category, "RedactCaption")
	ref := cf.fontRef(e.doc)
	category.Set(name, raw.Ref(ref.Num, ref.Gen))
	resources.Set("Font", category)
	return name, nil
}

func freshName(d *raw.DictObj, base string) string {
	if _, taken := d.Get(base); !taken {
		return base
	}
	for i := 1; ; i++ {
		name := base + strconv.Itoa(i)
		if _, taken := d.Get(name); !taken {
			return name
		}
	}
}

func num(f float64) raw.Object {
	if f == float64(int64(f)) {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}
