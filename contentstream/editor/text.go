package editor

import (
	"math"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/ir/raw"
)

// Stats counts what RemoveCovered took out.
type Stats struct {
	Glyphs int
	Runs   int
	Images int
	// Unreached counts covered glyphs and images painted by forms that
	// were not inlined; they are still in the output.
	Unreached int
}

// RemoveCovered drops every glyph and image of result that regions cover.
// result must come from interpreting ops. Text operators losing glyphs
// are rewritten as TJ with a displacement standing in for each dropped
// glyph, so the glyphs that remain keep their positions.
//
// Marked-content sequences enclosing removed content lose the alternate
// text of their property lists. A named property list is turned into a
// plain BMC; Editor.Redact rewrites the named resource instead.
func RemoveCovered(ops []contentstream.Op, result *contentstream.Result, regions *Regions) ([]contentstream.Op, Stats) {
	return removeCovered(ops, result, regions, nil)
}

// scrubFunc strips the alternate text of the named property list and
// reports whether the name was found.
type scrubFunc func(name string) bool

func removeCovered(ops []contentstream.Op, result *contentstream.Result, regions *Regions, scrubNamed scrubFunc) ([]contentstream.Op, Stats) {
	var st Stats
	replace := make(map[int][]contentstream.Op)
	drop := make(map[int]bool)

	for i := range result.Runs {
		run := &result.Runs[i]
		hit := make([]bool, len(run.Glyphs))
		covered := false
		for g := range run.Glyphs {
			if regions.Hit(run.Glyphs[g].Rect) {
				hit[g], covered = true, true
			}
		}
		if !covered {
			continue
		}
		if len(run.Forms) > 0 {
			for _, h := range hit {
				if h {
					st.Unreached++
				}
			}
			continue
		}
		if run.Op < 0 || run.Op >= len(ops) {
			continue
		}
		rewritten, n := rewriteText(ops[run.Op], run, hit)
		replace[run.Op] = rewritten
		st.Glyphs += n
		st.Runs++
	}

	for _, img := range result.Images {
		if !regions.HitImage(img.Rect) {
			continue
		}
		if len(img.Forms) > 0 {
			st.Unreached++
			continue
		}
		if img.Op >= 0 && img.Op < len(ops) && !drop[img.Op] {
			drop[img.Op] = true
			st.Images++
		}
	}

	if len(replace) == 0 && len(drop) == 0 {
		return ops, st
	}
	touched := make(map[int]bool, len(replace)+len(drop))
	for i := range replace {
		touched[i] = true
	}
	for i := range drop {
		touched[i] = true
	}
	marked := enclosingMarked(ops, touched)

	out := make([]contentstream.Op, 0, len(ops)+len(replace))
	for i, op := range ops {
		switch {
		case drop[i]:
		case replace[i] != nil:
			out = append(out, replace[i]...)
		case marked[i]:
			out = append(out, scrubMarked(op, scrubNamed))
		default:
			out = append(out, op)
		}
	}
	return out, st
}

// alternateKeys hold text standing in for marked content.
var alternateKeys = []string{"ActualText", "Alt", "E"}

// enclosingMarked returns the indices of the BMC and BDC operators whose
// sequences contain a touched operator.
func enclosingMarked(ops []contentstream.Op, touched map[int]bool) map[int]bool {
	out := make(map[int]bool)
	var open []int
	for i, op := range ops {
		switch op.Kind {
		case contentstream.OpBeginMarked, contentstream.OpBeginMarkedProps:
			open = append(open, i)
		case contentstream.OpEndMarked:
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
		if touched[i] {
			for _, j := range open {
				out[j] = true
			}
		}
	}
	return out
}

// scrubMarked removes the alternate text from the property list of a BDC.
func scrubMarked(op contentstream.Op, scrubNamed scrubFunc) contentstream.Op {
	if op.Kind != contentstream.OpBeginMarkedProps || len(op.Operands) < 2 {
		return op
	}
	switch props := op.Operands[1].(type) {
	case *raw.DictObj:
		if !hasAlternate(props) {
			return op
		}
		return contentstream.NewOp("BDC", op.Operands[0], withoutAlternate(props))
	case raw.NameObj:
		if scrubNamed != nil && scrubNamed(props.Val) {
			return op
		}
		return contentstream.NewOp("BMC", op.Operands[0])
	}
	return op
}

func hasAlternate(d *raw.DictObj) bool {
	for _, k := range alternateKeys {
		if _, ok := d.Get(k); ok {
			return true
		}
	}
	return false
}

func withoutAlternate(d *raw.DictObj) *raw.DictObj {
	out := d.Clone()
	for _, k := range alternateKeys {
		out.Delete(k)
	}
	return out
}

// rewriteText rebuilds a text-show operator without the glyphs marked in
// hit. It returns the replacement operators and the number of glyphs
// dropped.
func rewriteText(op contentstream.Op, run *contentstream.TextRun, hit []bool) ([]contentstream.Op, int) {
	var items []raw.Object
	var prefix []contentstream.Op
	switch op.Kind {
	case contentstream.OpShowText:
		items = op.Operands[:1]
	case contentstream.OpShowTextArray:
		arr, _ := op.Operands[0].(*raw.ArrayObj)
		if arr != nil {
			items = arr.Items
		}
	case contentstream.OpNextLineShow:
		items = op.Operands[:1]
		prefix = []contentstream.Op{contentstream.NewOp("T*")}
	case contentstream.OpNextLineSpacingShow:
		items = op.Operands[2:3]
		prefix = []contentstream.Op{
			contentstream.NewOp("Tw", op.Operands[0]),
			contentstream.NewOp("Tc", op.Operands[1]),
			contentstream.NewOp("T*"),
		}
	default:
		return []contentstream.Op{op}, 0
	}

	// TJ numbers move by -n/1000 of the font size, scaled horizontally.
	unit := run.FontSize / 1000
	if !run.Vertical {
		unit *= run.HScale
	}

	b := tjBuilder{}
	dropped := 0
	g := 0
	for elem, item := range items {
		switch v := item.(type) {
		case raw.NumberObj:
			b.number(v.Float())
		case raw.StringObj:
			for ; g < len(run.Glyphs) && run.Glyphs[g].Elem == elem; g++ {
				gl := run.Glyphs[g]
				if !hit[g] {
					b.text(gl.Code, v.Hex)
					continue
				}
				dropped++
				if unit != 0 {
					b.number(-gl.Advance / unit)
				}
			}
		}
	}
	tj := contentstream.NewOp("TJ", raw.NewArray(b.items()...))
	return append(prefix, tj), dropped
}

// tjBuilder accumulates a TJ array, merging adjacent strings and numbers.
type tjBuilder struct {
	out  []raw.Object
	str  []byte
	hex  bool
	num  float64
	mode int // 0 empty, 1 string pending, 2 number pending
}

func (b *tjBuilder) text(code []byte, hex bool) {
	if b.mode == 2 {
		b.flush()
	}
	if b.mode == 1 && b.hex != hex {
		b.flush()
	}
	b.mode, b.hex = 1, hex
	b.str = append(b.str, code...)
}

func (b *tjBuilder) number(n float64) {
	if b.mode == 1 {
		b.flush()
	}
	b.mode = 2
	b.num += n
}

func (b *tjBuilder) flush() {
	switch b.mode {
	case 1:
		b.out = append(b.out, raw.StringObj{Bytes: b.str, Hex: b.hex})
		b.str = nil
	case 2:
		if n := round(b.num); n != 0 {
			b.out = append(b.out, number(n))
		}
		b.num = 0
	}
	b.mode = 0
}

func (b *tjBuilder) items() []raw.Object {
	b.flush()
	return b.out
}

func round(f float64) float64 { return math.Round(f*1000) / 1000 }

func number(f float64) raw.NumberObj {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}
