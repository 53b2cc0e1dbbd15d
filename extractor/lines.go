package extractor

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
)

// Char is one glyph of a line, or a space inserted where glyphs are far
// apart.
type Char struct {
	Text string
	Rect coords.Rect
	// Offset is the byte offset of Text in Line.Text.
	Offset int
	// Run and Glyph index the page result; both are -1 for inserted
	// spaces.
	Run, Glyph int
}

// Synthetic reports whether c was inserted by line grouping.
func (c Char) Synthetic() bool { return c.Run < 0 }

// Line is a sequence of glyphs sharing a baseline and writing direction,
// ordered along the direction.
type Line struct {
	Page     int
	Text     string
	Rect     coords.Rect
	Dir      coords.Point
	Baseline float64
	Size     float64
	Chars    []Char
}

// Runs lists the indexes of the runs contributing to l, in order of first
// appearance.
func (l Line) Runs() []int {
	var out []int
	seen := make(map[int]bool)
	for _, c := range l.Chars {
		if c.Run >= 0 && !seen[c.Run] {
			seen[c.Run] = true
			out = append(out, c.Run)
		}
	}
	return out
}

const (
	baselineTolerance = 0.5 // of the smaller font size
	minTolerance      = 1.0 // points
	spaceGap          = 0.2 // of the font size
	// columnGap separates glyphs on one baseline into distinct lines.
	columnGap = 3.0 // of the font size
)

type placed struct {
	run, glyph int
	text       string
	rect       coords.Rect
	start, end float64 // along the direction
}

type lineBuilder struct {
	dir      coords.Point
	baseline float64
	size     float64
	glyphs   []placed
}

// GroupLines groups runs into lines. Runs on baselines within half the
// smaller font size of each other (at least 1pt) and with the same
// direction share a line, unless a gap wider than three times the font
// size separates them. Lines are returned top to bottom, then left to
// right.
func GroupLines(page int, runs []contentstream.TextRun) []Line {
	var builders []*lineBuilder
	for ri := range runs {
		run := &runs[ri]
		if len(run.Glyphs) == 0 {
			continue
		}
		dir := run.Dir
		normal := coords.Point{X: -dir.Y, Y: dir.X}
		o := run.Glyphs[0].Origin
		base := dot(o, normal)
		size := run.Size
		if size <= 0 {
			size = run.Rect.Height()
		}

		var lb *lineBuilder
		for _, b := range builders {
			if dot(b.dir, dir) < 0.99 {
				continue
			}
			tol := math.Max(minTolerance, baselineTolerance*math.Min(b.size, size))
			if math.Abs(b.baseline-base) <= tol {
				lb = b
				break
			}
		}
		if lb == nil {
			lb = &lineBuilder{dir: dir, baseline: base, size: size}
			builders = append(builders, lb)
		}
		lb.size = math.Max(lb.size, size)
		for gi, g := range run.Glyphs {
			start, end := extent(g.Rect, dir)
			if end-start == 0 {
				// Zero-width glyphs sort by their origin.
				start = dot(g.Origin, dir)
				end = start
			}
			lb.glyphs = append(lb.glyphs, placed{run: ri, glyph: gi, text: g.Text, rect: g.Rect, start: start, end: end})
		}
	}

	lines := make([]Line, 0, len(builders))
	for _, b := range builders {
		lines = append(lines, b.build(page)...)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if math.Abs(lines[i].Baseline-lines[j].Baseline) > 1e-6 {
			return lines[i].Baseline > lines[j].Baseline
		}
		return lines[i].Rect.LLX < lines[j].Rect.LLX
	})
	return lines
}

// build orders the glyphs along the direction and cuts them into lines at
// column gaps.
func (b *lineBuilder) build(page int) []Line {
	sort.SliceStable(b.glyphs, func(i, j int) bool { return b.glyphs[i].start < b.glyphs[j].start })
	var out []Line
	from, reach := 0, math.Inf(-1)
	for i, g := range b.glyphs {
		if i > from && g.start-reach > columnGap*b.size {
			out = append(out, b.line(page, b.glyphs[from:i]))
			from = i
		}
		reach = math.Max(reach, g.end)
	}
	return append(out, b.line(page, b.glyphs[from:]))
}

func (b *lineBuilder) line(page int, glyphs []placed) Line {
	l := Line{Page: page, Dir: b.dir, Baseline: b.baseline, Size: b.size}
	var sb strings.Builder
	for i, g := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			if g.start-prev.end > spaceGap*b.size && !endsWithSpace(prev.text) && !startsWithSpace(g.text) {
				gap := coords.Rect{LLX: prev.rect.URX, LLY: prev.rect.LLY, URX: g.rect.LLX, URY: prev.rect.URY}.Normalize()
				l.Chars = append(l.Chars, Char{Text: " ", Rect: gap, Offset: sb.Len(), Run: -1, Glyph: -1})
				sb.WriteByte(' ')
			}
		}
		l.Chars = append(l.Chars, Char{Text: g.text, Rect: g.rect, Offset: sb.Len(), Run: g.run, Glyph: g.glyph})
		sb.WriteString(g.text)
		l.Rect = l.Rect.Union(g.rect)
	}
	l.Text = sb.String()
	return l
}

// Beside reports whether l sits on the baseline of prev, as the next
// column of a split line does.
func (l Line) Beside(prev Line) bool {
	return dot(l.Dir, prev.Dir) >= 0.99 && math.Abs(l.Baseline-prev.Baseline) <= 1e-6
}

// extent projects r onto dir.
func extent(r coords.Rect, dir coords.Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range [4]coords.Point{{X: r.LLX, Y: r.LLY}, {X: r.URX, Y: r.LLY}, {X: r.LLX, Y: r.URY}, {X: r.URX, Y: r.URY}} {
		v := dot(p, dir)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func dot(a, b coords.Point) float64 { return a.X*b.X + a.Y*b.Y }

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}
