package extractor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/pdfredact/coords"
)

// Granularity selects the structure Extract returns.
type Granularity int

const (
	GranularityPage Granularity = iota
	GranularityLine
	GranularityBlock
)

func (g Granularity) String() string {
	switch g {
	case GranularityLine:
		return "line"
	case GranularityBlock:
		return "block"
	}
	return "page"
}

// ParseGranularity accepts "page", "line" and "block" ("word-block" and
// "words" are aliases of block).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "page":
		return GranularityPage, nil
	case "line", "lines":
		return GranularityLine, nil
	case "block", "blocks", "word-block", "words":
		return GranularityBlock, nil
	}
	return 0, fmt.Errorf("unknown granularity %q", s)
}

// PageText is the text of one page. Lines or Blocks is filled depending on
// the granularity.
type PageText struct {
	Page   int
	Text   string
	Words  int
	Lines  []TextSpan
	Blocks []TextSpan
	// Unreadable is set when the page content could not be decoded.
	Unreadable bool
}

// TextSpan is a line or block with its bounding box.
type TextSpan struct {
	Text  string
	Rect  coords.Rect
	Lines int
}

// blockGap is the largest baseline distance, in line heights, between two
// lines of the same block.
const blockGap = 1.5

// Extract returns the text of page (0-based), or of every page when page
// is negative.
func (e *Extractor) Extract(ctx context.Context, page int, g Granularity) ([]PageText, error) {
	first, last := 0, e.PageCount()-1
	if page >= 0 {
		if _, err := e.PageInfo(page); err != nil {
			return nil, err
		}
		first, last = page, page
	}
	out := make([]PageText, 0, last-first+1)
	for i := first; i <= last; i++ {
		lines, r, err := e.Lines(ctx, i)
		if err != nil {
			return nil, err
		}
		pt := PageText{Page: i, Unreadable: r.Err != nil}
		texts := make([]string, len(lines))
		for j, l := range lines {
			texts[j] = l.Text
		}
		pt.Text = strings.Join(texts, "\n")
		pt.Words = CountWords(pt.Text)
		switch g {
		case GranularityLine:
			for _, l := range lines {
				pt.Lines = append(pt.Lines, TextSpan{Text: l.Text, Rect: l.Rect, Lines: 1})
			}
		case GranularityBlock:
			pt.Blocks = Blocks(lines)
		}
		out = append(out, pt)
	}
	return out, nil
}

// Blocks merges consecutive lines whose baselines are at most 1.5 line
// heights apart and that are not separated by a column gap.
func Blocks(lines []Line) []TextSpan {
	var out []TextSpan
	for i, l := range lines {
		if i > 0 && sameBlock(lines[i-1], l) {
			cur := &out[len(out)-1]
			cur.Text += "\n" + l.Text
			cur.Rect = cur.Rect.Union(l.Rect)
			cur.Lines++
			continue
		}
		out = append(out, TextSpan{Text: l.Text, Rect: l.Rect, Lines: 1})
	}
	return out
}

func sameBlock(a, b Line) bool {
	if dot(a.Dir, b.Dir) < 0.99 {
		return false
	}
	height := math.Max(a.Size, b.Size)
	if math.Abs(a.Baseline-b.Baseline) > blockGap*height {
		return false
	}
	// Lines of different columns never share a block.
	alo, ahi := extent(a.Rect, a.Dir)
	blo, bhi := extent(b.Rect, a.Dir)
	return math.Max(blo-ahi, alo-bhi) <= columnGap*height
}

// CountWords counts whitespace separated words.
func CountWords(s string) int { return len(strings.Fields(s)) }
