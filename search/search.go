// Package search finds literal and pattern occurrences in page text and maps
// them back to glyph geometry, one rectangle per line.
package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/language"
	textsearch "golang.org/x/text/search"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/extractor"
)

// DefaultTimeout bounds a single pattern match.
const DefaultTimeout = 2 * time.Second

// Source supplies the lines of each page. *extractor.Extractor implements
// it.
type Source interface {
	PageCount() int
	Lines(ctx context.Context, page int) ([]extractor.Line, *contentstream.Result, error)
}

// Query describes what to look for.
type Query struct {
	Text string
	// Pattern switches from literal matching to regular expressions
	// (.NET syntax with lookarounds). Lines are joined with '\n' and ^ and
	// $ anchor at line boundaries.
	Pattern       bool
	CaseSensitive bool
	// Page restricts the search to one 0-based page; nil searches all.
	Page    *int
	Timeout time.Duration
}

// OnPage returns a page scope for Query.Page.
func OnPage(i int) *int { return &i }

// Range is the byte range of an operator in the decoded page content.
type Range struct {
	Start, End int64
}

// Match is one occurrence.
type Match struct {
	Page int
	Text string
	// Rects holds one rectangle per line the match spans, in reading order.
	Rects  []coords.Rect
	Ranges []Range
}

// Search runs q over src. Pattern queries are compiled once before any
// page is read.
func Search(ctx context.Context, src Source, q Query) ([]Match, error) {
	m, err := compile(q)
	if err != nil {
		return nil, err
	}
	pages := make([]int, 0, src.PageCount())
	if q.Page != nil {
		pages = append(pages, *q.Page)
	} else {
		for i := 0; i < src.PageCount(); i++ {
			pages = append(pages, i)
		}
	}

	var out []Match
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, result, err := src.Lines(ctx, p)
		if err != nil {
			return nil, err
		}
		found, err := searchPage(p, lines, result, m)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// matcher returns successive [start, end) byte ranges of matches in text.
type matcher interface {
	separator() string
	find(text string) ([][2]int, error)
}

func compile(q Query) (matcher, error) {
	if q.Text == "" {
		return nil, &MatchError{Kind: KindEmptyQuery, Page: -1}
	}
	if !q.Pattern {
		if q.CaseSensitive {
			return exact(q.Text), nil
		}
		m := textsearch.New(language.Und, textsearch.IgnoreCase)
		return folded{pat: m.CompileString(q.Text)}, nil
	}
	opts := regexp2.RegexOptions(regexp2.Multiline)
	if !q.CaseSensitive {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(q.Text, opts)
	if err != nil {
		return nil, &MatchError{Kind: KindInvalidPattern, Pattern: q.Text, Page: -1, Err: err}
	}
	re.MatchTimeout = q.Timeout
	if re.MatchTimeout <= 0 {
		re.MatchTimeout = DefaultTimeout
	}
	return pattern{re: re}, nil
}

type exact string

func (exact) separator() string { return " " }

func (e exact) find(text string) ([][2]int, error) {
	var out [][2]int
	for pos := 0; pos < len(text); {
		i := strings.Index(text[pos:], string(e))
		if i < 0 {
			break
		}
		start := pos + i
		out = append(out, [2]int{start, start + len(e)})
		pos = start + len(e)
	}
	return out, nil
}

type folded struct {
	pat *textsearch.Pattern
}

func (folded) separator() string { return " " }

func (f folded) find(text string) ([][2]int, error) {
	var out [][2]int
	for pos := 0; pos < len(text); {
		start, end := f.pat.IndexString(text[pos:])
		if start < 0 || end <= start {
			break
		}
		out = append(out, [2]int{pos + start, pos + end})
		pos += end
	}
	return out, nil
}

type pattern struct {
	re *regexp2.Regexp
}

func (pattern) separator() string { return "\n" }

func (p pattern) find(text string) ([][2]int, error) {
	runes := []rune(text)
	// regexp2 reports rune positions.
	offsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += utf8.RuneLen(r)
	}
	offsets[len(runes)] = off

	var out [][2]int
	m, err := p.re.FindRunesMatch(runes)
	for ; m != nil && err == nil; m, err = p.re.FindNextMatch(m) {
		if m.Length == 0 {
			continue
		}
		out = append(out, [2]int{offsets[m.Index], offsets[m.Index+m.Length]})
	}
	if err != nil {
		return nil, &MatchError{Kind: KindTimeout, Pattern: p.re.String(), Page: -1, Err: err}
	}
	return out, nil
}

// span is a character of the page text.
type span struct {
	start, end int
	line       int
	char       *extractor.Char
}

func searchPage(page int, lines []extractor.Line, result *contentstream.Result, m matcher) ([]Match, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	var spans []span
	sep := m.separator()
	for li := range lines {
		switch {
		case li == 0:
		case lines[li].Beside(lines[li-1]):
			// Columns never join into one phrase.
			sb.WriteByte('\n')
		default:
			sb.WriteString(sep)
		}
		base := sb.Len()
		for ci := range lines[li].Chars {
			c := &lines[li].Chars[ci]
			spans = append(spans, span{start: base + c.Offset, end: base + c.Offset + len(c.Text), line: li, char: c})
		}
		sb.WriteString(lines[li].Text)
	}
	text := sb.String()

	found, err := m.find(text)
	if err != nil {
		if me, ok := err.(*MatchError); ok {
			me.Page = page
		}
		return nil, err
	}
	var out []Match
	for _, f := range found {
		if match, ok := resolve(page, text, f[0], f[1], spans, result); ok {
			out = append(out, match)
		}
	}
	return out, nil
}

// resolve maps text[start:end] to the glyphs it covers. Inserted spaces and
// line separators contribute no geometry; a match made only of them is
// dropped.
func resolve(page int, text string, start, end int, spans []span, result *contentstream.Result) (Match, bool) {
	match := Match{Page: page, Text: text[start:end]}
	first := sort.Search(len(spans), func(i int) bool { return spans[i].end > start })
	line := -1
	seen := make(map[int]bool)
	for _, s := range spans[first:] {
		if s.start >= end {
			break
		}
		c := s.char
		if c.Synthetic() {
			continue
		}
		if s.line != line {
			match.Rects = append(match.Rects, c.Rect)
			line = s.line
		} else {
			last := &match.Rects[len(match.Rects)-1]
			*last = last.Union(c.Rect)
		}
		if !seen[c.Run] && c.Run < len(result.Runs) {
			seen[c.Run] = true
			run := result.Runs[c.Run]
			match.Ranges = append(match.Ranges, Range{Start: run.Start, End: run.End})
		}
	}
	if len(match.Rects) == 0 {
		return Match{}, false
	}
	sort.Slice(match.Ranges, func(i, j int) bool { return match.Ranges[i].Start < match.Ranges[j].Start })
	match.Ranges = dedupe(match.Ranges)
	return match, true
}

// dedupe drops repeated ranges, which occur when several runs come from
// the same form Do.
func dedupe(rs []Range) []Range {
	out := rs[:0]
	for _, r := range rs {
		if len(out) > 0 && out[len(out)-1] == r {
			continue
		}
		out = append(out, r)
	}
	return out
}
