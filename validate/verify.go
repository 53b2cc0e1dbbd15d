package validate

import (
	"context"
	"fmt"

	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/search"
)

// TermCheck reports whether a term survived redaction.
type TermCheck struct {
	Term         string
	StillPresent bool
	Occurrences  int
	// Pages lists the 0-based pages that still contain the term.
	Pages []int
}

type PageWords struct {
	Page     int
	Original int
	Redacted int
}

func (p PageWords) Removed() int { return p.Original - p.Redacted }

// Verification compares a redacted document with its original.
type Verification struct {
	Terms         []TermCheck
	OriginalPages int
	RedactedPages int
	PagesMatch    bool
	Words         []PageWords
	WordsRemoved  int
	// CrossCheck is set when the redacted bytes were checked independently.
	CrossCheck *CrossCheck
	Passed     bool
}

// Verify searches redacted for every term, case-insensitively, and compares
// per-page word counts with original. When data holds the written redacted
// document it is also cross-checked with Check.
func Verify(ctx context.Context, original, redacted *extractor.Extractor, terms []string, data []byte) (*Verification, error) {
	v := &Verification{
		OriginalPages: original.PageCount(),
		RedactedPages: redacted.PageCount(),
	}
	v.PagesMatch = v.OriginalPages == v.RedactedPages
	v.Passed = v.PagesMatch

	for _, term := range terms {
		tc := TermCheck{Term: term}
		if term != "" {
			matches, err := search.Search(ctx, redacted, search.Query{Text: term})
			if err != nil {
				return nil, fmt.Errorf("verify term: %w", err)
			}
			tc.Occurrences = len(matches)
			for _, m := range matches {
				if len(tc.Pages) == 0 || tc.Pages[len(tc.Pages)-1] != m.Page {
					tc.Pages = append(tc.Pages, m.Page)
				}
			}
			tc.StillPresent = len(matches) > 0
		}
		if tc.StillPresent {
			v.Passed = false
		}
		v.Terms = append(v.Terms, tc)
	}

	before, err := original.Extract(ctx, -1, extractor.GranularityPage)
	if err != nil {
		return nil, fmt.Errorf("original text: %w", err)
	}
	after, err := redacted.Extract(ctx, -1, extractor.GranularityPage)
	if err != nil {
		return nil, fmt.Errorf("redacted text: %w", err)
	}
	for i := 0; i < max(len(before), len(after)); i++ {
		pw := PageWords{Page: i}
		if i < len(before) {
			pw.Original = before[i].Words
		}
		if i < len(after) {
			pw.Redacted = after[i].Words
		}
		v.WordsRemoved += pw.Removed()
		v.Words = append(v.Words, pw)
	}

	if data != nil {
		v.CrossCheck = Check(ctx, data, terms)
		if !v.CrossCheck.Valid || len(v.CrossCheck.Leaked) > 0 {
			v.Passed = false
		}
	}
	return v, nil
}
