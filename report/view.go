package report

import (
	"github.com/wudi/pdfredact/audit"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/session"
	"github.com/wudi/pdfredact/validate"
)

// The view types are the JSON shapes shared by the CLI and the MCP server.
// Page numbers are 0-based.

// Box is a rectangle in default user space.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func NewBox(r coords.Rect) Box { return Box{X0: r.LLX, Y0: r.LLY, X1: r.URX, Y1: r.URY} }

func (b Box) Rect() coords.Rect {
	return coords.Rect{LLX: b.X0, LLY: b.Y0, URX: b.X1, URY: b.Y1}.Normalize()
}

type MetadataView struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creation_date,omitempty"`
	ModDate      string `json:"mod_date,omitempty"`
}

type PageInfoView struct {
	Page       int     `json:"page"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Rotation   int     `json:"rotation"`
	HasImages  bool    `json:"has_images"`
	ImageCount int     `json:"image_count"`
	LinkCount  int     `json:"link_count"`
	Unreadable bool    `json:"unreadable,omitempty"`
}

type InfoView struct {
	Name        string         `json:"name,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	PageCount   int            `json:"page_count"`
	Version     string         `json:"version"`
	Encrypted   bool           `json:"is_encrypted"`
	Repaired    bool           `json:"repaired,omitempty"`
	Redacted    bool           `json:"redacted,omitempty"`
	HasImages   []bool         `json:"has_images_per_page"`
	Metadata    MetadataView   `json:"metadata"`
	Pages       []PageInfoView `json:"pages"`
}

func NewInfo(info *session.Info) InfoView {
	md := info.Metadata
	v := InfoView{
		Name:        info.Name,
		Fingerprint: info.Fingerprint,
		PageCount:   info.Pages,
		Version:     info.Version,
		Encrypted:   info.Encrypted,
		Repaired:    info.Repaired,
		Redacted:    info.Redacted,
		HasImages:   make([]bool, 0, len(info.PageInfo)),
		Pages:       make([]PageInfoView, 0, len(info.PageInfo)),
		Metadata: MetadataView{
			Title:        md.Title,
			Author:       md.Author,
			Subject:      md.Subject,
			Keywords:     md.Keywords,
			Creator:      md.Creator,
			Producer:     md.Producer,
			CreationDate: md.CreationDate,
			ModDate:      md.ModDate,
		},
	}
	for _, p := range info.PageInfo {
		v.HasImages = append(v.HasImages, p.HasImages())
		v.Pages = append(v.Pages, PageInfoView{
			Page:       p.Page,
			Width:      p.Width,
			Height:     p.Height,
			Rotation:   p.Rotation,
			HasImages:  p.HasImages(),
			ImageCount: p.Images,
			LinkCount:  p.Links,
			Unreadable: p.Unreadable,
		})
	}
	return v
}

type SpanView struct {
	Text  string `json:"text"`
	Box   Box    `json:"bbox"`
	Lines int    `json:"lines,omitempty"`
}

type PageTextView struct {
	Page       int        `json:"page"`
	Text       string     `json:"text"`
	WordCount  int        `json:"word_count"`
	Lines      []SpanView `json:"lines,omitempty"`
	Blocks     []SpanView `json:"blocks,omitempty"`
	Unreadable bool       `json:"unreadable,omitempty"`
}

func NewPageTexts(pages []extractor.PageText) []PageTextView {
	out := make([]PageTextView, 0, len(pages))
	for _, p := range pages {
		out = append(out, PageTextView{
			Page:       p.Page,
			Text:       p.Text,
			WordCount:  p.Words,
			Lines:      spans(p.Lines),
			Blocks:     spans(p.Blocks),
			Unreadable: p.Unreadable,
		})
	}
	return out
}

func spans(in []extractor.TextSpan) []SpanView {
	if len(in) == 0 {
		return nil
	}
	out := make([]SpanView, len(in))
	for i, s := range in {
		out[i] = SpanView{Text: s.Text, Box: NewBox(s.Rect), Lines: s.Lines}
	}
	return out
}

type MatchView struct {
	Page  int    `json:"page"`
	Text  string `json:"text"`
	Boxes []Box  `json:"bboxes"`
}

func NewMatches(matches []search.Match) []MatchView {
	out := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		mv := MatchView{Page: m.Page, Text: m.Text}
		for _, r := range m.Rects {
			mv.Boxes = append(mv.Boxes, NewBox(r))
		}
		out = append(out, mv)
	}
	return out
}

type ItemView struct {
	Index   int    `json:"index"`
	Page    int    `json:"page"`
	Box     Box    `json:"bbox"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

type PageReportView struct {
	Page               int      `json:"page"`
	Specs              int      `json:"specs"`
	GlyphsRemoved      int      `json:"glyphs_removed"`
	RunsRewritten      int      `json:"runs_rewritten"`
	ImagesRemoved      int      `json:"images_removed"`
	FormsInlined       int      `json:"forms_inlined,omitempty"`
	AnnotationsRemoved int      `json:"annotations_removed"`
	XObjectsRemoved    []string `json:"xobjects_removed,omitempty"`
	ThumbnailRemoved   bool     `json:"thumbnail_removed,omitempty"`
	Diagnostics        int      `json:"diagnostics,omitempty"`
}

type RedactionView struct {
	Applied int              `json:"applied"`
	Failed  int              `json:"failed"`
	Totals  PageReportView   `json:"totals"`
	Items   []ItemView       `json:"items"`
	Pages   []PageReportView `json:"pages"`
}

func NewRedaction(rep *redact.Report) RedactionView {
	v := RedactionView{
		Applied: rep.Applied(),
		Failed:  len(rep.Failures()),
		Totals:  pageReport(rep.Totals()),
		Items:   make([]ItemView, 0, len(rep.Items)),
		Pages:   make([]PageReportView, 0, len(rep.Pages)),
	}
	for _, it := range rep.Items {
		iv := ItemView{Index: it.Index, Page: it.Page, Box: NewBox(it.Rect), Applied: it.Applied}
		if it.Err != nil {
			iv.Error = it.Err.Error()
			iv.Kind = it.Err.Kind.String()
		}
		v.Items = append(v.Items, iv)
	}
	for _, p := range rep.Pages {
		v.Pages = append(v.Pages, pageReport(p))
	}
	return v
}

func pageReport(p redact.PageReport) PageReportView {
	return PageReportView{
		Page:               p.Page,
		Specs:              p.Specs,
		GlyphsRemoved:      p.GlyphsRemoved,
		RunsRewritten:      p.RunsRewritten,
		ImagesRemoved:      p.ImagesRemoved,
		FormsInlined:       p.FormsInlined,
		AnnotationsRemoved: p.AnnotationsRemoved,
		XObjectsRemoved:    p.XObjectsRemoved,
		ThumbnailRemoved:   p.ThumbnailRemoved,
		Diagnostics:        p.Diagnostics,
	}
}

type TermView struct {
	Term         string `json:"term"`
	StillPresent bool   `json:"still_present"`
	Occurrences  int    `json:"occurrences"`
	Pages        []int  `json:"pages,omitempty"`
}

type WordsView struct {
	Page     int `json:"page"`
	Original int `json:"original"`
	Redacted int `json:"redacted"`
	Removed  int `json:"removed"`
}

type CrossCheckView struct {
	Valid    bool     `json:"valid"`
	Problem  string   `json:"problem,omitempty"`
	Pages    int      `json:"pages"`
	Leaked   []string `json:"leaked,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type VerificationView struct {
	Verdict       string          `json:"verdict"`
	Passed        bool            `json:"passed"`
	OriginalPages int             `json:"original_pages"`
	RedactedPages int             `json:"redacted_pages"`
	PagesMatch    bool            `json:"pages_match"`
	WordsRemoved  int             `json:"words_removed"`
	Terms         []TermView      `json:"terms"`
	Words         []WordsView     `json:"words"`
	CrossCheck    *CrossCheckView `json:"cross_check,omitempty"`
}

// Verdict renders a pass/fail flag.
func Verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func NewVerification(v *validate.Verification) VerificationView {
	out := VerificationView{
		Verdict:       Verdict(v.Passed),
		Passed:        v.Passed,
		OriginalPages: v.OriginalPages,
		RedactedPages: v.RedactedPages,
		PagesMatch:    v.PagesMatch,
		WordsRemoved:  v.WordsRemoved,
		Terms:         make([]TermView, 0, len(v.Terms)),
		Words:         make([]WordsView, 0, len(v.Words)),
	}
	for _, t := range v.Terms {
		out.Terms = append(out.Terms, TermView{Term: t.Term, StillPresent: t.StillPresent, Occurrences: t.Occurrences, Pages: t.Pages})
	}
	for _, w := range v.Words {
		out.Words = append(out.Words, WordsView{Page: w.Page, Original: w.Original, Redacted: w.Redacted, Removed: w.Removed()})
	}
	if cc := v.CrossCheck; cc != nil {
		out.CrossCheck = &CrossCheckView{Valid: cc.Valid, Problem: cc.Problem, Pages: cc.Pages, Leaked: cc.Leaked, Warnings: cc.Warnings}
	}
	return out
}

// OutcomeView is the result of a redaction run written to a file.
type OutcomeView struct {
	Input        string            `json:"input"`
	Output       string            `json:"output"`
	Matches      []MatchView       `json:"matches,omitempty"`
	Redaction    RedactionView     `json:"redaction"`
	Verification *VerificationView `json:"verification,omitempty"`
}

type BatchView struct {
	Name    string         `json:"name"`
	Matches int            `json:"matches"`
	Error   string         `json:"error,omitempty"`
	Report  *RedactionView `json:"report,omitempty"`
}

func NewBatch(results []session.Result) []BatchView {
	out := make([]BatchView, 0, len(results))
	for _, r := range results {
		bv := BatchView{Name: r.Name, Matches: r.Matches}
		if r.Err != nil {
			bv.Error = r.Err.Error()
		}
		if r.Report != nil {
			rv := NewRedaction(r.Report)
			bv.Report = &rv
		}
		out = append(out, bv)
	}
	return out
}

type RunView struct {
	ID          int64  `json:"id"`
	Document    string `json:"document"`
	Origin      string `json:"origin"`
	Query       string `json:"query,omitempty"`
	Applied     int    `json:"applied"`
	Failed      int    `json:"failed"`
	Glyphs      int    `json:"glyphs"`
	Images      int    `json:"images"`
	Annotations int    `json:"annotations"`
	At          string `json:"at"`
}

func NewRuns(runs []audit.Run) []RunView {
	out := make([]RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunView{
			ID:          r.ID,
			Document:    r.Document,
			Origin:      r.Origin,
			Query:       r.Query,
			Applied:     r.Applied,
			Failed:      r.Failed,
			Glyphs:      r.Glyphs,
			Images:      r.Images,
			Annotations: r.Annotations,
			At:          r.At.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
