// Package report renders session results as JSON or markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Writer renders views to an io.Writer.
type Writer struct {
	out    io.Writer
	format Format
	indent bool
}

type Option func(*Writer)

// WithIndent pretty-prints JSON output.
func WithIndent() Option { return func(w *Writer) { w.indent = true } }

func NewWriter(out io.Writer, format Format, opts ...Option) *Writer {
	w := &Writer{out: out, format: format}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) json(v any) error {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = w.out.Write(append(data, '\n'))
	return err
}

func (w *Writer) Info(v InfoView) error {
	if w.format == FormatJSON {
		return w.json(v)
	}
	md := markdown.NewMarkdown(w.out)
	title := v.Name
	if title == "" {
		title = "Document"
	}
	md.H1(title)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(v.PageCount)},
			{"Version", v.Version},
			{"Encrypted", yesNo(v.Encrypted)},
			{"Repaired", yesNo(v.Repaired)},
			{"Redacted", yesNo(v.Redacted)},
			{"Fingerprint", "`" + v.Fingerprint + "`"},
		},
	})
	md.PlainText("")

	var meta [][]string
	for _, kv := range [][2]string{
		{"Title", v.Metadata.Title},
		{"Author", v.Metadata.Author},
		{"Subject", v.Metadata.Subject},
		{"Keywords", v.Metadata.Keywords},
		{"Creator", v.Metadata.Creator},
		{"Producer", v.Metadata.Producer},
		{"Created", v.Metadata.CreationDate},
		{"Modified", v.Metadata.ModDate},
	} {
		if kv[1] != "" {
			meta = append(meta, []string{kv[0], escape(kv[1])})
		}
	}
	if len(meta) > 0 {
		md.H2("Metadata")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Key", "Value"}, Rows: meta})
		md.PlainText("")
	}

	md.H2("Pages")
	md.PlainText("")
	rows := make([][]string, 0, len(v.Pages))
	for _, p := range v.Pages {
		rows = append(rows, []string{
			strconv.Itoa(p.Page + 1),
			fmt.Sprintf("%.1f x %.1f", p.Width, p.Height),
			strconv.Itoa(p.Rotation),
			strconv.Itoa(p.ImageCount),
			strconv.Itoa(p.LinkCount),
		})
	}
	md.Table(markdown.TableSet{Header: []string{"Page", "Size (pt)", "Rotation", "Images", "Links"}, Rows: rows})
	return md.Build()
}

func (w *Writer) Text(pages []PageTextView) error {
	if w.format == FormatJSON {
		return w.json(pages)
	}
	md := markdown.NewMarkdown(w.out)
	for _, p := range pages {
		md.H2(fmt.Sprintf("Page %d", p.Page+1))
		md.PlainText("")
		switch {
		case p.Unreadable:
			md.Warning("The content of this page could not be decoded.")
		case len(p.Blocks) > 0:
			for _, b := range p.Blocks {
				md.PlainText(escape(b.Text))
				md.PlainText("")
			}
		case len(p.Lines) > 0:
			lines := make([]string, len(p.Lines))
			for i, l := range p.Lines {
				lines[i] = escape(l.Text)
			}
			md.BulletList(lines...)
		default:
			md.PlainText(escape(p.Text))
		}
		md.PlainText("")
		md.PlainText(fmt.Sprintf("_%d words_", p.WordCount))
		md.PlainText("")
	}
	return md.Build()
}

func (w *Writer) Matches(matches []MatchView) error {
	if w.format == FormatJSON {
		return w.json(matches)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Search results")
	md.PlainText("")
	if len(matches) == 0 {
		md.Note("No matches.")
		return md.Build()
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{strconv.Itoa(m.Page + 1), escape(m.Text), boxes(m.Boxes)})
	}
	md.Table(markdown.TableSet{Header: []string{"Page", "Text", "Rectangles"}, Rows: rows})
	return md.Build()
}

func (w *Writer) Redaction(v RedactionView) error {
	if w.format == FormatJSON {
		return w.json(v)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Redaction report")
	md.PlainText("")
	writeRedaction(md, v)
	return md.Build()
}

func writeRedaction(md *markdown.Markdown, v RedactionView) {
	md.Table(markdown.TableSet{
		Header: []string{"Applied", "Failed", "Glyphs removed", "Images removed", "Annotations removed"},
		Rows: [][]string{{
			strconv.Itoa(v.Applied),
			strconv.Itoa(v.Failed),
			strconv.Itoa(v.Totals.GlyphsRemoved),
			strconv.Itoa(v.Totals.ImagesRemoved),
			strconv.Itoa(v.Totals.AnnotationsRemoved),
		}},
	})
	md.PlainText("")
	if v.Failed == 0 {
		return
	}
	md.Warningf("%d redaction(s) could not be applied.", v.Failed)
	md.PlainText("")
	var failed []string
	for _, it := range v.Items {
		if it.Error != "" {
			failed = append(failed, fmt.Sprintf("#%d page %d: %s", it.Index, it.Page+1, it.Error))
		}
	}
	md.BulletList(failed...)
	md.PlainText("")
}

func (w *Writer) Outcome(v OutcomeView) error {
	if w.format == FormatJSON {
		return w.json(v)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Redaction report")
	md.PlainText("")
	md.PlainText(fmt.Sprintf("`%s` written to `%s`, %d match(es).", v.Input, v.Output, len(v.Matches)))
	md.PlainText("")
	writeRedaction(md, v.Redaction)
	if v.Verification != nil {
		writeVerification(md, *v.Verification)
	}
	return md.Build()
}

func (w *Writer) Verification(v VerificationView) error {
	if w.format == FormatJSON {
		return w.json(v)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Verification report")
	md.PlainText("")
	writeVerification(md, v)
	return md.Build()
}

func writeVerification(md *markdown.Markdown, v VerificationView) {
	md.H2("Verification: " + v.Verdict)
	md.PlainText("")
	if v.Passed {
		md.Tip("No verified term remains in the redacted document.")
	} else {
		md.Caution("The redacted document failed verification.")
	}
	md.PlainText("")

	rows := make([][]string, 0, len(v.Terms))
	for _, t := range v.Terms {
		status := "removed"
		if t.StillPresent {
			status = fmt.Sprintf("present (%d)", t.Occurrences)
		}
		rows = append(rows, []string{escape(t.Term), status, pageList(t.Pages)})
	}
	md.H2("Terms")
	md.PlainText("")
	md.Table(markdown.TableSet{Header: []string{"Term", "Status", "Pages"}, Rows: rows})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	md.PlainText(fmt.Sprintf("Original %d, redacted %d, words removed %d.", v.OriginalPages, v.RedactedPages, v.WordsRemoved))
	md.PlainText("")
	words := make([][]string, 0, len(v.Words))
	for _, pw := range v.Words {
		words = append(words, []string{strconv.Itoa(pw.Page + 1), strconv.Itoa(pw.Original), strconv.Itoa(pw.Redacted), strconv.Itoa(pw.Removed)})
	}
	md.Table(markdown.TableSet{Header: []string{"Page", "Original words", "Redacted words", "Removed"}, Rows: words})
	md.PlainText("")

	if cc := v.CrossCheck; cc != nil {
		md.H2("Independent check")
		md.PlainText("")
		items := []string{"Structure: " + validity(cc)}
		if len(cc.Leaked) > 0 {
			items = append(items, "Leaked: "+escape(strings.Join(cc.Leaked, ", ")))
		}
		for _, warn := range cc.Warnings {
			items = append(items, "Warning: "+escape(warn))
		}
		md.BulletList(items...)
	}
}

func (w *Writer) Batch(results []BatchView) error {
	if w.format == FormatJSON {
		return w.json(results)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Batch redaction")
	md.PlainText("")
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, applied := "ok", "0"
		if r.Error != "" {
			status = escape(r.Error)
		}
		if r.Report != nil {
			applied = strconv.Itoa(r.Report.Applied)
		}
		rows = append(rows, []string{escape(r.Name), strconv.Itoa(r.Matches), applied, status})
	}
	md.Table(markdown.TableSet{Header: []string{"Document", "Matches", "Applied", "Status"}, Rows: rows})
	return md.Build()
}

func (w *Writer) Runs(runs []RunView) error {
	if w.format == FormatJSON {
		return w.json(runs)
	}
	md := markdown.NewMarkdown(w.out)
	md.H1("Audit journal")
	md.PlainText("")
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		doc := r.Document
		if len(doc) > 12 {
			doc = doc[:12]
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10), r.At, "`" + doc + "`", r.Origin,
			strconv.Itoa(r.Applied), strconv.Itoa(r.Failed), strconv.Itoa(r.Glyphs), strconv.Itoa(r.Images),
		})
	}
	md.Table(markdown.TableSet{Header: []string{"Run", "At", "Document", "Origin", "Applied", "Failed", "Glyphs", "Images"}, Rows: rows})
	return md.Build()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func validity(cc *CrossCheckView) string {
	if cc.Valid {
		return fmt.Sprintf("valid, %d pages", cc.Pages)
	}
	return "invalid: " + escape(cc.Problem)
}

func boxes(bs []Box) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprintf("[%.1f %.1f %.1f %.1f]", b.X0, b.Y0, b.X1, b.Y1)
	}
	return strings.Join(parts, " ")
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ", ")
}

var escaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ")

// escape keeps document text from breaking table cells.
func escape(s string) string { return escaper.Replace(s) }
