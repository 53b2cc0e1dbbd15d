package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/session"
)

// Tools binds the tool handlers to a session manager. Every call opens its
// documents and closes them before returning.
type Tools struct {
	Manager *session.Manager
	// BaseDir resolves relative paths when set.
	BaseDir string
	// Style is the default appearance; arguments override it.
	Style redact.Style
}

// Register adds every tool to s.
func (t *Tools) Register(s *Server) {
	s.AddTool(Tool{
		Name:        "get_pdf_info",
		Description: "Return page count, per-page size, rotation, image and link counts, encryption state and metadata of a PDF.",
		InputSchema: schema(docProps(nil), nil),
		Handler:     t.info,
	})
	s.AddTool(Tool{
		Name:        "extract_text",
		Description: "Extract text from one page or all pages. format is page, line or block; line and block include bounding boxes in PDF points with the origin at the bottom left.",
		InputSchema: schema(docProps(map[string]any{
			"page_number": prop("integer", "0-based page; all pages when omitted"),
			"format":      map[string]any{"type": "string", "enum": []string{"page", "line", "block"}},
		}), nil),
		Handler: t.extractText,
	})
	s.AddTool(Tool{
		Name:        "search",
		Description: "Find a literal string or a regular expression and return each match with its page and one bounding box per line it spans.",
		InputSchema: schema(docProps(queryProps(map[string]any{
			"search_string": prop("string", "text or pattern to find"),
		})), []string{"search_string"}),
		Handler: t.search,
	})
	s.AddTool(Tool{
		Name:        "redact_text_by_search",
		Description: "Remove every occurrence of the search strings from the content and paint a box over each. Returns the report and the redacted PDF as base64 unless output_path is given.",
		InputSchema: schema(docProps(styleProps(queryProps(map[string]any{
			"search_strings": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"output_path":    prop("string", "where to write the redacted PDF"),
		}))), []string{"search_strings"}),
		Handler: t.redactSearch,
	})
	s.AddTool(Tool{
		Name:        "redact_by_coordinates",
		Description: "Redact rectangles given as {page, bbox: [x0, y0, x1, y1], text} in PDF points with the origin at the bottom left.",
		InputSchema: schema(docProps(styleProps(map[string]any{
			"redactions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"page": prop("integer", "0-based page"),
						"bbox": map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 4, "maxItems": 4},
						"text": prop("string", "caption for this area"),
					},
					"required": []string{"page", "bbox"},
				},
			},
			"output_path": prop("string", "where to write the redacted PDF"),
		})), []string{"redactions"}),
		Handler: t.redactCoordinates,
	})
	s.AddTool(Tool{
		Name:        "redact_images",
		Description: "Remove every image on the given pages, or on all pages, and cover its area. The caption defaults to [IMAGE REDACTED].",
		InputSchema: schema(docProps(styleProps(map[string]any{
			"page_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"output_path":  prop("string", "where to write the redacted PDF"),
		})), nil),
		Handler: t.redactImages,
	})
	s.AddTool(Tool{
		Name:        "verify_redactions",
		Description: "Compare a redacted PDF with its original: report whether each search string is still present, page counts and words removed per page, and a PASS or FAIL verdict.",
		InputSchema: schema(map[string]any{
			"original_pdf":      prop("string", "path of the original PDF"),
			"original_pdf_data": prop("string", "original PDF as base64"),
			"redacted_pdf":      prop("string", "path of the redacted PDF"),
			"redacted_pdf_data": prop("string", "redacted PDF as base64"),
			"search_strings":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"independent_check": prop("boolean", "also validate the redacted file with independent readers"),
			"original_password": prop("string", "password of the original PDF"),
			"redacted_password": prop("string", "password of the redacted PDF"),
		}, nil),
		Handler: t.verify,
	})
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func schema(props map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func docProps(extra map[string]any) map[string]any {
	props := map[string]any{
		"pdf_path": prop("string", "path of the PDF; relative paths use the server base directory"),
		"pdf_data": prop("string", "the PDF as base64, instead of pdf_path"),
		"password": prop("string", "user or owner password of an encrypted PDF"),
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func queryProps(extra map[string]any) map[string]any {
	extra["case_sensitive"] = prop("boolean", "match case; default false")
	extra["use_regex"] = prop("boolean", "treat the strings as regular expressions")
	extra["page_number"] = prop("integer", "restrict to one 0-based page")
	return extra
}

func styleProps(extra map[string]any) map[string]any {
	rgb := map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 3, "maxItems": 3}
	extra["fill_color"] = rgb
	extra["text_color"] = rgb
	extra["overlay_text"] = prop("string", "caption drawn over each box")
	return extra
}

// docArgs names one input document.
type docArgs struct {
	Path     string `json:"pdf_path"`
	Data     string `json:"pdf_data"`
	Password string `json:"password"`
}

type styleArgs struct {
	Fill        []float64 `json:"fill_color"`
	TextColor   []float64 `json:"text_color"`
	OverlayText *string   `json:"overlay_text"`
	OutputPath  string    `json:"output_path"`
}

type queryArgs struct {
	CaseSensitive bool `json:"case_sensitive"`
	UseRegex      bool `json:"use_regex"`
	PageNumber    *int `json:"page_number"`
}

func (q queryArgs) query(text string) search.Query {
	return search.Query{Text: text, Pattern: q.UseRegex, CaseSensitive: q.CaseSensitive, Page: q.PageNumber}
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (t *Tools) resolve(path string) string {
	if t.BaseDir != "" && !filepath.IsAbs(path) {
		return filepath.Join(t.BaseDir, path)
	}
	return path
}

// open loads a document from a path or from base64 data.
func (t *Tools) open(ctx context.Context, path, data, password string) (session.Handle, error) {
	switch {
	case data != "":
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("decode base64 document: %w", err)
		}
		return t.Manager.Open(ctx, b, password)
	case path != "":
		return t.Manager.OpenFile(ctx, t.resolve(path), password)
	}
	return "", errors.New("either pdf_path or pdf_data is required")
}

func (t *Tools) style(a styleArgs) (redact.Style, error) {
	st := t.Style
	if a.OverlayText != nil {
		st.Caption = *a.OverlayText
	}
	var err error
	if st.Fill, err = rgb(a.Fill, st.Fill); err != nil {
		return st, fmt.Errorf("fill_color: %w", err)
	}
	if st.CaptionColor, err = rgb(a.TextColor, st.CaptionColor); err != nil {
		return st, fmt.Errorf("text_color: %w", err)
	}
	return st, nil
}

func rgb(v []float64, def *redact.Color) (*redact.Color, error) {
	if v == nil {
		return def, nil
	}
	if len(v) != 3 {
		return nil, fmt.Errorf("want 3 components, got %d", len(v))
	}
	c := redact.Color{R: v[0], G: v[1], B: v[2]}.Clamp()
	return &c, nil
}

// redactionResult is the payload of the redaction tools.
type redactionResult struct {
	OutputPath string               `json:"output_file,omitempty"`
	Data       string               `json:"pdf_data,omitempty"`
	Matches    []report.MatchView   `json:"matches,omitempty"`
	Report     report.RedactionView `json:"report"`
}

// finish saves h to outputPath, or into the result as base64.
func (t *Tools) finish(ctx context.Context, h session.Handle, outputPath string, res *redactionResult) (ToolResult, error) {
	if outputPath != "" {
		res.OutputPath = t.resolve(outputPath)
		if err := t.Manager.SaveFile(ctx, h, res.OutputPath, nil); err != nil {
			return ToolResult{}, err
		}
		return JSONResult(res)
	}
	out, err := t.Manager.Save(ctx, h, nil)
	if err != nil {
		return ToolResult{}, err
	}
	res.Data = base64.StdEncoding.EncodeToString(out)
	return JSONResult(res)
}

func (t *Tools) info(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a docArgs
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)
	info, err := t.Manager.Info(ctx, h)
	if err != nil {
		return ToolResult{}, err
	}
	return JSONResult(report.NewInfo(info))
}

func (t *Tools) extractText(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		docArgs
		PageNumber *int   `json:"page_number"`
		Format     string `json:"format"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	g, err := extractor.ParseGranularity(a.Format)
	if err != nil {
		return ToolResult{}, err
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)
	page := -1
	if a.PageNumber != nil {
		page = *a.PageNumber
	}
	pages, err := t.Manager.ExtractText(ctx, h, page, g)
	if err != nil {
		return ToolResult{}, err
	}
	return JSONResult(report.NewPageTexts(pages))
}

func (t *Tools) search(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		docArgs
		queryArgs
		Text string `json:"search_string"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)
	matches, err := t.Manager.Search(ctx, h, a.query(a.Text))
	if err != nil {
		return ToolResult{}, err
	}
	return JSONResult(map[string]any{"total_matches": len(matches), "matches": report.NewMatches(matches)})
}

func (t *Tools) redactSearch(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		docArgs
		queryArgs
		styleArgs
		Strings []string `json:"search_strings"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	if len(a.Strings) == 0 {
		return ToolResult{}, errors.New("search_strings is empty")
	}
	st, err := t.style(a.styleArgs)
	if err != nil {
		return ToolResult{}, err
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)

	merged := &redact.Report{}
	var matches []search.Match
	for _, s := range a.Strings {
		sr, err := t.Manager.RedactSearch(ctx, h, a.query(s), st)
		if err != nil {
			return ToolResult{}, err
		}
		matches = append(matches, sr.Matches...)
		merged.Items = append(merged.Items, sr.Report.Items...)
		merged.Pages = append(merged.Pages, sr.Report.Pages...)
	}
	return t.finish(ctx, h, a.OutputPath, &redactionResult{
		Matches: report.NewMatches(matches),
		Report:  report.NewRedaction(merged),
	})
}

func (t *Tools) redactCoordinates(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		docArgs
		styleArgs
		Redactions []struct {
			Page int       `json:"page"`
			BBox []float64 `json:"bbox"`
			Text *string   `json:"text"`
		} `json:"redactions"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	st, err := t.style(a.styleArgs)
	if err != nil {
		return ToolResult{}, err
	}
	specs := make([]redact.Spec, 0, len(a.Redactions))
	for i, r := range a.Redactions {
		if len(r.BBox) != 4 {
			return ToolResult{}, fmt.Errorf("redaction %d: bbox must be [x0, y0, x1, y1]", i)
		}
		box := report.Box{X0: r.BBox[0], Y0: r.BBox[1], X1: r.BBox[2], Y1: r.BBox[3]}
		spec := st.Spec(r.Page, box.Rect())
		if r.Text != nil {
			spec.Caption = *r.Text
		}
		specs = append(specs, spec)
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)
	rep, err := t.Manager.Redact(ctx, h, specs)
	if err != nil {
		return ToolResult{}, err
	}
	return t.finish(ctx, h, a.OutputPath, &redactionResult{Report: report.NewRedaction(rep)})
}

func (t *Tools) redactImages(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		docArgs
		styleArgs
		Pages []int `json:"page_numbers"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	st, err := t.style(a.styleArgs)
	if err != nil {
		return ToolResult{}, err
	}
	h, err := t.open(ctx, a.Path, a.Data, a.Password)
	if err != nil {
		return ToolResult{}, err
	}
	defer t.Manager.Close(h)
	rep, err := t.Manager.RedactImages(ctx, h, a.Pages, st)
	if err != nil {
		return ToolResult{}, err
	}
	return t.finish(ctx, h, a.OutputPath, &redactionResult{Report: report.NewRedaction(rep)})
}

func (t *Tools) verify(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var a struct {
		OriginalPath     string   `json:"original_pdf"`
		OriginalData     string   `json:"original_pdf_data"`
		OriginalPassword string   `json:"original_password"`
		RedactedPath     string   `json:"redacted_pdf"`
		RedactedData     string   `json:"redacted_pdf_data"`
		RedactedPassword string   `json:"redacted_password"`
		Terms            []string `json:"search_strings"`
		Independent      bool     `json:"independent_check"`
	}
	if err := decode(raw, &a); err != nil {
		return ToolResult{}, err
	}
	orig, err := t.open(ctx, a.OriginalPath, a.OriginalData, a.OriginalPassword)
	if err != nil {
		return ToolResult{}, fmt.Errorf("original: %w", err)
	}
	defer t.Manager.Close(orig)
	red, err := t.open(ctx, a.RedactedPath, a.RedactedData, a.RedactedPassword)
	if err != nil {
		return ToolResult{}, fmt.Errorf("redacted: %w", err)
	}
	defer t.Manager.Close(red)
	v, err := t.Manager.Verify(ctx, orig, red, a.Terms, a.Independent)
	if err != nil {
		return ToolResult{}, err
	}
	return JSONResult(report.NewVerification(v))
}
