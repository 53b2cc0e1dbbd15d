package redact_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/parser"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/security"
	"github.com/wudi/pdfredact/testpdf"
)

func open(t *testing.T, data []byte) *extractor.Extractor {
	t.Helper()
	doc, err := parser.Open(context.Background(), data, parser.DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return wrap(t, doc)
}

func wrap(t *testing.T, doc *raw.Document) *extractor.Extractor {
	t.Helper()
	ext, err := extractor.New(doc, parser.NewStreamDecoder(doc, security.DefaultLimits()), extractor.Options{})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return ext
}

func pageText(t *testing.T, ext *extractor.Extractor, page int) string {
	t.Helper()
	pages, err := ext.Extract(context.Background(), page, extractor.GranularityPage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return pages[0].Text
}

func find(t *testing.T, ext *extractor.Extractor, text string) []search.Match {
	t.Helper()
	matches, err := search.Search(context.Background(), ext, search.Query{Text: text, CaseSensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	return matches
}

func TestRedactSearchMatch(t *testing.T) {
	ext := open(t, testpdf.ContactDocument(t))
	ctx := context.Background()
	matches := find(t, ext, "jane@example.com")
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}

	eng := redact.NewEngine(ext, redact.DefaultOptions())
	if err := eng.Mark(redact.FromMatches(matches, redact.Style{})...); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	rep, err := eng.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.Applied() != 1 || len(rep.Failures()) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if tot := rep.Totals(); tot.GlyphsRemoved != len("jane@example.com") || tot.RunsRewritten != 1 {
		t.Errorf("totals = %+v", tot)
	}
	if !ext.Document().Redacted {
		t.Errorf("document not flagged as redacted")
	}

	if again := find(t, ext, "jane@example.com"); len(again) != 0 {
		t.Fatalf("term still found: %+v", again)
	}
	text := pageText(t, ext, 0)
	if strings.Contains(text, "jane") || !strings.Contains(text, "555-0100") || !strings.Contains(text, "Quarterly summary") {
		t.Errorf("page text = %q", text)
	}
	r, err := ext.Page(ctx, 0)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if bytes.Contains(r.Content, []byte("jane")) {
		t.Errorf("page content still carries the address: %s", r.Content)
	}
	if !bytes.Contains(r.Content, []byte("re\nf")) {
		t.Errorf("fill not painted: %s", r.Content)
	}
	// The remaining text keeps its position.
	rest := find(t, ext, "555-0100")
	if len(rest) != 1 {
		t.Fatalf("kept text not found")
	}
	if other := pageText(t, ext, 1); other != "Page two has no personal data." {
		t.Errorf("page 2 text = %q", other)
	}
}

func TestOrderIndependence(t *testing.T) {
	a := coords.Rect{LLX: 72, LLY: 700, URX: 100, URY: 760}
	b := coords.Rect{LLX: 140, LLY: 700, URX: 180, URY: 760}
	var texts []string
	for _, order := range [][]coords.Rect{{a, b}, {b, a}} {
		ext := open(t, testpdf.ContactDocument(t))
		eng := redact.NewEngine(ext, redact.DefaultOptions())
		for _, r := range order {
			if err := eng.Mark(redact.Spec{Page: 0, Rect: r}); err != nil {
				t.Fatalf("Mark: %v", err)
			}
		}
		if _, err := eng.Apply(context.Background()); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		texts = append(texts, pageText(t, ext, 0))
	}
	if texts[0] != texts[1] {
		t.Fatalf("texts differ:\n%q\n%q", texts[0], texts[1])
	}
}

func TestPerSpecFailures(t *testing.T) {
	ext := open(t, testpdf.ContactDocument(t))
	eng := redact.NewEngine(ext, redact.DefaultOptions())
	err := eng.Mark(
		redact.Spec{Page: 7, Rect: coords.Rect{LLX: 0, LLY: 0, URX: 10, URY: 10}},
		redact.Spec{Page: 0, Rect: coords.Rect{LLX: 5, LLY: 5, URX: 5, URY: 90}},
		redact.Spec{Page: 2, Rect: coords.Rect{LLX: 0, LLY: 700, URX: 600, URY: 800}},
	)
	if !errors.Is(err, redact.ErrOutOfRange) || !errors.Is(err, redact.ErrEmptySpec) {
		t.Fatalf("Mark error = %v", err)
	}
	if eng.Pending() != 1 {
		t.Fatalf("pending = %d", eng.Pending())
	}
	rep, err := eng.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(rep.Items) != 3 {
		t.Fatalf("items = %+v", rep.Items)
	}
	wantKinds := []redact.ErrorKind{redact.KindOutOfRange, redact.KindEmptySpec}
	for i, k := range wantKinds {
		it := rep.Items[i]
		if it.Index != i || it.Applied || it.Err == nil || it.Err.Kind != k {
			t.Errorf("item %d = %+v", i, it)
		}
	}
	if !rep.Items[2].Applied {
		t.Errorf("valid spec not applied: %+v", rep.Items[2])
	}
	if text := pageText(t, ext, 2); text != "" {
		t.Errorf("page 3 text = %q", text)
	}
}

func TestRedactImages(t *testing.T) {
	ext := open(t, testpdf.ImageDocument(t))
	ctx := context.Background()
	imgs, err := ext.Images(ctx, 1)
	if err != nil || len(imgs) != 1 {
		t.Fatalf("images before = %+v, %v", imgs, err)
	}
	name := imgs[0].ResourceName
	if imgs[0].Ref == (raw.ObjectRef{}) {
		t.Fatalf("image has no object id")
	}

	eng := redact.NewEngine(ext, redact.DefaultOptions())
	n, err := eng.MarkImages(ctx, redact.Style{}, 1)
	if err != nil || n != 1 {
		t.Fatalf("MarkImages = %d, %v", n, err)
	}
	if _, err := eng.MarkImages(ctx, redact.Style{}, 9); !errors.Is(err, redact.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	rep, err := eng.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	tot := rep.Totals()
	if tot.ImagesRemoved != 1 || tot.GlyphsRemoved != 0 {
		t.Errorf("totals = %+v", tot)
	}
	if len(tot.XObjectsRemoved) != 1 || tot.XObjectsRemoved[0] != name {
		t.Errorf("xobjects removed = %v, want [%s]", tot.XObjectsRemoved, name)
	}

	after, err := ext.Images(ctx, 1)
	if err != nil || len(after) != 0 {
		t.Fatalf("images after = %+v, %v", after, err)
	}
	// gofpdf shares one resource dictionary between pages; no page may
	// keep the image reachable.
	for _, page := range ext.Pages() {
		o, _ := page.Resources.Get("XObject")
		xo, ok := ext.Resolver().Resolve(o).(*raw.DictObj)
		if !ok {
			continue
		}
		for _, k := range xo.Keys() {
			if ref, ok := xo.KV[k].(raw.RefObj); ok && ref.R == imgs[0].Ref {
				t.Errorf("page %d still lists the image as %s", page.Index+1, k)
			}
		}
	}
	text := pageText(t, ext, 1)
	if !strings.Contains(text, "IMAGE REDACTED") || !strings.Contains(text, "Figure caption below the photo") {
		t.Errorf("page 2 text = %q", text)
	}
}

// annotatedDocument is a one-page document whose content cannot be decoded
// when broken is set.
func annotatedDocument(broken bool) *raw.Document {
	doc := raw.NewDocument()
	cd := raw.Dict()
	if broken {
		cd.Set("Filter", raw.NameLiteral("JBIG2Decode"))
	}
	content := doc.Add(raw.NewStream(cd, []byte("BT /F1 12 Tf 10 10 Td (secret) Tj ET")))

	annot := func(subtype string, llx, lly, urx, ury int64) *raw.DictObj {
		a := raw.Dict()
		a.Set("Subtype", raw.NameLiteral(subtype))
		a.Set("Rect", raw.NewArray(raw.NumberInt(llx), raw.NumberInt(lly), raw.NumberInt(urx), raw.NumberInt(ury)))
		return a
	}
	note := doc.Add(annot("Text", 10, 10, 30, 30))
	popup := annot("Popup", 300, 300, 400, 400)
	popup.Set("Parent", raw.Ref(note.Num, 0))
	thumb := doc.Add(raw.NewStream(raw.Dict(), []byte{1, 2, 3}))

	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	page.Set("Contents", raw.Ref(content.Num, 0))
	page.Set("Thumb", raw.Ref(thumb.Num, 0))
	page.Set("Annots", raw.NewArray(
		raw.Ref(note.Num, 0),
		popup,
		annot("Widget", 0, 0, 50, 50),
		annot("Link", 500, 500, 550, 550),
	))
	pageRef := doc.Add(page)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(pageRef.Num, 0)))
	pages.Set("Count", raw.NumberInt(1))
	pagesRef := doc.Add(pages)
	page.Set("Parent", raw.Ref(pagesRef.Num, 0))
	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", raw.Ref(pagesRef.Num, 0))
	catRef := doc.Add(cat)
	doc.Trailer.Set("Root", raw.Ref(catRef.Num, 0))
	return doc
}

func TestPurgeAnnotationsAndThumbnail(t *testing.T) {
	doc := annotatedDocument(false)
	ext := wrap(t, doc)
	eng := redact.NewEngine(ext, redact.DefaultOptions())
	if err := eng.Mark(redact.Spec{Page: 0, Rect: coords.Rect{LLX: 0, LLY: 0, URX: 100, URY: 100}}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	rep, err := eng.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	pr := rep.Pages[0]
	if pr.AnnotationsRemoved != 2 || !pr.ThumbnailRemoved {
		t.Errorf("page report = %+v", pr)
	}
	page, _ := ext.PageInfo(0)
	if _, ok := page.Dict.Get("Thumb"); ok {
		t.Errorf("thumbnail still referenced")
	}
	var kept []string
	for _, a := range page.Annotations(doc) {
		kept = append(kept, a.Subtype)
	}
	if strings.Join(kept, ",") != "Widget,Link" {
		t.Errorf("kept annotations = %v", kept)
	}
	if text := pageText(t, ext, 0); strings.Contains(text, "secret") {
		t.Errorf("text still present: %q", text)
	}
}

func TestContentUnavailable(t *testing.T) {
	doc := annotatedDocument(true)
	ext := wrap(t, doc)
	eng := redact.NewEngine(ext, redact.DefaultOptions())
	if err := eng.Mark(redact.Spec{Page: 0, Rect: coords.Rect{LLX: 0, LLY: 0, URX: 100, URY: 100}}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	rep, err := eng.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	fails := rep.Failures()
	if len(fails) != 1 || !errors.Is(fails[0], redact.ErrContentUnavailable) || !errors.Is(fails[0], parser.ErrUnsupportedFilter) {
		t.Fatalf("failures = %v", fails)
	}
	if doc.Redacted {
		t.Errorf("document flagged as redacted although nothing was applied")
	}
	page, _ := ext.PageInfo(0)
	if _, ok := page.Dict.Get("Thumb"); !ok {
		t.Errorf("page residue touched on failure")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want redact.Color
	}{
		{"black", redact.Black},
		{" White ", redact.White},
		{"#ff8000", redact.Color{R: 1, G: 128.0 / 255}},
		{"0.5, 2, -1", redact.Color{R: 0.5, G: 1}},
	}
	for _, tt := range tests {
		got, err := redact.ParseColor(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseColor(%q) = %+v, %v", tt.in, got, err)
		}
	}
	for _, bad := range []string{"", "#12", "1,2", "a,b,c"} {
		if _, err := redact.ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) accepted", bad)
		}
	}
}
