package validate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/parser"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/security"
	"github.com/wudi/pdfredact/testpdf"
	"github.com/wudi/pdfredact/validate"
	"github.com/wudi/pdfredact/writer"
)

func open(t *testing.T, data []byte) *extractor.Extractor {
	t.Helper()
	doc, err := parser.Open(context.Background(), data, parser.DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ext, err := extractor.New(doc, parser.NewStreamDecoder(doc, security.DefaultLimits()), extractor.Options{})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return ext
}

func TestStructureAndPlainText(t *testing.T) {
	data := testpdf.ContactDocument(t)
	pages, err := validate.Structure(data)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if pages != 3 {
		t.Errorf("pages = %d", pages)
	}
	texts, problems, err := validate.PlainText(data)
	if err != nil {
		t.Fatalf("PlainText: %v", err)
	}
	if len(texts) != 3 || len(problems) != 0 || !strings.Contains(texts[0], "Quarterly") {
		t.Errorf("texts = %q, problems = %q", texts, problems)
	}
}

func TestStructureRejectsGarbage(t *testing.T) {
	if _, err := validate.Structure([]byte("not a pdf")); err == nil {
		t.Fatal("expected an error")
	}
	cc := validate.Check(context.Background(), []byte("not a pdf"), nil)
	if cc.Valid || cc.Problem == "" {
		t.Errorf("cross check = %+v", cc)
	}
}

func TestCheckFindsLeaks(t *testing.T) {
	cc := validate.Check(context.Background(), testpdf.ContactDocument(t), []string{"JANE@example.com", "absent"})
	if !cc.Valid || cc.Pages != 3 {
		t.Fatalf("cross check = %+v", cc)
	}
	if len(cc.Leaked) != 1 || cc.Leaked[0] != "JANE@example.com" {
		t.Errorf("leaked = %q", cc.Leaked)
	}
}

func TestVerifyRedactedDocument(t *testing.T) {
	ctx := context.Background()
	src := testpdf.ContactDocument(t)
	original := open(t, src)

	work := open(t, src)
	matches, err := search.Search(ctx, work, search.Query{Text: "jane@example.com"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	eng := redact.NewEngine(work, redact.DefaultOptions())
	if err := eng.Mark(redact.FromMatches(matches, redact.Style{})...); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if _, err := eng.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := writer.Bytes(ctx, work.Document(), writer.DefaultConfig())
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	v, err := validate.Verify(ctx, original, open(t, out), []string{"jane@example.com", "555-0100"}, out)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.PagesMatch || v.OriginalPages != 3 {
		t.Errorf("pages = %d/%d", v.OriginalPages, v.RedactedPages)
	}
	if v.Terms[0].StillPresent || !v.Terms[1].StillPresent || v.Terms[1].Pages[0] != 0 {
		t.Errorf("terms = %+v", v.Terms)
	}
	if v.Passed {
		t.Error("verification passed although 555-0100 is still present")
	}
	if v.WordsRemoved != 1 || v.Words[0].Removed() != 1 {
		t.Errorf("words = %+v, removed %d", v.Words, v.WordsRemoved)
	}
	if v.CrossCheck == nil || !v.CrossCheck.Valid {
		t.Fatalf("cross check = %+v", v.CrossCheck)
	}
	if len(v.CrossCheck.Leaked) != 1 || v.CrossCheck.Leaked[0] != "555-0100" {
		t.Errorf("leaked = %q", v.CrossCheck.Leaked)
	}

	clean, err := validate.Verify(ctx, original, open(t, out), []string{"jane@example.com"}, out)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !clean.Passed {
		t.Errorf("verification failed: %+v", clean)
	}
}
