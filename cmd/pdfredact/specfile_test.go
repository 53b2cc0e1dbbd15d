package main

import (
	"strings"
	"testing"

	"github.com/wudi/pdfredact/redact"
)

func TestParseSpec(t *testing.T) {
	data := []byte(`
style:
  fill: "#ff0000"
  caption: REDACTED
search:
  - text: jane@example.com
  - text: '\d{3}-\d{4}'
    regex: true
    page: 0
areas:
  - page: 1
    rect: [72, 700, 300, 720]
    caption: WITHHELD
    fill: white
images:
  pages: [2]
`)
	p, err := parseSpec(data, redact.Style{})
	if err != nil {
		t.Fatalf("parseSpec: %v", err)
	}
	if p.Style.Fill == nil || p.Style.Fill.R != 1 || p.Style.Caption != "REDACTED" {
		t.Errorf("style = %+v", p.Style)
	}
	if len(p.Queries) != 2 || p.Queries[0].Pattern || !p.Queries[1].Pattern {
		t.Fatalf("queries = %+v", p.Queries)
	}
	if p.Queries[1].Page == nil || *p.Queries[1].Page != 0 {
		t.Errorf("page filter = %v", p.Queries[1].Page)
	}
	if len(p.Areas) != 1 {
		t.Fatalf("areas = %+v", p.Areas)
	}
	a := p.Areas[0]
	if a.Page != 1 || a.Caption != "WITHHELD" || a.Rect.LLX != 72 || a.Rect.URY != 720 {
		t.Errorf("area = %+v", a)
	}
	if a.Fill == nil || a.Fill.G != 1 {
		t.Errorf("area fill = %+v", a.Fill)
	}
	if !p.Images || len(p.ImagePages) != 1 || p.ImageStyle.Caption != "" {
		t.Errorf("images = %v %v %q", p.Images, p.ImagePages, p.ImageStyle.Caption)
	}
}

func TestParseSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "style:\n  fill: black\n", "nothing to redact"},
		{"empty text", "search:\n  - regex: true\n", "text is empty"},
		{"short rect", "areas:\n  - page: 0\n    rect: [1, 2, 3]\n", "rect"},
		{"bad color", "style:\n  fill: plaid\nsearch:\n  - text: a\n", "plaid"},
		{"bad yaml", "search: [", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSpec([]byte(tt.data), redact.Style{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestApplyStyleKeepsBase(t *testing.T) {
	black := redact.Color{}
	base := redact.Style{Fill: &black, Caption: "X"}
	st, err := applyStyle(base, "", "white", nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Fill != &black || st.Caption != "X" || st.CaptionColor == nil || st.CaptionColor.B != 1 {
		t.Errorf("style = %+v", st)
	}
	empty := ""
	if st, _ = applyStyle(base, "", "", &empty); st.Caption != "" {
		t.Errorf("caption not cleared: %q", st.Caption)
	}
}

func TestRedactedName(t *testing.T) {
	for in, want := range map[string]string{
		"dir/a.pdf": "a.redacted.pdf",
		"B.PDF":     "B.redacted.pdf",
		"notes":     "notes.redacted.pdf",
		"x.tar.pdf": "x.tar.redacted.pdf",
	} {
		if got := redactedName(in); got != want {
			t.Errorf("redactedName(%q) = %q, want %q", in, got, want)
		}
	}
}
