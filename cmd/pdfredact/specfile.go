package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/search"
)

// specFile is the YAML redaction plan read by "redact --spec":
//
//	style:
//	  fill: black
//	  caption: REDACTED
//	  caption_color: white
//	search:
//	  - text: jane@example.com
//	  - text: '\d{3}-\d{4}'
//	    regex: true
//	areas:
//	  - page: 0
//	    rect: [72, 700, 300, 720]
//	    caption: WITHHELD
//	images:
//	  pages: [1, 2]
type specFile struct {
	Style  styleSpec    `yaml:"style"`
	Search []searchSpec `yaml:"search"`
	Areas  []areaSpec   `yaml:"areas"`
	Images *imageSpec   `yaml:"images"`
}

type styleSpec struct {
	Fill         string  `yaml:"fill"`
	Caption      *string `yaml:"caption"`
	CaptionColor string  `yaml:"caption_color"`
}

type searchSpec struct {
	Text          string        `yaml:"text"`
	Regex         bool          `yaml:"regex"`
	CaseSensitive bool          `yaml:"case_sensitive"`
	Page          *int          `yaml:"page"`
	Timeout       time.Duration `yaml:"timeout"`
}

type areaSpec struct {
	Page         int       `yaml:"page"`
	Rect         []float64 `yaml:"rect"`
	Caption      *string   `yaml:"caption"`
	Fill         string    `yaml:"fill"`
	CaptionColor string    `yaml:"caption_color"`
}

type imageSpec struct {
	// Pages lists 0-based pages; empty means every page.
	Pages   []int   `yaml:"pages"`
	Caption *string `yaml:"caption"`
}

// plan is a validated specFile.
type plan struct {
	Style   redact.Style
	Queries []search.Query
	Areas   []redact.Spec
	Images  bool
	// ImagePages empty means every page.
	ImagePages []int
	ImageStyle redact.Style
}

func (p *plan) empty() bool {
	return len(p.Queries) == 0 && len(p.Areas) == 0 && !p.Images
}

func loadSpecFile(path string, base redact.Style) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := parseSpec(data, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func parseSpec(data []byte, base redact.Style) (*plan, error) {
	var sf specFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	style, err := applyStyle(base, sf.Style.Fill, sf.Style.CaptionColor, sf.Style.Caption)
	if err != nil {
		return nil, err
	}
	p := &plan{Style: style}
	for i, s := range sf.Search {
		if s.Text == "" {
			return nil, fmt.Errorf("search %d: text is empty", i)
		}
		p.Queries = append(p.Queries, search.Query{
			Text:          s.Text,
			Pattern:       s.Regex,
			CaseSensitive: s.CaseSensitive,
			Page:          s.Page,
			Timeout:       s.Timeout,
		})
	}
	for i, a := range sf.Areas {
		if len(a.Rect) != 4 {
			return nil, fmt.Errorf("area %d: rect must be [x0, y0, x1, y1]", i)
		}
		st, err := applyStyle(style, a.Fill, a.CaptionColor, a.Caption)
		if err != nil {
			return nil, fmt.Errorf("area %d: %w", i, err)
		}
		box := report.Box{X0: a.Rect[0], Y0: a.Rect[1], X1: a.Rect[2], Y1: a.Rect[3]}
		p.Areas = append(p.Areas, st.Spec(a.Page, box.Rect()))
	}
	if sf.Images != nil {
		p.Images = true
		p.ImagePages = sf.Images.Pages
		p.ImageStyle = style
		p.ImageStyle.Caption = ""
		if sf.Images.Caption != nil {
			p.ImageStyle.Caption = *sf.Images.Caption
		}
	}
	if p.empty() {
		return nil, errors.New("nothing to redact")
	}
	return p, nil
}

// applyStyle overrides base with the non-empty values.
func applyStyle(base redact.Style, fill, captionColor string, caption *string) (redact.Style, error) {
	st := base
	if fill != "" {
		c, err := redact.ParseColor(fill)
		if err != nil {
			return st, err
		}
		st.Fill = &c
	}
	if captionColor != "" {
		c, err := redact.ParseColor(captionColor)
		if err != nil {
			return st, err
		}
		st.CaptionColor = &c
	}
	if caption != nil {
		st.Caption = *caption
	}
	return st, nil
}
