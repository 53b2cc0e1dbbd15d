// Package validate checks written documents with readers that share no code
// with this module, and compares a redacted document with its original.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/cases"
)

var configOnce sync.Once

func pdfcpuConfig() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Structure parses and validates data with pdfcpu and returns its page
// count.
func Structure(data []byte) (int, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, fmt.Errorf("pdfcpu validate: %w", err)
	}
	return ctx.PageCount, nil
}

// PlainText returns the text of every page as read by ledongthuc/pdf. A
// page that reader cannot handle yields an empty string and an entry in
// problems.
func PlainText(data []byte) (pages []string, problems []string, err error) {
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("plain text reader: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, n)
	fonts := make(map[string]*lpdf.Font)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			problems = append(problems, fmt.Sprintf("page %d not found", i))
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			problems = append(problems, fmt.Sprintf("page %d: %v", i, err))
			continue
		}
		pages[i-1] = text
	}
	return pages, problems, nil
}

// CrossCheck is the independent verdict on written output.
type CrossCheck struct {
	Valid bool
	// Problem explains why Valid is false.
	Problem  string
	Pages    int
	Leaked   []string
	Warnings []string
}

// Check validates data and looks for terms in its independently extracted
// text, ignoring case.
func Check(ctx context.Context, data []byte, terms []string) *CrossCheck {
	cc := &CrossCheck{}
	pages, err := Structure(data)
	if err != nil {
		cc.Problem = err.Error()
		return cc
	}
	cc.Valid, cc.Pages = true, pages
	if ctx.Err() != nil {
		cc.Warnings = append(cc.Warnings, ctx.Err().Error())
		return cc
	}

	texts, problems, err := PlainText(data)
	if err != nil {
		cc.Warnings = append(cc.Warnings, err.Error())
		return cc
	}
	cc.Warnings = append(cc.Warnings, problems...)
	fold := cases.Fold()
	all := fold.String(strings.Join(texts, "\n"))
	for _, term := range terms {
		if term != "" && strings.Contains(all, fold.String(term)) {
			cc.Leaked = append(cc.Leaked, term)
		}
	}
	return cc
}
