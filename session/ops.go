package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wudi/pdfredact/audit"
	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/validate"
	"github.com/wudi/pdfredact/writer"
)

// Info describes an open document.
type Info struct {
	Handle      Handle
	Name        string
	Fingerprint string
	Pages       int
	Version     string
	Encrypted   bool
	Repaired    bool
	Redacted    bool
	Metadata    raw.DocumentMetadata
	PageInfo    []PageInfo
}

type PageInfo struct {
	Page     int
	Width    float64
	Height   float64
	Rotation int
	Images   int
	Links    int
	// Unreadable is set when the page content could not be decoded; image
	// counts are then zero.
	Unreadable bool
}

func (p PageInfo) HasImages() bool { return p.Images > 0 }

func (m *Manager) Info(ctx context.Context, h Handle) (*Info, error) {
	var info *Info
	err := m.read(h, func(d *document) error {
		info = &Info{
			Handle:      d.handle,
			Name:        d.name,
			Fingerprint: d.fingerprint,
			Pages:       d.ext.PageCount(),
			Version:     d.doc.Version,
			Encrypted:   d.doc.Encrypted,
			Repaired:    d.doc.Repaired,
			Redacted:    d.doc.Redacted,
			Metadata:    d.doc.Metadata,
		}
		for i := 0; i < info.Pages; i++ {
			page, err := d.ext.PageInfo(i)
			if err != nil {
				return err
			}
			pi := PageInfo{Page: i, Rotation: page.Rotate}
			pi.Width, pi.Height = page.Size()
			r, err := d.ext.Page(ctx, i)
			if err != nil {
				return err
			}
			pi.Unreadable = r.Err != nil
			pi.Images = len(r.Images)
			if pi.Links, err = d.ext.LinkCount(i); err != nil {
				return err
			}
			info.PageInfo = append(info.PageInfo, pi)
		}
		return nil
	})
	return info, err
}

// ExtractText returns the text of page, or of every page when page is
// negative.
func (m *Manager) ExtractText(ctx context.Context, h Handle, page int, g extractor.Granularity) ([]extractor.PageText, error) {
	var out []extractor.PageText
	err := m.traced(ctx, observability.SpanExtract, h, func(ctx context.Context) error {
		return m.read(h, func(d *document) error {
			var err error
			out, err = d.ext.Extract(ctx, page, g)
			return err
		})
	})
	return out, err
}

func (m *Manager) Search(ctx context.Context, h Handle, q search.Query) ([]search.Match, error) {
	var out []search.Match
	err := m.traced(ctx, observability.SpanSearch, h, func(ctx context.Context) error {
		return m.read(h, func(d *document) error {
			var err error
			out, err = search.Search(ctx, d.ext, q)
			return err
		})
	})
	return out, err
}

// Redact applies specs to the document in one pass. Per-spec failures are
// in the report.
func (m *Manager) Redact(ctx context.Context, h Handle, specs []redact.Spec) (*redact.Report, error) {
	var rep *redact.Report
	err := m.traced(ctx, observability.SpanRedact, h, func(ctx context.Context) error {
		return m.write(h, func(d *document) error {
			eng := redact.NewEngine(d.ext, m.opts.Redact)
			// Rejections are reported again by Apply.
			_ = eng.Mark(specs...)
			var err error
			if rep, err = eng.Apply(ctx); err != nil {
				return err
			}
			m.journal(ctx, d, audit.Run{Origin: "coordinates"}, rep)
			return nil
		})
	})
	return rep, err
}

// SearchRedaction is the result of RedactSearch.
type SearchRedaction struct {
	Matches []search.Match
	Report  *redact.Report
}

// RedactSearch searches the document and redacts every line rectangle of
// every match, under one exclusive lock.
func (m *Manager) RedactSearch(ctx context.Context, h Handle, q search.Query, style redact.Style) (*SearchRedaction, error) {
	var out *SearchRedaction
	err := m.traced(ctx, observability.SpanRedact, h, func(ctx context.Context) error {
		return m.write(h, func(d *document) error {
			matches, err := search.Search(ctx, d.ext, q)
			if err != nil {
				return err
			}
			eng := redact.NewEngine(d.ext, m.opts.Redact)
			_ = eng.Mark(redact.FromMatches(matches, style)...)
			rep, err := eng.Apply(ctx)
			if err != nil {
				return err
			}
			out = &SearchRedaction{Matches: matches, Report: rep}
			m.journal(ctx, d, audit.Run{Origin: "search", Query: audit.Fingerprint([]byte(q.Text))}, rep)
			return nil
		})
	})
	return out, err
}

// RedactImages removes every image on pages, or on all pages when pages is
// empty.
func (m *Manager) RedactImages(ctx context.Context, h Handle, pages []int, style redact.Style) (*redact.Report, error) {
	var rep *redact.Report
	err := m.traced(ctx, observability.SpanRedact, h, func(ctx context.Context) error {
		return m.write(h, func(d *document) error {
			if len(pages) == 0 {
				for i := 0; i < d.ext.PageCount(); i++ {
					pages = append(pages, i)
				}
			}
			eng := redact.NewEngine(d.ext, m.opts.Redact)
			n, _ := eng.MarkImages(ctx, style, pages...)
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			if rep, err = eng.Apply(ctx); err != nil {
				return err
			}
			m.log.Debug("images marked", observability.Int("images", n))
			m.journal(ctx, d, audit.Run{Origin: "images"}, rep)
			return nil
		})
	})
	return rep, err
}

func (m *Manager) journal(ctx context.Context, d *document, run audit.Run, rep *redact.Report) {
	t := rep.Totals()
	m.log.Info("redaction applied",
		observability.String("handle", string(d.handle)),
		observability.String("origin", run.Origin),
		observability.Int("applied", rep.Applied()),
		observability.Int(observability.MetricGlyphsRemoved, t.GlyphsRemoved),
		observability.Int(observability.MetricImagesRemoved, t.ImagesRemoved))
	if m.opts.Journal == nil {
		return
	}
	run.Document = d.fingerprint
	if _, err := m.opts.Journal.Record(ctx, run, rep); err != nil {
		m.log.Warn("audit record failed", observability.String("handle", string(d.handle)), observability.Error("error", err))
	}
}

// Verify checks redacted against original for terms. With crossCheck the
// redacted document is serialized and inspected by independent readers.
func (m *Manager) Verify(ctx context.Context, original, redacted Handle, terms []string, crossCheck bool) (v *validate.Verification, err error) {
	err = m.traced(ctx, observability.SpanVerify, redacted, func(ctx context.Context) error {
		v, err = m.verify(ctx, original, redacted, terms, crossCheck)
		return err
	})
	return v, err
}

func (m *Manager) verify(ctx context.Context, original, redacted Handle, terms []string, crossCheck bool) (*validate.Verification, error) {
	a, err := m.lookup(original)
	if err != nil {
		return nil, err
	}
	b, err := m.lookup(redacted)
	if err != nil {
		return nil, err
	}
	// Lock in handle order so that concurrent verifications cannot
	// deadlock against a pending redaction.
	first, second := a, b
	if second.handle < first.handle {
		first, second = second, first
	}
	first.mu.RLock()
	defer first.mu.RUnlock()
	if second != first {
		second.mu.RLock()
		defer second.mu.RUnlock()
	}

	var data []byte
	if crossCheck {
		if data, err = writer.Bytes(ctx, b.doc, m.opts.Writer); err != nil {
			return nil, fmt.Errorf("serialize for cross-check: %w", err)
		}
	}
	return validate.Verify(ctx, a.ext, b.ext, terms, data)
}

// Save serializes the document. A nil cfg selects the manager's writer
// configuration.
func (m *Manager) Save(ctx context.Context, h Handle, cfg *writer.Config) ([]byte, error) {
	var out []byte
	err := m.traced(ctx, observability.SpanWrite, h, func(ctx context.Context) error {
		return m.read(h, func(d *document) error {
			var err error
			out, err = writer.Bytes(ctx, d.doc, m.writerConfig(cfg))
			return err
		})
	})
	return out, err
}

// SaveFile writes the document to path through a temporary file in the
// same directory.
func (m *Manager) SaveFile(ctx context.Context, h Handle, path string, cfg *writer.Config) error {
	data, err := m.Save(ctx, h, cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (m *Manager) writerConfig(cfg *writer.Config) writer.Config {
	if cfg == nil {
		return m.opts.Writer
	}
	c := *cfg
	if c.Logger == nil {
		c.Logger = m.log
	}
	return c
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".pdfredact-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
