// Package writer serializes a raw document, either as a compact full
// rewrite or as an incremental update appended to the source bytes.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/security"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

// ContentFilter selects how decodable streams are re-encoded by a full
// rewrite.
type ContentFilter int

const (
	FilterNone ContentFilter = iota
	FilterFlate
	FilterASCIIHex
	FilterASCII85
)

func (f ContentFilter) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterFlate:
		return "flate"
	case FilterASCIIHex:
		return "asciihex"
	case FilterASCII85:
		return "ascii85"
	}
	return "unknown"
}

// ParseContentFilter is the inverse of ContentFilter.String.
func ParseContentFilter(s string) (ContentFilter, error) {
	for _, f := range []ContentFilter{FilterNone, FilterFlate, FilterASCIIHex, FilterASCII85} {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown content filter %q", s)
}

type Config struct {
	// Version overrides the header version; the document's own version is
	// used when empty.
	Version PDFVersion
	// Compression is the flate level, -1 for the zlib default.
	Compression   int
	ContentFilter ContentFilter
	// Incremental appends changed objects to the source. Documents that were
	// redacted or decrypted are always rewritten in full.
	Incremental bool
	// Deterministic derives /ID from the output instead of random bytes.
	Deterministic bool
	Limits        security.Limits
	Logger        observability.Logger
}

func DefaultConfig() Config {
	return Config{
		Compression:   -1,
		ContentFilter: FilterFlate,
		Limits:        security.DefaultLimits(),
	}
}

func (c Config) encoder() filters.Encoder {
	switch c.ContentFilter {
	case FilterFlate:
		return filters.NewFlateEncoder(c.Compression)
	case FilterASCIIHex:
		return filters.NewASCIIHexEncoder()
	case FilterASCII85:
		return filters.NewASCII85Encoder()
	}
	return nil
}

// Write serializes doc to w. The document itself is not modified.
func Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	log := observability.OrNop(cfg.Logger)
	if cfg.Incremental {
		switch reason := incrementalRefusal(doc); reason {
		case "":
			return writeIncremental(ctx, doc, w, cfg, log)
		default:
			log.Warn("incremental update refused, rewriting in full", observability.String("reason", reason))
		}
	}
	return writeFull(ctx, doc, w, cfg, log)
}

// Bytes is Write into memory.
func Bytes(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, doc, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func incrementalRefusal(doc *raw.Document) string {
	switch {
	case doc.Redacted:
		return "document was redacted"
	case doc.Encrypted:
		return "source is encrypted"
	case len(doc.Source) == 0:
		return "no source bytes"
	case doc.Repaired:
		return "source cross-reference was repaired"
	}
	return ""
}

func version(doc *raw.Document, cfg Config) string {
	if cfg.Version != "" {
		return string(cfg.Version)
	}
	if doc.Version != "" {
		return doc.Version
	}
	return string(PDF17)
}
