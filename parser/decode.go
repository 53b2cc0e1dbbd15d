package parser

import (
	"context"
	"errors"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/security"
)

// StreamDecoder decodes stream payloads of one document on demand. Results
// are memoized on the streams themselves.
type StreamDecoder struct {
	doc      *raw.Document
	pipeline *filters.Pipeline
}

func NewStreamDecoder(doc *raw.Document, limits security.Limits) *StreamDecoder {
	limits = limits.Normalize()
	return &StreamDecoder{
		doc: doc,
		pipeline: filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		}),
	}
}

// Decode returns the decoded payload of s. A filter the pipeline cannot
// handle surfaces here, as a ParseError of kind UnsupportedFilter, rather
// than at open time.
func (d *StreamDecoder) Decode(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	out, err := filters.DecodeStream(ctx, d.pipeline, s, d.doc)
	if err == nil {
		return out, nil
	}
	kind := KindTruncated
	if errors.Is(err, filters.ErrUnsupportedFilter) {
		kind = KindUnsupportedFilter
	}
	return nil, &ParseError{Kind: kind, Offset: -1, Err: err}
}

// Resolve makes the decoder usable wherever a resolver is expected.
func (d *StreamDecoder) Resolve(o raw.Object) raw.Object { return d.doc.Resolve(o) }

func (d *StreamDecoder) Document() *raw.Document { return d.doc }

// Pipeline exposes the filter set, e.g. for re-encoding.
func (d *StreamDecoder) Pipeline() *filters.Pipeline { return d.pipeline }
