package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfredact/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Encoder is implemented by filters the writer can produce.
type Encoder interface {
	Name() string
	Encode(input []byte) ([]byte, error)
}

var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrSizeLimit         = errors.New("decompressed size exceeds limit")
)

// UnsupportedError names a filter this package cannot decode. The stream
// stays usable as raw bytes.
type UnsupportedError struct {
	Filter string
}

func (e UnsupportedError) Error() string        { return "unsupported filter: " + e.Filter }
func (e UnsupportedError) Is(target error) bool { return target == ErrUnsupportedFilter }

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// NewDefaultPipeline registers every decoder this package implements.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits.MaxDecompressedSize),
		NewLZWDecoder(limits.MaxDecompressedSize),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
		identityDecoder{"Crypt"},
	}, limits)
}

// abbreviations allowed in inline image dictionaries
var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

// CanonicalName expands inline-image filter abbreviations.
func CanonicalName(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

// Supports reports whether the pipeline can decode every named filter.
func (p *Pipeline) Supports(names []string) bool {
	for _, n := range names {
		if _, ok := p.decoders[CanonicalName(n)]; !ok {
			return false
		}
	}
	return true
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name = CanonicalName(name)
		dec, ok := p.decoders[name]
		if !ok {
			return nil, UnsupportedError{Filter: name}
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: %w", name, ErrSizeLimit)
		}
		data = out
	}
	return data, nil
}

type identityDecoder struct{ name string }

func (d identityDecoder) Name() string { return d.name }
func (identityDecoder) Decode(_ context.Context, in []byte, _ *raw.DictObj) ([]byte, error) {
	return in, nil
}
