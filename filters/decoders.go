package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfredact/ir/raw"
)

type flateDecoder struct{ max int64 }

func (flateDecoder) Name() string { return "FlateDecode" }

// NewFlateDecoder decodes zlib streams. Raw deflate data without the zlib
// header is accepted, and truncated or checksum-damaged streams keep
// whatever decoded cleanly.
func NewFlateDecoder(maxSize int64) Decoder { return flateDecoder{max: maxSize} }

func (d flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out, err := inflate(in, d.max)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func inflate(in []byte, max int64) ([]byte, error) {
	var rc io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		rc = zr
	} else {
		rc = flate.NewReader(bytes.NewReader(in))
	}
	defer rc.Close()
	out, err := readLimited(rc, max)
	if err != nil {
		if len(out) > 0 && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum) || isCorrupt(err)) {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

func isCorrupt(err error) bool {
	var ce flate.CorruptInputError
	return errors.As(err, &ce)
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	var buf bytes.Buffer
	if max <= 0 {
		_, err := io.Copy(&buf, r)
		return buf.Bytes(), err
	}
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if n > max {
		return nil, ErrSizeLimit
	}
	return buf.Bytes(), err
}

type lzwDecoder struct{ max int64 }

func (lzwDecoder) Name() string { return "LZWDecode" }

// NewLZWDecoder honours /EarlyChange (default 1).
func NewLZWDecoder(maxSize int64) Decoder { return lzwDecoder{max: maxSize} }

func (d lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := intParam(params, "EarlyChange", 1) == 1
	rc := lzw.NewReader(bytes.NewReader(in), early)
	defer rc.Close()
	out, err := readLimited(rc, d.max)
	if err != nil && !(len(out) > 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
		return nil, err
	}
	return applyPredictor(out, params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	clean := make([]byte, 0, len(in))
	for _, c := range in {
		if !isSpace(c) {
			clean = append(clean, c)
		}
	}
	clean = bytes.TrimPrefix(clean, []byte("<~"))
	if i := bytes.Index(clean, []byte("~>")); i >= 0 {
		clean = clean[:i]
	} else if i := bytes.IndexByte(clean, '~'); i >= 0 {
		clean = clean[:i]
	}
	out := make([]byte, len(clean)*4+4)
	n, _, err := stdascii85.Decode(out, clean, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out := make([]byte, 0, len(in)/2)
	var hi byte
	half := false
	for _, c := range in {
		if c == '>' {
			break
		}
		if isSpace(c) {
			continue
		}
		v, ok := hexValue(c)
		if !ok {
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

func isSpace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
