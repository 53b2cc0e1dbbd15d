package filters

import (
	"bytes"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"

	"github.com/hhrutter/lzw"
)

type flateEncoder struct{ level int }

// NewFlateEncoder returns a zlib encoder; level follows compress/flate.
func NewFlateEncoder(level int) Encoder { return flateEncoder{level: level} }

func (flateEncoder) Name() string { return "FlateDecode" }
func (e flateEncoder) Encode(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, e.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type asciiHexEncoder struct{}

func NewASCIIHexEncoder() Encoder { return asciiHexEncoder{} }

func (asciiHexEncoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexEncoder) Encode(in []byte) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(in))+1)
	hex.Encode(out, in)
	out[len(out)-1] = '>'
	return out, nil
}

type ascii85Encoder struct{}

func NewASCII85Encoder() Encoder { return ascii85Encoder{} }

func (ascii85Encoder) Name() string { return "ASCII85Decode" }
func (ascii85Encoder) Encode(in []byte) ([]byte, error) {
	out := make([]byte, stdascii85.MaxEncodedLen(len(in)), stdascii85.MaxEncodedLen(len(in))+2)
	n := stdascii85.Encode(out, in)
	return append(out[:n], '~', '>'), nil
}

type lzwEncoder struct{}

// NewLZWEncoder writes LZW with EarlyChange 1, the PDF default.
func NewLZWEncoder() Encoder { return lzwEncoder{} }

func (lzwEncoder) Name() string { return "LZWDecode" }
func (lzwEncoder) Encode(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, true)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
