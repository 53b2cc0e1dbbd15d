package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfredact/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func predictorParams(predictor, columns int) *raw.DictObj {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(int64(predictor)))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(int64(columns)))
	return params
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder(0)
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("no zlib header"))
	w.Close()

	out, err := NewFlateDecoder(0).Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "no zlib header" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncatedKeepsPrefix(t *testing.T) {
	payload := bytes.Repeat([]byte("BT (x) Tj ET\n"), 200)
	comp := zlibBytes(t, payload)
	out, err := NewFlateDecoder(0).Decode(context.Background(), comp[:len(comp)-6], nil)
	if err != nil {
		t.Fatalf("truncated stream should decode partially, got %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(payload, out) {
		t.Fatalf("unexpected partial output of %d bytes", len(out))
	}
}

func TestFlateDecodeSizeLimit(t *testing.T) {
	comp := zlibBytes(t, bytes.Repeat([]byte{'a'}, 4096))
	_, err := NewFlateDecoder(100).Decode(context.Background(), comp, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20})
	out, err := NewFlateDecoder(0).Decode(context.Background(), comp, predictorParams(12, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorRows(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"none", []byte{0, 1, 2, 0, 3, 4}, []byte{1, 2, 3, 4}},
		{"up", []byte{0, 1, 2, 2, 1, 1}, []byte{1, 2, 2, 3}},
		{"average", []byte{0, 4, 8, 3, 2, 2}, []byte{4, 8, 4, 8}},
		{"paeth", []byte{0, 5, 6, 4, 1, 1}, []byte{5, 6, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pngPredictor(tt.in, 2, 1)
			if err != nil {
				t.Fatalf("predictor: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestTIFFPredictor(t *testing.T) {
	got, err := applyPredictor([]byte{1, 1, 1, 5, 1, 1}, predictorParams(2, 3))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if want := []byte{1, 2, 3, 5, 6, 7}; !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLZWRoundTrip(t *testing.T) {
	input := []byte("hello hello hello hello")
	enc, err := NewLZWEncoder().Encode(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewLZWDecoder(0).Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68656c6c6f 20776f726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestEncodersRoundTrip(t *testing.T) {
	input := []byte("q 1 0 0 1 0 0 cm BT /F1 12 Tf (secret) Tj ET Q")
	p := NewDefaultPipeline(Limits{})
	for _, enc := range []Encoder{NewFlateEncoder(flate.BestCompression), NewASCIIHexEncoder(), NewASCII85Encoder(), NewLZWEncoder()} {
		t.Run(enc.Name(), func(t *testing.T) {
			data, err := enc.Encode(input)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := p.Decode(context.Background(), data, []string{enc.Name()}, nil)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(out, input) {
				t.Fatalf("round trip mismatch: %q", out)
			}
		})
	}
}

func TestPipelineChain(t *testing.T) {
	hexed, _ := NewASCIIHexEncoder().Encode(zlibBytes(t, []byte("chained")))
	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"AHx", "Fl"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	for _, name := range []string{"DCTDecode", "JPXDecode", "JBIG2Decode", "Bogus"} {
		_, err := p.Decode(context.Background(), []byte{0x00}, []string{name}, nil)
		var ue UnsupportedError
		if err == nil || !errors.As(err, &ue) || ue.Filter != name {
			t.Fatalf("%s: expected unsupported error, got %v", name, err)
		}
		if !errors.Is(err, ErrUnsupportedFilter) {
			t.Fatalf("%s: expected ErrUnsupportedFilter sentinel", name)
		}
	}
}

func TestExtractFiltersResolvesAndAligns(t *testing.T) {
	doc := raw.NewDocument()
	doc.Objects[raw.ObjectRef{Num: 7}] = raw.NumberInt(12)
	parms := raw.Dict()
	parms.Set("Predictor", raw.Ref(7, 0))

	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(dict, doc)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Fatalf("unexpected names %v", names)
	}
	if params[0] != nil {
		t.Fatalf("first filter should have no params")
	}
	if got := intParam(params[1], "Predictor", 0); got != 12 {
		t.Fatalf("indirect predictor not resolved, got %d", got)
	}
}

func TestDecodeStreamMemoizes(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	s := raw.NewStream(dict, zlibBytes(t, []byte("cached")))
	p := NewDefaultPipeline(Limits{})
	first, err := DecodeStream(context.Background(), p, s, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, _ := DecodeStream(context.Background(), p, s, nil)
	if &first[0] != &second[0] {
		t.Fatalf("decoded payload should be memoized")
	}
}
