package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/recovery"
	"github.com/wudi/pdfredact/testpdf"
)

func buildClassicPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Title (Quarterly \\(draft\\)) /Author <FEFF004A0061006E0065> >>\nendobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Info 3 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func buildIncrementalPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	xref1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref1)

	upd2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 2 >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n(added)\nendobj\n")
	xref2 := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", upd2, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", xref1, xref2)
	return buf.Bytes()
}

func TestParseClassicXRef(t *testing.T) {
	doc, err := Open(context.Background(), buildClassicPDF(), DefaultConfig())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Version != "1.7" {
		t.Fatalf("expected version 1.7, got %q", doc.Version)
	}
	if len(doc.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(doc.Objects))
	}
	if _, ok := doc.Catalog(); !ok {
		t.Fatalf("catalog missing")
	}
	if doc.Metadata.Title != "Quarterly (draft)" {
		t.Fatalf("unexpected title %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "Jane" {
		t.Fatalf("UTF-16 author not decoded: %q", doc.Metadata.Author)
	}
	if doc.IsDirty() {
		t.Fatalf("freshly parsed document must not be dirty")
	}
	if doc.StartXRef == 0 || len(doc.Source) == 0 {
		t.Fatalf("source bytes and startxref should be kept for incremental writes")
	}
}

func TestParseFollowsPrevChain(t *testing.T) {
	doc, err := Open(context.Background(), buildIncrementalPDF(), DefaultConfig())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 3}]; !ok {
		t.Fatalf("incremental object missing")
	}
	pages, ok := doc.Dict(raw.Ref(2, 0))
	if !ok {
		t.Fatalf("pages missing")
	}
	if n, _ := doc.Int(pages.KV["Count"]); n != 2 {
		t.Fatalf("expected Count 2 after update, got %d", n)
	}
	if _, ok := doc.Trailer.Get("Prev"); ok {
		t.Fatalf("merged trailer should not keep /Prev")
	}
}

func TestParseIndirectStreamLength(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	off3 := buf.Len()
	// The payload contains "endstream" so only the /Length reference finds its end.
	payload := "BT (endstream) Tj ET"
	fmt.Fprintf(buf, "3 0 obj\n<< /Length 4 0 R >>\nstream\n%s\nendstream\nendobj\n", payload)
	off4 := buf.Len()
	fmt.Fprintf(buf, "4 0 obj\n%d\nendobj\n", len(payload))
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 5\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, off3, off4)
	fmt.Fprintf(buf, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := Open(context.Background(), buf.Bytes(), DefaultConfig())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, ok := doc.Stream(raw.Ref(3, 0))
	if !ok {
		t.Fatalf("stream 3 missing")
	}
	if string(s.Data) != payload {
		t.Fatalf("stream payload %q, want %q", s.Data, payload)
	}
}

func TestParseObjectStreams(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	body := "<< /Type /Pages /Kids [] /Count 0 >> (inside)"
	header := fmt.Sprintf("2 0 4 %d ", len("<< /Type /Pages /Kids [] /Count 0 >>")+1)
	decoded := header + body
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(header), len(decoded), decoded)
	xrefOff := buf.Len()
	rows := [][3]int{{0, 0, 0}, {1, off1, 0}, {2, 3, 0}, {1, off3, 0}, {2, 3, 1}, {1, xrefOff, 0}}
	var entries []byte
	for _, r := range rows {
		entries = append(entries, byte(r[0]), byte(r[1]>>8), byte(r[1]), byte(r[2]))
	}
	fmt.Fprintf(buf, "5 0 obj\n<< /Type /XRef /Size 6 /Root 1 0 R /W [1 2 1] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := Open(context.Background(), buf.Bytes(), DefaultConfig())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s, ok := doc.Resolve(raw.Ref(4, 0)).(raw.StringObj); !ok || string(s.Bytes) != "inside" {
		t.Fatalf("compressed object 4 not loaded: %v", doc.Resolve(raw.Ref(4, 0)))
	}
	for _, ref := range []raw.ObjectRef{{Num: 3}, {Num: 5}} {
		if _, ok := doc.Objects[ref]; ok {
			t.Fatalf("structural stream %v should not be kept in the arena", ref)
		}
	}
}

func TestParseRepairsCorruptXRef(t *testing.T) {
	data := testpdf.ContactDocument(t)
	idx := bytes.LastIndex(data, []byte("startxref"))
	corrupt := append(append([]byte(nil), data[:idx]...), []byte("startxref\n999999\n%%EOF\n")...)

	doc, err := Open(context.Background(), corrupt, DefaultConfig())
	if err != nil {
		t.Fatalf("lenient parse should repair: %v", err)
	}
	if !doc.Repaired {
		t.Fatalf("document should be flagged as repaired")
	}
	cfg := DefaultConfig()
	cfg.Recovery = recovery.NewStrictStrategy()
	_, err = Open(context.Background(), corrupt, cfg)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindMalformedXref || !errors.Is(err, ErrMalformedXref) {
		t.Fatalf("strict parse should fail with MalformedXref, got %v", err)
	}
}

func TestParseErrorKinds(t *testing.T) {
	full := buildClassicPDF()
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"cut before xref", full[:len(full)/2], ErrTruncated},
		{"no header", []byte("hello world"), ErrMalformedXref},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Recovery = recovery.NewStrictStrategy()
			_, err := Open(context.Background(), tt.data, cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseGeneratedFixture(t *testing.T) {
	doc, err := Open(context.Background(), testpdf.ContactDocument(t), DefaultConfig())
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	if doc.Metadata.Title != "Summary" || doc.Metadata.Author != "Finance" {
		t.Fatalf("unexpected metadata %+v", doc.Metadata)
	}
	if doc.Encrypted || doc.Repaired {
		t.Fatalf("plain fixture flagged encrypted=%v repaired=%v", doc.Encrypted, doc.Repaired)
	}
}

func TestParseEncryptedFixture(t *testing.T) {
	data := testpdf.Build(t, []testpdf.Page{{Lines: []testpdf.Line{{X: 72, Y: 100, Text: "Protected content"}}}},
		testpdf.Options{Protect: true, UserPassword: "user123", OwnerPassword: "owner456"})

	_, err := Open(context.Background(), data, DefaultConfig())
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted without password, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.Password = "wrong"
	_, err = Open(context.Background(), data, cfg)
	if !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}

	for _, pwd := range []string{"user123", "owner456"} {
		cfg.Password = pwd
		doc, err := Open(context.Background(), data, cfg)
		if err != nil {
			t.Fatalf("password %q: %v", pwd, err)
		}
		if !doc.Encrypted {
			t.Fatalf("document should report it was encrypted")
		}
		if _, ok := doc.Trailer.Get("Encrypt"); ok {
			t.Fatalf("decrypted document must drop /Encrypt")
		}
		found := false
		for _, obj := range doc.Objects {
			s, ok := obj.(*raw.StreamObj)
			if !ok {
				continue
			}
			dec, err := NewStreamDecoder(doc, cfg.Limits).Decode(context.Background(), s)
			if err == nil && bytes.Contains(dec, []byte("Protected content")) {
				found = true
			}
		}
		if !found {
			t.Fatalf("password %q: page content not decrypted", pwd)
		}
	}
}

func TestParseEmptyUserPassword(t *testing.T) {
	data := testpdf.Build(t, []testpdf.Page{{Lines: []testpdf.Line{{X: 72, Y: 100, Text: "Protected content"}}}},
		testpdf.Options{Protect: true, UserPassword: "", OwnerPassword: "owner456"})

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"no password", "", nil},
		{"owner password", "owner456", nil},
		{"wrong password", "wrong", ErrBadPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Password = tt.password
			doc, err := Open(context.Background(), data, cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !doc.Encrypted {
				t.Fatalf("document should report it was encrypted")
			}
			if _, ok := doc.Trailer.Get("Encrypt"); ok {
				t.Fatalf("decrypted document must drop /Encrypt")
			}
			found := false
			for _, obj := range doc.Objects {
				s, ok := obj.(*raw.StreamObj)
				if !ok {
					continue
				}
				dec, err := NewStreamDecoder(doc, cfg.Limits).Decode(context.Background(), s)
				if err == nil && bytes.Contains(dec, []byte("Protected content")) {
					found = true
				}
			}
			if !found {
				t.Fatalf("page content not decrypted")
			}
		})
	}
}

func TestStreamDecoderReportsUnsupportedFilter(t *testing.T) {
	doc := raw.NewDocument()
	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("JBIG2Decode"))
	s := raw.NewStream(d, []byte{1, 2, 3})
	_, err := NewStreamDecoder(doc, DefaultConfig().Limits).Decode(context.Background(), s)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindUnsupportedFilter || !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected UnsupportedFilter parse error, got %v", err)
	}
}

func TestTextStrings(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte{0xFE, 0xFF, 0x00, 0x4A, 0x00, 0xE9}, "Jé"},
		{[]byte{0xEF, 0xBB, 0xBF, 'o', 'k'}, "ok"},
		{[]byte{0x93, 'x', 0x80}, "ﬁx•"},
		{[]byte{0xE9}, "é"},
	}
	for _, tt := range tests {
		if got := DecodeTextString(tt.in); got != tt.want {
			t.Errorf("DecodeTextString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	for _, s := range []string{"ascii only", "Zoë & Åsa"} {
		if got := DecodeTextString(EncodeTextString(s)); got != s {
			t.Errorf("text string round trip of %q gave %q", s, got)
		}
	}
}
