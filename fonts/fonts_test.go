package fonts

import (
	"context"
	"strings"
	"testing"

	"github.com/wudi/pdfredact/ir/raw"
)

// docSource serves objects from a document and returns stream payloads
// unfiltered.
type docSource struct{ doc *raw.Document }

func (s docSource) Resolve(o raw.Object) raw.Object { return s.doc.Resolve(o) }

func (s docSource) Decode(_ context.Context, st *raw.StreamObj) ([]byte, error) {
	return st.Data, nil
}

func TestBaseEncodings(t *testing.T) {
	win, ok := BaseEncoding("WinAnsiEncoding")
	if !ok {
		t.Fatalf("WinAnsiEncoding missing")
	}
	cases := []struct {
		enc  *Encoding
		code byte
		want rune
	}{
		{win, 'A', 'A'},
		{win, 0x80, '€'},
		{win, 0x93, '“'},
		{win, 0xe9, 'é'},
		{&macRoman, 0x8e, 'é'},
	}
	for _, tc := range cases {
		if got := tc.enc[tc.code]; got != tc.want {
			t.Errorf("code %#x: got %q want %q", tc.code, got, tc.want)
		}
	}
	std, _ := BaseEncoding("StandardEncoding")
	if std['\''] != '’' {
		t.Errorf("StandardEncoding quoteright: got %q", std['\''])
	}
	if _, ok := BaseEncoding("Bogus"); ok {
		t.Errorf("unknown encoding accepted")
	}
}

func TestWithDifferences(t *testing.T) {
	base, _ := BaseEncoding("WinAnsiEncoding")
	e := base.WithDifferences([]any{65, "B", "uni0416", 200, "eacute", "notaglyph"})
	if e['A'] != 'B' || e['B'] != 'Ж' || e[200] != 'é' || e[201] != 0 {
		t.Fatalf("differences not applied: %q %q %q %q", e['A'], e['B'], e[200], e[201])
	}
	if base['A'] != 'A' {
		t.Fatalf("base encoding modified")
	}
}

func TestGlyphRune(t *testing.T) {
	cases := map[string]rune{
		"a":          'a',
		"space":      ' ',
		"Aacute":     'Á',
		"ccaron":     'č',
		"uni20AC":    '€',
		"u1F600":     0x1F600,
		"fi":         'ﬁ',
		"period.alt": '.',
	}
	for name, want := range cases {
		got, ok := GlyphRune(name)
		if !ok || got != want {
			t.Errorf("%s: got %q, %v want %q", name, got, ok, want)
		}
	}
	if _, ok := GlyphRune("g123"); ok {
		t.Errorf("g123 should be unmapped")
	}
}

func TestStandardWidths(t *testing.T) {
	m, ok := standardFont("ABCDEF+Helvetica-Oblique")
	if !ok || m != helvetica {
		t.Fatalf("Helvetica-Oblique should use Helvetica metrics")
	}
	if w := m.width('A'); w != 667 {
		t.Errorf("Helvetica A: got %v want 667", w)
	}
	if w := m.width('Á'); w != 667 {
		t.Errorf("accented letter should take base width, got %v", w)
	}
	c, _ := standardFont("Courier-Bold")
	if c.width('i') != 600 || c.width('W') != 600 {
		t.Errorf("courier is monospaced")
	}
	if guessMetrics("DejaVuSansMono") != courier {
		t.Errorf("mono fonts should fall back to courier")
	}
	if guessMetrics("SomeFont") != helvetica {
		t.Errorf("default fallback should be helvetica")
	}
}

const toUnicode = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Adobe-Identity-UCS def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0003> <0020>
<0024> <00410042>
endbfchar
2 beginbfrange
<0010> <0012> <0061>
<0020> <0021> [<0078> <D83DDE00>]
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestParseToUnicode(t *testing.T) {
	cm, err := ParseCMap([]byte(toUnicode))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	if cm.Name != "Adobe-Identity-UCS" {
		t.Errorf("name: got %q", cm.Name)
	}
	cases := []struct {
		code []byte
		want string
	}{
		{[]byte{0, 3}, " "},
		{[]byte{0, 0x24}, "AB"},
		{[]byte{0, 0x10}, "a"},
		{[]byte{0, 0x12}, "c"},
		{[]byte{0, 0x20}, "x"},
		{[]byte{0, 0x21}, "\U0001F600"},
	}
	for _, tc := range cases {
		got, ok := cm.Unicode(tc.code)
		if !ok || got != tc.want {
			t.Errorf("code % x: got %q, %v want %q", tc.code, got, ok, tc.want)
		}
	}
	if _, ok := cm.Unicode([]byte{0, 0x13}); ok {
		t.Errorf("code past range end should be unmapped")
	}
}

func TestParseCIDCMap(t *testing.T) {
	data := `/CMapName /Test-H def
2 begincodespacerange
<00> <80>
<8140> <FFFF>
endcodespacerange
1 begincidchar
<41> 500
endcidchar
1 begincidrange
<8140> <817f> 1000
endcidrange`
	cm, err := ParseCMap([]byte(data))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	if n := cm.NextCode([]byte{0x41, 0x81}, 2); n != 1 {
		t.Errorf("single byte code length: got %d", n)
	}
	if n := cm.NextCode([]byte{0x81, 0x42}, 2); n != 2 {
		t.Errorf("double byte code length: got %d", n)
	}
	if cid, ok := cm.CID([]byte{0x41}); !ok || cid != 500 {
		t.Errorf("cidchar: got %d, %v", cid, ok)
	}
	if cid, ok := cm.CID([]byte{0x81, 0x42}); !ok || cid != 1002 {
		t.Errorf("cidrange: got %d, %v", cid, ok)
	}
	if _, err := ParseCMap([]byte("begincmap endcmap")); err == nil {
		t.Errorf("empty cmap should fail")
	}
}

func TestLoadSimpleFont(t *testing.T) {
	doc := raw.NewDocument()
	diff := raw.Dict()
	diff.Set("Type", raw.NameLiteral("Encoding"))
	diff.Set("Differences", raw.NewArray(raw.NumberInt(1), raw.NameLiteral("H"), raw.NameLiteral("i")))
	encRef := doc.Add(diff)

	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("TrueType"))
	font.Set("BaseFont", raw.NameLiteral("ABCDEF+Custom"))
	font.Set("FirstChar", raw.NumberInt(1))
	font.Set("Widths", raw.NewArray(raw.NumberInt(700), raw.NumberInt(250)))
	font.Set("Encoding", raw.Ref(encRef.Num, encRef.Gen))
	fd := raw.Dict()
	fd.Set("Ascent", raw.NumberInt(900))
	fd.Set("Descent", raw.NumberInt(-250))
	fd.Set("MissingWidth", raw.NumberInt(111))
	font.Set("FontDescriptor", fd)
	ref := doc.Add(font)

	f, err := Load(context.Background(), docSource{doc}, raw.Ref(ref.Num, ref.Gen))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Composite() || f.Ascent != 900 || f.Descent != -250 {
		t.Fatalf("unexpected font: %+v", f)
	}
	glyphs := f.Decode([]byte{1, 2, 'A'})
	if len(glyphs) != 3 {
		t.Fatalf("got %d glyphs", len(glyphs))
	}
	var text strings.Builder
	for _, g := range glyphs {
		text.WriteString(g.Text)
	}
	if text.String() != "HiA" {
		t.Errorf("text: got %q", text.String())
	}
	if glyphs[0].Width != 700 || glyphs[1].Width != 250 || glyphs[2].Width != 111 {
		t.Errorf("widths: %v %v %v", glyphs[0].Width, glyphs[1].Width, glyphs[2].Width)
	}
}

func TestLoadStandardFont(t *testing.T) {
	doc := raw.NewDocument()
	font := raw.Dict()
	font.Set("Subtype", raw.NameLiteral("Type1"))
	font.Set("BaseFont", raw.NameLiteral("Helvetica"))
	font.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	f, err := Load(context.Background(), docSource{doc}, font)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g := f.Decode([]byte("a \x80"))
	if g[0].Width != 556 || !g[1].Space || g[1].Width != 278 || g[2].Text != "€" {
		t.Fatalf("unexpected glyphs: %+v", g)
	}
	if _, err := Load(context.Background(), docSource{doc}, raw.NumberInt(3)); err != ErrNotFont {
		t.Fatalf("non-dictionary: got %v", err)
	}
}

func TestLoadType0Font(t *testing.T) {
	doc := raw.NewDocument()
	tu := doc.Add(raw.NewStream(raw.Dict(), []byte(toUnicode)))
	cid := raw.Dict()
	cid.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.Set("DW", raw.NumberInt(500))
	cid.Set("W", raw.NewArray(
		raw.NumberInt(16), raw.NewArray(raw.NumberInt(600), raw.NumberInt(610)),
		raw.NumberInt(32), raw.NumberInt(33), raw.NumberInt(900),
	))
	font := raw.Dict()
	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral("Go-Regular"))
	font.Set("Encoding", raw.NameLiteral("Identity-H"))
	font.Set("DescendantFonts", raw.NewArray(cid))
	font.Set("ToUnicode", raw.Ref(tu.Num, tu.Gen))

	f, err := Load(context.Background(), docSource{doc}, font)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !f.Composite() || f.Vertical {
		t.Fatalf("expected horizontal composite font")
	}
	glyphs := f.Decode([]byte{0, 0x10, 0, 0x11, 0, 0x21, 0, 0x03, 0x01})
	want := []struct {
		cid   uint32
		text  string
		width float64
	}{
		{16, "a", 600}, {17, "b", 610}, {33, "\U0001F600", 900}, {3, " ", 500}, {1, "", 500},
	}
	if len(glyphs) != len(want) {
		t.Fatalf("got %d glyphs", len(glyphs))
	}
	for i, w := range want {
		g := glyphs[i]
		if g.CID != w.cid || g.Text != w.text || g.Width != w.width {
			t.Errorf("glyph %d: got %d %q %v", i, g.CID, g.Text, g.Width)
		}
		if g.Space {
			t.Errorf("glyph %d: two-byte codes never take word spacing", i)
		}
	}
}

func TestLoadVerticalMetrics(t *testing.T) {
	cid := raw.Dict()
	cid.Set("Subtype", raw.NameLiteral("CIDFontType0"))
	cid.Set("DW", raw.NumberInt(500))
	cid.Set("DW2", raw.NewArray(raw.NumberInt(900), raw.NumberInt(-800)))
	cid.Set("W2", raw.NewArray(
		raw.NumberInt(16), raw.NewArray(
			raw.NumberInt(-1100), raw.NumberInt(300), raw.NumberInt(900),
			raw.NumberInt(-1200), raw.NumberInt(310), raw.NumberInt(880),
		),
		raw.NumberInt(32), raw.NumberInt(33), raw.NumberInt(-500), raw.NumberInt(250), raw.NumberInt(880),
	))
	font := raw.Dict()
	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral("KozMinPro-Regular"))
	font.Set("Encoding", raw.NameLiteral("Identity-V"))
	font.Set("DescendantFonts", raw.NewArray(cid))

	f, err := Load(context.Background(), docSource{raw.NewDocument()}, font)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !f.Vertical {
		t.Fatalf("Identity-V font should be vertical")
	}
	glyphs := f.Decode([]byte{0, 0x10, 0, 0x11, 0, 0x20, 0, 0x21, 0, 0x03})
	want := []struct {
		cid     uint32
		advance float64
		vx      float64
	}{
		{16, -1100, 300}, {17, -1200, 310}, {32, -500, 250}, {33, -500, 250}, {3, -800, 250},
	}
	if len(glyphs) != len(want) {
		t.Fatalf("got %d glyphs", len(glyphs))
	}
	for i, w := range want {
		g := glyphs[i]
		if g.CID != w.cid || g.VAdvance != w.advance || g.VX != w.vx {
			t.Errorf("glyph %d: got cid %d advance %v vx %v", i, g.CID, g.VAdvance, g.VX)
		}
	}

	cid.Delete("DW2")
	f, err = Load(context.Background(), docSource{raw.NewDocument()}, font)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g := f.Decode([]byte{0, 0x03})[0]; g.VAdvance != -1000 {
		t.Errorf("default vertical advance = %v, want -1000", g.VAdvance)
	}
}

func TestGoRegularShaping(t *testing.T) {
	e, err := GoRegular()
	if err != nil {
		t.Fatalf("GoRegular: %v", err)
	}
	if e.Ascent <= 0 || e.Descent >= 0 {
		t.Fatalf("metrics: ascent %v descent %v", e.Ascent, e.Descent)
	}
	glyphs := e.Shape("REDACTED")
	if len(glyphs) != 8 {
		t.Fatalf("got %d glyphs", len(glyphs))
	}
	var text strings.Builder
	for _, g := range glyphs {
		if g.ID == 0 {
			t.Errorf("missing glyph for %q", g.Text)
		}
		text.WriteString(g.Text)
	}
	if text.String() != "REDACTED" {
		t.Errorf("cluster text: got %q", text.String())
	}
	if w := Advance(glyphs); w < 4000 || w > 8000 {
		t.Errorf("advance out of range: %v", w)
	}
	if enc := Encode(glyphs); len(enc) != 16 || enc[0] != byte(glyphs[0].ID>>8) || enc[1] != byte(glyphs[0].ID) {
		t.Errorf("encode: % x", enc)
	}
	if e.Shape("") != nil {
		t.Errorf("empty text should shape to nothing")
	}
}

func TestEmbeddedObjectsRoundTrip(t *testing.T) {
	e, err := GoRegular()
	if err != nil {
		t.Fatalf("GoRegular: %v", err)
	}
	glyphs := e.Shape("Ab")
	used := Usage{}
	used.Add(glyphs)

	doc := raw.NewDocument()
	ref := e.Objects(doc, used)
	f, err := Load(context.Background(), docSource{doc}, raw.Ref(ref.Num, ref.Gen))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	decoded := f.Decode(Encode(glyphs))
	if len(decoded) != 2 || decoded[0].Text != "A" || decoded[1].Text != "b" {
		t.Fatalf("round trip: %+v", decoded)
	}
	if decoded[0].Width != e.GlyphWidth(int(glyphs[0].ID)) {
		t.Errorf("width: got %v want %v", decoded[0].Width, e.GlyphWidth(int(glyphs[0].ID)))
	}
}
