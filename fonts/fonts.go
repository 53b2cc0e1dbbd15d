package fonts

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	gofont "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfredact/ir/raw"
)

// Embedded is a TrueType font prepared for Type0 Identity-H embedding, so
// glyph ids are the codes written to content streams.
type Embedded struct {
	Name        string
	Ascent      float64
	Descent     float64
	CapHeight   float64
	ItalicAngle float64
	BBox        [4]float64

	data   []byte
	widths map[int]int
	face   *gofont.Face

	mu sync.Mutex // guards shaping, which reuses face caches
}

var (
	goRegularOnce sync.Once
	goRegular     *Embedded
	goRegularErr  error
)

// GoRegular returns the Go Regular font, the fallback used for text the
// engine adds to pages.
func GoRegular() (*Embedded, error) {
	goRegularOnce.Do(func() {
		goRegular, goRegularErr = LoadTrueType("GoRegular", goregular.TTF)
	})
	return goRegular, goRegularErr
}

// LoadTrueType parses a TrueType/OpenType font and extracts the metrics the
// font descriptor needs. The full font is embedded (no subsetting).
func LoadTrueType(name string, data []byte) (*Embedded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load shaping face: %w", err)
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(name)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}

	metrics, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	e := &Embedded{
		Name:        baseName,
		Ascent:      scaleFixed(metrics.Ascent, unitsPerEm),
		Descent:     -scaleFixed(metrics.Descent, unitsPerEm),
		CapHeight:   scaleFixed(metrics.CapHeight, unitsPerEm),
		ItalicAngle: italicAngle(font),
		BBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
		data:   data,
		widths: glyphWidths(font, buf, unitsPerEm, ppem),
		face:   face,
	}
	if e.CapHeight == 0 {
		e.CapHeight = e.Ascent
	}
	return e, nil
}

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) map[int]int {
	glyphs := font.NumGlyphs()
	widths := make(map[int]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}

// GlyphWidth is the advance of gid in thousandths of an em.
func (e *Embedded) GlyphWidth(gid int) float64 { return float64(e.widths[gid]) }

// Usage collects the glyphs a document shows with an embedded font and the
// text each one stands for.
type Usage map[uint16]string

// Add records the glyphs of a shaped run.
func (u Usage) Add(glyphs []ShapedGlyph) {
	for _, g := range glyphs {
		if _, ok := u[g.ID]; !ok || g.Text != "" {
			u[g.ID] = g.Text
		}
	}
}

// Objects adds the Type0 font, its CIDFont, descriptor, font program and
// ToUnicode map to doc, and returns the id of the Type0 font dictionary.
func (e *Embedded) Objects(doc *raw.Document, used Usage) raw.ObjectRef {
	file := raw.NewStream(raw.Dict(), nil)
	file.SetData(append([]byte(nil), e.data...))
	file.Dict.Set("Length1", raw.NumberInt(int64(len(e.data))))
	fileRef := doc.Add(file)

	fd := raw.Dict()
	fd.Set("Type", raw.NameLiteral("FontDescriptor"))
	fd.Set("FontName", raw.NameLiteral(e.Name))
	fd.Set("Flags", raw.NumberInt(32))
	fd.Set("FontBBox", raw.NewArray(
		raw.NumberFloat(e.BBox[0]), raw.NumberFloat(e.BBox[1]),
		raw.NumberFloat(e.BBox[2]), raw.NumberFloat(e.BBox[3])))
	fd.Set("ItalicAngle", raw.NumberFloat(e.ItalicAngle))
	fd.Set("Ascent", raw.NumberFloat(e.Ascent))
	fd.Set("Descent", raw.NumberFloat(e.Descent))
	fd.Set("CapHeight", raw.NumberFloat(e.CapHeight))
	fd.Set("StemV", raw.NumberInt(80))
	fd.Set("FontFile2", raw.Ref(fileRef.Num, fileRef.Gen))
	fdRef := doc.Add(fd)

	gids := make([]int, 0, len(used))
	for gid := range used {
		gids = append(gids, int(gid))
	}
	sort.Ints(gids)
	w := raw.NewArray()
	for _, gid := range gids {
		w.Append(raw.NumberInt(int64(gid)), raw.NewArray(raw.NumberInt(int64(e.widths[gid]))))
	}

	info := raw.Dict()
	info.Set("Registry", raw.Str([]byte("Adobe")))
	info.Set("Ordering", raw.Str([]byte("Identity")))
	info.Set("Supplement", raw.NumberInt(0))

	cid := raw.Dict()
	cid.Set("Type", raw.NameLiteral("Font"))
	cid.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.Set("BaseFont", raw.NameLiteral(e.Name))
	cid.Set("CIDSystemInfo", info)
	cid.Set("FontDescriptor", raw.Ref(fdRef.Num, fdRef.Gen))
	cid.Set("DW", raw.NumberInt(int64(e.widths[0])))
	cid.Set("W", w)
	cid.Set("CIDToGIDMap", raw.NameLiteral("Identity"))
	cidRef := doc.Add(cid)

	tu := raw.NewStream(raw.Dict(), nil)
	tu.SetData(ToUnicodeCMap(used))
	tuRef := doc.Add(tu)

	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral(e.Name))
	font.Set("Encoding", raw.NameLiteral("Identity-H"))
	font.Set("DescendantFonts", raw.NewArray(raw.Ref(cidRef.Num, cidRef.Gen)))
	font.Set("ToUnicode", raw.Ref(tuRef.Num, tuRef.Gen))
	return doc.Add(font)
}

var utf16Encoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// ToUnicodeCMap writes a two-byte ToUnicode CMap for the given glyphs.
func ToUnicodeCMap(used Usage) []byte {
	gids := make([]int, 0, len(used))
	for gid, txt := range used {
		if txt != "" {
			gids = append(gids, int(gid))
		}
	}
	sort.Ints(gids)
	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for start := 0; start < len(gids); start += 100 {
		chunk := gids[start:min(start+100, len(gids))]
		fmt.Fprintf(&b, "%d beginbfchar\n", len(chunk))
		for _, gid := range chunk {
			dst, _ := utf16Encoder.NewEncoder().String(used[uint16(gid)])
			fmt.Fprintf(&b, "<%04X> <%X>\n", gid, []byte(dst))
		}
		b.WriteString("endbfchar\n")
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}
