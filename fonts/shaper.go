package fonts

import (
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph represents a single shaped glyph with positioning information.
type ShapedGlyph struct {
	ID       uint16
	Cluster  int    // index of the first rune the glyph stands for
	Text     string // runes of the cluster, carried by the first glyph only
	XAdvance float64
	XOffset  float64
	YOffset  float64
}

// Shape shapes text left to right and returns glyphs with advances in
// thousandths of an em.
func (e *Embedded) Shape(text string) []ShapedGlyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	script := detectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      e.face,
		// 1 em = 1000 units, so advances come out in thousandths.
		Size:     fixed.Int26_6(1000 * 64),
		Script:   script,
		Language: language.DefaultLanguage(),
	}

	e.mu.Lock()
	output := (&shaping.HarfbuzzShaper{}).Shape(input)
	e.mu.Unlock()

	result := make([]ShapedGlyph, 0, len(output.Glyphs))
	seen := make(map[int]bool)
	for i, g := range output.Glyphs {
		sg := ShapedGlyph{
			ID:       uint16(g.GlyphID),
			Cluster:  g.ClusterIndex,
			XAdvance: float64(g.XAdvance) / 64.0,
			XOffset:  float64(g.XOffset) / 64.0,
			YOffset:  float64(g.YOffset) / 64.0,
		}
		if !seen[g.ClusterIndex] {
			seen[g.ClusterIndex] = true
			end := len(runes)
			for _, next := range output.Glyphs[i+1:] {
				if next.ClusterIndex > g.ClusterIndex && next.ClusterIndex < end {
					end = next.ClusterIndex
				}
			}
			sg.Text = string(runes[g.ClusterIndex:end])
		}
		result = append(result, sg)
	}
	return result
}

// Advance sums the advances of glyphs, in thousandths of an em.
func Advance(glyphs []ShapedGlyph) float64 {
	var w float64
	for _, g := range glyphs {
		w += g.XAdvance
	}
	return w
}

// Encode writes glyph ids as two-byte Identity-H codes.
func Encode(glyphs []ShapedGlyph) []byte {
	out := make([]byte, 0, 2*len(glyphs))
	for _, g := range glyphs {
		out = append(out, byte(g.ID>>8), byte(g.ID))
	}
	return out
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

func detectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	bestScript := language.Latin

	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			bestScript = script
		}
	}
	return bestScript
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	}
	return language.Unknown
}
