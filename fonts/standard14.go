package fonts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// stdMetrics holds the AFM advance widths of a standard-14 font for the
// printable ASCII range plus common punctuation outside it.
type stdMetrics struct {
	ascii        [95]float64 // ' ' through '~'
	extra        map[rune]float64
	defaultWidth float64
	ascent       float64
	descent      float64
}

func (m *stdMetrics) width(r rune) float64 {
	if r >= ' ' && r <= '~' {
		return m.ascii[r-' ']
	}
	if w, ok := m.extra[r]; ok {
		return w
	}
	// Accented letters take the width of their base letter.
	if d := norm.NFD.String(string(r)); d != "" {
		if b := []rune(d)[0]; b != r && b >= ' ' && b <= '~' {
			return m.ascii[b-' ']
		}
	}
	return m.defaultWidth
}

var helvetica = &stdMetrics{
	ascii: [95]float64{
		278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // ' ' - '/'
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // '0' - '?'
		1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // '@' - 'O'
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // 'P' - '_'
		333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // '`' - 'o'
		556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // 'p' - '~'
	},
	extra: map[rune]float64{
		'‘': 222, '’': 222, '“': 333, '”': 333, '–': 556, '—': 1000,
		'•': 350, '…': 1000, '€': 556, '\u00a0': 278, '©': 737, '®': 737, '°': 400,
	},
	defaultWidth: 556,
	ascent:       718,
	descent:      -207,
}

var helveticaBold = &stdMetrics{
	ascii: [95]float64{
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
		975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
		333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
		611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
	},
	extra: map[rune]float64{
		'‘': 278, '’': 278, '“': 500, '”': 500, '–': 556, '—': 1000,
		'•': 350, '…': 1000, '€': 556, '\u00a0': 278, '©': 737, '®': 737, '°': 400,
	},
	defaultWidth: 556,
	ascent:       718,
	descent:      -207,
}

var timesRoman = &stdMetrics{
	ascii: [95]float64{
		250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
		921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
		556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
		333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
		500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
	},
	extra: map[rune]float64{
		'‘': 333, '’': 333, '“': 444, '”': 444, '–': 500, '—': 1000,
		'•': 350, '…': 1000, '€': 500, '\u00a0': 250, '©': 760, '®': 760, '°': 400,
	},
	defaultWidth: 500,
	ascent:       683,
	descent:      -217,
}

var timesBold = &stdMetrics{
	ascii: [95]float64{
		250, 333, 555, 500, 500, 1000, 833, 278, 333, 333, 500, 570, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 570, 570, 570, 500,
		930, 722, 667, 722, 722, 667, 611, 778, 778, 389, 500, 778, 667, 944, 722, 778,
		611, 778, 722, 556, 667, 722, 722, 1000, 722, 722, 667, 333, 278, 333, 581, 500,
		333, 500, 556, 444, 556, 444, 333, 500, 556, 278, 333, 556, 278, 833, 556, 500,
		556, 556, 444, 389, 333, 556, 500, 722, 500, 500, 444, 394, 220, 394, 520,
	},
	extra: map[rune]float64{
		'‘': 333, '’': 333, '“': 500, '”': 500, '–': 500, '—': 1000,
		'•': 350, '…': 1000, '€': 500, '\u00a0': 250, '©': 747, '®': 747, '°': 400,
	},
	defaultWidth: 500,
	ascent:       683,
	descent:      -217,
}

var courier = func() *stdMetrics {
	m := &stdMetrics{defaultWidth: 600, ascent: 629, descent: -157}
	for i := range m.ascii {
		m.ascii[i] = 600
	}
	return m
}()

// symbolic fonts only get a default width.
var symbol = &stdMetrics{defaultWidth: 500, ascent: 1010, descent: -293}
var dingbats = &stdMetrics{defaultWidth: 788, ascent: 820, descent: -143}

// standardFont returns metrics for one of the 14 standard fonts, also
// accepting the common aliases (Arial, TimesNewRoman, ...) and subset
// prefixes. Oblique and italic faces reuse the upright widths.
func standardFont(baseFont string) (*stdMetrics, bool) {
	name := baseFont
	if len(name) > 7 && name[6] == '+' {
		name = name[7:]
	}
	lower := strings.ToLower(name)
	bold := strings.Contains(lower, "bold")
	switch {
	case strings.HasPrefix(lower, "courier"):
		return courier, true
	case strings.HasPrefix(lower, "helvetica"), strings.HasPrefix(lower, "arial"):
		if bold {
			return helveticaBold, true
		}
		return helvetica, true
	case strings.HasPrefix(lower, "times"):
		if bold {
			return timesBold, true
		}
		return timesRoman, true
	case lower == "symbol":
		return symbol, true
	case lower == "zapfdingbats":
		return dingbats, true
	}
	return nil, false
}

// guessMetrics picks a standard family for a font that carries no widths.
func guessMetrics(baseFont string) *stdMetrics {
	if m, ok := standardFont(baseFont); ok {
		return m
	}
	lower := strings.ToLower(baseFont)
	switch {
	case strings.Contains(lower, "mono"), strings.Contains(lower, "courier"):
		return courier
	case strings.Contains(lower, "times"), strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		return timesRoman
	}
	return helvetica
}
