package fonts

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Encoding maps single-byte codes to Unicode. Zero means unmapped.
type Encoding [256]rune

// BaseEncoding returns the named predefined encoding.
func BaseEncoding(name string) (*Encoding, bool) {
	switch name {
	case "WinAnsiEncoding":
		return &winAnsi, true
	case "MacRomanEncoding":
		return &macRoman, true
	case "StandardEncoding":
		e := Encoding(standardEncoding)
		return &e, true
	}
	return nil, false
}

var winAnsi = fromCharmap(charmap.Windows1252)
var macRoman = fromCharmap(charmap.Macintosh)

func fromCharmap(cm *charmap.Charmap) Encoding {
	var e Encoding
	for i := 32; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == '\ufffd' || (r >= 0x7f && r < 0xa0) {
			continue
		}
		e[i] = r
	}
	return e
}

// WithDifferences applies a /Differences array, given as alternating code
// numbers and glyph names, to a copy of e.
func (e *Encoding) WithDifferences(diffs []any) *Encoding {
	out := *e
	code := 0
	for _, d := range diffs {
		switch v := d.(type) {
		case int:
			code = v
		case string:
			if code >= 0 && code < 256 {
				r, _ := GlyphRune(v)
				out[code] = r
			}
			code++
		}
	}
	return &out
}

// GlyphRune maps a PostScript glyph name to Unicode following the Adobe
// glyph naming conventions: known names, "uniXXXX" and "uXXXX[XX]".
func GlyphRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 && name[0] < 0x80 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && v <= 0x10ffff {
			return rune(v), true
		}
	}
	return 0, false
}

var glyphNames = buildGlyphNames()

func buildGlyphNames() map[string]rune {
	m := map[string]rune{
		"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
		"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(',
		"parenright": ')', "asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-',
		"period": '.', "slash": '/', "colon": ':', "semicolon": ';', "less": '<',
		"equal": '=', "greater": '>', "question": '?', "at": '@', "bracketleft": '[',
		"backslash": '\\', "bracketright": ']', "asciicircum": '^', "underscore": '_',
		"grave": '`', "braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
		"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4', "five": '5',
		"six": '6', "seven": '7', "eight": '8', "nine": '9',
		"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“',
		"quotedblright": '”', "quotesinglbase": '‚', "quotedblbase": '„',
		"guillemotleft": '«', "guillemotright": '»', "guilsinglleft": '‹',
		"guilsinglright": '›', "endash": '–', "emdash": '—',
		"bullet": '•', "ellipsis": '…', "dagger": '†', "daggerdbl": '‡',
		"perthousand": '‰', "trademark": '™', "Euro": '€', "fi": 'ﬁ',
		"fl": 'ﬂ', "fraction": '⁄', "florin": 'ƒ', "exclamdown": '¡',
		"cent": '¢', "sterling": '£', "currency": '¤', "yen": '¥',
		"brokenbar": '¦', "section": '§', "dieresis": '¨', "copyright": '©',
		"ordfeminine": 'ª', "logicalnot": '¬', "registered": '®',
		"macron": '¯', "degree": '°', "plusminus": '±', "twosuperior": '²',
		"threesuperior": '³', "acute": '´', "mu": 'µ', "paragraph": '¶',
		"periodcentered": '·', "cedilla": '¸', "onesuperior": '¹',
		"ordmasculine": 'º', "onequarter": '¼', "onehalf": '½',
		"threequarters": '¾', "questiondown": '¿', "multiply": '×',
		"divide": '÷', "germandbls": 'ß', "AE": 'Æ', "ae": 'æ',
		"Oslash": 'Ø', "oslash": 'ø', "OE": 'Œ', "oe": 'œ',
		"Lslash": 'Ł', "lslash": 'ł', "dotlessi": 'ı', "Eth": 'Ð',
		"eth": 'ð', "Thorn": 'Þ', "thorn": 'þ', "circumflex": 'ˆ',
		"tilde": '˜', "breve": '˘', "dotaccent": '˙', "ring": '˚',
		"hungarumlaut": '˝', "ogonek": '˛', "caron": 'ˇ', "minus": '−',
		"nbspace": '\u00a0', "nonbreakingspace": '\u00a0', "sfthyphen": '\u00ad',
		"softhyphen": '\u00ad', "notequal": '≠', "lessequal": '≤',
		"greaterequal": '≥', "infinity": '∞', "arrowright": '→',
		"arrowleft": '←', "arrowup": '↑', "arrowdown": '↓',
	}
	// Accented Latin letters are named base+accent ("Eacute"); compose them.
	accents := map[string]rune{
		"grave": 0x300, "acute": 0x301, "circumflex": 0x302, "tilde": 0x303,
		"dieresis": 0x308, "ring": 0x30a, "cedilla": 0x327, "caron": 0x30c,
	}
	for base := 'A'; base <= 'z'; base++ {
		if base > 'Z' && base < 'a' {
			continue
		}
		for suffix, mark := range accents {
			s := norm.NFC.String(string([]rune{base, mark}))
			if r := []rune(s); len(r) == 1 {
				m[string(base)+suffix] = r[0]
			}
		}
	}
	return m
}

// standardEncoding is the Adobe standard encoding of Type 1 fonts.
var standardEncoding = [256]rune{
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x00-0x07
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x08-0x0F
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x10-0x17
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x18-0x1F
	0x0020, 0x0021, 0x0022, 0x0023, 0x0024, 0x0025, 0x0026, 0x2019, // 0x20-0x27 (space ! " # $ % & ')
	0x0028, 0x0029, 0x002A, 0x002B, 0x002C, 0x002D, 0x002E, 0x002F, // 0x28-0x2F ( ) * + , - . /
	0x0030, 0x0031, 0x0032, 0x0033, 0x0034, 0x0035, 0x0036, 0x0037, // 0x30-0x37 0-7
	0x0038, 0x0039, 0x003A, 0x003B, 0x003C, 0x003D, 0x003E, 0x003F, // 0x38-0x3F 8-9 : ; < = > ?
	0x0040, 0x0041, 0x0042, 0x0043, 0x0044, 0x0045, 0x0046, 0x0047, // 0x40-0x47 @ A-G
	0x0048, 0x0049, 0x004A, 0x004B, 0x004C, 0x004D, 0x004E, 0x004F, // 0x48-0x4F H-O
	0x0050, 0x0051, 0x0052, 0x0053, 0x0054, 0x0055, 0x0056, 0x0057, // 0x50-0x57 P-W
	0x0058, 0x0059, 0x005A, 0x005B, 0x005C, 0x005D, 0x005E, 0x005F, // 0x58-0x5F X-Z [ \ ] ^ _
	0x2018, 0x0061, 0x0062, 0x0063, 0x0064, 0x0065, 0x0066, 0x0067, // 0x60-0x67 ` a-g
	0x0068, 0x0069, 0x006A, 0x006B, 0x006C, 0x006D, 0x006E, 0x006F, // 0x68-0x6F h-o
	0x0070, 0x0071, 0x0072, 0x0073, 0x0074, 0x0075, 0x0076, 0x0077, // 0x70-0x77 p-w
	0x0078, 0x0079, 0x007A, 0x007B, 0x007C, 0x007D, 0x007E, 0x0000, // 0x78-0x7F x-z { | } ~
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x80-0x87
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x88-0x8F
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x90-0x97
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x98-0x9F
	0x0000, 0x00A1, 0x00A2, 0x00A3, 0x2044, 0x00A5, 0x0192, 0x00A7, // 0xA0-0xA7 ¡ ¢ £ ⁄ ¥ ƒ §
	0x00A4, 0x0027, 0x201C, 0x00AB, 0x2039, 0x203A, 0xFB01, 0xFB02, // 0xA8-0xAF ¤ ' " « ‹ › fi fl
	0x0000, 0x2013, 0x2020, 0x2021, 0x00B7, 0x0000, 0x00B6, 0x2022, // 0xB0-0xB7 – † ‡ · ¶ •
	0x201A, 0x201E, 0x201D, 0x00BB, 0x2026, 0x2030, 0x0000, 0x00BF, // 0xB8-0xBF ‚ „ " » … ‰ ¿
	0x0000, 0x0060, 0x00B4, 0x02C6, 0x02DC, 0x00AF, 0x02D8, 0x02D9, // 0xC0-0xC7 ` ´ ˆ ˜ ¯ ˘ ˙
	0x00A8, 0x0000, 0x02DA, 0x00B8, 0x0000, 0x02DD, 0x02DB, 0x02C7, // 0xC8-0xCF ¨ ˚ ¸ ˝ ˛ ˇ
	0x2014, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0xD0-0xD7 —
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0xD8-0xDF
	0x0000, 0x00C6, 0x0000, 0x00AA, 0x0000, 0x0000, 0x0000, 0x0000, // 0xE0-0xE7 Æ ª
	0x0141, 0x00D8, 0x0152, 0x00BA, 0x0000, 0x0000, 0x0000, 0x0000, // 0xE8-0xEF Ł Ø Œ º
	0x0000, 0x00E6, 0x0000, 0x0000, 0x0000, 0x0131, 0x0000, 0x0000, // 0xF0-0xF7 æ ı
	0x0142, 0x00F8, 0x0153, 0x00DF, 0x0000, 0x0000, 0x0000, 0x0000, // 0xF8-0xFF ł ø œ ß
}

// symbolEncoding is the built-in encoding of the Symbol font.
var symbolEncoding = [256]rune{
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x00-0x07
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x08-0x0F
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x10-0x17
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x18-0x1F
	0x0020, 0x0021, 0x2200, 0x0023, 0x2203, 0x0025, 0x0026, 0x220B, // 0x20-0x27 space ! ∀ # ∃ % & ∋
	0x0028, 0x0029, 0x2217, 0x002B, 0x002C, 0x2212, 0x002E, 0x002F, // 0x28-0x2F ( ) ∗ + , − . /
	0x0030, 0x0031, 0x0032, 0x0033, 0x0034, 0x0035, 0x0036, 0x0037, // 0x30-0x37 0-7
	0x0038, 0x0039, 0x003A, 0x003B, 0x003C, 0x003D, 0x003E, 0x003F, // 0x38-0x3F 8-9 : ; < = > ?
	0x2245, 0x0391, 0x0392, 0x03A7, 0x0394, 0x0395, 0x03A6, 0x0393, // 0x40-0x47 ≅ Α Β Χ Δ Ε Φ Γ
	0x0397, 0x0399, 0x03D1, 0x039A, 0x039B, 0x039C, 0x039D, 0x039F, // 0x48-0x4F Η Ι ϑ Κ Λ Μ Ν Ο
	0x03A0, 0x0398, 0x03A1, 0x03A3, 0x03A4, 0x03A5, 0x03C2, 0x03A9, // 0x50-0x57 Π Θ Ρ Σ Τ Υ ς Ω
	0x039E, 0x03A8, 0x0396, 0x005B, 0x2234, 0x005D, 0x22A5, 0x005F, // 0x58-0x5F Ξ Ψ Ζ [ ∴ ] ⊥ _
	0xF8E5, 0x03B1, 0x03B2, 0x03C7, 0x03B4, 0x03B5, 0x03C6, 0x03B3, // 0x60-0x67 α β χ δ ε φ γ
	0x03B7, 0x03B9, 0x03D5, 0x03BA, 0x03BB, 0x03BC, 0x03BD, 0x03BF, // 0x68-0x6F η ι ϕ κ λ μ ν ο
	0x03C0, 0x03B8, 0x03C1, 0x03C3, 0x03C4, 0x03C5, 0x03D6, 0x03C9, // 0x70-0x77 π θ ρ σ τ υ ϖ ω
	0x03BE, 0x03C8, 0x03B6, 0x007B, 0x007C, 0x007D, 0x223C, 0x0000, // 0x78-0x7F ξ ψ ζ { | } ∼
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x80-0x87
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x88-0x8F
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x90-0x97
	0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x98-0x9F
	0x20AC, 0x03D2, 0x2032, 0x2264, 0x2044, 0x221E, 0x0192, 0x2663, // 0xA0-0xA7 € ϒ ′ ≤ ⁄ ∞ ƒ ♣
	0x2666, 0x2665, 0x2660, 0x2194, 0x2190, 0x2191, 0x2192, 0x2193, // 0xA8-0xAF ♦ ♥ ♠ ↔ ← ↑ → ↓
	0x00B0, 0x00B1, 0x2033, 0x2265, 0x00D7, 0x221D, 0x2202, 0x2022, // 0xB0-0xB7 ° ± ″ ≥ × ∝ ∂ •
	0x00F7, 0x2260, 0x2261, 0x2248, 0x2026, 0x23D0, 0x23AF, 0x21B5, // 0xB8-0xBF ÷ ≠ ≡ ≈ … ⏐ ⎯ ↵
	0x2135, 0x2111, 0x211C, 0x2118, 0x2297, 0x2295, 0x2205, 0x2229, // 0xC0-0xC7 ℵ ℑ ℜ ℘ ⊗ ⊕ ∅ ∩
	0x222A, 0x2283, 0x2287, 0x2284, 0x2282, 0x2286, 0x2208, 0x2209, // 0xC8-0xCF ∪ ⊃ ⊇ ⊄ ⊂ ⊆ ∈ ∉
	0x2220, 0x2207, 0x00AE, 0x00A9, 0x2122, 0x220F, 0x221A, 0x22C5, // 0xD0-0xD7 ∠ ∇ ® © ™ ∏ √ ⋅
	0x00AC, 0x2227, 0x2228, 0x21D4, 0x21D0, 0x21D1, 0x21D2, 0x21D3, // 0xD8-0xDF ¬ ∧ ∨ ⇔ ⇐ ⇑ ⇒ ⇓
	0x25CA, 0x2329, 0x00AE, 0x00A9, 0x2122, 0x2211, 0x239B, 0x239C, // 0xE0-0xE7 ◊ 〈 ® © ™ ∑ ⎛ ⎜
	0x239D, 0x23A1, 0x23A2, 0x23A3, 0x23A7, 0x23A8, 0x23A9, 0x23AA, // 0xE8-0xEF ⎝ ⎡ ⎢ ⎣ ⎧ ⎨ ⎩ ⎪
	0x0000, 0x232A, 0x222B, 0x2320, 0x23AE, 0x2321, 0x239E, 0x239F, // 0xF0-0xF7 〉 ∫ ⌠ ⎮ ⌡ ⎞ ⎟
	0x23A0, 0x23A4, 0x23A5, 0x23A6, 0x23AB, 0x23AC, 0x23AD, 0x0000, // 0xF8-0xFF ⎠ ⎤ ⎥ ⎦ ⎫ ⎬ ⎭
}
