package fonts

import (
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/scanner"
)

// CMap is a parsed character map: codespace ranges splitting a string into
// codes, plus either code-to-Unicode (ToUnicode) or code-to-CID mappings.
type CMap struct {
	Name    string
	UseCMap string

	codespace []codespaceRange
	chars     map[code]string
	ranges    []bfRange
	cidChars  map[code]uint32
	cidRanges []cidRange
}

type code struct {
	val uint32
	n   int
}

type codespaceRange struct {
	low, high []byte
}

type bfRange struct {
	low, high uint32
	n         int
	base      []uint16 // UTF-16 units of the first destination
	list      []string // explicit destinations, when given as an array
}

type cidRange struct {
	low, high uint32
	n         int
	cid       uint32
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// ParseCMap reads CMap program text. Unknown PostScript is skipped.
func ParseCMap(data []byte) (*CMap, error) {
	cm := &CMap{chars: make(map[code]string), cidChars: make(map[code]uint32)}
	s := scanner.New(data, scanner.Config{ContentStream: true, MaxArrayDepth: 8, MaxDictDepth: 8})
	or := scanner.NewObjectReader(s)
	var prev scanner.Token
	for {
		tok, err := or.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if s.SeekTo(s.Position()+1) != nil {
				break
			}
			continue
		}
		switch {
		case tok.IsKeyword("begincodespacerange"):
			cm.readCodespace(or)
		case tok.IsKeyword("beginbfchar"):
			cm.readBFChar(or)
		case tok.IsKeyword("beginbfrange"):
			cm.readBFRange(or)
		case tok.IsKeyword("begincidchar"):
			cm.readCIDChar(or)
		case tok.IsKeyword("begincidrange"):
			cm.readCIDRange(or)
		case tok.IsKeyword("usecmap") && prev.Type == scanner.TokenName:
			cm.UseCMap = prev.Str
		case tok.Type == scanner.TokenName && tok.Str == "CMapName":
			if next, err := or.Next(); err == nil && next.Type == scanner.TokenName {
				cm.Name = next.Str
			}
		}
		prev = tok
	}
	if len(cm.codespace) == 0 && len(cm.chars) == 0 && len(cm.ranges) == 0 && len(cm.cidChars) == 0 && len(cm.cidRanges) == 0 {
		return nil, errors.New("cmap defines no mappings")
	}
	return cm, nil
}

// operands reads objects until the end keyword and returns them.
func operands(or *scanner.ObjectReader, end string) []raw.Object {
	var out []raw.Object
	for {
		tok, err := or.Next()
		if err != nil || tok.IsKeyword(end) {
			return out
		}
		if tok.Type == scanner.TokenKeyword {
			// Malformed section: stop at the first stray operator.
			or.Unread(tok)
			return out
		}
		or.Unread(tok)
		obj, err := or.ReadObject()
		if err != nil {
			return out
		}
		out = append(out, obj)
	}
}

func stringBytes(o raw.Object) ([]byte, bool) {
	s, ok := o.(raw.StringObj)
	return s.Bytes, ok
}

func codeOf(b []byte) code {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return code{val: v, n: len(b)}
}

func (cm *CMap) readCodespace(or *scanner.ObjectReader) {
	ops := operands(or, "endcodespacerange")
	for i := 0; i+1 < len(ops); i += 2 {
		lo, ok1 := stringBytes(ops[i])
		hi, ok2 := stringBytes(ops[i+1])
		if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 && len(lo) <= 4 {
			cm.codespace = append(cm.codespace, codespaceRange{low: lo, high: hi})
		}
	}
}

func (cm *CMap) readBFChar(or *scanner.ObjectReader) {
	ops := operands(or, "endbfchar")
	for i := 0; i+1 < len(ops); i += 2 {
		src, ok := stringBytes(ops[i])
		if !ok || len(src) == 0 || len(src) > 4 {
			continue
		}
		switch dst := ops[i+1].(type) {
		case raw.StringObj:
			cm.chars[codeOf(src)] = decodeUTF16(dst.Bytes)
		case raw.NameObj:
			if r, ok := GlyphRune(dst.Val); ok {
				cm.chars[codeOf(src)] = string(r)
			}
		}
	}
}

func (cm *CMap) readBFRange(or *scanner.ObjectReader) {
	ops := operands(or, "endbfrange")
	for i := 0; i+2 < len(ops); i += 3 {
		lo, ok1 := stringBytes(ops[i])
		hi, ok2 := stringBytes(ops[i+1])
		if !ok1 || !ok2 || len(lo) != len(hi) || len(lo) == 0 || len(lo) > 4 {
			continue
		}
		r := bfRange{low: codeOf(lo).val, high: codeOf(hi).val, n: len(lo)}
		if r.high < r.low {
			continue
		}
		switch dst := ops[i+2].(type) {
		case raw.StringObj:
			for j := 0; j+1 < len(dst.Bytes); j += 2 {
				r.base = append(r.base, uint16(dst.Bytes[j])<<8|uint16(dst.Bytes[j+1]))
			}
			if len(dst.Bytes) == 1 {
				r.base = []uint16{uint16(dst.Bytes[0])}
			}
		case *raw.ArrayObj:
			for _, item := range dst.Items {
				b, _ := stringBytes(item)
				r.list = append(r.list, decodeUTF16(b))
			}
		default:
			continue
		}
		cm.ranges = append(cm.ranges, r)
	}
}

func (cm *CMap) readCIDChar(or *scanner.ObjectReader) {
	ops := operands(or, "endcidchar")
	for i := 0; i+1 < len(ops); i += 2 {
		src, ok := stringBytes(ops[i])
		cid, isNum := ops[i+1].(raw.NumberObj)
		if ok && isNum && len(src) > 0 && len(src) <= 4 {
			cm.cidChars[codeOf(src)] = uint32(cid.Int())
		}
	}
}

func (cm *CMap) readCIDRange(or *scanner.ObjectReader) {
	ops := operands(or, "endcidrange")
	for i := 0; i+2 < len(ops); i += 3 {
		lo, ok1 := stringBytes(ops[i])
		hi, ok2 := stringBytes(ops[i+1])
		cid, isNum := ops[i+2].(raw.NumberObj)
		if !ok1 || !ok2 || !isNum || len(lo) != len(hi) || len(lo) == 0 || len(lo) > 4 {
			continue
		}
		cm.cidRanges = append(cm.cidRanges, cidRange{low: codeOf(lo).val, high: codeOf(hi).val, n: len(lo), cid: uint32(cid.Int())})
	}
}

func decodeUTF16(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// HasCodespace reports whether the map declares codespace ranges.
func (cm *CMap) HasCodespace() bool { return len(cm.codespace) > 0 }

// NextCode returns the length of the code starting at b[0]. Bytes outside
// every codespace consume the shortest declared code length, or def.
func (cm *CMap) NextCode(b []byte, def int) int {
	shortest := 0
	for n := 1; n <= 4 && n <= len(b); n++ {
		for _, r := range cm.codespace {
			if len(r.low) != n {
				continue
			}
			if shortest == 0 || n < shortest {
				shortest = n
			}
			if inRange(b[:n], r) {
				return n
			}
		}
	}
	if shortest == 0 {
		shortest = def
	}
	return max(1, min(shortest, len(b)))
}

func inRange(b []byte, r codespaceRange) bool {
	for i := range b {
		if b[i] < r.low[i] || b[i] > r.high[i] {
			return false
		}
	}
	return true
}

// Unicode maps a code to text.
func (cm *CMap) Unicode(b []byte) (string, bool) {
	c := codeOf(b)
	if s, ok := cm.chars[c]; ok {
		return s, true
	}
	for _, r := range cm.ranges {
		if r.n != c.n || c.val < r.low || c.val > r.high {
			continue
		}
		off := c.val - r.low
		if r.list != nil {
			if int(off) < len(r.list) {
				return r.list[off], true
			}
			return "", false
		}
		units := append([]uint16(nil), r.base...)
		if len(units) == 0 {
			return "", false
		}
		units[len(units)-1] += uint16(off)
		buf := make([]byte, 0, 2*len(units))
		for _, u := range units {
			buf = append(buf, byte(u>>8), byte(u))
		}
		return decodeUTF16(buf), true
	}
	return "", false
}

// CID maps a code to a character id.
func (cm *CMap) CID(b []byte) (uint32, bool) {
	c := codeOf(b)
	if cid, ok := cm.cidChars[c]; ok {
		return cid, true
	}
	for _, r := range cm.cidRanges {
		if r.n == c.n && c.val >= r.low && c.val <= r.high {
			return r.cid + c.val - r.low, true
		}
	}
	return 0, false
}
