package raw

import (
	"math"
	"strconv"
)

// AppendObject appends the PDF syntax of o to buf. Dictionary keys are
// written in sorted order so output is stable. Streams are written as their
// dictionary only; the caller emits the payload.
func AppendObject(buf []byte, o Object) []byte {
	switch v := o.(type) {
	case NameObj:
		return AppendName(buf, v.Val)
	case NumberObj:
		if v.IsInt {
			return strconv.AppendInt(buf, v.I, 10)
		}
		return AppendFloat(buf, v.F)
	case BoolObj:
		return strconv.AppendBool(buf, v.V)
	case StringObj:
		if v.Hex {
			return AppendHexString(buf, v.Bytes)
		}
		return AppendLiteralString(buf, v.Bytes)
	case *ArrayObj:
		buf = append(buf, '[')
		for i, it := range v.Items {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = AppendObject(buf, it)
		}
		return append(buf, ']')
	case *DictObj:
		buf = append(buf, "<<"...)
		for _, k := range v.Keys() {
			buf = AppendName(buf, k)
			buf = append(buf, ' ')
			buf = AppendObject(buf, v.KV[k])
		}
		return append(buf, ">>"...)
	case *StreamObj:
		return AppendObject(buf, v.Dict)
	case RefObj:
		buf = strconv.AppendInt(buf, int64(v.R.Num), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(v.R.Gen), 10)
		return append(buf, " R"...)
	}
	return append(buf, "null"...)
}

// AppendFloat writes f with at most five decimals and no exponent.
func AppendFloat(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, '0')
	}
	r := math.Round(f*1e5) / 1e5
	if r == math.Trunc(r) && math.Abs(r) < 1e15 {
		return strconv.AppendInt(buf, int64(r), 10)
	}
	return strconv.AppendFloat(buf, r, 'f', -1, 64)
}

// AppendName writes /value, escaping delimiters, whitespace and bytes
// outside the printable range as #XX.
func AppendName(buf []byte, value string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < '!' || c > '~' || c == '#' || isDelim(c) {
			buf = append(buf, '#', hexDigits[c>>4], hexDigits[c&15])
			continue
		}
		buf = append(buf, c)
	}
	return buf
}

// AppendLiteralString writes b as a parenthesised string.
func AppendLiteralString(buf []byte, b []byte) []byte {
	buf = append(buf, '(')
	for _, ch := range b {
		switch ch {
		case '\\', '(', ')':
			buf = append(buf, '\\', ch)
		case '\n':
			buf = append(buf, `\n`...)
		case '\r':
			buf = append(buf, `\r`...)
		case '\t':
			buf = append(buf, `\t`...)
		case '\b':
			buf = append(buf, `\b`...)
		case '\f':
			buf = append(buf, `\f`...)
		default:
			if ch < 0x20 || ch >= 0x7f {
				buf = append(buf, '\\', '0'+(ch>>6), '0'+(ch>>3)&7, '0'+ch&7)
			} else {
				buf = append(buf, ch)
			}
		}
	}
	return append(buf, ')')
}

// AppendHexString writes b as <HEX>.
func AppendHexString(buf []byte, b []byte) []byte {
	buf = append(buf, '<')
	for _, c := range b {
		buf = append(buf, hexDigits[c>>4], hexDigits[c&15])
	}
	return append(buf, '>')
}

const hexDigits = "0123456789ABCDEF"

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
