package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfredact/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // stream payload following the 'stream' keyword
	TokenInlineImage                  // inline image data between ID and EI (content streams only)
	TokenKeyword                      // other keywords (obj, endobj, >>, ], operators, ...)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is one lexical unit. Only the fields matching Type are set:
// Str for names and keywords, Bytes for strings and payloads, Int/Float for
// numbers (Int and Gen for references), Bool for booleans.
type Token struct {
	Type  TokenType
	Pos   int64
	End   int64
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Hex   bool
}

// Number returns the numeric value as float64.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxInlineImage  int64
	// ContentStream switches to content-stream lexing: no "N G R"
	// references, and inline image data after ID.
	ContentStream bool
	Recovery      recovery.Strategy
}

var (
	ErrUnterminated = errors.New("unterminated token")
	ErrTooLong      = errors.New("token exceeds limit")
	ErrTooDeep      = errors.New("nesting too deep")
)

// Scanner tokenizes PDF bytes held in memory.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) SeekTo(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek to %d out of range", offset)
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	return nil
}

// SetNextStreamLength hints the payload length of the next stream token.
func (s *Scanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *Scanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			s.dictDepth++
			if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
				return Token{}, s.limit(fmt.Errorf("dict depth exceeded at offset %d: %w", start, ErrTooDeep), "dict")
			}
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			if s.dictDepth > 0 {
				s.dictDepth--
			}
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.limit(fmt.Errorf("array depth exceeded at offset %d: %w", start, ErrTooDeep), "array")
		}
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		if s.arrayDepth > 0 {
			s.arrayDepth--
		}
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '{', '}', ')':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) emit(tok Token) (Token, error) {
	tok.End = s.pos
	return tok, nil
}

// fail reports err to the recovery strategy and returns it unless the
// strategy allows the scanner to continue.
func (s *Scanner) fail(err error, component string) error {
	loc := s.recLoc
	loc.ByteOffset = s.pos
	loc.Component = "scanner:" + component
	if s.cfg.Recovery == nil {
		s.lastAction = recovery.ActionFail
		return err
	}
	s.lastAction = s.cfg.Recovery.OnError(context.Background(), err, loc)
	if s.lastAction == recovery.ActionFail {
		return err
	}
	return nil
}

// limit reports a violated resource limit. Limits are never recoverable.
func (s *Scanner) limit(err error, component string) error {
	_ = s.fail(err, component)
	return err
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

// scanLiteralString reads a balanced-parenthesis string with escapes.
// Bare CR and CRLF inside the string read as LF.
func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++
	var buf bytes.Buffer
	depth := 1
	n := int64(len(s.data))
	for s.pos < n && depth > 0 {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= n {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < n; k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				continue
			}
		case '\r':
			buf.WriteByte('\n')
			s.pos++
			if s.pos < n && s.data[s.pos] == '\n' {
				s.pos++
			}
			continue
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.limit(fmt.Errorf("literal string too long: %w", ErrTooLong), "literal")
		}
	}
	if depth != 0 {
		if err := s.fail(fmt.Errorf("unterminated literal string at offset %d: %w", start, ErrUnterminated), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++
	out := make([]byte, 0, 16)
	var hi byte
	half := false
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if !isHex(c) {
			continue
		}
		if half {
			out = append(out, hi<<4|fromHex(c))
			half = false
		} else {
			hi = fromHex(c)
			half = true
		}
	}
	if half {
		out = append(out, hi<<4)
	}
	if !closed {
		if err := s.fail(fmt.Errorf("unterminated hex string at offset %d: %w", start, ErrUnterminated), "hex"); err != nil {
			return Token{}, err
		}
	}
	if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
		return Token{}, s.limit(fmt.Errorf("hex string too long: %w", ErrTooLong), "hex")
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, ok := s.scanNumber()
	if !ok {
		// A lone sign or dot: treat as a keyword so callers can skip it.
		return s.scanKeyword()
	}
	if s.cfg.ContentStream || !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// Look ahead for "gen R" without consuming on mismatch.
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && isDigit(s.data[s.pos]) {
		gstart := s.pos
		for s.pos < int64(len(s.data)) && isDigit(s.data[s.pos]) {
			s.pos++
		}
		if s.pos < int64(len(s.data)) && !isWhitespace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
			s.pos = save
			return tok, nil
		}
		gen, err := strconv.Atoi(string(s.data[gstart:s.pos]))
		s.skipWSAndComments()
		if err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
			(s.pos+1 >= int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
			s.pos++
			return s.emit(Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: start})
		}
	}
	s.pos = save
	return tok, nil
}

// scanNumber reads an integer or real. Malformed numbers such as "--3" or
// "1.2.3" keep their longest parseable prefix.
func (s *Scanner) scanNumber() (Token, bool) {
	start := s.pos
	n := int64(len(s.data))
	for s.pos < n && isDigitStart(s.data[s.pos]) {
		s.pos++
	}
	lit := string(s.data[start:s.pos])
	for len(lit) > 1 && (lit[0] == '+' || lit[0] == '-') && (lit[1] == '+' || lit[1] == '-') {
		lit = lit[1:]
	}
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start, End: s.pos}, true
	}
	for l := len(lit); l > 0; l-- {
		if f, err := strconv.ParseFloat(lit[:l], 64); err == nil {
			return Token{Type: TokenNumber, Float: f, Pos: start, End: s.pos}, true
		}
	}
	if lit == "-" || lit == "+" || lit == "." || lit == "-." {
		s.pos = start
		return Token{}, false
	}
	return Token{Type: TokenNumber, Pos: start, End: s.pos, IsInt: true}, true
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return s.emit(Token{Type: TokenBoolean, Bool: kw == "true", Pos: start})
	case "null":
		return s.emit(Token{Type: TokenNull, Pos: start})
	case "stream":
		if !s.cfg.ContentStream {
			return s.scanStream(start)
		}
	case "ID":
		if s.cfg.ContentStream {
			return s.scanInlineImage(start)
		}
	}
	return s.emit(Token{Type: TokenKeyword, Str: kw, Pos: start})
}

// scanStream reads the payload after the stream keyword. The length hint is
// trusted when "endstream" follows it; otherwise the payload runs up to the
// next "endstream".
func (s *Scanner) scanStream(start int64) (Token, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	n := int64(len(s.data))
	if s.pos < n && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < n && s.data[s.pos] == '\n' {
		s.pos++
	}
	body := s.pos
	if hint >= 0 && body+hint <= n {
		end := body + hint
		p := end
		for p < n && isWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], []byte("endstream")) {
			if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
				return Token{}, s.limit(fmt.Errorf("stream too long: %w", ErrTooLong), "stream")
			}
			s.pos = p + int64(len("endstream"))
			return s.emit(Token{Type: TokenStream, Bytes: s.data[body:end], Pos: start})
		}
	}
	idx := bytes.Index(s.data[body:], []byte("endstream"))
	if idx < 0 {
		if err := s.fail(fmt.Errorf("endstream not found for stream at offset %d: %w", start, ErrUnterminated), "stream"); err != nil {
			return Token{}, err
		}
		s.pos = n
		return s.emit(Token{Type: TokenStream, Bytes: s.data[body:n], Pos: start})
	}
	end := body + int64(idx)
	s.pos = end + int64(len("endstream"))
	if end > body && s.data[end-1] == '\n' {
		end--
	}
	if end > body && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-body > s.cfg.MaxStreamLength {
		return Token{}, s.limit(fmt.Errorf("stream too long: %w", ErrTooLong), "stream")
	}
	return s.emit(Token{Type: TokenStream, Bytes: s.data[body:end], Pos: start})
}

// scanInlineImage reads the binary data following ID up to the EI that is
// surrounded by whitespace and followed by plausible content-stream text.
func (s *Scanner) scanInlineImage(start int64) (Token, error) {
	n := int64(len(s.data))
	if s.pos < n && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	body := s.pos
	for p := body; p+1 < n; p++ {
		if s.data[p] != 'E' || s.data[p+1] != 'I' {
			continue
		}
		if p > body && !isWhitespace(s.data[p-1]) {
			continue
		}
		if p+2 < n && !isWhitespace(s.data[p+2]) && !isDelimiter(s.data[p+2]) {
			continue
		}
		if !plausibleAfterEI(s.data[min(p+2, n):]) {
			continue
		}
		end := p
		if end > body && isWhitespace(s.data[end-1]) {
			end--
		}
		if s.cfg.MaxInlineImage > 0 && end-body > s.cfg.MaxInlineImage {
			return Token{}, s.limit(fmt.Errorf("inline image too long: %w", ErrTooLong), "inline-image")
		}
		s.pos = p + 2
		return s.emit(Token{Type: TokenInlineImage, Str: "ID", Bytes: s.data[body:end], Pos: start})
	}
	if err := s.fail(fmt.Errorf("unterminated inline image at offset %d: %w", start, ErrUnterminated), "inline-image"); err != nil {
		return Token{}, err
	}
	s.pos = n
	return s.emit(Token{Type: TokenInlineImage, Str: "ID", Bytes: s.data[body:n], Pos: start})
}

func plausibleAfterEI(rest []byte) bool {
	if len(rest) > 48 {
		rest = rest[:48]
	}
	for _, c := range rest {
		if c >= 0x80 || (c < 0x20 && !isWhitespace(c)) {
			return false
		}
	}
	return true
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || isDigit(c) }
func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
