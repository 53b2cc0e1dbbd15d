package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/recovery"
)

// ErrSyntax marks token sequences that do not form a PDF object.
var ErrSyntax = errors.New("syntax error")

// ObjectReader assembles raw objects from scanner tokens.
type ObjectReader struct {
	s   *Scanner
	buf []Token

	// StreamLength resolves a stream dictionary's /Length when it is an
	// indirect reference. Nil means only direct lengths are used.
	StreamLength func(raw.Object) (int64, bool)
}

func NewObjectReader(s *Scanner) *ObjectReader { return &ObjectReader{s: s} }

func (r *ObjectReader) Scanner() *Scanner { return r.s }

// Next returns the next token, honouring unread tokens first.
func (r *ObjectReader) Next() (Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *ObjectReader) Unread(tok Token) { r.buf = append(r.buf, tok) }

// SeekTo drops unread tokens and repositions the scanner.
func (r *ObjectReader) SeekTo(off int64) error {
	r.buf = r.buf[:0]
	return r.s.SeekTo(off)
}

// ReadObject reads one direct object.
func (r *ObjectReader) ReadObject() (raw.Object, error) {
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	return r.objectFrom(tok)
}

func (r *ObjectReader) objectFrom(tok Token) (raw.Object, error) {
	switch tok.Type {
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		return r.readArray()
	case TokenDict:
		return r.readDict()
	}
	return nil, fmt.Errorf("unexpected %s %q at offset %d: %w", tok.Type, tok.Str, tok.Pos, ErrSyntax)
}

func (r *ObjectReader) readArray() (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("array not closed: %w", ErrUnterminated)
			}
			return nil, err
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		if tok.IsKeyword("endobj") {
			if err := r.s.fail(fmt.Errorf("endobj inside array at offset %d: %w", tok.Pos, ErrSyntax), "array"); err != nil {
				return nil, err
			}
			r.Unread(tok)
			return arr, nil
		}
		item, err := r.objectFrom(tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *ObjectReader) readDict() (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("dictionary not closed: %w", ErrUnterminated)
			}
			return nil, err
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != TokenName {
			if tok.IsKeyword("endobj") || tok.IsKeyword("stream") || tok.Type == TokenStream {
				if err := r.s.fail(fmt.Errorf("dictionary at offset %d missing >>: %w", tok.Pos, ErrSyntax), "dict"); err != nil {
					return nil, err
				}
				r.Unread(tok)
				return d, nil
			}
			return nil, fmt.Errorf("expected name key, got %s at offset %d: %w", tok.Type, tok.Pos, ErrSyntax)
		}
		val, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to an absent key.
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(tok.Str, val)
	}
}

// ReadIndirect reads "num gen obj <object> [stream] endobj" at the current
// position and returns the id found in the header.
func (r *ObjectReader) ReadIndirect() (raw.ObjectRef, raw.Object, error) {
	num, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	// "1 0 obj" lexes as a number followed by "0 obj"; references never
	// form here because "obj" is not "R".
	gen, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	kw, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != TokenNumber || !num.IsInt || gen.Type != TokenNumber || !gen.IsInt || !kw.IsKeyword("obj") {
		return raw.ObjectRef{}, nil, fmt.Errorf("no object header at offset %d: %w", num.Pos, ErrSyntax)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	r.s.SetRecoveryLocation(recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen})

	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		r.s.SetNextStreamLength(r.lengthHint(dict))
		tok, err := r.Next()
		switch {
		case err == nil && tok.Type == TokenStream:
			obj = raw.NewStream(dict, tok.Bytes)
		case err == nil:
			r.s.SetNextStreamLength(-1)
			r.Unread(tok)
		default:
			r.s.SetNextStreamLength(-1)
		}
	}
	if tok, err := r.Next(); err == nil && !tok.IsKeyword("endobj") {
		r.Unread(tok)
	}
	return ref, obj, nil
}

func (r *ObjectReader) lengthHint(dict *raw.DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case raw.NumberObj:
		return n.Int()
	case raw.RefObj:
		if r.StreamLength != nil {
			if l, ok := r.StreamLength(n); ok {
				return l
			}
		}
	}
	return -1
}
