package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/scanner"
)

// MaxOperands bounds the operand stack of a single operator.
const MaxOperands = 1024

// Parse splits a decoded content stream into operators. Operands that no
// operator consumes before the end of the stream are dropped.
func Parse(data []byte) ([]Op, error) {
	s := scanner.New(data, scanner.Config{ContentStream: true, MaxArrayDepth: 32, MaxDictDepth: 32})
	or := scanner.NewObjectReader(s)
	var (
		ops      []Op
		operands []raw.Object
		start    int64 = -1
	)
	for {
		tok, err := or.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ops, nil
			}
			return ops, &InterpretError{Kind: KindCorruptContentStream, Page: -1, Offset: s.Position(), Err: err}
		}
		if start < 0 {
			start = tok.Pos
		}
		if tok.Type != scanner.TokenKeyword {
			or.Unread(tok)
			obj, err := or.ReadObject()
			if err != nil {
				return ops, &InterpretError{Kind: KindCorruptContentStream, Page: -1, Offset: tok.Pos, Err: err}
			}
			if len(operands) >= MaxOperands {
				return ops, &InterpretError{Kind: KindCorruptContentStream, Page: -1, Offset: tok.Pos,
					Err: fmt.Errorf("more than %d operands", MaxOperands)}
			}
			operands = append(operands, obj)
			continue
		}
		op := Op{Kind: KindOf(tok.Str), Name: tok.Str, Operands: operands, Start: start, End: tok.End}
		if op.Kind == OpInlineImage {
			img, end, err := readInlineImage(or)
			if err != nil {
				return ops, &InterpretError{Kind: KindCorruptContentStream, Page: -1, Offset: tok.Pos, Err: err}
			}
			op.Inline, op.End = img, end
		}
		ops = append(ops, op)
		operands, start = nil, -1
	}
}

// readInlineImage reads the key/value pairs following BI up to the image
// data that the scanner returns for ID.
func readInlineImage(or *scanner.ObjectReader) (*InlineImage, int64, error) {
	dict := raw.Dict()
	for {
		tok, err := or.Next()
		if err != nil {
			return nil, 0, fmt.Errorf("inline image: %w", err)
		}
		switch {
		case tok.Type == scanner.TokenInlineImage:
			return &InlineImage{Dict: dict, Data: tok.Bytes}, tok.End, nil
		case tok.Type == scanner.TokenName:
			val, err := or.ReadObject()
			if err != nil {
				return nil, 0, fmt.Errorf("inline image %s: %w", tok.Str, err)
			}
			dict.Set(tok.Str, val)
		default:
			return nil, 0, fmt.Errorf("inline image: unexpected %s at offset %d: %w", tok.Type, tok.Pos, scanner.ErrSyntax)
		}
	}
}
