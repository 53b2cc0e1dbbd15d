package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
)

// ErrorKind classifies why a document could not be opened.
type ErrorKind int

const (
	KindTruncated ErrorKind = iota + 1
	KindMalformedXref
	KindUnsupportedFilter
	KindEncrypted
	KindBadPassword
)

var (
	ErrTruncated     = errors.New("truncated file")
	ErrMalformedXref = errors.New("malformed cross-reference data")
	// ErrUnsupportedFilter is shared with the filters package so either
	// sentinel matches.
	ErrUnsupportedFilter = filters.ErrUnsupportedFilter
	ErrEncrypted         = errors.New("document is encrypted")
	ErrBadPassword       = errors.New("incorrect password")
)

func (k ErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "Truncated"
	case KindMalformedXref:
		return "MalformedXref"
	case KindUnsupportedFilter:
		return "UnsupportedFilter"
	case KindEncrypted:
		return "Encrypted"
	case KindBadPassword:
		return "BadPassword"
	}
	return "Unknown"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTruncated:
		return ErrTruncated
	case KindMalformedXref:
		return ErrMalformedXref
	case KindUnsupportedFilter:
		return ErrUnsupportedFilter
	case KindEncrypted:
		return ErrEncrypted
	case KindBadPassword:
		return ErrBadPassword
	}
	return nil
}

// ParseError carries the kind of failure plus where it happened. Offset is
// -1 and Object the zero ref when unknown.
type ParseError struct {
	Kind   ErrorKind
	Offset int64
	Object raw.ObjectRef
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse: " + e.Kind.sentinel().Error()
	if e.Object.Num > 0 {
		msg += fmt.Sprintf(" (object %s)", e.Object)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == e.Kind.sentinel() }

func newError(kind ErrorKind, offset int64, err error) *ParseError {
	return &ParseError{Kind: kind, Offset: offset, Err: err}
}
