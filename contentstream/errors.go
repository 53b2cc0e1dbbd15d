package contentstream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies interpretation failures.
type ErrorKind int

const (
	KindCorruptContentStream ErrorKind = iota + 1
)

// ErrCorruptContentStream matches every InterpretError.
var ErrCorruptContentStream = errors.New("corrupt content stream")

func (k ErrorKind) String() string {
	if k == KindCorruptContentStream {
		return "CorruptContentStream"
	}
	return "Unknown"
}

// InterpretError reports a content stream that could not be decoded or
// tokenized. Page is -1 when the stream is not tied to a page.
type InterpretError struct {
	Kind   ErrorKind
	Page   int
	Offset int64
	Err    error
}

func (e *InterpretError) Error() string {
	msg := "interpret: " + ErrCorruptContentStream.Error()
	if e.Page >= 0 {
		msg += fmt.Sprintf(" on page %d", e.Page+1)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InterpretError) Unwrap() error { return e.Err }

func (e *InterpretError) Is(target error) bool {
	return target == ErrCorruptContentStream && e.Kind == KindCorruptContentStream
}

// Diagnostic is a non-fatal observation made while interpreting a page.
type Diagnostic struct {
	Op      string
	Offset  int64
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	if d.Op != "" {
		return fmt.Sprintf("%s at offset %d: %s", d.Op, d.Offset, d.Message)
	}
	return fmt.Sprintf("offset %d: %s", d.Offset, d.Message)
}
