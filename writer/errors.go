package writer

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/ir/raw"
)

type ErrorKind int

const (
	KindUnresolvedReference ErrorKind = iota + 1
	KindIOFailure
)

var (
	ErrUnresolvedReference = errors.New("reference to a missing object")
	ErrIOFailure           = errors.New("output write failed")
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnresolvedReference:
		return "UnresolvedReference"
	case KindIOFailure:
		return "IOFailure"
	}
	return "Unknown"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnresolvedReference:
		return ErrUnresolvedReference
	case KindIOFailure:
		return ErrIOFailure
	}
	return nil
}

// WriteError aborts a save. Object is the missing object for
// UnresolvedReference and From the object holding the reference; both are
// the zero ref otherwise.
type WriteError struct {
	Kind   ErrorKind
	Object raw.ObjectRef
	From   raw.ObjectRef
	Err    error
}

func (e *WriteError) Error() string {
	msg := "write: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = "write: " + s.Error()
	}
	if e.Object.Num > 0 {
		msg += fmt.Sprintf(" (object %s", e.Object)
		if e.From.Num > 0 {
			msg += fmt.Sprintf(", referenced from %s", e.From)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
