package redact

import (
	"errors"
	"fmt"
)

// ErrorKind classifies per-spec failures.
type ErrorKind int

const (
	KindOutOfRange ErrorKind = iota + 1
	KindEmptySpec
	KindContentUnavailable
)

var (
	ErrOutOfRange         = errors.New("page out of range")
	ErrEmptySpec          = errors.New("redaction area is empty")
	ErrContentUnavailable = errors.New("page content unavailable for rewriting")
)

func (k ErrorKind) String() string {
	switch k {
	case KindOutOfRange:
		return "OutOfRange"
	case KindEmptySpec:
		return "EmptySpec"
	case KindContentUnavailable:
		return "ContentUnavailable"
	default:
		return "Unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindOutOfRange:
		return ErrOutOfRange
	case KindEmptySpec:
		return ErrEmptySpec
	case KindContentUnavailable:
		return ErrContentUnavailable
	}
	return nil
}

// RedactError is the failure of one spec. Index is the position of the spec
// in marking order.
type RedactError struct {
	Kind  ErrorKind
	Index int
	Page  int
	Err   error
}

func (e *RedactError) Error() string {
	msg := "redact: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = "redact: " + s.Error()
	}
	msg += fmt.Sprintf(" (spec %d, page %d)", e.Index, e.Page+1)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RedactError) Unwrap() error { return e.Err }

func (e *RedactError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
