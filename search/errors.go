package search

import (
	"errors"
	"fmt"
)

// ErrorKind classifies search failures.
type ErrorKind int

const (
	KindInvalidPattern ErrorKind = iota + 1
	KindEmptyQuery
	KindTimeout
)

var (
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrEmptyQuery     = errors.New("empty query")
	ErrTimeout        = errors.New("pattern match timed out")
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidPattern:
		return "InvalidPattern"
	case KindEmptyQuery:
		return "EmptyQuery"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidPattern:
		return ErrInvalidPattern
	case KindEmptyQuery:
		return ErrEmptyQuery
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

// MatchError reports a query that could not be run. Page is -1 unless the
// failure happened while scanning a page.
type MatchError struct {
	Kind    ErrorKind
	Pattern string
	Page    int
	Err     error
}

func (e *MatchError) Error() string {
	msg := "search: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = "search: " + s.Error()
	}
	if e.Page >= 0 {
		msg += fmt.Sprintf(" on page %d", e.Page+1)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MatchError) Unwrap() error { return e.Err }

func (e *MatchError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
