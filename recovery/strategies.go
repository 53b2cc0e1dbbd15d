package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfredact/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy keeps going and remembers every problem it was told about.
// It is safe for concurrent use so one instance can serve a batch.
type LenientStrategy struct {
	mu     sync.Mutex
	errors []error
	logger observability.Logger
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{logger: observability.NopLogger{}}
}

// WithLogger reports every recovered error at warn level.
func (s *LenientStrategy) WithLogger(l observability.Logger) *LenientStrategy {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.logger.Warn("recovered malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.Error("error", err))
	return ActionWarn
}

// Errors returns a copy of the recovered errors.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
