package recovery

import "context"

// Strategy decides what happens when parsing hits malformed input.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location pins an error to a place in the file.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

// Handle consults s about err. It returns err when the strategy says fail
// (or there is no strategy) and nil when parsing may continue.
func Handle(ctx context.Context, s Strategy, err error, loc Location) error {
	if err == nil {
		return nil
	}
	if s == nil {
		return err
	}
	if s.OnError(ctx, err, loc) == ActionFail {
		return err
	}
	return nil
}
