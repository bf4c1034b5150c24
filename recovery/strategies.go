package recovery

// StrictStrategy fails on the first error. It is the default everywhere:
// a broken cross-reference section must not silently produce a partial index.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and asks the caller to patch over it.
// The accumulated errors let callers report what was wrong with a document
// that still opened.
type LenientStrategy struct {
	Errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.Errors = append(s.Errors, err)
	return ActionFix
}
