package config

import "fmt"

// TrainingError is the sentinel category every fatal error in the
// training core wraps, grounded on invertedv-seafan's Wrapper(ErrX, msg)
// idiom -- chutils.Wrapper itself isn't vendored into this module, so the
// wrapper and its sentinels live here instead.
type TrainingError struct {
	sentinel error
	context  string
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel.Error(), e.context)
}

func (e *TrainingError) Unwrap() error {
	return e.sentinel
}

var (
	// ErrConfig marks an unrecognized enum or structurally invalid
	// configuration (spec.md §7).
	ErrConfig = fmt.Errorf("config error")
	// ErrShape marks an input/target length mismatch or a constraint
	// applied to a tensor of the wrong rank.
	ErrShape = fmt.Errorf("shape error")
	// ErrState marks should_prune triggering on a name never registered
	// with the pruning manager.
	ErrState = fmt.Errorf("state error")
)

// Wrapper attaches context to one of the sentinel errors above so callers
// can still errors.Is against it.
func Wrapper(sentinel error, context string) error {
	return &TrainingError{sentinel: sentinel, context: context}
}
