// Package fault classifies the errors that end a bot invocation.
//
// The bot never retries internally. Whether a failed run is worth
// re-triggering depends on why it failed, so every fatal error carries a Kind.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure category of a fatal error.
type Kind int

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = iota

	// KindInput means the event payload or contribution was malformed.
	// Nothing was mutated and re-running with the same input fails again.
	KindInput

	// KindIO means a hosting platform or version-control call failed.
	// The lock may be left held.
	KindIO

	// KindLock means a bounded lock acquisition gave up.
	KindLock
)

// String returns the lower-case kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindIO:
		return "io"
	case KindLock:
		return "lock"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input wraps err as a malformed-input error.
func Input(op string, err error) error {
	return &Error{Kind: KindInput, Op: op, Err: err}
}

// Inputf builds a malformed-input error from a format string.
func Inputf(op string, format string, a ...any) error {
	return Input(op, fmt.Errorf(format, a...))
}

// IO wraps err as a hosting or version-control failure.
func IO(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// Lock wraps err as a lock acquisition failure.
func Lock(op string, err error) error {
	return &Error{Kind: KindLock, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsInput reports whether err is a malformed-input error.
func IsInput(err error) bool {
	return KindOf(err) == KindInput
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindInput:
		return 2
	case KindLock:
		return 3
	default:
		return 1
	}
}
