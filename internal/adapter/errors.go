package adapter

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted is returned by adapters whose call was cancelled. It must
// be propagated, never swallowed.
var ErrInterrupted = errors.New("adapter call interrupted")

// ErrUnsupportedKind is returned by a Registry asked for an unknown kind.
var ErrUnsupportedKind = errors.New("unsupported site kind")

// Error is a recoverable failure of a single adapter call.
type Error struct {
	Op   string
	Site string
	Err  error
}

func (e *Error) Error() string {
	if e.Site != "" {
		return fmt.Sprintf("adapter %s on %s: %v", e.Op, e.Site, e.Err)
	}
	return fmt.Sprintf("adapter %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a recoverable failure of op against site.
func NewError(op, site string, err error) *Error {
	return &Error{Op: op, Site: site, Err: err}
}

// IsInterrupted reports whether err means the calling goroutine was asked to
// stop.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a per-call deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
