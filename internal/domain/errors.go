package domain

import (
	"errors"
	"fmt"
)

// ErrStoreCorrupt signals that the checkpoint store exists on disk but
// cannot be read. Surfaced distinctly so the operator knows to run with
// --clear-cursor rather than chase a transport problem.
var ErrStoreCorrupt = errors.New("checkpoint store is corrupt")

// ValidationError reports a bad time window or an incompatible flag
// combination. Fatal: no query is issued.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError wraps a network or API failure during a page fetch or a
// sink write. The run aborts without advancing the cursor for the failed
// page, so a retried run re-fetches it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// SinkConfigError reports a destination that cannot be used: unresolvable
// host, unwritable path, unreachable broker. Detected eagerly, before any
// extraction begins.
type SinkConfigError struct {
	Dest string
	Err  error
}

func (e *SinkConfigError) Error() string {
	return fmt.Sprintf("destination %q: %v", e.Dest, e.Err)
}

func (e *SinkConfigError) Unwrap() error { return e.Err }
