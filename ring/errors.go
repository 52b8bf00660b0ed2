package ring

import "errors"

// Error kinds a ring can report. Timeout and closed are recoverable;
// incompatible is fatal and fails construction.
var (
	ErrTimeout      = errors.New("ring: timeout")
	ErrClosed       = errors.New("ring: closed")
	ErrIncompatible = errors.New("ring: incompatible region (magic/version mismatch)")
)
