package kvstore

import "errors"

// Error classification. Implementations may wrap these with additional
// context; callers classify with errors.Is.
var (
	// ErrInvalidInput indicates a caller-supplied argument (key/value size,
	// options field) violates the engine's contract.
	ErrInvalidInput = errors.New("kvstore: invalid input")

	// ErrClosed indicates an operation was attempted on a closed Engine.
	ErrClosed = errors.New("kvstore: closed")

	// ErrMapFailed indicates a file could not be opened, truncated, or
	// mapped during Open. A mapping failure while Put grows a region is
	// reported as ErrPutFailed.
	ErrMapFailed = errors.New("kvstore: map failed")

	// ErrPutFailed is returned when Put still cannot make progress after
	// growing the affected region once.
	ErrPutFailed = errors.New("kvstore: put failed")

	// errNeedGrowKey and errNeedGrowValue are internal write-path signals; they
	// are never returned to callers of Put (the engine handles them by
	// growing the affected region and retrying once).
	errNeedGrowKey   = errors.New("kvstore: need grow key region")
	errNeedGrowValue = errors.New("kvstore: need grow value region")
)
