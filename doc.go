// Package kvstore implements an embedded, on-disk, single-process
// key-value store backed by three memory-mapped files: a linear-probed
// hash index, an append-only key blob region, and an append-only value
// blob region.
//
// # Basic usage
//
//	eng, err := kvstore.Open(kvstore.Options{
//		Dir:                  "/var/lib/myapp/kv",
//		HashFactor:            0.75,
//		AutoCompactThreshold:  1000,
//	})
//	if err != nil { ... }
//	defer eng.Close()
//
//	err = eng.Put([]byte("hi"), []byte("world"))
//	val, ok, err := eng.Get([]byte("hi"))
//
// # Concurrency
//
// Get is lock-free and safe to call from any number of goroutines
// concurrently with each other and with a single in-flight Put/Del. Put and
// Del serialize against each other on an internal mutex; only one of them
// runs at a time. Compact only posts a request: a background goroutine
// performs compaction and stale-file cleanup asynchronously, holds Get off
// only for the brief pointer swap, and is serialized against Put/Del on the
// same mutex.
//
// # Error handling
//
// Errors are sentinel values classified with errors.Is (ErrInvalidInput,
// ErrClosed, ErrMapFailed, ErrPutFailed). Corruption recovery is limited to
// a single in-progress slot mutation interrupted by a crash; anything
// beyond that is outside the recovery model (see the package-level design
// notes in SPEC_FULL.md for the reasoning).
package kvstore
