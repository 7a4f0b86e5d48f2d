package kvstore

import "time"

// Hardcoded implementation limits.
//
// maxKeySize and maxValueSize are dictated by the on-disk slot layout
// (§3.3): key_len is a uint8, value_len a uint16. The rest exist to keep
// arithmetic away from overflow boundaries and to bound configurations the
// engine does not test.
const (
	// maxKeySize is the largest key accepted by Put/Get/Del: key_len is a
	// single byte, so a key consumes at most 255 of its 256 possible
	// values (0 is rejected separately — empty keys are not allowed).
	maxKeySize = 255

	// maxValueSize is the largest value accepted by Put: value_len is a
	// uint16.
	maxValueSize = 65535

	// inlineValueSize is the threshold at or under which a value is stored
	// inline in the slot's 8-byte value_data field instead of the value
	// region.
	inlineValueSize = 8

	// maxRegionSize is a 1 TiB ceiling on the size of a single mmap'd
	// region. No growth path (growKeyLocked, growValueLocked,
	// expandIndexLocked) checks it: regions keep doubling without an
	// upper bound.
	maxRegionSize = int64(1) << 40 // 1 TiB

	// maintenanceInitialDelay is how long the maintenance goroutine waits
	// before its first drain of the message bitmask.
	maintenanceInitialDelay = 5 * time.Second
)
