// Package region implements the blob-region primitive: a contiguous byte
// range mapped from a file, treated as a byte arena supporting random reads,
// bounded appends, and intra-process copies. Growth is not performed
// in-place; callers construct a new, larger Region and swap it in.
package region

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Region is a memory-mapped byte range backed by an open file. The mapping
// persists for the Region's lifetime; Close unmaps it.
type Region struct {
	data []byte
}

// Map opens path (creating it if absent), grows it to at least minSize if
// it is currently smaller, and maps it PROT_READ|PROT_WRITE/MAP_SHARED.
// An existing file larger than minSize is never shrunk; the mapping covers
// whatever size results. This mirrors the fixed contract of the primitive
// this package replaces: file creation, truncation, and mmap acquisition
// are assumed infrastructure, not something the caller configures further.
func Map(path string, minSize int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("region: stat %s: %w", path, err)
	}

	size := st.Size()
	if size < int64(minSize) {
		if err := f.Truncate(int64(minSize)); err != nil {
			return nil, fmt.Errorf("region: truncate %s: %w", path, err)
		}
		size = int64(minSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("region: mmap %s: %w", path, err)
	}

	return &Region{data: data}, nil
}

// Size returns the mapped byte range's length.
func (r *Region) Size() int {
	return len(r.data)
}

// Base exposes the raw mapped bytes. Callers that hold a Region across a
// storage swap must stop using a stale Base once the swap completes; the
// engine's reader-counter gate (see package kvstore) is what makes that
// safe in practice.
func (r *Region) Base() []byte {
	return r.data
}

// Get returns a freshly owned copy of the byte range [off, off+ln). It
// never returns a slice aliasing the mapping: callers (in particular
// concurrent readers racing a region swap) must be insulated from the
// mapping's lifetime.
func (r *Region) Get(off uint64, ln int) []byte {
	out := make([]byte, ln)
	copy(out, r.data[off:int(off)+ln])
	return out
}

// ErrOutOfSpace is returned by Put when off+len exceeds the region's size.
var ErrOutOfSpace = fmt.Errorf("region: out of space")

// Put writes src at offset off. It fails with ErrOutOfSpace iff
// off+len(src) > Size(); it never grows the mapping.
func (r *Region) Put(off uint64, src []byte) error {
	if off+uint64(len(src)) > uint64(len(r.data)) {
		return ErrOutOfSpace
	}
	copy(r.data[off:], src)
	return nil
}

// CopyTo performs a raw intra-process copy of ln bytes from this region at
// srcOff into dst at dstOff. It performs no bounds validation; callers
// (compaction) control both ends.
func (r *Region) CopyTo(dst *Region, srcOff, dstOff uint64, ln int) {
	copy(dst.data[dstOff:dstOff+uint64(ln)], r.data[srcOff:srcOff+uint64(ln)])
}

// Sync flushes the mapping to its backing file via msync. Best-effort: the
// engine's durability story does not depend on fsync-level guarantees (see
// spec §5.7), but exposing it lets callers that want a stronger guarantee
// ask for one.
func (r *Region) Sync() error {
	if len(r.data) == 0 {
		return nil
	}
	return unix.Msync(r.data, unix.MS_SYNC)
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
