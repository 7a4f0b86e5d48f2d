// Package buf provides the byte-buffer handle shared by the key and value
// blob regions: a reference to a byte range with an ownership flag, a
// length-then-bytewise equality check, and a deterministic multiplicative
// hash.
package buf

// Buffer is a (pointer, length, owned) triple. Ownership is exclusive: an
// owned Buffer holds the only reference to its backing array and releasing
// it (letting it become garbage) releases the bytes.
type Buffer struct {
	data  []byte
	owned bool
}

// Owned wraps data as an owned Buffer. The caller must not retain or mutate
// data afterwards.
func Owned(data []byte) Buffer {
	return Buffer{data: data, owned: true}
}

// Borrowed wraps data as a non-owned Buffer, e.g. a view directly into an
// mmap'd region. The caller remains responsible for data's lifetime.
func Borrowed(data []byte) Buffer {
	return Buffer{data: data, owned: false}
}

// Bytes returns the buffer's bytes.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer's length.
func (b Buffer) Len() int {
	return len(b.data)
}

// Owned reports whether the buffer owns its backing array.
func (b Buffer) Owned() bool {
	return b.owned
}

// Equal compares two buffers for equality: length first, then bytewise.
// Identical backing arrays (pointer equality) short-circuit to true.
func (b Buffer) Equal(other Buffer) bool {
	if len(b.data) != len(other.data) {
		return false
	}
	if len(b.data) == 0 {
		return true
	}
	if &b.data[0] == &other.data[0] {
		return true
	}
	for i := range b.data {
		if b.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// Hash computes h0=0; hi = hi-1*31 + bytei, reduced modulo m. The recurrence
// and the uint32 wraparound arithmetic are deterministic across runs and
// machines: no seed, no finalization step.
func Hash(data []byte, m uint32) uint32 {
	var h uint32
	for _, b := range data {
		h = h*31 + uint32(b)
	}
	return h % m
}
