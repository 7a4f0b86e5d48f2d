package kvstore

import "encoding/binary"

const (
	headerSize = 64
	slotSize   = 1 + 1 + 8 + 2 + 8 // flag + key_len + key_ptr + value_len + value_data = 20

	// Header field offsets. The backup area is placed immediately before
	// backupIndexOff so both fit in the 64-byte prefix regardless of
	// slotSize: offset = headerSize - slotSize - 4.
	offKeyCount     = 0
	offUpdatedCount = 4
	offKeyPos       = 8
	offValuePos     = 16
	// 24..backupSlotOff is reserved.
	backupSlotOff  = headerSize - slotSize - 4
	backupIndexOff = headerSize - 4
)

const (
	flagSet     = 1 << 0
	flagRef     = 1 << 1
	flagEditing = 1 << 2
	flagDeleted = 1 << 3
)

// slotOffset returns the byte offset of slot i within the index region.
func slotOffset(i uint32) int {
	return headerSize + int(i)*slotSize
}

// capacityForSize returns the number of slots a region of the given size
// can hold: (size - headerSize) / slotSize.
func capacityForSize(size int) uint32 {
	if size < headerSize {
		return 0
	}
	return uint32((size - headerSize) / slotSize)
}

func readUint32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func writeUint32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

func readUint64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

func writeUint64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}
