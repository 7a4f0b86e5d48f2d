package kvstore

import (
	"bytes"
	"encoding/binary"
	"runtime"

	"github.com/calvinalkan/kvstore/internal/buf"
	"github.com/calvinalkan/kvstore/internal/region"
	"github.com/calvinalkan/kvstore/internal/writeinfo"
)

// index is the hash table: header, capacity() slots, the single-slot
// crash-safe write protocol, compaction, and rehash-copy. It never owns the
// key/value regions it is handed; the engine does.
type index struct {
	region    *region.Region
	writeInfo writeinfo.Word
}

// newIndex wraps r as an index, performing the backup-slot recovery pass
// described in spec §4.4.1 / §9: if backup_index names a slot within
// capacity whose EDITING bit is set, the slot is restored from the backup
// area and EDITING is cleared. No other verification is performed.
func newIndex(r *region.Region) *index {
	ix := &index{region: r}

	base := r.Base()
	cap := capacityForSize(len(base))
	backupIdx := readUint32(base, backupIndexOff)

	if backupIdx < cap {
		off := slotOffset(backupIdx)
		if base[off]&flagEditing != 0 {
			copy(base[off:off+slotSize], base[backupSlotOff:backupSlotOff+slotSize])
		}
	}

	return ix
}

func (ix *index) capacity() uint32 { return capacityForSize(ix.region.Size()) }

func (ix *index) keyCount() uint32     { return readUint32(ix.region.Base(), offKeyCount) }
func (ix *index) updatedCount() uint32 { return readUint32(ix.region.Base(), offUpdatedCount) }
func (ix *index) keyPos() uint64       { return readUint64(ix.region.Base(), offKeyPos) }
func (ix *index) valuePos() uint64     { return readUint64(ix.region.Base(), offValuePos) }

func (ix *index) setKeyCount(v uint32)     { writeUint32(ix.region.Base(), offKeyCount, v) }
func (ix *index) setUpdatedCount(v uint32) { writeUint32(ix.region.Base(), offUpdatedCount, v) }
func (ix *index) setKeyPos(v uint64)       { writeUint64(ix.region.Base(), offKeyPos, v) }
func (ix *index) setValuePos(v uint64)     { writeUint64(ix.region.Base(), offValuePos, v) }

// lookup implements the consistent-read probe described in spec §4.4.2.
func (ix *index) lookup(keyRegion, valueRegion *region.Region, key []byte) ([]byte, bool) {
	base := ix.region.Base()
	cap := ix.capacity()
	if cap == 0 {
		return nil, false
	}
	idx := buf.Hash(key, cap)

	for {
		off := slotOffset(idx)
		flag := base[off]
		if flag&flagSet == 0 {
			return nil, false
		}

		keyLen := base[off+1]
		keyPtr := readUint64(base, off+2)
		keyBytes := keyRegion.Get(keyPtr, int(keyLen))

		if bytes.Equal(keyBytes, key) {
			for {
				w := ix.writeInfo.Load()
				if w.Writing && w.Slot == idx {
					runtime.Gosched()
					continue
				}

				flag = base[off]
				if flag&flagDeleted != 0 {
					return nil, false
				}

				valueLen := binary.LittleEndian.Uint16(base[off+10 : off+12])

				var value []byte
				torn := false
				if flag&flagRef != 0 {
					valuePtr := readUint64(base, off+12)
					if valuePtr+uint64(valueLen) <= uint64(valueRegion.Size()) {
						value = valueRegion.Get(valuePtr, int(valueLen))
					} else {
						torn = true
					}
				} else if int(valueLen) <= inlineValueSize {
					value = make([]byte, valueLen)
					copy(value, base[off+12:off+12+int(valueLen)])
				} else {
					torn = true
				}
				if torn {
					// flag, value_len and value_data came from the middle of
					// an update: retry instead of reading out of bounds.
					runtime.Gosched()
					continue
				}

				w2 := ix.writeInfo.Load()
				if w2.Version == w.Version {
					return value, true
				}
				if w2.Version-w.Version == 1 {
					if w2.Slot == idx {
						if w2.Writing {
							runtime.Gosched()
						}
						continue
					}
					return value, true
				}
				// more than one version passed while we read: restart.
				continue
			}
		}

		idx = (idx + 1) % cap
	}
}

// write implements the insert/update path described in spec §4.4.3,
// including the crash-safe single-slot update protocol (header backup,
// EDITING bit, WriteInfo publication) for updates of an already-live slot.
// Brand-new inserts skip the backup dance: a crash mid-insert simply leaves
// SET clear, which every reader already treats as "absent".
//
// Returns errNeedGrowKey or errNeedGrowValue when the respective blob
// region is out of space; the engine grows that region and retries once.
func (ix *index) write(keyRegion, valueRegion *region.Region, key, value []byte) error {
	base := ix.region.Base()
	cap := ix.capacity()
	idx := buf.Hash(key, cap)
	isUpdate := false
	isInsert := false
	var insertKeyPos uint64

	for {
		off := slotOffset(idx)
		flag := base[off]

		if flag&flagSet != 0 {
			keyLen := base[off+1]
			keyPtr := readUint64(base, off+2)
			keyBytes := keyRegion.Get(keyPtr, int(keyLen))
			if !bytes.Equal(keyBytes, key) {
				idx = (idx + 1) % cap
				continue
			}

			// Update path: stage the backup before mutating the live slot.
			writeUint32(base, backupIndexOff, idx)
			copy(base[backupSlotOff:backupSlotOff+slotSize], base[off:off+slotSize])
			flag |= flagEditing
			base[off] = flag
			isUpdate = true
		} else {
			// Insert path: write the key bytes, but defer key_count/key_pos
			// until the whole write (including the value) has succeeded -
			// a NeedGrowValue failure below must not leave key_count
			// counting a slot that never got SET (spec §3.6).
			pos := ix.keyPos()
			if err := keyRegion.Put(pos, key); err != nil {
				return errNeedGrowKey
			}
			base[off+1] = uint8(len(key))
			writeUint64(base, off+2, pos)
			isInsert = true
			insertKeyPos = pos
		}

		last := ix.writeInfo.Load()
		ix.writeInfo.Store(writeinfo.Snapshot{Writing: true, Version: last.Version + 1, Slot: idx})

		binary.LittleEndian.PutUint16(base[off+10:off+12], uint16(len(value)))

		if len(value) <= inlineValueSize {
			var vd [8]byte
			copy(vd[:], value)
			copy(base[off+12:off+20], vd[:])
		} else {
			pos := ix.valuePos()
			if err := valueRegion.Put(pos, value); err != nil {
				if isUpdate {
					// value_len was already overwritten above: put the
					// slot's committed bytes back from the backup area.
					copy(base[off:off+slotSize], base[backupSlotOff:backupSlotOff+slotSize])
				}
				flag = base[off]
				flag &^= flagEditing
				base[off] = flag
				ix.writeInfo.Store(writeinfo.Snapshot{Writing: false, Version: last.Version + 1, Slot: idx})
				return errNeedGrowValue
			}
			writeUint64(base, off+12, pos)
			ix.setValuePos(pos + uint64(len(value)))
		}

		if isInsert {
			ix.setKeyCount(ix.keyCount() + 1)
			ix.setKeyPos(insertKeyPos + uint64(len(key)))
		}
		if isUpdate {
			ix.setUpdatedCount(ix.updatedCount() + 1)
		}

		flag = base[off]
		flag |= flagSet
		flag &^= flagDeleted
		if len(value) > inlineValueSize {
			flag |= flagRef
		} else {
			flag &^= flagRef
		}
		flag &^= flagEditing
		base[off] = flag

		ix.writeInfo.Store(writeinfo.Snapshot{Writing: false, Version: last.Version + 1, Slot: idx})
		return nil
	}
}

// del implements spec §4.4.4. Unlike the original source (whose del loop
// never advances or terminates on an empty slot, spinning forever on a key
// that was never inserted), probing stops as soon as it reaches an empty
// slot: the key is absent and there is nothing to do.
func (ix *index) del(keyRegion *region.Region, key []byte) {
	base := ix.region.Base()
	cap := ix.capacity()
	if cap == 0 {
		return
	}
	idx := buf.Hash(key, cap)

	for {
		off := slotOffset(idx)
		flag := base[off]
		if flag&flagSet == 0 {
			return
		}

		keyLen := base[off+1]
		keyPtr := readUint64(base, off+2)
		keyBytes := keyRegion.Get(keyPtr, int(keyLen))
		if bytes.Equal(keyBytes, key) {
			if flag&flagDeleted == 0 {
				base[off] = flag | flagDeleted
			}
			return
		}

		idx = (idx + 1) % cap
	}
}

// copyFrom implements the rehash-copy in spec §4.4.5. dst (ix) must have a
// free slot for every live src slot; the engine passes a doubled index when
// expanding and a same-sized one when compacting. The destination size is
// not checked.
func (ix *index) copyFrom(keyRegion *region.Region, src *index) {
	ix.setUpdatedCount(0)
	ix.setKeyPos(src.keyPos())
	ix.setValuePos(src.valuePos())

	srcBase := src.region.Base()
	dstBase := ix.region.Base()
	srcCap := src.capacity()
	dstCap := ix.capacity()

	var keyCount uint32
	for i := uint32(0); i < srcCap; i++ {
		off := slotOffset(i)
		flag := srcBase[off]
		if flag&flagSet == 0 || flag&flagDeleted != 0 {
			continue
		}

		keyLen := srcBase[off+1]
		keyPtr := readUint64(srcBase, off+2)
		keyBytes := keyRegion.Get(keyPtr, int(keyLen))
		targetIdx := buf.Hash(keyBytes, dstCap)

		for {
			targetOff := slotOffset(targetIdx)
			if dstBase[targetOff]&flagSet != 0 {
				targetIdx = (targetIdx + 1) % dstCap
				continue
			}
			copy(dstBase[targetOff:targetOff+slotSize], srcBase[off:off+slotSize])
			keyCount++
			break
		}
	}

	ix.setKeyCount(keyCount)
}

// compact implements spec §4.4.6: packs only referenced value payloads from
// fromValue into toValue, rewriting each live REF slot's offset in place.
// Inline values and the key region are untouched.
func (ix *index) compact(fromValue, toValue *region.Region) {
	base := ix.region.Base()
	cap := ix.capacity()

	var pos uint64
	for i := uint32(0); i < cap; i++ {
		off := slotOffset(i)
		flag := base[off]
		if flag&flagSet == 0 || flag&flagDeleted != 0 || flag&flagRef == 0 {
			continue
		}

		valueLen := binary.LittleEndian.Uint16(base[off+10 : off+12])
		valuePos := readUint64(base, off+12)

		fromValue.CopyTo(toValue, valuePos, pos, int(valueLen))
		writeUint64(base, off+12, pos)
		pos += uint64(valueLen)
	}

	ix.setValuePos(pos)
}
