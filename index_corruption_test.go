package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/kvstore/internal/region"
)

// Test_NewIndex_Restores_Backup_Slot_After_Crash_Mid_Update covers P7 /
// scenario 6: an index file whose only damage is a single slot with
// EDITING=1 and a valid backup_index/backup-slot is restored to its
// pre-update bytes on open, with EDITING cleared.
func Test_NewIndex_Restores_Backup_Slot_After_Crash_Mid_Update(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	r, err := region.Map(path, headerSize+4*slotSize)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}

	base := r.Base()
	const victim = uint32(1)
	off := slotOffset(victim)

	// Stage a committed, live slot.
	preMutation := []byte{flagSet, 3, 0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 'h', 'e', 'l', 'l', 'o', 0, 0, 0}
	copy(base[off:off+slotSize], preMutation)

	// Stage the backup area as if a write had started (but never finished):
	// backup holds the pre-mutation bytes, backup_index names the slot,
	// and the live slot has EDITING set plus some in-flight garbage.
	copy(base[backupSlotOff:backupSlotOff+slotSize], preMutation)
	writeUint32(base, backupIndexOff, victim)

	corrupted := make([]byte, slotSize)
	copy(corrupted, preMutation)
	corrupted[0] |= flagEditing
	corrupted[10] = 0xFF // torn value_len, mid-write garbage
	copy(base[off:off+slotSize], corrupted)

	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopen: recovery must restore the live slot from the backup area.
	r2, err := region.Map(path, headerSize+4*slotSize)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r2.Close()

	ix := newIndex(r2)
	restored := ix.region.Base()[off : off+slotSize]
	if !bytes.Equal(restored, preMutation) {
		t.Fatalf("restored slot = %v, want %v", restored, preMutation)
	}
	if restored[0]&flagEditing != 0 {
		t.Fatal("expected EDITING to be cleared after recovery")
	}
}

func Test_NewIndex_Skips_Recovery_When_Backup_Index_Out_Of_Range(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	r, err := region.Map(path, headerSize+4*slotSize)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}

	base := r.Base()
	writeUint32(base, backupIndexOff, 999) // out of range: capacity is 4

	off := slotOffset(2)
	live := []byte{flagSet, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 'x', 0, 0, 0, 0, 0, 0, 0}
	copy(base[off:off+slotSize], live)

	ix := newIndex(r)
	defer r.Close()

	if !bytes.Equal(ix.region.Base()[off:off+slotSize], live) {
		t.Fatal("unrelated slot must be left untouched when backup_index is out of range")
	}
}
