package kvstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/kvstore/internal/metafile"
	"github.com/calvinalkan/kvstore/internal/region"
)

// maintenanceLoop implements spec §4.5.7: it waits on the {EXIT, COMPACT,
// CLEAN_FILES} bitmask, sleeping maintenanceInitialDelay before its first
// drain, same as the source it is grounded on.
func (e *Engine) maintenanceLoop() {
	defer e.maintWg.Done()

	time.Sleep(maintenanceInitialDelay)

	for {
		e.msgMu.Lock()
		for e.msg == 0 {
			e.msgCond.Wait()
		}
		local := e.msg
		e.msgMu.Unlock()

		if local&msgExit != 0 {
			return
		}

		if local&msgCompact != 0 {
			if e.doCompact() {
				local |= msgCleanFiles
			}
		}

		if local&msgCleanFiles != 0 {
			e.cleanFiles()
		}

		e.msgMu.Lock()
		e.msg &^= local
		e.msgMu.Unlock()
	}
}

// doCompact builds a fresh same-sized index and value region, copies live
// entries and referenced payloads into them, and swaps both in under the
// writer mutex and the reader gate (spec §4.5.7). Map failures are
// swallowed: COMPACT becomes a no-op for this tick (spec §7).
func (e *Engine) doCompact() bool {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	cur := e.idx.Load()
	ts := time.Now().UnixMilli()
	indexPath := metafile.GenIndexPath(e.opts.Dir, ts)
	valuePath := metafile.GenValuePath(e.opts.Dir, ts)

	ir, err := region.Map(indexPath, cur.region.Size())
	if err != nil {
		return false
	}
	newIdx := newIndex(ir)
	newIdx.copyFrom(e.keyRegion.Load(), cur)

	curValue := e.valueRegion.Load()
	vr, err := region.Map(valuePath, curValue.Size())
	if err != nil {
		_ = ir.Close()
		return false
	}
	newIdx.compact(curValue, vr)

	e.acquireSwap()
	oldIdx := e.idx.Swap(newIdx)
	oldValue := e.valueRegion.Swap(vr)
	_ = e.meta.UpdateAll(indexPath, e.meta.KeyPath(), valuePath)
	e.releaseSwap()

	_ = oldIdx.region.Close()
	_ = oldValue.Close()
	return true
}

// cleanFiles snapshots the directory under the writer mutex, then unlinks
// (after releasing the lock) every entry that isn't the current meta,
// index, key, or value path (spec §4.5.7).
func (e *Engine) cleanFiles() {
	e.writerMu.Lock()
	dir := e.opts.Dir
	keep := map[string]bool{
		e.meta.MetaPath():  true,
		e.meta.IndexPath(): true,
		e.meta.KeyPath():   true,
		e.meta.ValuePath(): true,
	}
	entries, err := os.ReadDir(dir)
	e.writerMu.Unlock()

	if err != nil {
		return
	}

	for _, ent := range entries {
		p := filepath.Join(dir, ent.Name())
		if !keep[p] {
			_ = os.Remove(p)
		}
	}
}
