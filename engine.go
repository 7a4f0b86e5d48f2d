package kvstore

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/kvstore/internal/metafile"
	"github.com/calvinalkan/kvstore/internal/region"
)

// Engine is an open key-value store: Meta plus the index, key, and value
// regions, plus the reader-writer coordination and background maintenance
// goroutine described in spec §4.5/§5.
type Engine struct {
	opts Options
	meta *metafile.Meta

	idx         atomic.Pointer[index]
	keyRegion   atomic.Pointer[region.Region]
	valueRegion atomic.Pointer[region.Region]

	// readerCount is the seqlock-style gate from spec §5.2: >=0 is the
	// number of active readers, -1 means a storage swap is in progress.
	readerCount atomic.Int32

	// writerMu serializes Put/Del, inline index expansion, and the
	// maintenance goroutine's COMPACT/CLEAN_FILES work (spec §5.5).
	writerMu sync.Mutex

	msgMu   sync.Mutex
	msgCond *sync.Cond
	msg     int

	closed  atomic.Bool
	maintWg sync.WaitGroup
}

const (
	msgExit       = 1 << 0
	msgCompact    = 1 << 1
	msgCleanFiles = 1 << 2
)

// Open builds (or reopens) an engine over opts.Dir: a Meta, the three
// mapped regions, and a running maintenance goroutine. Any mapping failure
// aborts construction and unmaps everything already opened.
func Open(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrMapFailed, opts.Dir, err)
	}

	m, err := metafile.Open(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}

	indexMinSize := headerSize + slotSize // capacity() must be >= 1, per §4.4.7.
	if opts.IndexInitSize > indexMinSize {
		indexMinSize = opts.IndexInitSize
	}

	ir, err := region.Map(m.IndexPath(), indexMinSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	kr, err := region.Map(m.KeyPath(), opts.KeyInitSize)
	if err != nil {
		_ = ir.Close()
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	vr, err := region.Map(m.ValuePath(), opts.ValueInitSize)
	if err != nil {
		_ = ir.Close()
		_ = kr.Close()
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}

	e := &Engine{opts: opts, meta: m}
	e.msgCond = sync.NewCond(&e.msgMu)
	e.idx.Store(newIndex(ir))
	e.keyRegion.Store(kr)
	e.valueRegion.Store(vr)

	e.maintWg.Add(1)
	go e.maintenanceLoop()

	return e, nil
}

// Get acquires a reader slot, performs a lock-free lookup, and releases it.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}
	if len(key) == 0 || len(key) > maxKeySize {
		return nil, false, ErrInvalidInput
	}

	e.acquireReader()
	defer e.releaseReader()

	idx := e.idx.Load()
	kr := e.keyRegion.Load()
	vr := e.valueRegion.Load()

	value, ok := idx.lookup(kr, vr, key)
	return value, ok, nil
}

// Put takes the writer mutex and attempts Index.write, growing the key or
// value region and retrying once on the corresponding out-of-space signal,
// then checks the expand-index and autocompact triggers (spec §4.5.3).
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 || len(key) > maxKeySize {
		return ErrInvalidInput
	}
	if len(value) > maxValueSize {
		return ErrInvalidInput
	}

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	idx := e.idx.Load()
	kr := e.keyRegion.Load()
	vr := e.valueRegion.Load()

	err := idx.write(kr, vr, key, value)
	switch err {
	case errNeedGrowKey:
		if growErr := e.growKeyLocked(); growErr != nil {
			return ErrPutFailed
		}
		kr = e.keyRegion.Load()
		if err = idx.write(kr, vr, key, value); err != nil {
			return ErrPutFailed
		}
	case errNeedGrowValue:
		if growErr := e.growValueLocked(); growErr != nil {
			return ErrPutFailed
		}
		vr = e.valueRegion.Load()
		if err = idx.write(kr, vr, key, value); err != nil {
			return ErrPutFailed
		}
	case nil:
	default:
		return ErrPutFailed
	}

	if float64(idx.keyCount())/float64(idx.capacity()) > e.opts.HashFactor {
		if expandErr := e.expandIndexLocked(); expandErr != nil {
			// Growth can be retried on the next Put; a failed inline
			// expansion is not itself a write failure.
			idx = e.idx.Load()
		}
	}

	updated := e.idx.Load().updatedCount()
	if updated > uint32(e.opts.AutoCompactThreshold) {
		e.msgMu.Lock()
		if e.idx.Load().updatedCount() > uint32(e.opts.AutoCompactThreshold) {
			e.msg |= msgCompact
			e.msgCond.Broadcast()
		}
		e.msgMu.Unlock()
	}

	return nil
}

// Del takes the writer mutex and tombstones key if present.
func (e *Engine) Del(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 || len(key) > maxKeySize {
		return ErrInvalidInput
	}

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	idx := e.idx.Load()
	idx.del(e.keyRegion.Load(), key)
	return nil
}

// Compact posts a COMPACT message to the maintenance goroutine and returns
// without waiting for it to run.
func (e *Engine) Compact() {
	e.postMessage(msgCompact)
}

// Close stops the maintenance goroutine and unmaps all three regions.
// Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.postMessage(msgExit)
	e.maintWg.Wait()

	_ = e.idx.Load().region.Close()
	_ = e.keyRegion.Load().Close()
	_ = e.valueRegion.Load().Close()
	return nil
}

func (e *Engine) postMessage(bit int) {
	e.msgMu.Lock()
	e.msg |= bit
	e.msgMu.Unlock()
	e.msgCond.Broadcast()
}

// acquireReader implements the reader side of spec §5.2: if the counter is
// -1 a swap is in progress, so the reader yields and retries; otherwise it
// CASes its increment in, reloading the observed value on failure (the
// original source's omission of this reload is the livelock risk spec §9
// calls out).
func (e *Engine) acquireReader() {
	for {
		v := e.readerCount.Load()
		if v == -1 {
			runtime.Gosched()
			continue
		}
		if e.readerCount.CompareAndSwap(v, v+1) {
			return
		}
	}
}

func (e *Engine) releaseReader() {
	e.readerCount.Add(-1)
}

// acquireSwap takes the reader counter from 0 to -1, spinning until no
// readers are in flight. Swaps performed while holding it replace region
// pointers and, for index and value rotations, rewrite the small meta file;
// no region is mapped, copied, or unmapped while it is held.
func (e *Engine) acquireSwap() {
	for {
		if e.readerCount.CompareAndSwap(0, -1) {
			return
		}
		runtime.Gosched()
	}
}

func (e *Engine) releaseSwap() {
	e.readerCount.Store(0)
}

// growKeyLocked doubles the key region in place (same path, spec §4.5.3)
// and swaps it in under the reader gate. Caller holds writerMu.
func (e *Engine) growKeyLocked() error {
	cur := e.keyRegion.Load()
	r, err := region.Map(e.meta.KeyPath(), cur.Size()*2)
	if err != nil {
		return err
	}

	e.acquireSwap()
	old := e.keyRegion.Swap(r)
	e.releaseSwap()

	_ = old.Close()
	e.postMessage(msgCleanFiles)
	return nil
}

// growValueLocked doubles the value region in place. Caller holds writerMu.
func (e *Engine) growValueLocked() error {
	cur := e.valueRegion.Load()
	r, err := region.Map(e.meta.ValuePath(), cur.Size()*2)
	if err != nil {
		return err
	}

	e.acquireSwap()
	old := e.valueRegion.Swap(r)
	e.releaseSwap()

	_ = old.Close()
	e.postMessage(msgCleanFiles)
	return nil
}

// expandIndexLocked implements spec §4.5.6. Caller holds writerMu.
func (e *Engine) expandIndexLocked() error {
	cur := e.idx.Load()
	path := metafile.GenIndexPath(e.opts.Dir, time.Now().UnixMilli())

	r, err := region.Map(path, cur.region.Size()*2)
	if err != nil {
		return err
	}
	newIdx := newIndex(r)
	newIdx.copyFrom(e.keyRegion.Load(), cur)

	e.acquireSwap()
	old := e.idx.Swap(newIdx)
	_ = e.meta.UpdateIndexPath(path)
	e.releaseSwap()

	_ = old.region.Close()
	e.postMessage(msgCleanFiles)
	return nil
}
