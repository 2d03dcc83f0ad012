// Package allocator implements spec.md §4.4: the facade that orchestrates
// insert/update/get/delete over the page store, free list, entry table,
// and the active eviction policy. The facade-over-a-locked-core shape is
// grounded on the teacher's pkg/engine/facade.go; the allocation decision
// tree itself (best-fit -> defragment -> evict -> retry) is spec.md §4.4,
// not anything the teacher's LSM engine does.
package allocator

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pagecache/pagecache/pkg/common/log"
	"github.com/pagecache/pagecache/pkg/compactor"
	"github.com/pagecache/pagecache/pkg/config"
	"github.com/pagecache/pagecache/pkg/entrytable"
	"github.com/pagecache/pagecache/pkg/eviction"
	"github.com/pagecache/pagecache/pkg/freelist"
	"github.com/pagecache/pagecache/pkg/pagestore"
	"github.com/pagecache/pagecache/pkg/stats"
	"github.com/pagecache/pagecache/pkg/telemetry"
)

// Allocator is the cache's single owner of all mutable state: the page
// store, free list, entry table, and active eviction policy. Every public
// method takes one exclusive lock around the whole operation (spec.md §5:
// "inside the facade, the cache state is protected by a single exclusive
// lock"). Stats counters are atomic and may be read without it.
type Allocator struct {
	mu sync.Mutex

	store    *pagestore.Store
	free     *freelist.FreeList
	table    *entrytable.Table
	policy   eviction.Policy
	strategy freelist.Strategy

	stats  *stats.Collector
	logger log.Logger
	tel    telemetry.Telemetry

	nextSeq uint64
}

// New constructs an Allocator for the given configuration: one page store
// of cfg.NumPages pages of cfg.PageSize bytes, a free list spanning all of
// it, an empty entry table, and the eviction policy cfg.Policy names. A
// nil tel disables instrumentation (pagecached passes telemetry.NewNoop()
// when telemetry is turned off).
func New(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry) *Allocator {
	if logger == nil {
		logger = log.New()
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &Allocator{
		store:    pagestore.New(cfg.PageSize, cfg.NumPages),
		free:     freelist.New(cfg.NumPages),
		table:    entrytable.New(),
		policy:   eviction.New(cfg.Policy),
		strategy: cfg.Strategy(),
		stats:    stats.New(),
		logger:   logger.WithField("component", "allocator"),
		tel:      tel,
	}
}

// recordOp records one allocator.operations count for op, tagged with
// whether it succeeded, satisfying SPEC_FULL.md §6-new.4's per-operation
// instrument.
func (a *Allocator) recordOp(op string, err error) {
	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.StatusError
	}
	a.tel.RecordCounter(context.Background(), "allocator.operations", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentAllocator),
		attribute.String(telemetry.AttrOperationType, op),
		attribute.String(telemetry.AttrStatus, status))
}

// Insert adds a new key/value pair. It returns ErrKeyExists if key is
// already present (spec.md §9 Open Question 2: insert never silently
// overwrites; Update is the modification path) and ErrOutOfSpace if no
// combination of compaction and eviction can make room.
func (a *Allocator) Insert(key string, value []byte, clientID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.IncRequests()

	if a.table.Get(key) != nil {
		a.recordOp(telemetry.OpTypeInsert, ErrKeyExists)
		return ErrKeyExists
	}

	if _, err := a.allocate(key, value); err != nil {
		a.recordOp(telemetry.OpTypeInsert, err)
		return err
	}
	a.stats.IncAdds()
	a.recordOp(telemetry.OpTypeInsert, nil)
	return nil
}

// Update modifies an existing key's value (spec.md §4.4). If the new
// value fits within the entry's current page range it is overwritten in
// place — an access for LRU/SIEVE/CLOCK purposes, but it does not disturb
// FIFO order. Otherwise the old pages are freed (with coalescing) and a
// fresh range is allocated, which assigns a new FIFO sequence number.
func (a *Allocator) Update(key string, value []byte, clientID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.IncRequests()

	e := a.table.Get(key)
	if e == nil {
		a.recordOp(telemetry.OpTypeUpdate, ErrNotFound)
		return ErrNotFound
	}

	needed := a.store.PagesFor(len(value))
	if needed <= e.NumPages {
		if err := a.store.Write(e.StartPage, value); err != nil {
			panicInvariant("update in-place write failed: " + err.Error())
		}
		checksum, err := a.store.Checksum(e.StartPage, len(value))
		if err != nil {
			panicInvariant("update in-place checksum failed: " + err.Error())
		}
		e.DataSize = len(value)
		e.Checksum = checksum
		a.policy.OnAccess(e)
		a.stats.IncUpdates()
		a.recordOp(telemetry.OpTypeUpdate, nil)
		return nil
	}

	a.freeEntry(e)
	if _, err := a.allocate(key, value); err != nil {
		a.recordOp(telemetry.OpTypeUpdate, err)
		return err
	}
	a.stats.IncUpdates()
	a.recordOp(telemetry.OpTypeUpdate, nil)
	return nil
}

// Get returns the stored bytes for key (its first DataSize bytes) and
// records an access for eviction purposes.
func (a *Allocator) Get(key string, clientID string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.IncRequests()

	e := a.table.Get(key)
	if e == nil {
		a.stats.IncMisses()
		a.recordOp(telemetry.OpTypeGet, ErrNotFound)
		return nil, ErrNotFound
	}

	data, err := a.store.Read(e.StartPage, e.DataSize)
	if err != nil {
		panicInvariant("get read failed: " + err.Error())
	}
	checksum, err := a.store.Checksum(e.StartPage, e.DataSize)
	if err != nil {
		panicInvariant("get checksum failed: " + err.Error())
	}
	if checksum != e.Checksum {
		panicInvariant("checksum mismatch for key " + key)
	}

	a.policy.OnAccess(e)
	a.stats.IncHits()
	a.recordOp(telemetry.OpTypeGet, nil)
	return data, nil
}

// Delete frees key's pages (with coalescing) and removes its policy
// state.
func (a *Allocator) Delete(key string, clientID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.IncRequests()

	e := a.table.Get(key)
	if e == nil {
		a.stats.IncMisses()
		a.recordOp(telemetry.OpTypeDelete, ErrNotFound)
		return ErrNotFound
	}

	a.freeEntry(e)
	a.stats.IncDeletes()
	a.recordOp(telemetry.OpTypeDelete, nil)
	return nil
}

// Fragmentation returns a point-in-time fragmentation snapshot (spec.md
// §4.7). Unlike Stats, this needs the lock: the free list isn't atomic.
// The ratio is also recorded as a histogram, giving SPEC_FULL.md §6-new.4's
// fragmentation instrument a value every time a caller asks for FRAG.
func (a *Allocator) Fragmentation() stats.Fragmentation {
	a.mu.Lock()
	defer a.mu.Unlock()
	frag := stats.ComputeFragmentation(a.free.TotalFree(), a.free.LargestFree(), a.free.NumBlocks())
	a.tel.RecordHistogram(context.Background(), "allocator.fragmentation_ratio", frag.FragRatio,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentAllocator))
	return frag
}

// Stats returns an eventually-consistent snapshot of the request/hit/
// miss/eviction/coalesce/defragmentation counters, read without the lock.
func (a *Allocator) Stats() stats.Snapshot {
	return a.stats.Snapshot()
}

// allocate runs spec.md §4.4's decision tree for n = ceil(len(value)/S)
// pages: best-fit (or first-fit, per configured strategy) lookup, then
// compaction if total free space would suffice, then repeated eviction
// (falling back to compaction again once eviction frees enough total
// space), then failure. It must be called with a.mu held.
func (a *Allocator) allocate(key string, value []byte) (*entrytable.Entry, error) {
	ctx, span := a.tel.StartSpan(context.Background(), "allocator.allocate",
		attribute.String(telemetry.AttrKey, key))
	defer span.End()

	n := a.store.PagesFor(len(value))
	if n > a.store.NumPages() {
		return nil, ErrOutOfSpace
	}

	block, ok := a.free.Find(a.strategy, n)

	if !ok && a.free.TotalFree() >= n {
		a.compact(ctx)
		block, ok = a.free.Find(a.strategy, n)
	}

	for !ok {
		if a.table.Len() == 0 {
			return nil, ErrOutOfSpace
		}

		victimKey, has := a.policy.PickVictim()
		if !has {
			panicInvariant("eviction policy has no victim but entry table is non-empty")
		}
		victim := a.table.Get(victimKey)
		if victim == nil {
			panicInvariant("eviction victim " + victimKey + " not present in entry table")
		}
		a.freeEntry(victim)
		a.stats.IncEvictions()
		a.tel.RecordCounter(ctx, "allocator.evictions", 1,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentEviction),
			attribute.String(telemetry.AttrPolicy, a.policy.Name()),
			attribute.String(telemetry.AttrKey, victimKey))

		block, ok = a.free.Find(a.strategy, n)
		if !ok && a.free.TotalFree() >= n {
			a.compact(ctx)
			block, ok = a.free.Find(a.strategy, n)
		}
	}

	start := a.free.Take(block, n)
	if err := a.store.Write(start, value); err != nil {
		panicInvariant("allocate write failed: " + err.Error())
	}
	checksum, err := a.store.Checksum(start, len(value))
	if err != nil {
		panicInvariant("allocate checksum failed: " + err.Error())
	}

	a.nextSeq++
	entry := &entrytable.Entry{
		Key:       key,
		StartPage: start,
		NumPages:  n,
		DataSize:  len(value),
		Checksum:  checksum,
		Policy:    entrytable.PolicyState{Seq: a.nextSeq, ClockIndex: -1},
	}
	a.table.Put(entry)
	a.policy.OnInsert(entry)

	return entry, nil
}

// compact runs the compactor and records a defragmentation. Must be
// called with a.mu held.
func (a *Allocator) compact(ctx context.Context) {
	if err := compactor.Compact(a.store, a.table, a.free, a.store.NumPages()); err != nil {
		panicInvariant("compaction failed: " + err.Error())
	}
	a.stats.IncDefragmentations()
	a.tel.RecordCounter(ctx, "allocator.defragmentations", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompactor))
}

// freeEntry releases e's pages and unregisters it from the policy and
// entry table. It does not touch the public stats counters (adds/
// updates/deletes/evictions) — callers record whichever of those applies
// to the operation they're performing. Must be called with a.mu held.
func (a *Allocator) freeEntry(e *entrytable.Entry) {
	a.policy.OnRemove(e)
	a.table.Delete(e.Key)
	merges := a.free.Release(e.StartPage, e.NumPages)
	if merges > 0 {
		a.stats.AddCoalesces(merges)
	}
}
