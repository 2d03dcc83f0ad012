// Package stats implements the allocator's atomic counters (spec.md §4.7).
// Every counter is a sync/atomic value so it can be read without the
// cache's exclusive lock — spec.md §5: "statistics counters use atomic
// increments and may be read without the lock (eventually consistent
// snapshot)." The shape is grounded on the teacher's AtomicCollector
// (pkg/stats), trimmed to the nine counters the spec names instead of
// the teacher's open-ended per-operation-type maps.
package stats

import "sync/atomic"

// Collector holds the allocator's request/hit/miss/eviction/coalesce/
// defragmentation counters.
type Collector struct {
	totalRequests   atomic.Uint64
	hits            atomic.Uint64
	misses          atomic.Uint64
	evictions       atomic.Uint64
	adds            atomic.Uint64
	updates         atomic.Uint64
	deletes         atomic.Uint64
	coalesces       atomic.Uint64
	defragmentations atomic.Uint64
}

// New creates a zeroed Collector.
func New() *Collector {
	return &Collector{}
}

func (c *Collector) IncRequests()        { c.totalRequests.Add(1) }
func (c *Collector) IncHits()            { c.hits.Add(1) }
func (c *Collector) IncMisses()          { c.misses.Add(1) }
func (c *Collector) IncEvictions()       { c.evictions.Add(1) }
func (c *Collector) IncAdds()            { c.adds.Add(1) }
func (c *Collector) IncUpdates()         { c.updates.Add(1) }
func (c *Collector) IncDeletes()         { c.deletes.Add(1) }
func (c *Collector) AddCoalesces(n int)  { c.coalesces.Add(uint64(n)) }
func (c *Collector) IncDefragmentations() { c.defragmentations.Add(1) }

// Snapshot is a point-in-time, eventually-consistent read of every
// counter.
type Snapshot struct {
	TotalRequests    uint64
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	Adds             uint64
	Updates          uint64
	Deletes          uint64
	Coalesces        uint64
	Defragmentations uint64
}

// Snapshot reads every counter without taking the cache lock.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:    c.totalRequests.Load(),
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Evictions:        c.evictions.Load(),
		Adds:             c.adds.Load(),
		Updates:          c.updates.Load(),
		Deletes:          c.deletes.Load(),
		Coalesces:        c.coalesces.Load(),
		Defragmentations: c.defragmentations.Load(),
	}
}

// Fragmentation is the snapshot spec.md §4.7 defines: current free-space
// totals and the derived fragmentation ratio.
type Fragmentation struct {
	TotalFree  int
	LargestFree int
	NumBlocks  int
	FragRatio  float64
}

// ComputeFragmentation derives a Fragmentation snapshot from the free
// list's current totals. frag_ratio is defined as 0 when totalFree == 0
// (spec.md §4.7), since "all space accounted for by entries" isn't
// fragmented, it's simply full.
func ComputeFragmentation(totalFree, largestFree, numBlocks int) Fragmentation {
	f := Fragmentation{TotalFree: totalFree, LargestFree: largestFree, NumBlocks: numBlocks}
	if totalFree == 0 {
		f.FragRatio = 0
		return f
	}
	f.FragRatio = 1 - float64(largestFree)/float64(totalFree)
	return f
}
