// Package eviction implements the four interchangeable victim selectors
// spec.md §4.6 describes: LRU, FIFO, SIEVE, and CLOCK. Each is driven by
// the allocator calling OnInsert/OnAccess/OnRemove as entries come and go,
// and PickVictim when an allocation needs to free space.
//
// Every key in the entry table must be present in exactly one Policy
// structure and vice versa (spec.md §4.6's "policy mirror" invariant); the
// allocator is responsible for calling the right hook on every entry
// table mutation so that invariant holds.
package eviction

import "github.com/pagecache/pagecache/pkg/entrytable"

// Policy is the capability interface spec.md §4.6 describes: a tagged
// variant would work too, but a capability interface lets each policy
// carry its own internal structure (a list, a queue, a circular vector)
// without the allocator needing to know which.
type Policy interface {
	// OnInsert registers a newly-inserted entry with the policy.
	OnInsert(e *entrytable.Entry)
	// OnAccess records a read/write touch of an already-registered entry.
	OnAccess(e *entrytable.Entry)
	// OnRemove unregisters an entry (explicit delete, eviction, or
	// overwrite-by-update).
	OnRemove(e *entrytable.Entry)
	// PickVictim returns the key the policy would evict next, or
	// ("", false) if the policy holds no entries.
	PickVictim() (string, bool)
	// Name identifies the policy for Config/stats/logging.
	Name() string
}

// Kind names the four selectable policies (Config.Policy).
type Kind string

const (
	LRU   Kind = "lru"
	FIFO  Kind = "fifo"
	SIEVE Kind = "sieve"
	CLOCK Kind = "clock"
)

// New constructs the Policy implementation named by kind.
func New(kind Kind) Policy {
	switch kind {
	case LRU:
		return NewLRU()
	case FIFO:
		return NewFIFO()
	case SIEVE:
		return NewSieve()
	case CLOCK:
		return NewClock()
	default:
		panic("eviction: unknown policy kind " + string(kind))
	}
}
