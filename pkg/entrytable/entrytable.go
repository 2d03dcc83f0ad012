// Package entrytable maps cache keys to their page ranges and per-policy
// eviction state. It has no ordering invariants of its own (spec.md §4.3);
// compaction re-sorts entries by start_page on demand when it needs them in
// that order.
package entrytable

// PolicyState bundles the per-entry state every eviction policy in
// pkg/eviction needs (spec.md §3 lists them together under "Entry" rather
// than splitting them across four parallel structures, so an entry's
// policy state is a single small value covering their union).
type PolicyState struct {
	// Seq is the FIFO insertion sequence number. A relocating Update
	// assigns a new Seq; an in-place Update does not (spec.md §4.4).
	Seq uint64
	// Visited is SIEVE's visited bit.
	Visited bool
	// Referenced is CLOCK's reference bit.
	Referenced bool
	// ClockIndex is the entry's slot in the CLOCK policy's circular
	// vector, or -1 if the active policy isn't CLOCK.
	ClockIndex int
	// handle is an opaque pointer the active policy attaches to the
	// entry (e.g. an *list.Element for LRU/SIEVE); only that policy
	// interprets it.
	handle interface{}
}

// Handle returns the opaque per-policy handle attached to this state.
func (p *PolicyState) Handle() interface{} { return p.handle }

// SetHandle attaches an opaque per-policy handle to this state.
func (p *PolicyState) SetHandle(h interface{}) { p.handle = h }

// Entry is one stored value: its page range, logical size, and eviction
// bookkeeping (spec.md §3).
type Entry struct {
	Key       string
	StartPage int
	NumPages  int
	DataSize  int
	Checksum  uint64

	Policy PolicyState
}

// Table is the key -> Entry map. It owns the entries; callers mutate
// returned *Entry values in place (Go map values of struct type aren't
// addressable once stored, so Table hands out pointers backed by a
// separate map rather than a map[string]Entry).
type Table struct {
	entries map[string]*Entry
}

// New creates an empty entry table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Get returns the entry for key, or nil if absent.
func (t *Table) Get(key string) *Entry {
	return t.entries[key]
}

// Put inserts or replaces the entry for e.Key.
func (t *Table) Put(e *Entry) {
	t.entries[e.Key] = e
}

// Delete removes key's entry, if any.
func (t *Table) Delete(key string) {
	delete(t.entries, key)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// List returns every entry, in unspecified order (spec.md §4.3).
func (t *Table) List() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}
