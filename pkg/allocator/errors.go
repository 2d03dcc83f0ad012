package allocator

import "errors"

var (
	// ErrOutOfSpace is returned when no combination of compaction and
	// eviction can satisfy a request (spec.md §7: only possible when
	// |value| > P*S).
	ErrOutOfSpace = errors.New("allocator: out of space")
	// ErrNotFound is returned when an operation references a key not in
	// the entry table.
	ErrNotFound = errors.New("allocator: key not found")
	// ErrKeyExists is returned by Insert when the key already exists;
	// Update is the explicit modification path (spec.md §4.4, §9 Open
	// Question 2).
	ErrKeyExists = errors.New("allocator: key already exists")
)

// InvariantViolation reports corruption of the free list or entry table
// invariants (spec.md §7): overlapping ranges, a coalesce/split that
// doesn't balance, or an eviction victim the entry table doesn't
// recognize. It is never returned to a caller as an ordinary error — it
// is raised as a panic and must abort the process (spec.md §7: "the
// process MUST abort rather than continue with corrupted state").
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "allocator: invariant violation: " + e.Msg
}

func panicInvariant(msg string) {
	panic(&InvariantViolation{Msg: msg})
}
