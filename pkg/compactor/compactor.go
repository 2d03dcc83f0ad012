// Package compactor implements spec.md §4.5: relocating every live entry
// leftward so the store's free space collapses into at most one trailing
// block. The sequencing mirrors the teacher's compaction coordinator
// (pkg/compaction/coordinator.go) driving an executor step by step, but
// the algorithm itself is the page-sweep spec.md §4.5 describes, not the
// teacher's file-level tiered/leveled SSTable compaction.
package compactor

import (
	"sort"

	"github.com/pagecache/pagecache/pkg/entrytable"
	"github.com/pagecache/pagecache/pkg/freelist"
	"github.com/pagecache/pagecache/pkg/pagestore"
)

// Mover is the subset of pagestore.Store compaction needs.
type Mover interface {
	Move(src, dst, n int) error
}

var _ Mover = (*pagestore.Store)(nil)

// Compact sweeps every entry in table to the lowest possible page range,
// packing them against page 0 with no gaps, then rebuilds free as a
// single trailing block (or none, if the store is full).
//
// Entries are snapshotted and sorted ascending by StartPage before the
// sweep (step 1 of spec.md §4.5); the sweep then always moves an entry's
// bytes to a cursor <= its current start, so forward copying is safe even
// when source and destination ranges overlap — Compact never needs to
// reason about copy direction beyond what pagestore.Store.Move already
// guarantees for dst <= src.
func Compact(store Mover, table *entrytable.Table, free *freelist.FreeList, numPages int) error {
	entries := table.List()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartPage < entries[j].StartPage
	})

	cursor := 0
	for _, e := range entries {
		if e.StartPage != cursor {
			if err := store.Move(e.StartPage, cursor, e.NumPages); err != nil {
				return err
			}
			e.StartPage = cursor
		}
		cursor += e.NumPages
	}

	if cursor < numPages {
		free.Reset(cursor, numPages-cursor)
	} else {
		free.Reset(0, 0)
	}
	return nil
}
