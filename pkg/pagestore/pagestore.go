// Package pagestore implements the fixed-size, page-granular backing array
// the allocator carves values out of. It has no notion of allocation state:
// it only knows how to move bytes in and out of page-aligned ranges.
package pagestore

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ErrRange is returned when a requested page range falls outside the store.
var ErrRange = errors.New("pagestore: range exceeds store bounds")

// Store is a fixed array of NumPages pages, each PageSize bytes, addressed
// by page index. It is the only component of the cache that touches the
// raw backing buffer.
type Store struct {
	pageSize int
	numPages int
	buf      []byte
}

// New allocates a Store of numPages pages of pageSize bytes each.
func New(pageSize, numPages int) *Store {
	if pageSize <= 0 || numPages <= 0 {
		panic("pagestore: pageSize and numPages must be positive")
	}
	return &Store{
		pageSize: pageSize,
		numPages: numPages,
		buf:      make([]byte, pageSize*numPages),
	}
}

// PageSize returns the fixed byte size of one page.
func (s *Store) PageSize() int { return s.pageSize }

// NumPages returns the total number of pages in the store.
func (s *Store) NumPages() int { return s.numPages }

// PagesFor returns ceil(size/PageSize), the number of pages needed to hold
// size bytes. size == 0 still needs one page: the allocator never stores a
// zero-page entry.
func (s *Store) PagesFor(size int) int {
	if size <= 0 {
		return 1
	}
	return (size + s.pageSize - 1) / s.pageSize
}

func (s *Store) checkRange(start, numPages int) error {
	if start < 0 || numPages < 0 || start+numPages > s.numPages {
		return fmt.Errorf("%w: start=%d numPages=%d store=%d", ErrRange, start, numPages, s.numPages)
	}
	return nil
}

// Write copies data into the page range beginning at start, spanning
// ceil(len(data)/PageSize) pages. It fails with ErrRange if that range
// exceeds the store.
func (s *Store) Write(start int, data []byte) error {
	n := s.PagesFor(len(data))
	if err := s.checkRange(start, n); err != nil {
		return err
	}
	off := start * s.pageSize
	copy(s.buf[off:off+n*s.pageSize], data)
	return nil
}

// Read returns a copy of length bytes beginning at page start.
func (s *Store) Read(start, length int) ([]byte, error) {
	n := s.PagesFor(length)
	if err := s.checkRange(start, n); err != nil {
		return nil, err
	}
	off := start * s.pageSize
	out := make([]byte, length)
	copy(out, s.buf[off:off+length])
	return out, nil
}

// Checksum returns an xxhash64 digest of the first length bytes of the page
// range starting at start. The allocator stores this alongside an entry's
// metadata and recomputes it on Get to catch any corruption of the backing
// buffer (e.g. from a Move bug) before it reaches a client.
func (s *Store) Checksum(start, length int) (uint64, error) {
	n := s.PagesFor(length)
	if err := s.checkRange(start, n); err != nil {
		return 0, err
	}
	off := start * s.pageSize
	return xxhash.Sum64(s.buf[off : off+length]), nil
}

// Move relocates n pages worth of bytes from src to dst. Moves during
// compaction always have dst <= src (spec.md §4.5: entries are swept in
// ascending start_page order and packed leftward), so a single forward
// copy is safe even when the ranges overlap — Go's builtin copy already
// handles overlapping slices correctly regardless of direction, but we
// document the invariant here because callers outside compaction (tests,
// future callers) must not assume overlap safety in the dst > src case
// without re-deriving it.
func (s *Store) Move(src, dst, n int) error {
	if err := s.checkRange(src, n); err != nil {
		return err
	}
	if err := s.checkRange(dst, n); err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	srcOff := src * s.pageSize
	dstOff := dst * s.pageSize
	size := n * s.pageSize
	copy(s.buf[dstOff:dstOff+size], s.buf[srcOff:srcOff+size])
	return nil
}
