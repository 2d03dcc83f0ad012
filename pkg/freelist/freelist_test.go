package freelist

import "testing"

func TestNewSingleBlockSpansWholeStore(t *testing.T) {
	fl := New(100)
	blocks := fl.Blocks()
	if len(blocks) != 1 || blocks[0].Start != 0 || blocks[0].Len != 100 {
		t.Fatalf("expected a single (0,100) block, got %+v", blocks)
	}
	if fl.TotalFree() != 100 || fl.LargestFree() != 100 || fl.NumBlocks() != 1 {
		t.Fatalf("expected totals matching a single 100-page block, got free=%d largest=%d blocks=%d",
			fl.TotalFree(), fl.LargestFree(), fl.NumBlocks())
	}
}

func TestBestFitPrefersSmallestSufficientBlock(t *testing.T) {
	fl := New(100)
	// Carve [0,100) into free blocks of (0,30), (40,10), (60,40) by
	// releasing disjoint runs after resetting to nothing.
	fl.Reset(0, 0)
	fl.Release(0, 30)
	fl.Release(40, 10)
	fl.Release(60, 40)

	block, ok := fl.BestFit(10)
	if !ok || block.Start != 40 || block.Len != 10 {
		t.Fatalf("expected the exact (40,10) block, got %+v ok=%v", block, ok)
	}

	block, ok = fl.BestFit(20)
	if !ok || block.Start != 0 || block.Len != 30 {
		t.Fatalf("expected (0,30) as the smallest block >= 20, got %+v ok=%v", block, ok)
	}

	if _, ok := fl.BestFit(41); ok {
		t.Fatalf("expected no block >= 41 to be found")
	}
}

func TestFirstFitPrefersLowestStartPage(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(0, 30)
	fl.Release(40, 50)

	block, ok := fl.FirstFit(10)
	if !ok || block.Start != 0 {
		t.Fatalf("expected the first block at start=0, got %+v ok=%v", block, ok)
	}

	block, ok = fl.FirstFit(35)
	if !ok || block.Start != 40 {
		t.Fatalf("expected to skip (0,30) and land on (40,50), got %+v ok=%v", block, ok)
	}
}

func TestFindDispatchesByStrategy(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(0, 30)
	fl.Release(40, 50)

	if b, ok := fl.Find(BestFit, 10); !ok || b.Start != 0 || b.Len != 30 {
		t.Fatalf("BestFit via Find: expected (0,30), got %+v ok=%v", b, ok)
	}
	if b, ok := fl.Find(FirstFit, 10); !ok || b.Start != 0 {
		t.Fatalf("FirstFit via Find: expected start=0, got %+v ok=%v", b, ok)
	}
}

func TestTakeFullyConsumesBlock(t *testing.T) {
	fl := New(100)
	block, ok := fl.BestFit(100)
	if !ok {
		t.Fatal("expected to find the initial block")
	}
	start := fl.Take(block, 100)
	if start != 0 {
		t.Fatalf("expected start 0, got %d", start)
	}
	if fl.NumBlocks() != 0 || fl.TotalFree() != 0 {
		t.Fatalf("expected the free list to be empty after consuming its only block, got blocks=%d free=%d",
			fl.NumBlocks(), fl.TotalFree())
	}
}

func TestTakePartiallyConsumesBlock(t *testing.T) {
	fl := New(100)
	block, _ := fl.BestFit(30)
	start := fl.Take(block, 30)
	if start != 0 {
		t.Fatalf("expected start 0, got %d", start)
	}
	if fl.TotalFree() != 70 || fl.NumBlocks() != 1 {
		t.Fatalf("expected 70 pages left in one block, got free=%d blocks=%d", fl.TotalFree(), fl.NumBlocks())
	}
	remaining := fl.Blocks()
	if remaining[0].Start != 30 || remaining[0].Len != 70 {
		t.Fatalf("expected remaining block (30,70), got %+v", remaining[0])
	}
}

// TestTakeUndersizedBlockPanics exercises spec.md §7's mandatory abort
// path: calling Take with n larger than the block actually holds is
// undefined behavior that must panic rather than silently corrupt state.
func TestTakeUndersizedBlockPanics(t *testing.T) {
	fl := New(100)
	block, ok := fl.BestFit(10)
	if !ok {
		t.Fatal("expected to find a block")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Take to panic on an undersized block")
		}
	}()
	fl.Take(block, 1000)
}

func TestReleaseCoalescesBothSides(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(0, 10)
	fl.Release(20, 10)
	fl.Release(40, 10) // not adjacent to (20,10): leaves a gap at [30,40)

	merges := fl.Release(10, 10) // fills the gap between (0,10) and (20,10)
	if merges != 2 {
		t.Fatalf("expected a release that merges both neighbors to report 2, got %d", merges)
	}
	if fl.NumBlocks() != 2 {
		t.Fatalf("expected the merged (0,30) block plus the untouched (40,10), got %d blocks", fl.NumBlocks())
	}
	blocks := fl.Blocks()
	if blocks[0].Start != 0 || blocks[0].Len != 30 {
		t.Fatalf("expected (0,30) after coalescing, got %+v", blocks[0])
	}
	if blocks[1].Start != 40 || blocks[1].Len != 10 {
		t.Fatalf("expected the untouched (40,10) block, got %+v", blocks[1])
	}
	if fl.Coalesces() != 2 {
		t.Fatalf("expected the lifetime coalesce counter to read 2, got %d", fl.Coalesces())
	}
}

func TestReleaseNoCoalesceWhenIsolated(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(0, 10)

	merges := fl.Release(50, 10)
	if merges != 0 {
		t.Fatalf("expected an isolated release to report 0 merges, got %d", merges)
	}
	if fl.NumBlocks() != 2 {
		t.Fatalf("expected two disjoint blocks, got %d", fl.NumBlocks())
	}
}

// TestReleaseOverlapPanics exercises spec.md §7's other mandatory abort
// path: releasing a range that overlaps an already-free block can only
// mean a double free or a release of still-allocated pages.
func TestReleaseOverlapPanics(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(20, 10) // free block [20,30)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Release to panic on an overlapping range")
		}
	}()
	fl.Release(25, 10) // overlaps [20,30)
}

func TestReleaseRejectsNonPositiveLength(t *testing.T) {
	fl := New(100)
	defer func() {
		if recover() == nil {
			t.Fatal("expected Release to panic on n <= 0")
		}
	}()
	fl.Release(0, 0)
}

func TestResetInstallsSingleBlock(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	fl.Release(10, 10)
	fl.Release(50, 10)

	fl.Reset(5, 95)
	blocks := fl.Blocks()
	if len(blocks) != 1 || blocks[0].Start != 5 || blocks[0].Len != 95 {
		t.Fatalf("expected a single (5,95) block after Reset, got %+v", blocks)
	}
}

func TestResetToEmptyLeavesNoBlocks(t *testing.T) {
	fl := New(100)
	fl.Reset(0, 0)
	if fl.NumBlocks() != 0 || fl.TotalFree() != 0 || fl.LargestFree() != 0 {
		t.Fatalf("expected an empty free list after Reset(0,0), got blocks=%d free=%d largest=%d",
			fl.NumBlocks(), fl.TotalFree(), fl.LargestFree())
	}
}

func TestArenaSlotsAreRecycledAfterTake(t *testing.T) {
	// Repeated take/release cycles should not grow the arena unboundedly;
	// this doesn't inspect the arena directly (unexported), just that
	// behavior after many cycles matches a single (0,100) block.
	fl := New(100)
	for i := 0; i < 50; i++ {
		block, ok := fl.BestFit(100)
		if !ok {
			t.Fatalf("iteration %d: expected to find the full block", i)
		}
		start := fl.Take(block, 100)
		fl.Release(start, 100)
	}
	if fl.NumBlocks() != 1 || fl.TotalFree() != 100 {
		t.Fatalf("expected to end with a single 100-page block, got blocks=%d free=%d", fl.NumBlocks(), fl.TotalFree())
	}
}
