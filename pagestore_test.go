package pagedb

import (
	"errors"
	"slices"
	"testing"
)

func newTestStore(pages int) *pageStore {
	data := make([]byte, headerSize+pages*512)
	return newPageStore(data, 512)
}

func TestAllocateFreeCycle(t *testing.T) {
	s := newTestStore(8)
	eq(t, s.first, pgno(8))
	eq(t, s.limit, pgno(16))

	p1 := must(s.allocate())
	p2 := must(s.allocate())
	eq(t, p1, pgno(8))
	eq(t, p2, pgno(9))

	s.freeNow(p1)
	eq(t, must(s.allocate()), p1)

	var n int
	for {
		if _, err := s.allocate(); err != nil {
			if !errors.Is(err, ErrOutOfSpace) {
				t.Fatalf("** allocate = %v, wanted ErrOutOfSpace", err)
			}
			break
		}
		n++
	}
	eq(t, n, 6) // 8 pages total, 2 already handed out
}

func TestPendingWatermark(t *testing.T) {
	s := newTestStore(16)
	s.addPending(5, []pgno{10, 11})
	s.addPending(7, []pgno{12})
	eq(t, s.pendingCount(), 3)
	eq(t, len(s.free), 0)

	s.release(4)
	eq(t, s.pendingCount(), 3)
	s.release(5)
	eq(t, s.pendingCount(), 1)
	eq(t, len(s.free), 2)
	s.release(7)
	eq(t, s.pendingCount(), 0)
	eq(t, len(s.free), 3)
	eq(t, s.freePageCount(), 3)

	s.addPending(9, []pgno{13})
	s.dropPending(9)
	eq(t, s.pendingCount(), 0)
}

func TestFreelistRoundtrip(t *testing.T) {
	s := newTestStore(200)
	var pages []pgno
	for i := 0; i < 170; i++ {
		pages = append(pages, must(s.allocate()))
	}
	for _, p := range pages[:150] {
		s.freeNow(p)
	}
	s.addPending(3, pages[150:160])

	head := must(s.writeFreelist(s.allocate))
	if head == 0 {
		t.Fatalf("** empty chain for %d pages", s.freePageCount())
	}
	// 62 ids per 512-byte chain page.
	chain := must(s.chainPages(head))
	want := append(slices.Clone(s.free), s.pending[3]...)
	eq(t, len(chain), (len(want)+61)/62)

	s2 := newPageStore(s.data, 512)
	ensure(s2.loadFreelist(head))
	slices.Sort(want)
	got := slices.Clone(s2.free)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Fatalf("** reloaded free list has %d pages, wanted %d", len(got), len(want))
	}
}

func TestFreelistCorruptionDetected(t *testing.T) {
	s := newTestStore(16)
	p := must(s.allocate())
	buf := s.page(p)
	buf[0] = 0x77 // not a free-list page type

	s2 := newPageStore(s.data, 512)
	if err := s2.loadFreelist(p); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** loadFreelist(garbage) = %v, wanted ErrCorrupted", err)
	}
	if _, err := s2.chainPages(p); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** chainPages(garbage) = %v, wanted ErrCorrupted", err)
	}
}
