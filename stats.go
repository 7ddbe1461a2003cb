package pagedb

import "encoding/binary"

// DbStats summarizes page usage and tree shape across the whole database,
// master table included.
type DbStats struct {
	PageSize   int
	TotalPages int // capacity of the mapped region
	UsedPages  int // allocated and not reclaimable
	FreePages  int // allocatable now or awaiting the watermark

	LeafPages     int
	BranchPages   int
	OverflowPages int

	TreeHeight     int // deepest tree, in levels
	AverageFanout  float64
	Tables         int
	MultimapTables int
}

// Stats takes an internal read snapshot, so it reflects one committed
// state even while a writer is running.
func (db *DB) Stats() (DbStats, error) {
	pin, err := db.beginRead()
	if err != nil {
		return DbStats{}, err
	}
	defer db.endRead(pin)

	s := db.store
	st := DbStats{PageSize: s.pageSize}

	db.mu.Lock()
	st.TotalPages = int(s.limit - s.first)
	st.FreePages = st.TotalPages - int(s.next-s.first) + s.freePageCount()
	st.UsedPages = st.TotalPages - st.FreePages
	db.mu.Unlock()

	var branchKeys int
	acc := func(root pgno) error {
		return walkTree(s, root, 1, func(p pgno, n node, depth int) error {
			if depth > st.TreeHeight {
				st.TreeHeight = depth
			}
			switch n.btype() {
			case pageLeaf:
				st.LeafPages++
				for i := 0; i < n.nkeys(); i++ {
					if n.vfield(i)&overflowFlag != 0 {
						c, err := countOverflowPages(s, overflowHead(n.payload(i)))
						if err != nil {
							return err
						}
						st.OverflowPages += c
					}
				}
			case pageBranch:
				st.BranchPages++
				branchKeys += n.nkeys()
			}
			return nil
		})
	}

	if err := acc(pin.root); err != nil {
		return DbStats{}, err
	}
	c, err := newCursor(s, pin.root)
	if err != nil {
		return DbStats{}, err
	}
	for c.valid() {
		buf, err := c.value()
		if err != nil {
			return DbStats{}, err
		}
		d, err := decodeDescriptor(buf)
		if err != nil {
			return DbStats{}, err
		}
		if d.Type == tableMultimap {
			st.MultimapTables++
		} else {
			st.Tables++
		}
		if err := acc(pgno(d.Root)); err != nil {
			return DbStats{}, err
		}
		if err := c.next(); err != nil {
			return DbStats{}, err
		}
	}

	if st.BranchPages > 0 {
		st.AverageFanout = float64(branchKeys) / float64(st.BranchPages)
	}
	return st, nil
}

// walkTree visits every leaf and branch page of one tree, parents first.
func walkTree(s *pageStore, root pgno, depth int, fn func(p pgno, n node, depth int) error) error {
	if root == 0 {
		return nil
	}
	if depth > 64 {
		return corruptf(root, "tree deeper than 64 levels")
	}
	n := node(s.page(root))
	if err := fn(root, n, depth); err != nil {
		return err
	}
	if n.btype() == pageBranch {
		for i := 0; i < n.nkeys(); i++ {
			if err := walkTree(s, n.ptr(i), depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func countOverflowPages(s *pageStore, head pgno) (int, error) {
	var n int
	for p := head; p != 0; {
		buf := s.page(p)
		if binary.LittleEndian.Uint16(buf[0:]) != pageOverflow {
			return 0, corruptf(p, "overflow chain reaches a non-overflow page")
		}
		n++
		if n > int(s.limit) {
			return 0, corruptf(head, "overflow chain cycle")
		}
		p = pgno(binary.LittleEndian.Uint64(buf[8:]))
	}
	return n, nil
}
