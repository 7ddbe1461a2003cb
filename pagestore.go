package pagedb

import "encoding/binary"

const (
	defaultPageSize = 4096
	minPageSize     = 512
	// Cell offsets are 16-bit and scratch nodes are double-size, which
	// caps the page size at 32 KiB.
	maxPageSize = 32768

	// Free-list chain page:
	//
	//	| type 2B | count 2B | pad 4B | next 8B | page numbers count × 8B |
	flHeader = 16
)

// pageStore owns the page array carved out of the mapped region past the
// header. It hands out page numbers and tracks reclaimable ones; all
// mutation goes through the single write transaction, so the DB handle's
// lock is taken by callers, not here.
type pageStore struct {
	data     []byte
	pageSize int
	first    pgno // first page past the header region
	limit    pgno // pages that fit into the mapped region
	next     pgno // high-water mark: first never-allocated page

	// free pages are allocatable right now. pending pages were freed by the
	// commit whose txid keys them and join free once no read snapshot
	// older than that commit remains.
	free    []pgno
	pending map[uint64][]pgno
}

func newPageStore(data []byte, pageSize int) *pageStore {
	s := &pageStore{
		data:     data,
		pageSize: pageSize,
		first:    pgno((headerSize + pageSize - 1) / pageSize),
		limit:    pgno(len(data) / pageSize),
		pending:  make(map[uint64][]pgno),
	}
	s.next = s.first
	return s
}

func (s *pageStore) page(p pgno) []byte {
	off := int(p) * s.pageSize
	return s.data[off : off+s.pageSize]
}

// Keys and inline values are capped at a quarter page so a branch always
// holds at least three separators and a leaf at least one cell. Longer
// values go to overflow chains; longer keys are rejected.
func (s *pageStore) maxKeySize() int {
	return s.pageSize / 4
}

func (s *pageStore) maxInlineValue() int {
	return s.pageSize / 4
}

func (s *pageStore) allocate() (pgno, error) {
	if n := len(s.free); n > 0 {
		p := s.free[n-1]
		s.free = s.free[:n-1]
		return p, nil
	}
	if s.next >= s.limit {
		return 0, ErrOutOfSpace
	}
	p := s.next
	s.next++
	return p, nil
}

// freeNow returns a page that was never published to the allocatable pool.
func (s *pageStore) freeNow(p pgno) {
	s.free = append(s.free, p)
}

// addPending records pages first made unreachable by the commit txid.
func (s *pageStore) addPending(txid uint64, pages []pgno) {
	if len(pages) == 0 {
		return
	}
	s.pending[txid] = append(s.pending[txid], pages...)
}

func (s *pageStore) dropPending(txid uint64) {
	delete(s.pending, txid)
}

// release drains pending pages up to the watermark: a page freed by commit
// T may be reused once every open read snapshot is at transaction id >= T.
func (s *pageStore) release(oldest uint64) {
	for t, pages := range s.pending {
		if t <= oldest {
			s.free = append(s.free, pages...)
			delete(s.pending, t)
		}
	}
}

func (s *pageStore) pendingCount() int {
	var n int
	for _, pages := range s.pending {
		n += len(pages)
	}
	return n
}

func (s *pageStore) freePageCount() int {
	return len(s.free) + s.pendingCount()
}

// chainPages lists the pages of a free-list chain itself.
func (s *pageStore) chainPages(head pgno) ([]pgno, error) {
	var pages []pgno
	for p := head; p != 0; {
		pages = append(pages, p)
		if len(pages) > int(s.limit) {
			return nil, corruptf(p, "free-list chain cycle")
		}
		buf := s.page(p)
		if binary.LittleEndian.Uint16(buf[0:]) != pageFreelist {
			return nil, corruptf(p, "free-list chain reaches a non-free-list page")
		}
		p = pgno(binary.LittleEndian.Uint64(buf[8:]))
	}
	return pages, nil
}

// loadFreelist reads the persisted chain into the free pool. The chain's
// own pages stay allocated; the next commit rewrites the chain and frees
// them. Pending pages need no separate slot on disk: reopening a file
// discards every read snapshot, so anything pending at the last commit was
// persisted as plain free.
func (s *pageStore) loadFreelist(head pgno) error {
	for p := head; p != 0; {
		buf := s.page(p)
		if binary.LittleEndian.Uint16(buf[0:]) != pageFreelist {
			return corruptf(p, "free-list chain reaches a non-free-list page")
		}
		count := int(binary.LittleEndian.Uint16(buf[2:]))
		if flHeader+count*8 > s.pageSize {
			return corruptf(p, "free-list count %d exceeds page capacity", count)
		}
		for i := 0; i < count; i++ {
			id := pgno(binary.LittleEndian.Uint64(buf[flHeader+i*8:]))
			if id < s.first || id >= s.limit {
				return corruptf(p, "free page number %d out of bounds", id)
			}
			s.free = append(s.free, id)
		}
		p = pgno(binary.LittleEndian.Uint64(buf[8:]))
		if len(s.free) > int(s.limit) {
			return corruptf(head, "free-list chain cycle")
		}
	}
	return nil
}

// writeFreelist persists the free pool plus all pending pages into a fresh
// chain and returns its head. Chain pages come from alloc, which shrinks
// the pool while we size the chain, hence the fixpoint loop.
func (s *pageStore) writeFreelist(alloc func() (pgno, error)) (pgno, error) {
	perPage := (s.pageSize - flHeader) / 8
	var chain []pgno
	for {
		count := len(s.free) + s.pendingCount()
		need := (count + perPage - 1) / perPage
		if need <= len(chain) {
			break
		}
		p, err := alloc()
		if err != nil {
			return 0, err
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return 0, nil
	}

	ids := make([]pgno, 0, len(s.free)+s.pendingCount())
	ids = append(ids, s.free...)
	for _, pages := range s.pending {
		ids = append(ids, pages...)
	}

	for i, p := range chain {
		buf := s.page(p)
		clear(buf)
		count := len(ids)
		if count > perPage {
			count = perPage
		}
		binary.LittleEndian.PutUint16(buf[0:], pageFreelist)
		binary.LittleEndian.PutUint16(buf[2:], uint16(count))
		if i+1 < len(chain) {
			binary.LittleEndian.PutUint64(buf[8:], uint64(chain[i+1]))
		}
		for j := 0; j < count; j++ {
			binary.LittleEndian.PutUint64(buf[flHeader+j*8:], uint64(ids[j]))
		}
		ids = ids[count:]
	}
	return chain[0], nil
}
