package pagedb

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/andreyvit/pagedb/mmap"
)

// DB is a handle to one database file. It owns the mapped region, the
// page allocator and the exclusive writer slot; every transaction runs
// through it. A DB is safe for concurrent use.
//
// The file must only be concurrently modified by compatible versions of
// pagedb; this is a documented precondition, not something the engine can
// enforce.
type DB struct {
	path    string
	file    *os.File
	data    []byte
	store   *pageStore
	logf    func(format string, args ...any)
	verbose bool
	noSync  bool

	writeSlot *semaphore.Weighted

	mu         sync.Mutex // guards meta, activeSlot, readers, store's pools
	meta       meta
	activeSlot int
	readers    map[*readPin]struct{}
	closed     bool

	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64
}

type Options struct {
	// Logf receives diagnostic output; nil discards it.
	Logf    func(format string, args ...any)
	Verbose bool

	// PageSize must be a power of two between 512 and 32768; zero means
	// 4096. Ignored when opening an existing file, which keeps the page
	// size it was created with.
	PageSize int

	// NoSync skips durability syncs on commit. Only sensible in tests.
	NoSync bool
}

// Open opens path as a pagedb database:
//   - a missing or empty file is initialized as a new database;
//   - a valid pagedb file is opened with its stored page size;
//   - anything else is rejected with ErrCorrupted.
//
// maxSize fixes the size of the mapped region for the life of the file; it
// cannot shrink later, and a maxSize that is not a multiple of the page
// size leaves the excess unused.
func Open(path string, maxSize int64, opt Options) (*DB, error) {
	pageSize := opt.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if !isPowerOfTwo(pageSize) || pageSize < minPageSize || pageSize > maxPageSize {
		return nil, invalidf("page size %d is not a power of two between %d and %d", pageSize, minPageSize, maxPageSize)
	}
	if maxSize < headerSize+4*int64(pageSize) {
		return nil, invalidf("database size %d is too small for page size %d", maxSize, pageSize)
	}
	if maxSize > mmap.MaxSize {
		return nil, invalidf("database size %d exceeds the platform mmap limit", maxSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("pagedb: %w", err)
	}
	db, err := open(f, maxSize, pageSize, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	return db, nil
}

func open(f *os.File, maxSize int64, pageSize int, opt Options) (*DB, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pagedb: %w", err)
	}
	if st.Size() < maxSize {
		if err := f.Truncate(maxSize); err != nil {
			return nil, fmt.Errorf("pagedb: sizing file: %w", err)
		}
	} else {
		// The region never shrinks: a smaller maxSize on reopen would cut
		// pages out from under the existing trees.
		maxSize = st.Size()
	}

	data, err := mmap.Mmap(f, 0, int(maxSize), mmap.Writable|mmap.RandomAccess)
	if err != nil {
		return nil, fmt.Errorf("pagedb: mmap: %w", err)
	}

	db := &DB{
		path:      f.Name(),
		file:      f,
		data:      data,
		logf:      opt.Logf,
		verbose:   opt.Verbose,
		noSync:    opt.NoSync,
		writeSlot: semaphore.NewWeighted(1),
		readers:   make(map[*readPin]struct{}),
	}
	if db.logf == nil {
		db.logf = func(format string, args ...any) {}
	}

	m, slot, err := readActiveMeta(data[:headerSize])
	if err != nil {
		mmap.Munmap(data)
		return nil, fmt.Errorf("pagedb: %w", err)
	}
	if m == nil {
		db.store = newPageStore(data, pageSize)
		db.meta = meta{
			pageSize: uint32(pageSize),
			npages:   db.store.next,
		}
		db.activeSlot = 0
		db.meta.write(data[slot0Off : slot0Off+slotSize])
		if err := db.sync(); err != nil {
			mmap.Munmap(data)
			return nil, fmt.Errorf("pagedb: initializing: %w", err)
		}
		if db.verbose {
			db.logf("pagedb: initialized %s, page size %d, %d pages", db.path, pageSize, db.store.limit-db.store.first)
		}
		return db, nil
	}

	db.store = newPageStore(data, int(m.pageSize))
	if m.npages < db.store.first || m.npages > db.store.limit {
		mmap.Munmap(data)
		return nil, fmt.Errorf("pagedb: %w", corruptf(0, "superblock claims %d pages, region holds %d", m.npages, db.store.limit))
	}
	db.store.next = m.npages
	if err := db.store.loadFreelist(m.freelist); err != nil {
		mmap.Munmap(data)
		return nil, fmt.Errorf("pagedb: %w", err)
	}
	db.meta = *m
	db.activeSlot = slot
	if db.verbose {
		db.logf("pagedb: opened %s at txn %d, page size %d, %d free pages", db.path, m.txid, m.pageSize, db.store.freePageCount())
	}
	return db, nil
}

func (db *DB) Path() string { return db.path }

// Close unmaps the region and closes the file. All transactions must be
// finished first.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if err := mmap.Munmap(db.data); err != nil {
		return fmt.Errorf("pagedb: closing: %w", err)
	}
	if err := db.file.Close(); err != nil {
		return fmt.Errorf("pagedb: closing: %w", err)
	}
	return nil
}
