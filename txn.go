package pagedb

import (
	"context"
	"fmt"

	"github.com/andreyvit/pagedb/mmap"
)

// readPin holds the snapshot a read transaction observes: the master root
// published by some commit, plus that commit's transaction id for watermark
// bookkeeping. Published pages are immutable, so the snapshot stays
// self-consistent no matter what the writer does.
type readPin struct {
	txid uint64
	root pgno
}

func (db *DB) beginRead() (*readPin, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	pin := &readPin{txid: db.meta.txid, root: db.meta.root}
	db.readers[pin] = struct{}{}
	db.ReaderCount.Add(1)
	db.ReadCount.Add(1)
	return pin, nil
}

func (db *DB) endRead(pin *readPin) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.readers[pin]; !ok {
		return
	}
	delete(db.readers, pin)
	db.ReaderCount.Add(-1)
	db.store.release(db.oldestSnapshotLocked())
}

// oldestSnapshotLocked is the watermark: pending pages freed by commits at
// or below it have no remaining observers.
func (db *DB) oldestSnapshotLocked() uint64 {
	oldest := db.meta.txid
	for pin := range db.readers {
		if pin.txid < oldest {
			oldest = pin.txid
		}
	}
	return oldest
}

// writeTxn is the exclusive write transaction. All of its page allocations
// and the roots it builds stay transaction-local until commit publishes a
// superblock; abort returns the allocations and leaves no trace.
type writeTxn struct {
	db     *DB
	txid   uint64
	master pgno // working master root

	alloc map[pgno]struct{} // pages allocated by this transaction
	freed []pgno            // published pages this transaction supersedes
	done  bool
}

// beginWrite acquires the single writer slot. With block=false it fails
// fast with ErrWriteConflict instead of waiting.
func (db *DB) beginWrite(block bool) (*writeTxn, error) {
	if block {
		db.PendingWriterCount.Add(1)
		err := db.writeSlot.Acquire(context.Background(), 1)
		db.PendingWriterCount.Add(-1)
		if err != nil {
			return nil, fmt.Errorf("pagedb: %w", err)
		}
	} else if !db.writeSlot.TryAcquire(1) {
		return nil, ErrWriteConflict
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		db.writeSlot.Release(1)
		return nil, ErrDatabaseClosed
	}
	db.WriterCount.Add(1)
	return &writeTxn{
		db:     db,
		txid:   db.meta.txid + 1,
		master: db.meta.root,
		alloc:  make(map[pgno]struct{}),
	}, nil
}

func (tx *writeTxn) pageSize() int {
	return tx.db.store.pageSize
}

func (tx *writeTxn) page(p pgno) []byte {
	return tx.db.store.page(p)
}

func (tx *writeTxn) allocPage() (pgno, error) {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	p, err := tx.db.store.allocate()
	if err != nil {
		return 0, err
	}
	tx.alloc[p] = struct{}{}
	return p, nil
}

// free discards a page this transaction no longer references. Pages the
// transaction allocated itself were never published and become reusable
// immediately; published pages wait for the commit watermark.
func (tx *writeTxn) free(p pgno) {
	if p == 0 {
		return
	}
	if _, own := tx.alloc[p]; own {
		delete(tx.alloc, p)
		tx.db.mu.Lock()
		tx.db.store.freeNow(p)
		tx.db.mu.Unlock()
		return
	}
	tx.freed = append(tx.freed, p)
}

// commit makes the transaction's master root the published one. Order
// matters: data pages and the new free-list chain are synced first, then
// the inactive superblock slot is written and synced. A crash at any point
// before the second sync completes leaves the previously active slot
// untouched and trusted.
func (tx *writeTxn) commit() error {
	if tx.done {
		return ErrTxDone
	}
	db := tx.db

	db.mu.Lock()
	oldChain, err := db.store.chainPages(db.meta.freelist)
	var flHead pgno
	if err == nil {
		for _, p := range oldChain {
			if _, own := tx.alloc[p]; own {
				delete(tx.alloc, p)
				db.store.freeNow(p)
			} else {
				tx.freed = append(tx.freed, p)
			}
		}
		db.store.addPending(tx.txid, tx.freed)
		tx.freed = nil
		db.store.release(db.oldestSnapshotLocked())
		flHead, err = db.store.writeFreelist(func() (pgno, error) {
			p, aerr := db.store.allocate()
			if aerr != nil {
				return 0, aerr
			}
			tx.alloc[p] = struct{}{}
			return p, nil
		})
	}
	newMeta := meta{
		pageSize: uint32(db.store.pageSize),
		txid:     tx.txid,
		root:     tx.master,
		freelist: flHead,
		npages:   db.store.next,
	}
	db.mu.Unlock()
	if err != nil {
		tx.abort()
		return err
	}

	if err := db.sync(); err != nil {
		tx.abort()
		return fmt.Errorf("pagedb: commit sync: %w", err)
	}
	slotOff := slot0Off
	if db.activeSlot == 0 {
		slotOff = slot1Off
	}
	newMeta.write(db.data[slotOff : slotOff+slotSize])
	if err := db.sync(); err != nil {
		// See mmap.Fdatasync: a failed sync here is not recoverable.
		tx.finish()
		return fmt.Errorf("pagedb: superblock sync: %w", err)
	}

	db.mu.Lock()
	db.meta = newMeta
	db.activeSlot = 1 - db.activeSlot
	db.mu.Unlock()
	db.WriteCount.Add(1)
	if db.verbose {
		db.logf("pagedb: committed txn %d, master root %d", newMeta.txid, newMeta.root)
	}
	tx.finish()
	return nil
}

// abort rolls the transaction back: every page it allocated returns to the
// free pool, and nothing was published, so there is nothing else to undo.
func (tx *writeTxn) abort() {
	if tx.done {
		return
	}
	db := tx.db
	db.mu.Lock()
	db.store.dropPending(tx.txid)
	for p := range tx.alloc {
		db.store.freeNow(p)
	}
	db.mu.Unlock()
	tx.finish()
}

func (tx *writeTxn) finish() {
	tx.done = true
	tx.db.WriterCount.Add(-1)
	tx.db.writeSlot.Release(1)
}

func (db *DB) sync() error {
	if db.noSync {
		return nil
	}
	return mmap.Fdatasync(db.file, db.data)
}
