package pagedb

import (
	"errors"
	"iter"
)

// Table is a handle to one ordered table: a name bound to a table id and
// the engine. Handles are cheap and long-lived; all data access goes
// through transactions created from the handle.
type Table struct {
	db   *DB
	id   uint64
	name string
	cmp  Comparator
}

func (t *Table) Name() string { return t.name }

// WithComparator sets the key ordering for this table's transactions. It
// must be supplied before any data is written and identically on every
// open, because separator keys persist on disk in that order.
func (t *Table) WithComparator(cmp Comparator) *Table {
	t.cmp = cmp
	return t
}

// OpenTable returns a handle to the named ordered table, registering it in
// the master table first if needed. Registration runs as a one-operation
// write transaction and waits for the writer slot.
func (db *DB) OpenTable(name string) (*Table, error) {
	d, err := db.registerTable(name, tableNormal)
	if err != nil {
		return nil, err
	}
	return &Table{db: db, id: d.ID, name: name, cmp: DefaultComparator}, nil
}

func (db *DB) registerTable(name string, typ tableType) (tableDescriptor, error) {
	tx, err := db.beginWrite(true)
	if err != nil {
		return tableDescriptor{}, err
	}
	d, err := getOrCreateTable(tx, name, typ)
	if err != nil {
		tx.abort()
		return tableDescriptor{}, err
	}
	if err := tx.commit(); err != nil {
		return tableDescriptor{}, err
	}
	return d, nil
}

// WriteTx is an exclusive write transaction over one table. Mutations
// build a transaction-local tree root; nothing is visible to anyone else
// until Commit publishes it, and Abort leaves no trace.
type WriteTx struct {
	t    *Table
	tx   *writeTxn
	desc tableDescriptor
	root pgno
	w    treeWriter
}

// BeginWrite starts a write transaction, waiting for the current writer
// (if any) to commit or abort.
func (t *Table) BeginWrite() (*WriteTx, error) {
	return t.beginWrite(true)
}

// TryBeginWrite is BeginWrite under the non-blocking policy: it returns
// ErrWriteConflict when another write transaction is active.
func (t *Table) TryBeginWrite() (*WriteTx, error) {
	return t.beginWrite(false)
}

func (t *Table) beginWrite(block bool) (*WriteTx, error) {
	tx, err := t.db.beginWrite(block)
	if err != nil {
		return nil, err
	}
	d, err := lookupTable(t.db.store, tx.master, t.name)
	if err != nil {
		tx.abort()
		if errors.Is(err, ErrNotFound) {
			return nil, corruptf(0, "table %q vanished from the master table", t.name)
		}
		return nil, err
	}
	wt := &WriteTx{t: t, tx: tx, desc: d, root: pgno(d.Root)}
	wt.w = treeWriter{tx: tx, cmp: t.cmp}
	return wt, nil
}

// fail aborts automatically when the allocator runs dry; every other error
// leaves the transaction open and the tree exactly as before the call.
func (wt *WriteTx) fail(err error) error {
	if errors.Is(err, ErrOutOfSpace) {
		wt.tx.abort()
	}
	return err
}

// Insert adds or replaces a key. Last write wins within one key.
func (wt *WriteTx) Insert(key, val []byte) error {
	if wt.tx.done {
		return ErrTxDone
	}
	root, err := wt.w.insert(wt.root, key, val)
	if err != nil {
		return wt.fail(err)
	}
	wt.root = root
	return nil
}

// Delete removes a key, reporting whether it was present.
func (wt *WriteTx) Delete(key []byte) (bool, error) {
	if wt.tx.done {
		return false, ErrTxDone
	}
	root, found, err := wt.w.delete(wt.root, key)
	if err != nil {
		return false, wt.fail(err)
	}
	wt.root = root
	return found, nil
}

// Get reads through the transaction's own uncommitted tree.
func (wt *WriteTx) Get(key []byte) ([]byte, error) {
	if wt.tx.done {
		return nil, ErrTxDone
	}
	return lookupTree(wt.t.db.store, wt.t.cmp, wt.root, key)
}

// Commit publishes the transaction: after it returns nil, the changes are
// durable and visible to every future transaction and reopen.
func (wt *WriteTx) Commit() error {
	if wt.tx.done {
		return ErrTxDone
	}
	if err := updateTableRoot(wt.tx, wt.t.name, wt.desc, wt.root); err != nil {
		return wt.fail(err)
	}
	return wt.tx.commit()
}

// Abort discards the transaction.
func (wt *WriteTx) Abort() {
	wt.tx.abort()
}

// ReadTx is a read transaction pinned to the snapshot that was current
// when it started. It observes no effect of any later commit for its
// entire lifetime.
type ReadTx struct {
	t    *Table
	pin  *readPin
	root pgno
}

// ReadTransaction pins the current snapshot. It never blocks the writer.
func (t *Table) ReadTransaction() (*ReadTx, error) {
	pin, err := t.db.beginRead()
	if err != nil {
		return nil, err
	}
	d, err := lookupTable(t.db.store, pin.root, t.name)
	if err != nil {
		t.db.endRead(pin)
		if errors.Is(err, ErrNotFound) {
			return nil, corruptf(0, "table %q vanished from the master table", t.name)
		}
		return nil, err
	}
	return &ReadTx{t: t, pin: pin, root: pgno(d.Root)}, nil
}

// Get returns the value for key, or ErrNotFound. Inline values alias the
// mapped region and stay valid until Close.
func (rt *ReadTx) Get(key []byte) ([]byte, error) {
	return lookupTree(rt.t.db.store, rt.t.cmp, rt.root, key)
}

// Len counts the keys in the table as of the snapshot.
func (rt *ReadTx) Len() (int, error) {
	return countTree(rt.t.db.store, rt.root)
}

// All yields the table's pairs in ascending key order. The iteration is
// restartable and never observes concurrent writers.
func (rt *ReadTx) All() iter.Seq2[[]byte, []byte] {
	return iterTree(rt.t.db.store, rt.root)
}

// Range yields the pairs with low <= key < high in ascending key order.
// A nil low starts at the first key; a nil high runs to the end.
func (rt *ReadTx) Range(low, high []byte) iter.Seq2[[]byte, []byte] {
	return rangeTree(rt.t.db.store, rt.t.cmp, rt.root, low, high)
}

// Close releases the snapshot, unblocking reclamation of pages superseded
// since it was taken.
func (rt *ReadTx) Close() {
	rt.t.db.endRead(rt.pin)
}
