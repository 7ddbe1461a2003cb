package pagedb

import (
	"errors"
	"iter"
)

// MultimapTable is a handle to a table whose keys map to ordered,
// de-duplicated sets of values rather than single values.
type MultimapTable struct {
	db   *DB
	id   uint64
	name string
	cmp  Comparator
}

func (t *MultimapTable) Name() string { return t.name }

// OpenMultimapTable returns a handle to the named multimap table,
// registering it first if needed.
func (db *DB) OpenMultimapTable(name string) (*MultimapTable, error) {
	d, err := db.registerTable(name, tableMultimap)
	if err != nil {
		return nil, err
	}
	return &MultimapTable{db: db, id: d.ID, name: name, cmp: DefaultComparator}, nil
}

// MultimapWriteTx is the write transaction of a multimap table.
type MultimapWriteTx struct {
	t    *MultimapTable
	tx   *writeTxn
	desc tableDescriptor
	root pgno
	w    treeWriter
}

func (t *MultimapTable) BeginWrite() (*MultimapWriteTx, error) {
	return t.beginWrite(true)
}

func (t *MultimapTable) TryBeginWrite() (*MultimapWriteTx, error) {
	return t.beginWrite(false)
}

func (t *MultimapTable) beginWrite(block bool) (*MultimapWriteTx, error) {
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
	wt := &MultimapWriteTx{t: t, tx: tx, desc: d, root: pgno(d.Root)}
	wt.w = treeWriter{tx: tx, cmp: t.cmp}
	return wt, nil
}

func (wt *MultimapWriteTx) fail(err error) error {
	if errors.Is(err, ErrOutOfSpace) {
		wt.tx.abort()
	}
	return err
}

// Put adds a (key, value) pair. Adding a pair that is already present is a
// no-op; the value set under one key stays sorted and de-duplicated.
func (wt *MultimapWriteTx) Put(key, val []byte) error {
	if wt.tx.done {
		return ErrTxDone
	}
	cur, err := lookupTree(wt.t.db.store, wt.t.cmp, wt.root, key)
	var enc []byte
	switch {
	case err == nil:
		var added bool
		enc, added, err = setInsert(cur, val)
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
	case errors.Is(err, ErrNotFound):
		enc = encodeSetSingle(val)
	default:
		return err
	}
	root, err := wt.w.insert(wt.root, key, enc)
	if err != nil {
		return wt.fail(err)
	}
	wt.root = root
	return nil
}

// Unput removes one (key, value) pair, reporting whether it was present.
// Removing the last value of a key removes the key entry itself.
func (wt *MultimapWriteTx) Unput(key, val []byte) (bool, error) {
	if wt.tx.done {
		return false, ErrTxDone
	}
	cur, err := lookupTree(wt.t.db.store, wt.t.cmp, wt.root, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	enc, removed, err := setRemove(cur, val)
	if err != nil || !removed {
		return false, err
	}
	if len(enc) == 0 {
		root, _, err := wt.w.delete(wt.root, key)
		if err != nil {
			return false, wt.fail(err)
		}
		wt.root = root
		return true, nil
	}
	root, err := wt.w.insert(wt.root, key, enc)
	if err != nil {
		return false, wt.fail(err)
	}
	wt.root = root
	return true, nil
}

func (wt *MultimapWriteTx) Commit() error {
	if wt.tx.done {
		return ErrTxDone
	}
	if err := updateTableRoot(wt.tx, wt.t.name, wt.desc, wt.root); err != nil {
		return wt.fail(err)
	}
	return wt.tx.commit()
}

func (wt *MultimapWriteTx) Abort() {
	wt.tx.abort()
}

// MultimapReadTx is a snapshot-pinned read transaction of a multimap table.
type MultimapReadTx struct {
	t    *MultimapTable
	pin  *readPin
	root pgno
}

func (t *MultimapTable) ReadTransaction() (*MultimapReadTx, error) {
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
	return &MultimapReadTx{t: t, pin: pin, root: pgno(d.Root)}, nil
}

// Get yields the values stored under key in ascending byte order.
func (rt *MultimapReadTx) Get(key []byte) (iter.Seq[[]byte], error) {
	enc, err := lookupTree(rt.t.db.store, rt.t.cmp, rt.root, key)
	if errors.Is(err, ErrNotFound) {
		return func(yield func([]byte) bool) {}, nil
	} else if err != nil {
		return nil, err
	}
	vals, err := decodeSet(enc)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}, nil
}

// Contains reports whether the exact (key, value) pair is present.
func (rt *MultimapReadTx) Contains(key, val []byte) (bool, error) {
	enc, err := lookupTree(rt.t.db.store, rt.t.cmp, rt.root, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return setContains(enc, val)
}

// Len counts (key, value) pairs across all keys as of the snapshot.
func (rt *MultimapReadTx) Len() (int, error) {
	c, err := newCursor(rt.t.db.store, rt.root)
	if err != nil {
		return 0, err
	}
	var total int
	for c.valid() {
		enc, err := c.value()
		if err != nil {
			return 0, err
		}
		n, err := setCount(enc)
		if err != nil {
			return 0, err
		}
		total += n
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// All yields every (key, value) pair, keys ascending, values ascending
// within each key.
func (rt *MultimapReadTx) All() iter.Seq2[[]byte, []byte] {
	s := rt.t.db.store
	return func(yield func([]byte, []byte) bool) {
		for k, enc := range iterTree(s, rt.root) {
			vals, err := decodeSet(enc)
			if err != nil {
				panic(err)
			}
			for _, v := range vals {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

func (rt *MultimapReadTx) Close() {
	rt.t.db.endRead(rt.pin)
}
