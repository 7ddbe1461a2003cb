package pagedb

import (
	"github.com/vmihailenco/msgpack/v5"
)

// The master table is a regular tree rooted from the superblock. Its keys
// are table names and its values are msgpack-encoded descriptors. Table
// ids are assigned monotonically and survive for the life of the file;
// tables are never deleted in this design.

type tableType uint8

const (
	tableNormal   tableType = 1
	tableMultimap tableType = 2
)

func (t tableType) String() string {
	switch t {
	case tableNormal:
		return "table"
	case tableMultimap:
		return "multimap"
	default:
		return "unknown"
	}
}

type tableDescriptor struct {
	ID   uint64    `msgpack:"i"`
	Type tableType `msgpack:"t"`
	Root uint64    `msgpack:"r"`
}

func decodeDescriptor(buf []byte) (tableDescriptor, error) {
	var d tableDescriptor
	if err := msgpack.Unmarshal(buf, &d); err != nil {
		return d, corruptf(0, "bad table descriptor: %v", err)
	}
	return d, nil
}

func encodeDescriptor(d tableDescriptor) []byte {
	buf, err := msgpack.Marshal(&d)
	if err != nil {
		panic(err) // plain struct, cannot fail
	}
	return buf
}

// lookupTable resolves a name in the master tree rooted at root.
func lookupTable(s *pageStore, root pgno, name string) (tableDescriptor, error) {
	buf, err := lookupTree(s, DefaultComparator, root, []byte(name))
	if err != nil {
		return tableDescriptor{}, err
	}
	return decodeDescriptor(buf)
}

// getOrCreateTable registers a table under the transaction's working
// master root, or returns the existing descriptor untouched. Creation
// assigns the next table id and an empty tree root.
func getOrCreateTable(tx *writeTxn, name string, typ tableType) (tableDescriptor, error) {
	if name == "" {
		return tableDescriptor{}, invalidf("empty table name")
	}
	s := tx.db.store
	buf, err := lookupTree(s, DefaultComparator, tx.master, []byte(name))
	if err == nil {
		d, err := decodeDescriptor(buf)
		if err != nil {
			return tableDescriptor{}, err
		}
		if d.Type != typ {
			return tableDescriptor{}, invalidf("table %q already exists as a %v", name, d.Type)
		}
		return d, nil
	} else if err != ErrNotFound {
		return tableDescriptor{}, err
	}

	id, err := maxTableID(s, tx.master)
	if err != nil {
		return tableDescriptor{}, err
	}
	d := tableDescriptor{ID: id + 1, Type: typ, Root: 0}
	w := treeWriter{tx: tx, cmp: DefaultComparator}
	newMaster, err := w.insert(tx.master, []byte(name), encodeDescriptor(d))
	if err != nil {
		return tableDescriptor{}, err
	}
	tx.master = newMaster
	return d, nil
}

// updateTableRoot records a table's new tree root in the working master.
func updateTableRoot(tx *writeTxn, name string, d tableDescriptor, root pgno) error {
	d.Root = uint64(root)
	w := treeWriter{tx: tx, cmp: DefaultComparator}
	newMaster, err := w.insert(tx.master, []byte(name), encodeDescriptor(d))
	if err != nil {
		return err
	}
	tx.master = newMaster
	return nil
}

func maxTableID(s *pageStore, root pgno) (uint64, error) {
	c, err := newCursor(s, root)
	if err != nil {
		return 0, err
	}
	var maxID uint64
	for c.valid() {
		buf, err := c.value()
		if err != nil {
			return 0, err
		}
		d, err := decodeDescriptor(buf)
		if err != nil {
			return 0, err
		}
		if d.ID > maxID {
			maxID = d.ID
		}
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	return maxID, nil
}
