package pagedb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenInitializesNewFile(t *testing.T) {
	db := setup(t)
	st := must(db.Stats())
	eq(t, st.UsedPages, 0)
	eq(t, st.Tables, 0)
	eq(t, st.TreeHeight, 0)
	eq(t, st.PageSize, defaultPageSize)
}

func TestReopenPersistence(t *testing.T) {
	db := setup(t)
	tbl := must(db.OpenTable("users"))
	w := must(tbl.BeginWrite())
	ensure(w.Insert([]byte("alice"), []byte("a@example.com")))
	ensure(w.Insert([]byte("bob"), []byte("b@example.com")))
	ensure(w.Commit())

	db = reopen(t, db)
	tbl = must(db.OpenTable("users"))
	r := must(tbl.ReadTransaction())
	defer r.Close()
	eqBytes(t, must(r.Get([]byte("alice"))), []byte("a@example.com"))
	eqBytes(t, must(r.Get([]byte("bob"))), []byte("b@example.com"))
	eq(t, must(r.Len()), 2)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	ensure(os.WriteFile(path, bytes.Repeat([]byte("X"), 8192), 0666))
	_, err := Open(path, testDBSize, Options{})
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("** Open(garbage) = %v, wanted ErrCorrupted", err)
	}
}

func TestOpenArgumentValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	_, err := Open(path, testDBSize, Options{PageSize: 1000})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("** Open(pageSize=1000) = %v, wanted ErrInvalidArgument", err)
	}
	_, err = Open(path, testDBSize, Options{PageSize: 256})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("** Open(pageSize=256) = %v, wanted ErrInvalidArgument", err)
	}
	_, err = Open(path, headerSize, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("** Open(maxSize=%d) = %v, wanted ErrInvalidArgument", headerSize, err)
	}
}

// A region size that is not a multiple of the page size leaves the excess
// unused but must otherwise work, including for maximum-size keys.
func TestOpenOddSizedRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.db")
	db := must(Open(path, 1024*1024+1, Options{NoSync: true}))
	defer db.Close()

	tbl := must(db.OpenTable("x"))
	w := must(tbl.BeginWrite())
	key := bytes.Repeat([]byte{0xAB}, db.store.maxKeySize())
	ensure(w.Insert(key, []byte{1}))
	ensure(w.Commit())

	r := must(tbl.ReadTransaction())
	defer r.Close()
	eq(t, must(r.Len()), 1)
	eqBytes(t, must(r.Get(key)), []byte{1})
}

func TestOpenKeepsStoredPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ps512.db")
	db := must(Open(path, testDBSize, Options{PageSize: 512, NoSync: true}))
	tbl := must(db.OpenTable("t"))
	w := must(tbl.BeginWrite())
	ensure(w.Insert([]byte("k"), []byte("v")))
	ensure(w.Commit())
	ensure(db.Close())

	// The requested page size is ignored on reopen.
	db = must(Open(path, testDBSize, Options{NoSync: true}))
	defer db.Close()
	st := must(db.Stats())
	eq(t, st.PageSize, 512)
	tbl = must(db.OpenTable("t"))
	r := must(tbl.ReadTransaction())
	defer r.Close()
	eqBytes(t, must(r.Get([]byte("k"))), []byte("v"))
}

func TestClosedDatabase(t *testing.T) {
	db := setup(t)
	tbl := must(db.OpenTable("t"))
	ensure(db.Close())
	ensure(db.Close()) // idempotent

	if _, err := tbl.ReadTransaction(); !errors.Is(err, ErrDatabaseClosed) {
		t.Errorf("** ReadTransaction after Close = %v, wanted ErrDatabaseClosed", err)
	}
	if _, err := tbl.BeginWrite(); !errors.Is(err, ErrDatabaseClosed) {
		t.Errorf("** BeginWrite after Close = %v, wanted ErrDatabaseClosed", err)
	}
}

const testDBSize = 1 << 20

func setup(t testing.TB) *DB {
	return setupSized(t, testDBSize, Options{NoSync: true})
}

func setupSized(t testing.TB, size int64, opt Options) *DB {
	t.Helper()
	opt.Logf = t.Logf
	path := filepath.Join(t.TempDir(), "pagedb_test.db")
	db := must(Open(path, size, opt))
	t.Cleanup(func() { db.Close() })
	return db
}

func reopen(t testing.TB, db *DB) *DB {
	t.Helper()
	path := db.Path()
	ensure(db.Close())
	db2 := must(Open(path, testDBSize, Options{NoSync: true, Logf: t.Logf}))
	t.Cleanup(func() { db2.Close() })
	return db2
}

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func eqBytes(t testing.TB, a, e []byte) {
	if !bytes.Equal(a, e) {
		t.Helper()
		t.Errorf("** got %s, wanted %s", hexstr(a), hexstr(e))
	}
}
