package pagedb

import (
	"errors"
	"fmt"
	"testing"
)

func TestSetCodec(t *testing.T) {
	enc := encodeSetSingle([]byte("m"))
	eq(t, fmt.Sprint(decodeSetStrings(t, enc)), "[m]")

	enc, added, err := setInsert(enc, []byte("a"))
	ensure(err)
	eq(t, added, true)
	enc, added, err = setInsert(enc, []byte("z"))
	ensure(err)
	eq(t, added, true)
	eq(t, fmt.Sprint(decodeSetStrings(t, enc)), "[a m z]")

	_, added, err = setInsert(enc, []byte("m"))
	ensure(err)
	eq(t, added, false)

	eq(t, must(setCount(enc)), 3)
	eq(t, must(setContains(enc, []byte("a"))), true)
	eq(t, must(setContains(enc, []byte("b"))), false)

	_, removed, err := setRemove(enc, []byte("nope"))
	ensure(err)
	eq(t, removed, false)

	enc, removed, err = setRemove(enc, []byte("m"))
	ensure(err)
	eq(t, removed, true)
	eq(t, fmt.Sprint(decodeSetStrings(t, enc)), "[a z]")

	enc, _, err = setRemove(enc, []byte("a"))
	ensure(err)
	enc, _, err = setRemove(enc, []byte("z"))
	ensure(err)
	eq(t, len(enc), 0)
}

func TestMultimapTable(t *testing.T) {
	db := setup(t)
	mt := must(db.OpenMultimapTable("tags"))

	w := must(mt.BeginWrite())
	ensure(w.Put([]byte("post1"), []byte("red")))
	ensure(w.Put([]byte("post1"), []byte("blue")))
	ensure(w.Put([]byte("post1"), []byte("red"))) // duplicate pair is a no-op
	ensure(w.Put([]byte("post2"), []byte("red")))
	ensure(w.Commit())

	r := must(mt.ReadTransaction())
	eq(t, must(r.Len()), 3)
	var vals []string
	for v := range must(r.Get([]byte("post1"))) {
		vals = append(vals, string(v))
	}
	eq(t, fmt.Sprint(vals), "[blue red]")
	eq(t, must(r.Contains([]byte("post1"), []byte("red"))), true)
	eq(t, must(r.Contains([]byte("post1"), []byte("green"))), false)
	eq(t, must(r.Contains([]byte("nope"), []byte("red"))), false)

	var pairs []string
	for k, v := range r.All() {
		pairs = append(pairs, string(k)+"="+string(v))
	}
	eq(t, fmt.Sprint(pairs), "[post1=blue post1=red post2=red]")
	r.Close()

	w = must(mt.BeginWrite())
	eq(t, must(w.Unput([]byte("post1"), []byte("green"))), false)
	eq(t, must(w.Unput([]byte("post1"), []byte("red"))), true)
	// Removing the last value drops the key entry itself.
	eq(t, must(w.Unput([]byte("post2"), []byte("red"))), true)
	ensure(w.Commit())

	r = must(mt.ReadTransaction())
	eq(t, must(r.Len()), 1)
	eq(t, must(r.Contains([]byte("post2"), []byte("red"))), false)
	var count int
	for range must(r.Get([]byte("post2"))) {
		count++
	}
	eq(t, count, 0)
	r.Close()

	db = reopen(t, db)
	mt = must(db.OpenMultimapTable("tags"))
	r = must(mt.ReadTransaction())
	defer r.Close()
	eq(t, must(r.Len()), 1)
	eq(t, must(r.Contains([]byte("post1"), []byte("blue"))), true)
}

func TestMultimapTryBeginWrite(t *testing.T) {
	db := setup(t)
	mt := must(db.OpenMultimapTable("m"))
	w := must(mt.BeginWrite())
	if _, err := mt.TryBeginWrite(); !errors.Is(err, ErrWriteConflict) {
		t.Errorf("** TryBeginWrite during a write txn = %v, wanted ErrWriteConflict", err)
	}
	w.Abort()
}

func decodeSetStrings(t testing.TB, enc []byte) []string {
	t.Helper()
	vals := must(decodeSet(enc))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, string(v))
	}
	return out
}
