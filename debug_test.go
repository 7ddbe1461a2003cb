package pagedb

import (
	"strings"
	"testing"
)

func TestDumpFlags(t *testing.T) {
	eq(t, DumpAll.Contains(DumpRows), true)
	eq(t, DumpRows.Contains(DumpStats), false)
	eq(t, (DumpRows | DumpStats).Contains(DumpStats), true)
}

func TestDump(t *testing.T) {
	db := setup(t)
	tbl := must(db.OpenTable("things"))
	w := must(tbl.BeginWrite())
	ensure(w.Insert([]byte("k1"), []byte("v1")))
	ensure(w.Commit())

	mt := must(db.OpenMultimapTable("labels"))
	mw := must(mt.BeginWrite())
	ensure(mw.Put([]byte("k2"), []byte("a")))
	ensure(mw.Put([]byte("k2"), []byte("b")))
	ensure(mw.Commit())

	out := db.Dump(DumpAll)
	for _, want := range []string{
		"things",
		"labels",
		"6b31 = 7631", // k1 = v1
		"6b32 += 61",  // k2 += a
		"txn ",
		"leaf ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("** dump lacks %q:\n%s", want, out)
		}
	}

	rows := db.Dump(DumpRows)
	if strings.Contains(rows, "txn ") || strings.Contains(rows, "leaf ") {
		t.Errorf("** DumpRows leaked stats or pages:\n%s", rows)
	}
}

func TestStats(t *testing.T) {
	db := setup(t)
	tbl := must(db.OpenTable("a"))
	must(db.OpenMultimapTable("b"))
	w := must(tbl.BeginWrite())
	for i := 0; i < 500; i++ {
		ensure(w.Insert([]byte{byte(i >> 8), byte(i)}, []byte("some value here")))
	}
	ensure(w.Commit())

	st := must(db.Stats())
	eq(t, st.Tables, 1)
	eq(t, st.MultimapTables, 1)
	eq(t, st.PageSize, defaultPageSize)
	eq(t, st.UsedPages+st.FreePages, st.TotalPages)
	if st.LeafPages < 2 || st.TreeHeight < 2 {
		t.Errorf("** implausible shape: %+v", st)
	}
	if st.UsedPages < st.LeafPages+st.BranchPages {
		t.Errorf("** used pages %d below tree pages %d", st.UsedPages, st.LeafPages+st.BranchPages)
	}
}
