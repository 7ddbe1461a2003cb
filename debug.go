package pagedb

import (
	"fmt"
	"strings"
)

// Dump renders the database contents and structure for operator
// inspection. The exact text has no stability contract.

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpPages

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

func (db *DB) Dump(f DumpFlags) string {
	pin, err := db.beginRead()
	if err != nil {
		return fmt.Sprintf("DUMP FAILED: %v", err)
	}
	defer db.endRead(pin)

	var buf strings.Builder
	s := db.store

	if f.Contains(DumpStats) {
		db.mu.Lock()
		fmt.Fprintf(&buf, "txn %d, master root %d, %d+%d free pages, high water %d of %d\n",
			pin.txid, pin.root, len(s.free), s.pendingCount(), s.next-s.first, s.limit-s.first)
		db.mu.Unlock()
	}
	if f.Contains(DumpPages) {
		fmt.Fprintln(&buf, dumpSep2)
		fmt.Fprintln(&buf, "master:")
		db.dumpPages(&buf, indentStep, pin.root)
	}

	c, err := newCursor(s, pin.root)
	if err != nil {
		fmt.Fprintf(&buf, "MASTER TABLE DAMAGED: %v\n", err)
		return buf.String()
	}
	for c.valid() {
		name := c.key()
		v, err := c.value()
		if err != nil {
			fmt.Fprintf(&buf, "%s: DAMAGED: %v\n", name, err)
			return buf.String()
		}
		d, err := decodeDescriptor(v)
		if err != nil {
			fmt.Fprintf(&buf, "%s: DAMAGED: %v\n", name, err)
			return buf.String()
		}
		db.dumpTable(&buf, f, string(name), d)
		if err := c.next(); err != nil {
			fmt.Fprintf(&buf, "MASTER TABLE DAMAGED: %v\n", err)
			break
		}
	}
	return buf.String()
}

func (db *DB) dumpTable(buf *strings.Builder, f DumpFlags, name string, d tableDescriptor) {
	s := db.store
	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(buf, dumpSep1)
		fmt.Fprintf(buf, "%s (%v, id %d, root %d)\n", name, d.Type, d.ID, d.Root)
	}
	if f.Contains(DumpRows) {
		var rowPos int
		for k, v := range iterTree(s, pgno(d.Root)) {
			rowPos++
			if d.Type == tableMultimap {
				vals, err := decodeSet(v)
				if err != nil {
					fmt.Fprintf(buf, "%s[%d] %s = DAMAGED: %v\n", name, rowPos, hexstr(k), err)
					continue
				}
				for _, mv := range vals {
					fmt.Fprintf(buf, "%s[%d] %s += %s\n", name, rowPos, hexstr(k), hexstr(mv))
				}
			} else {
				fmt.Fprintf(buf, "%s[%d] %s = %s\n", name, rowPos, hexstr(k), hexstr(v))
			}
		}
	}
	if f.Contains(DumpPages) {
		fmt.Fprintln(buf, dumpSep2)
		db.dumpPages(buf, indentStep, pgno(d.Root))
	}
}

func (db *DB) dumpPages(buf *strings.Builder, indent string, root pgno) {
	if root == 0 {
		fmt.Fprintf(buf, "%s<empty>\n", indent)
		return
	}
	s := db.store
	err := walkTree(s, root, 1, func(p pgno, n node, depth int) error {
		pad := strings.Repeat(indentStep, depth-1)
		switch n.btype() {
		case pageLeaf:
			fmt.Fprintf(buf, "%s%sleaf %d: %d cells, %d bytes\n", indent, pad, p, n.nkeys(), n.nbytes())
		case pageBranch:
			fmt.Fprintf(buf, "%s%sbranch %d: %d children, %d bytes\n", indent, pad, p, n.nkeys(), n.nbytes())
		default:
			return corruptf(p, "unexpected page type %d in tree", n.btype())
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(buf, "%sDAMAGED: %v\n", indent, err)
	}
}
