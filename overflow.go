package pagedb

import "encoding/binary"

// Values too large to keep inline in a leaf live in an overflow chain and
// follow the same copy-on-write lifecycle as tree pages: replacing or
// deleting the value frees the whole chain.
//
// Overflow page:
//
//	| type 2B | pad 2B | used 4B | next 8B | data ... |
const ovfHeader = 16

func overflowHead(payload []byte) pgno {
	return pgno(binary.LittleEndian.Uint64(payload))
}

// makeValue prepares the leaf cell representation of a value: the value
// itself when it fits the inline budget, or a flagged overflow head.
func (w *treeWriter) makeValue(val []byte) (uint32, []byte, error) {
	if len(val) <= w.tx.db.store.maxInlineValue() {
		return uint32(len(val)), val, nil
	}
	head, err := w.writeOverflow(val)
	if err != nil {
		return 0, nil, err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(head))
	return overflowFlag | uint32(len(val)), payload[:], nil
}

func (w *treeWriter) writeOverflow(val []byte) (pgno, error) {
	ps := w.tx.pageSize()
	chunk := ps - ovfHeader
	var head, prev pgno
	for off := 0; off < len(val); off += chunk {
		p, err := w.tx.allocPage()
		if err != nil {
			return 0, err
		}
		end := off + chunk
		if end > len(val) {
			end = len(val)
		}
		buf := w.tx.page(p)
		binary.LittleEndian.PutUint16(buf[0:], pageOverflow)
		binary.LittleEndian.PutUint16(buf[2:], 0)
		binary.LittleEndian.PutUint32(buf[4:], uint32(end-off))
		binary.LittleEndian.PutUint64(buf[8:], 0)
		copy(buf[ovfHeader:], val[off:end])
		if prev != 0 {
			// prev is always a page of this transaction, safe to patch.
			binary.LittleEndian.PutUint64(w.tx.page(prev)[8:], uint64(p))
		} else {
			head = p
		}
		prev = p
	}
	return head, nil
}

func (w *treeWriter) freeOverflow(head pgno) error {
	s := w.tx.db.store
	var steps int
	for p := head; p != 0; {
		buf := s.page(p)
		if binary.LittleEndian.Uint16(buf[0:]) != pageOverflow {
			return corruptf(p, "overflow chain reaches a non-overflow page")
		}
		next := pgno(binary.LittleEndian.Uint64(buf[8:]))
		w.tx.free(p)
		p = next
		if steps++; steps > int(s.limit) {
			return corruptf(head, "overflow chain cycle")
		}
	}
	return nil
}

// readOverflow materializes an overflow value into a fresh buffer.
func readOverflow(s *pageStore, head pgno, total int) ([]byte, error) {
	out := make([]byte, 0, total)
	var steps int
	for p := head; p != 0; {
		buf := s.page(p)
		if binary.LittleEndian.Uint16(buf[0:]) != pageOverflow {
			return nil, corruptf(p, "overflow chain reaches a non-overflow page")
		}
		used := int(binary.LittleEndian.Uint32(buf[4:]))
		if used > s.pageSize-ovfHeader {
			return nil, corruptf(p, "overflow page claims %d used bytes", used)
		}
		out = append(out, buf[ovfHeader:ovfHeader+used]...)
		p = pgno(binary.LittleEndian.Uint64(buf[8:]))
		if steps++; steps > int(s.limit) {
			return nil, corruptf(head, "overflow chain cycle")
		}
	}
	if len(out) != total {
		return nil, corruptf(head, "overflow chain holds %d bytes, cell claims %d", len(out), total)
	}
	return out, nil
}

// resolveValue returns the full value of leaf cell i, following the
// overflow chain when needed. Inline values alias the mapped region.
func resolveValue(s *pageStore, n node, i int) ([]byte, error) {
	vf := n.vfield(i)
	if vf&overflowFlag == 0 {
		return n.payload(i), nil
	}
	return readOverflow(s, overflowHead(n.payload(i)), int(vf&^uint32(overflowFlag)))
}
