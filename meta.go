package pagedb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// The file starts with a fixed 4 KiB header region holding two alternating
// superblock slots. A commit writes the inactive slot and syncs; the slot
// with the higher valid transaction id is the one future opens trust, so a
// crash mid-commit only ever corrupts the slot nobody relies on.
//
// Superblock slot:
//
//	| magic 4B | version 4B | pageSize 4B | pad 4B |
//	| txid 8B | root 8B | freelist 8B | npages 8B | checksum 8B |
const (
	magic   uint32 = 0x50414745 // "PAGE"
	version uint32 = 1

	headerSize = 4096
	slotSize   = 56
	slot0Off   = 0
	slot1Off   = headerSize / 2
)

type meta struct {
	pageSize uint32
	txid     uint64
	root     pgno // master-table root, 0 when empty
	freelist pgno // free-list chain head, 0 when empty
	npages   pgno // high-water mark: first never-allocated page
}

func (m *meta) write(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], magic)
	binary.LittleEndian.PutUint32(buf[4:], version)
	binary.LittleEndian.PutUint32(buf[8:], m.pageSize)
	binary.LittleEndian.PutUint32(buf[12:], 0)
	binary.LittleEndian.PutUint64(buf[16:], m.txid)
	binary.LittleEndian.PutUint64(buf[24:], uint64(m.root))
	binary.LittleEndian.PutUint64(buf[32:], uint64(m.freelist))
	binary.LittleEndian.PutUint64(buf[40:], uint64(m.npages))
	binary.LittleEndian.PutUint64(buf[48:], xxhash.Sum64(buf[:48]))
}

// readMeta decodes and validates one superblock slot. A nil result with a
// nil error means the slot has never been written (all zeroes).
func readMeta(buf []byte) (*meta, error) {
	if binary.LittleEndian.Uint32(buf[0:]) != magic {
		for _, b := range buf[:slotSize] {
			if b != 0 {
				return nil, corruptf(0, "bad superblock magic")
			}
		}
		return nil, nil
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != version {
		return nil, corruptf(0, "unsupported format version %d", v)
	}
	if sum := binary.LittleEndian.Uint64(buf[48:]); sum != xxhash.Sum64(buf[:48]) {
		return nil, corruptf(0, "superblock checksum mismatch")
	}
	m := &meta{
		pageSize: binary.LittleEndian.Uint32(buf[8:]),
		txid:     binary.LittleEndian.Uint64(buf[16:]),
		root:     pgno(binary.LittleEndian.Uint64(buf[24:])),
		freelist: pgno(binary.LittleEndian.Uint64(buf[32:])),
		npages:   pgno(binary.LittleEndian.Uint64(buf[40:])),
	}
	if !isPowerOfTwo(int(m.pageSize)) || m.pageSize < minPageSize || m.pageSize > maxPageSize {
		return nil, corruptf(0, "implausible page size %d", m.pageSize)
	}
	return m, nil
}

// readActiveMeta picks the superblock future opens will trust: the valid
// slot with the higher transaction id. A nil meta with a nil error means
// both slots are blank (a fresh file); an error means at least one slot is
// damaged and no valid slot remains.
func readActiveMeta(header []byte) (m *meta, slot int, err error) {
	m0, err0 := readMeta(header[slot0Off:])
	m1, err1 := readMeta(header[slot1Off:])
	switch {
	case m0 != nil && m1 != nil:
		if m1.txid > m0.txid {
			return m1, 1, nil
		}
		return m0, 0, nil
	case m0 != nil:
		return m0, 0, nil
	case m1 != nil:
		return m1, 1, nil
	case err0 != nil:
		return nil, 0, err0
	case err1 != nil:
		return nil, 0, err1
	default:
		return nil, 0, nil
	}
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
