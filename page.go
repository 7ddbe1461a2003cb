package pagedb

import "encoding/binary"

// pgno is a page number: a stable index into the page array that follows the
// header region. Inter-page references are always page numbers, never
// pointers; page 0 is reserved and doubles as "no page".
type pgno uint64

const (
	pageLeaf     uint16 = 1
	pageBranch   uint16 = 2
	pageFreelist uint16 = 3
	pageOverflow uint16 = 4
)

// Leaf and branch pages share one node layout:
//
//	| type | nkeys |  child ptrs  | cell offsets |  cells  | unused |
//	|  2B  |  2B   |  nkeys × 8B  |  nkeys × 2B  |   ...   |        |
//
// cell = | klen 2B | vlen 4B | key | value payload |
//
// Branch cells carry an empty value; cell i's key is the smallest key of
// child i's subtree. In leaf cells, the high bit of vlen marks a value kept
// in an overflow chain: the payload is then an 8-byte overflow head page
// number and the remaining vlen bits give the full value length.
const (
	nodeHeader = 4
	cellHeader = 6

	overflowFlag  = 1 << 31
	maxValueTotal = overflowFlag - 1
)

type node []byte

func (n node) btype() uint16 {
	return binary.LittleEndian.Uint16(n[0:2])
}

func (n node) nkeys() int {
	return int(binary.LittleEndian.Uint16(n[2:4]))
}

func (n node) setHeader(btype uint16, nkeys int) {
	binary.LittleEndian.PutUint16(n[0:2], btype)
	binary.LittleEndian.PutUint16(n[2:4], uint16(nkeys))
}

func (n node) ptr(i int) pgno {
	pos := nodeHeader + i*8
	return pgno(binary.LittleEndian.Uint64(n[pos:]))
}

func (n node) setPtr(i int, p pgno) {
	pos := nodeHeader + i*8
	binary.LittleEndian.PutUint64(n[pos:], uint64(p))
}

// offset(i) is the position of cell i relative to the start of the cell
// area; offset(nkeys) is the end of the last cell. offset(0) is always zero
// and is not stored.
func (n node) offset(i int) int {
	if i == 0 {
		return 0
	}
	pos := nodeHeader + n.nkeys()*8 + (i-1)*2
	return int(binary.LittleEndian.Uint16(n[pos:]))
}

func (n node) setOffset(i, v int) {
	pos := nodeHeader + n.nkeys()*8 + (i-1)*2
	binary.LittleEndian.PutUint16(n[pos:], uint16(v))
}

func (n node) cellPos(i int) int {
	return nodeHeader + n.nkeys()*10 + n.offset(i)
}

func (n node) key(i int) []byte {
	pos := n.cellPos(i)
	klen := int(binary.LittleEndian.Uint16(n[pos:]))
	return n[pos+cellHeader:][:klen]
}

// vfield returns the raw vlen field of cell i, including the overflow flag.
func (n node) vfield(i int) uint32 {
	pos := n.cellPos(i)
	return binary.LittleEndian.Uint32(n[pos+2:])
}

// payload returns the bytes stored inline in cell i: the value itself, or
// the 8-byte overflow head if the value lives in an overflow chain.
func (n node) payload(i int) []byte {
	pos := n.cellPos(i)
	klen := int(binary.LittleEndian.Uint16(n[pos:]))
	vf := binary.LittleEndian.Uint32(n[pos+2:])
	plen := int(vf)
	if vf&overflowFlag != 0 {
		plen = 8
	}
	return n[pos+cellHeader+klen:][:plen]
}

// nbytes is the used size of the node in bytes.
func (n node) nbytes() int {
	return n.cellPos(n.nkeys())
}

// appendCell writes cell i (and child pointer i) into a node under
// construction. Cells must be appended in order; the function maintains the
// offset of the following cell.
func (n node) appendCell(i int, ptr pgno, key []byte, vf uint32, payload []byte) {
	n.setPtr(i, ptr)
	pos := n.cellPos(i)
	binary.LittleEndian.PutUint16(n[pos:], uint16(len(key)))
	binary.LittleEndian.PutUint32(n[pos+2:], vf)
	copy(n[pos+cellHeader:], key)
	copy(n[pos+cellHeader+len(key):], payload)
	n.setOffset(i+1, n.offset(i)+cellHeader+len(key)+len(payload))
}

// appendRange copies n cells (with their child pointers) from src to dst.
func appendRange(dst, src node, dstStart, srcStart, count int) {
	for i := 0; i < count; i++ {
		d, s := dstStart+i, srcStart+i
		dst.appendCell(d, src.ptr(s), src.key(s), src.vfield(s), src.payload(s))
	}
}
