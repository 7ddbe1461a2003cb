package pagedb

import "bytes"

// A multimap leaf value is the whole value set of one key, encoded as
// length-prefixed byte strings sorted by byte order with no duplicates.
// Sets ride the regular value path, so a large set spills to an overflow
// chain like any other value.

func encodeSetSingle(val []byte) []byte {
	return appendVarbytes(nil, val)
}

// decodeSet splits an encoded set into its member values.
func decodeSet(enc []byte) ([][]byte, error) {
	var vals [][]byte
	d := makeByteDecoder(enc)
	for !d.Empty() {
		v, err := d.VarBytes()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func setCount(enc []byte) (int, error) {
	var n int
	d := makeByteDecoder(enc)
	for !d.Empty() {
		if _, err := d.VarBytes(); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// setInsert returns the set with val added at its sorted position, or
// added=false when the value is already present.
func setInsert(enc, val []byte) (out []byte, added bool, err error) {
	out = make([]byte, 0, len(enc)+len(val)+2)
	d := makeByteDecoder(enc)
	for !d.Empty() {
		v, err := d.VarBytes()
		if err != nil {
			return nil, false, err
		}
		if !added {
			switch bytes.Compare(v, val) {
			case 0:
				return nil, false, nil
			case 1:
				out = appendVarbytes(out, val)
				added = true
			}
		}
		out = appendVarbytes(out, v)
	}
	if !added {
		out = appendVarbytes(out, val)
	}
	return out, true, nil
}

// setRemove returns the set without val, or removed=false when the value
// was not present. An empty result means the key itself must go.
func setRemove(enc, val []byte) (out []byte, removed bool, err error) {
	out = make([]byte, 0, len(enc))
	d := makeByteDecoder(enc)
	for !d.Empty() {
		v, err := d.VarBytes()
		if err != nil {
			return nil, false, err
		}
		if !removed && bytes.Equal(v, val) {
			removed = true
			continue
		}
		out = appendVarbytes(out, v)
	}
	if !removed {
		return nil, false, nil
	}
	return out, true, nil
}

func setContains(enc, val []byte) (bool, error) {
	d := makeByteDecoder(enc)
	for !d.Empty() {
		v, err := d.VarBytes()
		if err != nil {
			return false, err
		}
		switch bytes.Compare(v, val) {
		case 0:
			return true, nil
		case 1:
			return false, nil
		}
	}
	return false, nil
}
