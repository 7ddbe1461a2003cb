package pagedb

import (
	"errors"
	"testing"
)

func TestVarbytesRoundtrip(t *testing.T) {
	var buf []byte
	buf = appendVarbytes(buf, []byte("hello"))
	buf = appendVarbytes(buf, nil)
	buf = appendVarbytes(buf, []byte("world"))

	d := makeByteDecoder(buf)
	eqBytes(t, must(d.VarBytes()), []byte("hello"))
	v := must(d.VarBytes())
	eq(t, len(v), 0)
	eqBytes(t, must(d.VarBytes()), []byte("world"))
	eq(t, d.Empty(), true)
	eq(t, d.Off(), len(buf))
}

func TestByteDecoderErrors(t *testing.T) {
	d := makeByteDecoder([]byte{0x80}) // truncated uvarint
	if _, err := d.Uvarint(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** truncated uvarint = %v, wanted ErrCorrupted", err)
	}

	d = makeByteDecoder([]byte{10, 'a', 'b'}) // length exceeds the data
	if _, err := d.VarBytes(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** overlong varbytes = %v, wanted ErrCorrupted", err)
	}

	d = makeByteDecoder([]byte{1, 2, 3})
	must(d.Raw(2))
	if _, err := d.Raw(2); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** short read = %v, wanted ErrCorrupted", err)
	}
}

func TestEnsureCapacity(t *testing.T) {
	buf := make([]byte, 3, 4)
	copy(buf, "abc")
	out := ensureCapacity(buf, 100)
	if cap(out) < 100 {
		t.Errorf("** cap = %d, wanted >= 100", cap(out))
	}
	eqBytes(t, out, []byte("abc"))

	same := ensureCapacity(buf, 4)
	eq(t, cap(same), 4)
}

func TestHexstr(t *testing.T) {
	eq(t, hexstr(nil), "<nil>")
	eq(t, hexstr([]byte{}), "<empty>")
	eq(t, hexstr([]byte{0xDE, 0xAD}), "dead")
}
