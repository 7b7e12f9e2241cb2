package wire

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 1 << 32, 1 << 48, ^uint64(0)}
	for _, v := range values {
		enc := AppendVarint(nil, v)
		got, n, err := ReadVarint(enc)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip mismatch: got %d want %d", got, v)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d bytes, expected %d", n, len(enc))
		}
		if n != VarintLen(v) {
			t.Fatalf("VarintLen(%d)=%d, encoder used %d", v, VarintLen(v), n)
		}
	}
}

func TestReadVarintTruncated(t *testing.T) {
	enc := AppendVarint(nil, 1<<20)
	_, _, err := ReadVarint(enc[:len(enc)-1])
	if err != ErrVarintTruncated {
		t.Fatalf("expected ErrVarintTruncated, got %v", err)
	}
}

func TestReadVarint32RejectsOverflow(t *testing.T) {
	enc := AppendVarint(nil, 1<<40)
	if _, _, err := ReadVarint32(enc); err != ErrVarintOverflow {
		t.Fatalf("expected ErrVarintOverflow, got %v", err)
	}
}
