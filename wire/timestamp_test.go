package wire

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Now()
	want := Timestamp(now)

	var buf []byte
	buf = AppendTimestamp(buf, want)
	if len(buf) != 2 {
		t.Fatalf("expected 2-byte timestamp, got %d", len(buf))
	}

	got, rest, err := ReadTimestamp(buf)
	if err != nil {
		t.Fatalf("ReadTimestamp: %v", err)
	}
	if got != want {
		t.Fatalf("timestamp mismatch: got %d want %d", got, want)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
}

func TestReadTimestampTruncated(t *testing.T) {
	if _, _, err := ReadTimestamp([]byte{0x01}); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}
