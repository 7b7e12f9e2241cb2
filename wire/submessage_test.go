package wire

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeChainRoundTrip(t *testing.T) {
	msgs := []SubMessage{
		{Type: TypeKeepAlive, Payload: nil},
		{Type: TypeAck, Payload: []byte{1, 2, 3, 4}},
		{Type: TypeReliable, Payload: []byte("flow payload")},
	}

	enc := EncodeChain(nil, msgs)
	dec, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("DecodeChain: %v", err)
	}
	if !reflect.DeepEqual(dec, msgs) {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", dec, msgs)
	}
}

func TestDecodeChainStopsAtZeroPadding(t *testing.T) {
	enc := EncodeChain(nil, []SubMessage{{Type: TypeKeepAlive, Payload: []byte{9}}})
	enc = append(enc, 0, 0, 0, 0)

	dec, err := DecodeChain(enc)
	if err != nil {
		t.Fatalf("DecodeChain: %v", err)
	}
	if len(dec) != 1 {
		t.Fatalf("expected 1 message, got %d", len(dec))
	}
}

func TestDecodeChainTruncated(t *testing.T) {
	if _, err := DecodeChain([]byte{TypeAck, 0x00}); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
	if _, err := DecodeChain([]byte{TypeAck, 0x00, 0x05, 1, 2}); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket for short payload, got %v", err)
	}
}
