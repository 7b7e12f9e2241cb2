package wire

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], "0123456789abcdef")
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	plaintext := []byte("hello rtmfp session payload")
	ct := c.Encrypt(42, plaintext)

	if len(ct)%blockSize != 0 {
		t.Fatalf("ciphertext length %d not block-aligned", len(ct))
	}

	sessionID, pt, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if sessionID != 42 {
		t.Fatalf("session id mismatch: got %d want 42", sessionID)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestDecryptRejectsCorruptChecksum(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], "0123456789abcdef")
	c, _ := NewCipher(key)

	ct := c.Encrypt(1, []byte("payload"))
	ct[len(ct)-1] ^= 0xFF

	if _, _, err := c.Decrypt(ct); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}

func TestExtractSessionIDMatchesDecrypt(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], "0123456789abcdef")
	c, _ := NewCipher(key)

	ct := c.Encrypt(0xCAFEBABE, []byte("some payload long enough"))

	want, err := ExtractSessionID(ct)
	if err != nil {
		t.Fatalf("ExtractSessionID: %v", err)
	}
	got, _, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != want {
		t.Fatalf("session id mismatch: extract=%d decrypt=%d", want, got)
	}
	if got != 0xCAFEBABE {
		t.Fatalf("session id mismatch: got %x want 0xCAFEBABE", got)
	}
}

func TestExtractSessionIDStableAcrossPackets(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], "fedcba9876543210")
	c, _ := NewCipher(key)

	ct1 := c.Encrypt(7, []byte("first packet"))
	ct2 := c.Encrypt(7, []byte("a very different second packet payload"))

	id1, err := ExtractSessionID(ct1)
	if err != nil {
		t.Fatalf("ExtractSessionID(ct1): %v", err)
	}
	id2, err := ExtractSessionID(ct2)
	if err != nil {
		t.Fatalf("ExtractSessionID(ct2): %v", err)
	}
	if id1 != id2 || id1 != 7 {
		t.Fatalf("session id not stable across packets: %d vs %d", id1, id2)
	}
}

func TestExtractSessionIDTooShort(t *testing.T) {
	if _, err := ExtractSessionID([]byte{1, 2, 3}); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}

func TestDefaultCipherKey(t *testing.T) {
	if DefaultCipher == nil {
		t.Fatal("DefaultCipher not initialized")
	}
	pt := []byte("handshake probe")
	ct := DefaultCipher.Encrypt(0, pt)
	_, got, err := DefaultCipher.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}
