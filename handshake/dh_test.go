package handshake

import (
	"bytes"
	"testing"
)

func TestDHSharedSecretAgreement(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	s1, err := a.SharedSecret(b.Public)
	if err != nil {
		t.Fatalf("a.SharedSecret: %v", err)
	}
	s2, err := b.SharedSecret(a.Public)
	if err != nil {
		t.Fatalf("b.SharedSecret: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatal("shared secrets do not agree")
	}
	if len(s1) != PublicKeySize {
		t.Fatalf("shared secret length = %d, want %d", len(s1), PublicKeySize)
	}
}

func TestDHRejectsOutOfRangePublicKey(t *testing.T) {
	a, _ := GenerateKeyPair()
	if _, err := a.SharedSecret([]byte{0}); err != ErrInvalidPublicKey {
		t.Fatalf("expected ErrInvalidPublicKey for zero key, got %v", err)
	}
}

func TestPeerIDDeterministic(t *testing.T) {
	kp, _ := GenerateKeyPair()
	id1 := PeerID(kp.Public)
	id2 := PeerID(kp.Public)
	if id1 != id2 {
		t.Fatal("PeerID not deterministic")
	}
}
