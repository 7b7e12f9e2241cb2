package session

import "testing"

func TestParseSignatureKinds(t *testing.T) {
	cases := []struct {
		sig      []byte
		wantKind StreamKind
		wantID   uint32
	}{
		{NetConnectionSignature(), StreamNetConnection, 0},
		{NetGroupControlSignature(), StreamNetGroupControl, 0},
		{NetGroupMediaSignature(), StreamNetGroupMedia, 0},
		{EncodeNetStreamSignature(5), StreamNetStream, 5},
		{EncodeNetStreamSignature(300), StreamNetStream, 300},
	}
	for _, c := range cases {
		kind, id, err := ParseSignature(c.sig)
		if err != nil {
			t.Fatalf("ParseSignature(%x): %v", c.sig, err)
		}
		if kind != c.wantKind || id != c.wantID {
			t.Fatalf("ParseSignature(%x) = (%v, %d), want (%v, %d)", c.sig, kind, id, c.wantKind, c.wantID)
		}
	}
}

func TestParseSignatureUnknown(t *testing.T) {
	if _, _, err := ParseSignature([]byte{0x01, 0x02, 0x03}); err != ErrUnknownSignature {
		t.Fatalf("expected ErrUnknownSignature, got %v", err)
	}
}
