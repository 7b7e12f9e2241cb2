package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
)

// dhPrime1024 is the RFC 2409 (Oakley) group 2 1024-bit MODP prime,
// generator 2 — the fixed Diffie-Hellman group every RTMFP peer uses.
// Copied byte-for-byte from the reference implementation so key
// agreement interoperates with deployed peers.
var dhPrime1024 = new(big.Int).SetBytes([]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xC9, 0x0F, 0xDA, 0xA2, 0x21, 0x68, 0xC2, 0x34,
	0xC4, 0xC6, 0x62, 0x8B, 0x80, 0xDC, 0x1C, 0xD1,
	0x29, 0x02, 0x4E, 0x08, 0x8A, 0x67, 0xCC, 0x74,
	0x02, 0x0B, 0xBE, 0xA6, 0x3B, 0x13, 0x9B, 0x22,
	0x51, 0x4A, 0x08, 0x79, 0x8E, 0x34, 0x04, 0xDD,
	0xEF, 0x95, 0x19, 0xB3, 0xCD, 0x3A, 0x43, 0x1B,
	0x30, 0x2B, 0x0A, 0x6D, 0xF2, 0x5F, 0x14, 0x37,
	0x4F, 0xE1, 0x35, 0x6D, 0x6D, 0x51, 0xC2, 0x45,
	0xE4, 0x85, 0xB5, 0x76, 0x62, 0x5E, 0x7E, 0xC6,
	0xF4, 0x4C, 0x42, 0xE9, 0xA6, 0x37, 0xED, 0x6B,
	0x0B, 0xFF, 0x5C, 0xB6, 0xF4, 0x06, 0xB7, 0xED,
	0xEE, 0x38, 0x6B, 0xFB, 0x5A, 0x89, 0x9F, 0xA5,
	0xAE, 0x9F, 0x24, 0x11, 0x7C, 0x4B, 0x1F, 0xE6,
	0x49, 0x28, 0x66, 0x51, 0xEC, 0xE6, 0x53, 0x81,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
})

var dhGenerator = big.NewInt(2)

// PublicKeySize is the byte length DH public keys are serialized to on
// the wire (the 1024-bit MODP group's modulus size).
const PublicKeySize = 128

// ErrInvalidPublicKey is returned when a peer's DH public key is
// out of range (zero, or not reduced modulo the group prime).
var ErrInvalidPublicKey = errors.New("handshake: invalid dh public key")

// DHKeyPair is a Diffie-Hellman key pair in the classic RFC 2409
// group-2 MODP group. Unlike curve25519, there is no fixed key size
// for the private exponent; the public value is always serialized to
// PublicKeySize bytes, zero-padded on the left.
type DHKeyPair struct {
	private *big.Int
	Public  []byte // PublicKeySize bytes, big-endian
}

// GenerateKeyPair creates a new random DH key pair in the group-2
// MODP group.
func GenerateKeyPair() (*DHKeyPair, error) {
	// A private exponent the size of the group modulus is generous but
	// matches the reference implementation, which lets OpenSSL pick the
	// exponent length; this keeps the discrete-log problem as hard as
	// the group allows.
	priv, err := rand.Int(rand.Reader, dhPrime1024)
	if err != nil {
		return nil, err
	}
	pub := new(big.Int).Exp(dhGenerator, priv, dhPrime1024)
	return &DHKeyPair{private: priv, Public: toFixedBytes(pub, PublicKeySize)}, nil
}

// SharedSecret computes the DH shared secret with a peer's public key,
// serialized to PublicKeySize bytes, big-endian, zero-padded.
func (kp *DHKeyPair) SharedSecret(farPublic []byte) ([]byte, error) {
	far := new(big.Int).SetBytes(farPublic)
	if far.Sign() <= 0 || far.Cmp(dhPrime1024) >= 0 {
		return nil, ErrInvalidPublicKey
	}
	shared := new(big.Int).Exp(far, kp.private, dhPrime1024)
	return toFixedBytes(shared, PublicKeySize), nil
}

func toFixedBytes(v *big.Int, size int) []byte {
	b := v.Bytes()
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// PeerID is the SHA-256 digest of a peer's DH public key, the 32-byte
// identifier used to address peers and groups.
func PeerID(dhPublicKey []byte) [32]byte {
	return sha256.Sum256(dhPublicKey)
}
