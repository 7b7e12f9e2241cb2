package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

var zeroIV [blockSize]byte

// Cipher holds one direction's symmetric key material. Sessions keep
// two: one for encrypting outbound packets, one for decrypting
// inbound ones. The zero value is not usable; construct with NewCipher.
type Cipher struct {
	block cipher.Block
}

// NewCipher builds a Cipher from a 16-byte AES-128 key.
func NewCipher(key [KeySize]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block}, nil
}

// DefaultCipher is the process-wide handshake cipher, keyed from the
// fixed literal every RTMFP implementation shares. It is read-only and
// safe to use concurrently; all handshake-marker (0x0B) packets,
// session id zero, are encrypted and decrypted with it.
var DefaultCipher = mustCipher("Adobe Systems 02")

func mustCipher(literal string) *Cipher {
	var key [KeySize]byte
	copy(key[:], literal)
	c, err := NewCipher(key)
	if err != nil {
		panic(err)
	}
	return c
}

// headerBlockSize is the plaintext prefix reserved for the far session
// id: the full first AES block. Because CBC chaining only lets later
// blocks depend on earlier ones (never the reverse), keeping the
// session id as the entirety of block one and nothing else means that
// block's ciphertext is the same for every packet a given session
// sends — which is what lets ExtractSessionID recover it by folding
// ciphertext bytes alone, before the rest of the packet is decrypted.
const headerBlockSize = blockSize

// ExtractSessionID recovers the far session id directly from the
// ciphertext, without decrypting: because the id occupies the whole
// first plaintext block (see headerBlockSize), that block's ciphertext
// is stable for the life of a session, and folding it with XOR across
// three overlapping 4-byte words reproduces the id the registry needs
// to route the packet to the right session.
func ExtractSessionID(ciphertext []byte) (uint32, error) {
	if len(ciphertext) < 12 {
		return 0, ErrMalformedPacket
	}
	a := binary.LittleEndian.Uint32(ciphertext[0:4])
	b := binary.LittleEndian.Uint32(ciphertext[4:8])
	c := binary.LittleEndian.Uint32(ciphertext[8:12])
	return a ^ b ^ c, nil
}

// Encrypt builds the plaintext header (far session id padded to a full
// block) followed by a checksum and the payload, pads to a block
// boundary, and AES-128-CBC-encrypts the result with a zero IV.
func (c *Cipher) Encrypt(farSessionID uint32, plaintext []byte) []byte {
	body := make([]byte, headerBlockSize+ChecksumSize+len(plaintext))
	binary.LittleEndian.PutUint32(body[0:4], farSessionID)
	copy(body[headerBlockSize+ChecksumSize:], plaintext)
	binary.BigEndian.PutUint16(body[headerBlockSize:headerBlockSize+ChecksumSize], checksum(plaintext))

	padded := padToBlock(body)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, zeroIV[:]).CryptBlocks(out, padded)
	return out
}

// Decrypt verifies and decrypts ciphertext, returning the far session
// id read from the decrypted header block and the plaintext payload
// with its header and checksum stripped.
func (c *Cipher) Decrypt(ciphertext []byte) (sessionID uint32, plaintext []byte, err error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 || len(ciphertext) < headerBlockSize+ChecksumSize {
		return 0, nil, ErrMalformedPacket
	}

	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, zeroIV[:]).CryptBlocks(buf, ciphertext)

	sessionID = binary.LittleEndian.Uint32(buf[0:4])
	checksumStart := headerBlockSize
	want := binary.BigEndian.Uint16(buf[checksumStart : checksumStart+ChecksumSize])
	payload := buf[checksumStart+ChecksumSize:]
	if got := checksum(payload); got != want {
		return 0, nil, ErrMalformedPacket
	}
	return sessionID, payload, nil
}

// padToBlock zero-fills b up to the next AES block boundary. Zero
// bytes can never be mistaken for a real sub-message (see DecodeChain).
func padToBlock(b []byte) []byte {
	rem := len(b) % blockSize
	if rem == 0 {
		return b
	}
	return append(b, make([]byte, blockSize-rem)...)
}
