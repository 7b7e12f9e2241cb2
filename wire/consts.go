// Package wire implements the RTMFP packet codec: the AES-128-CBC
// cipher contexts that encrypt and decrypt UDP datagrams, the far
// session id extraction used to demultiplex them, and the sub-message
// chain framing carried inside a decrypted packet.
package wire

const (
	// MaxPayloadSize is the largest plaintext payload that fits in one
	// UDP datagram before encryption, assuming a 1280-byte MTU path.
	MaxPayloadSize = 1192

	// KeySize is the AES-128 key length in bytes.
	KeySize = 16

	// blockSize is the AES block size; packets are padded to this boundary.
	blockSize = 16

	// ChecksumSize is the size of the integrity checksum trailer.
	ChecksumSize = 2
)

// Marker bytes identify the packet kind once decrypted.
const (
	MarkerHandshake byte = 0x0B // handshake exchange (session id 0)
	MarkerAMF       byte = 0x89 // established session, AMF payload
	MarkerRaw       byte = 0x09 // established session, raw payload
	MarkerWithEcho  byte = 0x4A // established session, carries echo-time
)

// Sub-message types recognized inside a decrypted packet.
const (
	TypeKeepAlive      byte = 0x01
	TypeKeepAliveEcho  byte = 0x41
	TypeReliable       byte = 0x10
	TypeReliableCont   byte = 0x11
	TypeAck            byte = 0x51
	TypeNack           byte = 0x18
	TypeFailure        byte = 0x0C
	TypeAddressExchg   byte = 0x0F
	TypePeerClose      byte = 0x4C
	TypeWriterFailure  byte = 0x5E
	TypeDiagnostic     byte = 0xCC
)

// Handshake step markers.
const (
	Handshake30 byte = 0x30
	Handshake70 byte = 0x70
	Handshake71 byte = 0x71
	Handshake38 byte = 0x38
	Handshake78 byte = 0x78
)

// Flow message header flags.
const (
	FlagHeader     byte = 0x80 // signature/fullduplex header is present
	FlagWithBefore byte = 0x02 // fragment continues a prior one
	FlagWithAfter  byte = 0x01 // fragment continues into the next one
	FlagAbandon    byte = 0x04
	FlagEnd        byte = 0x08
)

// FLVHeader is the literal FLV container prologue every fresh media
// read begins with.
var FLVHeader = [13]byte{
	'F', 'L', 'V', 0x01,
	0x05, // 0x04 == audio, 0x01 == video
	0x00, 0x00, 0x00, 0x09,
	0x00, 0x00, 0x00, 0x00,
}
