package session

import (
	"bytes"

	"rtmfp/wire"
)

// StreamKind identifies which application-layer concept a flow's
// signature names.
type StreamKind int

const (
	StreamNetStream StreamKind = iota
	StreamNetConnection
	StreamNetGroupControl
	StreamNetGroupMedia
)

var (
	sigNetStreamPrefix   = []byte{0x00, 0x54, 0x43, 0x04}
	sigNetConnection     = []byte{0x00, 0x54, 0x43, 0x04, 0x00}
	sigNetGroupControl   = []byte{0x00, 0x47, 0x43, 0x01, 0x00}
	sigNetGroupMedia     = []byte{0x00, 0x47, 0x43, 0x02, 0x00}
)

// ParseSignature matches sig against the signatures the core
// recognizes and returns the stream kind plus, for NetStream, the
// decoded stream id carried as a trailing 7-bit varint.
func ParseSignature(sig []byte) (kind StreamKind, streamID uint32, err error) {
	switch {
	case bytes.Equal(sig, sigNetConnection):
		return StreamNetConnection, 0, nil
	case bytes.Equal(sig, sigNetGroupControl):
		return StreamNetGroupControl, 0, nil
	case bytes.Equal(sig, sigNetGroupMedia):
		return StreamNetGroupMedia, 0, nil
	case len(sig) > len(sigNetStreamPrefix) && bytes.Equal(sig[:len(sigNetStreamPrefix)], sigNetStreamPrefix):
		id, n, verr := wire.ReadVarint32(sig[len(sigNetStreamPrefix):])
		if verr != nil || n != len(sig)-len(sigNetStreamPrefix) {
			return 0, 0, ErrUnknownSignature
		}
		return StreamNetStream, id, nil
	default:
		return 0, 0, ErrUnknownSignature
	}
}

// EncodeNetStreamSignature builds the signature for a NetStream flow
// carrying streamID.
func EncodeNetStreamSignature(streamID uint32) []byte {
	return wire.AppendVarint(append([]byte(nil), sigNetStreamPrefix...), uint64(streamID))
}

// NetConnectionSignature, NetGroupControlSignature and
// NetGroupMediaSignature are the fixed signatures for flows carrying
// those stream kinds (NetStream additionally needs a stream id, see
// EncodeNetStreamSignature).
func NetConnectionSignature() []byte   { return append([]byte(nil), sigNetConnection...) }
func NetGroupControlSignature() []byte { return append([]byte(nil), sigNetGroupControl...) }
func NetGroupMediaSignature() []byte   { return append([]byte(nil), sigNetGroupMedia...) }
