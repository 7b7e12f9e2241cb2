package wire

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedPacket is returned when a decrypted packet's sub-message
// chain is truncated or its checksum does not match.
var ErrMalformedPacket = errors.New("wire: malformed packet")

// SubMessage is one entry of the `type:u8, size:u16, payload` chain
// that follows a session's header inside a decrypted packet.
type SubMessage struct {
	Type    byte
	Payload []byte
}

// EncodeChain appends the wire encoding of msgs to dst.
func EncodeChain(dst []byte, msgs []SubMessage) []byte {
	for _, m := range msgs {
		dst = append(dst, m.Type)
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(m.Payload)))
		dst = append(dst, m.Payload...)
	}
	return dst
}

// DecodeChain parses a sub-message chain out of b. Parsing stops at
// the first exhausted reader or at a 0x00 type byte: real sub-message
// types are all non-zero (see the Type* constants), so a leading zero
// byte can only be the zero-fill padding that brings the packet up to
// the cipher's block boundary, never a legitimate message.
func DecodeChain(b []byte) ([]SubMessage, error) {
	var msgs []SubMessage
	for len(b) > 0 {
		t := b[0]
		if t == 0x00 {
			break
		}
		if len(b) < 3 {
			return nil, ErrMalformedPacket
		}
		size := binary.BigEndian.Uint16(b[1:3])
		b = b[3:]
		if int(size) > len(b) {
			return nil, ErrMalformedPacket
		}
		var payload []byte
		if size > 0 {
			payload = b[:size:size]
		}
		msgs = append(msgs, SubMessage{Type: t, Payload: payload})
		b = b[size:]
	}
	return msgs, nil
}
