package handshake

import (
	"encoding/binary"
	"net"

	"rtmfp/wire"
)

// Message30 is the initiator's opening probe: an endpoint discriminator
// (the URL or peer id being dialed) and a random tag the responder
// must echo back unchanged in its 70.
type Message30 struct {
	EPD []byte
	Tag [TagSize]byte
}

func (m Message30) Encode() []byte {
	var b []byte
	b = wire.AppendVarint(b, uint64(len(m.EPD)))
	b = append(b, m.EPD...)
	b = append(b, m.Tag[:]...)
	return b
}

func DecodeMessage30(b []byte) (Message30, error) {
	n, consumed, err := wire.ReadVarint(b)
	if err != nil {
		return Message30{}, ErrMalformedMessage
	}
	b = b[consumed:]
	if uint64(len(b)) < n+TagSize {
		return Message30{}, ErrMalformedMessage
	}
	var m Message30
	m.EPD = append([]byte(nil), b[:n]...)
	copy(m.Tag[:], b[n:n+TagSize])
	return m, nil
}

// Message70 is the responder's challenge: the echoed tag, a fresh
// cookie the initiator must carry in its 38, and the responder's DH
// public key.
type Message70 struct {
	Tag          [TagSize]byte
	Cookie       []byte
	ResponderKey []byte
}

func (m Message70) Encode() []byte {
	var b []byte
	b = append(b, m.Tag[:]...)
	b = wire.AppendVarint(b, uint64(len(m.Cookie)))
	b = append(b, m.Cookie...)
	b = wire.AppendVarint(b, uint64(len(m.ResponderKey)))
	b = append(b, m.ResponderKey...)
	return b
}

func DecodeMessage70(b []byte) (Message70, error) {
	if len(b) < TagSize {
		return Message70{}, ErrMalformedMessage
	}
	var m Message70
	copy(m.Tag[:], b[:TagSize])
	b = b[TagSize:]

	cookieLen, n, err := wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < cookieLen {
		return Message70{}, ErrMalformedMessage
	}
	b = b[n:]
	m.Cookie = append([]byte(nil), b[:cookieLen]...)
	b = b[cookieLen:]

	keyLen, n, err := wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < keyLen {
		return Message70{}, ErrMalformedMessage
	}
	b = b[n:]
	m.ResponderKey = append([]byte(nil), b[:keyLen]...)
	return m, nil
}

// Message38 is the initiator's key commit: the cookie from 70, the
// initiator's own DH public key, its nonce, and its own freshly
// assigned local session id. That last field is an extension beyond
// the wire protocol's minimal 38 (see DESIGN.md): the responder has no
// other way to learn what id value the initiator will stamp on the
// packets it sends, and the registry's inbound dispatch depends on
// every session knowing that value before the handshake completes.
type Message38 struct {
	Cookie             []byte
	InitiatorKey       []byte
	InitiatorNonce     []byte
	InitiatorSessionID uint32
}

func (m Message38) Encode() []byte {
	var b []byte
	b = wire.AppendVarint(b, uint64(len(m.Cookie)))
	b = append(b, m.Cookie...)
	b = wire.AppendVarint(b, uint64(len(m.InitiatorKey)))
	b = append(b, m.InitiatorKey...)
	b = wire.AppendVarint(b, uint64(len(m.InitiatorNonce)))
	b = append(b, m.InitiatorNonce...)
	b = binary.BigEndian.AppendUint32(b, m.InitiatorSessionID)
	return b
}

func DecodeMessage38(b []byte) (Message38, error) {
	var m Message38
	var n int
	var err error
	var l uint64

	l, n, err = wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < l {
		return Message38{}, ErrMalformedMessage
	}
	b = b[n:]
	m.Cookie = append([]byte(nil), b[:l]...)
	b = b[l:]

	l, n, err = wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < l {
		return Message38{}, ErrMalformedMessage
	}
	b = b[n:]
	m.InitiatorKey = append([]byte(nil), b[:l]...)
	b = b[l:]

	l, n, err = wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < l {
		return Message38{}, ErrMalformedMessage
	}
	b = b[n:]
	m.InitiatorNonce = append([]byte(nil), b[:l]...)
	b = b[l:]

	if len(b) < 4 {
		return Message38{}, ErrMalformedMessage
	}
	m.InitiatorSessionID = binary.BigEndian.Uint32(b[:4])
	return m, nil
}

// Message78 is the responder's completion: the far (responder-assigned)
// session id the initiator must use in its session header from now on,
// and the responder's nonce.
type Message78 struct {
	FarSessionID   uint32
	ResponderNonce []byte
}

func (m Message78) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.FarSessionID)
	b = wire.AppendVarint(b, uint64(len(m.ResponderNonce)))
	b = append(b, m.ResponderNonce...)
	return b
}

func DecodeMessage78(b []byte) (Message78, error) {
	if len(b) < 4 {
		return Message78{}, ErrMalformedMessage
	}
	var m Message78
	m.FarSessionID = binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	l, n, err := wire.ReadVarint(b)
	if err != nil || uint64(len(b)-n) < l {
		return Message78{}, ErrMalformedMessage
	}
	b = b[n:]
	m.ResponderNonce = append([]byte(nil), b[:l]...)
	return m, nil
}

// Message71 is a redirection: the gateway the initiator reached is not
// authoritative for the requested EPD and hands back a list of
// addresses to retry the 30 against instead.
type Message71 struct {
	Tag       [TagSize]byte
	Addresses []*net.UDPAddr
}

func (m Message71) Encode() []byte {
	var b []byte
	b = append(b, m.Tag[:]...)
	b = append(b, byte(len(m.Addresses)))
	for _, a := range m.Addresses {
		b = append(b, encodeAddr(a)...)
	}
	return b
}

func DecodeMessage71(b []byte) (Message71, error) {
	if len(b) < TagSize+1 {
		return Message71{}, ErrMalformedMessage
	}
	var m Message71
	copy(m.Tag[:], b[:TagSize])
	count := int(b[TagSize])
	b = b[TagSize+1:]
	for i := 0; i < count; i++ {
		addr, rest, err := decodeAddr(b)
		if err != nil {
			return Message71{}, err
		}
		m.Addresses = append(m.Addresses, addr)
		b = rest
	}
	return m, nil
}

func encodeAddr(a *net.UDPAddr) []byte {
	ip4 := a.IP.To4()
	if ip4 != nil {
		b := make([]byte, 0, 1+4+2)
		b = append(b, 0x04)
		b = append(b, ip4...)
		b = binary.BigEndian.AppendUint16(b, uint16(a.Port))
		return b
	}
	ip16 := a.IP.To16()
	b := make([]byte, 0, 1+16+2)
	b = append(b, 0x06)
	b = append(b, ip16...)
	b = binary.BigEndian.AppendUint16(b, uint16(a.Port))
	return b
}

func decodeAddr(b []byte) (*net.UDPAddr, []byte, error) {
	if len(b) < 1 {
		return nil, nil, ErrMalformedMessage
	}
	switch b[0] {
	case 0x04:
		if len(b) < 1+4+2 {
			return nil, nil, ErrMalformedMessage
		}
		ip := net.IP(append([]byte(nil), b[1:5]...))
		port := binary.BigEndian.Uint16(b[5:7])
		return &net.UDPAddr{IP: ip, Port: int(port)}, b[7:], nil
	case 0x06:
		if len(b) < 1+16+2 {
			return nil, nil, ErrMalformedMessage
		}
		ip := net.IP(append([]byte(nil), b[1:17]...))
		port := binary.BigEndian.Uint16(b[17:19])
		return &net.UDPAddr{IP: ip, Port: int(port)}, b[19:], nil
	default:
		return nil, nil, ErrMalformedMessage
	}
}
