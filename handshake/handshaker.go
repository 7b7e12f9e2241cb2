package handshake

import (
	"crypto/rand"
	"net"
	"sync"
	"time"

	"rtmfp/wire"
)

// wireFrame wraps a handshake sub-message body in the single-entry
// chain format and encrypts it with the shared default cipher: every
// handshake packet uses session id zero and the 0x0B marker, prefixed
// unencrypted so the registry can route it to the handshaker before
// decrypting anything else.
func wireFrame(msgType byte, body []byte) []byte {
	chain := wire.EncodeChain(nil, []wire.SubMessage{{Type: msgType, Payload: body}})
	ciphertext := wire.DefaultCipher.Encrypt(0, chain)
	out := make([]byte, 0, 1+len(ciphertext))
	out = append(out, wire.MarkerHandshake)
	return append(out, ciphertext...)
}

// PacketSender is the one capability the handshaker needs from its
// host: the ability to hand an encoded handshake payload to a remote
// address over the shared UDP endpoint.
type PacketSender interface {
	SendTo(addr *net.UDPAddr, payload []byte) error
}

// Established is what the handshaker hands back to its owner once a
// handshake completes: the crypto material a session needs, and the
// (now removed) Handshake record it came from.
type Established struct {
	Handshake    *Handshake
	SharedSecret []byte
}

// Handshaker owns every in-progress handshake for one address family,
// keyed by tag (while acting as initiator, waiting on a 70) and by
// cookie (while acting as responder, waiting on a 38).
type Handshaker struct {
	mu       sync.Mutex
	byTag    map[[TagSize]byte]*Handshake
	byCookie map[string]*Handshake

	send     PacketSender
	localKey *DHKeyPair

	// OnEstablished is invoked (outside the handshaker's lock) whenever
	// a 38/78 exchange completes, for either role.
	OnEstablished func(Established)
}

// NewHandshaker creates a Handshaker that sends through send, using
// localKey as this endpoint's long-lived DH identity (its public key
// derives the peer id other clients address it by).
func NewHandshaker(send PacketSender, localKey *DHKeyPair) *Handshaker {
	return &Handshaker{
		byTag:    make(map[[TagSize]byte]*Handshake),
		byCookie: make(map[string]*Handshake),
		send:     send,
		localKey: localKey,
	}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// StartServer begins a handshake to a server EPD (a connect URL),
// sending an initial 30 probe to addr. localSessionID is this side's
// own local session id, assigned up front so it can be handed to the
// responder in message 38.
func (hs *Handshaker) StartServer(epd []byte, addr *net.UDPAddr, localSessionID uint32, now time.Time) (*Handshake, error) {
	return hs.start(epd, []*net.UDPAddr{addr}, KindServer, localSessionID, now)
}

// StartPeer begins a handshake to a peer, probing every address in
// candidates in parallel (address racing); the first 70 to arrive
// wins and the others are abandoned.
func (hs *Handshaker) StartPeer(epd []byte, candidates []*net.UDPAddr, localSessionID uint32, now time.Time) (*Handshake, error) {
	return hs.start(epd, candidates, KindPeer, localSessionID, now)
}

func (hs *Handshaker) start(epd []byte, candidates []*net.UDPAddr, kind Kind, localSessionID uint32, now time.Time) (*Handshake, error) {
	h := &Handshake{
		EPD:            epd,
		Role:           RoleInitiator,
		Kind:           kind,
		Addresses:      candidates,
		LocalSessionID: localSessionID,
		Status:         StatusProbing,
		Started:        now,
		LastAttempt:    now,
	}
	copy(h.Tag[:], randomBytes(TagSize))

	hs.mu.Lock()
	hs.byTag[h.Tag] = h
	hs.mu.Unlock()

	hs.sendProbe(h)
	return h, nil
}

func (hs *Handshaker) sendProbe(h *Handshake) {
	msg := Message30{EPD: h.EPD, Tag: h.Tag}
	payload := wireFrame(wire.Handshake30, msg.Encode())
	for _, addr := range h.Addresses {
		_ = hs.send.SendTo(addr, payload)
	}
}

// Accept70 processes an inbound 70 message on an initiator handshake:
// it captures the responder's cookie and public key, generates its own
// DH key pair and nonce, and replies with 38. The shared secret is
// derived later, in Accept78.
func (hs *Handshaker) Accept70(from *net.UDPAddr, msg Message70) error {
	hs.mu.Lock()
	h, ok := hs.byTag[msg.Tag]
	hs.mu.Unlock()
	if !ok {
		return ErrUnknownTag
	}
	if h.Status != StatusProbing {
		// Duplicate 70 from a losing address in a race; ignore.
		return nil
	}

	keyPair, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	h.KeyPair = keyPair
	h.FarPublicKey = msg.ResponderKey
	h.Cookie = msg.Cookie
	h.LocalNonce = randomBytes(NonceSize)
	h.RemoteAddr = from
	h.Status = StatusKeyCommitted

	out := Message38{Cookie: h.Cookie, InitiatorKey: h.KeyPair.Public, InitiatorNonce: h.LocalNonce, InitiatorSessionID: h.LocalSessionID}
	return hs.send.SendTo(from, wireFrame(wire.Handshake38, out.Encode()))
}

// Accept30 processes an inbound 30 probe as a responder: it mints a
// fresh cookie, generates a DH key pair, registers the pending
// handshake under that cookie, and replies with 70.
func (hs *Handshaker) Accept30(from *net.UDPAddr, msg Message30, now time.Time, isP2P bool) error {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	h := &Handshake{
		Tag:         msg.Tag,
		EPD:         msg.EPD,
		Role:        RoleResponder,
		Kind:        KindPeer,
		RemoteAddr:  from,
		KeyPair:     keyPair,
		Cookie:      randomBytes(CookieSize),
		Status:      StatusProbing,
		Started:     now,
		LastAttempt: now,
		CookieMade:  now,
		IsP2P:       isP2P,
	}
	if !isP2P {
		h.Kind = KindServer
	}

	hs.mu.Lock()
	hs.byCookie[string(h.Cookie)] = h
	hs.mu.Unlock()

	out := Message70{Tag: h.Tag, Cookie: h.Cookie, ResponderKey: h.KeyPair.Public}
	return hs.send.SendTo(from, wireFrame(wire.Handshake70, out.Encode()))
}

// Accept38 processes an inbound 38 message as a responder: it looks
// up the cookie, derives the DH shared secret (session keys are
// derived from it by the OnEstablished callback's owner), and replies
// with 78. If the cookie is unknown (evicted, or this process
// never tracked a matching 70 — e.g. restarted mid-handshake) a fresh
// handshake record is synthesized directly from the 38's contents so
// the exchange can still complete.
func (hs *Handshaker) Accept38(from *net.UDPAddr, msg Message38, localSessionID uint32, now time.Time) (*Handshake, []byte, error) {
	hs.mu.Lock()
	h, ok := hs.byCookie[string(msg.Cookie)]
	hs.mu.Unlock()

	if ok && now.Sub(h.CookieMade) > CookieLifetime {
		hs.mu.Lock()
		delete(hs.byCookie, string(msg.Cookie))
		hs.mu.Unlock()
		ok = false
	}

	if !ok {
		keyPair, err := GenerateKeyPair()
		if err != nil {
			return nil, nil, err
		}
		h = &Handshake{
			Role:        RoleResponder,
			Kind:        KindServer,
			RemoteAddr:  from,
			KeyPair:     keyPair,
			Cookie:      msg.Cookie,
			Status:      StatusProbing,
			Started:     now,
			LastAttempt: now,
			CookieMade:  now,
		}
	}

	h.FarPublicKey = msg.InitiatorKey
	h.FarNonce = msg.InitiatorNonce
	h.FarSessionID = msg.InitiatorSessionID
	h.LocalNonce = randomBytes(NonceSize)
	h.LocalSessionID = localSessionID

	shared, err := h.KeyPair.SharedSecret(h.FarPublicKey)
	if err != nil {
		return nil, nil, err
	}
	h.Status = StatusEstablished

	hs.mu.Lock()
	delete(hs.byCookie, string(h.Cookie))
	hs.mu.Unlock()

	out := Message78{FarSessionID: localSessionID, ResponderNonce: h.LocalNonce}
	if err := hs.send.SendTo(from, wireFrame(wire.Handshake78, out.Encode())); err != nil {
		return nil, nil, err
	}

	if hs.OnEstablished != nil {
		hs.OnEstablished(Established{Handshake: h, SharedSecret: shared})
	}
	return h, shared, nil
}

// Accept78 processes an inbound 78 message as an initiator: the
// handshake completes, the shared secret is derived, and the handshake
// record is removed from the tag table.
func (hs *Handshaker) Accept78(from *net.UDPAddr, msg Message78) (*Handshake, []byte, error) {
	hs.mu.Lock()
	var h *Handshake
	var tag [TagSize]byte
	for t, cand := range hs.byTag {
		if cand.RemoteAddr != nil && sameAddr(cand.RemoteAddr, from) && cand.Status == StatusKeyCommitted {
			h, tag = cand, t
			break
		}
	}
	if h != nil {
		delete(hs.byTag, tag)
	}
	hs.mu.Unlock()

	if h == nil {
		return nil, nil, ErrUnknownTag
	}

	h.FarNonce = msg.ResponderNonce
	h.FarSessionID = msg.FarSessionID
	h.Status = StatusEstablished

	shared, err := h.KeyPair.SharedSecret(h.FarPublicKey)
	if err != nil {
		return nil, nil, err
	}

	if hs.OnEstablished != nil {
		hs.OnEstablished(Established{Handshake: h, SharedSecret: shared})
	}
	return h, shared, nil
}

// Accept71 processes a redirection: it adds the listed addresses to
// the matching initiator handshake and probes every new one.
func (hs *Handshaker) Accept71(msg Message71) error {
	hs.mu.Lock()
	h, ok := hs.byTag[msg.Tag]
	hs.mu.Unlock()
	if !ok {
		return ErrUnknownTag
	}
	if h.Status != StatusProbing {
		return nil
	}
	h.Addresses = append(h.Addresses, msg.Addresses...)

	out := Message30{EPD: h.EPD, Tag: h.Tag}
	payload := wireFrame(wire.Handshake30, out.Encode())
	for _, addr := range msg.Addresses {
		_ = hs.send.SendTo(addr, payload)
	}
	return nil
}

// HandleP2PAddressExchange processes a server-sent address-exchange
// sub-message (0x0F): it pre-registers a responder handshake for the
// named peer address and sends it a 70, racing against the peer's own
// 30 probes arriving from the other side of the rendezvous.
func (hs *Handshaker) HandleP2PAddressExchange(peerAddr *net.UDPAddr, now time.Time) error {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	h := &Handshake{
		Role:        RoleResponder,
		Kind:        KindPeer,
		RemoteAddr:  peerAddr,
		KeyPair:     keyPair,
		Cookie:      randomBytes(CookieSize),
		Status:      StatusProbing,
		Started:     now,
		LastAttempt: now,
		CookieMade:  now,
		IsP2P:       true,
	}
	hs.mu.Lock()
	hs.byCookie[string(h.Cookie)] = h
	hs.mu.Unlock()

	out := Message70{Cookie: h.Cookie, ResponderKey: h.KeyPair.Public}
	return hs.send.SendTo(peerAddr, wireFrame(wire.Handshake70, out.Encode()))
}

// Tick retransmits due 30/38 probes, expires cookies past
// CookieLifetime, and fails handshakes that have exhausted
// MaxAttempts. It returns the handshakes that timed out so the caller
// can fail their pending sessions.
func (hs *Handshaker) Tick(now time.Time) []*Handshake {
	var timedOut []*Handshake

	hs.mu.Lock()
	for cookie, h := range hs.byCookie {
		if now.Sub(h.CookieMade) > CookieLifetime {
			delete(hs.byCookie, cookie)
		}
	}
	var toRetransmit []*Handshake
	for tag, h := range hs.byTag {
		due, exhausted := h.dueForRetransmit(now)
		if exhausted {
			h.Status = StatusFailed
			timedOut = append(timedOut, h)
			delete(hs.byTag, tag)
			continue
		}
		if due {
			h.Attempt++
			h.LastAttempt = now
			toRetransmit = append(toRetransmit, h)
		}
	}
	hs.mu.Unlock()

	for _, h := range toRetransmit {
		switch h.Status {
		case StatusProbing:
			hs.sendProbe(h)
		case StatusKeyCommitted:
			out := Message38{Cookie: h.Cookie, InitiatorKey: h.KeyPair.Public, InitiatorNonce: h.LocalNonce, InitiatorSessionID: h.LocalSessionID}
			_ = hs.send.SendTo(h.RemoteAddr, wireFrame(wire.Handshake38, out.Encode()))
		}
	}
	return timedOut
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
