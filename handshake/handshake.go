// Package handshake drives the RTMFP 30/70/38/78 handshake exchange,
// for both server and peer-to-peer sessions, acting as initiator or
// responder, and performs the Diffie-Hellman key agreement that
// exchange exists to set up; session keys are derived from its shared
// secret by wire.DeriveSessionKeys.
package handshake

import (
	"net"
	"time"
)

// Role distinguishes which side of the exchange a Handshake instance
// is playing.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Kind distinguishes a handshake for the server session from one for
// a peer-to-peer session; address-exchange and close semantics differ
// slightly between them.
type Kind int

const (
	KindServer Kind = iota
	KindPeer
)

// Status tracks a Handshake's progress through the exchange.
type Status int

const (
	StatusProbing      Status = iota // 30 sent (initiator) or awaiting 38 (responder, cookie minted)
	StatusKeyCommitted               // 38 sent (initiator), awaiting 78
	StatusEstablished                // 78 exchanged, crypto material ready to hand to a session
	StatusFailed
)

// Handshake is the transient state of a not-yet-established session.
// It lives in the Handshaker's tag and cookie tables until it either
// completes (ownership of the crypto material moves to the new
// session) or times out.
type Handshake struct {
	Tag    [TagSize]byte
	Cookie []byte
	EPD    []byte

	Role Role
	Kind Kind

	Addresses  []*net.UDPAddr // candidate addresses still being raced
	RemoteAddr *net.UDPAddr   // address that actually answered

	KeyPair      *DHKeyPair
	FarPublicKey []byte
	LocalNonce   []byte
	FarNonce     []byte

	LocalSessionID uint32 // this side's local session id, handed to the peer
	FarSessionID   uint32 // learned from message 78 (initiator) or assumed 0 until then

	Status      Status
	Attempt     int
	Started     time.Time
	LastAttempt time.Time
	CookieMade  time.Time // responder only: when the 70/cookie was minted

	IsP2P bool
}

// dueForRetransmit reports whether, at time now, this handshake's next
// probe/commit attempt is due, and whether it has exhausted its budget.
func (h *Handshake) dueForRetransmit(now time.Time) (due, exhausted bool) {
	if h.Attempt >= MaxAttempts {
		return false, true
	}
	next := h.Started.Add(nextAttemptDelay(h.Attempt + 1))
	return !now.Before(next), false
}
