// Package registry is the session registry and demultiplexer: it owns
// every session for one UDP endpoint, routes decoded packets to the
// right one (or to the handshaker), and drives their periodic ticks.
package registry

import (
	"net"
	"sync/atomic"
	"time"

	"rtmfp/session"
	"rtmfp/wire"
)

// idGenerator is a process-wide monotonic counter for local session
// ids. Acceptable as a global atomic per the consolidated design: ids
// are never reused within a process and reset only at process start.
var idGenerator uint32

// NewLocalSessionID allocates the next local session id. Zero is
// reserved for the handshaker's default cipher, so the counter starts
// at 1.
func NewLocalSessionID() uint32 {
	return atomic.AddUint32(&idGenerator, 1)
}

// Registry owns the address->session and tag->session tables for one
// address family's UDP endpoint.
type Registry struct {
	byAddr map[string]*session.Session
	byTag  map[uint32]*session.Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byAddr: make(map[string]*session.Session),
		byTag:  make(map[uint32]*session.Session),
	}
}

// Add registers s under both its remote address and its wire tag (see
// Session.Tag).
func (r *Registry) Add(s *session.Session) {
	r.byAddr[s.RemoteAddr.String()] = s
	r.byTag[s.Tag()] = s
}

// Remove drops s from both tables.
func (r *Registry) Remove(s *session.Session) {
	delete(r.byAddr, s.RemoteAddr.String())
	delete(r.byTag, s.Tag())
}

// ByTag looks up a session by the tag ExtractSessionID read off an
// inbound packet's ciphertext.
func (r *Registry) ByTag(tag uint32) (*session.Session, bool) {
	s, ok := r.byTag[tag]
	return s, ok
}

// ByAddr looks up a session by remote address, used when rebinding a
// session after its peer's address has changed (e.g. NAT rebinding).
func (r *Registry) ByAddr(addr *net.UDPAddr) (*session.Session, bool) {
	s, ok := r.byAddr[addr.String()]
	return s, ok
}

// Rebind updates a session's remote address in the registry (the
// session's own RemoteAddr field is the caller's responsibility).
func (r *Registry) Rebind(s *session.Session, oldAddr *net.UDPAddr) {
	delete(r.byAddr, oldAddr.String())
	r.byAddr[s.RemoteAddr.String()] = s
}

// Dispatch routes an inbound ciphertext packet to the session whose
// tag matches ExtractSessionID's fold of it, dropping the packet
// silently if no such session exists — expected during teardown
// races, not an error. A zero tag is never assigned to a session (see
// NewLocalSessionID), so it always belongs to the handshaker and is
// the caller's responsibility to route there instead.
//
// If the packet arrives from a different address than the session's
// current RemoteAddr, the session is rebound to it first: a NAT
// rebinding the far side's port, or a client roaming networks, is a
// normal occurrence. The rebind happens on a tag match alone, before
// the packet is decrypted or its checksum verified.
func (r *Registry) Dispatch(from *net.UDPAddr, marker byte, ciphertext []byte, now time.Time) error {
	tag, err := wire.ExtractSessionID(ciphertext)
	if err != nil {
		return nil
	}
	s, ok := r.byTag[tag]
	if !ok {
		return nil
	}
	if from != nil && s.RemoteAddr.String() != from.String() {
		oldAddr := s.RemoteAddr
		s.RemoteAddr = from
		r.Rebind(s, oldAddr)
	}
	return s.ReceiveCiphertext(marker, ciphertext, now)
}

// Manage ticks every registered session and removes any that reach
// StatusFailed.
func (r *Registry) Manage(now time.Time) {
	for tag, s := range r.byTag {
		_ = s.Tick(now)
		if s.Status == session.StatusFailed {
			delete(r.byTag, tag)
			delete(r.byAddr, s.RemoteAddr.String())
		}
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int { return len(r.byTag) }
