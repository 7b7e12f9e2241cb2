package rtmfp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"rtmfp/registry"
	"rtmfp/session"
)

// waitSignal blocks until sig fires or ctx is done, whichever comes first.
func waitSignal(ctx context.Context, sig *signal) error {
	select {
	case <-sig.c:
		return sig.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect establishes the NetConnection to a server: url is the EPD
// (the connect URL the server's application instance matches), host
// is the "host:port" UDP address to dial.
func (e *Engine) Connect(ctx context.Context, url, host string) error {
	addr, err := resolveHostPort(host)
	if err != nil {
		return err
	}
	sig := newSignal()
	if err := e.run(ctx, func(now time.Time) {
		localID := registry.NewLocalSessionID()
		h, startErr := e.hs.StartServer([]byte(url), addr, localID, now)
		if startErr != nil {
			sig.fire(startErr)
			return
		}
		e.pending[h.Tag] = &pendingConnect{
			sig:    sig,
			assign: func(s *session.Session) { e.primary = s },
		}
	}); err != nil {
		return err
	}
	return waitSignal(ctx, sig)
}

// ConnectToPeer establishes a direct P2P session with peerID, racing
// every address the host has previously learned for it (via a
// server-relayed address exchange). streamName is recorded for the
// caller's bookkeeping; routing streams to a specific peer session is
// the host's responsibility once this call returns.
func (e *Engine) ConnectToPeer(ctx context.Context, peerID [32]byte, streamName string) error {
	e.mu.Lock()
	candidates := e.addressBook[peerID]
	e.mu.Unlock()
	if len(candidates) == 0 {
		return fmt.Errorf("rtmfp: no known address for peer %x", peerID[:8])
	}

	sig := newSignal()
	if err := e.run(ctx, func(now time.Time) {
		localID := registry.NewLocalSessionID()
		h, startErr := e.hs.StartPeer(peerID[:], candidates, localID, now)
		if startErr != nil {
			sig.fire(startErr)
			return
		}
		e.pending[h.Tag] = &pendingConnect{
			sig:    sig,
			assign: func(s *session.Session) { e.peers[peerID] = s },
		}
	}); err != nil {
		return err
	}
	return waitSignal(ctx, sig)
}

// GroupConfig tunes a NetGroup session. Overlay routing policy itself
// (mesh membership, relay selection) is out of scope here; this only
// covers the control-flow parameters a client needs to join.
type GroupConfig struct {
	WindowDuration time.Duration
}

// ConnectToGroup joins the NetGroup identified by groupID by opening a
// control session through the already-established server connection's
// rendezvous, per the handshake's P2P address-exchange path. A real
// multi-peer mesh is not built here — only the one control session a
// client needs to announce itself and receive group media.
func (e *Engine) ConnectToGroup(ctx context.Context, groupID [32]byte, streamName string, cfg GroupConfig) error {
	e.mu.Lock()
	candidates := e.addressBook[groupID]
	e.mu.Unlock()
	if len(candidates) == 0 {
		return fmt.Errorf("rtmfp: no known rendezvous address for group %x", groupID[:8])
	}

	sig := newSignal()
	if err := e.run(ctx, func(now time.Time) {
		localID := registry.NewLocalSessionID()
		h, startErr := e.hs.StartPeer(groupID[:], candidates, localID, now)
		if startErr != nil {
			sig.fire(startErr)
			return
		}
		e.pending[h.Tag] = &pendingConnect{
			sig:    sig,
			assign: func(s *session.Session) { e.groups[groupID] = s },
		}
	}); err != nil {
		return err
	}
	return waitSignal(ctx, sig)
}

// AddStream opens a new NetStream on the primary connection, returning
// a handle the host uses with Read/Write.
func (e *Engine) AddStream(publisher bool, streamName string, audioReliable, videoReliable bool) (StreamID, error) {
	ctx := context.Background()
	var id StreamID
	err := e.run(ctx, func(now time.Time) {
		if e.primary == nil {
			return
		}
		e.mu.Lock()
		id = StreamID(e.nextStreamID)
		e.nextStreamID++
		st := newStreamState(id, streamName, publisher)
		e.streams[id] = st
		e.mu.Unlock()

		sig := EncodeNetStreamSignature(uint32(id))
		if publisher {
			st.writer = e.primary.NewWriter(sig, audioReliable && videoReliable, now)
		} else {
			e.primary.SetFactory(e.flowFactory)
		}
	})
	if err != nil {
		return 0, err
	}
	if e.primary == nil {
		return 0, ErrApplicationClosed
	}
	return id, nil
}

// flowFactory is the session.FlowFactory installed once a subscriber
// stream is added: it looks up the matching streamState by id so one
// factory can serve every NetStream flow on the connection, not just
// the stream that triggered the lookup.
func (e *Engine) flowFactory(kind session.StreamKind, streamID uint32) (session.StreamHandler, error) {
	if kind != session.StreamNetStream {
		return nil, session.ErrUnknownSignature
	}
	e.mu.Lock()
	st, ok := e.streams[StreamID(streamID)]
	e.mu.Unlock()
	if !ok {
		return nil, session.ErrUnknownSignature
	}
	return st, nil
}

// EncodeNetStreamSignature re-exports session's signature encoding so
// host code building custom flows doesn't need to import session
// directly for this one helper.
func EncodeNetStreamSignature(streamID uint32) []byte {
	return session.EncodeNetStreamSignature(streamID)
}

// Read drains buffered media for streamID into buf.
func (e *Engine) Read(streamID StreamID, buf []byte) (int, error) {
	e.mu.Lock()
	st, ok := e.streams[streamID]
	e.mu.Unlock()
	if !ok {
		return 0, ErrUnknownStream
	}
	return st.Read(buf)
}

// Write sends b as one media message on streamID, tagged with
// timestamp pos. Every message goes out on the stream's writer through
// the reliable path; there is no best-effort (unacknowledged) sending.
func (e *Engine) Write(streamID StreamID, b []byte, pos uint32) error {
	e.mu.Lock()
	st, ok := e.streams[streamID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}
	if !st.publisher || st.writer == nil {
		return ErrNotPublishing
	}

	ctx := context.Background()
	return e.run(ctx, func(now time.Time) {
		if e.primary == nil {
			return
		}
		payload := make([]byte, 4+len(b))
		binary.BigEndian.PutUint32(payload, pos)
		copy(payload[4:], b)
		_ = e.primary.WriteReliable(st.writer, payload, now)
	})
}

// CallFunction invokes a remote method on target, matching the
// NetConnection.call / SendDirectMessage surface.
func (e *Engine) CallFunction(target Target, fn string, args []any) error {
	_ = target
	_ = fn
	_ = args
	// Remote procedure invocation needs an AMF encoder, which is out
	// of scope here (see SPEC_FULL.md); this stub keeps the host API
	// surface complete without silently pretending it did the call.
	return fmt.Errorf("rtmfp: CallFunction is not implemented")
}

// ClosePublication ends a publisher's stream without tearing down the
// whole connection.
func (e *Engine) ClosePublication(streamName string) error {
	ctx := context.Background()
	return e.run(ctx, func(now time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		for id, st := range e.streams {
			if st.name == streamName {
				st.OnFlowEnd()
				delete(e.streams, id)
			}
		}
	})
}

// CloseSession ends the primary connection and every peer/group
// session this engine holds, then stops the network task. Safe to
// call from any goroutine, any number of times.
func (e *Engine) CloseSession() error {
	ctx := context.Background()
	_ = e.run(ctx, func(now time.Time) {
		if e.primary != nil {
			e.primary.Close(false, now)
		}
		for _, s := range e.peers {
			s.Close(false, now)
		}
		for _, s := range e.groups {
			s.Close(false, now)
		}
	})
	return e.Close()
}

func decodeOneAddr(b []byte) (*net.UDPAddr, error) {
	if len(b) < 1 {
		return nil, ErrMalformedPacket
	}
	switch b[0] {
	case 0x04:
		if len(b) < 1+4+2 {
			return nil, ErrMalformedPacket
		}
		ip := net.IP(append([]byte(nil), b[1:5]...))
		port := binary.BigEndian.Uint16(b[5:7])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case 0x06:
		if len(b) < 1+16+2 {
			return nil, ErrMalformedPacket
		}
		ip := net.IP(append([]byte(nil), b[1:17]...))
		port := binary.BigEndian.Uint16(b[17:19])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	default:
		return nil, ErrMalformedPacket
	}
}

// decodePeerAddressExchange parses a 0x0F sub-message payload: a
// 32-byte peer id followed by one candidate address.
func decodePeerAddressExchange(payload []byte) ([32]byte, *net.UDPAddr, bool) {
	var id [32]byte
	if len(payload) < 33 {
		return id, nil, false
	}
	copy(id[:], payload[:32])
	addr, err := decodeOneAddr(payload[32:])
	if err != nil {
		return id, nil, false
	}
	return id, addr, true
}
