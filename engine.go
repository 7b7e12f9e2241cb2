// Package rtmfp is the host-facing facade over the wire, handshake,
// session, registry, and endpoint packages: one Engine per local
// identity, running a single network task goroutine that owns every
// session without locks.
package rtmfp

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"rtmfp/endpoint"
	"rtmfp/handshake"
	"rtmfp/registry"
	"rtmfp/session"
	"rtmfp/wire"
)

// manageInterval is how often the network task calls Registry.Manage.
const manageInterval = 50 * time.Millisecond

// Engine is one local RTMFP identity: its DH keypair, its bound UDP
// socket, and every session and in-flight handshake that identity is
// party to.
type Engine struct {
	cfg    Config
	events EventSink

	localKey *handshake.DHKeyPair
	conn     *endpoint.Endpoint
	reg      *registry.Registry
	hs       *handshake.Handshaker

	commands chan command
	done     chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup

	mu           sync.Mutex
	streams      map[StreamID]*streamState
	nextStreamID uint32

	primary     *session.Session              // the session Connect established, if any
	peers       map[[32]byte]*session.Session // ConnectToPeer sessions, by peer id
	groups      map[[32]byte]*session.Session // ConnectToGroup control sessions, by group id
	addressBook map[[32]byte][]*net.UDPAddr   // peer/group id -> candidate addresses learned via address exchange

	// pending tracks in-flight Connect/ConnectToPeer/ConnectToGroup
	// calls by the handshake tag they're waiting on, so the
	// OnEstablished callback (fired from inside the handshaker) knows
	// which signal to complete and where the resulting session goes.
	pending map[[handshake.TagSize]byte]*pendingConnect
}

type pendingConnect struct {
	sig    *signal
	assign func(*session.Session)
}

// New creates an Engine bound to an ephemeral local UDP port and
// starts its network task in the background; use the Close method to
// stop it.
func New(cfg Config, events EventSink) (*Engine, error) {
	if events == nil {
		events = discardSink{}
	}
	localKey, err := handshake.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("rtmfp: generating identity key: %w", err)
	}

	sockCfg := endpoint.SocketConfig{RecvBufSize: cfg.SocketRecvBuffer, SendBufSize: cfg.SocketSendBuffer}
	conn, err := endpoint.Listen("", 0, sockCfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		events:       events,
		localKey:     localKey,
		conn:         conn,
		reg:          registry.New(),
		commands:     make(chan command, 64),
		done:         make(chan struct{}),
		streams:      make(map[StreamID]*streamState),
		nextStreamID: 1,
		peers:        make(map[[32]byte]*session.Session),
		groups:       make(map[[32]byte]*session.Session),
		addressBook:  make(map[[32]byte][]*net.UDPAddr),
		pending:      make(map[[handshake.TagSize]byte]*pendingConnect),
	}
	e.hs = handshake.NewHandshaker(conn, localKey)
	e.hs.OnEstablished = e.onEstablished

	e.wg.Add(2)
	go e.readLoop()
	go e.networkTask()
	return e, nil
}

// LocalPeerID is this identity's SHA-256 peer id, derived from its DH
// public key.
func (e *Engine) LocalPeerID() [32]byte {
	return handshake.PeerID(e.localKey.Public)
}

// LocalAddr is the UDP address this engine's socket is bound to.
func (e *Engine) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr()
}

func (e *Engine) readLoop() {
	defer e.wg.Done()
	_ = e.conn.ReadLoop(func(from *net.UDPAddr, marker byte, body []byte) {
		select {
		case e.commands <- func(eng *Engine, now time.Time) { eng.handleInbound(from, marker, body, now) }:
		case <-e.done:
		}
	})
}

func (e *Engine) networkTask() {
	defer e.wg.Done()
	ticker := time.NewTicker(manageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.commands:
			cmd(e, time.Now())
		case now := <-ticker.C:
			for _, h := range e.hs.Tick(now) {
				e.failPending(h)
			}
			e.reg.Manage(now)
		}
	}
}

func (e *Engine) handleInbound(from *net.UDPAddr, marker byte, body []byte, now time.Time) {
	if endpoint.IsSessionMarker(marker) {
		if err := e.reg.Dispatch(from, marker, body, now); err != nil {
			log.Printf("rtmfp: session dispatch error from %s: %v", from, err)
		}
		return
	}

	ciphertext := body
	_, plaintext, err := wire.DefaultCipher.Decrypt(ciphertext)
	if err != nil {
		log.Printf("rtmfp: dropping malformed handshake packet from %s: %v", from, err)
		return
	}
	msgs, err := wire.DecodeChain(plaintext)
	if err != nil {
		return
	}
	for _, m := range msgs {
		e.dispatchHandshakeMessage(from, m, now)
	}
}

func (e *Engine) dispatchHandshakeMessage(from *net.UDPAddr, m wire.SubMessage, now time.Time) {
	switch m.Type {
	case wire.Handshake30:
		// Server-side RTMFP is out of scope: this engine is never the
		// terminal application instance a peer's 30 probe names, only
		// ever a P2P rendezvous target.
		if msg, err := handshake.DecodeMessage30(m.Payload); err == nil {
			_ = e.hs.Accept30(from, msg, now, true)
		}
	case wire.Handshake70:
		if msg, err := handshake.DecodeMessage70(m.Payload); err == nil {
			_ = e.hs.Accept70(from, msg)
		}
	case wire.Handshake38:
		if msg, err := handshake.DecodeMessage38(m.Payload); err == nil {
			_, _, _ = e.hs.Accept38(from, msg, registry.NewLocalSessionID(), now)
		}
	case wire.Handshake78:
		if msg, err := handshake.DecodeMessage78(m.Payload); err == nil {
			_, _, _ = e.hs.Accept78(from, msg)
		}
	case wire.Handshake71:
		if msg, err := handshake.DecodeMessage71(m.Payload); err == nil {
			_ = e.hs.Accept71(msg)
		}
	}
}

// onEstablished is the handshaker's completion callback: it builds the
// session, registers it, and completes whichever pending connect call
// was waiting on this handshake.
func (e *Engine) onEstablished(est handshake.Established) {
	h := est.Handshake

	initiatorNonce, responderNonce := h.LocalNonce, h.FarNonce
	if h.Role == handshake.RoleResponder {
		initiatorNonce, responderNonce = h.FarNonce, h.LocalNonce
	}
	requestKey, responseKey := wire.DeriveSessionKeys(est.SharedSecret, initiatorNonce, responderNonce)

	var encKey, decKey [wire.KeySize]byte
	if h.Role == handshake.RoleInitiator {
		encKey, decKey = requestKey, responseKey
	} else {
		encKey, decKey = responseKey, requestKey
	}

	kind := session.KindServer
	if h.Kind == handshake.KindPeer {
		kind = session.KindPeer
	}
	role := session.RoleInitiator
	if h.Role == handshake.RoleResponder {
		role = session.RoleResponder
	}

	sess, err := session.New(session.Config{
		LocalID:    h.LocalSessionID,
		FarID:      h.FarSessionID,
		RemoteAddr: h.RemoteAddr,
		Kind:       kind,
		Role:       role,
		EncryptKey: encKey,
		DecryptKey: decKey,
		LocalNonce: h.LocalNonce,
		FarNonce:   h.FarNonce,
		Send:       e.conn,
		Events:     &sessionEvents{engine: e},
	}, time.Now())
	if err != nil {
		log.Printf("rtmfp: failed to build session after handshake: %v", err)
		return
	}
	e.reg.Add(sess)

	e.mu.Lock()
	pc, ok := e.pending[h.Tag]
	if ok {
		delete(e.pending, h.Tag)
	}
	e.mu.Unlock()

	switch {
	case ok:
		pc.assign(sess)
		pc.sig.fire(nil)
	case h.Role == handshake.RoleResponder && h.Kind == handshake.KindPeer:
		// An unsolicited P2P handshake we never initiated: a peer
		// reached us through a rendezvous, not a local ConnectToPeer
		// call. Track the session and let the host know.
		peerID := handshake.PeerID(h.FarPublicKey)
		e.mu.Lock()
		e.peers[peerID] = sess
		e.mu.Unlock()
		e.events.OnAccept(peerID)
	}
}

// failPending resolves a pending Connect/ConnectToPeer/ConnectToGroup
// call with ErrHandshakeTimeout, for a handshake Tick reports as
// having exhausted its retransmit budget. A timed-out handshake with
// no matching pending entry was already abandoned by its caller
// (context cancellation) or never had one (an unsolicited P2P
// handshake that stalled before onEstablished), so there's nothing to
// fail in that case.
func (e *Engine) failPending(h *handshake.Handshake) {
	e.mu.Lock()
	pc, ok := e.pending[h.Tag]
	if ok {
		delete(e.pending, h.Tag)
	}
	e.mu.Unlock()
	if ok {
		pc.sig.fire(ErrHandshakeTimeout)
	}
}

// sessionEvents adapts session.Listener to the host's EventSink.
type sessionEvents struct {
	engine *Engine
}

func (s *sessionEvents) OnStatusChanged(status session.Status) {
	s.engine.events.OnStatus(status.String(), "")
}

func (s *sessionEvents) OnPeerAddressExchange(payload []byte) {
	peerID, addr, ok := decodePeerAddressExchange(payload)
	if !ok {
		return
	}
	e := s.engine
	e.mu.Lock()
	e.addressBook[peerID] = append(e.addressBook[peerID], addr)
	e.mu.Unlock()
	_ = e.hs.HandleP2PAddressExchange(addr, time.Now())
}

func (s *sessionEvents) OnWriterFailed(writerID uint32) {
	s.engine.events.OnStatus("Writer.Failed", fmt.Sprintf("writer %d", writerID))
}

// Close stops the network task and releases the socket. Safe to call
// from any goroutine, any number of times.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.done)
	err := e.conn.Close()
	e.wg.Wait()
	return err
}

func resolveHostPort(host string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", host)
	if err != nil {
		return nil, fmt.Errorf("rtmfp: resolving %q: %w", host, err)
	}
	return addr, nil
}

// run submits fn to the network task and blocks until it has executed
// (or ctx is done first). Host API methods use this for the book-
// keeping parts of a call that must happen on the network task; the
// blocking part of a connect/write call is a *signal, not this.
func (e *Engine) run(ctx context.Context, fn func(now time.Time)) error {
	done := make(chan struct{})
	select {
	case e.commands <- func(eng *Engine, now time.Time) { fn(now); close(done) }:
	case <-e.done:
		return ErrApplicationClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrApplicationClosed
	}
}
