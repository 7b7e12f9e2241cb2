package session

import (
	"net"
	"testing"
	"time"

	"rtmfp/wire"
)

type capturingEndpoint struct {
	sent [][]byte
}

func (e *capturingEndpoint) SendTo(addr *net.UDPAddr, payload []byte) error {
	e.sent = append(e.sent, payload)
	return nil
}

type noopListener struct {
	statuses []Status
}

func (l *noopListener) OnStatusChanged(status Status)        { l.statuses = append(l.statuses, status) }
func (l *noopListener) OnPeerAddressExchange(payload []byte) {}
func (l *noopListener) OnWriterFailed(writerID uint32)       {}

func newTestSession(t *testing.T, ep Endpoint, events Listener) *Session {
	t.Helper()
	var key [wire.KeySize]byte
	copy(key[:], "0123456789abcdef")
	s, err := New(Config{
		LocalID:    1,
		FarID:      2,
		RemoteAddr: &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1935},
		Kind:       KindServer,
		Role:       RoleInitiator,
		EncryptKey: key,
		DecryptKey: key,
		Send:       ep,
		Events:     events,
	}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// withLocalTime builds a spec-shaped session plaintext: the mandatory
// local-time field followed by chain, with no echo-time, matching
// what a session that has never received a packet sends.
func withLocalTime(now time.Time, chain []byte) []byte {
	return append(wire.AppendTimestamp(nil, wire.Timestamp(now)), chain...)
}

// stripHeader undoes a session packet's timestamp header the same way
// Session.Receive does, so a test can inspect the sub-message chain
// underneath a captured reply.
func stripHeader(t *testing.T, marker byte, plaintext []byte) []byte {
	t.Helper()
	rest := plaintext
	if marker == wire.MarkerWithEcho {
		_, r, err := wire.ReadTimestamp(rest)
		if err != nil {
			t.Fatalf("ReadTimestamp echo: %v", err)
		}
		rest = r
	}
	_, rest, err := wire.ReadTimestamp(rest)
	if err != nil {
		t.Fatalf("ReadTimestamp local: %v", err)
	}
	return rest
}

func TestSessionKeepAliveEcho(t *testing.T) {
	ep := &capturingEndpoint{}
	s := newTestSession(t, ep, nil)

	now := time.Now()
	chain := wire.EncodeChain(nil, []wire.SubMessage{{Type: wire.TypeKeepAlive}})
	if err := s.Receive(wire.MarkerAMF, withLocalTime(now, chain), now); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := s.Flush(now); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(ep.sent) != 1 {
		t.Fatalf("expected 1 packet sent, got %d", len(ep.sent))
	}

	marker := ep.sent[0][0]
	if marker != wire.MarkerWithEcho {
		t.Fatalf("expected reply to carry an echo-time, got marker %#x", marker)
	}
	_, plaintext, err := s.decrypt.Decrypt(ep.sent[0][1:])
	if err != nil {
		t.Fatalf("Decrypt reply: %v", err)
	}
	msgs, err := wire.DecodeChain(stripHeader(t, marker, plaintext))
	if err != nil {
		t.Fatalf("DecodeChain: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != wire.TypeKeepAliveEcho {
		t.Fatalf("expected a single KeepAliveEcho reply, got %+v", msgs)
	}
}

func TestSessionWriterToFlowRoundTrip(t *testing.T) {
	ep := &capturingEndpoint{}
	sender := newTestSession(t, ep, nil)

	now := time.Now()
	w := sender.NewWriter(NetConnectionSignature(), true, now)
	if err := sender.WriteReliable(w, []byte("hello"), now); err != nil {
		t.Fatalf("WriteReliable: %v", err)
	}
	if err := sender.Flush(now); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(ep.sent) != 1 {
		t.Fatalf("expected 1 packet sent, got %d", len(ep.sent))
	}

	recvEp := &capturingEndpoint{}
	receiver := newTestSession(t, recvEp, nil)
	// The two sessions mirror each other's keys in this test, so the
	// sender's encrypt cipher matches the receiver's decrypt cipher.
	marker := ep.sent[0][0]
	_, plaintext, err := receiver.decrypt.Decrypt(ep.sent[0][1:])
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	h := &recordingHandler{}
	receiver.factory = func(kind StreamKind, streamID uint32) (StreamHandler, error) { return h, nil }
	if err := receiver.Receive(marker, plaintext, now); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(h.messages) != 1 || string(h.messages[0]) != "hello" {
		t.Fatalf("got %v, want [hello]", h.messages)
	}
}

func TestSessionUnknownSubMessageFailsSession(t *testing.T) {
	ep := &capturingEndpoint{}
	events := &noopListener{}
	s := newTestSession(t, ep, events)

	now := time.Now()
	chain := wire.EncodeChain(nil, []wire.SubMessage{{Type: 0x99, Payload: []byte{1}}})
	err := s.Receive(wire.MarkerAMF, withLocalTime(now, chain), now)
	if err != ErrProtocolViolation {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	if s.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", s.Status)
	}
}

func TestSessionPeerCloseTransitionsNearClosed(t *testing.T) {
	ep := &capturingEndpoint{}
	s := newTestSession(t, ep, nil)

	now := time.Now()
	chain := wire.EncodeChain(nil, []wire.SubMessage{{Type: wire.TypePeerClose}})
	if err := s.Receive(wire.MarkerAMF, withLocalTime(now, chain), now); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if s.Status != StatusNearClosed {
		t.Fatalf("expected StatusNearClosed, got %v", s.Status)
	}
}

func TestSessionFlushHeaderMatchesMarker(t *testing.T) {
	ep := &capturingEndpoint{}
	s := newTestSession(t, ep, nil)

	now := time.Now()
	w := s.NewWriter(NetConnectionSignature(), true, now)
	if err := s.WriteReliable(w, []byte("x"), now); err != nil {
		t.Fatalf("WriteReliable: %v", err)
	}
	if err := s.Flush(now); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// No packet has been received yet, so the first flush carries no
	// echo-time: just the mandatory 2-byte local-time.
	if marker := ep.sent[0][0]; marker != wire.MarkerAMF {
		t.Fatalf("expected marker %#x before any echo, got %#x", wire.MarkerAMF, marker)
	}
	_, plaintext, err := s.decrypt.Decrypt(ep.sent[0][1:])
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	localTime, rest, err := wire.ReadTimestamp(plaintext)
	if err != nil {
		t.Fatalf("ReadTimestamp: %v", err)
	}
	if want := wire.Timestamp(now); localTime != want {
		t.Fatalf("local-time mismatch: got %d want %d", localTime, want)
	}
	if _, err := wire.DecodeChain(rest); err != nil {
		t.Fatalf("DecodeChain after header strip: %v", err)
	}

	// Once a packet has arrived, every subsequent flush echoes its
	// local-time back ahead of this session's own.
	inbound := withLocalTime(now, wire.EncodeChain(nil, []wire.SubMessage{{Type: wire.TypeKeepAlive}}))
	if err := s.Receive(wire.MarkerAMF, inbound, now); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := s.Flush(now); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	marker := ep.sent[1][0]
	if marker != wire.MarkerWithEcho {
		t.Fatalf("expected marker %#x once an echo is due, got %#x", wire.MarkerWithEcho, marker)
	}
	_, plaintext, err = s.decrypt.Decrypt(ep.sent[1][1:])
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	echoTime, rest, err := wire.ReadTimestamp(plaintext)
	if err != nil {
		t.Fatalf("ReadTimestamp echo: %v", err)
	}
	if echoTime != wire.Timestamp(now) {
		t.Fatalf("echo-time mismatch: got %d want %d", echoTime, wire.Timestamp(now))
	}
	if _, _, err := wire.ReadTimestamp(rest); err != nil {
		t.Fatalf("ReadTimestamp local after echo: %v", err)
	}
}

func TestSessionKeepAliveTimeoutFailsSession(t *testing.T) {
	ep := &capturingEndpoint{}
	s := newTestSession(t, ep, nil)

	now := time.Now()
	for i := 0; i <= MaxMissedKeepAlives; i++ {
		now = now.Add(KeepAliveInterval)
		s.keepAliveSentAt = time.Time{}
		err := s.Tick(now)
		if i < MaxMissedKeepAlives {
			if err != nil {
				t.Fatalf("unexpected error at tick %d: %v", i, err)
			}
		} else {
			if err != ErrSessionTimeout {
				t.Fatalf("expected ErrSessionTimeout at tick %d, got %v", i, err)
			}
		}
	}
	if s.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", s.Status)
	}
}
