package session

import (
	"encoding/binary"
	"net"
	"time"

	"rtmfp/wire"
)

// Endpoint is the one capability a Session needs from its host: send a
// finished packet to the peer's current address.
type Endpoint interface {
	SendTo(addr *net.UDPAddr, payload []byte) error
}

// FlowFactory creates the application-side handler for a newly
// observed flow, given its parsed signature. Returning an error fails
// only that flow (ErrUnknownSignature, or an application-level
// rejection), never the whole session.
type FlowFactory func(kind StreamKind, streamID uint32) (StreamHandler, error)

// Listener receives session lifecycle events. It plays the role the
// spec's multicast event objects (OnStatus/OnMedia/OnAccept) used to:
// one interface, one implementation per session, held by the session.
type Listener interface {
	OnStatusChanged(status Status)
	OnPeerAddressExchange(payload []byte)
	OnWriterFailed(writerID uint32)
}

// Session is an established (or establishing) logical connection to
// one remote endpoint: the server, or a peer. It owns the flow table,
// writer table, pending sender, and ping/keepalive/close lifecycle.
// Every field is touched only by the single network task that owns
// the session; there is no internal locking.
type Session struct {
	LocalID uint32
	FarID   uint32

	RemoteAddr *net.UDPAddr
	Kind       Kind
	Role       Role
	Status     Status

	encrypt *wire.Cipher
	decrypt *wire.Cipher

	LocalNonce []byte
	FarNonce   []byte

	lastReceive          time.Time
	keepAliveSentAt      time.Time
	missedKeepAlives     int
	ping                 time.Duration
	nearClosedAt         time.Time

	// farLocalTime is the most recent local-time this session has
	// received, echoed back on the next outbound packet so the far
	// side can measure round-trip freshness; haveFarLocalTime is false
	// until the first packet arrives, since there is nothing to echo
	// yet.
	farLocalTime     uint16
	haveFarLocalTime bool

	flows        map[uint32]*Flow
	writers      map[uint32]*Writer
	nextWriterID uint32

	sender *Sender

	send    Endpoint
	factory FlowFactory
	events  Listener

	tag uint32
}

// Config bundles what's needed to build a Session once a handshake
// completes.
type Config struct {
	LocalID, FarID uint32
	RemoteAddr     *net.UDPAddr
	Kind           Kind
	Role           Role
	EncryptKey     [wire.KeySize]byte
	DecryptKey     [wire.KeySize]byte
	LocalNonce     []byte
	FarNonce       []byte
	Send           Endpoint
	Factory        FlowFactory
	Events         Listener
}

// New builds a Session in StatusConnected with fresh ciphers derived
// from the handshake's negotiated keys.
func New(cfg Config, now time.Time) (*Session, error) {
	enc, err := wire.NewCipher(cfg.EncryptKey)
	if err != nil {
		return nil, err
	}
	dec, err := wire.NewCipher(cfg.DecryptKey)
	if err != nil {
		return nil, err
	}
	s := &Session{
		LocalID:     cfg.LocalID,
		FarID:       cfg.FarID,
		RemoteAddr:  cfg.RemoteAddr,
		Kind:        cfg.Kind,
		Role:        cfg.Role,
		Status:      StatusConnected,
		encrypt:     enc,
		decrypt:     dec,
		LocalNonce:  cfg.LocalNonce,
		FarNonce:    cfg.FarNonce,
		lastReceive: now,
		flows:       make(map[uint32]*Flow),
		writers:     make(map[uint32]*Writer),
		send:        cfg.Send,
		factory:     cfg.Factory,
		events:      cfg.Events,
	}
	// Precompute the tag inbound packets for this session will carry,
	// so the registry can route by it without decrypting first: the
	// far side encrypts our LocalID into its first plaintext block
	// with the same shared key our decrypt cipher holds, so folding
	// that block's ciphertext here reproduces what ExtractSessionID
	// will read off the wire.
	sample := dec.Encrypt(cfg.LocalID, nil)
	tag, _ := wire.ExtractSessionID(sample)
	s.tag = tag
	if s.events != nil {
		s.events.OnStatusChanged(s.Status)
	}
	return s, nil
}

// Tag is the value ExtractSessionID will read off the ciphertext of
// every packet the far side sends on this session. The registry
// indexes sessions by this, not by LocalID, since it must be known
// before decryption is possible.
func (s *Session) Tag() uint32 { return s.tag }

// ReceiveCiphertext decrypts an inbound packet with this session's
// cipher and dispatches its contents. marker is the data marker the
// packet arrived under, needed to know whether the decrypted plaintext
// carries an echo-time field. Callers that already hold decrypted
// plaintext (tests, mainly) should call Receive directly.
func (s *Session) ReceiveCiphertext(marker byte, ciphertext []byte, now time.Time) error {
	_, plaintext, err := s.decrypt.Decrypt(ciphertext)
	if err != nil {
		return nil // malformed or mis-keyed packet, dropped silently
	}
	return s.Receive(marker, plaintext, now)
}

// SetFactory installs (or replaces) the flow factory after construction,
// for hosts that need to finish wiring their stream routing after a
// session is already handed off to the registry.
func (s *Session) SetFactory(f FlowFactory) { s.factory = f }

// NewWriter allocates a writer for the given signature and reliability
// flag, assigning it the next flow id from this session's counter.
func (s *Session) NewWriter(signature []byte, reliable bool, now time.Time) *Writer {
	s.nextWriterID++
	w := NewWriter(s.nextWriterID, 0, signature, reliable, now)
	s.writers[w.ID] = w
	return w
}

// AvailableToWrite reports how much room is left in the session's
// current pending packet.
func (s *Session) AvailableToWrite() int {
	if s.sender == nil {
		return wire.MaxPayloadSize
	}
	return s.sender.Available()
}

func (s *Session) ensureSender() *Sender {
	if s.sender == nil {
		s.sender = NewSender()
	}
	return s.sender
}

// Flush prepends the session's timestamp header (a 2-byte echo-time,
// present once a far local-time has been observed, then a 2-byte
// local-time) to the pending packet, encrypts it, and sends it. It is
// a no-op if nothing has been queued.
func (s *Session) Flush(now time.Time) error {
	if s.sender == nil || s.sender.Empty() {
		s.sender = nil
		return nil
	}
	body := s.sender.Body()
	s.sender = nil

	marker := wire.MarkerAMF
	var header []byte
	if s.haveFarLocalTime {
		marker = wire.MarkerWithEcho
		header = wire.AppendTimestamp(header, s.farLocalTime)
	}
	header = wire.AppendTimestamp(header, wire.Timestamp(now))
	plaintext := append(header, body...)

	ciphertext := s.encrypt.Encrypt(s.FarID, plaintext)
	out := make([]byte, 0, 1+len(ciphertext))
	out = append(out, marker)
	out = append(out, ciphertext...)
	return s.send.SendTo(s.RemoteAddr, out)
}

// WriteReliable submits payload on writer w as one sub-message and
// queues it into the pending packet. If the message does not fit in
// the room left in that packet, the packet is flushed first; a message
// is never split across packets, so one larger than
// wire.MaxPayloadSize goes out alone in an oversized packet.
func (s *Session) WriteReliable(w *Writer, payload []byte, now time.Time) error {
	if s.Status == StatusFailed {
		return ErrSessionClosed
	}
	if w.State == WriterClosed {
		return ErrWriterClosed
	}
	sdr := s.ensureSender()
	msg := w.Send(payload, 0, now)
	if len(msg.Payload) > sdr.Available() {
		if err := s.Flush(now); err != nil {
			return err
		}
		sdr = s.ensureSender()
	}
	sdr.Append(msg)
	return nil
}

// Receive strips a post-decryption plaintext's timestamp header
// (after the caller has already run the ciphertext through the codec)
// and dispatches every sub-message that follows it. marker says
// whether an echo-time field precedes the mandatory local-time field.
func (s *Session) Receive(marker byte, plaintext []byte, now time.Time) error {
	s.lastReceive = now

	rest := plaintext
	if marker == wire.MarkerWithEcho {
		_, r, err := wire.ReadTimestamp(rest)
		if err != nil {
			return nil // truncated header, dropped silently
		}
		rest = r
	}
	localTime, rest, err := wire.ReadTimestamp(rest)
	if err != nil {
		return nil // truncated header, dropped silently
	}
	s.farLocalTime = localTime
	s.haveFarLocalTime = true

	msgs, err := wire.DecodeChain(rest)
	if err != nil {
		return nil // malformed chain, dropped silently, session unaffected
	}
	for _, m := range msgs {
		if err := s.dispatch(m, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) dispatch(m wire.SubMessage, now time.Time) error {
	switch m.Type {
	case wire.TypeKeepAlive:
		sdr := s.ensureSender()
		sdr.Append(wire.SubMessage{Type: wire.TypeKeepAliveEcho})
		return nil

	case wire.TypeKeepAliveEcho:
		if !s.keepAliveSentAt.IsZero() {
			s.ping = now.Sub(s.keepAliveSentAt)
			s.keepAliveSentAt = time.Time{}
		}
		s.missedKeepAlives = 0
		return nil

	case wire.TypeReliable, wire.TypeReliableCont:
		return s.receiveFlowMessage(m.Payload, now)

	case wire.TypeAck:
		return s.receiveAck(m.Payload, now)

	case wire.TypeNack:
		// NACK carries the flow id first, stage second.
		flowID, n, err := wire.ReadVarint32(m.Payload)
		if err != nil {
			return nil
		}
		stage, _, err := wire.ReadVarint32(m.Payload[n:])
		if err != nil {
			return nil
		}
		if w, ok := s.writers[flowID]; ok {
			w.NegativeAcknowledge(stage)
		}
		return nil

	case wire.TypeFailure:
		s.setStatus(StatusFailed)
		return nil

	case wire.TypeAddressExchg:
		if s.events != nil {
			s.events.OnPeerAddressExchange(m.Payload)
		}
		return nil

	case wire.TypePeerClose:
		sdr := s.ensureSender()
		sdr.Append(wire.SubMessage{Type: wire.TypePeerClose})
		s.setStatus(StatusNearClosed)
		s.nearClosedAt = now
		return nil

	case wire.TypeWriterFailure:
		flowID, _, err := wire.ReadVarint32(m.Payload)
		if err != nil {
			return nil
		}
		if w, ok := s.writers[flowID]; ok {
			w.Close()
		}
		if s.events != nil {
			s.events.OnWriterFailed(flowID)
		}
		return nil

	case wire.TypeDiagnostic:
		return nil

	default:
		s.setStatus(StatusFailed)
		return ErrProtocolViolation
	}
}

func (s *Session) receiveFlowMessage(b []byte, now time.Time) error {
	if len(b) < 1 {
		return nil
	}
	flags := b[0]
	rest := b[1:]

	flowID, n, err := wire.ReadVarint32(rest)
	if err != nil {
		return nil
	}
	rest = rest[n:]

	stage, n, err := wire.ReadVarint32(rest)
	if err != nil {
		return nil
	}
	rest = rest[n:]

	_, n, err = wire.ReadVarint32(rest) // deltaNAck, informational on receive
	if err != nil {
		return nil
	}
	rest = rest[n:]

	var payload []byte
	flow, exists := s.flows[flowID]

	if flags&wire.FlagHeader != 0 {
		sigLen, n, err := wire.ReadVarint32(rest)
		if err != nil {
			return nil
		}
		rest = rest[n:]
		if int(sigLen) > len(rest) {
			return nil
		}
		sig := rest[:sigLen]
		rest = rest[sigLen:]

		_, n, err = wire.ReadVarint32(rest) // reference id, unused on receive
		if err != nil {
			return nil
		}
		payload = rest[n:]

		if !exists {
			kind, streamID, perr := ParseSignature(sig)
			if perr != nil {
				return nil // unknown signature fails flow creation only
			}
			var handler StreamHandler
			if s.factory != nil {
				handler, _ = s.factory(kind, streamID)
			}
			flow = NewFlow(flowID, sig, kind, streamID, handler)
			s.flows[flowID] = flow
		}
	} else {
		payload = rest
		if !exists {
			// Continuation for a flow we never saw the header of
			// (header message lost or reordered past its continuations).
			return nil
		}
	}

	flow.Receive(stage, flags, payload)
	s.sendAck(flow, now)
	if flow.Consumed() {
		delete(s.flows, flowID)
	}
	return nil
}

func (s *Session) sendAck(flow *Flow, now time.Time) {
	sdr := s.ensureSender()
	b := wire.AppendVarint(nil, uint64(flow.ID))
	b = wire.AppendVarint(b, uint64(flow.nextExpected-1))
	sdr.Append(wire.SubMessage{Type: wire.TypeAck, Payload: b})
}

func (s *Session) receiveAck(b []byte, now time.Time) error {
	flowID, n, err := wire.ReadVarint32(b)
	if err != nil {
		return nil
	}
	b = b[n:]
	baseline, n, err := wire.ReadVarint32(b)
	if err != nil {
		return nil
	}
	b = b[n:]

	var bitmap uint64
	if len(b) >= 8 {
		bitmap = binary.BigEndian.Uint64(b[:8])
	}

	if w, ok := s.writers[flowID]; ok {
		w.Acknowledge(baseline, bitmap, now)
	}
	return nil
}

func (s *Session) setStatus(next Status) {
	if s.Status.advance(next) && s.events != nil {
		s.events.OnStatusChanged(s.Status)
	}
}

// Close begins an orderly (abrupt=false) or immediate (abrupt=true)
// close. Orderly close appends a 0x4C straight to the pending packet
// and enters NEAR_CLOSED; abrupt close skips the notification.
func (s *Session) Close(abrupt bool, now time.Time) {
	if abrupt {
		s.setStatus(StatusFailed)
		return
	}
	sdr := s.ensureSender()
	sdr.Append(wire.SubMessage{Type: wire.TypePeerClose})
	s.setStatus(StatusNearClosed)
	s.nearClosedAt = now
}

// Tick drives the session's periodic work: keepalive timers, writer
// retransmits, and the NEAR_CLOSED linger countdown. It returns
// ErrSessionTimeout if the session just failed due to a keepalive
// timeout.
func (s *Session) Tick(now time.Time) error {
	if s.Status == StatusFailed {
		return nil
	}
	if s.Status == StatusNearClosed && now.Sub(s.nearClosedAt) >= CloseLingerTime {
		s.setStatus(StatusFailed)
		return nil
	}

	if s.Status == StatusConnected && now.Sub(s.lastReceive) >= KeepAliveInterval {
		s.missedKeepAlives++
		if s.missedKeepAlives > MaxMissedKeepAlives {
			s.setStatus(StatusFailed)
			return ErrSessionTimeout
		}
		sdr := s.ensureSender()
		sdr.Append(wire.SubMessage{Type: wire.TypeKeepAlive})
		s.keepAliveSentAt = now
		s.lastReceive = now // reschedule next probe KeepAliveInterval out
	}

	for _, w := range s.writers {
		for _, msg := range w.PendingRetransmits(now, s.ping) {
			sdr := s.ensureSender()
			if len(msg.Payload) > sdr.Available() {
				_ = s.Flush(now)
				sdr = s.ensureSender()
			}
			sdr.Append(msg)
		}
	}

	return s.Flush(now)
}
