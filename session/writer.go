package session

import (
	"time"

	"rtmfp/wire"
)

// WriterState tracks a Writer through its lifecycle.
type WriterState int

const (
	WriterOpening WriterState = iota
	WriterOpen
	WriterNearClosed
	WriterClosed
)

type pendingStage struct {
	flags      byte
	payload    []byte
	sentAt     time.Time
	firstSend  bool
	retransmit bool
}

// Writer is the send-side counterpart of a Flow: it assigns each
// submitted message the next stage, frames it with a full header on
// first transmission and a bare continuation on retransmit, and tracks
// which stages are still unacknowledged so it can retransmit them.
type Writer struct {
	ID          uint32
	ReferenceID uint32
	Signature   []byte
	Reliable    bool
	State       WriterState

	nextStage    uint32 // 1-based stage to assign to the next Send
	baseline     uint32 // highest cumulative-acked stage; all <= this are released
	unacked      map[uint32]*pendingStage
	lastProgress time.Time
}

// NewWriter creates a writer for the given flow id and signature.
func NewWriter(id, referenceID uint32, signature []byte, reliable bool, now time.Time) *Writer {
	return &Writer{
		ID:           id,
		ReferenceID:  referenceID,
		Signature:    signature,
		Reliable:     reliable,
		State:        WriterOpening,
		nextStage:    1,
		unacked:      make(map[uint32]*pendingStage),
		lastProgress: now,
	}
}

// Send assigns payload the next stage and returns the sub-message
// ready to hand to the sender. deltaNAck is the writer's current
// outstanding-stage count, included in the header per the wire format.
func (w *Writer) Send(payload []byte, flags byte, now time.Time) wire.SubMessage {
	stage := w.nextStage
	w.nextStage++

	w.unacked[stage] = &pendingStage{flags: flags, payload: payload, sentAt: now, firstSend: true}
	if w.State == WriterOpening {
		w.State = WriterOpen
	}

	return wire.SubMessage{Type: wire.TypeReliable, Payload: w.encodeHeader(stage, flags, payload)}
}

func (w *Writer) encodeHeader(stage uint32, flags byte, payload []byte) []byte {
	b := []byte{flags | wire.FlagHeader}
	b = wire.AppendVarint(b, uint64(w.ID))
	b = wire.AppendVarint(b, uint64(stage))
	b = wire.AppendVarint(b, uint64(len(w.unacked)))
	b = wire.AppendVarint(b, uint64(len(w.Signature)))
	b = append(b, w.Signature...)
	b = wire.AppendVarint(b, uint64(w.ReferenceID))
	b = append(b, payload...)
	return b
}

func (w *Writer) encodeContinuation(stage uint32, flags byte, payload []byte) []byte {
	b := []byte{flags &^ wire.FlagHeader}
	b = wire.AppendVarint(b, uint64(w.ID))
	b = wire.AppendVarint(b, uint64(stage))
	b = wire.AppendVarint(b, uint64(len(w.unacked)))
	b = append(b, payload...)
	return b
}

// Acknowledge advances the writer's cumulative baseline, discarding
// every unacked stage at or below it (a writer releases a stage's
// buffered bytes only once a cumulative ack covers it), and marks for
// retransmission each stage the NACK bitmap flags (bit i names stage
// baseline+1+i), even when the baseline itself does not advance.
func (w *Writer) Acknowledge(baseline uint32, nackBitmap uint64, now time.Time) {
	progressed := false
	if baseline > w.baseline {
		for stage := range w.unacked {
			if stage <= baseline {
				delete(w.unacked, stage)
				progressed = true
			}
		}
		w.baseline = baseline
	}

	for i := 0; i < 64; i++ {
		if nackBitmap&(1<<uint(i)) != 0 {
			stage := baseline + 1 + uint32(i)
			if p, ok := w.unacked[stage]; ok {
				p.retransmit = true
			}
		}
	}
	if progressed {
		w.lastProgress = now
	}
}

// NegativeAcknowledge marks a single stage for retransmission (the
// 0x18 sub-message carries one stage at a time, unlike the bitmap
// riding on a 0x51 ack).
func (w *Writer) NegativeAcknowledge(stage uint32) {
	if p, ok := w.unacked[stage]; ok {
		p.retransmit = true
	}
}

// PendingRetransmits returns the sub-messages for every stage marked
// for retransmission, or (once max(MinRetransmitInterval, 2×ping) has
// passed with no progress, ping 0 included) the single lowest unacked
// stage.
func (w *Writer) PendingRetransmits(now time.Time, ping time.Duration) []wire.SubMessage {
	var out []wire.SubMessage

	var lowest uint32
	haveLowest := false
	for stage := range w.unacked {
		if !haveLowest || stage < lowest {
			lowest, haveLowest = stage, true
		}
	}

	forced := haveLowest && now.Sub(w.lastProgress) >= nextRetransmitDelay(ping)

	for stage, p := range w.unacked {
		if p.retransmit || (forced && stage == lowest) {
			p.retransmit = false
			p.firstSend = false
			p.sentAt = now
			out = append(out, wire.SubMessage{Type: wire.TypeReliableCont, Payload: w.encodeContinuation(stage, p.flags, p.payload)})
		}
	}
	if forced {
		w.lastProgress = now
	}
	return out
}

// Unacked reports whether the writer still has outstanding stages.
func (w *Writer) Unacked() int { return len(w.unacked) }

// Close marks the writer closed; no further Send calls are valid.
func (w *Writer) Close() { w.State = WriterClosed }
