package session

import "rtmfp/wire"

// StreamHandler receives fully reassembled messages delivered in order
// by a Flow, and is told when the flow's peer has signaled its end.
type StreamHandler interface {
	OnMessage(payload []byte)
	OnFlowEnd()
}

type fragment struct {
	flags   byte
	payload []byte
}

// Flow is a unidirectional ordered reliable channel within a session,
// created on demand when the first message carrying a new flow id
// arrives.
type Flow struct {
	ID            uint32
	Signature     []byte
	Kind          StreamKind
	StreamID      uint32
	Handler       StreamHandler
	nextExpected  uint32 // 1-based; next stage the application is waiting for
	pending       map[uint32]fragment
	reassembling  []byte // bytes accumulated for a span still missing its AFTER-free stage
	reassembleLow uint32 // stage the current reassembly span started at
	consumed      bool
}

// NewFlow creates a flow for the given id and signature, bound to
// handler. The signature must already have been validated with
// ParseSignature.
func NewFlow(id uint32, signature []byte, kind StreamKind, streamID uint32, handler StreamHandler) *Flow {
	return &Flow{
		ID:           id,
		Signature:    signature,
		Kind:         kind,
		StreamID:     streamID,
		Handler:      handler,
		nextExpected: 1,
		pending:      make(map[uint32]fragment),
	}
}

// Consumed reports whether the flow's peer has signaled END and every
// earlier stage has been delivered; the session removes such flows
// from its table.
func (f *Flow) Consumed() bool {
	return f.consumed
}

// Receive buffers an inbound stage's payload and flags, then drains
// every contiguous stage starting at nextExpected into the handler.
// Receiving a stage at or below nextExpected-1 again (a duplicate) is
// a no-op: no second delivery, no state change.
func (f *Flow) Receive(stage uint32, flags byte, payload []byte) {
	if f.consumed || stage < f.nextExpected {
		return
	}
	if _, dup := f.pending[stage]; dup {
		return
	}
	f.pending[stage] = fragment{flags: flags, payload: payload}
	f.drain()
}

func (f *Flow) drain() {
	for {
		frag, ok := f.pending[f.nextExpected]
		if !ok {
			return
		}
		delete(f.pending, f.nextExpected)

		if frag.flags&wire.FlagWithBefore == 0 {
			f.reassembling = f.reassembling[:0]
			f.reassembleLow = f.nextExpected
		}
		f.reassembling = append(f.reassembling, frag.payload...)

		isEnd := frag.flags&wire.FlagEnd != 0
		f.nextExpected++

		if frag.flags&wire.FlagWithAfter == 0 {
			if frag.flags&wire.FlagAbandon == 0 && f.Handler != nil {
				f.Handler.OnMessage(f.reassembling)
			}
			f.reassembling = nil
		}

		if isEnd {
			f.consumed = true
			if f.Handler != nil {
				f.Handler.OnFlowEnd()
			}
			return
		}
	}
}
