package rtmfp

import (
	"bytes"
	"io"
	"sync"

	"rtmfp/session"
	"rtmfp/wire"
)

// StreamID identifies one NetStream from the host's point of view.
type StreamID uint32

// streamState is the host-facing half of a NetStream: a read buffer
// fed by incoming flow messages, and (for publishers) the writer used
// to send media. It implements session.StreamHandler so the session's
// flow table can deliver straight into it.
type streamState struct {
	id        StreamID
	name      string
	publisher bool

	mu       sync.Mutex
	buf      bytes.Buffer
	sentFLV  bool
	ended    bool
	writer   *session.Writer
}

func newStreamState(id StreamID, name string, publisher bool) *streamState {
	return &streamState{id: id, name: name, publisher: publisher}
}

// OnMessage implements session.StreamHandler: media payloads arriving
// on a subscribed stream are appended to the read buffer.
func (s *streamState) OnMessage(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(payload)
}

// OnFlowEnd implements session.StreamHandler.
func (s *streamState) OnFlowEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

// Read drains buffered media into b. The first successful read on a
// fresh stream prepends the FLV container prologue, matching how a
// host expects to be able to pipe stream output straight into an FLV
// consumer without assembling the header itself.
func (s *streamState) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sentFLV {
		s.sentFLV = true
		n := copy(b, wire.FLVHeader[:])
		return n, nil
	}
	if s.buf.Len() == 0 {
		if s.ended {
			return 0, io.EOF
		}
		return 0, nil
	}
	return s.buf.Read(b)
}
