package rtmfp

// EventSink receives engine lifecycle and media events. A host
// implements it and passes one instance to New; every method is
// invoked from the network task's goroutine, so implementations must
// not block and must synchronize their own access to any shared state.
type EventSink interface {
	// OnStatus reports a connection status change, mirroring the
	// NetConnection/NetStream onStatus event pattern: code is a short
	// machine-readable string (the primary session's status name, e.g.
	// "CONNECTED" or "FAILED", with an empty description; or
	// "Writer.Failed" with the writer id as description).
	OnStatus(code, description string)

	// OnMedia is the callback shape for one media payload received on a
	// subscribed stream; audio distinguishes the audio track from video.
	// The engine never calls it: received media is drained with
	// Engine.Read.
	OnMedia(streamName string, timestamp uint32, payload []byte, audio bool)

	// OnAccept notifies the host that a peer reached out directly
	// (P2P rendezvous) before the host called ConnectToPeer itself.
	OnAccept(peerID [32]byte)
}

// discardSink is used when a host passes a nil EventSink to New, so
// the network task never has to nil-check before calling out.
type discardSink struct{}

func (discardSink) OnStatus(string, string)                {}
func (discardSink) OnMedia(string, uint32, []byte, bool)    {}
func (discardSink) OnAccept([32]byte)                       {}
