package rtmfp

import "errors"

// Sentinel errors surfaced across the host API. Wire- and session-level
// packages define their own narrower errors; these are what a host
// program actually needs to branch on.
var (
	ErrMalformedPacket   = errors.New("rtmfp: malformed packet")
	ErrProtocolViolation = errors.New("rtmfp: protocol violation")
	ErrHandshakeTimeout  = errors.New("rtmfp: handshake timed out")
	ErrSessionTimeout    = errors.New("rtmfp: session timed out")
	ErrCryptoFailure     = errors.New("rtmfp: crypto failure")
	ErrApplicationClosed = errors.New("rtmfp: application closed the engine")
	ErrHostRequest       = errors.New("rtmfp: closed at the host's request")
	ErrUnknownStream     = errors.New("rtmfp: unknown stream id")
	ErrNotPublishing     = errors.New("rtmfp: stream is not open for writing")
)
