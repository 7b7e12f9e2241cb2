package session

import "errors"

var (
	// ErrProtocolViolation is returned (and fails the session) when an
	// inbound sub-message carries an unrecognized type.
	ErrProtocolViolation = errors.New("session: protocol violation")

	// ErrUnknownSignature is returned when a flow is created for a
	// signature the core does not recognize (see signature.go).
	ErrUnknownSignature = errors.New("session: unknown flow signature")

	// ErrSessionTimeout is returned when MaxMissedKeepAlives consecutive
	// KeepAlives go unanswered.
	ErrSessionTimeout = errors.New("session: keepalive timeout")

	// ErrSessionClosed is returned from operations attempted on a
	// session that has already reached StatusFailed.
	ErrSessionClosed = errors.New("session: closed")

	// ErrWriterClosed is returned when a message is submitted to a
	// writer that has already been closed, locally or by the peer.
	ErrWriterClosed = errors.New("session: writer closed")
)
