package handshake

import "errors"

var (
	// ErrUnknownTag is returned when a 70 or 71 references a tag this
	// handshaker never issued, or when a 78 arrives from an address with
	// no handshake awaiting it.
	ErrUnknownTag = errors.New("handshake: unknown tag")

	// ErrUnknownCookie names a 38 whose cookie this responder never
	// issued or has already dropped. Accept38 does not return it: it
	// synthesizes a fresh handshake record from the 38 instead.
	ErrUnknownCookie = errors.New("handshake: unknown or expired cookie")

	// ErrCookieExpired names a 38 arriving after CookieLifetime. Accept38
	// does not return it; Tick drops expired cookies, and a later 38 for
	// one is handled like an unknown cookie.
	ErrCookieExpired = errors.New("handshake: cookie expired")

	// ErrTimedOut names a half-open handshake that exhausted MaxAttempts
	// retransmits without a response. Tick does not return it: it
	// returns the timed-out handshakes themselves.
	ErrTimedOut = errors.New("handshake: timed out")

	// ErrMalformedMessage is returned when a handshake sub-message's
	// payload is too short or internally inconsistent.
	ErrMalformedMessage = errors.New("handshake: malformed message")
)
