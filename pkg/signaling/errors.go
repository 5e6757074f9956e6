package signaling

import "errors"

// Errors returned by the signaling package.
var (
	// ErrMalformedMessage is returned when a wire frame cannot be parsed
	// or a payload does not match its message type.
	ErrMalformedMessage = errors.New("signaling: malformed message")

	// ErrUnknownMessageType is returned when a frame carries a type this
	// implementation does not know.
	ErrUnknownMessageType = errors.New("signaling: unknown message type")

	// ErrUnexpectedMessageType is returned when a payload decoder is
	// applied to an envelope of a different type.
	ErrUnexpectedMessageType = errors.New("signaling: unexpected message type")

	// ErrTransportClosed is returned when sending on a closed transport.
	ErrTransportClosed = errors.New("signaling: transport closed")

	// ErrPeerUnavailable is returned by the relay when the addressed peer
	// is not attached.
	ErrPeerUnavailable = errors.New("signaling: peer unavailable")

	// ErrURLRequired is returned when a websocket config has no URL.
	ErrURLRequired = errors.New("signaling: relay URL required")

	// ErrClientIDRequired is returned when a websocket config has no
	// client id.
	ErrClientIDRequired = errors.New("signaling: client id required")
)
