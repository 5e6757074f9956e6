package call

import "errors"

// Errors returned by the call package. Media acquisition failures keep
// their own identities (media.ErrPermissionDenied,
// media.ErrDeviceUnavailable) and are wrapped, not translated.
var (
	// ErrAlreadyInCall is returned when initiating while another session
	// is live. Nothing is sent and no session is created.
	ErrAlreadyInCall = errors.New("call: another session is active")

	// ErrNoActiveCall is returned when an operation needs a session and
	// none exists.
	ErrNoActiveCall = errors.New("call: no active session")

	// ErrInvalidState is returned when an operation is not legal in the
	// session's current status.
	ErrInvalidState = errors.New("call: operation not valid in current state")

	// ErrSignaling wraps failures to send or interpret relay messages.
	ErrSignaling = errors.New("call: signaling failure")

	// ErrConnectionFailure wraps media path establishment or loss
	// failures.
	ErrConnectionFailure = errors.New("call: connection failed")

	// ErrRemoteRejected classifies a call the other party declined.
	ErrRemoteRejected = errors.New("call: remote party rejected")

	// ErrRemoteEnded classifies a call the other party terminated.
	ErrRemoteEnded = errors.New("call: remote party ended")

	// ErrRingingTimeout is the failure recorded when ringing expires
	// unanswered.
	ErrRingingTimeout = errors.New("call: ringing timed out")

	// ErrRemoteError classifies a failure reported by the other party
	// via call_error.
	ErrRemoteError = errors.New("call: remote party reported an error")

	// ErrHistoryDisabled is returned by history operations when no store
	// is configured.
	ErrHistoryDisabled = errors.New("call: history store not configured")

	// ErrClosed is returned when using a closed manager.
	ErrClosed = errors.New("call: manager closed")

	// ErrTransportRequired is returned when a config has no Transport.
	ErrTransportRequired = errors.New("call: transport required")

	// ErrProviderRequired is returned when a config has no Provider.
	ErrProviderRequired = errors.New("call: media provider required")

	// ErrEngineRequired is returned when a config has no Engine.
	ErrEngineRequired = errors.New("call: media engine required")

	// ErrSelfRequired is returned when a config identifies no local
	// party.
	ErrSelfRequired = errors.New("call: self participant id required")

	// ErrCalleeRequired is returned when initiating without a callee id.
	ErrCalleeRequired = errors.New("call: callee id required")

	// ErrInvalidCallType is returned when initiating with an unknown
	// call type.
	ErrInvalidCallType = errors.New("call: invalid call type")
)
