package call

// Status is the lifecycle phase of a call session.
type Status int

const (
	// StatusIdle means no session activity has started.
	StatusIdle Status = iota
	// StatusInitiating means the initiate message was sent and the relay
	// ack is awaited.
	StatusInitiating
	// StatusRingingOutgoing means the callee is being alerted.
	StatusRingingOutgoing
	// StatusRingingIncoming means a call is ringing locally.
	StatusRingingIncoming
	// StatusConnecting means both parties agreed and the media handshake
	// is running.
	StatusConnecting
	// StatusActive means media is flowing.
	StatusActive
	// StatusEnding means local teardown is in progress.
	StatusEnding
	// StatusEnded is the normal terminal state.
	StatusEnded
	// StatusFailed is the terminal state for errors and timeouts.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInitiating:
		return "initiating"
	case StatusRingingOutgoing:
		return "ringing_outgoing"
	case StatusRingingIncoming:
		return "ringing_incoming"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusEnding:
		return "ending"
	case StatusEnded:
		return "ended"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsValid returns true if the status is known.
func (s Status) IsValid() bool {
	return s >= StatusIdle && s <= StatusFailed
}

// IsTerminal returns true for Ended and Failed. Terminal states absorb
// every later trigger.
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusFailed
}

// IsRinging returns true while a party is being alerted, before either
// side commits to connecting.
func (s Status) IsRinging() bool {
	return s == StatusRingingOutgoing || s == StatusRingingIncoming
}

// CallType distinguishes what media a call carries and how it is
// prioritized.
type CallType int

const (
	// CallTypeVoice is an audio-only call.
	CallTypeVoice CallType = iota
	// CallTypeVideo carries audio and video.
	CallTypeVideo
	// CallTypeEmergency is an audio call with priority handling.
	CallTypeEmergency
)

// String returns the wire name of the call type.
func (t CallType) String() string {
	switch t {
	case CallTypeVoice:
		return "voice"
	case CallTypeVideo:
		return "video"
	case CallTypeEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// IsValid returns true if the call type is known.
func (t CallType) IsValid() bool {
	return t >= CallTypeVoice && t <= CallTypeEmergency
}

// HasVideo returns true when the call captures a camera track.
func (t CallType) HasVideo() bool {
	return t == CallTypeVideo
}

// ParseCallType maps a wire name to a CallType.
func ParseCallType(s string) (CallType, bool) {
	switch s {
	case "voice":
		return CallTypeVoice, true
	case "video":
		return CallTypeVideo, true
	case "emergency":
		return CallTypeEmergency, true
	default:
		return CallTypeVoice, false
	}
}

// Reason explains why a call terminated.
type Reason int

const (
	// ReasonUnspecified means no reason was given.
	ReasonUnspecified Reason = iota
	// ReasonCompleted means the call ran and a party hung up.
	ReasonCompleted
	// ReasonHangup means a party ended the call before or during setup.
	ReasonHangup
	// ReasonBusy means the callee was already in a call.
	ReasonBusy
	// ReasonRejected means the callee declined.
	ReasonRejected
	// ReasonTimeout means ringing expired unanswered.
	ReasonTimeout
	// ReasonError means a failure terminated the call.
	ReasonError
	// ReasonCancelled means the caller withdrew before an answer.
	ReasonCancelled
)

// String returns the wire name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonUnspecified:
		return ""
	case ReasonCompleted:
		return "completed"
	case ReasonHangup:
		return "hangup"
	case ReasonBusy:
		return "busy"
	case ReasonRejected:
		return "rejected"
	case ReasonTimeout:
		return "timeout"
	case ReasonError:
		return "error"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseReason maps a wire name to a Reason. Unknown names come back as
// ReasonUnspecified so stale peers cannot break termination handling.
func ParseReason(s string) Reason {
	switch s {
	case "completed":
		return ReasonCompleted
	case "hangup":
		return ReasonHangup
	case "busy":
		return ReasonBusy
	case "rejected":
		return ReasonRejected
	case "timeout":
		return ReasonTimeout
	case "error":
		return ReasonError
	case "cancelled":
		return ReasonCancelled
	default:
		return ReasonUnspecified
	}
}
