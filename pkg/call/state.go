package call

// Trigger is an input to the session state machine. Triggers come from
// three places: local API calls, relay messages, and the media engine.
type Trigger int

const (
	// TriggerInitiate is the local decision to place a call.
	TriggerInitiate Trigger = iota
	// TriggerInitiatedAck is the relay confirming the session.
	TriggerInitiatedAck
	// TriggerIncoming is the relay announcing a call to us.
	TriggerIncoming
	// TriggerAccept is either party committing to the call: the local
	// accept on the callee, the call_accepted message on the caller.
	TriggerAccept
	// TriggerConnected is the media engine reporting a usable path.
	TriggerConnected
	// TriggerReject is a decline, local or remote.
	TriggerReject
	// TriggerEnd starts teardown, local or remote.
	TriggerEnd
	// TriggerEndComplete finishes teardown.
	TriggerEndComplete
	// TriggerFail is any unrecoverable failure: connection loss,
	// signaling error, or ringing timeout.
	TriggerFail
)

// String returns a human-readable name for the trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerInitiate:
		return "initiate"
	case TriggerInitiatedAck:
		return "initiated_ack"
	case TriggerIncoming:
		return "incoming"
	case TriggerAccept:
		return "accept"
	case TriggerConnected:
		return "connected"
	case TriggerReject:
		return "reject"
	case TriggerEnd:
		return "end"
	case TriggerEndComplete:
		return "end_complete"
	case TriggerFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Transition returns the status reached by applying trigger in from, and
// whether the pair is a legal transition at all. Illegal pairs leave the
// status untouched; callers discard such triggers rather than failing the
// session, which is what makes duplicate and stale relay messages
// harmless. Terminal states absorb everything.
func Transition(from Status, trigger Trigger) (Status, bool) {
	if from.IsTerminal() {
		return from, false
	}

	switch trigger {
	case TriggerInitiate:
		if from == StatusIdle {
			return StatusInitiating, true
		}

	case TriggerInitiatedAck:
		if from == StatusInitiating {
			return StatusRingingOutgoing, true
		}

	case TriggerIncoming:
		if from == StatusIdle {
			return StatusRingingIncoming, true
		}

	case TriggerAccept:
		if from.IsRinging() {
			return StatusConnecting, true
		}

	case TriggerConnected:
		if from == StatusConnecting {
			return StatusActive, true
		}

	case TriggerReject:
		if from.IsRinging() {
			return StatusEnded, true
		}

	case TriggerEnd:
		if from != StatusEnding {
			return StatusEnding, true
		}

	case TriggerEndComplete:
		if from == StatusEnding {
			return StatusEnded, true
		}

	case TriggerFail:
		return StatusFailed, true
	}

	return from, false
}
