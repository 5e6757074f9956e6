package signaling

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitch-mobility/callkit/pkg/media"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes an envelope into a wire frame.
func Marshal(env Envelope) ([]byte, error) {
	if !env.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(env.Type))
	}
	if env.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedMessage)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return data, nil
}

// Unmarshal decodes a wire frame into an envelope. The payload is left raw;
// use the per-message decoders to interpret it.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !env.Type.IsValid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(env.Type))
	}
	if env.SessionID == "" {
		return Envelope{}, fmt.Errorf("%w: missing session id", ErrMalformedMessage)
	}
	return env, nil
}

// NewEnvelope builds an envelope without a payload. Used for call_initiated,
// call_accept and call_accepted.
func NewEnvelope(t MessageType, sessionID, from, to string) Envelope {
	return Envelope{Type: t, SessionID: sessionID, From: from, To: to}
}

// NewInitiate builds a call_initiate envelope.
func NewInitiate(sessionID, from, to string, p InitiatePayload) (Envelope, error) {
	return withPayload(MessageCallInitiate, sessionID, from, to, p)
}

// NewIncoming builds an incoming_call envelope.
func NewIncoming(sessionID, from, to string, p IncomingPayload) (Envelope, error) {
	return withPayload(MessageIncomingCall, sessionID, from, to, p)
}

// NewReason builds a call_reject, call_rejected, call_end or call_ended
// envelope. An empty reason omits the payload.
func NewReason(t MessageType, sessionID, from, to, reason string) (Envelope, error) {
	switch t {
	case MessageCallReject, MessageCallRejected, MessageCallEnd, MessageCallEnded:
	default:
		return Envelope{}, fmt.Errorf("%w: %q does not carry a reason", ErrUnexpectedMessageType, string(t))
	}
	if reason == "" {
		return NewEnvelope(t, sessionID, from, to), nil
	}
	return withPayload(t, sessionID, from, to, ReasonPayload{Reason: reason})
}

// NewOffer builds a call_signal envelope carrying an offer description.
func NewOffer(sessionID, from, to string, d media.Description) (Envelope, error) {
	return NewSignal(sessionID, from, to, SignalPayload{Type: SignalOffer, Description: &d})
}

// NewAnswer builds a call_signal envelope carrying an answer description.
func NewAnswer(sessionID, from, to string, d media.Description) (Envelope, error) {
	return NewSignal(sessionID, from, to, SignalPayload{Type: SignalAnswer, Description: &d})
}

// NewCandidate builds a call_signal envelope carrying one ICE candidate.
func NewCandidate(sessionID, from, to string, c media.Candidate) (Envelope, error) {
	return NewSignal(sessionID, from, to, SignalPayload{Type: SignalICECandidate, Candidate: &c})
}

// NewSignal builds a call_signal envelope from an explicit payload.
func NewSignal(sessionID, from, to string, p SignalPayload) (Envelope, error) {
	if err := validateSignal(p); err != nil {
		return Envelope{}, err
	}
	return withPayload(MessageCallSignal, sessionID, from, to, p)
}

// NewError builds a call_error envelope.
func NewError(sessionID, from, to, message string) (Envelope, error) {
	return withPayload(MessageCallError, sessionID, from, to, ErrorPayload{Message: message})
}

// DecodeInitiate interprets the payload of a call_initiate envelope.
func DecodeInitiate(env Envelope) (InitiatePayload, error) {
	var p InitiatePayload
	if err := decodePayload(env, MessageCallInitiate, &p); err != nil {
		return InitiatePayload{}, err
	}
	if p.CallType == "" {
		return InitiatePayload{}, fmt.Errorf("%w: initiate without call type", ErrMalformedMessage)
	}
	return p, nil
}

// DecodeIncoming interprets the payload of an incoming_call envelope.
func DecodeIncoming(env Envelope) (IncomingPayload, error) {
	var p IncomingPayload
	if err := decodePayload(env, MessageIncomingCall, &p); err != nil {
		return IncomingPayload{}, err
	}
	if p.CallType == "" {
		return IncomingPayload{}, fmt.Errorf("%w: incoming call without call type", ErrMalformedMessage)
	}
	return p, nil
}

// DecodeReason extracts the optional reason from a call_reject,
// call_rejected, call_end or call_ended envelope. A missing payload yields
// an empty reason.
func DecodeReason(env Envelope) (string, error) {
	switch env.Type {
	case MessageCallReject, MessageCallRejected, MessageCallEnd, MessageCallEnded:
	default:
		return "", fmt.Errorf("%w: got %q", ErrUnexpectedMessageType, string(env.Type))
	}
	if len(env.Payload) == 0 {
		return "", nil
	}
	var p ReasonPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return p.Reason, nil
}

// DecodeSignal interprets the payload of a call_signal envelope and checks
// that the body matches its signal type.
func DecodeSignal(env Envelope) (SignalPayload, error) {
	var p SignalPayload
	if err := decodePayload(env, MessageCallSignal, &p); err != nil {
		return SignalPayload{}, err
	}
	if err := validateSignal(p); err != nil {
		return SignalPayload{}, err
	}
	return p, nil
}

// DecodeError interprets the payload of a call_error envelope.
func DecodeError(env Envelope) (string, error) {
	var p ErrorPayload
	if err := decodePayload(env, MessageCallError, &p); err != nil {
		return "", err
	}
	return p.Message, nil
}

func withPayload(t MessageType, sessionID, from, to string, body interface{}) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	env := NewEnvelope(t, sessionID, from, to)
	env.Payload = raw
	return env, nil
}

func decodePayload(env Envelope, want MessageType, into interface{}) error {
	if env.Type != want {
		return fmt.Errorf("%w: want %q, got %q", ErrUnexpectedMessageType, string(want), string(env.Type))
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedMessage, string(want))
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func validateSignal(p SignalPayload) error {
	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.Description == nil {
			return fmt.Errorf("%w: %s without description", ErrMalformedMessage, p.Type)
		}
		if p.Candidate != nil {
			return fmt.Errorf("%w: %s with candidate body", ErrMalformedMessage, p.Type)
		}
	case SignalICECandidate:
		if p.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrMalformedMessage)
		}
		if p.Description != nil {
			return fmt.Errorf("%w: ice-candidate with description body", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown signal type %q", ErrMalformedMessage, string(p.Type))
	}
	return nil
}
