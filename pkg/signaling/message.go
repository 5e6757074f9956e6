package signaling

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/hitch-mobility/callkit/pkg/media"
)

// MessageType identifies a signaling message on the wire.
type MessageType string

const (
	// MessageCallInitiate asks the relay to place a call to another peer.
	MessageCallInitiate MessageType = "call_initiate"
	// MessageCallInitiated acknowledges an initiate and carries the
	// relay-issued session id.
	MessageCallInitiated MessageType = "call_initiated"
	// MessageIncomingCall announces a new call to the callee.
	MessageIncomingCall MessageType = "incoming_call"
	// MessageCallAccept is sent by the callee to accept a ringing call.
	MessageCallAccept MessageType = "call_accept"
	// MessageCallAccepted informs the caller that the callee accepted.
	MessageCallAccepted MessageType = "call_accepted"
	// MessageCallReject is sent by the callee to decline a ringing call.
	MessageCallReject MessageType = "call_reject"
	// MessageCallRejected informs the caller that the callee declined.
	MessageCallRejected MessageType = "call_rejected"
	// MessageCallEnd terminates a call in any phase.
	MessageCallEnd MessageType = "call_end"
	// MessageCallEnded informs a peer that the other side terminated.
	MessageCallEnded MessageType = "call_ended"
	// MessageCallSignal carries handshake material between the peers.
	MessageCallSignal MessageType = "call_signal"
	// MessageCallError reports a session-scoped failure.
	MessageCallError MessageType = "call_error"
)

// IsValid returns true if the message type is known.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageCallInitiate, MessageCallInitiated, MessageIncomingCall,
		MessageCallAccept, MessageCallAccepted,
		MessageCallReject, MessageCallRejected,
		MessageCallEnd, MessageCallEnded,
		MessageCallSignal, MessageCallError:
		return true
	}
	return false
}

// String returns the wire name of the message type.
func (t MessageType) String() string { return string(t) }

// SignalType discriminates the payload of a call_signal message.
type SignalType string

const (
	// SignalOffer carries the initiator's session description.
	SignalOffer SignalType = "offer"
	// SignalAnswer carries the responder's session description.
	SignalAnswer SignalType = "answer"
	// SignalICECandidate carries one discovered network candidate.
	SignalICECandidate SignalType = "ice-candidate"
)

// IsValid returns true if the signal type is known.
func (t SignalType) IsValid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// String returns the wire name of the signal type.
func (t SignalType) String() string { return string(t) }

// Envelope is the framing shared by every signaling message. Type and
// SessionID are always present. From identifies the sender and is stamped
// authoritatively by the relay. To addresses the receiving peer and is used
// by transports for routing. Payload holds the message-specific body and is
// absent for messages that need none.
type Envelope struct {
	Type      MessageType         `json:"type"`
	SessionID string              `json:"sessionId"`
	From      string              `json:"from,omitempty"`
	To        string              `json:"to,omitempty"`
	Payload   jsoniter.RawMessage `json:"payload,omitempty"`
}

// ParticipantInfo is a display snapshot of one call party.
type ParticipantInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// InitiatePayload is the body of a call_initiate message.
type InitiatePayload struct {
	// CallType is "voice", "video" or "emergency".
	CallType string `json:"callType"`
	// Purpose is a free-form label for the call, e.g. "pickup_coordination".
	Purpose string `json:"purpose,omitempty"`
	// RideID links the call to a ride. At most one of RideID and
	// DeliveryID is set.
	RideID string `json:"rideId,omitempty"`
	// DeliveryID links the call to a delivery.
	DeliveryID string `json:"deliveryId,omitempty"`
	// IsEmergency marks the call for priority handling.
	IsEmergency bool `json:"isEmergency"`
	// Caller is the initiator's display snapshot, shown to the callee.
	Caller *ParticipantInfo `json:"caller,omitempty"`
}

// IncomingPayload is the body of an incoming_call message. The relay builds
// it from the originating call_initiate.
type IncomingPayload struct {
	CallType    string           `json:"callType"`
	Purpose     string           `json:"purpose,omitempty"`
	RideID      string           `json:"rideId,omitempty"`
	DeliveryID  string           `json:"deliveryId,omitempty"`
	IsEmergency bool             `json:"isEmergency"`
	Caller      *ParticipantInfo `json:"caller,omitempty"`
}

// SignalPayload is the body of a call_signal message. Exactly one of
// Description and Candidate is set, selected by Type: offer and answer carry
// a Description, ice-candidate carries a Candidate.
type SignalPayload struct {
	Type        SignalType         `json:"type"`
	Description *media.Description `json:"description,omitempty"`
	Candidate   *media.Candidate   `json:"candidate,omitempty"`
}

// ReasonPayload is the body of call_reject, call_rejected, call_end and
// call_ended messages. Reason is optional.
type ReasonPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload is the body of a call_error message.
type ErrorPayload struct {
	Message string `json:"message"`
}
