package call

import (
	"time"

	"github.com/google/uuid"
)

// SessionID identifies a call session. Ids are tagged with their origin:
// the initiator mints a Provisional id so it can address the session
// before the relay answers, and the relay's call_initiated ack replaces it
// with the Confirmed id every message thereafter uses. Reconciliation is
// total: confirming an already-confirmed id simply adopts the given value.
type SessionID struct {
	value     string
	confirmed bool
}

// NewProvisionalID mints a fresh provisional id.
func NewProvisionalID() SessionID {
	return SessionID{value: uuid.NewString()}
}

// ConfirmedID wraps a relay-issued id.
func ConfirmedID(value string) SessionID {
	return SessionID{value: value, confirmed: true}
}

// String returns the id value.
func (id SessionID) String() string { return id.value }

// IsConfirmed returns true once the id came from the relay.
func (id SessionID) IsConfirmed() bool { return id.confirmed }

// IsZero returns true for the zero id.
func (id SessionID) IsZero() bool { return id.value == "" }

// Confirm adopts the relay-issued value, marking the id confirmed.
func (id SessionID) Confirm(value string) SessionID {
	return SessionID{value: value, confirmed: true}
}

// Matches reports whether a wire session id refers to this session.
func (id SessionID) Matches(wire string) bool {
	return !id.IsZero() && id.value == wire
}

// Linkage ties a call to the business transaction it serves. At most one
// field is set.
type Linkage struct {
	RideID     string
	DeliveryID string
}

// IsZero returns true when the call is linked to nothing.
func (l Linkage) IsZero() bool {
	return l.RideID == "" && l.DeliveryID == ""
}

// Participant is a display snapshot of one party, captured when the
// session is created so UI needs no further lookups.
type Participant struct {
	ID        string
	Name      string
	AvatarURL string
}

// Session is the full state of one call. Values returned from the manager
// are copies; mutating them has no effect on the live session.
type Session struct {
	// ID is the session id, provisional until the relay ack.
	ID SessionID

	// CallerID and CalleeID identify the parties.
	CallerID string
	CalleeID string

	// Caller and Callee are display snapshots of the parties.
	Caller Participant
	Callee Participant

	// Outgoing is true when this side placed the call.
	Outgoing bool

	// Type is the call type requested by the caller.
	Type CallType

	// Purpose is a free-form label, e.g. "pickup_coordination".
	Purpose string

	// Linkage ties the call to a ride or delivery.
	Linkage Linkage

	// IsEmergency marks priority calls.
	IsEmergency bool

	// Status is the current lifecycle phase.
	Status Status

	// Reason explains termination once Status is terminal.
	Reason Reason

	// StartedAt is when the session was created locally.
	StartedAt time.Time

	// EndedAt is when the session reached a terminal state, zero before.
	EndedAt time.Time

	// Quality is the user rating from 1 to 5, 0 while unrated.
	Quality int
}

// Duration returns how long the session lived. Zero until terminated.
func (s Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Peer returns the id of the other party from this side's perspective.
func (s Session) Peer() string {
	if s.Outgoing {
		return s.CalleeID
	}
	return s.CallerID
}
