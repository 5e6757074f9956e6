package history

import "time"

// Record is one completed (or failed) call. The call manager writes a
// record when a session reaches a terminal state.
type Record struct {
	// SessionID is the confirmed session id, or the provisional one when
	// the call never reached the relay.
	SessionID string

	// CallerID and CalleeID identify the parties.
	CallerID string
	CalleeID string

	// CallType is "voice", "video" or "emergency".
	CallType string

	// Purpose is a free-form label, e.g. "pickup_coordination".
	Purpose string

	// RideID and DeliveryID link the call to a business transaction.
	// At most one is set.
	RideID     string
	DeliveryID string

	// IsEmergency marks priority calls.
	IsEmergency bool

	// Outcome is the terminal session status, "ended" or "failed".
	Outcome string

	// Reason is why the call terminated, e.g. "completed" or "rejected".
	Reason string

	// StartedAt is when the session was created locally.
	StartedAt time.Time

	// EndedAt is when the session reached its terminal state.
	EndedAt time.Time

	// Duration is EndedAt minus StartedAt.
	Duration time.Duration

	// Quality is the user rating from 1 to 5, or 0 when unrated.
	Quality int
}

// ValidateRating checks a user quality rating.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return nil
}
