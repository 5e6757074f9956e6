package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/hitch-mobility/callkit/pkg/history"
	"github.com/hitch-mobility/callkit/pkg/media"
	"github.com/hitch-mobility/callkit/pkg/signaling"
)

// InitiateParams describes an outgoing call.
type InitiateParams struct {
	// CalleeID identifies the remote party on the signaling relay.
	CalleeID string

	// Callee optionally carries display details for the remote party.
	// Its ID defaults to CalleeID when empty.
	Callee Participant

	// Type selects the media profile. The zero value is a voice call.
	Type CallType

	// Purpose is a free-form label shown to the callee, such as
	// "pickup_coordination".
	Purpose string

	// Linkage ties the call to the ride or delivery it is about.
	Linkage Linkage

	// IsEmergency marks the call for priority treatment. Emergency
	// call types set it implicitly.
	IsEmergency bool
}

// Manager coordinates call sessions for one participant: at most one live
// session at a time, driven by local API calls, relay messages, and media
// engine callbacks. All three inputs funnel through a single mutex, so
// every status change and event is observed in a consistent order.
type Manager struct {
	config Config
	log    logging.LeveledLogger
	bus    *Bus

	mu         sync.Mutex
	session    *Session
	negotiator *media.Negotiator
	gen        int
	ringTimer  *time.Timer
	ringSeq    int
	lastEnded  string
	closed     bool
}

// NewManager validates config and returns a manager listening on the
// configured transport. Callers should Subscribe before placing or
// expecting calls so no events are missed.
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	m := &Manager{config: config}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("call")
	}
	m.bus = NewBus(config.LoggerFactory)
	config.Transport.SetHandler(m.handleFrame)
	return m, nil
}

// Subscribe registers h for events of type t. See Bus.Subscribe.
func (m *Manager) Subscribe(t EventType, h Handler) *Subscription {
	return m.bus.Subscribe(t, h)
}

// InCall reports whether a session is live.
func (m *Manager) InCall() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// ActiveCall returns a snapshot of the live session, if any.
func (m *Manager) ActiveCall() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Initiate places an outgoing call. Media capture happens before anything
// is sent: a busy manager or a capture failure returns an error with no
// session created and no message on the wire. On success the returned id
// is provisional until the relay acknowledges the call.
func (m *Manager) Initiate(ctx context.Context, params InitiateParams) (SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return SessionID{}, ErrClosed
	}
	if m.session != nil {
		return SessionID{}, ErrAlreadyInCall
	}
	if params.CalleeID == "" {
		return SessionID{}, ErrCalleeRequired
	}
	if !params.Type.IsValid() {
		return SessionID{}, fmt.Errorf("%w: %d", ErrInvalidCallType, int(params.Type))
	}
	if params.Type == CallTypeEmergency {
		params.IsEmergency = true
	}

	neg, err := m.newNegotiatorLocked()
	if err != nil {
		return SessionID{}, err
	}
	local, err := neg.AcquireLocal(ctx, media.Constraints{
		Audio: true,
		Video: params.Type.HasVideo(),
	})
	if err != nil {
		neg.Release()
		return SessionID{}, fmt.Errorf("acquire media: %w", err)
	}

	callee := params.Callee
	if callee.ID == "" {
		callee.ID = params.CalleeID
	}

	s := &Session{
		ID:          NewProvisionalID(),
		CallerID:    m.config.Self.ID,
		CalleeID:    params.CalleeID,
		Caller:      m.config.Self,
		Callee:      callee,
		Outgoing:    true,
		Type:        params.Type,
		Purpose:     params.Purpose,
		Linkage:     params.Linkage,
		IsEmergency: params.IsEmergency,
		Status:      StatusIdle,
		StartedAt:   time.Now(),
	}
	m.applyTriggerLocked(s, TriggerInitiate)
	m.session = s
	m.negotiator = neg

	env, err := signaling.NewInitiate(s.ID.String(), m.config.Self.ID, s.CalleeID, signaling.InitiatePayload{
		CallType:    s.Type.String(),
		Purpose:     s.Purpose,
		RideID:      s.Linkage.RideID,
		DeliveryID:  s.Linkage.DeliveryID,
		IsEmergency: s.IsEmergency,
		Caller:      participantInfo(s.Caller),
	})
	if err == nil {
		err = m.send(ctx, env)
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSignaling, err)
		m.failLocked(wrapped, ReasonError)
		return SessionID{}, wrapped
	}

	m.armRingTimerLocked()
	m.publishLocked(Event{Type: EventTypeLocalStreamReceived, Local: local})
	if m.log != nil {
		m.log.Infof("call initiated session=%s callee=%s type=%s", s.ID, s.CalleeID, s.Type)
	}
	return s.ID, nil
}

// Accept answers a ringing incoming call. The peer connection is created
// before call_accept goes out, so the caller's offer and candidates can
// never arrive ahead of it.
func (m *Manager) Accept(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	s := m.session
	if s == nil {
		return ErrNoActiveCall
	}
	if s.Status != StatusRingingIncoming {
		return fmt.Errorf("%w: accept in %s", ErrInvalidState, s.Status)
	}

	neg, err := m.newNegotiatorLocked()
	if err != nil {
		return err
	}
	m.negotiator = neg

	local, err := neg.AcquireLocal(ctx, media.Constraints{
		Audio: true,
		Video: s.Type.HasVideo(),
	})
	if err != nil {
		wrapped := fmt.Errorf("acquire media: %w", err)
		m.failLocked(wrapped, ReasonError)
		return wrapped
	}
	if err := neg.StartPeer(); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrConnectionFailure, err)
		m.failLocked(wrapped, ReasonError)
		return wrapped
	}

	env := signaling.NewEnvelope(signaling.MessageCallAccept, s.ID.String(), m.config.Self.ID, s.CallerID)
	if err := m.send(ctx, env); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSignaling, err)
		m.failLocked(wrapped, ReasonError)
		return wrapped
	}

	m.applyTriggerLocked(s, TriggerAccept)
	m.stopRingTimerLocked()
	m.publishLocked(Event{Type: EventTypeLocalStreamReceived, Local: local})
	m.publishLocked(Event{Type: EventTypeCallAccepted})
	if m.log != nil {
		m.log.Infof("call accepted session=%s caller=%s", s.ID, s.CallerID)
	}
	return nil
}

// Reject declines a ringing incoming call. An empty reason defaults to
// "rejected".
func (m *Manager) Reject(reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	s := m.session
	if s == nil {
		return ErrNoActiveCall
	}
	if s.Status != StatusRingingIncoming {
		return fmt.Errorf("%w: reject in %s", ErrInvalidState, s.Status)
	}
	if reason == ReasonUnspecified {
		reason = ReasonRejected
	}

	if env, err := signaling.NewReason(signaling.MessageCallReject, s.ID.String(), m.config.Self.ID, s.CallerID, reason.String()); err == nil {
		m.sendBestEffort(env)
	}

	m.applyTriggerLocked(s, TriggerReject)
	snapshot := m.finalizeLocked(reason)
	m.bus.Publish(Event{Type: EventTypeCallRejected, Session: snapshot, Reason: reason})
	return nil
}

// End terminates the current session. It is the universal hang-up: legal
// in every phase and idempotent, so UI teardown paths can call it without
// checking state first. Ending with no live session is a no-op.
func (m *Manager) End(reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return nil
	}
	prior := s.Status
	if !m.applyTriggerLocked(s, TriggerEnd) {
		return nil
	}
	if reason == ReasonUnspecified {
		switch prior {
		case StatusActive:
			reason = ReasonCompleted
		case StatusInitiating, StatusRingingOutgoing:
			reason = ReasonCancelled
		default:
			reason = ReasonHangup
		}
	}

	if env, err := signaling.NewReason(signaling.MessageCallEnd, s.ID.String(), m.config.Self.ID, s.Peer(), reason.String()); err == nil {
		m.sendBestEffort(env)
	}

	m.applyTriggerLocked(s, TriggerEndComplete)
	snapshot := m.finalizeLocked(reason)
	m.bus.Publish(Event{Type: EventTypeCallEnded, Session: snapshot, Reason: reason})
	return nil
}

// ToggleAudio flips the microphone and returns the new enabled state.
// Without a session or an audio track it returns false and publishes
// nothing.
func (m *Manager) ToggleAudio() bool {
	return m.toggle(media.TrackKindAudio, EventTypeAudioToggled)
}

// ToggleVideo flips the camera feed and returns the new enabled state.
// Without a session or a video track it returns false and publishes
// nothing.
func (m *Manager) ToggleVideo() bool {
	return m.toggle(media.TrackKindVideo, EventTypeVideoToggled)
}

func (m *Manager) toggle(kind media.TrackKind, t EventType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.negotiator == nil {
		return false
	}
	enabled, ok := m.negotiator.Toggle(kind)
	if !ok {
		return false
	}
	m.publishLocked(Event{Type: t, Enabled: enabled})
	if m.log != nil {
		m.log.Debugf("%s enabled=%t session=%s", kind, enabled, m.session.ID)
	}
	return enabled
}

// SwitchCamera swaps the outgoing video feed to the next capture device.
// The sender keeps its negotiated parameters, so no renegotiation happens
// and the session status is untouched. Returns false when no video call
// is live or no other device could be opened.
func (m *Manager) SwitchCamera(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.negotiator == nil || !m.session.Type.HasVideo() {
		return false
	}
	if err := m.negotiator.SwitchCamera(ctx); err != nil {
		if m.log != nil {
			m.log.Warnf("switch camera: %v", err)
		}
		return false
	}
	m.publishLocked(Event{Type: EventTypeCameraSwitched})
	return true
}

// UpdateQuality records a 1-5 user rating. While a session is live the
// rating rides on it and is persisted with its record at termination;
// afterwards it is applied to the most recently ended call directly.
func (m *Manager) UpdateQuality(ctx context.Context, rating int) error {
	if err := history.ValidateRating(rating); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Quality = rating
		return nil
	}
	if m.config.History == nil {
		return ErrHistoryDisabled
	}
	if m.lastEnded == "" {
		return ErrNoActiveCall
	}
	return m.config.History.UpdateQuality(ctx, m.lastEnded, rating)
}

// History returns terminated calls, most recent first. See
// history.Store.List for the limit and offset semantics.
func (m *Manager) History(ctx context.Context, limit, offset int) ([]history.Record, error) {
	if m.config.History == nil {
		return nil, ErrHistoryDisabled
	}
	return m.config.History.List(ctx, limit, offset)
}

// Close ends any live session, detaches from the transport, and stops the
// event bus after draining pending events. Safe to call more than once.
// Must not be called from inside an event handler.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	if s := m.session; s != nil {
		if m.applyTriggerLocked(s, TriggerEnd) {
			if env, err := signaling.NewReason(signaling.MessageCallEnd, s.ID.String(), m.config.Self.ID, s.Peer(), ReasonCancelled.String()); err == nil {
				m.sendBestEffort(env)
			}
			m.applyTriggerLocked(s, TriggerEndComplete)
			snapshot := m.finalizeLocked(ReasonCancelled)
			m.bus.Publish(Event{Type: EventTypeCallEnded, Session: snapshot, Reason: ReasonCancelled})
		}
	}
	m.mu.Unlock()

	err := m.config.Transport.Close()
	m.bus.Close()
	return err
}

// handleFrame is the transport handler: every inbound relay message
// enters here. A frame that does not decode fails the live session, since
// a corrupted signaling link cannot be trusted to carry the rest of the
// handshake.
func (m *Manager) handleFrame(data []byte) {
	env, err := signaling.Unmarshal(data)
	if err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.log != nil {
			m.log.Warnf("malformed frame: %v", err)
		}
		if m.session != nil {
			m.failLocked(fmt.Errorf("%w: %v", ErrSignaling, err), ReasonError)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	switch env.Type {
	case signaling.MessageIncomingCall:
		m.handleIncoming(env)
	case signaling.MessageCallInitiated:
		m.handleInitiated(env)
	case signaling.MessageCallAccepted:
		m.handleAccepted(env)
	case signaling.MessageCallRejected:
		m.handleRejected(env)
	case signaling.MessageCallEnded, signaling.MessageCallEnd:
		// call_end appears here only on relayless transports; the
		// relay rewrites it to call_ended.
		m.handleEnded(env)
	case signaling.MessageCallSignal:
		m.handleSignal(env)
	case signaling.MessageCallError:
		m.handleRemoteError(env)
	default:
		// call_initiate, call_accept and call_reject are relay-bound;
		// a client never receives them.
		if m.log != nil {
			m.log.Debugf("ignoring %s", env.Type)
		}
	}
}

func (m *Manager) handleIncoming(env signaling.Envelope) {
	p, err := signaling.DecodeIncoming(env)
	if err != nil {
		if m.log != nil {
			m.log.Warnf("bad incoming_call: %v", err)
		}
		return
	}

	if m.session != nil {
		if m.session.ID.Matches(env.SessionID) {
			return // duplicate delivery
		}
		// Busy: decline the new call without touching the live one.
		if envr, err := signaling.NewReason(signaling.MessageCallReject, env.SessionID, m.config.Self.ID, env.From, ReasonBusy.String()); err == nil {
			m.sendBestEffort(envr)
		}
		if m.log != nil {
			m.log.Infof("busy, rejecting incoming session=%s from=%s", env.SessionID, env.From)
		}
		return
	}

	callType, ok := ParseCallType(p.CallType)
	if !ok {
		if m.log != nil {
			m.log.Warnf("unknown call type %q session=%s", p.CallType, env.SessionID)
		}
		return
	}

	caller := Participant{ID: env.From}
	if p.Caller != nil {
		caller = Participant{ID: p.Caller.ID, Name: p.Caller.Name, AvatarURL: p.Caller.AvatarURL}
		if caller.ID == "" {
			caller.ID = env.From
		}
	}

	s := &Session{
		ID:          ConfirmedID(env.SessionID),
		CallerID:    env.From,
		CalleeID:    m.config.Self.ID,
		Caller:      caller,
		Callee:      m.config.Self,
		Outgoing:    false,
		Type:        callType,
		Purpose:     p.Purpose,
		Linkage:     Linkage{RideID: p.RideID, DeliveryID: p.DeliveryID},
		IsEmergency: p.IsEmergency,
		Status:      StatusIdle,
		StartedAt:   time.Now(),
	}
	m.applyTriggerLocked(s, TriggerIncoming)
	m.session = s
	m.armRingTimerLocked()
	m.publishLocked(Event{Type: EventTypeIncomingCall})
	if m.log != nil {
		m.log.Infof("incoming call session=%s from=%s type=%s", s.ID, s.CallerID, s.Type)
	}
}

func (m *Manager) handleInitiated(env signaling.Envelope) {
	s := m.session
	if s == nil || s.Status != StatusInitiating {
		if m.log != nil {
			m.log.Debugf("discarding stale call_initiated session=%s", env.SessionID)
		}
		return
	}

	// Only one outgoing session can be in flight, so the ack binds to it
	// even though it carries the confirmed id rather than the
	// provisional one.
	s.ID = s.ID.Confirm(env.SessionID)
	m.applyTriggerLocked(s, TriggerInitiatedAck)
	m.publishLocked(Event{Type: EventTypeCallInitiated})
	if m.log != nil {
		m.log.Debugf("session confirmed id=%s", s.ID)
	}
}

func (m *Manager) handleAccepted(env signaling.Envelope) {
	if !m.matchesLocked(env) {
		return
	}
	s := m.session
	if !m.applyTriggerLocked(s, TriggerAccept) {
		return
	}
	m.stopRingTimerLocked()

	if err := m.negotiator.StartPeer(); err != nil {
		m.failLocked(fmt.Errorf("%w: %v", ErrConnectionFailure, err), ReasonError)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.SendTimeout)
	defer cancel()

	offer, err := m.negotiator.CreateOffer(ctx)
	if err != nil {
		m.failLocked(fmt.Errorf("%w: %v", ErrConnectionFailure, err), ReasonError)
		return
	}
	envOffer, err := signaling.NewOffer(s.ID.String(), m.config.Self.ID, s.Peer(), offer)
	if err == nil {
		err = m.send(ctx, envOffer)
	}
	if err != nil {
		m.failLocked(fmt.Errorf("%w: %v", ErrSignaling, err), ReasonError)
		return
	}
	m.publishLocked(Event{Type: EventTypeCallAccepted})
}

func (m *Manager) handleRejected(env signaling.Envelope) {
	if !m.matchesLocked(env) {
		return
	}
	s := m.session
	if !m.applyTriggerLocked(s, TriggerReject) {
		return
	}

	reasonStr, _ := signaling.DecodeReason(env)
	reason := ParseReason(reasonStr)
	if reason == ReasonUnspecified {
		reason = ReasonRejected
	}
	snapshot := m.finalizeLocked(reason)
	m.bus.Publish(Event{Type: EventTypeCallRejected, Session: snapshot, Reason: reason, Err: ErrRemoteRejected})
}

func (m *Manager) handleEnded(env signaling.Envelope) {
	if !m.matchesLocked(env) {
		return
	}
	s := m.session
	if !m.applyTriggerLocked(s, TriggerEnd) {
		return
	}

	reasonStr, _ := signaling.DecodeReason(env)
	reason := ParseReason(reasonStr)
	if reason == ReasonUnspecified {
		reason = ReasonHangup
	}
	m.applyTriggerLocked(s, TriggerEndComplete)
	snapshot := m.finalizeLocked(reason)
	m.bus.Publish(Event{Type: EventTypeCallEnded, Session: snapshot, Reason: reason, Err: ErrRemoteEnded})
}

func (m *Manager) handleSignal(env signaling.Envelope) {
	if !m.matchesLocked(env) {
		return
	}
	s := m.session

	p, err := signaling.DecodeSignal(env)
	if err != nil {
		m.failLocked(fmt.Errorf("%w: %v", ErrSignaling, err), ReasonError)
		return
	}

	switch p.Type {
	case signaling.SignalOffer:
		if s.Status != StatusConnecting || s.Outgoing {
			m.discardSignalLocked(p.Type, s.Status)
			return
		}
		if err := m.negotiator.ApplyRemoteDescription(*p.Description); err != nil {
			m.failLocked(fmt.Errorf("%w: %v", ErrConnectionFailure, err), ReasonError)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.config.SendTimeout)
		defer cancel()

		answer, err := m.negotiator.CreateAnswer(ctx)
		if err != nil {
			m.failLocked(fmt.Errorf("%w: %v", ErrConnectionFailure, err), ReasonError)
			return
		}
		envAnswer, err := signaling.NewAnswer(s.ID.String(), m.config.Self.ID, s.Peer(), answer)
		if err == nil {
			err = m.send(ctx, envAnswer)
		}
		if err != nil {
			m.failLocked(fmt.Errorf("%w: %v", ErrSignaling, err), ReasonError)
			return
		}

	case signaling.SignalAnswer:
		if s.Status != StatusConnecting || !s.Outgoing {
			m.discardSignalLocked(p.Type, s.Status)
			return
		}
		if err := m.negotiator.ApplyRemoteDescription(*p.Description); err != nil {
			m.failLocked(fmt.Errorf("%w: %v", ErrConnectionFailure, err), ReasonError)
			return
		}

	case signaling.SignalICECandidate:
		if s.Status != StatusConnecting && s.Status != StatusActive {
			m.discardSignalLocked(p.Type, s.Status)
			return
		}
		// One bad candidate is not fatal; the rest of the pool may
		// still connect.
		if err := m.negotiator.AddRemoteCandidate(*p.Candidate); err != nil && m.log != nil {
			m.log.Warnf("add candidate: %v", err)
		}
	}
}

func (m *Manager) discardSignalLocked(t signaling.SignalType, status Status) {
	if m.log != nil {
		m.log.Debugf("discarding %s in %s", t, status)
	}
}

func (m *Manager) handleRemoteError(env signaling.Envelope) {
	if !m.matchesLocked(env) {
		return
	}
	msg, err := signaling.DecodeError(env)
	if err != nil || msg == "" {
		msg = "unspecified"
	}
	m.failLocked(fmt.Errorf("%w: %s", ErrRemoteError, msg), ReasonError)
}

// matchesLocked reports whether env addresses the live session. Messages
// for other sessions are stale: leftovers of earlier calls, duplicates,
// or relay races.
func (m *Manager) matchesLocked(env signaling.Envelope) bool {
	if m.session == nil || !m.session.ID.Matches(env.SessionID) {
		if m.log != nil {
			m.log.Debugf("discarding stale %s session=%s", env.Type, env.SessionID)
		}
		return false
	}
	return true
}

// applyTriggerLocked advances the session status. Returns false when the
// trigger is not legal in the current status; the caller discards its
// input in that case.
func (m *Manager) applyTriggerLocked(s *Session, t Trigger) bool {
	next, ok := Transition(s.Status, t)
	if !ok {
		if m.log != nil {
			m.log.Debugf("discarding %s in %s session=%s", t, s.Status, s.ID)
		}
		return false
	}
	if m.log != nil {
		m.log.Debugf("transition %s -> %s on %s session=%s", s.Status, next, t, s.ID)
	}
	s.Status = next
	return true
}

// failLocked moves the session to Failed, tears it down, and reports the
// cause on the bus. The peer is notified best-effort unless the signaling
// path itself is what failed.
func (m *Manager) failLocked(cause error, reason Reason) {
	s := m.session
	if s == nil {
		return
	}
	if !m.applyTriggerLocked(s, TriggerFail) {
		return
	}

	if !errors.Is(cause, ErrSignaling) {
		if env, err := signaling.NewReason(signaling.MessageCallEnd, s.ID.String(), m.config.Self.ID, s.Peer(), ReasonError.String()); err == nil {
			m.sendBestEffort(env)
		}
	}

	snapshot := m.finalizeLocked(reason)
	m.bus.Publish(Event{Type: EventTypeCallError, Session: snapshot, Reason: reason, Err: cause})
	if m.log != nil {
		m.log.Warnf("session failed id=%s: %v", snapshot.ID, cause)
	}
}

// finalizeLocked completes teardown for a session whose status is already
// terminal: stops the ring timer, releases media, persists the record,
// and clears the active slot. Returns the final snapshot.
func (m *Manager) finalizeLocked(reason Reason) Session {
	s := m.session
	s.Reason = reason
	s.EndedAt = time.Now()

	m.stopRingTimerLocked()

	if m.negotiator != nil {
		if err := m.negotiator.Release(); err != nil && m.log != nil {
			m.log.Warnf("release media: %v", err)
		}
		m.negotiator = nil
	}
	m.gen++ // invalidate in-flight engine callbacks

	snapshot := *s
	m.session = nil
	m.lastEnded = snapshot.ID.String()

	m.saveRecordLocked(snapshot)

	if m.log != nil {
		m.log.Infof("session terminated id=%s status=%s reason=%s duration=%s",
			snapshot.ID, snapshot.Status, reason, snapshot.Duration())
	}
	return snapshot
}

func (m *Manager) saveRecordLocked(s Session) {
	if m.config.History == nil {
		return
	}
	rec := history.Record{
		SessionID:   s.ID.String(),
		CallerID:    s.CallerID,
		CalleeID:    s.CalleeID,
		CallType:    s.Type.String(),
		Purpose:     s.Purpose,
		RideID:      s.Linkage.RideID,
		DeliveryID:  s.Linkage.DeliveryID,
		IsEmergency: s.IsEmergency,
		Outcome:     s.Status.String(),
		Reason:      s.Reason.String(),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		Duration:    s.Duration(),
		Quality:     s.Quality,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.SendTimeout)
	defer cancel()
	if err := m.config.History.Save(ctx, rec); err != nil && m.log != nil {
		m.log.Warnf("save history: %v", err)
	}
}

// newNegotiatorLocked builds a negotiator whose engine callbacks are
// bound to the current generation. Callbacks from a torn-down negotiator
// carry a stale generation and are dropped on arrival.
func (m *Manager) newNegotiatorLocked() (*media.Negotiator, error) {
	m.gen++
	gen := m.gen

	return media.NewNegotiator(media.NegotiatorConfig{
		Provider:      m.config.Provider,
		Engine:        m.config.Engine,
		ICEServers:    m.config.ICEServers,
		LoggerFactory: m.config.LoggerFactory,
		OnCandidate: func(c media.Candidate) {
			m.onLocalCandidate(gen, c)
		},
		OnConnectionStateChange: func(s media.ConnectionState) {
			m.onConnectionState(gen, s)
		},
		OnRemoteTrack: func(t media.RemoteTrack) {
			m.onRemoteTrack(gen, t)
		},
	})
}

func (m *Manager) onLocalCandidate(gen int, c media.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.session == nil {
		return
	}
	s := m.session
	if s.Status != StatusConnecting && s.Status != StatusActive {
		return
	}
	env, err := signaling.NewCandidate(s.ID.String(), m.config.Self.ID, s.Peer(), c)
	if err != nil {
		return
	}
	m.sendBestEffort(env)
}

func (m *Manager) onConnectionState(gen int, state media.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.session == nil {
		return
	}
	m.publishLocked(Event{Type: EventTypeConnectionStateChanged, State: state})

	s := m.session
	switch state {
	case media.ConnectionStateConnected:
		if m.applyTriggerLocked(s, TriggerConnected) {
			if m.log != nil {
				m.log.Infof("call active session=%s", s.ID)
			}
		}
	case media.ConnectionStateFailed, media.ConnectionStateDisconnected:
		if s.Status == StatusConnecting || s.Status == StatusActive {
			m.failLocked(fmt.Errorf("%w: engine reported %s", ErrConnectionFailure, state), ReasonError)
		}
	}
}

func (m *Manager) onRemoteTrack(gen int, t media.RemoteTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.session == nil {
		return
	}
	m.publishLocked(Event{Type: EventTypeRemoteStreamReceived, Track: t})
}

// armRingTimerLocked starts the unanswered-call timer. The sequence
// number ties a firing back to the arming session, so a timer that loses
// the race against Stop cannot fail a later call.
func (m *Manager) armRingTimerLocked() {
	if m.config.RingingTimeout < 0 {
		return
	}
	m.ringSeq++
	seq := m.ringSeq
	m.ringTimer = time.AfterFunc(m.config.RingingTimeout, func() {
		m.onRingTimeout(seq)
	})
}

func (m *Manager) stopRingTimerLocked() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
	m.ringSeq++
}

func (m *Manager) onRingTimeout(seq int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.ringSeq || m.session == nil {
		return
	}
	st := m.session.Status
	if st != StatusInitiating && !st.IsRinging() {
		return
	}
	m.failLocked(fmt.Errorf("%w after %s in %s", ErrRingingTimeout, m.config.RingingTimeout, st), ReasonTimeout)
}

// publishLocked stamps the live session snapshot onto e before handing it
// to the bus. Terminal events pass their own snapshot since the slot is
// already cleared.
func (m *Manager) publishLocked(e Event) {
	if m.session != nil && e.Session.ID.IsZero() {
		e.Session = *m.session
	}
	m.bus.Publish(e)
}

func (m *Manager) send(ctx context.Context, env signaling.Envelope) error {
	data, err := signaling.Marshal(env)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.SendTimeout)
		defer cancel()
	}
	return m.config.Transport.Send(ctx, env.To, data)
}

func (m *Manager) sendBestEffort(env signaling.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.SendTimeout)
	defer cancel()
	if err := m.send(ctx, env); err != nil && m.log != nil {
		m.log.Warnf("send %s failed: %v", env.Type, err)
	}
}

func participantInfo(p Participant) *signaling.ParticipantInfo {
	if p.ID == "" && p.Name == "" && p.AvatarURL == "" {
		return nil
	}
	return &signaling.ParticipantInfo{ID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL}
}
