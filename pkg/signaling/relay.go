package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/samber/lo"
)

// RelayConfig configures a Relay.
type RelayConfig struct {
	// SendTimeout bounds each forwarded frame.
	// Default: 5s
	SendTimeout time.Duration

	// LoggerFactory is used for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *RelayConfig) applyDefaults() {
	if c.SendTimeout == 0 {
		c.SendTimeout = 5 * time.Second
	}
}

type relaySession struct {
	callerID string
	calleeID string
	started  time.Time
}

func (s relaySession) peerOf(clientID string) (string, bool) {
	switch clientID {
	case s.callerID:
		return s.calleeID, true
	case s.calleeID:
		return s.callerID, true
	}
	return "", false
}

// Relay routes signaling envelopes between attached peers. It owns session
// id issuance: a call_initiate is answered with a call_initiated ack
// carrying a fresh id, and turned into an incoming_call for the callee.
// Every other message is forwarded to the session peer with the sender
// stamped into From, request forms rewritten to their notification forms
// (call_accept becomes call_accepted, and so on).
//
// Relay is transport-agnostic. The production binary attaches websocket
// connections; tests and demos attach pipe endpoints.
type Relay struct {
	config RelayConfig
	log    logging.LeveledLogger

	mu       sync.Mutex
	clients  map[string]Transport
	sessions map[string]relaySession
}

// NewRelay creates a relay with no attached peers.
func NewRelay(config RelayConfig) *Relay {
	config.applyDefaults()

	r := &Relay{
		config:   config,
		clients:  make(map[string]Transport),
		sessions: make(map[string]relaySession),
	}

	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("relay")
	}

	return r
}

// Attach registers a peer connection under clientID and starts routing its
// frames. An existing attachment under the same id is replaced; the old
// transport is left for its owner to close.
func (r *Relay) Attach(clientID string, t Transport) {
	t.SetHandler(func(data []byte) {
		r.handleFrame(clientID, data)
	})

	r.mu.Lock()
	_, replaced := r.clients[clientID]
	r.clients[clientID] = t
	r.mu.Unlock()

	if r.log != nil {
		if replaced {
			r.log.Infof("client reattached id=%s", clientID)
		} else {
			r.log.Infof("client attached id=%s", clientID)
		}
	}
}

// Detach removes a peer. Live sessions involving the peer are terminated:
// the remaining party receives a call_ended with reason "error".
func (r *Relay) Detach(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)

	var orphaned []string
	for id, s := range r.sessions {
		if _, ok := s.peerOf(clientID); ok {
			orphaned = append(orphaned, id)
		}
	}

	type notice struct {
		sessionID string
		peerID    string
	}
	var notices []notice
	for _, id := range orphaned {
		s := r.sessions[id]
		delete(r.sessions, id)
		if peer, ok := s.peerOf(clientID); ok {
			notices = append(notices, notice{sessionID: id, peerID: peer})
		}
	}
	r.mu.Unlock()

	if r.log != nil {
		r.log.Infof("client detached id=%s sessions=%d", clientID, len(notices))
	}

	for _, n := range notices {
		env, err := NewReason(MessageCallEnded, n.sessionID, clientID, n.peerID, "error")
		if err != nil {
			continue
		}
		r.deliver(n.peerID, env)
	}
}

// Clients returns the ids of currently attached peers.
func (r *Relay) Clients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.clients)
}

func (r *Relay) handleFrame(from string, data []byte) {
	env, err := Unmarshal(data)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("dropping frame from=%s: %v", from, err)
		}
		return
	}

	// The relay is the authority on sender identity.
	env.From = from

	switch env.Type {
	case MessageCallInitiate:
		r.handleInitiate(from, env)
	case MessageCallEnd, MessageCallReject, MessageCallError:
		r.forgetAndForward(from, env)
	default:
		r.forward(from, env)
	}
}

// notificationType maps a client request form to the form its peer
// receives. Types without a counterpart pass through unchanged.
func notificationType(t MessageType) MessageType {
	switch t {
	case MessageCallAccept:
		return MessageCallAccepted
	case MessageCallReject:
		return MessageCallRejected
	case MessageCallEnd:
		return MessageCallEnded
	}
	return t
}

func (r *Relay) handleInitiate(from string, env Envelope) {
	p, err := DecodeInitiate(env)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("bad initiate from=%s: %v", from, err)
		}
		r.sendError(from, env.SessionID, "malformed initiate")
		return
	}

	calleeID := env.To
	if calleeID == "" {
		r.sendError(from, env.SessionID, "initiate without callee")
		return
	}

	r.mu.Lock()
	_, calleeAttached := r.clients[calleeID]
	confirmed := uuid.NewString()
	if calleeAttached {
		r.sessions[confirmed] = relaySession{
			callerID: from,
			calleeID: calleeID,
			started:  time.Now(),
		}
	}
	r.mu.Unlock()

	if !calleeAttached {
		if r.log != nil {
			r.log.Infof("initiate to absent callee from=%s callee=%s", from, calleeID)
		}
		r.sendError(from, env.SessionID, ErrPeerUnavailable.Error())
		return
	}

	if r.log != nil {
		r.log.Infof("session created id=%s caller=%s callee=%s type=%s",
			confirmed, from, calleeID, p.CallType)
	}

	// Ack the caller first so it learns the confirmed id before any
	// message from the callee can reference it.
	ack := NewEnvelope(MessageCallInitiated, confirmed, "", from)
	r.deliver(from, ack)

	incoming, err := NewIncoming(confirmed, from, calleeID, IncomingPayload{
		CallType:    p.CallType,
		Purpose:     p.Purpose,
		RideID:      p.RideID,
		DeliveryID:  p.DeliveryID,
		IsEmergency: p.IsEmergency,
		Caller:      p.Caller,
	})
	if err != nil {
		return
	}
	r.deliver(calleeID, incoming)
}

// forgetAndForward forwards a terminal message and drops the session from
// the routing table.
func (r *Relay) forgetAndForward(from string, env Envelope) {
	r.forward(from, env)

	r.mu.Lock()
	delete(r.sessions, env.SessionID)
	r.mu.Unlock()
}

func (r *Relay) forward(from string, env Envelope) {
	to := env.To

	r.mu.Lock()
	if s, ok := r.sessions[env.SessionID]; ok {
		if peer, ok := s.peerOf(from); ok {
			to = peer
		}
	}
	r.mu.Unlock()

	if to == "" || to == from {
		if r.log != nil {
			r.log.Debugf("dropping unroutable %s from=%s session=%s", env.Type, from, env.SessionID)
		}
		return
	}

	env.To = to
	env.Type = notificationType(env.Type)
	r.deliver(to, env)
}

func (r *Relay) deliver(to string, env Envelope) {
	r.mu.Lock()
	t, ok := r.clients[to]
	r.mu.Unlock()

	if !ok {
		if r.log != nil {
			r.log.Debugf("peer not attached id=%s type=%s", to, env.Type)
		}
		return
	}

	data, err := Marshal(env)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.SendTimeout)
	defer cancel()

	if err := t.Send(ctx, to, data); err != nil {
		if r.log != nil {
			r.log.Warnf("deliver failed to=%s type=%s: %v", to, env.Type, err)
		}
	}
}

func (r *Relay) sendError(to, sessionID, message string) {
	env, err := NewError(sessionID, "", to, message)
	if err != nil {
		return
	}
	r.deliver(to, env)
}

// Close detaches all peers. Attached transports are left for their owners
// to close.
func (r *Relay) Close() {
	r.mu.Lock()
	r.clients = make(map[string]Transport)
	r.sessions = make(map[string]relaySession)
	r.mu.Unlock()
}
