package call

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitch-mobility/callkit/pkg/history"
	"github.com/hitch-mobility/callkit/pkg/media"
	"github.com/hitch-mobility/callkit/pkg/signaling"
)

// party is one participant wired to a relay over an in-memory pipe.
type party struct {
	id       string
	m        *Manager
	provider *media.FakeProvider
	engine   *media.FakeEngine
	store    *history.MemoryStore
	events   *eventRecorder
}

func newParty(t *testing.T, relay *signaling.Relay, id, name string) *party {
	t.Helper()

	pipe := signaling.NewPipe()
	t.Cleanup(func() { _ = pipe.Close() })

	p := &party{
		id:       id,
		provider: media.NewFakeProvider(),
		engine:   media.NewFakeEngine(),
		store:    history.NewMemoryStore(),
	}
	m, err := NewManager(Config{
		Self:      Participant{ID: id, Name: name},
		Transport: pipe.End0(),
		Provider:  p.provider,
		Engine:    p.engine,
		History:   p.store,
	})
	if err != nil {
		t.Fatalf("NewManager(%s): %v", id, err)
	}
	p.m = m
	p.events = recordEvents(m)
	relay.Attach(id, pipe.End1())
	t.Cleanup(func() { _ = m.Close() })
	return p
}

// waitFor polls cond until it holds or a second passes. Pipe delivery is
// asynchronous, so state that carries no event is awaited this way.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEnd_CallOverRelay(t *testing.T) {
	relay := signaling.NewRelay(signaling.RelayConfig{})
	defer relay.Close()

	passenger := newParty(t, relay, "passenger-1", "Pat")
	driver := newParty(t, relay, "driver-7", "Drew")
	ctx := context.Background()

	if _, err := passenger.m.Initiate(ctx, InitiateParams{
		CalleeID: "driver-7",
		Type:     CallTypeVoice,
		Purpose:  "pickup_coordination",
		Linkage:  Linkage{RideID: "ride-42"},
	}); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	passenger.events.expect(t, EventTypeLocalStreamReceived)
	e := passenger.events.expect(t, EventTypeCallInitiated)
	if !e.Session.ID.IsConfirmed() {
		t.Fatal("session id not confirmed by the relay ack")
	}
	sessionID := e.Session.ID.String()

	// The callee rings with the full call context, under the same id.
	e = driver.events.expect(t, EventTypeIncomingCall)
	if e.Session.ID.String() != sessionID {
		t.Fatalf("driver sees session %q, caller has %q", e.Session.ID, sessionID)
	}
	if e.Session.Caller.Name != "Pat" || e.Session.Purpose != "pickup_coordination" || e.Session.Linkage.RideID != "ride-42" {
		t.Errorf("incoming session = %+v, want the initiate details", e.Session)
	}

	if err := driver.m.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	driver.events.expect(t, EventTypeLocalStreamReceived)
	driver.events.expect(t, EventTypeCallAccepted)
	passenger.events.expect(t, EventTypeCallAccepted)

	// Offer and answer cross the relay and land on the opposite peers.
	waitFor(t, "offer on the driver peer", func() bool {
		p := driver.engine.LastPeer()
		if p == nil {
			return false
		}
		d, ok := p.RemoteDescription()
		return ok && d.Type == "offer"
	})
	waitFor(t, "answer on the passenger peer", func() bool {
		p := passenger.engine.LastPeer()
		if p == nil {
			return false
		}
		d, ok := p.RemoteDescription()
		return ok && d.Type == "answer"
	})

	passengerPeer := passenger.engine.LastPeer()
	driverPeer := driver.engine.LastPeer()

	// Trickled candidates reach the opposite peer.
	passengerPeer.FireCandidate(media.Candidate{Candidate: "candidate:pass-1"})
	driverPeer.FireCandidate(media.Candidate{Candidate: "candidate:drv-1"})
	waitFor(t, "caller candidate on the driver peer", func() bool {
		cands := driverPeer.Candidates()
		return len(cands) == 1 && cands[0].Candidate == "candidate:pass-1"
	})
	waitFor(t, "callee candidate on the passenger peer", func() bool {
		cands := passengerPeer.Candidates()
		return len(cands) == 1 && cands[0].Candidate == "candidate:drv-1"
	})

	passengerPeer.FireConnectionState(media.ConnectionStateConnected)
	driverPeer.FireConnectionState(media.ConnectionStateConnected)
	passenger.events.expect(t, EventTypeConnectionStateChanged)
	driver.events.expect(t, EventTypeConnectionStateChanged)

	// The passenger hangs up; both sides settle and record the call.
	if err := passenger.m.End(ReasonUnspecified); err != nil {
		t.Fatalf("End: %v", err)
	}
	e = passenger.events.expect(t, EventTypeCallEnded)
	if e.Reason != ReasonCompleted {
		t.Errorf("caller end reason = %v, want %v", e.Reason, ReasonCompleted)
	}
	e = driver.events.expect(t, EventTypeCallEnded)
	if !errors.Is(e.Err, ErrRemoteEnded) || e.Reason != ReasonCompleted {
		t.Errorf("driver end = %v / %v, want %v / %v", e.Err, e.Reason, ErrRemoteEnded, ReasonCompleted)
	}

	for _, p := range []*party{passenger, driver} {
		if p.m.InCall() {
			t.Errorf("%s still in call", p.id)
		}
		if open := p.provider.OpenTracks(); open != 0 {
			t.Errorf("%s has %d open tracks, want 0", p.id, open)
		}
		recs, err := p.store.List(ctx, 0, 0)
		if err != nil {
			t.Fatalf("List(%s): %v", p.id, err)
		}
		if len(recs) != 1 || recs[0].SessionID != sessionID {
			t.Errorf("%s records = %+v, want one for %s", p.id, recs, sessionID)
		}
	}
}

func TestEndToEnd_RejectOverRelay(t *testing.T) {
	relay := signaling.NewRelay(signaling.RelayConfig{})
	defer relay.Close()

	passenger := newParty(t, relay, "passenger-1", "Pat")
	driver := newParty(t, relay, "driver-7", "Drew")
	ctx := context.Background()

	if _, err := passenger.m.Initiate(ctx, InitiateParams{CalleeID: "driver-7"}); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	passenger.events.expect(t, EventTypeLocalStreamReceived)
	passenger.events.expect(t, EventTypeCallInitiated)
	driver.events.expect(t, EventTypeIncomingCall)

	if err := driver.m.Reject(ReasonUnspecified); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	e := driver.events.expect(t, EventTypeCallRejected)
	if e.Reason != ReasonRejected {
		t.Errorf("driver reject reason = %v, want %v", e.Reason, ReasonRejected)
	}

	e = passenger.events.expect(t, EventTypeCallRejected)
	if !errors.Is(e.Err, ErrRemoteRejected) {
		t.Errorf("caller Err = %v, want %v", e.Err, ErrRemoteRejected)
	}
	if e.Reason != ReasonRejected {
		t.Errorf("caller reject reason = %v, want %v", e.Reason, ReasonRejected)
	}

	if passenger.m.InCall() || driver.m.InCall() {
		t.Error("a party is still in call after reject")
	}
	if open := passenger.provider.OpenTracks(); open != 0 {
		t.Errorf("caller has %d open tracks, want 0", open)
	}
}

func TestEndToEnd_AbsentCallee(t *testing.T) {
	relay := signaling.NewRelay(signaling.RelayConfig{})
	defer relay.Close()

	passenger := newParty(t, relay, "passenger-1", "Pat")

	if _, err := passenger.m.Initiate(context.Background(), InitiateParams{CalleeID: "ghost"}); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	passenger.events.expect(t, EventTypeLocalStreamReceived)

	e := passenger.events.expect(t, EventTypeCallError)
	if !errors.Is(e.Err, ErrRemoteError) {
		t.Errorf("Err = %v, want %v", e.Err, ErrRemoteError)
	}
	if !strings.Contains(e.Err.Error(), "peer unavailable") {
		t.Errorf("Err = %v, want the relay message preserved", e.Err)
	}
	if passenger.m.InCall() {
		t.Error("InCall() = true after relay refusal")
	}
	if open := passenger.provider.OpenTracks(); open != 0 {
		t.Errorf("OpenTracks() = %d, want 0", open)
	}
}

func TestEndToEnd_DetachTerminatesCall(t *testing.T) {
	relay := signaling.NewRelay(signaling.RelayConfig{})
	defer relay.Close()

	passenger := newParty(t, relay, "passenger-1", "Pat")
	driver := newParty(t, relay, "driver-7", "Drew")
	ctx := context.Background()

	if _, err := passenger.m.Initiate(ctx, InitiateParams{CalleeID: "driver-7"}); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	passenger.events.expect(t, EventTypeLocalStreamReceived)
	passenger.events.expect(t, EventTypeCallInitiated)
	driver.events.expect(t, EventTypeIncomingCall)
	if err := driver.m.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	passenger.events.expect(t, EventTypeCallAccepted)

	// The driver's connection drops; the relay tears the session down for
	// the remaining party.
	relay.Detach("driver-7")

	e := passenger.events.expect(t, EventTypeCallEnded)
	if !errors.Is(e.Err, ErrRemoteEnded) {
		t.Errorf("Err = %v, want %v", e.Err, ErrRemoteEnded)
	}
	if e.Reason != ReasonError {
		t.Errorf("Reason = %v, want %v", e.Reason, ReasonError)
	}
	if passenger.m.InCall() {
		t.Error("InCall() = true after peer detach")
	}
	if open := passenger.provider.OpenTracks(); open != 0 {
		t.Errorf("OpenTracks() = %d, want 0", open)
	}
}
