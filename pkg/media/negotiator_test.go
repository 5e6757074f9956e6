package media

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestNegotiator(t *testing.T) (*Negotiator, *FakeProvider, *FakeEngine) {
	t.Helper()

	provider := NewFakeProvider()
	engine := NewFakeEngine()
	n, err := NewNegotiator(NegotiatorConfig{Provider: provider, Engine: engine})
	if err != nil {
		t.Fatalf("NewNegotiator: %v", err)
	}
	return n, provider, engine
}

func TestNegotiatorConfig_Validate(t *testing.T) {
	if _, err := NewNegotiator(NegotiatorConfig{Engine: NewFakeEngine()}); !errors.Is(err, ErrProviderRequired) {
		t.Errorf("missing provider: error = %v, want %v", err, ErrProviderRequired)
	}
	if _, err := NewNegotiator(NegotiatorConfig{Provider: NewFakeProvider()}); !errors.Is(err, ErrEngineRequired) {
		t.Errorf("missing engine: error = %v, want %v", err, ErrEngineRequired)
	}
}

func TestNegotiator_AcquireLocal(t *testing.T) {
	n, provider, _ := newTestNegotiator(t)

	local, err := n.AcquireLocal(context.Background(), Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if !local.Has(TrackKindAudio) || !local.Has(TrackKindVideo) {
		t.Errorf("local = audio %t video %t, want both", local.Has(TrackKindAudio), local.Has(TrackKindVideo))
	}
	if provider.OpenTracks() != 2 {
		t.Errorf("OpenTracks() = %d, want 2", provider.OpenTracks())
	}
	if !n.TrackEnabled(TrackKindAudio) || !n.TrackEnabled(TrackKindVideo) {
		t.Error("captured tracks should start enabled")
	}
}

func TestNegotiator_AcquireLocalFailure(t *testing.T) {
	n, provider, _ := newTestNegotiator(t)

	provider.FailGetMedia(fmt.Errorf("camera in use: %w", ErrDeviceUnavailable))

	_, err := n.AcquireLocal(context.Background(), Constraints{Audio: true, Video: true})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("AcquireLocal error = %v, want %v", err, ErrDeviceUnavailable)
	}
	if provider.OpenTracks() != 0 {
		t.Errorf("OpenTracks() = %d, want 0 after failed acquire", provider.OpenTracks())
	}
}

func TestNegotiator_CandidatesBufferedUntilRemoteDescription(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	peer := engine.LastPeer()

	// Candidates before the remote description must be held back.
	for i := 0; i < 3; i++ {
		c := Candidate{Candidate: fmt.Sprintf("candidate:%d", i)}
		if err := n.AddRemoteCandidate(c); err != nil {
			t.Fatalf("AddRemoteCandidate(%d): %v", i, err)
		}
	}
	if n.PendingCandidates() != 3 {
		t.Errorf("PendingCandidates() = %d, want 3", n.PendingCandidates())
	}
	if len(peer.Candidates()) != 0 {
		t.Errorf("peer received %d candidates before remote description, want 0", len(peer.Candidates()))
	}

	if err := n.ApplyRemoteDescription(Description{Type: "offer", SDP: "v=0"}); err != nil {
		t.Fatalf("ApplyRemoteDescription: %v", err)
	}

	// Flushed in arrival order.
	got := peer.Candidates()
	if len(got) != 3 {
		t.Fatalf("peer received %d candidates, want 3", len(got))
	}
	for i, c := range got {
		want := fmt.Sprintf("candidate:%d", i)
		if c.Candidate != want {
			t.Errorf("candidate[%d] = %q, want %q", i, c.Candidate, want)
		}
	}
	if n.PendingCandidates() != 0 {
		t.Errorf("PendingCandidates() = %d, want 0 after flush", n.PendingCandidates())
	}

	// Later candidates go straight through.
	if err := n.AddRemoteCandidate(Candidate{Candidate: "candidate:late"}); err != nil {
		t.Fatalf("AddRemoteCandidate(late): %v", err)
	}
	if len(peer.Candidates()) != 4 {
		t.Errorf("peer received %d candidates, want 4", len(peer.Candidates()))
	}
	if n.PendingCandidates() != 0 {
		t.Errorf("PendingCandidates() = %d, want 0", n.PendingCandidates())
	}
}

func TestNegotiator_CandidatesBufferedBeforePeer(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	if err := n.AddRemoteCandidate(Candidate{Candidate: "candidate:early"}); err != nil {
		t.Fatalf("AddRemoteCandidate: %v", err)
	}
	if n.PendingCandidates() != 1 {
		t.Errorf("PendingCandidates() = %d, want 1", n.PendingCandidates())
	}

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	if err := n.ApplyRemoteDescription(Description{Type: "offer", SDP: "v=0"}); err != nil {
		t.Fatalf("ApplyRemoteDescription: %v", err)
	}

	got := engine.LastPeer().Candidates()
	if len(got) != 1 || got[0].Candidate != "candidate:early" {
		t.Errorf("peer candidates = %v, want the early candidate flushed", got)
	}
}

func TestNegotiator_HandshakeGuards(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	if _, err := n.CreateOffer(context.Background()); !errors.Is(err, ErrNoPeer) {
		t.Errorf("CreateOffer without peer: error = %v, want %v", err, ErrNoPeer)
	}
	if err := n.ApplyRemoteDescription(Description{Type: "offer"}); !errors.Is(err, ErrNoPeer) {
		t.Errorf("ApplyRemoteDescription without peer: error = %v, want %v", err, ErrNoPeer)
	}

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}

	if _, err := n.CreateAnswer(context.Background()); !errors.Is(err, ErrNoRemoteDescription) {
		t.Errorf("CreateAnswer before remote description: error = %v, want %v", err, ErrNoRemoteDescription)
	}
}

func TestNegotiator_StartPeerIdempotent(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("second StartPeer: %v", err)
	}
	if len(engine.Peers()) != 1 {
		t.Errorf("engine created %d peers, want 1", len(engine.Peers()))
	}
}

func TestNegotiator_Toggle(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	// No media at all: nothing to toggle.
	if _, ok := n.Toggle(TrackKindAudio); ok {
		t.Error("Toggle before acquire should report ok=false")
	}

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}

	// Audio-only call: no video track to toggle.
	if _, ok := n.Toggle(TrackKindVideo); ok {
		t.Error("Toggle video on an audio-only call should report ok=false")
	}

	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	peer := engine.LastPeer()

	enabled, ok := n.Toggle(TrackKindAudio)
	if !ok || enabled {
		t.Errorf("Toggle() = (%t, %t), want (false, true)", enabled, ok)
	}
	if peer.TrackEnabled(TrackKindAudio) {
		t.Error("peer sender should be disabled after mute")
	}

	enabled, ok = n.Toggle(TrackKindAudio)
	if !ok || !enabled {
		t.Errorf("second Toggle() = (%t, %t), want (true, true)", enabled, ok)
	}
	if !peer.TrackEnabled(TrackKindAudio) {
		t.Error("peer sender should be enabled after unmute")
	}
}

func TestNegotiator_ToggleBeforePeerCarriesOver(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}

	// Mute before the peer exists; the choice must survive peer creation.
	if enabled, ok := n.Toggle(TrackKindAudio); !ok || enabled {
		t.Fatalf("Toggle() = (%t, %t), want (false, true)", enabled, ok)
	}

	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	peer := engine.LastPeer()
	if peer.TrackEnabled(TrackKindAudio) {
		t.Error("audio mute chosen before the peer should be applied to it")
	}
	if !peer.TrackEnabled(TrackKindVideo) {
		t.Error("video was never muted and should stay enabled")
	}
}

func TestNegotiator_SwitchCamera(t *testing.T) {
	n, provider, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Video: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}

	tracks := provider.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("provider created %d tracks, want 1", len(tracks))
	}
	first := tracks[0]

	if err := n.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera: %v", err)
	}

	// The old track is closed, a new one from the other camera is live.
	if !first.Closed() {
		t.Error("previous camera track should be closed after the switch")
	}
	if provider.OpenTracks() != 1 {
		t.Errorf("OpenTracks() = %d, want 1", provider.OpenTracks())
	}

	replaced := engine.LastPeer().Replaced()
	if len(replaced) != 1 {
		t.Fatalf("peer saw %d track replacements, want 1", len(replaced))
	}
	if replaced[0].ID() == first.ID() {
		t.Error("replacement should be a different track")
	}
}

func TestNegotiator_SwitchCameraKeepsMute(t *testing.T) {
	n, _, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Video: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}
	if enabled, ok := n.Toggle(TrackKindVideo); !ok || enabled {
		t.Fatalf("Toggle() = (%t, %t), want (false, true)", enabled, ok)
	}

	if err := n.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera: %v", err)
	}
	if engine.LastPeer().TrackEnabled(TrackKindVideo) {
		t.Error("video mute should survive a camera switch")
	}
}

func TestNegotiator_SwitchCameraSingleDevice(t *testing.T) {
	n, provider, _ := newTestNegotiator(t)
	provider.SetVideoDevices([]DeviceInfo{{ID: "cam-only", Label: "Only Camera", Kind: TrackKindVideo}})

	if _, err := n.AcquireLocal(context.Background(), Constraints{Video: true, VideoDeviceID: "cam-only"}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}

	err := n.SwitchCamera(context.Background())
	if !errors.Is(err, ErrSwitchUnavailable) {
		t.Errorf("SwitchCamera with one camera: error = %v, want %v", err, ErrSwitchUnavailable)
	}
}

func TestNegotiator_SwitchCameraWithoutVideo(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}

	if err := n.SwitchCamera(context.Background()); !errors.Is(err, ErrNoLocalTrack) {
		t.Errorf("SwitchCamera on audio-only call: error = %v, want %v", err, ErrNoLocalTrack)
	}
}

func TestNegotiator_ReleaseExactlyOnce(t *testing.T) {
	n, provider, engine := newTestNegotiator(t)

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("AcquireLocal: %v", err)
	}
	if err := n.StartPeer(); err != nil {
		t.Fatalf("StartPeer: %v", err)
	}

	if err := n.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !n.Released() {
		t.Error("Released() should be true")
	}
	if provider.OpenTracks() != 0 {
		t.Errorf("OpenTracks() = %d, want 0 after release", provider.OpenTracks())
	}
	if !engine.LastPeer().Closed() {
		t.Error("peer should be closed after release")
	}

	// A second release must not close anything again.
	if err := n.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	for _, track := range provider.Tracks() {
		if track.CloseCount() != 1 {
			t.Errorf("track %s closed %d times, want 1", track.ID(), track.CloseCount())
		}
	}
}

func TestNegotiator_OperationsAfterRelease(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	if err := n.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := n.AcquireLocal(context.Background(), Constraints{Audio: true}); !errors.Is(err, ErrReleased) {
		t.Errorf("AcquireLocal after release: error = %v, want %v", err, ErrReleased)
	}
	if err := n.StartPeer(); !errors.Is(err, ErrReleased) {
		t.Errorf("StartPeer after release: error = %v, want %v", err, ErrReleased)
	}
	if err := n.AddRemoteCandidate(Candidate{Candidate: "candidate:1"}); !errors.Is(err, ErrReleased) {
		t.Errorf("AddRemoteCandidate after release: error = %v, want %v", err, ErrReleased)
	}
	if _, ok := n.Toggle(TrackKindAudio); ok {
		t.Error("Toggle after release should report ok=false")
	}
}
