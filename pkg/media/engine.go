package media

import "context"

// PeerConfig configures one engine peer. The callbacks fire on engine
// goroutines; receivers must do their own locking.
type PeerConfig struct {
	// ICEServers are handed to the engine for candidate discovery.
	ICEServers []ICEServer

	// OnCandidate is invoked for each discovered local candidate.
	OnCandidate func(Candidate)

	// OnConnectionStateChange is invoked whenever connectivity changes.
	OnConnectionStateChange func(ConnectionState)

	// OnRemoteTrack is invoked when the remote side adds a track.
	OnRemoteTrack func(RemoteTrack)
}

// Peer is one connection performing the description and candidate
// handshake for a session.
type Peer interface {
	// AddLocal attaches the local capture tracks for sending.
	AddLocal(m *LocalMedia) error

	// CreateOffer produces and installs the local offer description.
	CreateOffer(ctx context.Context) (Description, error)

	// CreateAnswer produces and installs the local answer description.
	// The remote offer must have been applied first.
	CreateAnswer(ctx context.Context) (Description, error)

	// SetRemoteDescription applies the peer's offer or answer.
	SetRemoteDescription(d Description) error

	// AddCandidate applies one remote candidate. Only valid after the
	// remote description was applied.
	AddCandidate(c Candidate) error

	// SetTrackEnabled pauses or resumes sending the local track of the
	// given kind without renegotiating.
	SetTrackEnabled(kind TrackKind, enabled bool) error

	// ReplaceVideoTrack swaps the outgoing video track in place, without
	// renegotiating. The previous track is not closed.
	ReplaceVideoTrack(t Track) error

	// Close shuts the connection down. Closing twice is safe.
	Close() error
}

// Engine creates peers. The production engine speaks WebRTC; tests use
// FakeEngine.
type Engine interface {
	NewPeer(config PeerConfig) (Peer, error)
}
