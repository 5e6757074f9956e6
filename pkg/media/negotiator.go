package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// NegotiatorConfig configures a Negotiator.
type NegotiatorConfig struct {
	// Provider acquires local capture media. Required.
	Provider Provider

	// Engine creates the peer connection. Required.
	Engine Engine

	// ICEServers are handed to the engine peer.
	ICEServers []ICEServer

	// OnCandidate is invoked for each discovered local candidate.
	OnCandidate func(Candidate)

	// OnConnectionStateChange is invoked whenever connectivity changes.
	OnConnectionStateChange func(ConnectionState)

	// OnRemoteTrack is invoked when the remote side adds a track.
	OnRemoteTrack func(RemoteTrack)

	// LoggerFactory is used for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *NegotiatorConfig) Validate() error {
	if c.Provider == nil {
		return ErrProviderRequired
	}
	if c.Engine == nil {
		return ErrEngineRequired
	}
	return nil
}

// Negotiator owns the media resources of one call session: the local
// capture tracks and the engine peer. It runs the description handshake,
// buffers remote candidates that arrive before the remote description and
// flushes them in arrival order once it is applied, and guarantees that
// everything it acquired is released exactly once.
type Negotiator struct {
	config NegotiatorConfig
	log    logging.LeveledLogger

	mu            sync.Mutex
	local         *LocalMedia
	peer          Peer
	enabled       map[TrackKind]bool
	videoDeviceID string
	pending       []Candidate
	haveRemote    bool
	released      bool
}

// NewNegotiator creates a negotiator with no acquired resources.
func NewNegotiator(config NegotiatorConfig) (*Negotiator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := &Negotiator{
		config:  config,
		enabled: make(map[TrackKind]bool),
	}

	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("media")
	}

	return n, nil
}

// AcquireLocal captures local media per the constraints. The returned
// handle remains owned by the negotiator; callers may hand it to consumers
// but must not close it.
func (n *Negotiator) AcquireLocal(ctx context.Context, c Constraints) (*LocalMedia, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return nil, ErrReleased
	}

	local, err := n.config.Provider.GetMedia(ctx, c)
	if err != nil {
		return nil, err
	}

	n.local = local
	n.enabled[TrackKindAudio] = local.Has(TrackKindAudio)
	n.enabled[TrackKindVideo] = local.Has(TrackKindVideo)
	n.videoDeviceID = c.VideoDeviceID

	if n.log != nil {
		n.log.Debugf("acquired local media audio=%t video=%t",
			local.Has(TrackKindAudio), local.Has(TrackKindVideo))
	}

	return local, nil
}

// StartPeer creates the engine peer and attaches the local tracks. It is a
// no-op when the peer already exists.
func (n *Negotiator) StartPeer() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return ErrReleased
	}
	if n.peer != nil {
		return nil
	}

	peer, err := n.config.Engine.NewPeer(PeerConfig{
		ICEServers:              n.config.ICEServers,
		OnCandidate:             n.config.OnCandidate,
		OnConnectionStateChange: n.config.OnConnectionStateChange,
		OnRemoteTrack:           n.config.OnRemoteTrack,
	})
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}

	if n.local != nil {
		if err := peer.AddLocal(n.local); err != nil {
			peer.Close()
			return fmt.Errorf("attach local media: %w", err)
		}
	}

	// Re-apply mute state chosen before the peer existed.
	for kind, enabled := range n.enabled {
		if !enabled && n.local.Has(kind) {
			if err := peer.SetTrackEnabled(kind, false); err != nil && n.log != nil {
				n.log.Warnf("apply %s mute: %v", kind, err)
			}
		}
	}

	n.peer = peer
	return nil
}

// CreateOffer produces the local offer description.
func (n *Negotiator) CreateOffer(ctx context.Context) (Description, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return Description{}, ErrReleased
	}
	if n.peer == nil {
		return Description{}, ErrNoPeer
	}
	return n.peer.CreateOffer(ctx)
}

// CreateAnswer produces the local answer description. The remote offer
// must have been applied first.
func (n *Negotiator) CreateAnswer(ctx context.Context) (Description, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return Description{}, ErrReleased
	}
	if n.peer == nil {
		return Description{}, ErrNoPeer
	}
	if !n.haveRemote {
		return Description{}, ErrNoRemoteDescription
	}
	return n.peer.CreateAnswer(ctx)
}

// ApplyRemoteDescription installs the peer's description, then flushes all
// buffered candidates in their arrival order.
func (n *Negotiator) ApplyRemoteDescription(d Description) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return ErrReleased
	}
	if n.peer == nil {
		return ErrNoPeer
	}

	if err := n.peer.SetRemoteDescription(d); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	n.haveRemote = true

	flushed := len(n.pending)
	for _, c := range n.pending {
		if err := n.peer.AddCandidate(c); err != nil && n.log != nil {
			n.log.Warnf("flush candidate: %v", err)
		}
	}
	n.pending = nil

	if flushed > 0 && n.log != nil {
		n.log.Debugf("flushed %d buffered candidates", flushed)
	}

	return nil
}

// AddRemoteCandidate applies one remote candidate, or buffers it when the
// remote description has not been applied yet.
func (n *Negotiator) AddRemoteCandidate(c Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return ErrReleased
	}

	if n.peer == nil || !n.haveRemote {
		n.pending = append(n.pending, c)
		return nil
	}
	return n.peer.AddCandidate(c)
}

// PendingCandidates returns how many candidates are buffered.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Toggle flips the enabled state of the local track of the given kind.
// It returns the new state and ok=true, or ok=false when no such track
// exists or the engine refused the change.
func (n *Negotiator) Toggle(kind TrackKind) (enabled bool, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released || !n.local.Has(kind) {
		return false, false
	}

	next := !n.enabled[kind]
	if n.peer != nil {
		if err := n.peer.SetTrackEnabled(kind, next); err != nil {
			if n.log != nil {
				n.log.Warnf("toggle %s: %v", kind, err)
			}
			return n.enabled[kind], false
		}
	}
	n.enabled[kind] = next
	return next, true
}

// TrackEnabled returns the enabled state of the local track of a kind.
func (n *Negotiator) TrackEnabled(kind TrackKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled[kind]
}

// SwitchCamera replaces the outgoing video track with one from another
// camera, without renegotiating. The previous track is closed.
func (n *Negotiator) SwitchCamera(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return ErrReleased
	}
	if !n.local.Has(TrackKindVideo) {
		return ErrNoLocalTrack
	}

	devices, err := n.config.Provider.VideoDevices()
	if err != nil {
		return fmt.Errorf("list cameras: %w", err)
	}

	candidates := rotateAfter(devices, n.videoDeviceID)
	if len(candidates) == 0 {
		return ErrSwitchUnavailable
	}

	// The current camera is held open, so the first device that opens is
	// guaranteed to be a different one.
	var (
		track   Track
		chosen  DeviceInfo
		lastErr error
	)
	for _, d := range candidates {
		t, err := n.config.Provider.GetVideoTrack(ctx, d.ID)
		if err == nil {
			track, chosen = t, d
			break
		}
		lastErr = err
	}
	if track == nil {
		if lastErr != nil {
			return fmt.Errorf("open camera: %w", lastErr)
		}
		return ErrSwitchUnavailable
	}

	if n.peer != nil {
		if err := n.peer.ReplaceVideoTrack(track); err != nil {
			track.Close()
			return fmt.Errorf("replace video track: %w", err)
		}
		if !n.enabled[TrackKindVideo] {
			if err := n.peer.SetTrackEnabled(TrackKindVideo, false); err != nil && n.log != nil {
				n.log.Warnf("re-apply video mute: %v", err)
			}
		}
	}

	old := n.local.Video
	n.local.Video = track
	n.videoDeviceID = chosen.ID

	if err := old.Close(); err != nil && n.log != nil {
		n.log.Warnf("close previous camera track: %v", err)
	}

	if n.log != nil {
		n.log.Infof("switched camera device=%s", chosen.ID)
	}

	return nil
}

// rotateAfter orders devices so iteration starts just after the device with
// the given id, excluding that device itself.
func rotateAfter(devices []DeviceInfo, currentID string) []DeviceInfo {
	if len(devices) == 0 {
		return nil
	}

	start := 0
	for i, d := range devices {
		if currentID != "" && d.ID == currentID {
			start = i + 1
			break
		}
	}

	out := make([]DeviceInfo, 0, len(devices))
	for i := 0; i < len(devices); i++ {
		d := devices[(start+i)%len(devices)]
		if d.ID == currentID {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Release frees the local tracks and the peer. Only the first call does
// anything; every later call returns nil.
func (n *Negotiator) Release() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.released {
		return nil
	}
	n.released = true

	var first error
	if n.local != nil {
		if err := n.local.Close(); err != nil {
			first = err
		}
		n.local = nil
	}
	if n.peer != nil {
		if err := n.peer.Close(); err != nil && first == nil {
			first = err
		}
		n.peer = nil
	}
	n.pending = nil

	if n.log != nil {
		n.log.Debugf("released")
	}

	return first
}

// Released returns true once Release has run.
func (n *Negotiator) Released() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.released
}
