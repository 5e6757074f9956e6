package media

import (
	"context"
	"fmt"
	"sync"
)

// FakeTrack is an in-memory Track that counts its closes. Tests use the
// count to prove resources are released exactly once.
type FakeTrack struct {
	id   string
	kind TrackKind

	mu      sync.Mutex
	closes  int
	onClose func()
}

// NewFakeTrack creates a standalone fake track.
func NewFakeTrack(id string, kind TrackKind) *FakeTrack {
	return &FakeTrack{id: id, kind: kind}
}

// ID returns the track id.
func (t *FakeTrack) ID() string { return t.id }

// Kind returns the track kind.
func (t *FakeTrack) Kind() TrackKind { return t.kind }

// Close records the close. Only the first close releases the device.
func (t *FakeTrack) Close() error {
	t.mu.Lock()
	t.closes++
	first := t.closes == 1
	release := t.onClose
	t.mu.Unlock()

	if first && release != nil {
		release()
	}
	return nil
}

// CloseCount returns how many times Close was called.
func (t *FakeTrack) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Closed returns true once the track was closed at least once.
func (t *FakeTrack) Closed() bool { return t.CloseCount() > 0 }

// FakeProvider is an in-memory Provider. It models device exclusivity the
// way V4L2 behaves: a camera that is held open cannot be opened again until
// its track is closed.
type FakeProvider struct {
	mu          sync.Mutex
	devices     []DeviceInfo
	open        map[string]*FakeTrack
	tracks      []*FakeTrack
	getMediaErr error
	seq         int
}

// NewFakeProvider creates a provider with one microphone and two cameras,
// "cam-front" and "cam-back".
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		devices: []DeviceInfo{
			{ID: "cam-front", Label: "Front Camera", Kind: TrackKindVideo},
			{ID: "cam-back", Label: "Back Camera", Kind: TrackKindVideo},
		},
		open: make(map[string]*FakeTrack),
	}
}

// FailGetMedia makes subsequent GetMedia calls return err. Pass nil to
// restore normal behavior.
func (p *FakeProvider) FailGetMedia(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getMediaErr = err
}

// SetVideoDevices replaces the camera roster.
func (p *FakeProvider) SetVideoDevices(devices []DeviceInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append([]DeviceInfo(nil), devices...)
}

// GetMedia synthesizes the requested tracks.
func (p *FakeProvider) GetMedia(ctx context.Context, c Constraints) (*LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.getMediaErr != nil {
		return nil, p.getMediaErr
	}

	local := &LocalMedia{}
	if c.Audio {
		local.Audio = p.openTrackLocked("mic-0", TrackKindAudio)
		if local.Audio == nil {
			return nil, fmt.Errorf("%w: microphone busy", ErrDeviceUnavailable)
		}
	}
	if c.Video {
		id := c.VideoDeviceID
		if id == "" {
			for _, d := range p.devices {
				if _, busy := p.open[d.ID]; !busy {
					id = d.ID
					break
				}
			}
		}
		if id == "" {
			return nil, fmt.Errorf("%w: all cameras busy", ErrDeviceUnavailable)
		}
		local.Video = p.openTrackLocked(id, TrackKindVideo)
		if local.Video == nil {
			return nil, fmt.Errorf("%w: camera %s busy", ErrDeviceUnavailable, id)
		}
	}
	return local, nil
}

// VideoDevices lists the camera roster.
func (p *FakeProvider) VideoDevices() ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeviceInfo(nil), p.devices...), nil
}

// GetVideoTrack opens one camera, failing when it is held open.
func (p *FakeProvider) GetVideoTrack(ctx context.Context, deviceID string) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	found := false
	for _, d := range p.devices {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no camera %s", ErrDeviceUnavailable, deviceID)
	}

	t := p.openTrackLocked(deviceID, TrackKindVideo)
	if t == nil {
		return nil, fmt.Errorf("%w: camera %s busy", ErrDeviceUnavailable, deviceID)
	}
	return t, nil
}

func (p *FakeProvider) openTrackLocked(deviceID string, kind TrackKind) *FakeTrack {
	if _, busy := p.open[deviceID]; busy {
		return nil
	}

	p.seq++
	t := &FakeTrack{
		id:   fmt.Sprintf("%s-track-%d", deviceID, p.seq),
		kind: kind,
	}
	t.onClose = func() {
		p.mu.Lock()
		delete(p.open, deviceID)
		p.mu.Unlock()
	}

	p.open[deviceID] = t
	p.tracks = append(p.tracks, t)
	return t
}

// OpenTracks returns how many created tracks are still unclosed. Zero after
// a terminated session proves every handle was released.
func (p *FakeProvider) OpenTracks() int {
	p.mu.Lock()
	tracks := append([]*FakeTrack(nil), p.tracks...)
	p.mu.Unlock()

	open := 0
	for _, t := range tracks {
		if !t.Closed() {
			open++
		}
	}
	return open
}

// Tracks returns every track the provider ever created.
func (p *FakeProvider) Tracks() []*FakeTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeTrack(nil), p.tracks...)
}

// FakeEngine is an in-memory Engine handing out FakePeers.
type FakeEngine struct {
	mu         sync.Mutex
	peers      []*FakePeer
	newPeerErr error
}

// NewFakeEngine creates an engine with no peers.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

// FailNewPeer makes subsequent NewPeer calls return err.
func (e *FakeEngine) FailNewPeer(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newPeerErr = err
}

// NewPeer creates and records a FakePeer.
func (e *FakeEngine) NewPeer(config PeerConfig) (Peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.newPeerErr != nil {
		return nil, e.newPeerErr
	}

	p := &FakePeer{
		config:  config,
		enabled: make(map[TrackKind]bool),
		senders: make(map[TrackKind]bool),
	}
	e.peers = append(e.peers, p)
	return p, nil
}

// LastPeer returns the most recently created peer, or nil.
func (e *FakeEngine) LastPeer() *FakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.peers) == 0 {
		return nil
	}
	return e.peers[len(e.peers)-1]
}

// Peers returns all created peers.
func (e *FakeEngine) Peers() []*FakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakePeer(nil), e.peers...)
}

// FakePeer records handshake operations and lets tests drive the callbacks
// a real engine would fire.
type FakePeer struct {
	config PeerConfig

	mu          sync.Mutex
	local       *LocalMedia
	remote      *Description
	added       []Candidate
	enabled     map[TrackKind]bool
	senders     map[TrackKind]bool
	replaced    []Track
	offerCount  int
	answerCount int
	closed      bool

	offerErr     error
	answerErr    error
	remoteErr    error
	candidateErr error
}

// AddLocal records the attached local media.
func (p *FakePeer) AddLocal(m *LocalMedia) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.local = m
	for _, kind := range []TrackKind{TrackKindAudio, TrackKindVideo} {
		if m.Has(kind) {
			p.senders[kind] = true
			p.enabled[kind] = true
		}
	}
	return nil
}

// CreateOffer returns a synthetic offer.
func (p *FakePeer) CreateOffer(ctx context.Context) (Description, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.offerErr != nil {
		return Description{}, p.offerErr
	}
	p.offerCount++
	return Description{Type: "offer", SDP: fmt.Sprintf("v=0 fake-offer-%d", p.offerCount)}, nil
}

// CreateAnswer returns a synthetic answer. Like the real engine, it
// requires the remote description first.
func (p *FakePeer) CreateAnswer(ctx context.Context) (Description, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.answerErr != nil {
		return Description{}, p.answerErr
	}
	if p.remote == nil {
		return Description{}, ErrNoRemoteDescription
	}
	p.answerCount++
	return Description{Type: "answer", SDP: fmt.Sprintf("v=0 fake-answer-%d", p.answerCount)}, nil
}

// SetRemoteDescription records the remote description.
func (p *FakePeer) SetRemoteDescription(d Description) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = &d
	return nil
}

// AddCandidate records one applied candidate.
func (p *FakePeer) AddCandidate(c Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.added = append(p.added, c)
	return nil
}

// SetTrackEnabled records the sender state.
func (p *FakePeer) SetTrackEnabled(kind TrackKind, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.senders[kind] {
		return ErrNoLocalTrack
	}
	p.enabled[kind] = enabled
	return nil
}

// ReplaceVideoTrack records the replacement track.
func (p *FakePeer) ReplaceVideoTrack(t Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.senders[TrackKindVideo] {
		return ErrNoLocalTrack
	}
	p.replaced = append(p.replaced, t)
	return nil
}

// Close marks the peer closed. Safe to call multiple times.
func (p *FakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// FailOffer makes CreateOffer return err.
func (p *FakePeer) FailOffer(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offerErr = err
}

// FailAnswer makes CreateAnswer return err.
func (p *FakePeer) FailAnswer(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answerErr = err
}

// FailRemoteDescription makes SetRemoteDescription return err.
func (p *FakePeer) FailRemoteDescription(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteErr = err
}

// FailCandidate makes AddCandidate return err.
func (p *FakePeer) FailCandidate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidateErr = err
}

// FireCandidate invokes the peer's OnCandidate callback, as gathering
// would.
func (p *FakePeer) FireCandidate(c Candidate) {
	if p.config.OnCandidate != nil {
		p.config.OnCandidate(c)
	}
}

// FireConnectionState invokes the peer's OnConnectionStateChange callback.
func (p *FakePeer) FireConnectionState(s ConnectionState) {
	if p.config.OnConnectionStateChange != nil {
		p.config.OnConnectionStateChange(s)
	}
}

// FireRemoteTrack invokes the peer's OnRemoteTrack callback.
func (p *FakePeer) FireRemoteTrack(t RemoteTrack) {
	if p.config.OnRemoteTrack != nil {
		p.config.OnRemoteTrack(t)
	}
}

// RemoteDescription returns the recorded remote description.
func (p *FakePeer) RemoteDescription() (Description, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remote == nil {
		return Description{}, false
	}
	return *p.remote, true
}

// Candidates returns the candidates applied to the peer, in order.
func (p *FakePeer) Candidates() []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Candidate(nil), p.added...)
}

// Replaced returns every track passed to ReplaceVideoTrack, in order.
func (p *FakePeer) Replaced() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Track(nil), p.replaced...)
}

// TrackEnabled returns the last sender state recorded for a kind.
func (p *FakePeer) TrackEnabled(kind TrackKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[kind]
}

// OfferCount returns how many offers were created.
func (p *FakePeer) OfferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offerCount
}

// AnswerCount returns how many answers were created.
func (p *FakePeer) AnswerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answerCount
}

// Closed returns true once the peer was closed.
func (p *FakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Verify the fakes implement their interfaces.
var (
	_ Track    = (*FakeTrack)(nil)
	_ Provider = (*FakeProvider)(nil)
	_ Engine   = (*FakeEngine)(nil)
	_ Peer     = (*FakePeer)(nil)
)
