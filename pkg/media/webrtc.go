package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServer is used when no ICE servers are configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// WebRTCEngineConfig configures the production engine.
type WebRTCEngineConfig struct {
	// MediaEngineSetup registers codecs on each new peer. Wire it to
	// DeviceProvider.PopulateMediaEngine so the encoder codecs match the
	// capture pipeline. Default: pion's default codec set.
	MediaEngineSetup func(*webrtc.MediaEngine) error

	// DisconnectedTimeout is how long without traffic before a peer is
	// considered disconnected. Default: 30s
	DisconnectedTimeout time.Duration

	// FailedTimeout is how long without traffic before a peer is
	// considered failed. Default: 120s
	FailedTimeout time.Duration

	// KeepAliveInterval is how often keepalives are sent. Default: 2s
	KeepAliveInterval time.Duration

	// LoggerFactory is used for logging, including pion internals.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *WebRTCEngineConfig) applyDefaults() {
	if c.DisconnectedTimeout == 0 {
		c.DisconnectedTimeout = 30 * time.Second
	}
	if c.FailedTimeout == 0 {
		c.FailedTimeout = 120 * time.Second
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 2 * time.Second
	}
}

// WebRTCEngine creates WebRTC peer connections. One engine serves many
// sequential calls; each call gets a fresh Peer.
type WebRTCEngine struct {
	config WebRTCEngineConfig
	log    logging.LeveledLogger
}

// NewWebRTCEngine creates an engine.
func NewWebRTCEngine(config WebRTCEngineConfig) *WebRTCEngine {
	config.applyDefaults()

	e := &WebRTCEngine{config: config}

	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("media")
	}

	return e
}

// NewPeer assembles a peer connection with the engine's codec and timeout
// policy.
func (e *WebRTCEngine) NewPeer(config PeerConfig) (Peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if e.config.MediaEngineSetup != nil {
		if err := e.config.MediaEngineSetup(mediaEngine); err != nil {
			return nil, fmt.Errorf("media engine setup: %w", err)
		}
	} else {
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{}
	if e.config.LoggerFactory != nil {
		settings.LoggerFactory = e.config.LoggerFactory
	}
	settings.SetICETimeouts(
		e.config.DisconnectedTimeout,
		e.config.FailedTimeout,
		e.config.KeepAliveInterval,
	)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	servers := config.ICEServers
	if len(servers) == 0 {
		servers = []ICEServer{{URLs: []string{DefaultSTUNServer}}}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: toWebRTCServers(servers),
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &webRTCPeer{
		log:     e.log,
		pc:      pc,
		senders: make(map[TrackKind]*webrtc.RTPSender),
		tracks:  make(map[TrackKind]mediadevices.Track),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		if config.OnCandidate != nil {
			init := c.ToJSON()
			config.OnCandidate(Candidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if p.log != nil {
			p.log.Debugf("connection state %s", s)
		}
		if config.OnConnectionStateChange != nil {
			config.OnConnectionStateChange(fromWebRTCState(s))
		}
	})

	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := TrackKindAudio
		if tr.Kind() == webrtc.RTPCodecTypeVideo {
			kind = TrackKindVideo
		}
		if p.log != nil {
			p.log.Infof("remote track id=%s kind=%s codec=%s",
				tr.ID(), kind, tr.Codec().MimeType)
		}

		// Keep the receiver drained so RTCP feedback continues to flow.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := tr.Read(buf); err != nil {
					return
				}
			}
		}()

		if config.OnRemoteTrack != nil {
			config.OnRemoteTrack(RemoteTrack{ID: tr.ID(), Kind: kind})
		}
	})

	return p, nil
}

type webRTCPeer struct {
	log logging.LeveledLogger
	pc  *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[TrackKind]*webrtc.RTPSender
	tracks  map[TrackKind]mediadevices.Track
	closed  bool
}

func (p *webRTCPeer) AddLocal(m *LocalMedia) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, kind := range []TrackKind{TrackKindAudio, TrackKindVideo} {
		track := m.Track(kind)
		if track == nil {
			// Still receive the peer's media of this kind.
			_, err := p.pc.AddTransceiverFromKind(toCodecType(kind),
				webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
			if err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
			continue
		}

		dt, ok := track.(*DeviceTrack)
		if !ok {
			return fmt.Errorf("%w: %T", ErrUnsupportedTrack, track)
		}

		sender, err := p.pc.AddTrack(dt.source)
		if err != nil {
			return fmt.Errorf("add %s track: %w", kind, err)
		}
		p.senders[kind] = sender
		p.tracks[kind] = dt.source
	}

	return nil
}

func (p *webRTCPeer) CreateOffer(ctx context.Context) (Description, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return Description{}, fmt.Errorf("set local description: %w", err)
	}
	return Description{Type: "offer", SDP: offer.SDP}, nil
}

func (p *webRTCPeer) CreateAnswer(ctx context.Context) (Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return Description{}, fmt.Errorf("set local description: %w", err)
	}
	return Description{Type: "answer", SDP: answer.SDP}, nil
}

func (p *webRTCPeer) SetRemoteDescription(d Description) error {
	var sdpType webrtc.SDPType
	switch d.Type {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("unknown description type %q", d.Type)
	}

	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: sdpType,
		SDP:  d.SDP,
	})
}

func (p *webRTCPeer) AddCandidate(c Candidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// SetTrackEnabled pauses sending by detaching the track from its sender,
// and resumes by reattaching it. No renegotiation happens either way.
func (p *webRTCPeer) SetTrackEnabled(kind TrackKind, enabled bool) error {
	p.mu.Lock()
	sender := p.senders[kind]
	track := p.tracks[kind]
	p.mu.Unlock()

	if sender == nil {
		return ErrNoLocalTrack
	}

	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

func (p *webRTCPeer) ReplaceVideoTrack(t Track) error {
	dt, ok := t.(*DeviceTrack)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, t)
	}

	p.mu.Lock()
	sender := p.senders[TrackKindVideo]
	p.mu.Unlock()

	if sender == nil {
		return ErrNoLocalTrack
	}

	if err := sender.ReplaceTrack(dt.source); err != nil {
		return fmt.Errorf("replace track: %w", err)
	}

	p.mu.Lock()
	p.tracks[TrackKindVideo] = dt.source
	p.mu.Unlock()

	return nil
}

func (p *webRTCPeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.pc.Close()
}

func toWebRTCServers(servers []ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

func toCodecType(kind TrackKind) webrtc.RTPCodecType {
	if kind == TrackKindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func fromWebRTCState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return ConnectionStateNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return ConnectionStateClosed
	default:
		return ConnectionStateNew
	}
}

// Verify the engine types implement their interfaces.
var (
	_ Engine = (*WebRTCEngine)(nil)
	_ Peer   = (*webRTCPeer)(nil)
)
