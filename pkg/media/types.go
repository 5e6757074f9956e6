package media

// TrackKind discriminates audio and video tracks.
type TrackKind int

const (
	// TrackKindAudio is a microphone or remote audio track.
	TrackKindAudio TrackKind = iota
	// TrackKindVideo is a camera or remote video track.
	TrackKindVideo
)

// String returns a human-readable name for the track kind.
func (k TrackKind) String() string {
	switch k {
	case TrackKindAudio:
		return "audio"
	case TrackKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// IsValid returns true if the track kind is known.
func (k TrackKind) IsValid() bool {
	return k == TrackKindAudio || k == TrackKindVideo
}

// ConnectionState reflects the connectivity of one engine peer.
type ConnectionState int

const (
	// ConnectionStateNew is the state before any handshake activity.
	ConnectionStateNew ConnectionState = iota
	// ConnectionStateConnecting means the transport handshake is running.
	ConnectionStateConnecting
	// ConnectionStateConnected means media can flow.
	ConnectionStateConnected
	// ConnectionStateDisconnected means connectivity was lost and may not
	// recover.
	ConnectionStateDisconnected
	// ConnectionStateFailed means the connection is unrecoverable.
	ConnectionStateFailed
	// ConnectionStateClosed means the peer was shut down locally.
	ConnectionStateClosed
)

// String returns a human-readable name for the connection state.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsValid returns true if the connection state is known.
func (s ConnectionState) IsValid() bool {
	return s >= ConnectionStateNew && s <= ConnectionStateClosed
}

// Description is an SDP session description exchanged during the handshake.
type Description struct {
	// Type is "offer" or "answer".
	Type string `json:"type"`
	// SDP is the raw session description.
	SDP string `json:"sdp"`
}

// Candidate is one discovered network path, in the candidate-attribute form
// of RFC 8839. Pointer fields mirror the optionality of the wire format.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ICEServer is a STUN or TURN endpoint handed to the engine.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Constraints selects which local capture kinds to acquire.
type Constraints struct {
	// Audio requests a microphone track.
	Audio bool
	// Video requests a camera track.
	Video bool
	// VideoDeviceID selects a specific camera. Empty picks any.
	VideoDeviceID string
}

// DeviceInfo identifies one capture device.
type DeviceInfo struct {
	ID    string
	Label string
	Kind  TrackKind
}

// RemoteTrack describes an inbound track announced by the engine. The
// track itself is owned and drained by the engine peer.
type RemoteTrack struct {
	ID   string
	Kind TrackKind
}
