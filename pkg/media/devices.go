package media

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// DeviceProviderConfig configures the capture provider backed by real
// devices.
type DeviceProviderConfig struct {
	// VideoBitRate is the target VP8 bitrate in bits per second.
	// Default: 1_500_000
	VideoBitRate int

	// MaxWidth caps the capture width. Default: 640
	MaxWidth int

	// MaxHeight caps the capture height. Default: 480
	MaxHeight int

	// LoggerFactory is used for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *DeviceProviderConfig) applyDefaults() {
	if c.VideoBitRate == 0 {
		c.VideoBitRate = 1_500_000
	}
	if c.MaxWidth == 0 {
		c.MaxWidth = 640
	}
	if c.MaxHeight == 0 {
		c.MaxHeight = 480
	}
}

// DeviceTrack adapts a captured device track to the Track interface. The
// WebRTC engine unwraps it to attach the underlying RTP source.
type DeviceTrack struct {
	source mediadevices.Track
	kind   TrackKind

	closeOnce sync.Once
	closeErr  error
}

// NewDeviceTrack wraps a mediadevices track.
func NewDeviceTrack(source mediadevices.Track) *DeviceTrack {
	kind := TrackKindAudio
	if source.Kind() == webrtc.RTPCodecTypeVideo {
		kind = TrackKindVideo
	}
	return &DeviceTrack{source: source, kind: kind}
}

// ID returns the track id assigned at capture.
func (t *DeviceTrack) ID() string { return t.source.ID() }

// Kind returns whether this is an audio or video track.
func (t *DeviceTrack) Kind() TrackKind { return t.kind }

// Close releases the capture device. Safe to call multiple times.
func (t *DeviceTrack) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.source.Close()
	})
	return t.closeErr
}

// Verify DeviceTrack implements Track.
var _ Track = (*DeviceTrack)(nil)
