package media

import "context"

// Track is one local capture track. Closing a track releases the
// underlying device resource; closing twice is safe.
type Track interface {
	// ID returns a stable identifier for the track.
	ID() string
	// Kind returns whether this is an audio or video track.
	Kind() TrackKind
	// Close releases the track's device resource.
	Close() error
}

// Provider acquires local capture media. Implementations wrap real devices
// or synthesize tracks for tests.
type Provider interface {
	// GetMedia acquires the tracks requested by the constraints. Errors
	// wrap ErrPermissionDenied or ErrDeviceUnavailable.
	GetMedia(ctx context.Context, c Constraints) (*LocalMedia, error)

	// VideoDevices lists the available cameras.
	VideoDevices() ([]DeviceInfo, error)

	// GetVideoTrack opens a single camera track on the given device.
	GetVideoTrack(ctx context.Context, deviceID string) (Track, error)
}

// LocalMedia bundles the local tracks of one session. The negotiator owns
// the handle and releases it exactly once when the session terminates.
type LocalMedia struct {
	Audio Track
	Video Track
}

// Track returns the track of the given kind, or nil.
func (m *LocalMedia) Track(kind TrackKind) Track {
	if m == nil {
		return nil
	}
	switch kind {
	case TrackKindAudio:
		return m.Audio
	case TrackKindVideo:
		return m.Video
	default:
		return nil
	}
}

// Has returns true if a track of the given kind was captured.
func (m *LocalMedia) Has(kind TrackKind) bool {
	return m.Track(kind) != nil
}

// Close releases all tracks. The first error wins; remaining tracks are
// still closed.
func (m *LocalMedia) Close() error {
	if m == nil {
		return nil
	}

	var first error
	if m.Audio != nil {
		if err := m.Audio.Close(); err != nil && first == nil {
			first = err
		}
	}
	if m.Video != nil {
		if err := m.Video.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
