package media

import "errors"

// Errors returned by the media package.
var (
	// ErrPermissionDenied is returned when the platform refuses access to
	// a capture device.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrDeviceUnavailable is returned when no usable capture device
	// exists or the device cannot be opened.
	ErrDeviceUnavailable = errors.New("media: device unavailable")

	// ErrNoLocalTrack is returned when an operation needs a local track
	// of a kind that was never acquired.
	ErrNoLocalTrack = errors.New("media: no local track of that kind")

	// ErrNoRemoteDescription is returned when an answer is requested
	// before the remote description was applied.
	ErrNoRemoteDescription = errors.New("media: remote description not applied")

	// ErrNoPeer is returned when a handshake operation runs before the
	// peer connection exists.
	ErrNoPeer = errors.New("media: peer not started")

	// ErrReleased is returned when using a negotiator after release.
	ErrReleased = errors.New("media: negotiator released")

	// ErrSwitchUnavailable is returned by camera switching when no
	// alternate camera exists.
	ErrSwitchUnavailable = errors.New("media: no alternate camera available")

	// ErrUnsupportedTrack is returned when a track implementation cannot
	// be attached to this engine.
	ErrUnsupportedTrack = errors.New("media: track not supported by engine")

	// ErrProviderRequired is returned when a config has no Provider.
	ErrProviderRequired = errors.New("media: provider required")

	// ErrEngineRequired is returned when a config has no Engine.
	ErrEngineRequired = errors.New("media: engine required")
)
