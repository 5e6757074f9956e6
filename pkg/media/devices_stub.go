//go:build !(linux && cgo)

package media

import (
	"context"
	"fmt"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// DeviceProvider is a placeholder on platforms without a capture backend.
// Construction succeeds so wiring code stays platform-independent;
// acquisition always fails with ErrDeviceUnavailable.
type DeviceProvider struct {
	config DeviceProviderConfig
	log    logging.LeveledLogger
}

// NewDeviceProvider creates the placeholder provider.
func NewDeviceProvider(config DeviceProviderConfig) (*DeviceProvider, error) {
	config.applyDefaults()

	p := &DeviceProvider{config: config}

	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("media")
	}

	return p, nil
}

// PopulateMediaEngine registers pion's default codecs so receive-only
// sessions still negotiate.
func (p *DeviceProvider) PopulateMediaEngine(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

// GetMedia always fails on this platform.
func (p *DeviceProvider) GetMedia(ctx context.Context, c Constraints) (*LocalMedia, error) {
	return nil, fmt.Errorf("%w: no capture backend on this platform", ErrDeviceUnavailable)
}

// VideoDevices reports no cameras.
func (p *DeviceProvider) VideoDevices() ([]DeviceInfo, error) {
	return nil, nil
}

// GetVideoTrack always fails on this platform.
func (p *DeviceProvider) GetVideoTrack(ctx context.Context, deviceID string) (Track, error) {
	return nil, fmt.Errorf("%w: no capture backend on this platform", ErrDeviceUnavailable)
}

// Verify DeviceProvider implements Provider.
var _ Provider = (*DeviceProvider)(nil)
