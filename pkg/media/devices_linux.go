//go:build linux && cgo

package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // V4L2 capture
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // malgo capture
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceProvider captures from real cameras and microphones via V4L2 and
// malgo, encoding with VP8 and Opus.
type DeviceProvider struct {
	config   DeviceProviderConfig
	log      logging.LeveledLogger
	selector *mediadevices.CodecSelector
}

// NewDeviceProvider creates a provider with its codec pipeline assembled.
func NewDeviceProvider(config DeviceProviderConfig) (*DeviceProvider, error) {
	config.applyDefaults()

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = config.VideoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	p := &DeviceProvider{
		config: config,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}

	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("media")
	}

	return p, nil
}

// PopulateMediaEngine registers the provider's encoder codecs. Wire it to
// WebRTCEngineConfig.MediaEngineSetup so negotiation offers exactly what
// the capture pipeline produces.
func (p *DeviceProvider) PopulateMediaEngine(me *webrtc.MediaEngine) error {
	p.selector.Populate(me)
	return nil
}

// GetMedia captures the requested tracks.
//
// GetUserMedia fails as a unit if any requested track cannot be opened, so
// when both kinds are requested the provider falls back to video-only and
// then audio-only rather than failing the call outright.
func (p *DeviceProvider) GetMedia(ctx context.Context, c Constraints) (*LocalMedia, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no tracks requested", ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type attempt struct {
		audio bool
		video bool
		label string
	}
	var attempts []attempt
	if c.Audio && c.Video {
		attempts = []attempt{
			{true, true, "audio+video"},
			{false, true, "video-only"},
			{true, false, "audio-only"},
		}
	} else {
		attempts = []attempt{{c.Audio, c.Video, "requested"}}
	}

	var lastErr error
	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{Codec: p.selector}
		if a.video {
			constraints.Video = p.videoConstraint(c.VideoDeviceID)
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			lastErr = err
			if p.log != nil {
				p.log.Warnf("capture attempt %s failed: %v", a.label, err)
			}
			continue
		}

		return p.wrapStream(stream), nil
	}

	return nil, classifyCaptureError(lastErr)
}

// VideoDevices lists the available cameras.
func (p *DeviceProvider) VideoDevices() ([]DeviceInfo, error) {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceInfo{
			ID:    d.DeviceID,
			Label: d.Label,
			Kind:  TrackKindVideo,
		})
	}
	return out, nil
}

// GetVideoTrack opens one specific camera.
func (p *DeviceProvider) GetVideoTrack(ctx context.Context, deviceID string) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: p.selector,
		Video: p.videoConstraint(deviceID),
	})
	if err != nil {
		return nil, classifyCaptureError(err)
	}

	for _, track := range stream.GetTracks() {
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			p.watchTrack(track)
			return NewDeviceTrack(track), nil
		}
		track.Close()
	}

	return nil, fmt.Errorf("%w: device %s produced no video track", ErrDeviceUnavailable, deviceID)
}

func (p *DeviceProvider) videoConstraint(deviceID string) mediadevices.MediaOption {
	maxWidth := p.config.MaxWidth
	maxHeight := p.config.MaxHeight

	return func(c *mediadevices.MediaTrackConstraints) {
		// Raw formats only. Some cameras expose an MJPEG node that emits
		// malformed JPEG frames and poisons the VP8 encoder.
		c.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatI444,
			frame.FormatRGBA,
		}
		c.Width = prop.IntRanged{Max: maxWidth}
		c.Height = prop.IntRanged{Max: maxHeight}
		if deviceID != "" {
			c.DeviceID = prop.String(deviceID)
		}
	}
}

func (p *DeviceProvider) wrapStream(stream mediadevices.MediaStream) *LocalMedia {
	local := &LocalMedia{}
	for _, track := range stream.GetTracks() {
		p.watchTrack(track)
		dt := NewDeviceTrack(track)
		switch dt.Kind() {
		case TrackKindAudio:
			local.Audio = dt
		case TrackKindVideo:
			local.Video = dt
		}
	}
	return local
}

func (p *DeviceProvider) watchTrack(track mediadevices.Track) {
	track.OnEnded(func(err error) {
		if err != nil && p.log != nil {
			p.log.Warnf("local track ended: %v", err)
		}
	})
}

func classifyCaptureError(err error) error {
	if err == nil {
		return ErrDeviceUnavailable
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// Verify DeviceProvider implements Provider.
var _ Provider = (*DeviceProvider)(nil)
