package call

import (
	"time"

	"github.com/pion/logging"

	"github.com/hitch-mobility/callkit/pkg/history"
	"github.com/hitch-mobility/callkit/pkg/media"
	"github.com/hitch-mobility/callkit/pkg/signaling"
)

const (
	// DefaultRingingTimeout bounds how long a call may ring, on either
	// side, before it fails with ReasonTimeout.
	DefaultRingingTimeout = 40 * time.Second

	// DefaultSendTimeout bounds each signaling send.
	DefaultSendTimeout = 5 * time.Second
)

// Config holds the dependencies and policy for a Manager. Transport,
// Provider, Engine and Self are required; everything else has defaults.
type Config struct {
	// Self identifies and describes the local party. Self.ID is the
	// signaling address; the rest is the display snapshot sent to peers.
	Self Participant

	// Transport carries signaling envelopes to and from the relay.
	Transport signaling.Transport

	// Provider acquires local capture media.
	Provider media.Provider

	// Engine establishes the peer-to-peer media path.
	Engine media.Engine

	// History persists call records. Nil disables persistence; history
	// operations then return ErrHistoryDisabled.
	History history.Store

	// ICEServers are handed to the engine for each session.
	ICEServers []media.ICEServer

	// RingingTimeout bounds the Initiating and both Ringing phases.
	// Zero applies DefaultRingingTimeout; negative disables the timeout
	// entirely.
	RingingTimeout time.Duration

	// SendTimeout bounds each signaling send. Default:
	// DefaultSendTimeout.
	SendTimeout time.Duration

	// LoggerFactory is used for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Self.ID == "" {
		return ErrSelfRequired
	}
	if c.Transport == nil {
		return ErrTransportRequired
	}
	if c.Provider == nil {
		return ErrProviderRequired
	}
	if c.Engine == nil {
		return ErrEngineRequired
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.RingingTimeout == 0 {
		c.RingingTimeout = DefaultRingingTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
}
