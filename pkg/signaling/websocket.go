package signaling

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// ClientIDParam is the query parameter a websocket client registers its
// identity under when connecting to the relay.
const ClientIDParam = "client_id"

// WebSocketConfig configures a websocket signaling client.
type WebSocketConfig struct {
	// URL is the relay endpoint, e.g. "ws://localhost:8089/ws".
	URL string

	// ClientID is the identity announced to the relay. Envelopes
	// addressed to this id are routed onto the connection.
	ClientID string

	// HandshakeTimeout bounds the websocket upgrade.
	// Default: 10s
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame.
	// Default: 10s
	WriteTimeout time.Duration

	// LoggerFactory is used for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *WebSocketConfig) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}
	if c.ClientID == "" {
		return ErrClientIDRequired
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrURLRequired, err)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *WebSocketConfig) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// WebSocket is a Transport over a single websocket connection to the relay.
// Routing happens relay-side: the to argument of Send travels inside the
// envelope, so the connection itself is peer-agnostic.
type WebSocket struct {
	config WebSocketConfig
	log    logging.LeveledLogger
	conn   *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	handler Handler
	closed  bool

	done chan struct{}
}

// DialWebSocket connects to the relay and starts the receive loop.
func DialWebSocket(config WebSocketConfig) (*WebSocket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay URL: %w", err)
	}
	q := u.Query()
	q.Set(ClientIDParam, config.ClientID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	conn, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t := &WebSocket{
		config: config,
		conn:   conn,
		done:   make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("signaling")
	}

	go t.readLoop()

	if t.log != nil {
		t.log.Infof("connected to relay url=%s client=%s", config.URL, config.ClientID)
	}

	return t, nil
}

// AcceptWebSocket wraps an accepted server-side connection as a Transport.
// The relay server attaches the result to its routing table and watches
// Done for disconnects. The receive loop starts immediately; frames that
// arrive before a handler is set are dropped.
func AcceptWebSocket(conn *websocket.Conn, loggerFactory logging.LoggerFactory) *WebSocket {
	config := WebSocketConfig{}
	config.applyDefaults()

	t := &WebSocket{
		config: config,
		conn:   conn,
		done:   make(chan struct{}),
	}
	if loggerFactory != nil {
		t.log = loggerFactory.NewLogger("signaling")
	}

	go t.readLoop()
	return t
}

// Done is closed once the receive loop exits, whether by Close or by the
// peer disconnecting.
func (t *WebSocket) Done() <-chan struct{} { return t.done }

func (t *WebSocket) readLoop() {
	defer close(t.done)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.log != nil && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warnf("read failed: %v", err)
			}
			return
		}

		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()

		if h != nil {
			h(data)
		}
	}
}

// Send transmits one frame to the relay. The to argument is informational
// here; the relay routes on the envelope's To field.
func (t *WebSocket) Send(ctx context.Context, to string, data []byte) error {
	_ = to

	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	deadline := time.Now().Add(t.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SetHandler registers the receive callback.
func (t *WebSocket) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close tears down the connection. A close frame is sent best-effort.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = t.conn.SetWriteDeadline(deadline)
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	err := t.conn.Close()

	select {
	case <-t.done:
	case <-time.After(time.Second):
	}

	return err
}

// Verify WebSocket implements Transport.
var _ Transport = (*WebSocket)(nil)
