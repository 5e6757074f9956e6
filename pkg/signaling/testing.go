package signaling

import (
	"context"
	"sync"
)

// CaptureTransport is an in-memory Transport for tests. Sent frames are
// decoded and recorded for inspection; Deliver injects inbound envelopes
// synchronously on the caller's goroutine, so a test observes all
// consequences once Deliver returns.
type CaptureTransport struct {
	mu      sync.Mutex
	handler Handler
	sent    []Envelope
	sendErr error
	closed  bool
}

// NewCaptureTransport creates an empty capture transport.
func NewCaptureTransport() *CaptureTransport {
	return &CaptureTransport{}
}

// Send records the envelope. When an error has been injected with
// FailSends, it is returned instead and nothing is recorded.
func (t *CaptureTransport) Send(ctx context.Context, to string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}

	env, err := Unmarshal(data)
	if err != nil {
		return err
	}
	env.To = to
	t.sent = append(t.sent, env)
	return nil
}

// SetHandler registers the receive callback.
func (t *CaptureTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close marks the transport closed.
func (t *CaptureTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// FailSends makes subsequent Send calls return err. Pass nil to restore
// normal behavior.
func (t *CaptureTransport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Deliver encodes env and invokes the registered handler synchronously.
func (t *CaptureTransport) Deliver(env Envelope) error {
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	t.DeliverRaw(data)
	return nil
}

// DeliverRaw invokes the registered handler with an arbitrary frame,
// malformed ones included.
func (t *CaptureTransport) DeliverRaw(data []byte) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h(data)
	}
}

// Sent returns a copy of all recorded envelopes in send order.
func (t *CaptureTransport) Sent() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Envelope, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentTypes returns the message types of all recorded envelopes in order.
func (t *CaptureTransport) SentTypes() []MessageType {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]MessageType, 0, len(t.sent))
	for _, env := range t.sent {
		out = append(out, env.Type)
	}
	return out
}

// LastSent returns the most recently recorded envelope.
func (t *CaptureTransport) LastSent() (Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sent) == 0 {
		return Envelope{}, false
	}
	return t.sent[len(t.sent)-1], true
}

// Reset discards all recorded envelopes.
func (t *CaptureTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// Verify CaptureTransport implements Transport.
var _ Transport = (*CaptureTransport)(nil)
