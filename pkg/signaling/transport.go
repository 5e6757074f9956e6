package signaling

import "context"

// Handler consumes one inbound wire frame. Transports invoke it from their
// receive goroutine; implementations must not block for long.
type Handler func(data []byte)

// Transport carries encoded envelopes between a peer and the signaling
// relay. Implementations can provide real network connections or virtual
// pipes for testing.
type Transport interface {
	// Send transmits one encoded envelope to the peer identified by to.
	// The transport does not retain data after Send returns.
	Send(ctx context.Context, to string, data []byte) error

	// SetHandler registers the callback invoked for each inbound frame.
	// Register the handler before the first frame can arrive; frames
	// received without a handler are dropped.
	SetHandler(h Handler)

	// Close releases the transport. Subsequent sends fail with
	// ErrTransportClosed.
	Close() error
}
