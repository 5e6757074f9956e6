package call

import (
	"sort"
	"sync"

	"github.com/pion/logging"

	"github.com/hitch-mobility/callkit/pkg/media"
)

// EventType identifies an observable call event.
type EventType string

const (
	// EventTypeIncomingCall fires when a call starts ringing locally.
	EventTypeIncomingCall EventType = "incoming_call"
	// EventTypeCallInitiated fires when the relay acks an outgoing call.
	EventTypeCallInitiated EventType = "call_initiated"
	// EventTypeCallAccepted fires when either party commits to the call.
	EventTypeCallAccepted EventType = "call_accepted"
	// EventTypeCallRejected fires when a ringing call is declined.
	EventTypeCallRejected EventType = "call_rejected"
	// EventTypeCallEnded fires when a call terminates normally.
	EventTypeCallEnded EventType = "call_ended"
	// EventTypeCallError fires when a session fails.
	EventTypeCallError EventType = "call_error"
	// EventTypeLocalStreamReceived fires when local capture is ready.
	EventTypeLocalStreamReceived EventType = "local_stream_received"
	// EventTypeRemoteStreamReceived fires per remote track announced.
	EventTypeRemoteStreamReceived EventType = "remote_stream_received"
	// EventTypeConnectionStateChanged fires on media connectivity
	// changes.
	EventTypeConnectionStateChanged EventType = "connection_state_changed"
	// EventTypeAudioToggled fires when the microphone is muted or
	// unmuted.
	EventTypeAudioToggled EventType = "audio_toggled"
	// EventTypeVideoToggled fires when the camera is paused or resumed.
	EventTypeVideoToggled EventType = "video_toggled"
	// EventTypeCameraSwitched fires when the outgoing camera changes.
	EventTypeCameraSwitched EventType = "camera_switched"
)

// Event is one observable side effect of a session. Session is a snapshot
// taken at emission; the other fields are populated per type.
type Event struct {
	Type    EventType
	Session Session

	// Enabled carries the new state for audio_toggled and video_toggled.
	Enabled bool

	// State carries the new state for connection_state_changed.
	State media.ConnectionState

	// Local carries the capture handle for local_stream_received. The
	// handle stays owned by the session; consumers must not retain it
	// past call_ended or call_error.
	Local *media.LocalMedia

	// Track describes the inbound track for remote_stream_received.
	Track media.RemoteTrack

	// Reason carries the termination reason for call_rejected and
	// call_ended.
	Reason Reason

	// Err carries the failure for call_error, and classifies remote
	// terminations on call_rejected and call_ended.
	Err error
}

// Handler consumes events. All handlers run sequentially on the bus's
// dispatch goroutine, in publish order; a slow handler delays later events
// but never blocks the publisher.
type Handler func(Event)

// Subscription is the handle returned by Subscribe. Closing it detaches
// the handler; closing twice is safe.
type Subscription struct {
	bus  *Bus
	typ  EventType
	id   int
	once sync.Once
}

// Close detaches the subscription's handler.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.unsubscribe(s.typ, s.id)
		}
	})
}

// Bus fans events out to subscribers. Publish never blocks and preserves
// order: events are queued without bound and delivered FIFO by a single
// dispatch goroutine. That lets session code publish while holding its
// lock, and lets handlers call back into the session safely.
type Bus struct {
	log logging.LeveledLogger

	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[EventType]map[int]Handler
	nextID int
	queue  []Event
	closed bool

	done chan struct{}
}

// NewBus creates a bus and starts its dispatch goroutine.
func NewBus(loggerFactory logging.LoggerFactory) *Bus {
	b := &Bus{
		subs: make(map[EventType]map[int]Handler),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)

	if loggerFactory != nil {
		b.log = loggerFactory.NewLogger("events")
	}

	go b.dispatch()
	return b
}

// Subscribe attaches a handler for one event type. A nil handler yields an
// inert subscription.
func (b *Bus) Subscribe(t EventType, h Handler) *Subscription {
	if h == nil {
		return &Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &Subscription{}
	}

	id := b.nextID
	b.nextID++

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	b.subs[t][id] = h

	return &Subscription{bus: b, typ: t, id: id}
}

func (b *Bus) unsubscribe(t EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subs[t]; ok {
		delete(handlers, id)
	}
}

// Publish queues one event. It never blocks; events published after Close
// are dropped.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		if b.log != nil {
			b.log.Debugf("dropping %s after close", e.Type)
		}
		return
	}

	b.queue = append(b.queue, e)
	b.cond.Signal()
}

func (b *Bus) dispatch() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			close(b.done)
			return
		}

		e := b.queue[0]
		b.queue = b.queue[1:]

		// Snapshot in subscribe order so delivery is deterministic and
		// handlers may subscribe or unsubscribe re-entrantly.
		var ids []int
		for id := range b.subs[e.Type] {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		handlers := make([]Handler, 0, len(ids))
		for _, id := range ids {
			handlers = append(handlers, b.subs[e.Type][id])
		}
		b.mu.Unlock()

		for _, h := range handlers {
			b.deliver(e, h)
		}
	}
}

// deliver isolates handler panics so one bad subscriber cannot take down
// the dispatcher or other subscribers.
func (b *Bus) deliver(e Event, h Handler) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Errorf("event handler panic type=%s: %v", e.Type, r)
		}
	}()
	h(e)
}

// Close stops the bus after delivering everything already published.
// Must not be called from inside a handler.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return nil
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()

	<-b.done
	return nil
}
