package call

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversInPublishOrder(t *testing.T) {
	b := NewBus(nil)

	got := make(chan Reason, 8)
	b.Subscribe(EventTypeCallEnded, func(e Event) { got <- e.Reason })

	want := []Reason{ReasonCompleted, ReasonHangup, ReasonBusy, ReasonTimeout}
	for _, r := range want {
		b.Publish(Event{Type: EventTypeCallEnded, Reason: r})
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Close returns only after the queue drains, so everything is here.
	for i, w := range want {
		select {
		case r := <-got:
			if r != w {
				t.Errorf("event %d reason = %v, want %v", i, r, w)
			}
		default:
			t.Fatalf("event %d missing after Close", i)
		}
	}
}

func TestBus_SubscribersRunInSubscribeOrder(t *testing.T) {
	b := NewBus(nil)

	var mu sync.Mutex
	var order []string
	b.Subscribe(EventTypeCallAccepted, func(Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	b.Subscribe(EventTypeCallAccepted, func(Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeCallAccepted})
	b.Publish(Event{Type: EventTypeCallAccepted})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "first", "second"}
	if len(order) != len(want) {
		t.Fatalf("got %d handler runs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("run %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_HandlerPanicIsIsolated(t *testing.T) {
	b := NewBus(nil)

	b.Subscribe(EventTypeCallError, func(Event) { panic("bad subscriber") })

	got := make(chan Event, 2)
	b.Subscribe(EventTypeCallError, func(e Event) { got <- e })

	b.Publish(Event{Type: EventTypeCallError, Err: ErrConnectionFailure})
	b.Publish(Event{Type: EventTypeCallError, Err: ErrSignaling})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, want := range []error{ErrConnectionFailure, ErrSignaling} {
		select {
		case e := <-got:
			if !errors.Is(e.Err, want) {
				t.Errorf("Err = %v, want %v", e.Err, want)
			}
		default:
			t.Fatal("event lost after a peer handler panicked")
		}
	}
}

func TestBus_SubscriptionClose(t *testing.T) {
	b := NewBus(nil)

	got := make(chan Event, 2)
	sub := b.Subscribe(EventTypeAudioToggled, func(e Event) { got <- e })

	b.Publish(Event{Type: EventTypeAudioToggled, Enabled: false})
	select {
	case e := <-got:
		if e.Enabled {
			t.Error("Enabled = true, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}

	sub.Close()
	sub.Close() // closing twice is safe

	b.Publish(Event{Type: EventTypeAudioToggled, Enabled: true})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case e := <-got:
		t.Errorf("handler ran after unsubscribe: %+v", e)
	default:
		// Expected - subscription detached.
	}
}

func TestBus_PublishAfterCloseDropped(t *testing.T) {
	b := NewBus(nil)

	got := make(chan Event, 1)
	b.Subscribe(EventTypeCallEnded, func(e Event) { got <- e })

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b.Publish(Event{Type: EventTypeCallEnded})

	select {
	case <-got:
		t.Error("event delivered after Close")
	case <-time.After(50 * time.Millisecond):
		// Expected - publish after close is dropped.
	}
}

func TestBus_CloseDrainsQueue(t *testing.T) {
	b := NewBus(nil)

	const n = 100
	got := make(chan Event, n)
	// A slow handler keeps the queue non-empty when Close lands.
	b.Subscribe(EventTypeRemoteStreamReceived, func(e Event) {
		time.Sleep(time.Millisecond)
		got <- e
	})

	for i := 0; i < n; i++ {
		b.Publish(Event{Type: EventTypeRemoteStreamReceived})
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(got) != n {
		t.Errorf("delivered %d events, want %d", len(got), n)
	}
}

func TestBus_NilHandlerIsInert(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	sub := b.Subscribe(EventTypeCallEnded, nil)
	if sub == nil {
		t.Fatal("Subscribe(nil) should still return a subscription")
	}
	sub.Close() // must not panic

	b.Publish(Event{Type: EventTypeCallEnded})
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := NewBus(nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := make(chan Event, 1)
	sub := b.Subscribe(EventTypeCallEnded, func(e Event) { got <- e })
	sub.Close()

	b.Publish(Event{Type: EventTypeCallEnded})

	select {
	case <-got:
		t.Error("handler attached to a closed bus ran")
	case <-time.After(50 * time.Millisecond):
		// Expected - the bus is closed.
	}
}

func TestBus_ReentrantSubscribe(t *testing.T) {
	b := NewBus(nil)

	got := make(chan string, 2)
	b.Subscribe(EventTypeCallAccepted, func(Event) {
		got <- "outer"
		// Handlers run off the bus lock, so subscribing from inside one
		// must not deadlock.
		b.Subscribe(EventTypeCallEnded, func(Event) { got <- "inner" })
	})

	b.Publish(Event{Type: EventTypeCallAccepted})
	b.Publish(Event{Type: EventTypeCallEnded})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, want := range []string{"outer", "inner"} {
		select {
		case s := <-got:
			if s != want {
				t.Errorf("handler = %q, want %q", s, want)
			}
		default:
			t.Fatalf("missing %q run", want)
		}
	}
}

func TestBus_CloseIdempotent(t *testing.T) {
	b := NewBus(nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
