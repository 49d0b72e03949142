package ws

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	sendErr  error
	closed   bool
}

func (r *recordingSubscriber) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingSubscriber) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingSubscriber) received() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *recordingSubscriber) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubBroadcastsToTopicSubscribers(t *testing.T) {
	hub := NewHub(0)
	sub := &recordingSubscriber{}
	other := &recordingSubscriber{}

	hub.Register("events", sub)
	hub.Register("elsewhere", other)
	hub.Broadcast("events", []byte("payload"))

	waitFor(t, func() bool { return sub.received() == 1 })
	if other.received() != 0 {
		t.Fatalf("expected other topic untouched, got %d payloads", other.received())
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub(0)
	broken := &recordingSubscriber{sendErr: errors.New("gone")}
	healthy := &recordingSubscriber{}

	hub.Register("events", broken)
	hub.Register("events", healthy)
	hub.Broadcast("events", []byte("one"))

	waitFor(t, func() bool { return broken.isClosed() })
	waitFor(t, func() bool { return healthy.received() == 1 })

	hub.Broadcast("events", []byte("two"))
	waitFor(t, func() bool { return healthy.received() == 2 })
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(0)
	sub := &recordingSubscriber{}

	hub.Register("events", sub)
	hub.Broadcast("events", []byte("one"))
	waitFor(t, func() bool { return sub.received() == 1 })

	hub.Unregister("events", sub)
	hub.Broadcast("events", []byte("two"))

	// Broadcast is processed by the same goroutine that handled the
	// unregister, so one more broadcast round-trip proves delivery stopped.
	hub.Broadcast("events", []byte("three"))
	time.Sleep(20 * time.Millisecond)
	if sub.received() != 1 {
		t.Fatalf("expected no delivery after unregister, got %d", sub.received())
	}
}
