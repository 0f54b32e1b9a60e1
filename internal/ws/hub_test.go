package ws

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingClient struct {
	mu       sync.Mutex
	received [][]byte
	sendErr  error
	closed   bool
}

func (c *recordingClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.received = append(c.received, payload)
	return nil
}

func (c *recordingClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingClient) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.received))
	copy(out, c.received)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestHubBroadcastsToChannelSubscribers(t *testing.T) {
	hub := NewHub()
	a := &recordingClient{}
	b := &recordingClient{}
	other := &recordingClient{}

	hub.Register("events", a)
	hub.Register("events", b)
	hub.Register("alerts", other)

	hub.Broadcast("events", []byte("hello"))

	waitFor(t, func() bool { return len(a.messages()) == 1 && len(b.messages()) == 1 })
	if got := len(other.messages()); got != 0 {
		t.Errorf("other channel received %d messages, want 0", got)
	}
	if string(a.messages()[0]) != "hello" {
		t.Errorf("payload = %q, want hello", a.messages()[0])
	}
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	healthy := &recordingClient{}
	broken := &recordingClient{sendErr: errors.New("gone")}

	hub.Register("events", healthy)
	hub.Register("events", broken)

	hub.Broadcast("events", []byte("first"))
	waitFor(t, func() bool { return len(healthy.messages()) == 1 })
	waitFor(t, func() bool {
		broken.mu.Lock()
		defer broken.mu.Unlock()
		return broken.closed
	})

	hub.Broadcast("events", []byte("second"))
	waitFor(t, func() bool { return len(healthy.messages()) == 2 })
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	client := &recordingClient{}

	hub.Register("events", client)
	hub.Unregister("events", client)
	hub.Broadcast("events", []byte("after"))

	// Broadcast is handled by the same goroutine, so once a later broadcast
	// on another channel lands the first one has been processed.
	sentinel := &recordingClient{}
	hub.Register("other", sentinel)
	hub.Broadcast("other", []byte("sync"))
	waitFor(t, func() bool { return len(sentinel.messages()) == 1 })

	if got := len(client.messages()); got != 0 {
		t.Errorf("unregistered client received %d messages, want 0", got)
	}
}
