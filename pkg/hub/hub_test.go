package hub

import (
	"context"
	"testing"
	"time"
)

func newTestClient(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan []byte, buffer)}
	h.register <- c
	return c
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, h.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", nil)
	go h.Run(ctx)

	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	waitForClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]int{"cycles": 7}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}
	for name, c := range map[string]*Client{"a": a, "b": b} {
		select {
		case msg := <-c.send:
			if string(msg) != `{"cycles":7}` {
				t.Errorf("client %s: unexpected message %s", name, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s: no message", name)
		}
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", nil)
	go h.Run(ctx)

	c := newTestClient(h, 1)
	waitForClients(t, h, 1)
	h.unregister <- c
	waitForClients(t, h, 0)

	if _, ok := <-c.send; ok {
		t.Error("Expected send channel closed")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", nil)
	go h.Run(ctx)

	slow := newTestClient(h, 1)
	waitForClients(t, h, 1)

	h.Broadcast([]byte(`1`))
	h.Broadcast([]byte(`2`))
	waitForClients(t, h, 0)

	if msg := <-slow.send; string(msg) != "1" {
		t.Errorf("Expected first message kept, got %s", msg)
	}
	if _, ok := <-slow.send; ok {
		t.Error("Expected slow client's channel closed")
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("status", nil)
	go h.Run(ctx)

	c := newTestClient(h, 1)
	waitForClients(t, h, 1)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-c.send; ok {
		t.Error("Expected client channel closed on shutdown")
	}

	late := NewClient(h, nil, []byte(`{}`))
	if msg := <-late.send; string(msg) != "{}" {
		t.Errorf("Expected initial message queued, got %s", msg)
	}
	if _, ok := <-late.send; ok {
		t.Error("Expected late client to be closed immediately")
	}
}
