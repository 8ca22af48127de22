package hub

import (
	"testing"
	"time"

	"github.com/bera-tech-ai/gramX/internal/config"
)

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendAfterUnregisterDropsFrame(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := NewClient("conn-1", h, nil, config.WebSocketConfig{})
	h.Register(c)
	waitForCount(t, h, 1)

	// Another goroutine may hold a resolved handle to this client while
	// the hub tears it down; sending through it must not panic.
	h.Unregister(c)
	waitForCount(t, h, 0)

	if err := c.SendMessage(map[string]string{"type": "pong"}); err != nil {
		t.Fatalf("send after unregister failed: %v", err)
	}
}

func TestRepeatedUnregisterIsIdempotent(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := NewClient("conn-1", h, nil, config.WebSocketConfig{})
	h.Register(c)
	waitForCount(t, h, 1)

	h.Unregister(c)
	waitForCount(t, h, 0)
	h.Unregister(c)

	// Drain until Run has processed the second unregister.
	h.Register(NewClient("conn-2", h, nil, config.WebSocketConfig{}))
	waitForCount(t, h, 1)

	if err := c.SendMessage(map[string]string{"type": "pong"}); err != nil {
		t.Fatalf("send after double unregister failed: %v", err)
	}
}
