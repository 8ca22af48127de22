package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) Store {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Address: s.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOnlineOfflineRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SetOnline(ctx, "alice"); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
	if err := store.SetOnline(ctx, "bob"); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}

	online, err := store.OnlineUsers(ctx)
	if err != nil {
		t.Fatalf("OnlineUsers failed: %v", err)
	}
	if len(online) != 2 {
		t.Fatalf("expected 2 online users, got %v", online)
	}

	seen := time.Now().Truncate(time.Second)
	if err := store.SetOffline(ctx, "alice", seen); err != nil {
		t.Fatalf("SetOffline failed: %v", err)
	}

	online, _ = store.OnlineUsers(ctx)
	if len(online) != 1 || online[0] != "bob" {
		t.Errorf("expected only bob online, got %v", online)
	}

	got, err := store.LastSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("LastSeen failed: %v", err)
	}
	if !got.Equal(seen) {
		t.Errorf("last-seen mismatch: got %v, want %v", got, seen)
	}
}

func TestLastSeenUnknownUser(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.LastSeen(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("LastSeen failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero time for unknown user, got %v", got)
	}
}

func TestSetOnlineIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.SetOnline(ctx, "alice")
	store.SetOnline(ctx, "alice")

	online, _ := store.OnlineUsers(ctx)
	if len(online) != 1 {
		t.Errorf("expected a single entry after duplicate SetOnline, got %v", online)
	}
}
