package directory

import (
	"context"
	"sort"
	"testing"
)

type fakeConn struct{ name string }

func (f *fakeConn) SendMessage(v interface{}) error { return nil }

func TestBindResolve(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	c1 := &fakeConn{name: "c1"}

	if cameOnline := d.Bind(ctx, "alice", c1); !cameOnline {
		t.Errorf("first bind should report offline→online transition")
	}
	got, ok := d.Resolve("alice")
	if !ok || got != Conn(c1) {
		t.Errorf("Resolve(alice) = %v, %v; want c1", got, ok)
	}
}

func TestRebindLastWins(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	c1 := &fakeConn{name: "c1"}
	c2 := &fakeConn{name: "c2"}

	d.Bind(ctx, "alice", c1)
	if cameOnline := d.Bind(ctx, "alice", c2); cameOnline {
		t.Errorf("rebind while online must not report a transition")
	}

	got, ok := d.Resolve("alice")
	if !ok || got != Conn(c2) {
		t.Fatalf("Resolve(alice) after rebind = %v, want c2", got)
	}

	// The evicted connection must no longer unbind alice.
	if userID, wentOffline := d.Unbind(ctx, c1); userID != "" || wentOffline {
		t.Errorf("stale unbind affected state: user=%q offline=%v", userID, wentOffline)
	}
	if _, ok := d.Resolve("alice"); !ok {
		t.Errorf("alice lost her live connection to a stale unbind")
	}
}

func TestUnbind(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	c1 := &fakeConn{name: "c1"}

	d.Bind(ctx, "alice", c1)
	userID, wentOffline := d.Unbind(ctx, c1)
	if userID != "alice" || !wentOffline {
		t.Fatalf("Unbind = %q, %v; want alice, true", userID, wentOffline)
	}
	if _, ok := d.Resolve("alice"); ok {
		t.Errorf("alice still resolvable after unbind")
	}
	if _, ok := d.LastSeen("alice"); !ok {
		t.Errorf("last-seen not recorded on unbind")
	}

	// Unbinding twice is a no-op.
	if userID, wentOffline := d.Unbind(ctx, c1); userID != "" || wentOffline {
		t.Errorf("second unbind not idempotent: user=%q offline=%v", userID, wentOffline)
	}
}

func TestBindIdempotent(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	c1 := &fakeConn{name: "c1"}

	d.Bind(ctx, "alice", c1)
	if cameOnline := d.Bind(ctx, "alice", c1); cameOnline {
		t.Errorf("rebinding the same connection must be a no-op")
	}
	if got, _ := d.Resolve("alice"); got != Conn(c1) {
		t.Errorf("binding lost after idempotent rebind")
	}
}

func TestOnlineUsersSnapshot(t *testing.T) {
	d := New(nil)
	ctx := context.Background()

	d.Bind(ctx, "alice", &fakeConn{name: "c1"})
	d.Bind(ctx, "bob", &fakeConn{name: "c2"})
	c3 := &fakeConn{name: "c3"}
	d.Bind(ctx, "carol", c3)
	d.Unbind(ctx, c3)

	users := d.OnlineUsers()
	sort.Strings(users)
	want := []string{"alice", "bob"}
	if len(users) != len(want) {
		t.Fatalf("OnlineUsers = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("OnlineUsers = %v, want %v", users, want)
		}
	}
}

func TestConnectionSwitchingUsers(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	c1 := &fakeConn{name: "c1"}

	d.Bind(ctx, "alice", c1)
	d.Bind(ctx, "bob", c1)

	if _, ok := d.Resolve("alice"); ok {
		t.Errorf("alice should not resolve after her connection re-authenticated as bob")
	}
	if got, ok := d.Resolve("bob"); !ok || got != Conn(c1) {
		t.Errorf("bob should resolve to the rebound connection")
	}
}
