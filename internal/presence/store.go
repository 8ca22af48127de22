// Package presence mirrors online/last-seen state into Redis so it
// survives process restarts. The mirror is best-effort: the in-process
// identity directory remains the source of truth for live connections.
package presence

import (
	"context"
	"time"
)

// Store persists presence state.
type Store interface {
	// SetOnline adds the user to the online set.
	SetOnline(ctx context.Context, userID string) error

	// SetOffline removes the user from the online set and records last-seen.
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error

	// LastSeen returns the recorded last-seen time, or the zero time if
	// the user has never disconnected.
	LastSeen(ctx context.Context, userID string) (time.Time, error)

	// OnlineUsers returns the persisted online set.
	OnlineUsers(ctx context.Context) ([]string, error)

	// Close closes the store connection.
	Close() error
}

// NewNoop returns a Store that records nothing. Used when Redis is not
// configured.
func NewNoop() Store { return noopStore{} }

type noopStore struct{}

func (noopStore) SetOnline(context.Context, string) error             { return nil }
func (noopStore) SetOffline(context.Context, string, time.Time) error { return nil }
func (noopStore) LastSeen(context.Context, string) (time.Time, error) { return time.Time{}, nil }
func (noopStore) OnlineUsers(context.Context) ([]string, error)       { return nil, nil }
func (noopStore) Close() error                                        { return nil }
