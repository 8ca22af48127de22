// Package directory maintains the injective mapping between durable user
// identities and ephemeral live connections, plus presence state. The two
// internal maps are only ever mutated together under one lock, so they
// cannot desynchronize the way independently-updated presence tables do.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/bera-tech-ai/gramX/internal/presence"
	"github.com/bera-tech-ai/gramX/pkg/log"
)

// Conn is the live connection handle the directory tracks. Handles are
// compared by identity, so the stale-unbind guard works on the concrete
// pointer behind the interface.
type Conn interface {
	SendMessage(v interface{}) error
}

// Directory owns the userID ↔ connection bindings. At most one live
// connection resolves per user; a reconnect silently evicts the prior
// binding.
type Directory struct {
	mu       sync.RWMutex
	byUser   map[string]Conn
	byConn   map[Conn]string
	lastSeen map[string]time.Time
	mirror   presence.Store
}

// New creates a Directory. The presence mirror may be a noop store.
func New(mirror presence.Store) *Directory {
	if mirror == nil {
		mirror = presence.NewNoop()
	}
	return &Directory{
		byUser:   make(map[string]Conn),
		byConn:   make(map[Conn]string),
		lastSeen: make(map[string]time.Time),
		mirror:   mirror,
	}
}

// Bind registers conn as the live connection for userID, replacing any
// prior binding. It reports whether the user transitioned offline→online.
// Bind never fails; rebinding the same connection is a no-op.
func (d *Directory) Bind(ctx context.Context, userID string, conn Conn) (cameOnline bool) {
	d.mu.Lock()
	prior, hadPrior := d.byUser[userID]
	if hadPrior && prior == conn {
		d.mu.Unlock()
		return false
	}
	if hadPrior {
		delete(d.byConn, prior)
	}
	// A connection switching users releases its old identity first.
	if oldUser, ok := d.byConn[conn]; ok && oldUser != userID {
		delete(d.byUser, oldUser)
	}
	d.byUser[userID] = conn
	d.byConn[conn] = userID
	d.mu.Unlock()

	if err := d.mirror.SetOnline(ctx, userID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, userID).Msg("presence mirror set-online failed")
	}
	return !hadPrior
}

// Unbind removes the binding if conn is still the connection on record
// for its user. A stale handle left over from a reconnect race is ignored.
// It reports the affected user and whether that user went offline.
func (d *Directory) Unbind(ctx context.Context, conn Conn) (userID string, wentOffline bool) {
	now := time.Now()

	d.mu.Lock()
	userID, ok := d.byConn[conn]
	if !ok {
		d.mu.Unlock()
		return "", false
	}
	delete(d.byConn, conn)
	if d.byUser[userID] == conn {
		delete(d.byUser, userID)
		d.lastSeen[userID] = now
		wentOffline = true
	}
	d.mu.Unlock()

	if wentOffline {
		if err := d.mirror.SetOffline(ctx, userID, now); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, userID).Msg("presence mirror set-offline failed")
		}
	}
	return userID, wentOffline
}

// Resolve returns the live connection for userID, if any.
func (d *Directory) Resolve(userID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.byUser[userID]
	return conn, ok
}

// OnlineUsers returns a snapshot of all currently bound user ids.
func (d *Directory) OnlineUsers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]string, 0, len(d.byUser))
	for id := range d.byUser {
		users = append(users, id)
	}
	return users
}

// LastSeen returns the local last-disconnect time for userID.
func (d *Directory) LastSeen(userID string) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.lastSeen[userID]
	return t, ok
}
