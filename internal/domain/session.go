package domain

import (
	"sync"
	"time"
)

// Session holds the per-connection state machine:
// unauthenticated → authenticated → closed. A session is owned by exactly
// one connection for its whole lifetime.
type Session struct {
	ID            string
	UserID        string
	DisplayName   string
	Authenticated bool
	Closed        bool
	CreatedAt     time.Time
	LastActiveAt  time.Time
	mu            sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *Session) Authenticate(userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.DisplayName = displayName
	s.Authenticated = true
	s.LastActiveAt = time.Now()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated && !s.Closed
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
}

func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Closed
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

func (s *Session) GetDisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DisplayName
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
