// Package escalation implements the Escalation Layer: explicit,
// session, and inline-hint model overrides, consulted before the Rule
// Stack.
package escalation

import (
	"context"
	"sync"
	"time"

	"signalhub/internal/domain"
)

// SessionStore holds session-scoped model overrides, keyed by opaque
// session id, protected by its own lock, with lazy expiry on access plus
// periodic cleanup.
type SessionStore struct {
	mu              sync.Mutex
	sessions        map[string]domain.SessionEscalation
	defaultDuration time.Duration
}

// NewSessionStore builds an empty SessionStore.
func NewSessionStore(defaultDuration time.Duration) *SessionStore {
	if defaultDuration <= 0 {
		defaultDuration = 30 * time.Minute
	}
	return &SessionStore{
		sessions:        make(map[string]domain.SessionEscalation),
		defaultDuration: defaultDuration,
	}
}

// Set installs (or replaces) a session override. A zero duration uses the
// store's default; a negative duration installs an entry that has already
// expired.
func (s *SessionStore) Set(sessionID string, model domain.ModelTier, reason string, duration time.Duration) domain.SessionEscalation {
	if duration == 0 {
		duration = s.defaultDuration
	}
	now := time.Now()
	esc := domain.SessionEscalation{
		SessionID: sessionID,
		Model:     model,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
	s.mu.Lock()
	s.sessions[sessionID] = esc
	s.mu.Unlock()
	return esc
}

// Get returns the active escalation for sessionID, if any. An expired
// entry is removed on access (lazy expiry) and reported as absent.
func (s *SessionStore) Get(sessionID string, now time.Time) (domain.SessionEscalation, bool) {
	if sessionID == "" {
		return domain.SessionEscalation{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	esc, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionEscalation{}, false
	}
	if esc.Expired(now) {
		delete(s.sessions, sessionID)
		return domain.SessionEscalation{}, false
	}
	return esc, true
}

// CleanupExpired removes every expired session, returning the count
// removed. Intended to be run periodically alongside the lazy
// per-access expiry.
func (s *SessionStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, esc := range s.sessions {
		if esc.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs CleanupExpired on interval until ctx is cancelled.
func (s *SessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.CleanupExpired(now)
			}
		}
	}()
}
