// Package session is the process-wide registry of orchestration sessions
// (spec.md §9): a map keyed by session id, evicted by explicit Delete or by
// inactivity TTL, exactly the shape of the teacher's chat-session store
// generalized from browser-tab turns to DD/Roundtable runs.
package session

import (
	"sync"
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
)

// minCleanupInterval is the smallest allowed TTL to prevent degenerate ticker intervals.
const minCleanupInterval = time.Millisecond

// Store is a thread-safe in-memory session registry with TTL eviction.
// NOT designed for multi-replica deployments; the orchestrator owns a
// single Store instance behind internal/web.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	ttl      time.Duration // inactivity TTL
	done     chan struct{} // closed by Close() to stop the cleanup goroutine
}

// NewStore creates a new Store with the given inactivity TTL. A background
// goroutine periodically evicts sessions that have gone quiet. Call Close
// when the store is no longer needed to stop the goroutine.
func NewStore(ttl time.Duration) *Store {
	if ttl < minCleanupInterval {
		ttl = minCleanupInterval
	}
	s := &Store{
		sessions: make(map[string]*domain.Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create registers a new session, setting its UpdatedAt to its CreatedAt.
func (s *Store) Create(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = sess
}

// Get returns the session for id, or false if it does not exist or has
// been evicted.
func (s *Store) Get(id string) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Update runs fn against the session under the write lock and bumps
// UpdatedAt, so callers never race a concurrent TTL eviction mid-mutation.
func (s *Store) Update(id string, fn func(*domain.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(sess)
	sess.UpdatedAt = time.Now()
	return true
}

// Delete explicitly removes a session (cancel, or client-initiated cleanup).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// cleanupLoop periodically removes every session whose UpdatedAt is older
// than the TTL, whatever its status.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			cutoff := time.Now().Add(-s.ttl)
			for id, sess := range s.sessions {
				if sess.UpdatedAt.Before(cutoff) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
