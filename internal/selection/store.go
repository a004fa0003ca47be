package selection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theroutercompany/devdirect_website/internal/catalog"
)

const defaultTTL = 30 * time.Minute

type session struct {
	selection *Selection
	lastSeen  time.Time
}

// Store keeps one Selection per visitor session and evicts idle sessions.
type Store struct {
	mu          sync.Mutex
	catalog     *catalog.Catalog
	ttl         time.Duration
	sessions    map[string]*session
	nextCleanup time.Time
}

// NewStore builds a session store over c. A non-positive ttl uses the default.
func NewStore(c *catalog.Catalog, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		catalog:  c,
		ttl:      ttl,
		sessions: make(map[string]*session),
	}
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Get returns the selection for id, creating an empty one on first use or
// after the previous one expired.
func (s *Store) Get(id string, now time.Time) *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok && now.Sub(sess.lastSeen) > s.ttl {
		ok = false
	}
	if !ok {
		sess = &session{selection: New(s.catalog)}
		s.sessions[id] = sess
	}
	sess.lastSeen = now

	if s.nextCleanup.IsZero() || now.After(s.nextCleanup) {
		s.cleanupLocked(now)
		s.nextCleanup = now.Add(s.ttl)
	}

	return sess.selection
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) cleanupLocked(now time.Time) {
	threshold := now.Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(threshold) {
			delete(s.sessions, id)
		}
	}
}
