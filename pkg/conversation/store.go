package conversation

import (
	"log"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xhad/tutor/internal/models"
)

// DefaultSession is used when a caller does not name a session.
const DefaultSession = "default"

type StoreConfig struct {
	MaxTurns    int
	SessionTTL  time.Duration
	MaxSessions int
	// Now stamps recorded turns. Tests replace it.
	Now func() time.Time
}

// Store maps session ids to histories. Sessions are created on first use and
// evicted once idle past the TTL, or least recently used first when the
// store is full.
type Store struct {
	config StoreConfig
	// mu makes get-or-create atomic; the cache has its own lock.
	mu    sync.Mutex
	cache *expirable.LRU[string, *History]
}

func NewStore(config StoreConfig) *Store {
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = 1000
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		config: config,
		cache:  expirable.NewLRU[string, *History](config.MaxSessions, nil, config.SessionTTL),
	}
}

// Get returns the history for id, creating it if needed. Every call renews
// the session's idle timer.
func (s *Store) Get(id string) *History {
	if id == "" {
		id = DefaultSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.cache.Get(id)
	if !ok {
		h = NewHistory(s.config.MaxTurns)
		h.now = s.config.Now
	}
	if evicted := s.cache.Add(id, h); evicted {
		log.Printf("Evicted least recently used conversation session to make room for %q", id)
	}
	return h
}

// Append records turns in session id. The session is looked up at write
// time, so an exchange finishing after its session expired starts a new one.
func (s *Store) Append(id string, turns ...models.Turn) {
	s.Get(id).Append(turns...)
}

// Peek returns the history for id without creating or touching it.
func (s *Store) Peek(id string) (*History, bool) {
	if id == "" {
		id = DefaultSession
	}
	return s.cache.Peek(id)
}

// Reset clears a single session's history.
func (s *Store) Reset(id string) {
	if h, ok := s.Peek(id); ok {
		h.Reset()
	}
}

// ResetAll drops every session.
func (s *Store) ResetAll() {
	s.cache.Purge()
}

// Len counts live sessions.
func (s *Store) Len() int {
	n := 0
	for _, id := range s.cache.Keys() {
		if _, ok := s.cache.Peek(id); ok {
			n++
		}
	}
	return n
}
