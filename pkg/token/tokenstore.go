package tokenstore

import (
	"sync"
	"time"
)

// Store is an in-memory token revocation list keyed by jti. Entries are
// kept until the token would have expired anyway.
type Store struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

func New() *Store {
	return &Store{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke marks jti as revoked until exp. A zero exp keeps it forever.
func (s *Store) Revoke(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = exp
}

func (s *Store) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok
}

// Prune forgets revocations whose token has expired.
func (s *Store) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for jti, exp := range s.revoked {
		if !exp.IsZero() && now.After(exp) {
			delete(s.revoked, jti)
			n++
		}
	}
	return n
}
