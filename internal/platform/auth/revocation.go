package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore remembers tokens that must no longer be accepted
// before they expire: single tokens revoked at logout, and every token of a
// user issued before a cutoff (password or role change, account removal).
// Entries are dropped once the tokens they cover have expired.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	tokens  map[string]time.Time // token ID -> token expiry
	cutoffs map[string]cutoff    // user ID -> cutoff

	done      chan struct{}
	closeOnce sync.Once
}

type cutoff struct {
	before time.Time
	until  time.Time
}

// NewTokenRevocationStore creates a store that sweeps expired entries every
// interval. A zero interval disables the background sweep.
func NewTokenRevocationStore(interval time.Duration) *TokenRevocationStore {
	s := &TokenRevocationStore{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]cutoff),
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.sweepLoop(interval)
	}
	return s
}

// Revoke rejects the token with the given ID until expiresAt.
func (s *TokenRevocationStore) Revoke(id string, expiresAt time.Time) {
	s.mu.Lock()
	s.tokens[id] = expiresAt
	s.mu.Unlock()
}

// RevokeUser rejects every token of userID issued before at. ttl is the
// longest lifetime a token can have; the cutoff is forgotten after it.
func (s *TokenRevocationStore) RevokeUser(userID string, at time.Time, ttl time.Duration) {
	s.mu.Lock()
	s.cutoffs[userID] = cutoff{before: at.Truncate(time.Second), until: at.Add(ttl)}
	s.mu.Unlock()
}

// IsRevoked reports whether the token ID was revoked.
func (s *TokenRevocationStore) IsRevoked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[id]
	return ok
}

// Rejects reports whether a token carrying claims must be refused.
func (s *TokenRevocationStore) Rejects(claims *Claims) bool {
	if claims.ID != "" && s.IsRevoked(claims.ID) {
		return true
	}
	s.mu.RLock()
	c, ok := s.cutoffs[claims.Subject]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return claims.IssuedAt == nil || claims.IssuedAt.Time.Before(c.before)
}

// Count returns the number of entries held.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens) + len(s.cutoffs)
}

// Close stops the background sweep. It is safe to call more than once.
func (s *TokenRevocationStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *TokenRevocationStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, id)
		}
	}
	for user, c := range s.cutoffs {
		if now.After(c.until) {
			delete(s.cutoffs, user)
		}
	}
}
