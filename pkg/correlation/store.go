// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package correlation implements the short-lived hand-off of a cleartext
// password from the hash interceptor to the event observer of the same host
// request. A deposit is keyed by the host session ID, readable exactly once,
// and only within a bounded age; everything else is treated as absent.
package correlation

import (
	"sync"
	"time"
)

// DefaultMaxAge bounds how long a deposit stays retrievable. The hash call
// and the event dispatch it correlates with run back-to-back inside one host
// request, so anything older than a few seconds is a leftover, not a match.
const DefaultMaxAge = 5 * time.Second

// Store holds at most one cleartext secret per session key. It is safe for
// concurrent use and never starts goroutines: expired slots are wiped on
// access and by an opportunistic sweep riding on writes.
type Store struct {
	mu        sync.Mutex
	slots     map[string]slot
	maxAge    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type slot struct {
	secret      []byte
	depositedAt time.Time
}

// NewStore returns an empty store. A non-positive maxAge selects
// DefaultMaxAge.
func NewStore(maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		slots:  map[string]slot{},
		maxAge: maxAge,
		now:    time.Now,
	}
}

// MaxAge reports the configured deposit lifetime.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// Put deposits a copy of secret under key, replacing and wiping any previous
// deposit for that key. Empty keys and empty secrets are ignored.
func (s *Store) Put(key string, secret []byte) {
	if key == "" || len(secret) == 0 {
		return
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if old, ok := s.slots[key]; ok {
		wipe(old.secret)
	}
	s.slots[key] = slot{secret: cp, depositedAt: now}
	s.sweepLocked(now)
}

// Take removes and returns the secret deposited under key. The read is
// destructive: a second Take for the same deposit misses. Deposits older
// than the store's max age are wiped and reported as absent. The caller owns
// the returned bytes and is expected to wipe them after use.
func (s *Store) Take(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return nil, false
	}
	delete(s.slots, key)
	if s.now().Sub(sl.depositedAt) > s.maxAge {
		wipe(sl.secret)
		return nil, false
	}
	return sl.secret, true
}

// Clear wipes and drops any deposit under key. Hosts call this on session
// teardown; age-based expiry is the second line of defence, not the first.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok {
		wipe(sl.secret)
		delete(s.slots, key)
	}
}

// Len reports the number of slots currently held, expired ones included
// until the next sweep touches them.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// sweepLocked drops expired slots, at most once per max-age interval so a
// busy store does not rescan on every write.
func (s *Store) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.maxAge {
		return
	}
	s.lastSweep = now
	for k, sl := range s.slots {
		if now.Sub(sl.depositedAt) > s.maxAge {
			wipe(sl.secret)
			delete(s.slots, k)
		}
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
