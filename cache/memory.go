package cache

import (
	"context"
	"sync"
	"time"

	"github.com/velatir/sessiongate/fingerprint"
)

// MemoryStore is the in-process [Store]. It is the default backend:
// a resolution cache only needs to survive navigations, not restarts.
type MemoryStore struct {
	mu    sync.Mutex
	entry *Entry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore builds a [MemoryStore] with the given freshness
// window. Non-positive ttl falls back to [DefaultTTL].
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now}
}

// Read implements [Store].
//
// Read does not mutate shared global state beyond expiring a stale
// entry, and can be used concurrently.
func (s *MemoryStore) Read(_ context.Context, fp fingerprint.Digest) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil {
		return nil, ErrMiss
	}
	if s.now().Sub(s.entry.CapturedAt) >= s.ttl {
		s.entry = nil
		return nil, ErrMiss
	}
	if s.entry.Fingerprint != fp {
		return nil, ErrMiss
	}

	copied := *s.entry
	copied.User = s.entry.User.Clone()
	return &copied, nil
}

// Write implements [Store]. The replacement is atomic: a concurrent
// Read sees either the old entry or the new one, never a blend.
func (s *MemoryStore) Write(_ context.Context, entry *Entry) error {
	copied := *entry
	copied.User = entry.User.Clone()
	if copied.CapturedAt.IsZero() {
		copied.CapturedAt = s.now()
	}

	s.mu.Lock()
	s.entry = &copied
	s.mu.Unlock()
	return nil
}

// Invalidate implements [Store].
func (s *MemoryStore) Invalidate(_ context.Context) error {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
	return nil
}
