package cache

import (
	"context"
	"sync"
	"time"

	"github.com/imusici/accademia/core/auth"
)

type challenge struct {
	userID    string
	expiresAt time.Time
}

// MemoryChallengeStore keeps challenges in process; used when no redis address is configured.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]challenge
	Now   func() time.Time
}

var _ auth.ChallengeStore = (*MemoryChallengeStore)(nil)

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		items: make(map[string]challenge),
		Now:   time.Now,
	}
}

func (s *MemoryChallengeStore) Put(_ context.Context, id, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	for k, c := range s.items {
		if !now.Before(c.expiresAt) {
			delete(s.items, k)
		}
	}
	s.items[id] = challenge{userID: userID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return "", false, nil
	}
	delete(s.items, id)
	if !s.Now().Before(c.expiresAt) {
		return "", false, nil
	}
	return c.userID, true, nil
}

func (s *MemoryChallengeStore) Close() error { return nil }
