package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type claim struct {
	token    string
	deadline time.Time
}

// MemoryStore is the single process fallback when redis is not configured.
// Entries expire after the store's TTL; the per-call ttl may only shorten it.
type MemoryStore struct {
	mu       sync.Mutex
	cache    *expirable.LRU[string, claim]
	now      func() time.Time
	newToken func() string
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{
		cache:    expirable.NewLRU[string, claim](size, nil, ttl),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.cache.Get(key); ok && now.Before(c.deadline) {
		return "", false, nil
	}
	token := s.newToken()
	s.cache.Add(key, claim{token: token, deadline: now.Add(ttl)})
	return token, true, nil
}

// Release drops the claim only while token still owns it.
func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache.Peek(key); ok && c.token == token {
		s.cache.Remove(key)
	}
	return nil
}
