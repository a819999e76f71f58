package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is the fixed-window counter for a single key.
type bucket struct {
	count     int
	windowEnd time.Time
}

// MemoryStore implements Store with mutex-guarded in-process buckets.
// Suitable for single-instance deployments only; counters are not shared
// across processes.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryStore creates an in-memory rate limit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take performs the check-and-increment under one lock acquisition, so
// concurrent requests for the same key never lose updates and a rejected
// request is never counted.
func (s *MemoryStore) Take(ctx context.Context, key string, cfg Config) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	b, exists := s.buckets[key]
	if !exists || now.After(b.windowEnd) {
		b = &bucket{count: 0, windowEnd: now.Add(cfg.Window)}
		s.buckets[key] = b
	}

	if b.count >= cfg.Limit {
		return Decision{Allowed: false, Remaining: 0, Reset: b.windowEnd}, nil
	}

	b.count++
	return Decision{
		Allowed:   true,
		Remaining: cfg.Limit - b.count,
		Reset:     b.windowEnd,
	}, nil
}

// Sweep removes expired buckets to bound memory growth.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// StartSweeping runs Sweep on the given interval until ctx is cancelled.
func (s *MemoryStore) StartSweeping(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
