package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sweepInterval is the number of writes between opportunistic sweeps of
// expired entries. The LRU already bounds entry count; sweeping just
// reclaims expired values earlier.
const sweepInterval = 256

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a TTL cache on top of a size-bounded LRU. Expired entries are
// treated as absent on read and removed lazily. Safe for concurrent use.
type Store[V any] struct {
	lru    *lru.Cache[string, entry[V]]
	writes atomic.Uint64
	now    func() time.Time
}

func NewStore[V any](size int) (*Store[V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache: size must be positive, got %d", size)
	}
	backing, err := lru.New[string, entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("cache: init lru: %w", err)
	}
	return &Store[V]{lru: backing, now: time.Now}, nil
}

func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	ent, ok := s.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !ent.expiresAt.After(s.now()) {
		s.lru.Remove(key)
		return zero, false
	}
	return ent.value, true
}

func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.lru.Add(key, entry[V]{
		value:     value,
		expiresAt: s.now().Add(ttl),
	})
	if s.writes.Add(1)%sweepInterval == 0 {
		s.Sweep()
	}
}

// GetBatch returns the live values for keys and the keys that missed,
// preserving input order in the miss list.
func (s *Store[V]) GetBatch(keys []string) (map[string]V, []string) {
	found := make(map[string]V, len(keys))
	var missing []string
	for _, key := range keys {
		if v, ok := s.Get(key); ok {
			found[key] = v
			continue
		}
		missing = append(missing, key)
	}
	return found, missing
}

// Sweep removes every expired entry.
func (s *Store[V]) Sweep() {
	cutoff := s.now()
	for _, key := range s.lru.Keys() {
		if ent, ok := s.lru.Peek(key); ok && !ent.expiresAt.After(cutoff) {
			s.lru.Remove(key)
		}
	}
}

func (s *Store[V]) Len() int {
	return s.lru.Len()
}

func (s *Store[V]) Purge() {
	s.lru.Purge()
}
