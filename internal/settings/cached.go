package settings

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

type cachedValue struct {
	value string
	ok    bool
}

// CachedStore is a read-through cache in front of another Store.
type CachedStore struct {
	next  Store
	cache *gocache.Cache
	group singleflight.Group
}

// NewCachedStore wraps next with a TTL cache.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{next: next, cache: gocache.New(ttl, 2*ttl)}
}

// Get serves key from cache, loading it once for concurrent callers on a miss.
func (s *CachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if hit, found := s.cache.Get(key); found {
		v := hit.(cachedValue)
		return v.value, v.ok, nil
	}
	res, err, _ := s.group.Do(key, func() (any, error) {
		value, ok, err := s.next.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		v := cachedValue{value: value, ok: ok}
		s.cache.SetDefault(key, v)
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	v := res.(cachedValue)
	return v.value, v.ok, nil
}

// Set writes through and drops the cached entry.
func (s *CachedStore) Set(ctx context.Context, key, value string) error {
	defer s.cache.Delete(key)
	return s.next.Set(ctx, key, value)
}

// Delete removes key and drops the cached entry.
func (s *CachedStore) Delete(ctx context.Context, key string) error {
	defer s.cache.Delete(key)
	return s.next.Delete(ctx, key)
}
