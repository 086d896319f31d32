package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/partner-sso/domain"
)

// MemoryLaunchStateStore implements domain.LaunchStateStore using ttlcache.
// It only works when the initiation and callback legs hit the same process.
type MemoryLaunchStateStore struct {
	cache *ttlcache.Cache[string, *domain.LaunchState]
}

var _ domain.LaunchStateStore = (*MemoryLaunchStateStore)(nil)

// NewMemoryLaunchStateStore creates an in-memory store; defaultTTL applies when Save gets a zero ttl.
func NewMemoryLaunchStateStore(defaultTTL time.Duration) *MemoryLaunchStateStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.LaunchState](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.LaunchState](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryLaunchStateStore{cache: cache}
}

// Save implements domain.LaunchStateStore.
func (s *MemoryLaunchStateStore) Save(_ context.Context, state *domain.LaunchState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.cache.Set(HashKey(state.State), state, ttl)
	return nil
}

// Consume implements domain.LaunchStateStore.
func (s *MemoryLaunchStateStore) Consume(_ context.Context, state string) (*domain.LaunchState, error) {
	item, ok := s.cache.GetAndDelete(HashKey(state))
	if !ok || item == nil || item.IsExpired() {
		return nil, domain.ErrLaunchStateUnknown
	}
	return item.Value(), nil
}

// Count returns the number of pending launch states.
func (s *MemoryLaunchStateStore) Count() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryLaunchStateStore) Close() error {
	s.cache.Stop()

	return nil
}
