package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/partner-sso/cache"
	"github.com/pilab-dev/partner-sso/domain"
	"github.com/redis/go-redis/v9"
)

// LaunchStateStore implements domain.LaunchStateStore on Redis so the
// initiation and callback legs may land on different instances.
type LaunchStateStore struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
}

var _ domain.LaunchStateStore = (*LaunchStateStore)(nil)

// NewLaunchStateStore creates a new [LaunchStateStore] instance
func NewLaunchStateStore(client redis.UniversalClient, prefix string) *LaunchStateStore {
	return &LaunchStateStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given state value
func (r *LaunchStateStore) redisKey(state string) string {
	return fmt.Sprintf("%s:lti_state:%s", r.prefix, cache.HashKey(state))
}

// Save stores the launch state with the given expiry.
func (r *LaunchStateStore) Save(ctx context.Context, state *domain.LaunchState, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("launch state ttl must be positive, got %s", ttl)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal launch state: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(state.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store launch state in Redis: %w", err)
	}

	return nil
}

// Consume atomically reads and deletes the launch state.
func (r *LaunchStateStore) Consume(ctx context.Context, state string) (*domain.LaunchState, error) {
	payload, err := r.client.GetDel(ctx, r.redisKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrLaunchStateUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume launch state from Redis: %w", err)
	}

	var ls domain.LaunchState
	if err := json.Unmarshal(payload, &ls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal launch state: %w", err)
	}

	return &ls, nil
}
