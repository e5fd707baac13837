package fallback

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedBreakerStore lets a circuit breaker's state be observed across
// process boundaries, for deployments that run more than one Runtime
// instance against the same model fleet (SPEC_FULL.md §5 Concurrency &
// Resource Model: the breaker map is process-local by default, but a
// cluster needs its "open" verdict shared). Grounded on the teacher's
// registry/registry.go, which joins a Redis-backed health map
// (`rmap.Join(ctx, healthMapName, cfg.Redis)`) so every node in a cluster
// observes the same peer-health state instead of each node tracking its
// own.
type SharedBreakerStore interface {
	Load(ctx context.Context, model string) (open bool, openedAt time.Time, failureCount int, err error)
	Save(ctx context.Context, model string, open bool, openedAt time.Time, failureCount int) error
}

// RedisBreakerStore is a SharedBreakerStore backed by a Redis hash per
// model, one field per breaker attribute, with a TTL long enough to
// outlive the cooldown window.
type RedisBreakerStore struct {
	Client *redis.Client
	Prefix string // key prefix, defaults to "agent-engine:breaker:" when empty
}

func (s *RedisBreakerStore) key(model string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "agent-engine:breaker:"
	}
	return prefix + model
}

// Load reads the last-synced breaker state for model. A missing key is not
// an error: it means no node has ever recorded a failure for that model.
func (s *RedisBreakerStore) Load(ctx context.Context, model string) (bool, time.Time, int, error) {
	vals, err := s.Client.HGetAll(ctx, s.key(model)).Result()
	if err != nil {
		return false, time.Time{}, 0, fmt.Errorf("fallback: redis breaker load: %w", err)
	}
	if len(vals) == 0 {
		return false, time.Time{}, 0, nil
	}
	open := vals["open"] == "1"
	count, _ := strconv.Atoi(vals["failureCount"])
	var openedAt time.Time
	if unix, err := strconv.ParseInt(vals["openedAt"], 10, 64); err == nil {
		openedAt = time.Unix(unix, 0)
	}
	return open, openedAt, count, nil
}

// Save writes model's breaker state, refreshing the key's TTL to twice the
// cooldown window so stale entries for retired models expire on their own.
func (s *RedisBreakerStore) Save(ctx context.Context, model string, open bool, openedAt time.Time, failureCount int) error {
	k := s.key(model)
	openFlag := "0"
	if open {
		openFlag = "1"
	}
	if err := s.Client.HSet(ctx, k, map[string]any{
		"open":         openFlag,
		"openedAt":     openedAt.Unix(),
		"failureCount": failureCount,
	}).Err(); err != nil {
		return fmt.Errorf("fallback: redis breaker save: %w", err)
	}
	return s.Client.Expire(ctx, k, 2*cooldown).Err()
}
