package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers provider message ids so a redelivered webhook is
// recognised before it reaches the data store. A nil guard remembers nothing.
type ReplayGuard struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewReplayGuard returns nil when client is nil.
func NewReplayGuard(client redis.Cmdable, ttl time.Duration) *ReplayGuard {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &ReplayGuard{client: client, ttl: ttl, prefix: "webhook:seen:"}
}

// FirstSeen claims the id and reports whether this is its first delivery.
// Events without an id are always treated as first seen.
func (g *ReplayGuard) FirstSeen(ctx context.Context, provider Provider, messageID string) (bool, error) {
	if g == nil || messageID == "" {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.prefix+string(provider)+":"+messageID, time.Now().UTC().Unix(), g.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("webhook: replay guard: %w", err)
	}
	return ok, nil
}

// Forget releases a claim so a delivery that failed internally can be retried.
func (g *ReplayGuard) Forget(ctx context.Context, provider Provider, messageID string) error {
	if g == nil || messageID == "" {
		return nil
	}
	if err := g.client.Del(ctx, g.prefix+string(provider)+":"+messageID).Err(); err != nil {
		return fmt.Errorf("webhook: replay guard: %w", err)
	}
	return nil
}
