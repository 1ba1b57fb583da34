// Package dedup suppresses repeat signal publications using Redis.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/favron1/linescout/pkg/models"
)

// Deduplicator deduplicates signals using Redis.
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator(client *redis.Client, ttlMinutes int) *Deduplicator {
	return &Deduplicator{
		client: client,
		ttl:    time.Duration(ttlMinutes) * time.Minute,
	}
}

// ShouldPublish returns true if this signal hasn't been published recently.
// The window is keyed by (event, side, tier): a tier upgrade on the same
// event counts as a new signal.
func (d *Deduplicator) ShouldPublish(ctx context.Context, sig models.SignalOpportunity) (bool, error) {
	key := d.dedupKey(sig)

	set, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set dedup key: %w", err)
	}

	return set, nil
}

func (d *Deduplicator) dedupKey(sig models.SignalOpportunity) string {
	return fmt.Sprintf("signal:dedup:%s:%s:%s", sig.EventKey, sig.Side, sig.Tier)
}

// Clear removes a dedup entry, releasing the window early so a signal
// whose publication failed can retry on the next tick.
func (d *Deduplicator) Clear(ctx context.Context, sig models.SignalOpportunity) error {
	return d.client.Del(ctx, d.dedupKey(sig)).Err()
}

// TokenBucket caps signal publications per minute across all events.
type TokenBucket struct {
	client       *redis.Client
	key          string
	maxTokens    int
	refillPeriod time.Duration
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(client *redis.Client, maxTokens int) *TokenBucket {
	return &TokenBucket{
		client:       client,
		key:          "signal:ratelimit:tokens",
		maxTokens:    maxTokens,
		refillPeriod: 1 * time.Minute,
	}
}

// Allow returns true if a publication token is available.
func (tb *TokenBucket) Allow(ctx context.Context) (bool, error) {
	if err := tb.initialize(ctx); err != nil {
		return false, err
	}

	tokens, err := tb.client.Decr(ctx, tb.key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to decrement tokens: %w", err)
	}

	// Decr recreates a just-expired key with no TTL; re-arm it so the
	// refill cycle cannot stall with the bucket pinned at empty
	if err := tb.client.ExpireNX(ctx, tb.key, tb.refillPeriod).Err(); err != nil {
		return false, fmt.Errorf("failed to arm refill: %w", err)
	}

	if tokens < 0 {
		// Restore the token we tried to take
		tb.client.Incr(ctx, tb.key)
		return false, nil
	}

	return true, nil
}

func (tb *TokenBucket) initialize(ctx context.Context) error {
	// SetNX so only the first caller arms the refill expiry
	if err := tb.client.SetNX(ctx, tb.key, tb.maxTokens, tb.refillPeriod).Err(); err != nil {
		return fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return nil
}

// Tokens returns the current token count (for monitoring).
func (tb *TokenBucket) Tokens(ctx context.Context) (int, error) {
	tokens, err := tb.client.Get(ctx, tb.key).Int()
	if err != nil {
		if err == redis.Nil {
			return tb.maxTokens, nil
		}
		return 0, fmt.Errorf("failed to get tokens: %w", err)
	}

	return tokens, nil
}

// Reset refills the bucket to max tokens (for testing).
func (tb *TokenBucket) Reset(ctx context.Context) error {
	return tb.client.Set(ctx, tb.key, tb.maxTokens, tb.refillPeriod).Err()
}
