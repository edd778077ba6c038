package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blessandsoul/glow-server/internal/domain"
)

// quotaClient is the slice of the redis API the tracker uses. Tests provide a
// stub; production passes a *redis.Client.
type quotaClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// QuotaTrackerRedis implements domain.QuotaTracker with one redis counter per
// owner per UTC day. Window reset costs nothing: a new day selects a new key
// and the old one expires on its own.
type QuotaTrackerRedis struct {
	client quotaClient
	limit  int
	now    func() time.Time
}

// NewQuotaTracker creates a tracker enforcing limit units per owner per day.
func NewQuotaTracker(client *redis.Client, limit int) *QuotaTrackerRedis {
	return &QuotaTrackerRedis{client: client, limit: limit, now: time.Now}
}

var _ domain.QuotaTracker = (*QuotaTrackerRedis)(nil)

// CheckLimit fails with domain.ErrDailyLimitReached when the owner has used
// up the current window. It never mutates the counter.
func (t *QuotaTrackerRedis) CheckLimit(ctx context.Context, ownerID string) error {
	used, err := t.used(ctx, ownerID)
	if err != nil {
		return err
	}
	if used >= t.limit {
		return domain.ErrDailyLimitReached
	}
	return nil
}

// Increment counts one unit against the current window and returns the
// resulting usage.
func (t *QuotaTrackerRedis) Increment(ctx context.Context, ownerID string) (domain.QuotaUsage, error) {
	now := t.now().UTC()
	key := quotaKey(ownerID, now)
	used, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return domain.QuotaUsage{}, fmt.Errorf("quota incr: %w", err)
	}
	if used == 1 {
		// Fresh key: expire a little past the window edge so Usage reads
		// around midnight never see a stale counter.
		_ = t.client.Expire(ctx, key, windowEnd(now).Sub(now)+time.Minute).Err()
	}
	return domain.QuotaUsage{Used: int(used), Limit: t.limit, ResetsAt: windowEnd(now)}, nil
}

// Usage reports the owner's position inside the current window.
func (t *QuotaTrackerRedis) Usage(ctx context.Context, ownerID string) (domain.QuotaUsage, error) {
	used, err := t.used(ctx, ownerID)
	if err != nil {
		return domain.QuotaUsage{}, err
	}
	return domain.QuotaUsage{Used: used, Limit: t.limit, ResetsAt: windowEnd(t.now().UTC())}, nil
}

func (t *QuotaTrackerRedis) used(ctx context.Context, ownerID string) (int, error) {
	now := t.now().UTC()
	used, err := t.client.Get(ctx, quotaKey(ownerID, now)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return used, nil
}

func quotaKey(ownerID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s", ownerID, now.Format("2006-01-02"))
}

func windowEnd(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
