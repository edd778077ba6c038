package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blessandsoul/glow-server/internal/domain"
)

type guestClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// GuestGateRedis implements domain.GuestGate with a SETNX flag per session
// token. The first consume wins; every later attempt inside the TTL window
// sees the flag and is rejected.
type GuestGateRedis struct {
	client guestClient
	ttl    time.Duration
}

// NewGuestGate creates a gate admitting one job per session token per ttl.
func NewGuestGate(client *redis.Client, ttl time.Duration) *GuestGateRedis {
	return &GuestGateRedis{client: client, ttl: ttl}
}

var _ domain.GuestGate = (*GuestGateRedis)(nil)

// Consume marks the session token used. It fails with
// domain.ErrGuestDemoExhausted when the token was already consumed within
// its TTL window.
func (g *GuestGateRedis) Consume(ctx context.Context, sessionToken string) error {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return domain.ErrForbidden
	}
	ok, err := g.client.SetNX(ctx, guestKey(sessionToken), 1, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("guest setnx: %w", err)
	}
	if !ok {
		return domain.ErrGuestDemoExhausted
	}
	return nil
}

// TTL returns the trial window length.
func (g *GuestGateRedis) TTL() time.Duration {
	return g.ttl
}

func guestKey(token string) string {
	return "guest:" + token
}
