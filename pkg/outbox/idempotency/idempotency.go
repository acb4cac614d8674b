package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/redis"
)

// Guard remembers which outbox events a publisher already handed to Pub/Sub.
// Keys follow `fg:idempotency:evt:published:<publisher>:<event_id>`.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when this call owns the event; false means it was already published.
func (g *Guard) Claim(ctx context.Context, publisher, eventID string) (bool, error) {
	key, err := g.key(publisher, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, "1", g.ttl)
}

// Release drops a claim after a failed publish so the next batch retries it.
func (g *Guard) Release(ctx context.Context, publisher, eventID string) error {
	key, err := g.key(publisher, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(publisher, eventID string) (string, error) {
	if strings.TrimSpace(publisher) == "" {
		return "", errors.New("publisher name is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:published:%s", publisher), eventID), nil
}
