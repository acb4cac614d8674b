package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(clientID, identityKey string) string
}

type cartRecord struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisPersister keeps one JSON record per identity key for a single device.
type RedisPersister struct {
	store    redisStore
	clientID string
	ttl      time.Duration
	now      func() time.Time
}

// NewRedisPersister scopes persistence to clientID.
func NewRedisPersister(store redisStore, clientID string, ttl time.Duration) (*RedisPersister, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client id required")
	}
	return &RedisPersister{store: store, clientID: clientID, ttl: ttl, now: time.Now}, nil
}

func (p *RedisPersister) Load(ctx context.Context, identityKey string) ([]Item, error) {
	raw, err := p.store.Get(ctx, p.store.CartKey(p.clientID, identityKey))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("reading cart: %w", err)
	}
	var record cartRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return record.Items, nil
}

func (p *RedisPersister) Save(ctx context.Context, identityKey string, items []Item) error {
	payload, err := json.Marshal(cartRecord{Items: items, UpdatedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := p.store.Set(ctx, p.store.CartKey(p.clientID, identityKey), string(payload), p.ttl); err != nil {
		return fmt.Errorf("writing cart: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, identityKey string) error {
	if err := p.store.Del(ctx, p.store.CartKey(p.clientID, identityKey)); err != nil {
		return fmt.Errorf("deleting cart: %w", err)
	}
	return nil
}
