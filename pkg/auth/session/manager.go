package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/angelmondragon/farmgate-checkout/pkg/redis"
)

// minRevocationTTL keeps a marker alive even for tokens already at expiry.
const minRevocationTTL = time.Minute

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type sessionKeyer interface {
	RevokedSessionKey(accessID string) string
}

// Manager tracks revoked access sessions by jti.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	now   func() time.Time
}

// AccessSessionChecker exposes the read-only surface needed by middleware and guards.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Revoker ends an access session before its token expires.
type Revoker interface {
	Revoke(ctx context.Context, accessID string, expiresAt time.Time) error
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Manager{
		store: client,
		keyer: client,
		now:   time.Now,
	}, nil
}

// Revoke marks the access id as ended until its token would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, accessID string, expiresAt time.Time) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	ttl := expiresAt.Sub(m.now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	return m.store.Set(ctx, m.keyer.RevokedSessionKey(accessID), "1", ttl)
}

// HasSession reports whether the provided access ID is still live.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	revoked, err := m.store.Exists(ctx, m.keyer.RevokedSessionKey(accessID))
	if err != nil {
		return false, err
	}
	return !revoked, nil
}
