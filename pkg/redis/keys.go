package redis

import (
	"strconv"
	"strings"
	"time"
)

const keyNamespace = "fg"

// Keys builds every key this service writes. Blank parts are dropped so a
// missing identity never produces a "::" hole.
type Keys struct{}

func (Keys) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

func (Keys) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

// RateLimitWindowKey is the counter for the window starting at windowStart.
func (k Keys) RateLimitWindowKey(scope string, windowStart time.Time) string {
	return k.RateLimitKey(scope) + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}

// RevokedSessionKey marks an access token id as logged out.
func (Keys) RevokedSessionKey(accessID string) string {
	return buildKey("session", "revoked", accessID)
}

// CartKey is the durable slot of one identity's cart on one device.
func (Keys) CartKey(clientID, identityKey string) string {
	return buildKey("cart", clientID, identityKey)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
