package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	client := &Client{store: mock, now: func() time.Time { return now }}

	allowed, count, err := client.FixedWindowAllow(ctx, "checkout_submit:ip:10.0.0.1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first hit allowed with count 1, got %v %d", allowed, count)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("expected one expire for the new window, got %+v", mock.expireCalls)
	}
	wantKey := "fg:rate_limit:checkout_submit:ip:10.0.0.1:" + fmt.Sprint(now.Truncate(time.Minute).Unix())
	if mock.expireCalls[0].key != wantKey {
		t.Fatalf("expected window key %s, got %s", wantKey, mock.expireCalls[0].key)
	}

	allowed, count, _ = client.FixedWindowAllow(ctx, "checkout_submit:ip:10.0.0.1", 2, time.Minute)
	if !allowed || count != 2 || len(mock.expireCalls) != 1 {
		t.Fatalf("unexpected second hit allowed=%v count=%d expires=%d", allowed, count, len(mock.expireCalls))
	}
	if allowed, _, _ = client.FixedWindowAllow(ctx, "checkout_submit:ip:10.0.0.1", 2, time.Minute); allowed {
		t.Fatalf("expected third hit to be limited")
	}

	now = now.Add(time.Minute)
	if allowed, count, _ = client.FixedWindowAllow(ctx, "checkout_submit:ip:10.0.0.1", 2, time.Minute); !allowed || count != 1 {
		t.Fatalf("expected a fresh counter in the next window, got %v %d", allowed, count)
	}

	if _, _, err := client.FixedWindowAllow(ctx, "scope", 2, 0); err == nil {
		t.Fatal("expected zero window to be rejected")
	}
}

func TestSetGetDelRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.CartKey("device-1", "guest")
	if err := client.Set(ctx, key, `{"items":[]}`, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != `{"items":[]}` {
		t.Fatalf("unexpected stored value %q", got)
	}
	exists, err := client.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected key to exist, got %v (%v)", exists, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err == nil || err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
	if exists, _ := client.Exists(ctx, key); exists {
		t.Fatalf("expected key to be gone")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Set(context.Background(), "k", "v", 0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "fg:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "fg:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.RevokedSessionKey("jti-1"); got != "fg:session:revoked:jti-1" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.CartKey("device-1", "user-9"); got != "fg:cart:device-1:user-9" {
		t.Fatalf("unexpected cart key %s", got)
	}
	if got := client.CartKey("device-1", " "); got != "fg:cart:device-1" {
		t.Fatalf("blank parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
