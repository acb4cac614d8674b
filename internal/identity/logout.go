package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

type revoker interface {
	Revoke(ctx context.Context, accessID string, expiresAt time.Time) error
}

type cartLookup interface {
	Peek(clientID string) (*cart.Store, bool)
}

// LogoutScheduler forces a logout a short while after a session was found expired.
// The device's cart store is switched back to the guest cart; the user's cart stays persisted.
type LogoutScheduler struct {
	revoker revoker
	carts   cartLookup
	delay   time.Duration
	logg    *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewLogoutScheduler(r revoker, carts cartLookup, delay time.Duration, logg *logger.Logger) (*LogoutScheduler, error) {
	if r == nil {
		return nil, fmt.Errorf("revoker required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart lookup required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogoutScheduler{
		revoker: r,
		carts:   carts,
		delay:   delay,
		logg:    logg,
		pending: map[string]*time.Timer{},
	}, nil
}

// Schedule arms the logout once per device and identity. It returns when the logout will run.
func (s *LogoutScheduler) Schedule(ctx context.Context, id Identity, clientID string) time.Time {
	key := clientID + "|" + id.Key()
	at := time.Now().Add(s.delay)
	detached := context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, armed := s.pending[key]; armed {
		return at
	}
	s.pending[key] = time.AfterFunc(s.delay, func() {
		s.run(detached, key, id, clientID)
	})
	return at
}

func (s *LogoutScheduler) run(ctx context.Context, key string, id Identity, clientID string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	if id.SessionID != "" {
		if err := s.revoker.Revoke(ctx, id.SessionID, id.ExpiresAt); err != nil {
			s.logg.Error(ctx, "failed to revoke session", err)
		}
	}
	if store, ok := s.carts.Peek(clientID); ok && store.Identity() == id.Key() {
		store.SwitchIdentity(ctx, cart.GuestKey)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"client_id": clientID, "user_id": id.UserID}), "forced logout completed")
}

// Pending is the number of armed logouts.
func (s *LogoutScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop disarms every pending logout.
func (s *LogoutScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.pending {
		timer.Stop()
		delete(s.pending, key)
	}
}
