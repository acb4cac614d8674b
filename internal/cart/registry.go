package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// PersisterFactory builds the durable copy for one device.
type PersisterFactory func(clientID string) (Persister, error)

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// Registry hands out one Store per device and drops idle ones from memory.
// Dropped stores are rebuilt from the durable copy on the next request.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*registryEntry
	factory   PersisterFactory
	logg      *logger.Logger
	idleAfter time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRegistry constructs a registry.
func NewRegistry(factory PersisterFactory, logg *logger.Logger, idleAfter time.Duration) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("persister factory required")
	}
	return &Registry{
		entries:   map[string]*registryEntry{},
		factory:   factory,
		logg:      logg,
		idleAfter: idleAfter,
		now:       time.Now,
	}, nil
}

// For returns the device's store bound to identityKey. The store is also
// switched eagerly so login and logout are observed on the next request.
func (r *Registry) For(ctx context.Context, clientID, identityKey string) (*View, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id required")
	}

	r.mu.Lock()
	now := r.now()
	r.sweepLocked(now)
	entry, ok := r.entries[clientID]
	if ok {
		entry.lastSeen = now
	}
	r.mu.Unlock()

	if ok {
		entry.store.SwitchIdentity(ctx, identityKey)
		return entry.store.As(identityKey), nil
	}

	persister, err := r.factory(clientID)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, persister, r.logg, identityKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, raced := r.entries[clientID]; raced {
		existing.lastSeen = now
		existing.store.SwitchIdentity(ctx, identityKey)
		return existing.store.As(identityKey), nil
	}
	r.entries[clientID] = &registryEntry{store: store, lastSeen: now}
	return store.As(identityKey), nil
}

// Peek returns the device's store without switching identity.
func (r *Registry) Peek(clientID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[clientID]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Len is the number of stores held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sweepLocked(now time.Time) {
	if r.idleAfter <= 0 || now.Sub(r.lastSweep) < r.idleAfter/2 {
		return
	}
	r.lastSweep = now
	for id, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.idleAfter {
			delete(r.entries, id)
		}
	}
}
