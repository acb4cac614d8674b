package cart

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"go.uber.org/multierr"
)

// Persister is the durable copy of carts, one slot per identity key.
type Persister interface {
	Load(ctx context.Context, identityKey string) ([]Item, error)
	Save(ctx context.Context, identityKey string, items []Item) error
	Delete(ctx context.Context, identityKey string) error
}

// Store owns the cart of one device. It is the only writer of cart contents.
type Store struct {
	mu        sync.Mutex
	identity  string
	items     []Item
	persister Persister
	logg      *logger.Logger
}

// NewStore opens the store for identityKey, hydrating from the persister.
func NewStore(ctx context.Context, persister Persister, logg *logger.Logger, identityKey string) (*Store, error) {
	if persister == nil {
		return nil, fmt.Errorf("cart persister required")
	}
	s := &Store{
		identity:  normalizeIdentity(identityKey),
		persister: persister,
		logg:      logg,
	}
	items, err := s.load(ctx, s.identity)
	s.logFailure(ctx, "cart load failed", err)
	s.items = items
	return s, nil
}

// Identity is the key the store currently serves.
func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Snapshot returns a deep copy that callers may read freely.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Cart{IdentityKey: s.identity, Items: cloneItems(s.items)}
}

// Add merges qty into an existing line or appends a new one.
func (s *Store) Add(ctx context.Context, item Item, qty int) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, item, qty)
}

// Remove deletes the line with key; removing a missing line is a no-op.
func (s *Store) Remove(ctx context.Context, key string) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, key)
}

// UpdateQuantity sets the quantity of a line, clamped to at least 1.
func (s *Store) UpdateQuantity(ctx context.Context, key string, qty int) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, key, qty)
}

func (s *Store) addLocked(ctx context.Context, item Item, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	key := item.Key()
	if key == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item requires a product id or name")
	}
	if item.UnitPriceCents < 0 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	merged := false
	for i := range s.items {
		if s.items[i].Key() == key {
			s.items[i].Quantity += qty
			if item.KnownAvailable != nil {
				v := *item.KnownAvailable
				s.items[i].KnownAvailable = &v
			}
			merged = true
			break
		}
	}
	if !merged {
		item.Quantity = qty
		s.items = append(s.items, cloneItems([]Item{item})[0])
	}
	s.persistLocked(ctx)
	return s.viewLocked(), nil
}

func (s *Store) removeLocked(ctx context.Context, key string) Cart {
	for i := range s.items {
		if s.items[i].Key() == key {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.persistLocked(ctx)
			break
		}
	}
	return s.viewLocked()
}

func (s *Store) updateLocked(ctx context.Context, key string, qty int) (Cart, error) {
	if qty < 1 {
		qty = 1
	}
	for i := range s.items {
		if s.items[i].Key() == key {
			s.items[i].Quantity = qty
			s.persistLocked(ctx)
			return s.viewLocked(), nil
		}
	}
	return Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]string{"item_key": key})
}

// Clear empties the current identity's cart in memory and in the durable copy.
func (s *Store) Clear(ctx context.Context) {
	s.ClearIdentity(ctx, s.Identity())
}

// ClearIdentity empties identityKey's cart even if the store has since switched away from it.
func (s *Store) ClearIdentity(ctx context.Context, identityKey string) {
	identityKey = normalizeIdentity(identityKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if identityKey == s.identity {
		s.items = []Item{}
	}
	s.logFailure(ctx, "cart clear failed", s.persister.Delete(ctx, identityKey))
}

// SwitchIdentity stores the current cart under its own key and loads identityKey's cart.
// Carts are never merged across identities.
func (s *Store) SwitchIdentity(ctx context.Context, identityKey string) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(ctx, normalizeIdentity(identityKey))
	return s.viewLocked()
}

func (s *Store) switchLocked(ctx context.Context, identityKey string) {
	if identityKey == s.identity {
		return
	}

	var errs error
	if len(s.items) > 0 {
		errs = multierr.Append(errs, s.persister.Save(ctx, s.identity, cloneItems(s.items)))
	}
	items, loadErr := s.load(ctx, identityKey)
	errs = multierr.Append(errs, loadErr)
	s.logFailure(ctx, "cart identity switch degraded", errs)

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"from": s.identity, "to": identityKey}), "cart identity switched")
	}
	s.identity = identityKey
	s.items = items
}

func (s *Store) load(ctx context.Context, identityKey string) ([]Item, error) {
	items, err := s.persister.Load(ctx, identityKey)
	if err != nil {
		return []Item{}, err
	}
	valid := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Key() == "" || item.Quantity < 1 {
			continue
		}
		valid = append(valid, item)
	}
	return valid, nil
}

func (s *Store) persistLocked(ctx context.Context) {
	var err error
	if len(s.items) == 0 {
		err = s.persister.Delete(ctx, s.identity)
	} else {
		err = s.persister.Save(ctx, s.identity, cloneItems(s.items))
	}
	s.logFailure(ctx, "cart persist failed", err)
}

func (s *Store) viewLocked() Cart {
	return Cart{IdentityKey: s.identity, Items: cloneItems(s.items)}
}

func (s *Store) logFailure(ctx context.Context, msg string, err error) {
	if err == nil || s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"identity_key": s.identity,
		"error":        err.Error(),
	}), msg)
}
