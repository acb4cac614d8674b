package cart

import "context"

// View is a device Store bound to one identity. Every call brings the store
// to that identity under the store lock before reading or writing items, so
// a concurrent request for another identity on the same device cannot
// redirect it to the wrong cart.
type View struct {
	store    *Store
	identity string
}

// As binds the store to identityKey.
func (s *Store) As(identityKey string) *View {
	return &View{store: s, identity: normalizeIdentity(identityKey)}
}

func (v *View) Identity() string { return v.identity }

// Snapshot returns a deep copy of the bound identity's cart.
func (v *View) Snapshot(ctx context.Context) Cart {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(ctx, v.identity)
	return s.viewLocked()
}

func (v *View) Add(ctx context.Context, item Item, qty int) (Cart, error) {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(ctx, v.identity)
	return s.addLocked(ctx, item, qty)
}

func (v *View) Remove(ctx context.Context, key string) Cart {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(ctx, v.identity)
	return s.removeLocked(ctx, key)
}

func (v *View) UpdateQuantity(ctx context.Context, key string, qty int) (Cart, error) {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchLocked(ctx, v.identity)
	return s.updateLocked(ctx, key, qty)
}

// Clear empties the bound identity's cart whichever identity the device is on.
func (v *View) Clear(ctx context.Context) {
	v.store.ClearIdentity(ctx, v.identity)
}

// ClearIdentity empties identityKey's cart.
func (v *View) ClearIdentity(ctx context.Context, identityKey string) {
	v.store.ClearIdentity(ctx, identityKey)
}
