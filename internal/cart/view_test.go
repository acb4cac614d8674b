package cart

import (
	"context"
	"sync"
	"testing"
)

func TestViewsOnOneStoreStayIsolated(t *testing.T) {
	store := newTestStore(t, newMemPersister(), "user42")
	ctx := context.Background()
	user := store.As("user42")
	guest := store.As(GuestKey)

	if _, err := user.Add(ctx, Item{ProductID: "1", UnitPriceCents: 500}, 2); err != nil {
		t.Fatalf("user add: %v", err)
	}
	if _, err := guest.Add(ctx, Item{ProductID: "99", UnitPriceCents: 900}, 1); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	got, err := user.UpdateQuantity(ctx, "1", 3)
	if err != nil {
		t.Fatalf("user update: %v", err)
	}
	if got.IdentityKey != "user42" || len(got.Items) != 1 || got.Items[0].Quantity != 3 {
		t.Fatalf("unexpected user cart %+v", got)
	}
	if snap := guest.Snapshot(ctx); snap.IdentityKey != GuestKey || len(snap.Items) != 1 || snap.Items[0].ProductID != "99" {
		t.Fatalf("unexpected guest cart %+v", snap)
	}
	guest.Clear(ctx)
	if snap := user.Snapshot(ctx); len(snap.Items) != 1 {
		t.Fatalf("clearing the guest cart must not touch the user's, got %+v", snap)
	}
}

func TestViewsSurviveConcurrentSwitching(t *testing.T) {
	store := newTestStore(t, newMemPersister(), GuestKey)
	ctx := context.Background()
	user := store.As("user42")
	guest := store.As(GuestKey)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = user.Add(ctx, Item{ProductID: "1", UnitPriceCents: 500}, 1)
		}()
		go func() {
			defer wg.Done()
			_, _ = guest.Add(ctx, Item{ProductID: "99", UnitPriceCents: 900}, 1)
			store.SwitchIdentity(ctx, GuestKey)
		}()
	}
	wg.Wait()

	u := user.Snapshot(ctx)
	if _, ok := u.Find("99"); ok || len(u.Items) != 1 || u.Items[0].Quantity != 20 {
		t.Fatalf("unexpected user cart %+v", u)
	}
	g := guest.Snapshot(ctx)
	if _, ok := g.Find("1"); ok || len(g.Items) != 1 || g.Items[0].Quantity != 20 {
		t.Fatalf("unexpected guest cart %+v", g)
	}
}
