package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

type fixedSelector struct {
	gateway payments.Gateway
}

func (s fixedSelector) Select(context.Context) payments.Gateway { return s.gateway }

func (s fixedSelector) ByKind(enums.GatewayKind) (payments.Gateway, error) { return s.gateway, nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type recordingLogout struct {
	scheduled []string
}

func (l *recordingLogout) Schedule(ctx context.Context, id identity.Identity, clientID string) time.Time {
	l.scheduled = append(l.scheduled, clientID+"|"+id.UserID)
	return time.Now().Add(3 * time.Second)
}

type serviceFixture struct {
	svc       *Service
	fixture   *fixture
	registry  *cart.Registry
	publisher *recordingPublisher
	logout    *recordingLogout
	repo      Repository
}

func newServiceFixture(t *testing.T, gateway payments.Gateway) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	persister := newMemPersister()
	registry, err := cart.NewRegistry(func(string) (cart.Persister, error) { return persister, nil }, testLogger(), time.Hour)
	require.NoError(t, err)
	store, err := registry.For(ctx, "device-a", "user42")
	require.NoError(t, err)
	_, err = store.Add(ctx, cart.Item{ProductID: "1", Name: "Eggs", UnitPriceCents: 500}, 2)
	require.NoError(t, err)

	sf := &serviceFixture{
		fixture:   f,
		registry:  registry,
		publisher: &recordingPublisher{},
		logout:    &recordingLogout{},
		repo:      NewRepository(newTestDB(t)),
	}
	svc, err := NewService(ServiceParams{
		Saga:       f.saga,
		Selector:   fixedSelector{gateway: gateway},
		Carts:      registry,
		Repository: sf.repo,
		Publisher:  sf.publisher,
		Logout:     sf.logout,
		Logger:     testLogger(),
		AttemptTTL: time.Hour,
	})
	require.NoError(t, err)
	sf.svc = svc
	return sf
}

func (sf *serviceFixture) cart(t *testing.T) cart.Cart {
	t.Helper()
	store, err := sf.registry.For(context.Background(), "device-a", "user42")
	require.NoError(t, err)
	return store.Snapshot(context.Background())
}

func TestServiceBeginRequiresLogin(t *testing.T) {
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	_, err := sf.svc.Begin(context.Background(), "device-a", identity.Guest())
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
}

func TestServiceSubmitSucceeds(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))

	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayKindSimulated, attempt.Gateway)
	assert.NotEmpty(t, attempt.IdempotencyKey)

	final, out, err := sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateSucceeded, out.State)
	assert.Equal(t, int64(1250), final.AmountCents)
	assert.True(t, sf.cart(t).IsEmpty())
	assert.Equal(t, []string{EventCheckoutSucceeded}, sf.publisher.types())

	row, err := sf.repo.FindByID(ctx, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.SagaStateSucceeded, row.State)

	_, _, err = sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestServiceDeclineThenRetry(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)

	_, out, err := sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardGenericDecline))
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateAuthorizationFailed, out.State)
	assert.Len(t, sf.cart(t).Items, 1)

	_, out, err = sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateSucceeded, out.State)
	assert.Equal(t, 1, sf.fixture.orders.count())
	assert.Equal(t, []string{EventCheckoutFailed, EventCheckoutSucceeded}, sf.publisher.types())
}

func TestServiceBlockedSubmitPublishesNothing(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)

	in := input(payments.CardVisaSuccess)
	in.Address.Line1 = ""
	_, out, err := sf.svc.Submit(ctx, attempt.ID, "device-a", in)
	require.NoError(t, err)
	assert.True(t, out.Blocked)
	assert.Empty(t, sf.publisher.types())

	got, err := sf.svc.Get(ctx, attempt.ID, "device-a", buyer())
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateIdle, got.State)
}

func TestServiceSessionExpiredSchedulesLogout(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	sf.fixture.guard.failAt = 3
	sf.fixture.guard.err = pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")

	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)
	final, out, err := sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateSessionExpired, out.State)
	require.NotNil(t, out.LogoutAt)
	require.NotNil(t, final.Outcome)
	assert.NotNil(t, final.Outcome.LogoutAt)
	assert.Equal(t, []string{"device-a|user42"}, sf.logout.scheduled)
	assert.Len(t, sf.cart(t).Items, 1)
}

func TestServiceScopesAttemptsToOwner(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)

	_, err = sf.svc.Get(ctx, attempt.ID, "device-b", buyer())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	other := buyer()
	other.UserID = "user7"
	_, err = sf.svc.Get(ctx, attempt.ID, "device-a", other)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestServiceConcurrentSubmitAndAbandon(t *testing.T) {
	ctx := context.Background()
	gw := newScripted()
	started := make(chan struct{})
	gw.authorize = func(ctx context.Context) payments.AuthorizationResult {
		close(started)
		<-ctx.Done()
		return payments.NetworkError(ctx.Err().Error())
	}
	sf := newServiceFixture(t, gw)
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, out, err := sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
		done <- result{out: out, err: err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("saga did not reach authorization")
	}

	inFlight, err := sf.svc.Get(ctx, attempt.ID, "device-a", buyer())
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateAwaitingAuthorization, inFlight.State)

	_, _, err = sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	_, err = sf.svc.Abandon(ctx, attempt.ID, "device-a", buyer())
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, enums.SagaStateAbandoned, res.out.State)
	case <-time.After(5 * time.Second):
		t.Fatal("abandon did not stop the saga")
	}
	assert.Len(t, sf.cart(t).Items, 1)
	assert.Equal(t, []string{EventCheckoutAbandoned}, sf.publisher.types())
}

func TestServiceAbandonIdleAttempt(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)

	abandoned, err := sf.svc.Abandon(ctx, attempt.ID, "device-a", buyer())
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStateAbandoned, abandoned.State)

	_, _, err = sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardVisaSuccess))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestServiceListAbandoned(t *testing.T) {
	ctx := context.Background()
	sf := newServiceFixture(t, payments.NewSimulatedGateway(0))
	attempt, err := sf.svc.Begin(ctx, "device-a", buyer())
	require.NoError(t, err)
	_, _, err = sf.svc.Submit(ctx, attempt.ID, "device-a", input(payments.CardGenericDecline))
	require.NoError(t, err)

	sf.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	rows, err := sf.svc.ListAbandoned(ctx, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, attempt.ID, rows[0].ID)
}
