package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/internal/stock"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/types"
)

const shippingFee = 250

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type memPersister struct {
	mu    sync.Mutex
	carts map[string][]cart.Item
}

func newMemPersister() *memPersister {
	return &memPersister{carts: map[string][]cart.Item{}}
}

func (m *memPersister) Load(ctx context.Context, key string) ([]cart.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cart.Item(nil), m.carts[key]...), nil
}

func (m *memPersister) Save(ctx context.Context, key string, items []cart.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[key] = append([]cart.Item(nil), items...)
	return nil
}

func (m *memPersister) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, key)
	return nil
}

type stubOrders struct {
	mu     sync.Mutex
	result backend.Result[backend.CreatedOrder]
	calls  []backend.CreateOrderRequest
}

func okOrders() *stubOrders {
	return &stubOrders{result: backend.Ok(backend.CreatedOrder{OrderID: "ord_1", OrderNumber: "FG-1001"})}
}

func (s *stubOrders) CreateOrder(ctx context.Context, req backend.CreateOrderRequest) backend.Result[backend.CreatedOrder] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.result
}

func (s *stubOrders) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubVerifier struct {
	rejections []stock.Rejection
	err        error
	calls      int
	// onVerify runs after the check, while the saga is between steps.
	onVerify func()
}

func (s *stubVerifier) VerifyCart(ctx context.Context, items []cart.Item) ([]stock.Rejection, error) {
	s.calls++
	if s.onVerify != nil {
		s.onVerify()
	}
	return s.rejections, s.err
}

// stubGuard fails from the failAt-th check onwards (1-based); zero never fails.
type stubGuard struct {
	mu     sync.Mutex
	failAt int
	err    error
	calls  int
}

func (g *stubGuard) Check(ctx context.Context, id identity.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failAt > 0 && g.calls >= g.failAt {
		return g.err
	}
	return nil
}

// scriptedGateway wraps the simulated gateway and lets tests override individual steps.
type scriptedGateway struct {
	*payments.SimulatedGateway
	intentErr  error
	confirmErr error
	confirmTx  *payments.Transaction
	authorize  func(ctx context.Context) payments.AuthorizationResult
	onIntent   func()
	voided     []string
}

func newScripted() *scriptedGateway {
	return &scriptedGateway{SimulatedGateway: payments.NewSimulatedGateway(0)}
}

func (g *scriptedGateway) CreateIntent(ctx context.Context, amount int64, meta payments.Metadata) (payments.Intent, error) {
	if g.onIntent != nil {
		g.onIntent()
	}
	if g.intentErr != nil {
		return payments.Intent{}, g.intentErr
	}
	return g.SimulatedGateway.CreateIntent(ctx, amount, meta)
}

func (g *scriptedGateway) Authorize(ctx context.Context, intent payments.Intent, card payments.Card) payments.AuthorizationResult {
	if g.authorize != nil {
		return g.authorize(ctx)
	}
	return g.SimulatedGateway.Authorize(ctx, intent, card)
}

func (g *scriptedGateway) Confirm(ctx context.Context, req payments.ConfirmRequest) (payments.Transaction, error) {
	if g.confirmErr != nil {
		return payments.Transaction{}, g.confirmErr
	}
	if g.confirmTx != nil {
		return *g.confirmTx, nil
	}
	return g.SimulatedGateway.Confirm(ctx, req)
}

func (g *scriptedGateway) Void(ctx context.Context, providerPaymentID string) error {
	g.voided = append(g.voided, providerPaymentID)
	return g.SimulatedGateway.Void(ctx, providerPaymentID)
}

func buyer() identity.Identity {
	return identity.Identity{
		UserID:      "user42",
		Roles:       []enums.Role{enums.RoleBuyer},
		SessionID:   "jti-1",
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func address() types.Address {
	return types.Address{Recipient: "Ada", Line1: "1 Farm Rd", City: "Fresno", State: "CA", PostalCode: "93701"}
}

func card(number string) payments.Card {
	return payments.Card{Number: number, ExpMonth: 12, ExpYear: 2030, CVC: "123"}
}

func input(number string) SubmitInput {
	return SubmitInput{Identity: buyer(), Address: address(), Card: card(number)}
}

type fixture struct {
	saga     *Saga
	orders   *stubOrders
	verifier *stubVerifier
	guard    *stubGuard
	store    *cart.View
	device   *cart.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{orders: okOrders(), verifier: &stubVerifier{}, guard: &stubGuard{}}
	saga, err := NewSaga(f.orders, f.verifier, f.guard, nil, SagaConfig{ShippingFeeCents: shippingFee, Currency: "USD"}, testLogger())
	if err != nil {
		t.Fatalf("new saga: %v", err)
	}
	f.saga = saga
	device, err := cart.NewStore(ctx, newMemPersister(), testLogger(), "user42")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	f.device = device
	store := device.As("user42")
	if _, err := store.Add(ctx, cart.Item{ProductID: "1", Name: "Eggs", UnitPriceCents: 500}, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.store = store
	return f
}

func newAttempt(gateway payments.Gateway) Attempt {
	return Attempt{
		ID:             "chk_1",
		ClientID:       "device-a",
		Identity:       buyer(),
		IdempotencyKey: "idem-1",
		Gateway:        gateway.Kind(),
		State:          enums.SagaStateIdle,
		Currency:       "USD",
	}
}
