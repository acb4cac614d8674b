package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
)

type stubQuantityService struct {
	available map[string]int
	failure   *backend.Error
	calls     []string
}

func (s *stubQuantityService) ValidateQuantity(ctx context.Context, productID string, requested int) backend.Result[backend.QuantityCheck] {
	s.calls = append(s.calls, productID)
	if s.failure != nil {
		return backend.Fail[backend.QuantityCheck](s.failure)
	}
	avail := s.available[productID]
	return backend.Ok(backend.QuantityCheck{Available: requested <= avail, AvailableQuantity: avail})
}

type countingMetrics struct {
	counts map[string]int
}

func (c *countingMetrics) IncStockCheck(source, result string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[source+":"+result]++
}

func newTestValidator(t *testing.T, svc *stubQuantityService, metrics Metrics) *Validator {
	t.Helper()
	v, err := NewValidator(svc, metrics, nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func TestCheckRemoteInsufficientIsRejectedNotError(t *testing.T) {
	svc := &stubQuantityService{available: map[string]int{"7": 3}}
	v := newTestValidator(t, svc, nil)

	res, err := v.CheckRemote(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionRejected || res.Available != 3 {
		t.Fatalf("expected rejected with 3 available, got %+v", res)
	}
	if res.Ok() {
		t.Fatal("rejected result must not be ok")
	}
}

func TestCheckLocally(t *testing.T) {
	metrics := &countingMetrics{}
	v := newTestValidator(t, &stubQuantityService{}, metrics)
	if res := v.CheckLocally(2, 5); !res.Ok() {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res := v.CheckLocally(6, 5); res.Decision != DecisionExceedsLocal || res.Available != 5 {
		t.Fatalf("expected exceeds_local, got %+v", res)
	}
	if metrics.counts["local:ok"] != 1 || metrics.counts["local:exceeds_local"] != 1 {
		t.Fatalf("unexpected metric counts %v", metrics.counts)
	}
}

func TestCheckPolicyLocalThenRemote(t *testing.T) {
	svc := &stubQuantityService{available: map[string]int{"7": 12}}
	v := newTestValidator(t, svc, nil)
	ctx := context.Background()

	known := 10
	res, err := v.Check(ctx, "7", 4, &known)
	if err != nil || !res.Ok() || res.Source != SourceLocal {
		t.Fatalf("expected local ok, got %+v (%v)", res, err)
	}
	if len(svc.calls) != 0 {
		t.Fatal("remote must not be consulted when local passes")
	}

	res, err = v.Check(ctx, "7", 11, &known)
	if err != nil || !res.Ok() || res.Source != SourceRemote {
		t.Fatalf("expected remote to overrule stale local hint, got %+v (%v)", res, err)
	}

	res, err = v.Check(ctx, "7", 5, nil)
	if err != nil || res.Source != SourceRemote {
		t.Fatalf("expected remote when no hint exists, got %+v (%v)", res, err)
	}
	if len(svc.calls) != 2 {
		t.Fatalf("expected 2 remote calls, got %d", len(svc.calls))
	}
}

func TestVerifyCartCollectsRejections(t *testing.T) {
	svc := &stubQuantityService{available: map[string]int{"1": 5, "7": 3}}
	v := newTestValidator(t, svc, nil)

	rejections, err := v.VerifyCart(context.Background(), []cart.Item{
		{ProductID: "1", Name: "Eggs", Quantity: 2},
		{ProductID: "7", Name: "Honey", Quantity: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejections) != 1 {
		t.Fatalf("expected one rejection, got %+v", rejections)
	}
	if rejections[0].Available != 3 || rejections[0].Message() != "reduce quantity of Honey to 3" {
		t.Fatalf("unexpected rejection %+v / %q", rejections[0], rejections[0].Message())
	}
}

func TestVerifyCartPropagatesBackendFailure(t *testing.T) {
	svc := &stubQuantityService{failure: &backend.Error{Kind: backend.KindAuth, Status: 401}}
	v := newTestValidator(t, svc, nil)

	_, err := v.VerifyCart(context.Background(), []cart.Item{{ProductID: "1", Quantity: 1}})
	if backend.KindOf(err) != backend.KindAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestVerifyCartHonoursCancellation(t *testing.T) {
	v := newTestValidator(t, &stubQuantityService{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.VerifyCart(ctx, []cart.Item{{ProductID: "1", Quantity: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRejectionMessageOutOfStock(t *testing.T) {
	r := Rejection{ProductID: "9", Available: 0}
	if r.Message() != "9 is out of stock; remove it from your cart" {
		t.Fatalf("unexpected message %q", r.Message())
	}
}
