package stock

import (
	"context"
	"fmt"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// Decision is the outcome of a stock check.
type Decision string

const (
	DecisionOk           Decision = "ok"
	DecisionExceedsLocal Decision = "exceeds_local"
	DecisionRejected     Decision = "rejected"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Result describes one stock decision.
type Result struct {
	ProductID string   `json:"product_id,omitempty"`
	Requested int      `json:"requested"`
	Decision  Decision `json:"decision"`
	Available int      `json:"available"`
	Source    string   `json:"source"`
}

// Ok reports whether the requested quantity can proceed.
func (r Result) Ok() bool {
	return r.Decision == DecisionOk
}

// Rejection is a cart line the backend cannot fulfil at its current quantity.
type Rejection struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Message is the user-facing hint for the line.
func (r Rejection) Message() string {
	if r.Available <= 0 {
		return fmt.Sprintf("%s is out of stock; remove it from your cart", r.label())
	}
	return fmt.Sprintf("reduce quantity of %s to %d", r.label(), r.Available)
}

func (r Rejection) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ProductID
}

// QuantityService is the authoritative availability check.
type QuantityService interface {
	ValidateQuantity(ctx context.Context, productID string, requested int) backend.Result[backend.QuantityCheck]
}

// Metrics is the subset of checkout metrics the validator reports to.
type Metrics interface {
	IncStockCheck(source, result string)
}

// Validator applies the local-then-remote stock policy. No units are reserved.
type Validator struct {
	remote  QuantityService
	metrics Metrics
	logg    *logger.Logger
}

// NewValidator wires the validator.
func NewValidator(remote QuantityService, metrics Metrics, logg *logger.Logger) (*Validator, error) {
	if remote == nil {
		return nil, fmt.Errorf("quantity service required")
	}
	return &Validator{remote: remote, metrics: metrics, logg: logg}, nil
}

// CheckLocally compares against the cached listing figure. It is advisory only.
func (v *Validator) CheckLocally(requested, knownAvailable int) Result {
	res := Result{Requested: requested, Available: knownAvailable, Source: SourceLocal, Decision: DecisionOk}
	if requested > knownAvailable {
		res.Decision = DecisionExceedsLocal
	}
	v.count(res)
	return res
}

// CheckRemote asks the backend. Insufficient stock is a Rejected result; the error is only
// set when the backend could not answer.
func (v *Validator) CheckRemote(ctx context.Context, productID string, requested int) (Result, error) {
	res := v.remote.ValidateQuantity(ctx, productID, requested)
	if !res.IsOk() {
		return Result{}, res.Failure()
	}
	check := res.Value()
	out := Result{
		ProductID: productID,
		Requested: requested,
		Available: check.AvailableQuantity,
		Source:    SourceRemote,
		Decision:  DecisionOk,
	}
	if !check.Available {
		out.Decision = DecisionRejected
	}
	v.count(out)
	return out, nil
}

// Check runs the local check first and consults the backend only when it fails or no hint exists.
func (v *Validator) Check(ctx context.Context, productID string, requested int, knownAvailable *int) (Result, error) {
	if knownAvailable != nil {
		local := v.CheckLocally(requested, *knownAvailable)
		local.ProductID = productID
		if local.Ok() {
			return local, nil
		}
	}
	return v.CheckRemote(ctx, productID, requested)
}

// VerifyCart re-checks every line against the backend, serially, and returns each rejected line.
func (v *Validator) VerifyCart(ctx context.Context, items []cart.Item) ([]Rejection, error) {
	rejections := []Rejection{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.ProductID == "" {
			continue
		}
		res, err := v.CheckRemote(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if res.Ok() {
			continue
		}
		rejections = append(rejections, Rejection{
			ProductID: item.ProductID,
			Name:      item.Name,
			Requested: item.Quantity,
			Available: res.Available,
		})
	}
	if len(rejections) > 0 && v.logg != nil {
		v.logg.Info(v.logg.WithField(ctx, "rejected_lines", len(rejections)), "stock re-check rejected cart lines")
	}
	return rejections, nil
}

func (v *Validator) count(res Result) {
	if v.metrics == nil {
		return
	}
	v.metrics.IncStockCheck(res.Source, string(res.Decision))
}
