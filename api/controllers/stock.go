package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/farmgate-checkout/api/responses"
	"github.com/angelmondragon/farmgate-checkout/api/validators"
	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/stock"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// StockChecker applies the local-then-remote availability policy.
type StockChecker interface {
	Check(ctx context.Context, productID string, requested int, knownAvailable *int) (stock.Result, error)
}

type stockCheckRequest struct {
	ProductID      string `json:"product_id" validate:"required,notblank"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	KnownAvailable *int   `json:"known_available,omitempty" validate:"omitempty,min=0"`
}

// StockCheck answers whether a quantity can be requested. An insufficient quantity is a normal answer.
func StockCheck(checker StockChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock validator unavailable"))
			return
		}
		var payload stockCheckRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := checker.Check(r.Context(), payload.ProductID, payload.Quantity, payload.KnownAvailable)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, backend.ToAPIError(err))
			return
		}
		responses.WriteSuccess(w, stockCheckResponse{Result: res, Ok: res.Ok()})
	}
}

type stockCheckResponse struct {
	stock.Result
	Ok bool `json:"ok"`
}
