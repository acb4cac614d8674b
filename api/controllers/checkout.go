package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmgate-checkout/api/middleware"
	"github.com/angelmondragon/farmgate-checkout/api/responses"
	"github.com/angelmondragon/farmgate-checkout/api/validators"
	checkoutsvc "github.com/angelmondragon/farmgate-checkout/internal/checkout"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/types"
)

// CheckoutService is the attempt lifecycle the checkout routes drive.
type CheckoutService interface {
	Begin(ctx context.Context, clientID string, id identity.Identity) (checkoutsvc.Attempt, error)
	Get(ctx context.Context, checkoutID, clientID string, id identity.Identity) (checkoutsvc.Attempt, error)
	Submit(ctx context.Context, checkoutID, clientID string, in checkoutsvc.SubmitInput) (checkoutsvc.Attempt, checkoutsvc.Outcome, error)
	Abandon(ctx context.Context, checkoutID, clientID string, id identity.Identity) (checkoutsvc.Attempt, error)
}

// CheckoutBegin opens an attempt and fixes its payment gateway.
func CheckoutBegin(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		attempt, err := svc.Begin(r.Context(), middleware.ClientIDFromContext(r.Context()), middleware.IdentityFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, attempt)
	}
}

// CheckoutGet returns the attempt, including in-flight progress.
func CheckoutGet(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		attempt, err := svc.Get(r.Context(), chi.URLParam(r, "checkoutId"), middleware.ClientIDFromContext(r.Context()), middleware.IdentityFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempt)
	}
}

// CheckoutSubmit runs the saga. Every outcome, failed or not, is a 200 carrying the outcome;
// only requests the service refuses outright are errors.
func CheckoutSubmit(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload submitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		checkoutID := chi.URLParam(r, "checkoutId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCheckoutID(ctx, checkoutID)
		}
		attempt, outcome, err := svc.Submit(ctx, checkoutID, middleware.ClientIDFromContext(ctx), checkoutsvc.SubmitInput{
			Identity: middleware.IdentityFromContext(ctx),
			Address:  payload.Address,
			Card:     payload.Card.toCard(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, submitResponse{Checkout: attempt, Outcome: outcome})
	}
}

// CheckoutAbandon cancels the attempt. A running submission stops at its next step.
func CheckoutAbandon(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		attempt, err := svc.Abandon(r.Context(), chi.URLParam(r, "checkoutId"), middleware.ClientIDFromContext(r.Context()), middleware.IdentityFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempt)
	}
}

// Address and card are checked by the saga so a bad value blocks with an outcome instead of a 400.
type submitRequest struct {
	Address types.Address `json:"address" validate:"-"`
	Card    cardRequest   `json:"card" validate:"-"`
}

type cardRequest struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
	Token    string `json:"token,omitempty"`
}

func (c cardRequest) toCard() payments.Card {
	return payments.Card{
		Number:   c.Number,
		ExpMonth: c.ExpMonth,
		ExpYear:  c.ExpYear,
		CVC:      c.CVC,
		Token:    c.Token,
	}
}

type submitResponse struct {
	Checkout checkoutsvc.Attempt `json:"checkout"`
	Outcome  checkoutsvc.Outcome `json:"outcome"`
}
