package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmgate-checkout/api/middleware"
	"github.com/angelmondragon/farmgate-checkout/api/responses"
	"github.com/angelmondragon/farmgate-checkout/api/validators"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/types"
)

const maxItemNameLength = 200

// CartRegistry resolves the device's cart, bound to the caller's identity.
type CartRegistry interface {
	For(ctx context.Context, clientID, identityKey string) (*cart.View, error)
}

// CartPricing carries the fee and currency used for the totals shown with a cart.
type CartPricing struct {
	ShippingFeeCents int64
	Currency         string
}

// CartGet returns the cart for the caller on this device.
func CartGet(carts CartRegistry, pricing CartPricing, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := resolveCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Snapshot(r.Context()), pricing))
	}
}

// CartAddItem merges the item into the cart or appends it.
func CartAddItem(carts CartRegistry, pricing CartPricing, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := resolveCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := store.Add(r.Context(), payload.toItem(), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(view, pricing))
	}
}

// CartUpdateItem sets the line quantity, clamped to at least one.
func CartUpdateItem(carts CartRegistry, pricing CartPricing, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := resolveCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := store.UpdateQuantity(r.Context(), itemKeyParam(r), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view, pricing))
	}
}

// CartRemoveItem drops the line. Removing an absent line is not an error.
func CartRemoveItem(carts CartRegistry, pricing CartPricing, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := resolveCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := store.Remove(r.Context(), itemKeyParam(r))
		responses.WriteSuccess(w, newCartResponse(view, pricing))
	}
}

func resolveCart(r *http.Request, carts CartRegistry) (*cart.View, error) {
	if carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable")
	}
	clientID := middleware.ClientIDFromContext(r.Context())
	if clientID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, middleware.ClientIDHeader+" header required")
	}
	return carts.For(r.Context(), clientID, middleware.IdentityFromContext(r.Context()).Key())
}

// itemKeyParam decodes the key so name-keyed lines ("name:Fresh Eggs") survive the URL.
func itemKeyParam(r *http.Request) string {
	raw := chi.URLParam(r, "itemKey")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

type addItemRequest struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name" validate:"required,notblank"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"min=0"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	ImageRef       string `json:"image_ref,omitempty"`
	KnownAvailable *int   `json:"known_available,omitempty" validate:"omitempty,min=0"`
}

func (p addItemRequest) toItem() cart.Item {
	return cart.Item{
		ProductID:      strings.TrimSpace(p.ProductID),
		Name:           validators.SanitizeString(p.Name, maxItemNameLength),
		UnitPriceCents: p.UnitPriceCents,
		ImageRef:       strings.TrimSpace(p.ImageRef),
		KnownAvailable: p.KnownAvailable,
	}
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartLineResponse struct {
	cart.Item
	Key       string      `json:"key"`
	LineTotal types.Money `json:"line_total"`
}

type cartResponse struct {
	IdentityKey string             `json:"identity_key"`
	Items       []cartLineResponse `json:"items"`
	Units       int                `json:"units"`
	Subtotal    types.Money        `json:"subtotal"`
	ShippingFee types.Money        `json:"shipping_fee"`
	Total       types.Money        `json:"total"`
}

func newCartResponse(c cart.Cart, pricing CartPricing) cartResponse {
	lines := make([]cartLineResponse, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, cartLineResponse{
			Item:      item,
			Key:       item.Key(),
			LineTotal: types.NewMoney(item.LineTotal(), pricing.Currency),
		})
	}
	fee := pricing.ShippingFeeCents
	return cartResponse{
		IdentityKey: c.IdentityKey,
		Items:       lines,
		Units:       c.Units(),
		Subtotal:    types.NewMoney(c.Subtotal(), pricing.Currency),
		ShippingFee: types.NewMoney(fee, pricing.Currency),
		Total:       types.NewMoney(c.Total(fee), pricing.Currency),
	}
}
