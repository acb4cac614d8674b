package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/farmgate-checkout/api/responses"
	"github.com/angelmondragon/farmgate-checkout/api/validators"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

const maxAbandonedAge = 30 * 24 * time.Hour

type AbandonedLister interface {
	ListAbandoned(ctx context.Context, olderThan time.Duration, limit int) ([]models.CheckoutAttempt, error)
}

// AdminAbandonedCheckouts lists orders left unpaid for reconciliation.
func AdminAbandonedCheckouts(svc AbandonedLister, defaultAge time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		olderThan, err := validators.ParseQueryMinutes(r, "older_than_minutes", defaultAge, maxAbandonedAge)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListAbandoned(r.Context(), olderThan, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"checkouts": rows, "count": len(rows)})
	}
}
