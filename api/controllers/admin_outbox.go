package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/farmgate-checkout/api/responses"
	"github.com/angelmondragon/farmgate-checkout/api/validators"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

type DLQLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

// AdminOutboxDLQ lists checkout events that were given up on, newest first.
func AdminOutboxDLQ(dlq DLQLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := dlq.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox dlq"))
			return
		}
		byReason, err := dlq.CountByReason(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outbox dlq"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": rows, "count": len(rows), "by_reason": byReason})
	}
}
