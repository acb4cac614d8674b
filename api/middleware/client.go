package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/angelmondragon/farmgate-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// ClientIDHeader names the device that owns a cart.
const ClientIDHeader = "X-Client-Id"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ClientContext requires the device header and scopes the request to it.
func ClientContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader))
			if clientID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, ClientIDHeader+" header required"))
				return
			}
			if !clientIDPattern.MatchString(clientID) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, ClientIDHeader+" header is malformed"))
				return
			}
			ctx := WithClientID(r.Context(), clientID)
			if logg != nil {
				ctx = logg.WithClientID(ctx, clientID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
