package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// Logging writes one access entry per request once the handler returns.
// Health probes are skipped.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			started := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			access := &accessRecorder{ResponseWriter: w}
			next.ServeHTTP(access, r.WithContext(ctx))

			ctx = logg.WithFields(ctx, map[string]any{
				"status":      access.code(),
				"bytes":       access.written,
				"duration_ms": time.Since(started).Milliseconds(),
				"replayed":    access.Header().Get("Idempotent-Replayed") != "",
			})
			switch status := access.code(); {
			case status >= http.StatusInternalServerError:
				logg.Warn(ctx, "request.failed")
			case status >= http.StatusBadRequest:
				logg.Info(ctx, "request.rejected")
			default:
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
}

type accessRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (a *accessRecorder) WriteHeader(code int) {
	if a.status == 0 {
		a.status = code
	}
	a.ResponseWriter.WriteHeader(code)
}

func (a *accessRecorder) Write(b []byte) (int, error) {
	n, err := a.ResponseWriter.Write(b)
	a.written += n
	return n, err
}

func (a *accessRecorder) code() int {
	if a.status == 0 {
		return http.StatusOK
	}
	return a.status
}
