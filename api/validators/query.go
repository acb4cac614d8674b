package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

// ParseQueryInt reads key as an integer within [min, max]. A missing or empty
// value yields fallback.
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "must be a whole number", nil)
	}
	if n < min || n > max {
		return 0, queryError(key, "out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// ParseQueryMinutes reads key as a whole number of minutes bounded by max.
func ParseQueryMinutes(r *http.Request, key string, fallback, max time.Duration) (time.Duration, error) {
	n, err := ParseQueryInt(r, key, int(fallback/time.Minute), 1, int(max/time.Minute))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func queryError(key, problem string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter "+key+" "+problem).WithDetails(details)
}
