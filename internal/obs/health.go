package obs

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck reports one dependency's status.
type HealthCheck func(ctx context.Context) error

// HealthHandler answers 200 "ok" when every check passes within timeout and
// 503 naming the first failing dependency otherwise.
func HealthHandler(timeout time.Duration, checks map[string]HealthCheck) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				http.Error(w, "unhealthy: "+name, http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
