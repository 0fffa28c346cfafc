package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

// Authenticator is the subset of *authcore.Engine that Guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string, requiredRoles ...string) (*authcore.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return c, ok && c != nil
}

// Guard admits requests whose bearer token verifies and whose role satisfies
// requiredRoles. No roles means any authenticated caller.
func Guard(engine Authenticator, requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrTokenMissing)
				return
			}

			claims, err := engine.Authenticate(r.Context(), r.Header.Get("Authorization"), requiredRoles...)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteError answers with the status for err and a fixed JSON body per
// outcome. Throttle denials carry Retry-After in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	outcome := authcore.OutcomeOf(err)
	status := outcome.HTTPStatus()
	switch outcome {
	case authcore.OutcomeUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
	case authcore.OutcomeTooManyRequests:
		var rl *authcore.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorCode(outcome)})
}

type errorBody struct {
	Error string `json:"error"`
}

func errorCode(o authcore.Outcome) string {
	switch o {
	case authcore.OutcomeUnauthorized:
		return "unauthorized"
	case authcore.OutcomeForbidden:
		return "forbidden"
	case authcore.OutcomeTooManyRequests:
		return "too_many_requests"
	case authcore.OutcomeServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
