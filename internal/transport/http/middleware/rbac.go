package middleware

import (
	"net/http"

	"evalhub/internal/domain/auth"
	"evalhub/internal/transport/http/api"
)

// RequireRole guards data routes with the same role hierarchy the page gate
// uses. Where the page gate would redirect, API callers get 401 or 403.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := GetUser(r.Context())
			decision := auth.RequireRole(user, roles...)
			switch decision.Outcome {
			case auth.OutcomeAllow:
				next.ServeHTTP(w, r)
			case auth.OutcomeRedirectLogin:
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			default:
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", GetRequestID(r.Context()))
			}
		})
	}
}

// RequireAuth rejects anonymous callers.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
