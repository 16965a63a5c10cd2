package middleware

import (
	"net/http"
	"strings"

	"evalhub/internal/transport/http/api"
)

// passwordChangeAllowed lists the API routes a caller with a pending forced
// password change may still reach. Entries ending in "/" match by prefix.
var passwordChangeAllowed = []string{
	"/auth/",
	"/users/change-password",
}

// ForcePasswordChange blocks callers whose identity carries a pending
// password change from everything except signing in, signing out and
// changing the password.
func ForcePasswordChange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r.Context())
		if !ok || !user.MustChangePassword || r.Method == http.MethodOptions || passwordChangeExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		api.Fail(w, http.StatusForbidden, "password_change_required", "change your password before continuing", GetRequestID(r.Context()))
	})
}

func passwordChangeExempt(path string) bool {
	path = strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1"), "/")
	for _, allowed := range passwordChangeAllowed {
		if strings.HasSuffix(allowed, "/") {
			if strings.HasPrefix(path+"/", allowed) {
				return true
			}
			continue
		}
		if path == allowed {
			return true
		}
	}
	return false
}
