package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/shared"
)

const loginBodyPeekBytes = 16 * 1024

type keyFunc func(r *http.Request) string

// window is a fixed-window counter for one key.
type window struct {
	hits    int
	resetAt time.Time
}

type limiter struct {
	name   string
	limit  int
	period time.Duration
	key    keyFunc

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

func newLimiter(name string, limit int, period time.Duration, key keyFunc) *limiter {
	return &limiter{name: name, limit: limit, period: period, key: key, windows: map[string]*window{}}
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

func (l *limiter) take(key string, now time.Time) verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, w := range l.windows {
			if now.After(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.nextSweep = now.Add(l.period)
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.hits++
	return verdict{
		allowed:   w.hits <= l.limit,
		remaining: max(l.limit-w.hits, 0),
		resetIn:   w.resetAt.Sub(now),
	}
}

// admit counts the request against its key and writes the 429 itself when
// the window is exhausted.
func (l *limiter) admit(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.key(r)
	if key == "" {
		key = ipKey(r)
	}
	v := l.take(key, time.Now())

	resetSec := ceilSeconds(v.resetIn)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if v.allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "limiter", l.name, "key", key, "method", r.Method, "path", r.URL.Path)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

// RateLimit applies one fixed window per caller, keyed by user id when
// authenticated and by client IP otherwise.
func RateLimit(limit int, period time.Duration) func(http.Handler) http.Handler {
	l := newLimiter("api", limit, period, callerKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

type routeClass int

const (
	classOther routeClass = iota
	classLogin
	classScoreWrite
)

type routeRule struct {
	method string
	suffix string
	exact  bool
	class  routeClass
}

// Paths are relative to /api/v1.
var sensitiveRoutes = []routeRule{
	{method: http.MethodPost, suffix: "/auth/login", exact: true, class: classLogin},
	{method: http.MethodPost, suffix: "/auth/change-password", exact: true, class: classLogin},
	{method: http.MethodPost, suffix: "/users/change-password", exact: true, class: classLogin},
	{method: http.MethodPost, suffix: "/peer-reviews", exact: true, class: classScoreWrite},
	{method: http.MethodPost, suffix: "/evaluations", exact: true, class: classScoreWrite},
	{method: http.MethodPost, suffix: "/evaluations/drafts", exact: true, class: classScoreWrite},
	{method: http.MethodPost, suffix: "/manager-score", class: classScoreWrite},
	{method: http.MethodPost, suffix: "/review", class: classScoreWrite},
	{method: http.MethodPut, suffix: "/status", class: classScoreWrite},
}

func classify(r *http.Request) routeClass {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	for _, rule := range sensitiveRoutes {
		if r.Method != rule.method {
			continue
		}
		if rule.exact && path == rule.suffix {
			return rule.class
		}
		if !rule.exact && strings.HasPrefix(path, "/evaluations/") && strings.HasSuffix(path, rule.suffix) {
			return rule.class
		}
	}
	return classOther
}

// SensitiveMutationRateLimit adds tighter windows for login attempts and
// evaluation writes. Logins count against both the client IP and the
// submitted email; writes count against the acting user.
func SensitiveMutationRateLimit(baseLimit int, period time.Duration) func(http.Handler) http.Handler {
	loginByIP := newLimiter("login-ip", max(baseLimit/4, 1), period, ipKey)
	loginByEmail := newLimiter("login-email", max(baseLimit/4, 1), period, loginEmailKey)
	writes := newLimiter("score-write", max(baseLimit/2, 1), period, callerKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch classify(r) {
			case classLogin:
				if !loginByIP.admit(w, r) || !loginByEmail.admit(w, r) {
					return
				}
			case classScoreWrite:
				if !writes.admit(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return ipKey(r)
}

func ipKey(r *http.Request) string {
	return "ip:" + shared.ClientIP(r)
}

// loginEmailKey peeks at the JSON body for the email and restores it for
// the handler.
func loginEmailKey(r *http.Request) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ipKey(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, loginBodyPeekBytes))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil {
		return ipKey(r)
	}
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return ipKey(r)
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ipKey(r)
	}
	return "email:" + email
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
