package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evalhub/internal/domain/auth"
)

type stubResolver struct {
	calls int
}

func (s *stubResolver) ResolveHeaders(_ context.Context, login string, roles []auth.Role) (auth.Identity, error) {
	s.calls++
	return auth.Identity{UserID: "dev-" + login, Username: login, Roles: roles}, nil
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", Email: "u1@example.com", Roles: []string{"MANAGER"}}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.UserID != "u1" || !user.HasRole(auth.RoleManager) {
			t.Fatalf("unexpected user: %+v", user)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("did not expect user in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestAuthMiddlewareIgnoresHeadersWhenDisabled(t *testing.T) {
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("identity headers must be ignored without a resolver")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUser, "alice@example.com")
	req.Header.Set(HeaderRoles, "ROLE_ADMIN")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestAuthMiddlewareDevHeaders(t *testing.T) {
	resolver := &stubResolver{}
	var got auth.Identity
	handler := Auth("secret", resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUser, "alice@example.com")
	req.Header.Set(HeaderRoles, "ROLE_manager, employee,unknown")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if resolver.calls != 1 {
		t.Fatalf("expected resolver call, got %d", resolver.calls)
	}
	if !got.HasRole(auth.RoleManager) || !got.HasRole(auth.RoleEmployee) || len(got.Roles) != 2 {
		t.Fatalf("unexpected roles: %+v", got.Roles)
	}
}

func TestAuthMiddlewareBearerWinsOverHeaders(t *testing.T) {
	token, err := auth.GenerateToken("secret", auth.Claims{UserID: "u-token", Roles: []string{"EMPLOYEE"}}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	resolver := &stubResolver{}
	var got auth.Identity
	handler := Auth("secret", resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderUser, "root@example.com")
	req.Header.Set(HeaderRoles, "ADMIN")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != "u-token" || resolver.calls != 0 {
		t.Fatalf("expected token identity, got %+v (resolver calls %d)", got, resolver.calls)
	}
}
