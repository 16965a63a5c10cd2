package auth

import (
	"path"
	"strings"
)

type Outcome string

const (
	OutcomeAllow             Outcome = "allow"
	OutcomeRedirectLogin     Outcome = "redirect_login"
	OutcomeRedirectDashboard Outcome = "redirect_dashboard"
)

const (
	LoginPath            = "/login"
	AdminLoginPath       = "/admin/login"
	LogoutPath           = "/logout"
	AdminDashboardPath   = "/admin/dashboard"
	ManagerDashboardPath = "/manager/dashboard"
	DashboardPath        = "/dashboard"

	adminPrefix   = "/admin"
	managerPrefix = "/manager"
)

var publicPaths = map[string]bool{
	"/":                true,
	LoginPath:          true,
	"/register":        true,
	"/forgot-password": true,
	"/reset-password":  true,
	"/verify-email":    true,
	AdminLoginPath:     true,
	"/pricing":         true,
}

type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Location string  `json:"location,omitempty"`
}

func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

func allow() Decision {
	return Decision{Outcome: OutcomeAllow}
}

func redirectLogin() Decision {
	return Decision{Outcome: OutcomeRedirectLogin, Location: LoginPath}
}

func redirectTo(location string) Decision {
	return Decision{Outcome: OutcomeRedirectDashboard, Location: location}
}

func IsPublicPath(p string) bool {
	return publicPaths[cleanPath(p)]
}

// Decide applies the path-prefix gate. The first matching rule wins:
// public paths, then ADMIN, MANAGER, and finally everyone else.
func Decide(id Identity, target string) Decision {
	p := cleanPath(target)
	if !id.Authenticated() {
		if publicPaths[p] {
			return allow()
		}
		return redirectLogin()
	}

	switch {
	case id.HasRole(RoleAdmin):
		if p == AdminLoginPath || p == LogoutPath || hasSegmentPrefix(p, adminPrefix) {
			return allow()
		}
		return redirectTo(AdminDashboardPath)
	case id.HasRole(RoleManager):
		if p == LogoutPath || hasSegmentPrefix(p, managerPrefix) {
			return allow()
		}
		return redirectTo(ManagerDashboardPath)
	default:
		// Principals without a recognized role get the employee rules.
		if hasSegmentPrefix(p, adminPrefix) || hasSegmentPrefix(p, managerPrefix) {
			return redirectTo(DashboardPath)
		}
		return allow()
	}
}

// Satisfies reports whether held meets required under the role hierarchy.
func Satisfies(held, required Role) bool {
	switch held {
	case RoleAdmin:
		return true
	case RoleManager:
		return required == RoleManager || required == RoleEmployee
	case RoleEmployee:
		return required == RoleEmployee
	default:
		return held != "" && held == required
	}
}

// RequireRole is the route-level guard layered on top of Decide.
// Passing any one of required is enough.
func RequireRole(id Identity, required ...Role) Decision {
	if !id.Authenticated() {
		return redirectLogin()
	}
	if len(required) == 0 {
		return allow()
	}
	for _, held := range id.Roles {
		for _, want := range required {
			if Satisfies(held, want) {
				return allow()
			}
		}
	}
	return redirectTo(DashboardFor(id))
}

func DashboardFor(id Identity) string {
	switch id.Primary() {
	case RoleAdmin:
		return AdminDashboardPath
	case RoleManager:
		return ManagerDashboardPath
	default:
		return DashboardPath
	}
}

func hasSegmentPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
