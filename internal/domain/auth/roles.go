package auth

import (
	"strings"
)

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

const rolePrefix = "ROLE_"

var knownRoles = []Role{RoleAdmin, RoleManager, RoleEmployee}

// ParseRole accepts "manager", "MANAGER" or "ROLE_manager" alike.
func ParseRole(raw string) (Role, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, rolePrefix)
	for _, role := range knownRoles {
		if value == string(role) {
			return role, true
		}
	}
	return "", false
}

// ParseRoles splits a comma-joined role list, dropping unknown and repeated entries.
func ParseRoles(raw string) []Role {
	return NormalizeRoles(strings.Split(raw, ","))
}

func NormalizeRoles(values []string) []Role {
	seen := map[Role]bool{}
	out := make([]Role, 0, len(values))
	for _, value := range values {
		role, ok := ParseRole(value)
		if !ok || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

func (r Role) Authority() string {
	return rolePrefix + string(r)
}

// Identity is the resolved caller passed explicitly into every query and command.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Roles    []Role `json:"roles"`

	MustChangePassword bool `json:"mustChangePassword,omitempty"`
}

func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != "" || strings.TrimSpace(i.Username) != ""
}

func (i Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i Identity) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// Primary returns the highest role held, or "" when none is recognized.
func (i Identity) Primary() Role {
	for _, role := range knownRoles {
		if i.HasRole(role) {
			return role
		}
	}
	return ""
}

func (i Identity) RoleNames() []string {
	out := make([]string, 0, len(i.Roles))
	for _, role := range i.Roles {
		out = append(out, string(role))
	}
	return out
}

func (i Identity) DisplayName() string {
	switch {
	case strings.TrimSpace(i.Name) != "":
		return i.Name
	case strings.TrimSpace(i.Username) != "":
		return i.Username
	default:
		return i.Email
	}
}
