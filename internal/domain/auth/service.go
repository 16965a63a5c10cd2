package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrNotManager         = errors.New("user is not a manager")
	ErrPasswordReuse      = errors.New("new password must differ from the current one")
	ErrWeakPassword       = errors.New("password is too short")
)

const MinPasswordLength = 8

type Service struct {
	Store  StoreAPI
	Secret string
	TTL    time.Duration
}

func NewService(store StoreAPI, secret string, ttl time.Duration) *Service {
	return &Service{Store: store, Secret: secret, TTL: ttl}
}

// Login checks credentials and issues a bearer token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	user, err := s.Store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", User{}, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.Secret, ClaimsFor(user.Identity()), s.TTL)
	if err != nil {
		return "", User{}, err
	}
	if err := s.Store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("last login update failed", "userId", user.ID, "err", err)
	}
	return token, user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.Store.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, role Role) ([]User, error) {
	return s.Store.ListUsers(ctx, role)
}

func (s *Service) CreateUser(ctx context.Context, input NewUser) (User, error) {
	if strings.TrimSpace(input.Username) == "" {
		input.Username = strings.SplitN(strings.TrimSpace(input.Email), "@", 2)[0]
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	// Manager accounts start on an admin-chosen password and must replace it.
	input.MustChangePassword = hasRole(input.Roles, RoleManager) && !hasRole(input.Roles, RoleAdmin)
	return s.Store.CreateUser(ctx, input, hash)
}

// ChangePassword replaces the user's password after checking the current
// one. A pending forced change is cleared and a fresh token is issued so the
// caller can continue without signing in again.
func (s *Service) ChangePassword(ctx context.Context, userID string, change PasswordChange) (string, User, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return "", User{}, err
	}
	if err := CheckPassword(user.PasswordHash, change.CurrentPassword); err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	if len(change.NewPassword) < MinPasswordLength {
		return "", User{}, ErrWeakPassword
	}
	if change.NewPassword == change.CurrentPassword {
		return "", User{}, ErrPasswordReuse
	}

	hash, err := HashPassword(change.NewPassword)
	if err != nil {
		return "", User{}, err
	}
	if err := s.Store.SetPassword(ctx, user.ID, hash, false); err != nil {
		return "", User{}, err
	}
	user.PasswordHash = hash
	user.MustChangePassword = false

	token, err := GenerateToken(s.Secret, ClaimsFor(user.Identity()), s.TTL)
	if err != nil {
		return "", User{}, err
	}
	return token, user, nil
}

// ResetManagerPassword gives a manager account a temporary password, shown
// once to the admin, and forces a change at the next sign-in.
func (s *Service) ResetManagerPassword(ctx context.Context, userID string) (string, User, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return "", User{}, err
	}
	if !hasRole(user.Roles, RoleManager) {
		return "", User{}, ErrNotManager
	}

	temporary := TemporaryPassword()
	hash, err := HashPassword(temporary)
	if err != nil {
		return "", User{}, err
	}
	if err := s.Store.SetPassword(ctx, user.ID, hash, true); err != nil {
		return "", User{}, err
	}
	user.PasswordHash = hash
	user.MustChangePassword = true
	return temporary, user, nil
}

func hasRole(roles []Role, want Role) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}

// ResolveHeaders builds an identity from development headers. A login that
// matches a stored email borrows that user's id and name; header roles win
// over stored ones when present.
func (s *Service) ResolveHeaders(ctx context.Context, login string, roles []Role) (Identity, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return Identity{}, nil
	}
	id := Identity{Username: login, Roles: roles}
	if !strings.Contains(login, "@") {
		return id, nil
	}
	id.Email = login

	user, err := s.Store.FindUserByEmail(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		return id, nil
	}
	if err != nil {
		return Identity{}, err
	}
	resolved := user.Identity()
	if len(roles) > 0 {
		resolved.Roles = roles
	}
	return resolved, nil
}
