package auth

import "context"

type StoreAPI interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, role Role) ([]User, error)
	CreateUser(ctx context.Context, user NewUser, passwordHash string) (User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	SetPassword(ctx context.Context, userID, passwordHash string, mustChange bool) error
}
