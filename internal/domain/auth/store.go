package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const userColumns = "id, email, username, full_name, roles, password_hash, must_change_password, created_at, last_login"

func scanUser(row pgx.Row) (User, error) {
	var out User
	var roles []string
	if err := row.Scan(&out.ID, &out.Email, &out.Username, &out.FullName, &roles, &out.PasswordHash, &out.MustChangePassword, &out.CreatedAt, &out.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	out.Roles = NormalizeRoles(roles)
	return out, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", strings.TrimSpace(email)))
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id::text = $1", id))
}

func (s *Store) ListUsers(ctx context.Context, role Role) ([]User, error) {
	query := "SELECT " + userColumns + " FROM users"
	args := []any{}
	if role != "" {
		query += " WHERE $1 = ANY(roles)"
		args = append(args, string(role))
	}
	query += " ORDER BY full_name, email"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user NewUser, passwordHash string) (User, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	created, err := scanUser(s.DB.QueryRow(ctx, `
    INSERT INTO users (email, username, full_name, roles, password_hash, must_change_password)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(user.Email)), user.Username, user.FullName, roles, passwordHash, user.MustChangePassword))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return User{}, ErrUserExists
	}
	return created, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string, mustChange bool) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users SET password_hash = $2, must_change_password = $3, password_changed_at = now()
    WHERE id::text = $1
  `, userID, passwordHash, mustChange)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
