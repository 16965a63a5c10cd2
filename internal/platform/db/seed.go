package db

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
	"evalhub/internal/platform/config"
)

// Seed makes a fresh database usable: an admin account and the default
// competency catalog. Running it again changes nothing.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensureAdminUser(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		return err
	}
	return ensureCompetencies(ctx, pool)
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE lower(email) = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	username, _, _ := strings.Cut(email, "@")
	_, err = pool.Exec(ctx, `
    INSERT INTO users (id, email, username, full_name, roles, password_hash)
    VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (email) DO NOTHING
  `, uuid.NewString(), email, username, "Administrator", []string{string(auth.RoleAdmin)}, hash)
	return err
}

func ensureCompetencies(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM keqs").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, in := range catalog.DefaultCompetencies() {
		c := in.Apply(catalog.Competency{})
		if _, err := pool.Exec(ctx, `
      INSERT INTO keqs (id, text, category, order_index, effective_from_year, effective_from_quarter, is_active)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, uuid.NewString(), c.Text, c.Category, c.OrderIndex, c.EffectiveFromYear, c.EffectiveFromQuarter, c.IsActive); err != nil {
			return err
		}
	}
	return nil
}
