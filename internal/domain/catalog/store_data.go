package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const keqColumns = "id, text, category, order_index, effective_from_year, effective_from_quarter, is_active, created_at, updated_at"

func scanCompetency(row pgx.Row) (Competency, error) {
	var c Competency
	err := row.Scan(&c.ID, &c.Text, &c.Category, &c.OrderIndex, &c.EffectiveFromYear, &c.EffectiveFromQuarter, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Competency{}, ErrNotFound
	}
	return c, err
}

func (s *Store) List(ctx context.Context) ([]Competency, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+keqColumns+" FROM keqs ORDER BY order_index, created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Competency
	for rows.Next() {
		c, err := scanCompetency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Competency, error) {
	return scanCompetency(s.DB.QueryRow(ctx, "SELECT "+keqColumns+" FROM keqs WHERE id::text = $1", id))
}

func (s *Store) Create(ctx context.Context, c Competency) (Competency, error) {
	return scanCompetency(s.DB.QueryRow(ctx, `
    INSERT INTO keqs (text, category, order_index, effective_from_year, effective_from_quarter, is_active)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+keqColumns,
		c.Text, c.Category, c.OrderIndex, c.EffectiveFromYear, c.EffectiveFromQuarter, c.IsActive))
}

func (s *Store) Update(ctx context.Context, c Competency) (Competency, error) {
	return scanCompetency(s.DB.QueryRow(ctx, `
    UPDATE keqs
    SET text = $2, category = $3, order_index = $4, effective_from_year = $5,
        effective_from_quarter = $6, is_active = $7, updated_at = now()
    WHERE id::text = $1
    RETURNING `+keqColumns,
		c.ID, c.Text, c.Category, c.OrderIndex, c.EffectiveFromYear, c.EffectiveFromQuarter, c.IsActive))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM keqs WHERE id::text = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
