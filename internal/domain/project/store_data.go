package project

import (
	"context"
	"errors"

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

const projectSelect = `
  SELECT p.id, p.name, p.description, p.created_at,
    COALESCE((SELECT array_agg(pm.user_id::text ORDER BY pm.user_id) FROM project_managers pm WHERE pm.project_id = p.id), '{}'),
    COALESCE((SELECT array_agg(mb.user_id::text ORDER BY mb.user_id) FROM project_members mb WHERE mb.project_id = p.id), '{}')
  FROM projects p`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.ManagerIDs, &p.MemberIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Project, error) {
	if !filter.All && len(filter.IDs) == 0 {
		return []Project{}, nil
	}
	query := projectSelect
	args := []any{}
	if !filter.All {
		query += " WHERE p.id::text = ANY($1)"
		args = append(args, filter.IDs)
	}
	query += " ORDER BY p.name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Project, error) {
	return scanProject(s.DB.QueryRow(ctx, projectSelect+" WHERE p.id::text = $1", id))
}

func (s *Store) Create(ctx context.Context, in Input) (Project, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO projects (name, description)
    VALUES ($1,$2)
    RETURNING id
  `, in.Name, in.Description).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Project{}, ErrNameTaken
	}
	if err != nil {
		return Project{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM projects WHERE id::text = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, projectID, userID string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO project_members (project_id, user_id)
    VALUES ($1,$2)
    ON CONFLICT DO NOTHING
  `, projectID, userID)
	return err
}

func (s *Store) AddManager(ctx context.Context, projectID, userID string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO project_managers (project_id, user_id)
    VALUES ($1,$2)
    ON CONFLICT DO NOTHING
  `, projectID, userID)
	return err
}

func (s *Store) ManagedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	return s.ids(ctx, "SELECT project_id::text FROM project_managers WHERE user_id::text = $1 ORDER BY project_id", userID)
}

func (s *Store) MemberProjectIDs(ctx context.Context, userID string) ([]string, error) {
	return s.ids(ctx, "SELECT project_id::text FROM project_members WHERE user_id::text = $1 ORDER BY project_id", userID)
}

func (s *Store) ManagerUserIDs(ctx context.Context, projectID string) ([]string, error) {
	return s.ids(ctx, "SELECT user_id::text FROM project_managers WHERE project_id::text = $1 ORDER BY user_id", projectID)
}

func (s *Store) MemberUserIDs(ctx context.Context, projectID string) ([]string, error) {
	return s.ids(ctx, "SELECT user_id::text FROM project_members WHERE project_id::text = $1 ORDER BY user_id", projectID)
}

// ReplaceMemberships makes projectIDs the user's exact membership set.
func (s *Store) ReplaceMemberships(ctx context.Context, userID string, projectIDs []string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
    DELETE FROM project_members
    WHERE user_id::text = $1 AND NOT (project_id::text = ANY($2))
  `, userID, projectIDs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO project_members (project_id, user_id)
    SELECT p.id, $1::uuid FROM projects p WHERE p.id::text = ANY($2)
    ON CONFLICT DO NOTHING
  `, userID, projectIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ManagerContacts(ctx context.Context, projectID string) ([]Contact, error) {
	return s.contacts(ctx, `
    SELECT u.id::text, u.username, u.email, u.full_name
    FROM project_managers pm JOIN users u ON u.id = pm.user_id
    WHERE pm.project_id::text = $1
    ORDER BY u.full_name, u.username
  `, projectID)
}

func (s *Store) EmployeeContacts(ctx context.Context, projectID string) ([]Contact, error) {
	return s.contacts(ctx, `
    SELECT u.id::text, u.username, u.email, u.full_name
    FROM project_members mb JOIN users u ON u.id = mb.user_id
    WHERE mb.project_id::text = $1 AND 'EMPLOYEE' = ANY(u.roles)
    ORDER BY u.full_name, u.username
  `, projectID)
}

func (s *Store) contacts(ctx context.Context, query, projectID string) ([]Contact, error) {
	rows, err := s.DB.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Username, &c.Email, &c.FullName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ids(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := s.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
