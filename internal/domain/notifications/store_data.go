package notifications

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateNotification(ctx context.Context, userID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (user_id, type, title, body)
    VALUES ($1,$2,$3,$4)
  `, userID, ntype, title, body)
	return err
}

func (s *Store) UserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM users WHERE id::text = $1", userID).Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}

const unreadClause = " AND read_at IS NULL"

func (s *Store) ListNotifications(ctx context.Context, userID string, filter Filter) ([]Notification, error) {
	query := `
    SELECT id, user_id, type, title, body, read_at, created_at
    FROM notifications
    WHERE user_id::text = $1`
	if filter.UnreadOnly {
		query += unreadClause
	}
	query += `
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3`

	rows, err := s.DB.Query(ctx, query, userID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, userID string, filter Filter) (int, error) {
	query := "SELECT COUNT(1) FROM notifications WHERE user_id::text = $1"
	if filter.UnreadOnly {
		query += unreadClause
	}
	var total int
	if err := s.DB.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = COALESCE(read_at, now())
    WHERE user_id::text = $1 AND id::text = $2
  `, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE user_id::text = $1 AND read_at IS NULL
  `, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
