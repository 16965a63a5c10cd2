package peerreview

import (
	"context"
	"errors"

	"github.com/google/uuid"
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

const reviewSelect = `
  SELECT id, evaluation_id, reviewer_id, reviewer_name, reviewer_email,
    strengths, weaknesses, suggestions,
    collaboration_rating, communication_rating, technical_rating, leadership_rating,
    overall_rating, created_at, updated_at
  FROM peer_reviews`

func scanReview(row pgx.Row) (PeerReview, error) {
	var r PeerReview
	err := row.Scan(&r.ID, &r.EvaluationID, &r.ReviewerID, &r.ReviewerName, &r.ReviewerEmail,
		&r.Strengths, &r.Weaknesses, &r.Suggestions,
		&r.Collaboration, &r.Communication, &r.Technical, &r.Leadership,
		&r.OverallRating, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeerReview{}, ErrNotFound
	}
	return r, err
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) Create(ctx context.Context, r PeerReview) (PeerReview, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO peer_reviews (evaluation_id, reviewer_id, reviewer_name, reviewer_email,
      strengths, weaknesses, suggestions,
      collaboration_rating, communication_rating, technical_rating, leadership_rating, overall_rating)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    RETURNING id
  `, r.EvaluationID, r.ReviewerID, r.ReviewerName, r.ReviewerEmail,
		r.Strengths, r.Weaknesses, r.Suggestions,
		r.Collaboration, r.Communication, r.Technical, r.Leadership, r.OverallRating).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return PeerReview{}, ErrDuplicate
		case "23503", "22P02":
			return PeerReview{}, ErrNotFound
		}
	}
	if err != nil {
		return PeerReview{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Get(ctx context.Context, id string) (PeerReview, error) {
	if !validID(id) {
		return PeerReview{}, ErrNotFound
	}
	return scanReview(s.DB.QueryRow(ctx, reviewSelect+" WHERE id = $1", id))
}

func (s *Store) Update(ctx context.Context, r PeerReview) (PeerReview, error) {
	if !validID(r.ID) {
		return PeerReview{}, ErrNotFound
	}
	return scanReview(s.DB.QueryRow(ctx, `
    UPDATE peer_reviews SET
      strengths = $2, weaknesses = $3, suggestions = $4,
      collaboration_rating = $5, communication_rating = $6, technical_rating = $7, leadership_rating = $8,
      overall_rating = $9, updated_at = now()
    WHERE id = $1
    RETURNING id, evaluation_id, reviewer_id, reviewer_name, reviewer_email,
      strengths, weaknesses, suggestions,
      collaboration_rating, communication_rating, technical_rating, leadership_rating,
      overall_rating, created_at, updated_at
  `, r.ID, r.Strengths, r.Weaknesses, r.Suggestions,
		r.Collaboration, r.Communication, r.Technical, r.Leadership, r.OverallRating))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.DB.Exec(ctx, "DELETE FROM peer_reviews WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListByEvaluation(ctx context.Context, evaluationID string) ([]PeerReview, error) {
	if !validID(evaluationID) {
		return []PeerReview{}, nil
	}
	return s.list(ctx, reviewSelect+" WHERE evaluation_id = $1 ORDER BY created_at, id", evaluationID)
}

func (s *Store) ListByReviewer(ctx context.Context, reviewerID string) ([]PeerReview, error) {
	if !validID(reviewerID) {
		return []PeerReview{}, nil
	}
	return s.list(ctx, reviewSelect+" WHERE reviewer_id = $1 ORDER BY created_at DESC, id", reviewerID)
}

func (s *Store) Find(ctx context.Context, evaluationID, reviewerID string) (PeerReview, error) {
	if !validID(evaluationID) || !validID(reviewerID) {
		return PeerReview{}, ErrNotFound
	}
	return scanReview(s.DB.QueryRow(ctx, reviewSelect+" WHERE evaluation_id = $1 AND reviewer_id = $2", evaluationID, reviewerID))
}

func (s *Store) list(ctx context.Context, query, arg string) ([]PeerReview, error) {
	rows, err := s.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PeerReview{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
