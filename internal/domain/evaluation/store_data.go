package evaluation

import (
	"context"
	"errors"
	"fmt"

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

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const evaluationSelect = `
  SELECT e.id, e.employee_id, e.employee_name, e.employee_email, e.project_id, COALESCE(p.name, ''),
    COALESCE(e.evaluation_year, 0), COALESCE(e.evaluation_quarter, 0),
    e.employee_overall, e.manager_overall, e.status,
    e.achievements, e.challenges, e.learnings, e.goals, e.feedback,
    e.manager_feedback, e.recommendations, e.reviewer_name,
    e.submitted_at, e.reviewed_at, e.created_at, e.updated_at
  FROM evaluations e
  LEFT JOIN projects p ON p.id = e.project_id`

func scanEvaluation(row pgx.Row) (Evaluation, error) {
	var e Evaluation
	var status string
	err := row.Scan(&e.ID, &e.EmployeeID, &e.EmployeeName, &e.EmployeeEmail, &e.ProjectID, &e.ProjectName,
		&e.EvaluationYear, &e.EvaluationQuarter,
		&e.EmployeeOverall, &e.ManagerOverall, &status,
		&e.Achievements, &e.Challenges, &e.Learnings, &e.Goals, &e.Feedback,
		&e.ManagerFeedback, &e.Recommendations, &e.ReviewerName,
		&e.SubmittedAt, &e.ReviewedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	e.Status = Status(status)
	return e, err
}

// validID keeps malformed ids from reaching postgres as a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) List(ctx context.Context, scope Scope, filter Filter) ([]Evaluation, error) {
	query := evaluationSelect + " WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !scope.All {
		if scope.EmployeeID == "" && len(scope.ProjectIDs) == 0 {
			return []Evaluation{}, nil
		}
		query += fmt.Sprintf(" AND (e.employee_id::text = %s OR e.project_id::text = ANY(%s))",
			arg(scope.EmployeeID), arg(scope.ProjectIDs))
	}
	if filter.Status != "" {
		query += " AND e.status = " + arg(string(filter.Status))
	}
	if filter.ProjectID != "" {
		query += " AND e.project_id::text = " + arg(filter.ProjectID)
	}
	if filter.EmployeeID != "" {
		query += " AND e.employee_id::text = " + arg(filter.EmployeeID)
	}
	query += `
  ORDER BY e.evaluation_year DESC NULLS LAST, e.evaluation_quarter DESC NULLS LAST,
    e.submitted_at DESC NULLS LAST, e.created_at DESC`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadRatings(ctx, s.DB, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Evaluation, error) {
	return getEvaluation(ctx, s.DB, id)
}

func getEvaluation(ctx context.Context, q querier, id string) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, ErrNotFound
	}
	e, err := scanEvaluation(q.QueryRow(ctx, evaluationSelect+" WHERE e.id = $1", id))
	if err != nil {
		return Evaluation{}, err
	}
	items := []Evaluation{e}
	if err := loadRatings(ctx, q, items); err != nil {
		return Evaluation{}, err
	}
	return items[0], nil
}

func (s *Store) FindByTuple(ctx context.Context, employeeID, projectID string, year, quarter int) (Evaluation, error) {
	if !validID(employeeID) || !validID(projectID) {
		return Evaluation{}, ErrNotFound
	}
	e, err := scanEvaluation(s.DB.QueryRow(ctx, evaluationSelect+`
  WHERE e.employee_id = $1 AND e.project_id = $2 AND e.evaluation_year = $3 AND e.evaluation_quarter = $4`,
		employeeID, projectID, year, quarter))
	if err != nil {
		return Evaluation{}, err
	}
	items := []Evaluation{e}
	if err := loadRatings(ctx, s.DB, items); err != nil {
		return Evaluation{}, err
	}
	return items[0], nil
}

func (s *Store) Create(ctx context.Context, e Evaluation) (Evaluation, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
    INSERT INTO evaluations (employee_id, employee_name, employee_email, project_id, evaluation_year, evaluation_quarter,
      employee_overall, status, achievements, challenges, learnings, goals, feedback, submitted_at)
    VALUES ($1,$2,$3,$4,NULLIF($5,0),NULLIF($6,0),$7,$8,$9,$10,$11,$12,$13,$14)
    RETURNING id
  `, e.EmployeeID, e.EmployeeName, e.EmployeeEmail, e.ProjectID, e.EvaluationYear, e.EvaluationQuarter,
		e.EmployeeOverall, string(e.Status), e.Achievements, e.Challenges, e.Learnings, e.Goals, e.Feedback, e.SubmittedAt).Scan(&id)
	if err != nil {
		return Evaluation{}, insertErr(err)
	}
	if err := replaceRatings(ctx, tx, id, SourceEmployee, e.EmployeeRatings); err != nil {
		return Evaluation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Evaluation{}, err
	}
	return s.Get(ctx, id)
}

// SubmitDraft promotes a DRAFT row in place. A row that already left DRAFT
// is reported as ErrDuplicate.
func (s *Store) SubmitDraft(ctx context.Context, id string, e Evaluation) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, ErrNotFound
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    UPDATE evaluations
    SET status = $1, employee_overall = $2, achievements = $3, challenges = $4, learnings = $5, goals = $6,
      feedback = $7, submitted_at = $8, updated_at = now()
    WHERE id = $9 AND status = $10
  `, string(StatusSubmitted), e.EmployeeOverall, e.Achievements, e.Challenges, e.Learnings, e.Goals,
		e.Feedback, e.SubmittedAt, id, string(StatusDraft))
	if err != nil {
		return Evaluation{}, err
	}
	if tag.RowsAffected() == 0 {
		return Evaluation{}, ErrDuplicate
	}
	if err := replaceRatings(ctx, tx, id, SourceEmployee, e.EmployeeRatings); err != nil {
		return Evaluation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Evaluation{}, err
	}
	return s.Get(ctx, id)
}

// PutManagerScore writes one manager rating. The reserved overall key goes
// to the manager_overall column instead of the ratings table.
func (s *Store) PutManagerScore(ctx context.Context, id, competency string, score int) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, ErrNotFound
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	defer tx.Rollback(ctx)

	if competency == OverallKey {
		tag, err := tx.Exec(ctx, `UPDATE evaluations SET manager_overall = $1, updated_at = now() WHERE id = $2`, score, id)
		if err != nil {
			return Evaluation{}, err
		}
		if tag.RowsAffected() == 0 {
			return Evaluation{}, ErrNotFound
		}
	} else {
		tag, err := tx.Exec(ctx, `UPDATE evaluations SET updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return Evaluation{}, err
		}
		if tag.RowsAffected() == 0 {
			return Evaluation{}, ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO evaluation_ratings (evaluation_id, source, competency, score)
      VALUES ($1,$2,$3,$4)
      ON CONFLICT (evaluation_id, source, competency)
      DO UPDATE SET score = EXCLUDED.score, updated_at = now()
    `, id, SourceManager, competency, score); err != nil {
			return Evaluation{}, err
		}
	}

	e, err := getEvaluation(ctx, tx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Evaluation{}, err
	}
	return e, nil
}

func (s *Store) MarkReviewed(ctx context.Context, id string, review Review) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, ErrNotFound
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE evaluations
    SET status = $1, reviewer_name = $2, manager_feedback = $3, recommendations = $4, reviewed_at = $5, updated_at = now()
    WHERE id = $6 AND status = $7
  `, string(StatusReviewed), review.ReviewerName, review.ManagerFeedback, review.Recommendations, review.ReviewedAt,
		id, string(StatusSubmitted))
	if err != nil {
		return Evaluation{}, err
	}
	if tag.RowsAffected() == 0 {
		return Evaluation{}, ErrInvalidTransition
	}
	return s.Get(ctx, id)
}

// UpdateStatus moves id from one status to another. It fails with
// ErrInvalidTransition when the row is no longer in from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, ErrNotFound
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE evaluations SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
  `, string(to), id, string(from))
	if err != nil {
		return Evaluation{}, err
	}
	if tag.RowsAffected() == 0 {
		return Evaluation{}, ErrInvalidTransition
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.DB.Exec(ctx, "DELETE FROM evaluations WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDrafts inserts DRAFT rows, skipping tuples that already exist.
// It returns how many rows were created.
func (s *Store) CreateDrafts(ctx context.Context, drafts []Evaluation) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	created := 0
	for _, d := range drafts {
		tag, err := tx.Exec(ctx, `
      INSERT INTO evaluations (employee_id, employee_name, employee_email, project_id, evaluation_year, evaluation_quarter, status)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      ON CONFLICT (employee_id, project_id, evaluation_year, evaluation_quarter) DO NOTHING
    `, d.EmployeeID, d.EmployeeName, d.EmployeeEmail, d.ProjectID, d.EvaluationYear, d.EvaluationQuarter, string(StatusDraft))
		if err != nil {
			return 0, err
		}
		created += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

func replaceRatings(ctx context.Context, q querier, evaluationID, source string, ratings RatingMap) error {
	if _, err := q.Exec(ctx, "DELETE FROM evaluation_ratings WHERE evaluation_id = $1 AND source = $2", evaluationID, source); err != nil {
		return err
	}
	for _, key := range ratings.sortedKeys() {
		if _, err := q.Exec(ctx, `
      INSERT INTO evaluation_ratings (evaluation_id, source, competency, score)
      VALUES ($1,$2,$3,$4)
    `, evaluationID, source, key, ratings[key]); err != nil {
			return err
		}
	}
	return nil
}

func loadRatings(ctx context.Context, q querier, items []Evaluation) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for i, e := range items {
		index[e.ID] = i
		ids = append(ids, e.ID)
		items[i].EmployeeRatings = RatingMap{}
		items[i].ManagerRatings = RatingMap{}
	}

	rows, err := q.Query(ctx, `
    SELECT evaluation_id::text, source, competency, score
    FROM evaluation_ratings
    WHERE evaluation_id::text = ANY($1)
  `, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var evaluationID, source, competency string
		var score int
		if err := rows.Scan(&evaluationID, &source, &competency, &score); err != nil {
			return err
		}
		i, ok := index[evaluationID]
		if !ok {
			continue
		}
		switch source {
		case SourceEmployee:
			items[i].EmployeeRatings[competency] = score
		case SourceManager:
			items[i].ManagerRatings[competency] = score
		}
	}
	return rows.Err()
}

// insertErr translates constraint failures on a new evaluation row. A
// project id that is malformed (22P02) or unknown (23503) is the caller's
// mistake, not a store outage.
func insertErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return ErrDuplicate
	case "22P02", "23503":
		return invalid("projectId", "does not reference an existing project")
	}
	return err
}
