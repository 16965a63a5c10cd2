package peerreview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/evaluation"
)

// MeAlias stands for the caller's own id in reviewer path segments.
const MeAlias = "me"

const maxTextLength = 4000

type EvaluationSource interface {
	Get(ctx context.Context, id string) (evaluation.Evaluation, error)
}

type ProjectDirectory interface {
	ManagedProjectIDs(ctx context.Context, userID string) ([]string, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)
}

type Service struct {
	Store       StoreAPI
	Evaluations EvaluationSource
	Projects    ProjectDirectory
}

func NewService(store StoreAPI, evaluations EvaluationSource, projects ProjectDirectory) *Service {
	return &Service{Store: store, Evaluations: evaluations, Projects: projects}
}

// Create records the caller's review of someone else's evaluation. The
// reviewer must work on the evaluation's project and may review it once.
func (s *Service) Create(ctx context.Context, id auth.Identity, in Input) (PeerReview, evaluation.Evaluation, error) {
	if !id.HasRole(auth.RoleEmployee) && !id.HasRole(auth.RoleManager) {
		return PeerReview{}, evaluation.Evaluation{}, ErrForbidden
	}
	if strings.TrimSpace(in.EvaluationID) == "" {
		return PeerReview{}, evaluation.Evaluation{}, invalid("evaluationId", "is required")
	}
	e, err := s.evaluation(ctx, strings.TrimSpace(in.EvaluationID))
	if err != nil {
		return PeerReview{}, evaluation.Evaluation{}, err
	}
	if e.EmployeeID == id.UserID {
		return PeerReview{}, evaluation.Evaluation{}, fmt.Errorf("%w: you cannot review your own evaluation", ErrForbidden)
	}
	onProject, err := s.worksOn(ctx, id, e.ProjectID)
	if err != nil {
		return PeerReview{}, evaluation.Evaluation{}, err
	}
	if !onProject {
		return PeerReview{}, evaluation.Evaluation{}, fmt.Errorf("%w: you are not on this evaluation's project", ErrForbidden)
	}
	if e.Status == evaluation.StatusDraft {
		return PeerReview{}, evaluation.Evaluation{}, ErrInvalidState
	}

	r := PeerReview{
		EvaluationID:  e.ID,
		ReviewerID:    id.UserID,
		ReviewerName:  id.DisplayName(),
		ReviewerEmail: id.Email,
	}
	apply(&r, in)
	if err := validate(r); err != nil {
		return PeerReview{}, evaluation.Evaluation{}, err
	}
	r.OverallRating = OverallOf(r.Ratings)

	if _, err := s.Store.Find(ctx, r.EvaluationID, r.ReviewerID); err == nil {
		return PeerReview{}, evaluation.Evaluation{}, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return PeerReview{}, evaluation.Evaluation{}, err
	}
	created, err := s.Store.Create(ctx, r)
	if err != nil {
		return PeerReview{}, evaluation.Evaluation{}, err
	}
	return created, e, nil
}

// Update patches the caller's own review and recomputes its overall.
func (s *Service) Update(ctx context.Context, id auth.Identity, reviewID string, in Input) (PeerReview, error) {
	r, err := s.Store.Get(ctx, reviewID)
	if err != nil {
		return PeerReview{}, err
	}
	if r.ReviewerID != id.UserID {
		return PeerReview{}, ErrForbidden
	}
	apply(&r, in)
	if err := validate(r); err != nil {
		return PeerReview{}, err
	}
	r.OverallRating = OverallOf(r.Ratings)
	return s.Store.Update(ctx, r)
}

// Delete removes a review. Admins and managers of the evaluation's project
// may delete.
func (s *Service) Delete(ctx context.Context, id auth.Identity, reviewID string) (PeerReview, error) {
	r, err := s.Store.Get(ctx, reviewID)
	if err != nil {
		return PeerReview{}, err
	}
	if !id.HasRole(auth.RoleAdmin) {
		e, err := s.evaluation(ctx, r.EvaluationID)
		if err != nil {
			return PeerReview{}, err
		}
		manages, err := s.manages(ctx, id, e.ProjectID)
		if err != nil {
			return PeerReview{}, err
		}
		if !manages {
			return PeerReview{}, ErrForbidden
		}
	}
	if err := s.Store.Delete(ctx, r.ID); err != nil {
		return PeerReview{}, err
	}
	return r, nil
}

func (s *Service) ForEvaluation(ctx context.Context, id auth.Identity, evaluationID string) ([]PeerReview, error) {
	if _, err := s.readable(ctx, id, evaluationID); err != nil {
		return nil, err
	}
	return s.Store.ListByEvaluation(ctx, evaluationID)
}

// ForReviewer lists what a reviewer wrote. Only the reviewer and admins
// may see it.
func (s *Service) ForReviewer(ctx context.Context, id auth.Identity, reviewerID string) ([]PeerReview, error) {
	reviewerID = resolveReviewer(id, reviewerID)
	if reviewerID != id.UserID && !id.HasRole(auth.RoleAdmin) {
		return nil, ErrForbidden
	}
	return s.Store.ListByReviewer(ctx, reviewerID)
}

// Find returns one reviewer's review of an evaluation. Reviewers always see
// their own; anyone else needs read access to the evaluation.
func (s *Service) Find(ctx context.Context, id auth.Identity, evaluationID, reviewerID string) (PeerReview, error) {
	reviewerID = resolveReviewer(id, reviewerID)
	if reviewerID == id.UserID {
		if _, err := s.evaluation(ctx, evaluationID); err != nil {
			return PeerReview{}, err
		}
	} else if _, err := s.readable(ctx, id, evaluationID); err != nil {
		return PeerReview{}, err
	}
	return s.Store.Find(ctx, evaluationID, reviewerID)
}

func (s *Service) Summary(ctx context.Context, id auth.Identity, evaluationID string) (Summary, error) {
	e, err := s.readable(ctx, id, evaluationID)
	if err != nil {
		return Summary{}, err
	}
	reviews, err := s.Store.ListByEvaluation(ctx, e.ID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(e.ID, reviews), nil
}

// readable loads an evaluation the caller may read peer feedback for: the
// evaluated employee, a manager of its project, or an admin.
func (s *Service) readable(ctx context.Context, id auth.Identity, evaluationID string) (evaluation.Evaluation, error) {
	e, err := s.evaluation(ctx, evaluationID)
	if err != nil {
		return evaluation.Evaluation{}, err
	}
	if id.HasRole(auth.RoleAdmin) || (id.UserID != "" && e.EmployeeID == id.UserID) {
		return e, nil
	}
	manages, err := s.manages(ctx, id, e.ProjectID)
	if err != nil {
		return evaluation.Evaluation{}, err
	}
	if !manages {
		return evaluation.Evaluation{}, ErrForbidden
	}
	return e, nil
}

func (s *Service) evaluation(ctx context.Context, evaluationID string) (evaluation.Evaluation, error) {
	e, err := s.Evaluations.Get(ctx, evaluationID)
	if errors.Is(err, evaluation.ErrNotFound) {
		return evaluation.Evaluation{}, fmt.Errorf("%w: evaluation %s does not exist", ErrNotFound, evaluationID)
	}
	return e, err
}

func (s *Service) manages(ctx context.Context, id auth.Identity, projectID string) (bool, error) {
	if !id.HasRole(auth.RoleManager) || id.UserID == "" {
		return false, nil
	}
	managed, err := s.Projects.ManagedProjectIDs(ctx, id.UserID)
	if err != nil {
		return false, err
	}
	return slices.Contains(managed, projectID), nil
}

func (s *Service) worksOn(ctx context.Context, id auth.Identity, projectID string) (bool, error) {
	if id.UserID == "" {
		return false, nil
	}
	manages, err := s.manages(ctx, id, projectID)
	if err != nil || manages {
		return manages, err
	}
	member, err := s.Projects.MemberProjectIDs(ctx, id.UserID)
	if err != nil {
		return false, err
	}
	return slices.Contains(member, projectID), nil
}

func resolveReviewer(id auth.Identity, reviewerID string) string {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" || strings.EqualFold(reviewerID, MeAlias) {
		return id.UserID
	}
	return reviewerID
}

func apply(r *PeerReview, in Input) {
	if in.Strengths != nil {
		r.Strengths = strings.TrimSpace(*in.Strengths)
	}
	if in.Weaknesses != nil {
		r.Weaknesses = strings.TrimSpace(*in.Weaknesses)
	}
	if in.Suggestions != nil {
		r.Suggestions = strings.TrimSpace(*in.Suggestions)
	}
	if in.Collaboration != nil {
		r.Collaboration = in.Collaboration
	}
	if in.Communication != nil {
		r.Communication = in.Communication
	}
	if in.Technical != nil {
		r.Technical = in.Technical
	}
	if in.Leadership != nil {
		r.Leadership = in.Leadership
	}
}

func validate(r PeerReview) error {
	verr := &evaluation.ValidationError{}
	for _, dim := range []struct {
		field string
		value *int
	}{
		{"collaborationRating", r.Collaboration},
		{"communicationRating", r.Communication},
		{"technicalRating", r.Technical},
		{"leadershipRating", r.Leadership},
	} {
		if dim.value != nil && !evaluation.InRange(*dim.value) {
			verr.Issues = append(verr.Issues, evaluation.Issue{Field: dim.field, Reason: "must be between 1 and 5"})
		}
	}
	for _, text := range []struct {
		field string
		value string
	}{
		{"strengths", r.Strengths},
		{"weaknesses", r.Weaknesses},
		{"suggestions", r.Suggestions},
	} {
		if len(text.value) > maxTextLength {
			verr.Issues = append(verr.Issues, evaluation.Issue{Field: text.field, Reason: "is too long"})
		}
	}
	if r.Strengths == "" && r.Weaknesses == "" && r.Suggestions == "" &&
		r.Collaboration == nil && r.Communication == nil && r.Technical == nil && r.Leadership == nil {
		verr.Issues = append(verr.Issues, evaluation.Issue{Field: "ratings", Reason: "give at least one rating or written comment"})
	}
	if len(verr.Issues) == 0 {
		return nil
	}
	return verr
}

func invalid(field, reason string) error {
	return &evaluation.ValidationError{Issues: []evaluation.Issue{{Field: field, Reason: reason}}}
}

// OverallOf is the rounded mean of the four dimensions, set only when all
// four are rated.
func OverallOf(r Ratings) *int {
	if r.Collaboration == nil || r.Communication == nil || r.Technical == nil || r.Leadership == nil {
		return nil
	}
	return evaluation.RoundedOverall(evaluation.RatingMap{
		"collaboration": *r.Collaboration,
		"communication": *r.Communication,
		"technical":     *r.Technical,
		"leadership":    *r.Leadership,
	}, "")
}
