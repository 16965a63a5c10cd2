package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
	"evalhub/internal/platform/metrics"
)

type ProjectDirectory interface {
	ManagedProjectIDs(ctx context.Context, userID string) ([]string, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)
	MemberUserIDs(ctx context.Context, projectID string) ([]string, error)
}

type CatalogSource interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
}

// FollowUps runs work after the triggering request has been answered.
type FollowUps interface {
	Enqueue(jobType, key string, run func(context.Context) (any, error))
}

type Counter interface {
	Inc(name string)
}

type Service struct {
	Store     StoreAPI
	Projects  ProjectDirectory
	Catalog   CatalogSource
	Users     UserDirectory
	FollowUps FollowUps
	Metrics   Counter
	Now       func() time.Time
}

func NewService(store StoreAPI, projects ProjectDirectory, catalogs CatalogSource) *Service {
	return &Service{Store: store, Projects: projects, Catalog: catalogs, Now: time.Now}
}

// ScopeFor resolves what the identity may read. Admins read everything;
// everyone else reads their own records, and managers also read every
// record of the projects they manage.
func (s *Service) ScopeFor(ctx context.Context, id auth.Identity) (Scope, error) {
	if !id.Authenticated() {
		return Scope{}, ErrForbidden
	}
	if id.HasRole(auth.RoleAdmin) {
		return Scope{All: true}, nil
	}
	scope := Scope{EmployeeID: id.UserID}
	if id.HasRole(auth.RoleManager) {
		managed, err := s.Projects.ManagedProjectIDs(ctx, id.UserID)
		if err != nil {
			return Scope{}, storeErr("managed projects", err)
		}
		scope.ProjectIDs = managed
	}
	return scope, nil
}

// List returns one page of the caller's scoped evaluations. The timeline
// filter and paging apply after the scoped store query.
func (s *Service) List(ctx context.Context, id auth.Identity, filter Filter) (Page, error) {
	items, err := s.scopedList(ctx, id, filter)
	if err != nil {
		return Page{}, err
	}
	total := len(items)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return Page{Items: items[start:end], Total: total}, nil
}

func (s *Service) Grouped(ctx context.Context, id auth.Identity, filter Filter) ([]Bucket, error) {
	items, err := s.scopedList(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	return GroupByTimeline(items), nil
}

func (s *Service) scopedList(ctx context.Context, id auth.Identity, filter Filter) ([]Evaluation, error) {
	scope, err := s.ScopeFor(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.Store.List(ctx, scope, filter)
	if err != nil {
		return nil, storeErr("list evaluations", err)
	}
	items = FilterByTimeline(items, filter.Timeline)
	SortRecentFirst(items)
	return items, nil
}

func (s *Service) Get(ctx context.Context, id auth.Identity, evaluationID string) (Evaluation, error) {
	_, e, err := s.load(ctx, id, evaluationID)
	return e, err
}

// load fetches a record and checks it against the caller's scope.
func (s *Service) load(ctx context.Context, id auth.Identity, evaluationID string) (Scope, Evaluation, error) {
	scope, err := s.ScopeFor(ctx, id)
	if err != nil {
		return Scope{}, Evaluation{}, err
	}
	e, err := s.Store.Get(ctx, evaluationID)
	if err != nil {
		return Scope{}, Evaluation{}, storeErr("get evaluation", err)
	}
	if !scope.Allows(e) {
		return Scope{}, Evaluation{}, ErrForbidden
	}
	return scope, e, nil
}

// Check reports whether the caller already submitted for the tuple. An open
// DRAFT does not count as a submission.
func (s *Service) Check(ctx context.Context, id auth.Identity, projectID string, year, quarter int) (CheckResult, error) {
	if verr := validateTuple(projectID, year, quarter); verr != nil {
		return CheckResult{}, verr
	}
	e, err := s.Store.FindByTuple(ctx, id.UserID, projectID, year, quarter)
	if errors.Is(err, ErrNotFound) {
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, storeErr("find evaluation", err)
	}
	if e.Status == StatusDraft {
		return CheckResult{EvaluationID: e.ID, Status: e.Status}, nil
	}
	return CheckResult{Exists: true, EvaluationID: e.ID, Status: EffectiveStatus(e), SubmittedAt: e.SubmittedAt}, nil
}

func (s *Service) EmployeeEvaluations(ctx context.Context, id auth.Identity, employeeID string) ([]Evaluation, error) {
	return s.scopedList(ctx, id, Filter{EmployeeID: employeeID})
}

func (s *Service) EmployeeAverages(ctx context.Context, id auth.Identity, employeeID string) (Averages, error) {
	items, err := s.EmployeeEvaluations(ctx, id, employeeID)
	if err != nil {
		return Averages{}, err
	}
	cat, err := s.Catalog.Catalog(ctx)
	if err != nil {
		return Averages{}, storeErr("load catalog", err)
	}
	return ComputeAverages(employeeID, items, cat), nil
}

// SubmitEmployeeRatings records the caller's self-assessment. A second
// submission for the same employee, project and quarter returns the stored
// record together with a *DuplicateSubmissionError and writes nothing.
func (s *Service) SubmitEmployeeRatings(ctx context.Context, id auth.Identity, sub Submission) (Evaluation, error) {
	if err := AuthorizeTransition(id, StatusSubmitted); err != nil {
		return Evaluation{}, err
	}
	if sub.EvaluationID != "" {
		if err := s.fillFromDraft(ctx, id, &sub); err != nil {
			var dup *DuplicateSubmissionError
			if errors.As(err, &dup) {
				return s.duplicate(dup.Existing)
			}
			return Evaluation{}, err
		}
	}

	verr := &ValidationError{}
	if tuple := validateTuple(sub.ProjectID, sub.EvaluationYear, sub.EvaluationQuarter); tuple != nil {
		verr.Issues = append(verr.Issues, tuple.Issues...)
	}
	verr.Issues = append(verr.Issues, ValidateRatings("competencyRatings", sub.CompetencyRatings).Issues...)
	if err := verr.orNil(); err != nil {
		return Evaluation{}, err
	}

	ratings, err := s.canonicalRatings(ctx, sub.CompetencyRatings)
	if err != nil {
		return Evaluation{}, err
	}
	if err := s.checkMembership(ctx, id, sub.ProjectID); err != nil {
		return Evaluation{}, err
	}

	existing, err := s.Store.FindByTuple(ctx, id.UserID, sub.ProjectID, sub.EvaluationYear, sub.EvaluationQuarter)
	switch {
	case err == nil && existing.Status != StatusDraft:
		return s.duplicate(existing)
	case err != nil && !errors.Is(err, ErrNotFound):
		return Evaluation{}, storeErr("find evaluation", err)
	}

	now := s.now()
	record := Evaluation{
		EmployeeID:        id.UserID,
		EmployeeName:      id.DisplayName(),
		EmployeeEmail:     id.Email,
		ProjectID:         sub.ProjectID,
		EvaluationYear:    sub.EvaluationYear,
		EvaluationQuarter: sub.EvaluationQuarter,
		EmployeeRatings:   ratings,
		EmployeeOverall:   RoundedOverall(ratings, OverallKey),
		Status:            StatusSubmitted,
		SubmittedAt:       &now,
		Narrative:         sub.Narrative,
	}

	var saved Evaluation
	if err == nil {
		saved, err = s.Store.SubmitDraft(ctx, existing.ID, record)
	} else {
		saved, err = s.Store.Create(ctx, record)
	}
	if errors.Is(err, ErrDuplicate) {
		// Lost a race with a concurrent submit for the same tuple.
		current, findErr := s.Store.FindByTuple(ctx, id.UserID, sub.ProjectID, sub.EvaluationYear, sub.EvaluationQuarter)
		if findErr != nil {
			return Evaluation{}, storeErr("find evaluation", findErr)
		}
		return s.duplicate(current)
	}
	if err != nil {
		return Evaluation{}, storeErr("save evaluation", err)
	}
	return saved, nil
}

func (s *Service) duplicate(existing Evaluation) (Evaluation, error) {
	s.count(metrics.DuplicateSubmissions)
	return existing, &DuplicateSubmissionError{Existing: existing}
}

// fillFromDraft completes a submission aimed at an existing draft with the
// draft's own tuple.
func (s *Service) fillFromDraft(ctx context.Context, id auth.Identity, sub *Submission) error {
	draft, err := s.Store.Get(ctx, sub.EvaluationID)
	if err != nil {
		return storeErr("get evaluation", err)
	}
	if draft.EmployeeID != id.UserID {
		return ErrForbidden
	}
	if draft.Status != StatusDraft {
		return &DuplicateSubmissionError{Existing: draft}
	}
	verr := &ValidationError{}
	if sub.ProjectID == "" {
		sub.ProjectID = draft.ProjectID
	} else if sub.ProjectID != draft.ProjectID {
		verr.add("projectId", "does not match the draft")
	}
	if sub.EvaluationYear == 0 {
		sub.EvaluationYear = draft.EvaluationYear
	} else if sub.EvaluationYear != draft.EvaluationYear {
		verr.add("evaluationYear", "does not match the draft")
	}
	if sub.EvaluationQuarter == 0 {
		sub.EvaluationQuarter = draft.EvaluationQuarter
	} else if sub.EvaluationQuarter != draft.EvaluationQuarter {
		verr.add("evaluationQuarter", "does not match the draft")
	}
	return verr.orNil()
}

// checkMembership requires the submitter to belong to the project. Callers
// with no memberships at all are refused outright.
func (s *Service) checkMembership(ctx context.Context, id auth.Identity, projectID string) error {
	member, err := s.Projects.MemberProjectIDs(ctx, id.UserID)
	if err != nil {
		return storeErr("member projects", err)
	}
	if len(member) == 0 {
		return fmt.Errorf("%w: join a project before submitting", ErrForbidden)
	}
	for _, pid := range member {
		if pid == projectID {
			return nil
		}
	}
	return invalid("projectId", "you are not a member of this project")
}

func (s *Service) canonicalRatings(ctx context.Context, ratings RatingMap) (RatingMap, error) {
	cat, err := s.Catalog.Catalog(ctx)
	if err != nil {
		return nil, storeErr("load catalog", err)
	}
	out, err := cat.CanonicalizeRatings(ratings)
	if errors.Is(err, catalog.ErrUnknownCompetency) {
		return nil, invalid("competencyRatings", err.Error())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitManagerScore writes one manager competency score. Writing any key
// other than overall schedules a recompute of the manager overall; the
// recompute runs separately and its failure never fails this write.
func (s *Service) SubmitManagerScore(ctx context.Context, id auth.Identity, evaluationID, competency string, score int) (Evaluation, error) {
	label := strings.TrimSpace(competency)
	verr := &ValidationError{}
	if label == "" {
		verr.add("competency", "is required")
	}
	if !InRange(score) {
		verr.add("score", "must be between 1 and 5")
	}
	if err := verr.orNil(); err != nil {
		return Evaluation{}, err
	}

	e, err := s.managerTarget(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if e.Status == StatusDraft || e.Status == StatusArchived {
		return Evaluation{}, fmt.Errorf("%w: status %s", ErrInvalidState, e.Status)
	}

	if strings.EqualFold(label, OverallKey) {
		label = OverallKey
	} else {
		cat, err := s.Catalog.Catalog(ctx)
		if err != nil {
			return Evaluation{}, storeErr("load catalog", err)
		}
		label, err = cat.Canonicalize(label)
		if err != nil {
			return Evaluation{}, invalid("competency", err.Error())
		}
	}

	updated, err := s.Store.PutManagerScore(ctx, e.ID, label, score)
	if err != nil {
		return Evaluation{}, storeErr("save manager score", err)
	}
	if label != OverallKey {
		s.scheduleRecompute(ctx, e.ID)
	}
	return updated, nil
}

// managerTarget loads an evaluation the caller may score or review: it must
// belong to a project the caller manages and not be the caller's own.
func (s *Service) managerTarget(ctx context.Context, id auth.Identity, evaluationID string) (Evaluation, error) {
	if !id.HasRole(auth.RoleManager) {
		return Evaluation{}, ErrForbidden
	}
	scope, e, err := s.load(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if !scope.Manages(e.ProjectID) || e.EmployeeID == id.UserID {
		return Evaluation{}, ErrForbidden
	}
	return e, nil
}

func (s *Service) scheduleRecompute(ctx context.Context, evaluationID string) {
	run := func(ctx context.Context) (any, error) {
		overall, err := s.RecomputeManagerOverall(ctx, evaluationID)
		if err != nil {
			slog.Warn("manager overall recompute failed", "evaluationId", evaluationID, "err", err)
			s.count(metrics.ManagerOverallRecomputeFailed)
			return nil, err
		}
		s.count(metrics.ManagerOverallRecomputed)
		return map[string]any{"evaluationId": evaluationID, "managerOverall": overall}, nil
	}
	if s.FollowUps == nil {
		_, _ = run(context.WithoutCancel(ctx))
		return
	}
	s.FollowUps.Enqueue(FollowUpManagerOverall, evaluationID, run)
}

// RecomputeManagerOverall rewrites the manager overall from the current
// manager ratings through the same write path as a competency score.
func (s *Service) RecomputeManagerOverall(ctx context.Context, evaluationID string) (*int, error) {
	e, err := s.Store.Get(ctx, evaluationID)
	if err != nil {
		return nil, storeErr("get evaluation", err)
	}
	overall := RoundedOverall(e.ManagerRatings, OverallKey)
	if overall == nil {
		return nil, nil
	}
	if e.ManagerOverall != nil && *e.ManagerOverall == *overall {
		return overall, nil
	}
	if _, err := s.Store.PutManagerScore(ctx, evaluationID, OverallKey, *overall); err != nil {
		return nil, storeErr("save manager overall", err)
	}
	return overall, nil
}

// Review finalizes a manager review: SUBMITTED to REVIEWED.
func (s *Service) Review(ctx context.Context, id auth.Identity, evaluationID string, in ReviewInput) (Evaluation, error) {
	if err := AuthorizeTransition(id, StatusReviewed); err != nil {
		return Evaluation{}, err
	}
	e, err := s.managerTarget(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if err := Transition(e.Status, StatusReviewed); err != nil {
		return Evaluation{}, err
	}
	updated, err := s.Store.MarkReviewed(ctx, e.ID, Review{
		ReviewerName:    id.DisplayName(),
		ManagerFeedback: strings.TrimSpace(in.ManagerFeedback),
		Recommendations: strings.TrimSpace(in.Recommendations),
		ReviewedAt:      s.now(),
	})
	if err != nil {
		return Evaluation{}, storeErr("mark reviewed", err)
	}
	return updated, nil
}

// UpdateStatus applies a named lifecycle transition. Submission carries
// ratings and goes through SubmitEmployeeRatings instead.
func (s *Service) UpdateStatus(ctx context.Context, id auth.Identity, evaluationID string, target Status) (Evaluation, error) {
	switch target {
	case StatusSubmitted:
		return Evaluation{}, invalid("status", "submit the evaluation with ratings instead")
	case StatusReviewed:
		return s.Review(ctx, id, evaluationID, ReviewInput{})
	case StatusDraft:
		return Evaluation{}, fmt.Errorf("%w: nothing moves back to %s", ErrInvalidTransition, StatusDraft)
	}

	if err := AuthorizeTransition(id, target); err != nil {
		return Evaluation{}, err
	}
	_, e, err := s.load(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if err := Transition(e.Status, target); err != nil {
		return Evaluation{}, err
	}
	updated, err := s.Store.UpdateStatus(ctx, e.ID, e.Status, target)
	if err != nil {
		return Evaluation{}, storeErr("update status", err)
	}
	return updated, nil
}

// Delete hard-deletes a record. Admins may delete any record, managers only
// records of projects they manage.
func (s *Service) Delete(ctx context.Context, id auth.Identity, evaluationID string) (Evaluation, error) {
	if !id.HasAnyRole(auth.RoleAdmin, auth.RoleManager) {
		return Evaluation{}, ErrForbidden
	}
	scope, e, err := s.load(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if !scope.All && !scope.Manages(e.ProjectID) {
		return Evaluation{}, ErrForbidden
	}
	if err := s.Store.Delete(ctx, e.ID); err != nil {
		return Evaluation{}, storeErr("delete evaluation", err)
	}
	return e, nil
}

// OpenDrafts creates a DRAFT for every member of the caller's managed
// projects that has no record for the period yet.
func (s *Service) OpenDrafts(ctx context.Context, id auth.Identity, period Period) (DraftResult, error) {
	if !id.HasRole(auth.RoleManager) {
		return DraftResult{}, ErrForbidden
	}
	if verr := validateTuple("-", period.Year, period.Quarter); verr != nil {
		return DraftResult{}, verr
	}
	managed, err := s.Projects.ManagedProjectIDs(ctx, id.UserID)
	if err != nil {
		return DraftResult{}, storeErr("managed projects", err)
	}

	var drafts []Evaluation
	existing := 0
	for _, projectID := range managed {
		members, err := s.Projects.MemberUserIDs(ctx, projectID)
		if err != nil {
			return DraftResult{}, storeErr("project members", err)
		}
		for _, userID := range members {
			if userID == id.UserID {
				continue
			}
			if _, err := s.Store.FindByTuple(ctx, userID, projectID, period.Year, period.Quarter); err == nil {
				existing++
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return DraftResult{}, storeErr("find evaluation", err)
			}
			draft := Evaluation{
				EmployeeID:        userID,
				ProjectID:         projectID,
				EvaluationYear:    period.Year,
				EvaluationQuarter: period.Quarter,
				Status:            StatusDraft,
			}
			if s.Users != nil {
				if user, err := s.Users.GetUser(ctx, userID); err == nil {
					draft.EmployeeName = user.FullName
					draft.EmployeeEmail = user.Email
				} else {
					slog.Warn("draft employee lookup failed", "userId", userID, "err", err)
				}
			}
			drafts = append(drafts, draft)
		}
	}

	result := DraftResult{Period: period, Skipped: existing, Employees: []string{}}
	if len(drafts) == 0 {
		return result, nil
	}
	created, err := s.Store.CreateDrafts(ctx, drafts)
	if err != nil {
		return DraftResult{}, storeErr("create drafts", err)
	}
	result.Created = created
	result.Skipped += len(drafts) - created
	seen := map[string]bool{}
	for _, d := range drafts {
		if !seen[d.EmployeeID] {
			seen[d.EmployeeID] = true
			result.Employees = append(result.Employees, d.EmployeeID)
		}
	}
	return result, nil
}

func (s *Service) Report(ctx context.Context, id auth.Identity, evaluationID string) (Evaluation, []byte, error) {
	e, err := s.Get(ctx, id, evaluationID)
	if err != nil {
		return Evaluation{}, nil, err
	}
	cat, err := s.Catalog.Catalog(ctx)
	if err != nil {
		return Evaluation{}, nil, storeErr("load catalog", err)
	}
	data, err := RenderReport(e, cat)
	if err != nil {
		return Evaluation{}, nil, err
	}
	return e, data, nil
}

func validateTuple(projectID string, year, quarter int) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(projectID) == "" {
		verr.add("projectId", "is required")
	}
	if year < 2000 || year > 2100 {
		verr.add("evaluationYear", "is required")
	}
	if quarter < 1 || quarter > 4 {
		verr.add("evaluationQuarter", "must be between 1 and 4")
	}
	if len(verr.Issues) == 0 {
		return nil
	}
	return verr
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) count(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name)
	}
}
