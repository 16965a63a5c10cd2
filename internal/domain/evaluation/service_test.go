package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
)

type memStore struct {
	mu     sync.Mutex
	seq    int
	items  map[string]Evaluation
	putErr error
}

func newMemStore() *memStore {
	return &memStore{items: map[string]Evaluation{}}
}

func clone(e Evaluation) Evaluation {
	e.EmployeeRatings = e.EmployeeRatings.Clone()
	e.ManagerRatings = e.ManagerRatings.Clone()
	return e
}

func (m *memStore) List(_ context.Context, scope Scope, filter Filter) ([]Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Evaluation{}
	for _, e := range m.items {
		if !scope.Allows(e) {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.ProjectID != "" && e.ProjectID != filter.ProjectID {
			continue
		}
		if filter.EmployeeID != "" && e.EmployeeID != filter.EmployeeID {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return clone(e), nil
}

func (m *memStore) FindByTuple(_ context.Context, employeeID, projectID string, year, quarter int) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.EmployeeID == employeeID && e.ProjectID == projectID && e.EvaluationYear == year && e.EvaluationQuarter == quarter {
			return clone(e), nil
		}
	}
	return Evaluation{}, ErrNotFound
}

func (m *memStore) insert(e Evaluation) (Evaluation, bool) {
	for _, existing := range m.items {
		if existing.EmployeeID == e.EmployeeID && existing.ProjectID == e.ProjectID &&
			existing.EvaluationYear == e.EvaluationYear && existing.EvaluationQuarter == e.EvaluationQuarter {
			return Evaluation{}, false
		}
	}
	m.seq++
	e.ID = fmt.Sprintf("ev-%d", m.seq)
	if e.EmployeeRatings == nil {
		e.EmployeeRatings = RatingMap{}
	}
	if e.ManagerRatings == nil {
		e.ManagerRatings = RatingMap{}
	}
	m.items[e.ID] = clone(e)
	return e, true
}

func (m *memStore) Create(_ context.Context, e Evaluation) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved, ok := m.insert(e)
	if !ok {
		return Evaluation{}, ErrDuplicate
	}
	return clone(saved), nil
}

func (m *memStore) SubmitDraft(_ context.Context, id string, e Evaluation) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if current.Status != StatusDraft {
		return Evaluation{}, ErrDuplicate
	}
	current.Status = StatusSubmitted
	current.EmployeeRatings = e.EmployeeRatings.Clone()
	current.EmployeeOverall = e.EmployeeOverall
	current.SubmittedAt = e.SubmittedAt
	current.Narrative = e.Narrative
	m.items[id] = current
	return clone(current), nil
}

func (m *memStore) PutManagerScore(_ context.Context, id, competency string, score int) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if competency == OverallKey && m.putErr != nil {
		return Evaluation{}, m.putErr
	}
	e, ok := m.items[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if competency == OverallKey {
		e.ManagerOverall = &score
	} else {
		e.ManagerRatings = e.ManagerRatings.Clone()
		e.ManagerRatings[competency] = score
	}
	m.items[id] = e
	return clone(e), nil
}

func (m *memStore) MarkReviewed(_ context.Context, id string, review Review) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if e.Status != StatusSubmitted {
		return Evaluation{}, ErrInvalidTransition
	}
	e.Status = StatusReviewed
	e.ReviewerName = &review.ReviewerName
	e.ManagerFeedback = review.ManagerFeedback
	e.Recommendations = review.Recommendations
	e.ReviewedAt = &review.ReviewedAt
	m.items[id] = e
	return clone(e), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, from, to Status) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if e.Status != from {
		return Evaluation{}, ErrInvalidTransition
	}
	e.Status = to
	m.items[id] = e
	return clone(e), nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) CreateDrafts(_ context.Context, drafts []Evaluation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, d := range drafts {
		if _, ok := m.insert(d); ok {
			created++
		}
	}
	return created, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type stubProjects struct {
	managed map[string][]string
	member  map[string][]string
	members map[string][]string
}

func (p stubProjects) ManagedProjectIDs(_ context.Context, userID string) ([]string, error) {
	return p.managed[userID], nil
}

func (p stubProjects) MemberProjectIDs(_ context.Context, userID string) ([]string, error) {
	return p.member[userID], nil
}

func (p stubProjects) MemberUserIDs(_ context.Context, projectID string) ([]string, error) {
	return p.members[projectID], nil
}

type staticCatalog struct {
	cat *catalog.Catalog
}

func (c staticCatalog) Catalog(context.Context) (*catalog.Catalog, error) {
	return c.cat, nil
}

func defaultCatalog() *catalog.Catalog {
	var items []catalog.Competency
	for i, in := range catalog.DefaultCompetencies() {
		items = append(items, in.Apply(catalog.Competency{ID: fmt.Sprintf("k-%d", i+1)}))
	}
	return catalog.New(items, catalog.MustAliasTable(catalog.DefaultAliases))
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingMetrics) Inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[name]++
}

func (c *countingMetrics) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// queuedFollowUps holds follow-ups until flushed, like a worker would.
type queuedFollowUps struct {
	pending []func(context.Context) (any, error)
}

func (q *queuedFollowUps) Enqueue(_, _ string, run func(context.Context) (any, error)) {
	q.pending = append(q.pending, run)
}

func (q *queuedFollowUps) flush(ctx context.Context) {
	for _, run := range q.pending {
		_, _ = run(ctx)
	}
	q.pending = nil
}

var (
	alice   = auth.Identity{UserID: "u-alice", Username: "alice", Email: "alice@example.com", Name: "Alice", Roles: []auth.Role{auth.RoleEmployee}}
	bob     = auth.Identity{UserID: "u-bob", Username: "bob", Email: "bob@example.com", Roles: []auth.Role{auth.RoleEmployee}}
	mallory = auth.Identity{UserID: "u-mallory", Username: "mallory", Roles: []auth.Role{auth.RoleManager, auth.RoleEmployee}}
	oscar   = auth.Identity{UserID: "u-oscar", Username: "oscar", Roles: []auth.Role{auth.RoleManager}}
	root    = auth.Identity{UserID: "u-root", Username: "root", Roles: []auth.Role{auth.RoleAdmin}}
)

type fixture struct {
	svc     *Service
	store   *memStore
	metrics *countingMetrics
}

func newFixture() fixture {
	store := newMemStore()
	projects := stubProjects{
		managed: map[string][]string{"u-mallory": {"p-apollo"}, "u-oscar": {"p-zeus"}},
		member:  map[string][]string{"u-alice": {"p-apollo"}, "u-bob": {"p-zeus"}, "u-mallory": {"p-zeus"}},
		members: map[string][]string{"p-apollo": {"u-alice", "u-mallory"}, "p-zeus": {"u-bob", "u-mallory"}},
	}
	svc := NewService(store, projects, staticCatalog{cat: defaultCatalog()})
	counter := &countingMetrics{}
	svc.Metrics = counter
	svc.Now = func() time.Time { return time.Date(2025, time.August, 14, 10, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, store: store, metrics: counter}
}

func (f fixture) submit(t *testing.T, id auth.Identity, projectID string, ratings RatingMap) Evaluation {
	t.Helper()
	e, err := f.svc.SubmitEmployeeRatings(context.Background(), id, Submission{
		ProjectID:         projectID,
		EvaluationYear:    2025,
		EvaluationQuarter: 3,
		CompetencyRatings: ratings,
	})
	require.NoError(t, err)
	return e
}

func TestSubmitEmployeeRatingsStoresRoundedOverall(t *testing.T) {
	f := newFixture()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Technical Skills": 4, "Communication": 3, "Teamwork": 5})

	require.NotNil(t, e.EmployeeOverall)
	assert.Equal(t, 4, *e.EmployeeOverall)
	assert.Equal(t, StatusSubmitted, e.Status)
	assert.Equal(t, "Alice", e.EmployeeName)
	require.NotNil(t, e.SubmittedAt)
}

func TestSubmitEmployeeRatingsCanonicalizesLabels(t *testing.T) {
	f := newFixture()
	e := f.submit(t, alice, "p-apollo", RatingMap{"TECHNICAL SKILLS": 4, "quality": 2, "technical_excellence": 5})

	assert.Equal(t, RatingMap{"Technical Skills": 5, "Quality Focus": 2}, e.EmployeeRatings)
}

func TestSubmitEmployeeRatingsValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		sub  Submission
	}{
		{"empty ratings", Submission{ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 3}},
		{"out of range", Submission{ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 6}}},
		{"missing timeline", Submission{ProjectID: "p-apollo", CompetencyRatings: RatingMap{"Teamwork": 3}}},
		{"missing project", Submission{EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 3}}},
		{"unknown competency", Submission{ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Juggling": 3}}},
		{"not a member", Submission{ProjectID: "p-zeus", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitEmployeeRatings(ctx, alice, tc.sub)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NotEmpty(t, verr.Issues)
		})
	}
	assert.Equal(t, 0, f.store.count(), "validation failures must not reach the store")
}

func TestSubmitEmployeeRatingsRequiresMembership(t *testing.T) {
	f := newFixture()
	loner := auth.Identity{UserID: "u-loner", Username: "loner", Roles: []auth.Role{auth.RoleEmployee}}
	_, err := f.svc.SubmitEmployeeRatings(context.Background(), loner, Submission{
		ProjectID: "3b241101-e2bb-4255-8caf-4136c566a962", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 3},
	})
	assert.ErrorIs(t, err, ErrForbidden)
	var transient *TransientStoreError
	assert.False(t, errors.As(err, &transient))
	assert.Equal(t, 0, f.store.count())
}

func TestSubmitEmployeeRatingsRequiresEmployeeRole(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SubmitEmployeeRatings(context.Background(), root, Submission{
		ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 3},
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDuplicateSubmissionKeepsExistingRecord(t *testing.T) {
	f := newFixture()
	first := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 5})

	again, err := f.svc.SubmitEmployeeRatings(context.Background(), alice, Submission{
		ProjectID:         "p-apollo",
		EvaluationYear:    2025,
		EvaluationQuarter: 3,
		CompetencyRatings: RatingMap{"Teamwork": 1},
	})

	var dup *DuplicateSubmissionError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.Equal(t, 5, again.EmployeeRatings["Teamwork"])
	assert.Equal(t, 1, f.store.count())
	assert.Equal(t, 1, f.metrics.get("duplicate_submissions"))
}

func TestSubmitPromotesOpenDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.svc.OpenDrafts(ctx, mallory, Period{Year: 2025, Quarter: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []string{alice.UserID}, result.Employees)

	check, err := f.svc.Check(ctx, alice, "p-apollo", 2025, 3)
	require.NoError(t, err)
	assert.False(t, check.Exists)
	assert.Equal(t, StatusDraft, check.Status)

	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})
	assert.Equal(t, check.EvaluationID, e.ID)
	assert.Equal(t, StatusSubmitted, e.Status)
	assert.Equal(t, 1, f.store.count())

	check, err = f.svc.Check(ctx, alice, "p-apollo", 2025, 3)
	require.NoError(t, err)
	assert.True(t, check.Exists)
}

func TestOpenDraftsSkipsExistingTuples(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	result, err := f.svc.OpenDrafts(ctx, mallory, Period{Year: 2025, Quarter: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Employees)

	_, err = f.svc.OpenDrafts(ctx, alice, Period{Year: 2025, Quarter: 3})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitToDraftByID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.OpenDrafts(ctx, mallory, Period{Year: 2025, Quarter: 2})
	require.NoError(t, err)
	check, err := f.svc.Check(ctx, alice, "p-apollo", 2025, 2)
	require.NoError(t, err)

	e, err := f.svc.SubmitEmployeeRatings(ctx, alice, Submission{
		EvaluationID:      check.EvaluationID,
		CompetencyRatings: RatingMap{"Leadership": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, e.EvaluationQuarter)

	_, err = f.svc.SubmitEmployeeRatings(ctx, bob, Submission{
		EvaluationID:      check.EvaluationID,
		CompetencyRatings: RatingMap{"Leadership": 3},
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestManagerScoresRecomputeOverall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Technical Skills": 4, "Communication": 3})

	_, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, "Technical Skills", 3)
	require.NoError(t, err)
	updated, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, "communication", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, updated.Status, "score writes do not change the stored status")
	assert.Equal(t, StatusReviewed, EffectiveStatus(updated))

	stored, err := f.store.Get(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ManagerOverall)
	assert.Equal(t, 4, *stored.ManagerOverall)
	assert.Equal(t, RatingMap{"Technical Skills": 3, "Communication": 5}, stored.ManagerRatings)
	assert.Equal(t, 2, f.metrics.get("manager_overall_recomputed"))
}

func TestManagerOverallMatchesAverageAfterEveryWrite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	writes := []struct {
		label string
		score int
	}{
		{"Teamwork", 2}, {"Leadership", 5}, {"Teamwork", 4}, {"Adaptability", 1}, {"Quality Focus", 5},
	}
	for _, w := range writes {
		_, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, w.label, w.score)
		require.NoError(t, err)

		stored, err := f.store.Get(ctx, e.ID)
		require.NoError(t, err)
		avg := ComputeAverage(stored.ManagerRatings, OverallKey)
		require.NotNil(t, avg)
		require.NotNil(t, stored.ManagerOverall)
		assert.InDelta(t, *avg, float64(*stored.ManagerOverall), 0.5)
	}
}

func TestRecomputeRunsAsFollowUp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	queue := &queuedFollowUps{}
	f.svc.FollowUps = queue
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	_, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, "Teamwork", 2)
	require.NoError(t, err)
	stored, _ := f.store.Get(ctx, e.ID)
	assert.Nil(t, stored.ManagerOverall, "recompute must not run inline when a queue is configured")
	require.Len(t, queue.pending, 1)

	queue.flush(ctx)
	stored, _ = f.store.Get(ctx, e.ID)
	require.NotNil(t, stored.ManagerOverall)
	assert.Equal(t, 2, *stored.ManagerOverall)
}

func TestRecomputeFailureDoesNotFailScoreWrite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})
	f.store.putErr = errors.New("connection reset")

	updated, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, "Teamwork", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ManagerRatings["Teamwork"])
	assert.Equal(t, 1, f.metrics.get("manager_overall_recompute_failed"))
}

func TestManagerOverallKeyWritesDirectly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	updated, err := f.svc.SubmitManagerScore(ctx, mallory, e.ID, "Overall", 2)
	require.NoError(t, err)
	require.NotNil(t, updated.ManagerOverall)
	assert.Equal(t, 2, *updated.ManagerOverall)
	assert.Empty(t, updated.ManagerRatings)
	assert.Equal(t, 0, f.metrics.get("manager_overall_recomputed"))
}

func TestSubmitManagerScoreRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	aliceEval := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})
	malloryEval := f.submit(t, mallory, "p-zeus", RatingMap{"Teamwork": 4})

	cases := []struct {
		name   string
		id     auth.Identity
		evalID string
		label  string
		score  int
		want   error
	}{
		{"score too high", mallory, aliceEval.ID, "Teamwork", 6, ErrValidation},
		{"score zero", mallory, aliceEval.ID, "Teamwork", 0, ErrValidation},
		{"unknown label", mallory, aliceEval.ID, "Juggling", 3, ErrValidation},
		{"missing evaluation", mallory, "ev-404", "Teamwork", 3, ErrNotFound},
		{"employee", bob, aliceEval.ID, "Teamwork", 3, ErrForbidden},
		{"admin is read only", root, aliceEval.ID, "Teamwork", 3, ErrForbidden},
		{"other project", oscar, aliceEval.ID, "Teamwork", 3, ErrForbidden},
		{"own evaluation", mallory, malloryEval.ID, "Teamwork", 3, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitManagerScore(ctx, tc.id, tc.evalID, tc.label, tc.score)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	stored, _ := f.store.Get(ctx, aliceEval.ID)
	assert.Empty(t, stored.ManagerRatings, "rejected writes must not persist")
}

func TestSubmitManagerScoreRejectsDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.OpenDrafts(ctx, mallory, Period{Year: 2025, Quarter: 1})
	require.NoError(t, err)
	check, err := f.svc.Check(ctx, alice, "p-apollo", 2025, 1)
	require.NoError(t, err)

	_, err = f.svc.SubmitManagerScore(ctx, mallory, check.EvaluationID, "Teamwork", 3)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestListIsScopedByRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})
	f.submit(t, bob, "p-zeus", RatingMap{"Teamwork": 3})
	f.submit(t, mallory, "p-zeus", RatingMap{"Teamwork": 5})

	ids := func(id auth.Identity) []string {
		page, err := f.svc.List(ctx, id, Filter{})
		require.NoError(t, err)
		var out []string
		for _, e := range page.Items {
			out = append(out, e.EmployeeID)
		}
		sort.Strings(out)
		return out
	}

	assert.Equal(t, []string{"u-alice"}, ids(alice))
	assert.Equal(t, []string{"u-bob"}, ids(bob))
	assert.Equal(t, []string{"u-alice", "u-mallory"}, ids(mallory))
	assert.Equal(t, []string{"u-bob", "u-mallory"}, ids(oscar))
	assert.Equal(t, []string{"u-alice", "u-bob", "u-mallory"}, ids(root))

	_, err := f.svc.List(ctx, auth.Identity{}, Filter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGetOutsideScopeIsForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	_, err := f.svc.Get(ctx, bob, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, oscar, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err := f.svc.Get(ctx, mallory, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestListPagesAfterTimelineFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, q := range []int{1, 2, 3, 4} {
		_, err := f.svc.SubmitEmployeeRatings(ctx, alice, Submission{
			ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: q, CompetencyRatings: RatingMap{"Teamwork": q},
		})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, alice, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Items[0].EvaluationQuarter)
	assert.Equal(t, 2, page.Items[1].EvaluationQuarter)

	page, err = f.svc.List(ctx, alice, Filter{Timeline: "Q4 2025"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 4, page.Items[0].EvaluationQuarter)

	buckets, err := f.svc.Grouped(ctx, alice, Filter{})
	require.NoError(t, err)
	require.Len(t, buckets, 4)
	assert.Equal(t, "Q4 2025", buckets[0].Key)
}

func TestReviewFinalizesSubmittedEvaluation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	_, err := f.svc.Review(ctx, oscar, e.ID, ReviewInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	reviewed, err := f.svc.Review(ctx, mallory, e.ID, ReviewInput{ManagerFeedback: " Solid quarter. "})
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, reviewed.Status)
	assert.Equal(t, "Solid quarter.", reviewed.ManagerFeedback)
	require.NotNil(t, reviewed.ReviewerName)
	assert.Equal(t, "mallory", *reviewed.ReviewerName)

	_, err = f.svc.Review(ctx, mallory, e.ID, ReviewInput{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	_, err := f.svc.UpdateStatus(ctx, mallory, e.ID, StatusArchived)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateStatus(ctx, alice, e.ID, StatusSubmitted)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.UpdateStatus(ctx, root, e.ID, StatusDraft)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reviewed, err := f.svc.UpdateStatus(ctx, mallory, e.ID, StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, reviewed.Status)

	archived, err := f.svc.UpdateStatus(ctx, root, e.ID, StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	_, err = f.svc.UpdateStatus(ctx, root, e.ID, StatusArchived)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.SubmitManagerScore(ctx, mallory, e.ID, "Teamwork", 3)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})
	other := f.submit(t, bob, "p-zeus", RatingMap{"Teamwork": 4})

	_, err := f.svc.Delete(ctx, alice, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Delete(ctx, oscar, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Delete(ctx, mallory, e.ID)
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, root, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.count())

	_, err = f.svc.Delete(ctx, root, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmployeeAverages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.svc.SubmitEmployeeRatings(ctx, alice, Submission{
		ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 2, CompetencyRatings: RatingMap{"Teamwork": 4, "Leadership": 2},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitEmployeeRatings(ctx, alice, Submission{
		ProjectID: "p-apollo", EvaluationYear: 2025, EvaluationQuarter: 3, CompetencyRatings: RatingMap{"Teamwork": 5},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitManagerScore(ctx, mallory, first.ID, "Teamwork", 3)
	require.NoError(t, err)

	avg, err := f.svc.EmployeeAverages(ctx, mallory, "u-alice")
	require.NoError(t, err)
	assert.Equal(t, 2, avg.Evaluations)

	byLabel := map[string]CompetencyAverage{}
	for _, c := range avg.Competencies {
		byLabel[c.Competency] = c
	}
	require.NotNil(t, byLabel["Teamwork"].Employee)
	assert.Equal(t, 4.5, *byLabel["Teamwork"].Employee)
	require.NotNil(t, byLabel["Teamwork"].Manager)
	assert.Equal(t, 3.0, *byLabel["Teamwork"].Manager)
	assert.Nil(t, byLabel["Communication"].Employee)

	avg, err = f.svc.EmployeeAverages(ctx, bob, "u-alice")
	require.NoError(t, err)
	assert.Equal(t, 0, avg.Evaluations, "scope hides other employees' records")
}

func TestReportRendersPDF(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.submit(t, alice, "p-apollo", RatingMap{"Teamwork": 4})

	_, data, err := f.svc.Report(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.True(t, len(data) > 4 && string(data[:4]) == "%PDF")

	_, _, err = f.svc.Report(ctx, bob, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
