package cataloghandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
	"evalhub/internal/transport/http/middleware"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]catalog.Competency
	next  int
}

func (m *memoryStore) List(context.Context) ([]catalog.Competency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Competency, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (catalog.Competency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return catalog.Competency{}, catalog.ErrNotFound
	}
	return item, nil
}

func (m *memoryStore) Create(_ context.Context, c catalog.Competency) (catalog.Competency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c.ID = "keq-" + strconv.Itoa(m.next)
	m.items[c.ID] = c
	return c, nil
}

func (m *memoryStore) Update(_ context.Context, c catalog.Competency) (catalog.Competency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[c.ID]; !ok {
		return catalog.Competency{}, catalog.ErrNotFound
	}
	m.items[c.ID] = c
	return c, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func intPtr(v int) *int { return &v }

func newRouter(store *memoryStore) http.Handler {
	svc := catalog.NewService(store, catalog.MustAliasTable(catalog.DefaultAliases))
	h := NewHandler(svc, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role, ok := auth.ParseRole(r.Header.Get("X-Test-Role")); ok {
				id := auth.Identity{UserID: "u-" + string(role), Username: string(role), Roles: []auth.Role{role}}
				r = r.WithContext(middleware.WithUser(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.RegisterRoutes(r)
	return r
}

func call(t *testing.T, router http.Handler, method, path string, role auth.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("X-Test-Role", string(role))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func TestListActiveForPeriod(t *testing.T) {
	store := &memoryStore{items: map[string]catalog.Competency{
		"a": {ID: "a", Category: "Teamwork", OrderIndex: 2, IsActive: true},
		"b": {ID: "b", Category: "Leadership", OrderIndex: 1, IsActive: true, EffectiveFromYear: intPtr(2026), EffectiveFromQuarter: intPtr(1)},
		"c": {ID: "c", Category: "Quality Focus", OrderIndex: 3, IsActive: false},
	}}
	router := newRouter(store)

	rec := call(t, router, http.MethodGet, "/keqs?year=2025&quarter=4", auth.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []catalog.Competency
	decodeData(t, rec, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)

	rec = call(t, router, http.MethodGet, "/keqs?year=2026&quarter=1", auth.RoleEmployee, nil)
	decodeData(t, rec, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)

	rec = call(t, router, http.MethodGet, "/keqs?year=2026", auth.RoleEmployee, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, router, http.MethodGet, "/keqs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminManagesQuestions(t *testing.T) {
	store := &memoryStore{items: map[string]catalog.Competency{}}
	router := newRouter(store)
	input := map[string]any{"text": "How well does the employee mentor others?", "category": "Mentoring", "orderIndex": 9}

	rec := call(t, router, http.MethodPost, "/keqs", auth.RoleManager, input)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/keqs", auth.RoleAdmin, map[string]any{"text": "", "category": "Mentoring"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"text"`)

	rec = call(t, router, http.MethodPost, "/keqs", auth.RoleAdmin, input)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created catalog.Competency
	decodeData(t, rec, &created)
	assert.True(t, created.IsActive)
	assert.Equal(t, 9, created.OrderIndex)

	input["isActive"] = false
	rec = call(t, router, http.MethodPut, "/keqs/"+created.ID, auth.RoleAdmin, input)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated catalog.Competency
	decodeData(t, rec, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.False(t, updated.IsActive)

	rec = call(t, router, http.MethodDelete, "/keqs/"+created.ID, auth.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, router, http.MethodDelete, "/keqs/"+created.ID, auth.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(t, router, http.MethodGet, "/keqs/"+created.ID, auth.RoleEmployee, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
