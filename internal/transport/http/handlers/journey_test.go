package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"evalhub/internal/app/server"
	"evalhub/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

const (
	adminEmail    = "admin@test.local"
	adminPassword = "ChangeMe123!"
	userPassword  = "Journey123!"
)

func testConfig(dbURL string) config.Config {
	return config.Config{
		Addr:               ":0",
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		JWTTTL:             time.Hour,
		FrontendDir:        "frontend/dist",
		Environment:        "test",
		SeedAdminEmail:     adminEmail,
		SeedAdminPassword:  adminPassword,
		EmailFrom:          "no-reply@test.local",
		RunMigrations:      true,
		MigrationsDir:      "../../../../migrations",
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		JobQueueSize:       16,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	app, err := server.New(context.Background(), testConfig(dbURL))
	if err != nil {
		t.Fatalf("failed to init app: %v", err)
	}
	ts := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		ts.Close()
		app.Close()
	})
	return ts
}

func TestEvaluationJourney(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	suffix := time.Now().UnixNano()

	adminToken := login(t, client, ts.URL, adminEmail, adminPassword)

	managerEmail := fmt.Sprintf("manager-%d@test.local", suffix)
	employeeEmail := fmt.Sprintf("employee-%d@test.local", suffix)
	managerID := createUser(t, client, ts.URL, adminToken, managerEmail, "Journey Manager", "MANAGER")
	employeeID := createUser(t, client, ts.URL, adminToken, employeeEmail, "Journey Employee", "EMPLOYEE")

	projectID := createProject(t, client, ts.URL, adminToken, fmt.Sprintf("Journey %d", suffix))
	postJSON(t, client, ts.URL+"/api/v1/projects/"+projectID+"/managers", adminToken, map[string]any{"userId": managerID})
	postJSON(t, client, ts.URL+"/api/v1/projects/"+projectID+"/members", adminToken, map[string]any{"userId": employeeID})

	employeeToken := login(t, client, ts.URL, employeeEmail, userPassword)
	managerToken := login(t, client, ts.URL, managerEmail, userPassword)
	getJSONStatus(t, client, ts.URL+"/api/v1/evaluations", managerToken, http.StatusForbidden)
	managerToken = changePassword(t, client, ts.URL, managerToken, userPassword, "Journey456!")

	submission := map[string]any{
		"projectId":         projectID,
		"evaluationYear":    2025,
		"evaluationQuarter": 3,
		"competencyRatings": map[string]int{"Teamwork": 4, "communication": 5},
		"achievements":      "Shipped the reporting module",
	}
	created := postJSONStatus(t, client, ts.URL+"/api/v1/evaluations", employeeToken, nil, submission, http.StatusCreated)
	var view map[string]any
	if err := json.Unmarshal(created.Data, &view); err != nil {
		t.Fatalf("failed to decode evaluation: %v", err)
	}
	evaluationID, _ := view["id"].(string)
	if evaluationID == "" {
		t.Fatal("expected evaluation id")
	}
	if view["status"] != "SUBMITTED" {
		t.Fatalf("expected SUBMITTED, got %v", view["status"])
	}
	ratings, _ := view["employeeRatings"].(map[string]any)
	if _, ok := ratings["Communication"]; !ok {
		t.Fatalf("expected canonical competency label, got %v", ratings)
	}

	postJSONStatus(t, client, ts.URL+"/api/v1/evaluations", employeeToken, nil, submission, http.StatusConflict)

	check := getJSON(t, client, fmt.Sprintf("%s/api/v1/evaluations/self/check?projectId=%s&evaluationYear=2025&evaluationQuarter=3", ts.URL, projectID), employeeToken)
	var checked map[string]any
	if err := json.Unmarshal(check.Data, &checked); err != nil {
		t.Fatalf("failed to decode check: %v", err)
	}
	if checked["exists"] != true || checked["evaluationId"] != evaluationID {
		t.Fatalf("unexpected check result: %v", checked)
	}

	postJSONStatus(t, client, ts.URL+"/api/v1/evaluations/"+evaluationID+"/manager-score", employeeToken, nil,
		map[string]any{"competency": "Teamwork", "score": 3}, http.StatusForbidden)
	postJSON(t, client, ts.URL+"/api/v1/evaluations/"+evaluationID+"/manager-score", managerToken,
		map[string]any{"competency": "teamwork", "score": 3})
	reviewed := postJSON(t, client, ts.URL+"/api/v1/evaluations/"+evaluationID+"/review", managerToken,
		map[string]any{"managerFeedback": "Solid quarter", "recommendations": "Mentor a new hire"})
	if err := json.Unmarshal(reviewed.Data, &view); err != nil {
		t.Fatalf("failed to decode review: %v", err)
	}
	if view["status"] != "REVIEWED" {
		t.Fatalf("expected REVIEWED, got %v", view["status"])
	}

	notes := getJSON(t, client, ts.URL+"/api/v1/notifications", employeeToken)
	var items []map[string]any
	if err := json.Unmarshal(notes.Data, &items); err != nil {
		t.Fatalf("failed to decode notifications: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected employee notification after review")
	}

	averages := getJSON(t, client, ts.URL+"/api/v1/evaluations/employee/"+employeeID+"/averages", managerToken)
	var avg map[string]any
	if err := json.Unmarshal(averages.Data, &avg); err != nil {
		t.Fatalf("failed to decode averages: %v", err)
	}
	if avg["evaluations"] != float64(1) {
		t.Fatalf("expected one evaluation in averages, got %v", avg["evaluations"])
	}

	events := getJSON(t, client, ts.URL+"/api/v1/audit/events?entityType=evaluation&entityId="+evaluationID, adminToken)
	var audited []map[string]any
	if err := json.Unmarshal(events.Data, &audited); err != nil {
		t.Fatalf("failed to decode audit events: %v", err)
	}
	if !hasAction(audited, "evaluation.submit") {
		t.Fatalf("expected evaluation.submit audit event, got %v", audited)
	}
	getJSONStatus(t, client, ts.URL+"/api/v1/audit/events", managerToken, http.StatusForbidden)

	peerEmail := fmt.Sprintf("peer-%d@test.local", suffix)
	createUser(t, client, ts.URL, adminToken, peerEmail, "Journey Peer", "EMPLOYEE")
	peerToken := login(t, client, ts.URL, peerEmail, userPassword)
	sendStatus(t, client, http.MethodPut, ts.URL+"/api/v1/users/me/projects", peerToken, []string{projectID}, http.StatusOK)
	postJSONStatus(t, client, ts.URL+"/api/v1/peer-reviews", peerToken, nil, map[string]any{
		"evaluationId":        evaluationID,
		"strengths":           "Great pairing partner",
		"collaborationRating": 5,
		"communicationRating": 4,
		"technicalRating":     4,
		"leadershipRating":    3,
	}, http.StatusCreated)
	summary := getJSON(t, client, ts.URL+"/api/v1/peer-reviews/evaluation/"+evaluationID+"/summary", managerToken)
	var peer map[string]any
	if err := json.Unmarshal(summary.Data, &peer); err != nil {
		t.Fatalf("failed to decode peer summary: %v", err)
	}
	if peer["reviewCount"] != float64(1) {
		t.Fatalf("expected one peer review, got %v", peer["reviewCount"])
	}

	dashboard := getJSON(t, client, ts.URL+"/api/v1/manager/dashboard", managerToken)
	var stats map[string]any
	if err := json.Unmarshal(dashboard.Data, &stats); err != nil {
		t.Fatalf("failed to decode dashboard: %v", err)
	}
	if stats["completedReviews"] != float64(1) || stats["teamMembers"] != float64(2) {
		t.Fatalf("unexpected dashboard %v", stats)
	}
}

func changePassword(t *testing.T, client *http.Client, baseURL, token, current, next string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/users/change-password", token, map[string]any{
		"currentPassword": current,
		"newPassword":     next,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode password change: %v", err)
	}
	fresh, _ := payload["token"].(string)
	if fresh == "" {
		t.Fatal("expected a fresh token")
	}
	return fresh
}

func sendStatus(t *testing.T, client *http.Client, method, url, token string, body any, want int) envelope {
	t.Helper()
	env, status, raw := send(t, client, method, url, token, nil, body)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, raw)
	}
	return env
}

func TestSubmissionReplaysIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	suffix := time.Now().UnixNano()

	adminToken := login(t, client, ts.URL, adminEmail, adminPassword)
	employeeEmail := fmt.Sprintf("replay-%d@test.local", suffix)
	employeeID := createUser(t, client, ts.URL, adminToken, employeeEmail, "Replay Employee", "EMPLOYEE")
	projectID := createProject(t, client, ts.URL, adminToken, fmt.Sprintf("Replay %d", suffix))
	postJSON(t, client, ts.URL+"/api/v1/projects/"+projectID+"/members", adminToken, map[string]any{"userId": employeeID})
	token := login(t, client, ts.URL, employeeEmail, userPassword)

	body := map[string]any{
		"projectId":         projectID,
		"evaluationYear":    2025,
		"evaluationQuarter": 1,
		"competencyRatings": map[string]int{"Leadership": 4},
	}
	headers := map[string]string{"Idempotency-Key": fmt.Sprintf("submit-%d", suffix)}
	first := postJSONStatus(t, client, ts.URL+"/api/v1/evaluations", token, headers, body, http.StatusCreated)
	second := postJSONStatus(t, client, ts.URL+"/api/v1/evaluations", token, headers, body, http.StatusCreated)
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("expected replayed body, got %s and %s", first.Data, second.Data)
	}

	body["evaluationQuarter"] = 2
	postJSONStatus(t, client, ts.URL+"/api/v1/evaluations", token, headers, body, http.StatusConflict)
}

func hasAction(events []map[string]any, action string) bool {
	for _, e := range events {
		if e["action"] == action {
			return true
		}
	}
	return false
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func createUser(t *testing.T, client *http.Client, baseURL, token, email, name, role string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/users", token, map[string]any{
		"email":    email,
		"fullName": name,
		"password": userPassword,
		"roles":    []string{role},
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode user response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected user id")
	}
	return id
}

func createProject(t *testing.T, client *http.Client, baseURL, token, name string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/projects", token, map[string]any{
		"name":        name,
		"description": "journey test project",
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode project response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected project id")
	}
	return id
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	env, status, raw := send(t, client, http.MethodPost, url, token, nil, body)
	if status >= 400 {
		t.Fatalf("unexpected status %d: %s", status, raw)
	}
	return env
}

func postJSONStatus(t *testing.T, client *http.Client, url, token string, headers map[string]string, body any, want int) envelope {
	t.Helper()
	env, status, raw := send(t, client, http.MethodPost, url, token, headers, body)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, raw)
	}
	return env
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	env, status, raw := send(t, client, http.MethodGet, url, token, nil, nil)
	if status >= 400 {
		t.Fatalf("unexpected status %d: %s", status, raw)
	}
	return env
}

func getJSONStatus(t *testing.T, client *http.Client, url, token string, want int) envelope {
	t.Helper()
	env, status, raw := send(t, client, http.MethodGet, url, token, nil, nil)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, raw)
	}
	return env
}

func send(t *testing.T, client *http.Client, method, url, token string, headers map[string]string, body any) (envelope, int, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env, resp.StatusCode, string(raw)
}
