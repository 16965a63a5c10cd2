package evaluationhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type ManagerDirectory interface {
	ManagerUserIDs(ctx context.Context, projectID string) ([]string, error)
}

type Notifier interface {
	Create(ctx context.Context, userID, ntype, title, body string) error
	Broadcast(ctx context.Context, userIDs []string, skipUserID, ntype, title, body string)
}

type JobRunner interface {
	RunNow(ctx context.Context, jobType, key string, run func(context.Context) (any, error)) (any, error)
}

type Handler struct {
	Service     *evaluation.Service
	Projects    ManagerDirectory
	Notify      Notifier
	Audit       shared.Auditor
	Jobs        JobRunner
	Idempotency middleware.IdempotencyKeys
}

func NewHandler(service *evaluation.Service, projects ManagerDirectory, notify Notifier, auditSvc shared.Auditor, jobs JobRunner) *Handler {
	return &Handler{Service: service, Projects: projects, Notify: notify, Audit: auditSvc, Jobs: jobs}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/evaluations", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.With(middleware.Idempotent(h.Idempotency)).Post("/", h.handleSubmit)
		r.Get("/self/check", h.handleCheck)
		r.With(middleware.RequireRole(auth.RoleManager)).Post("/drafts", h.handleOpenDrafts)
		r.Get("/employee/{employeeID}", h.handleEmployeeEvaluations)
		r.Get("/employee/{employeeID}/averages", h.handleEmployeeAverages)
		r.Get("/{evaluationID}", h.handleGet)
		r.Get("/{evaluationID}/report.pdf", h.handleReport)
		r.With(middleware.RequireRole(auth.RoleManager)).Post("/{evaluationID}/manager-score", h.handleManagerScore)
		r.With(middleware.RequireRole(auth.RoleManager)).Post("/{evaluationID}/review", h.handleReview)
		r.Put("/{evaluationID}/status", h.handleUpdateStatus)
		r.With(middleware.RequireRole(auth.RoleManager)).Delete("/{evaluationID}", h.handleDelete)
	})
	r.With(middleware.RequireRole(auth.RoleManager)).Get("/manager/dashboard", h.handleManagerDashboard)
}

func (h *Handler) handleManagerDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	stats, err := h.Service.ManagerDashboard(r.Context(), user)
	if err != nil {
		writeError(w, r, err, "dashboard_failed", "failed to load dashboard")
		return
	}
	api.Success(w, stats, middleware.GetRequestID(r.Context()))
}

type bucketView struct {
	Key         string            `json:"key"`
	Year        int               `json:"year,omitempty"`
	Quarter     int               `json:"quarter,omitempty"`
	Evaluations []evaluation.View `json:"evaluations"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	q := r.URL.Query()
	filter := evaluation.Filter{
		ProjectID:  strings.TrimSpace(q.Get("projectId")),
		EmployeeID: strings.TrimSpace(q.Get("employeeId")),
		Timeline:   strings.TrimSpace(q.Get("timeline")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := evaluation.ParseStatus(raw)
		if !ok {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "status", Reason: "must be one of DRAFT, SUBMITTED, REVIEWED, ARCHIVED"}})
			return
		}
		filter.Status = status
	}

	if grouped, _ := strconv.ParseBool(q.Get("grouped")); grouped {
		buckets, err := h.Service.Grouped(r.Context(), user, filter)
		if err != nil {
			writeError(w, r, err, "evaluation_list_failed", "failed to list evaluations")
			return
		}
		out := make([]bucketView, 0, len(buckets))
		for _, b := range buckets {
			out = append(out, bucketView{Key: b.Key, Year: b.Year, Quarter: b.Quarter, Evaluations: evaluation.NewViews(b.Evaluations)})
		}
		api.Success(w, out, middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	result, err := h.Service.List(r.Context(), user, filter)
	if err != nil {
		writeError(w, r, err, "evaluation_list_failed", "failed to list evaluations")
		return
	}
	shared.SetPageHeaders(w, result.Total, page)
	api.Success(w, evaluation.NewViews(result.Items), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload evaluation.Submission
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	created, err := h.Service.SubmitEmployeeRatings(r.Context(), user, payload)
	if err != nil {
		writeError(w, r, err, "evaluation_submit_failed", "failed to submit evaluation")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.submit", audit.EntityEvaluation, created.ID, nil, created)
	h.notifyManagers(r.Context(), user, created)
	api.Created(w, evaluation.NewView(created), middleware.GetRequestID(r.Context()))
}

func (h *Handler) notifyManagers(ctx context.Context, user auth.Identity, e evaluation.Evaluation) {
	if h.Notify == nil || h.Projects == nil {
		return
	}
	managers, err := h.Projects.ManagerUserIDs(ctx, e.ProjectID)
	if err != nil {
		slog.Warn("evaluation submit manager lookup failed", "err", err)
		return
	}
	body := fmt.Sprintf("%s submitted a self-assessment for %s.", user.DisplayName(), evaluation.BucketKey(e))
	h.Notify.Broadcast(ctx, managers, user.UserID, notifications.TypeEvaluationSubmitted, "Evaluation submitted", body)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	v.Required("projectId", projectID, "is required")
	year, present, err := shared.QueryInt(r, "evaluationYear")
	if !present || err != nil {
		v.Add("evaluationYear", "must be a number")
	}
	quarter, present, err := shared.QueryInt(r, "evaluationQuarter")
	if !present || err != nil {
		v.Add("evaluationQuarter", "must be a number")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	result, err := h.Service.Check(r.Context(), user, projectID, year, quarter)
	if err != nil {
		writeError(w, r, err, "evaluation_check_failed", "failed to check evaluation")
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleOpenDrafts(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload evaluation.Period
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	run := func(ctx context.Context) (any, error) {
		return h.Service.OpenDrafts(ctx, user, payload)
	}
	var (
		details any
		err     error
	)
	key := fmt.Sprintf("%s:%d-Q%d", user.UserID, payload.Year, payload.Quarter)
	if h.Jobs != nil {
		details, err = h.Jobs.RunNow(r.Context(), evaluation.JobOpenDrafts, key, run)
	} else {
		details, err = run(r.Context())
	}
	if err != nil {
		writeError(w, r, err, "draft_open_failed", "failed to open drafts")
		return
	}
	result, _ := details.(evaluation.DraftResult)

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.drafts.open", audit.EntityEvaluation, "", nil, result)
	if h.Notify != nil && result.Created > 0 {
		body := fmt.Sprintf("Your %d Q%d self-evaluation is open.", payload.Year, payload.Quarter)
		h.Notify.Broadcast(r.Context(), result.Employees, user.UserID, notifications.TypeDraftOpened, "Evaluation opened", body)
	}
	api.Created(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleEmployeeEvaluations(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	items, err := h.Service.EmployeeEvaluations(r.Context(), user, chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, err, "evaluation_list_failed", "failed to list evaluations")
		return
	}
	api.Success(w, evaluation.NewViews(items), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleEmployeeAverages(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	averages, err := h.Service.EmployeeAverages(r.Context(), user, chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, err, "evaluation_averages_failed", "failed to compute averages")
		return
	}
	api.Success(w, averages, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	e, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, r, err, "evaluation_get_failed", "failed to load evaluation")
		return
	}
	api.Success(w, evaluation.NewView(e), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	e, data, err := h.Service.Report(r.Context(), user, chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, r, err, "report_failed", "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=evaluation-%s.pdf", e.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("report write failed", "err", err)
	}
}

func (h *Handler) handleManagerScore(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Competency string `json:"competency"`
		Score      int    `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	evaluationID := chi.URLParam(r, "evaluationID")
	updated, err := h.Service.SubmitManagerScore(r.Context(), user, evaluationID, payload.Competency, payload.Score)
	if err != nil {
		writeError(w, r, err, "manager_score_failed", "failed to save manager score")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.manager_score", audit.EntityEvaluation, updated.ID, nil, payload)
	api.Success(w, evaluation.NewView(updated), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload evaluation.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	reviewed, err := h.Service.Review(r.Context(), user, chi.URLParam(r, "evaluationID"), payload)
	if err != nil {
		writeError(w, r, err, "evaluation_review_failed", "failed to review evaluation")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.review", audit.EntityEvaluation, reviewed.ID, nil, reviewed)
	h.notifyEmployee(r.Context(), reviewed, notifications.TypeEvaluationReviewed, "Evaluation reviewed",
		fmt.Sprintf("Your %s evaluation has been reviewed by %s.", evaluation.BucketKey(reviewed), user.DisplayName()))
	api.Success(w, evaluation.NewView(reviewed), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	target, ok := evaluation.ParseStatus(payload.Status)
	if !ok {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "status", Reason: "must be one of DRAFT, SUBMITTED, REVIEWED, ARCHIVED"}})
		return
	}

	updated, err := h.Service.UpdateStatus(r.Context(), user, chi.URLParam(r, "evaluationID"), target)
	if err != nil {
		writeError(w, r, err, "evaluation_status_failed", "failed to update status")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.status", audit.EntityEvaluation, updated.ID, nil, map[string]any{"status": updated.Status})
	switch updated.Status {
	case evaluation.StatusReviewed:
		h.notifyEmployee(r.Context(), updated, notifications.TypeEvaluationReviewed, "Evaluation reviewed",
			fmt.Sprintf("Your %s evaluation has been reviewed.", evaluation.BucketKey(updated)))
	case evaluation.StatusArchived:
		h.notifyEmployee(r.Context(), updated, notifications.TypeEvaluationArchived, "Evaluation archived",
			fmt.Sprintf("Your %s evaluation has been archived.", evaluation.BucketKey(updated)))
	}
	api.Success(w, evaluation.NewView(updated), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	deleted, err := h.Service.Delete(r.Context(), user, chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, r, err, "evaluation_delete_failed", "failed to delete evaluation")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "evaluation.delete", audit.EntityEvaluation, deleted.ID, deleted, nil)
	api.Success(w, map[string]string{"status": "deleted", "id": deleted.ID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) notifyEmployee(ctx context.Context, e evaluation.Evaluation, ntype, title, body string) {
	if h.Notify == nil || e.EmployeeID == "" {
		return
	}
	if err := h.Notify.Create(ctx, e.EmployeeID, ntype, title, body); err != nil {
		slog.Warn("evaluation notification failed", "type", ntype, "err", err)
	}
}
