package peerreviewhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/domain/peerreview"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Notifier interface {
	Create(ctx context.Context, userID, ntype, title, body string) error
}

type Handler struct {
	Service *peerreview.Service
	Notify  Notifier
	Audit   shared.Auditor
}

func NewHandler(service *peerreview.Service, notify Notifier, auditSvc shared.Auditor) *Handler {
	return &Handler{Service: service, Notify: notify, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/peer-reviews", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreate)
		r.Put("/{reviewID}", h.handleUpdate)
		r.With(middleware.RequireRole(auth.RoleManager)).Delete("/{reviewID}", h.handleDelete)
		r.Get("/evaluation/{evaluationID}", h.handleByEvaluation)
		r.Get("/evaluation/{evaluationID}/summary", h.handleSummary)
		r.Get("/evaluation/{evaluationID}/reviewer/{reviewerID}", h.handleFind)
		r.Get("/reviewer/{reviewerID}", h.handleByReviewer)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	payload, ok := decodeInput(w, r)
	if !ok {
		return
	}

	created, ev, err := h.Service.Create(r.Context(), user, payload)
	if err != nil {
		writeError(w, r, err, "peer_review_create_failed", "failed to save peer review")
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "peer_review.create", audit.EntityPeerReview, created.ID, nil, created)
	if h.Notify != nil {
		body := fmt.Sprintf("%s left peer feedback on your %s evaluation.", user.DisplayName(), evaluation.BucketKey(ev))
		if err := h.Notify.Create(r.Context(), ev.EmployeeID, notifications.TypePeerReviewReceived, "Peer review received", body); err != nil {
			slog.Warn("peer review notification failed", "evaluationId", ev.ID, "err", err)
		}
	}
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	payload, ok := decodeInput(w, r)
	if !ok {
		return
	}

	reviewID := chi.URLParam(r, "reviewID")
	updated, err := h.Service.Update(r.Context(), user, reviewID, payload)
	if err != nil {
		writeError(w, r, err, "peer_review_update_failed", "failed to update peer review")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "peer_review.update", audit.EntityPeerReview, updated.ID, nil, updated)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	deleted, err := h.Service.Delete(r.Context(), user, chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, r, err, "peer_review_delete_failed", "failed to delete peer review")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "peer_review.delete", audit.EntityPeerReview, deleted.ID, deleted, nil)
	api.Success(w, map[string]string{"status": "deleted", "id": deleted.ID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleByEvaluation(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	items, err := h.Service.ForEvaluation(r.Context(), user, chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, r, err, "peer_review_list_failed", "failed to list peer reviews")
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleByReviewer(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	items, err := h.Service.ForReviewer(r.Context(), user, chi.URLParam(r, "reviewerID"))
	if err != nil {
		writeError(w, r, err, "peer_review_list_failed", "failed to list peer reviews")
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	review, err := h.Service.Find(r.Context(), user, chi.URLParam(r, "evaluationID"), chi.URLParam(r, "reviewerID"))
	if err != nil {
		writeError(w, r, err, "peer_review_get_failed", "failed to load peer review")
		return
	}
	api.Success(w, review, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	summary, err := h.Service.Summary(r.Context(), user, chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, r, err, "peer_review_summary_failed", "failed to summarize peer reviews")
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func decodeInput(w http.ResponseWriter, r *http.Request) (peerreview.Input, bool) {
	var payload peerreview.Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return peerreview.Input{}, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return peerreview.Input{}, false
	}
	return payload, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())

	var verr *evaluation.ValidationError
	if errors.As(err, &verr) {
		issues := make([]shared.ValidationIssue, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		shared.FailValidation(w, requestID, issues)
		return
	}

	switch {
	case errors.Is(err, peerreview.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, peerreview.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, peerreview.ErrDuplicate):
		api.Fail(w, http.StatusConflict, "duplicate_peer_review", err.Error(), requestID)
	case errors.Is(err, peerreview.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	default:
		slog.Error(message, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}
