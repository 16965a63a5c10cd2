package cataloghandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct {
	Service *catalog.Service
	Audit   shared.Auditor
}

func NewHandler(service *catalog.Service, auditSvc shared.Auditor) *Handler {
	return &Handler{Service: service, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/keqs", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Get("/columns", h.handleColumns)
		r.Get("/{keqID}", h.handleGet)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreate)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Put("/{keqID}", h.handleUpdate)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Delete("/{keqID}", h.handleDelete)
	})
}

// handleList returns the whole catalog, or the questions in force for a
// period when year and quarter are given.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	year, hasYear, err := shared.QueryInt(r, "year")
	if err != nil {
		v.Add("year", "must be a number")
	}
	quarter, hasQuarter, err := shared.QueryInt(r, "quarter")
	if err != nil {
		v.Add("quarter", "must be a number")
	}
	if hasYear != hasQuarter {
		v.Add("quarter", "year and quarter must be given together")
	}
	if hasQuarter && (quarter < 1 || quarter > 4) {
		v.Add("quarter", "must be between 1 and 4")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	var items []catalog.Competency
	if hasYear {
		items, err = h.Service.ListActive(r.Context(), catalog.Period{Year: year, Quarter: quarter})
	} else {
		items, err = h.Service.List(r.Context())
	}
	if err != nil {
		slog.Error("keq list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "keq_list_failed", "failed to list questions", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []catalog.Competency{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleColumns(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Columns(r.Context())
	if err != nil {
		slog.Error("keq columns failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "keq_list_failed", "failed to list questions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.Get(r.Context(), chi.URLParam(r, "keqID"))
	if err != nil {
		writeError(w, r, err, "keq_get_failed", "failed to load question")
		return
	}
	api.Success(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	created, err := h.Service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "keq_create_failed", "failed to create question")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "keq.create", audit.EntityKEQ, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	keqID := chi.URLParam(r, "keqID")
	before, err := h.Service.Get(r.Context(), keqID)
	if err != nil {
		writeError(w, r, err, "keq_update_failed", "failed to update question")
		return
	}
	updated, err := h.Service.Update(r.Context(), keqID, payload)
	if err != nil {
		writeError(w, r, err, "keq_update_failed", "failed to update question")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "keq.update", audit.EntityKEQ, updated.ID, before, updated)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	keqID := chi.URLParam(r, "keqID")
	if err := h.Service.Delete(r.Context(), keqID); err != nil {
		writeError(w, r, err, "keq_delete_failed", "failed to delete question")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "keq.delete", audit.EntityKEQ, keqID, nil, nil)
	api.Success(w, map[string]string{"status": "deleted", "id": keqID}, middleware.GetRequestID(r.Context()))
}

func writeError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	if errors.Is(err, catalog.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "question not found", middleware.GetRequestID(r.Context()))
		return
	}
	slog.Error(message, "err", err)
	api.Fail(w, http.StatusInternalServerError, code, message, middleware.GetRequestID(r.Context()))
}
