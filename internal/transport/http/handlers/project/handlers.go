package projecthandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/project"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct {
	Service *project.Service
	Audit   shared.Auditor
}

func NewHandler(service *project.Service, auditSvc shared.Auditor) *Handler {
	return &Handler{Service: service, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Get("/{projectID}", h.handleGet)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreate)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Delete("/{projectID}", h.handleDelete)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{projectID}/members", h.handleAddMember)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{projectID}/managers", h.handleAddManager)
	})
	r.With(middleware.RequireRole(auth.RoleManager)).Get("/manager/team", h.handleManagedTeams)
	r.With(middleware.RequireRole(auth.RoleManager)).Get("/manager/team/{projectID}", h.handleTeam)
}

type teamView struct {
	ProjectID   string            `json:"projectId"`
	ProjectName string            `json:"projectName"`
	Members     []project.Contact `json:"members"`
}

type assignmentRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	items, err := h.Service.ListFor(r.Context(), user)
	if err != nil {
		writeError(w, r, err, "project_list_failed", "failed to list projects")
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	p, err := h.Service.GetFor(r.Context(), user, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err, "project_get_failed", "failed to load project")
		return
	}
	api.Success(w, p, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload project.Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	created, err := h.Service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "project_create_failed", "failed to create project")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "project.create", audit.EntityProject, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	projectID := chi.URLParam(r, "projectID")
	if err := h.Service.Delete(r.Context(), projectID); err != nil {
		writeError(w, r, err, "project_delete_failed", "failed to delete project")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, "project.delete", audit.EntityProject, projectID, nil, nil)
	api.Success(w, map[string]string{"status": "deleted", "id": projectID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, "project.member.add", h.Service.AddMember)
}

func (h *Handler) handleAddManager(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, "project.manager.add", h.Service.AddManager)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request, action string, add func(ctx context.Context, projectID, userID string) error) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	projectID := chi.URLParam(r, "projectID")
	if err := add(r.Context(), projectID, payload.UserID); err != nil {
		writeError(w, r, err, "project_assign_failed", "failed to update project")
		return
	}
	shared.RecordAudit(r, h.Audit, user.UserID, action, audit.EntityProject, projectID, nil, payload)
	api.Success(w, map[string]string{"status": "assigned", "projectId": projectID, "userId": payload.UserID}, middleware.GetRequestID(r.Context()))
}

// handleManagedTeams lists the employees of every project the caller manages.
func (h *Handler) handleManagedTeams(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	ids, err := h.Service.ManagedProjectIDs(r.Context(), user.UserID)
	if err != nil {
		writeError(w, r, err, "team_list_failed", "failed to list teams")
		return
	}
	out := make([]teamView, 0, len(ids))
	for _, projectID := range ids {
		view, err := h.team(r, user, projectID)
		if err != nil {
			writeError(w, r, err, "team_list_failed", "failed to list teams")
			return
		}
		out = append(out, view)
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	view, err := h.team(r, user, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err, "team_get_failed", "failed to load team")
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) team(r *http.Request, user auth.Identity, projectID string) (teamView, error) {
	members, err := h.Service.TeamFor(r.Context(), user, projectID)
	if err != nil {
		return teamView{}, err
	}
	p, err := h.Service.Store.Get(r.Context(), projectID)
	if err != nil {
		return teamView{}, err
	}
	return teamView{ProjectID: p.ID, ProjectName: p.Name, Members: members}, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, project.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "project not found", requestID)
	case errors.Is(err, project.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.Is(err, project.ErrNameTaken):
		api.Fail(w, http.StatusConflict, "project_name_taken", "project name already exists", requestID)
	default:
		slog.Error(message, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}
