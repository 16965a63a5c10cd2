package authhandler

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

type ProjectLookup interface {
	ManagedProjectIDs(ctx context.Context, userID string) ([]string, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)
}

// MembershipService backs employee self-assignment. Routes that need it
// answer 503 when it is nil.
type MembershipService interface {
	SetMemberships(ctx context.Context, userID string, projectIDs []string) ([]project.Project, error)
	MembershipsWithManagers(ctx context.Context, userID string) ([]project.Membership, error)
}

type Handler struct {
	Service     *auth.Service
	Projects    ProjectLookup
	Memberships MembershipService
	Audit       shared.Auditor
}

func NewHandler(service *auth.Service, projects ProjectLookup, auditSvc shared.Auditor) *Handler {
	return &Handler{Service: service, Projects: projects, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.With(middleware.RequireAuth).Get("/me", h.HandleMe)
		r.With(middleware.RequireAuth).Post("/change-password", h.handleChangePassword)
	})
	r.Route("/users", func(r chi.Router) {
		r.With(middleware.RequireRole(auth.RoleManager)).Get("/", h.handleListUsers)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreateUser)
		r.With(middleware.RequireAuth).Post("/change-password", h.handleChangePassword)
		r.With(middleware.RequireAuth).Put("/me/projects", h.handleSetMyProjects)
		r.With(middleware.RequireAuth).Get("/me/projects-with-managers", h.handleMyProjectsWithManagers)
	})
	r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/admin/managers/{userID}/reset-password", h.handleResetManagerPassword)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profile struct {
	User              auth.Identity `json:"user"`
	PrimaryRole       auth.Role     `json:"primaryRole,omitempty"`
	Dashboard         string        `json:"dashboard"`
	ManagedProjectIDs []string      `json:"managedProjectIds"`
	MemberProjectIDs  []string      `json:"memberProjectIds"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	token, user, err := h.Service.Login(r.Context(), payload.Email, payload.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Error("login failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}

	id := user.Identity()
	shared.RecordAudit(r, h.Audit, user.ID, "auth.login", audit.EntityUser, user.ID, nil, nil)
	api.Success(w, map[string]any{
		"token":     token,
		"user":      id,
		"dashboard": auth.DashboardFor(id),
	}, middleware.GetRequestID(r.Context()))
}

// HandleLogout is stateless: tokens expire on their own and the client
// drops its copy.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok && user.UserID != "" {
		shared.RecordAudit(r, h.Audit, user.UserID, "auth.logout", audit.EntityUser, user.UserID, nil, nil)
	}
	api.Success(w, map[string]string{"status": "logged_out", "redirect": auth.LoginPath}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	out := profile{
		User:              user,
		PrimaryRole:       user.Primary(),
		Dashboard:         auth.DashboardFor(user),
		ManagedProjectIDs: []string{},
		MemberProjectIDs:  []string{},
	}
	if h.Projects != nil && user.UserID != "" {
		if user.HasRole(auth.RoleManager) {
			if ids, err := h.Projects.ManagedProjectIDs(r.Context(), user.UserID); err != nil {
				slog.Warn("managed projects lookup failed", "userId", user.UserID, "err", err)
			} else if ids != nil {
				out.ManagedProjectIDs = ids
			}
		}
		if ids, err := h.Projects.MemberProjectIDs(r.Context(), user.UserID); err != nil {
			slog.Warn("member projects lookup failed", "userId", user.UserID, "err", err)
		} else if ids != nil {
			out.MemberProjectIDs = ids
		}
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var role auth.Role
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		parsed, ok := auth.ParseRole(raw)
		if !ok {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "role", Reason: "must be one of EMPLOYEE, MANAGER, ADMIN"}})
			return
		}
		role = parsed
	}

	users, err := h.Service.ListUsers(r.Context(), role)
	if err != nil {
		slog.Error("user list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "user_list_failed", "failed to list users", middleware.GetRequestID(r.Context()))
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	api.Success(w, users, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload auth.NewUser
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	created, err := h.Service.CreateUser(r.Context(), payload)
	if errors.Is(err, auth.ErrUserExists) {
		api.Fail(w, http.StatusConflict, "user_exists", "a user with this email already exists", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Error("user create failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", middleware.GetRequestID(r.Context()))
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "user.create", audit.EntityUser, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if user.UserID == "" {
		api.Fail(w, http.StatusForbidden, "forbidden", "this identity has no stored account", middleware.GetRequestID(r.Context()))
		return
	}

	var payload auth.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	token, updated, err := h.Service.ChangePassword(r.Context(), user.UserID, payload)
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "currentPassword", Reason: "does not match"}})
		return
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordReuse):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "newPassword", Reason: err.Error()}})
		return
	case errors.Is(err, auth.ErrUserNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	case err != nil:
		slog.Error("password change failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "password_change_failed", "failed to change password", requestID)
		return
	}

	id := updated.Identity()
	shared.RecordAudit(r, h.Audit, user.UserID, "auth.password.change", audit.EntityUser, user.UserID, nil, nil)
	api.Success(w, map[string]any{
		"token":     token,
		"user":      id,
		"dashboard": auth.DashboardFor(id),
	}, requestID)
}

func (h *Handler) handleResetManagerPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	targetID := chi.URLParam(r, "userID")
	temporary, target, err := h.Service.ResetManagerPassword(r.Context(), targetID)
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	case errors.Is(err, auth.ErrNotManager):
		api.Fail(w, http.StatusBadRequest, "not_a_manager", "only manager accounts can be reset here", requestID)
		return
	case err != nil:
		slog.Error("password reset failed", "userId", targetID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "password_reset_failed", "failed to reset password", requestID)
		return
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "user.password.reset", audit.EntityUser, target.ID, nil, map[string]any{"mustChangePassword": true})
	api.Success(w, map[string]any{
		"userId":             target.ID,
		"temporaryPassword":  temporary,
		"mustChangePassword": true,
	}, requestID)
}

type projectSelection struct {
	ProjectIDs []string `json:"projectIds"`
}

// handleSetMyProjects accepts either a bare JSON array of project ids or
// an object with a projectIds field.
func (h *Handler) handleSetMyProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Memberships == nil || user.UserID == "" {
		api.Fail(w, http.StatusServiceUnavailable, "memberships_unavailable", "project self-assignment is not available", middleware.GetRequestID(r.Context()))
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	var selection projectSelection
	if err := json.Unmarshal(raw, &selection.ProjectIDs); err != nil {
		if err := json.Unmarshal(raw, &selection); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
			return
		}
	}

	projects, err := h.Memberships.SetMemberships(r.Context(), user.UserID, selection.ProjectIDs)
	requestID := middleware.GetRequestID(r.Context())
	if errors.Is(err, project.ErrNotFound) {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "projectIds", Reason: err.Error()}})
		return
	}
	if err != nil {
		slog.Error("membership update failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "membership_update_failed", "failed to update projects", requestID)
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}

	shared.RecordAudit(r, h.Audit, user.UserID, "user.projects.set", audit.EntityUser, user.UserID, nil, selection)
	api.Success(w, projects, requestID)
}

func (h *Handler) handleMyProjectsWithManagers(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Memberships == nil || user.UserID == "" {
		api.Success(w, []project.Membership{}, middleware.GetRequestID(r.Context()))
		return
	}

	out, err := h.Memberships.MembershipsWithManagers(r.Context(), user.UserID)
	if err != nil {
		slog.Error("membership lookup failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "membership_lookup_failed", "failed to load projects", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}
