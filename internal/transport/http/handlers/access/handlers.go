package accesshandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/auth"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/access/route", h.handleRoute)
}

type routeDecision struct {
	Path      string        `json:"path"`
	Decision  auth.Decision `json:"decision"`
	Dashboard string        `json:"dashboard,omitempty"`
}

// handleRoute answers the navigation gate for the caller. Anonymous callers
// are evaluated too, so the client can decide where to send them. A page
// that declares ?requiredRole= must pass the role guard after the path gate.
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := strings.TrimSpace(query.Get("path"))
	v := shared.NewValidator()
	v.Required("path", target, "is required")

	var required []auth.Role
	if raw := strings.TrimSpace(query.Get("requiredRole")); raw != "" {
		if role, ok := auth.ParseRole(raw); ok {
			required = append(required, role)
		} else {
			v.Add("requiredRole", "must be EMPLOYEE, MANAGER or ADMIN")
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	decision := auth.Decide(user, target)
	if decision.Allowed() && len(required) > 0 {
		decision = auth.RequireRole(user, required...)
	}
	out := routeDecision{Path: target, Decision: decision}
	if user.Authenticated() {
		out.Dashboard = auth.DashboardFor(user)
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}
