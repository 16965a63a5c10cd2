package notificationshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/notifications"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Inbox interface {
	List(ctx context.Context, userID string, filter notifications.Filter) ([]notifications.Notification, error)
	Count(ctx context.Context, userID string, filter notifications.Filter) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	Inbox Inbox
}

func NewHandler(inbox Inbox) *Handler {
	return &Handler{Inbox: inbox}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

// handleList serves the caller's inbox, newest first. ?unread=true hides
// notifications already read; X-Unread-Count is always the unread total.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	user, ok := middleware.GetUser(ctx)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	filter := notifications.Filter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      page.Limit,
		Offset:     page.Offset,
	}

	items, err := h.Inbox.List(ctx, user.UserID, filter)
	if err != nil {
		slog.Error("notification list failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", reqID)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}

	total, err := h.Inbox.Count(ctx, user.UserID, filter)
	if err != nil {
		slog.Warn("notification count failed", "err", err)
	}
	shared.SetPageHeaders(w, total, page)
	if unread, err := h.Inbox.Count(ctx, user.UserID, notifications.Filter{UnreadOnly: true}); err == nil {
		w.Header().Set("X-Unread-Count", strconv.Itoa(unread))
	}
	api.Success(w, items, reqID)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	user, ok := middleware.GetUser(ctx)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	id := chi.URLParam(r, "notificationID")
	switch err := h.Inbox.MarkRead(ctx, user.UserID, id); {
	case errors.Is(err, notifications.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "notification not found", reqID)
	case err != nil:
		slog.Error("notification update failed", "notificationId", id, "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to update notification", reqID)
	default:
		api.Success(w, map[string]string{"id": id, "status": "read"}, reqID)
	}
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	user, ok := middleware.GetUser(ctx)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	updated, err := h.Inbox.MarkAllRead(ctx, user.UserID)
	if err != nil {
		slog.Error("notification bulk update failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to update notifications", reqID)
		return
	}
	api.Success(w, map[string]int{"updated": updated}, reqID)
}
