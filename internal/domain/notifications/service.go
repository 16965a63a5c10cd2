package notifications

import (
	"context"
	"log/slog"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store        StoreAPI
	Mailer       Mailer
	EmailEnabled bool
	DefaultFrom  string
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer, DefaultFrom: "no-reply@example.com"}
}

// Create stores an in-app notification and, when email is enabled, mails
// the user. Email failures are logged and never returned.
func (s *Service) Create(ctx context.Context, userID, ntype, title, body string) error {
	if err := s.store.CreateNotification(ctx, userID, ntype, title, body); err != nil {
		return err
	}

	if s.Mailer == nil || !s.EmailEnabled {
		return nil
	}

	email, err := s.store.UserEmail(ctx, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, email, title, body); err != nil {
		slog.Warn("notification email send failed", "err", err)
	}
	return nil
}

// Broadcast notifies each user once, skipping skipUserID.
func (s *Service) Broadcast(ctx context.Context, userIDs []string, skipUserID, ntype, title, body string) {
	seen := map[string]bool{skipUserID: true}
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		if err := s.Create(ctx, userID, ntype, title, body); err != nil {
			slog.Warn("notification create failed", "userId", userID, "err", err)
		}
	}
}

func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]Notification, error) {
	return s.store.ListNotifications(ctx, userID, filter)
}

func (s *Service) Count(ctx context.Context, userID string, filter Filter) (int, error) {
	return s.store.CountNotifications(ctx, userID, filter)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}
