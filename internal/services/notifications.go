package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

// NotificationService reads and acknowledges a user's notifications. Every
// change publishes the user's fresh unread count.
type NotificationService struct {
	DB     *gorm.DB
	Events events.Publisher
}

// List returns a page of userID's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error) {
	_, size, offset := pageBounds(page, pageSize)
	total, err := repo.CountNotifications(ctx, s.DB, userID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, unreadOnly, offset, size)
	return items, total, err
}

// UnreadCount returns how many notifications userID has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return repo.CountUnread(ctx, s.DB, userID)
}

// MarkRead flags one of userID's notifications as read. Notifications of
// other users are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notifID string) error {
	if err := repo.MarkNotificationRead(ctx, s.DB, notifID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	events.Emit(ctx, s.Events, unreadEvents(ctx, s.DB, userID)...)
	return nil
}

// MarkAllRead flags every notification of userID as read and returns how
// many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := repo.MarkAllRead(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		events.Emit(ctx, s.Events, unreadEvents(ctx, s.DB, userID)...)
	}
	return n, nil
}
