package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/id"
)

// CreateNotification assigns an ID and timestamp when missing and inserts n.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		v, err := id.Generate(id.Notification)
		if err != nil {
			return err
		}
		n.ID = v
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

func userNotifications(db *gorm.DB, userID string, unreadOnly bool) *gorm.DB {
	q := db.Model(&domain.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	return q
}

// CountNotifications returns how many notifications userID has.
func CountNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool) (int64, error) {
	var n int64
	err := userNotifications(db.WithContext(ctx), userID, unreadOnly).Count(&n).Error
	return n, err
}

// CountUnread returns the number of unread notifications for userID.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return CountNotifications(ctx, db, userID, true)
}

// ListNotificationsPage returns the user's notifications, newest first.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := userNotifications(db.WithContext(ctx), userID, unreadOnly).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetNotification fetches a notification by ID, or ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, notifID string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ?", notifID).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkNotificationRead flags a single notification of userID as read. Marking
// an already-read notification succeeds.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, notifID, userID string) error {
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", notifID, userID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Notification{}).
			Where("id = ? AND user_id = ?", notifID, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// MarkAllRead flags every unread notification of userID as read and returns
// how many changed.
func MarkAllRead(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}
