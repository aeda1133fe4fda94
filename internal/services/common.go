package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
	"github.com/tbourn/rent-share-backend/internal/utils"
)

// DefaultIdempotencyTTL applies when a service is built without a TTL.
const DefaultIdempotencyTTL = 24 * time.Hour

// replayedResource returns the resource ID stored for (userID, scope, key), or
// "" when the key is empty or unseen.
func replayedResource(ctx context.Context, tx *gorm.DB, userID, scope, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	rec, err := repo.GetIdempotency(ctx, tx, userID, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.ResourceID, nil
}

// rememberKey stores the created resource under the idempotency key. It runs
// in the same DB transaction as the create, so a concurrent duplicate rolls
// back with repo.ErrDuplicate. An expired record for the same key is dropped
// first since it still holds the unique index until the janitor runs.
func rememberKey(ctx context.Context, tx *gorm.DB, userID, scope, key, resourceID string, ttl time.Duration) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if err := repo.DeleteExpiredIdempotency(ctx, tx, userID, scope, key, time.Now().UTC()); err != nil {
		return err
	}
	_, err := repo.CreateIdempotency(ctx, tx, userID, scope, key, resourceID, http.StatusCreated, ttl)
	return err
}

// notify inserts n. Callers count it with countNotification once the
// surrounding DB transaction has committed.
func notify(ctx context.Context, tx *gorm.DB, n *domain.Notification) error {
	return repo.CreateNotification(ctx, tx, n)
}

func countNotification(n *domain.Notification) {
	if n != nil {
		observability.NotificationsCreated.WithLabelValues(n.Type).Inc()
	}
}

// unreadEvents builds a notification.count event per user with their fresh
// unread count. Count failures are logged and skipped.
func unreadEvents(ctx context.Context, db *gorm.DB, userIDs ...string) []events.Event {
	out := make([]events.Event, 0, len(userIDs))
	for _, uid := range userIDs {
		n, err := repo.CountUnread(ctx, db, uid)
		if err != nil {
			log.Warn().Err(err).Str("user_id", uid).Msg("unread count failed")
			continue
		}
		out = append(out, events.New(events.NotificationCount, map[string]int64{"unread": n}, uid))
	}
	return out
}

func displayName(names map[string]string, uid string) string {
	if n := strings.TrimSpace(names[uid]); n != "" {
		return n
	}
	return "Someone"
}

func strPtr(s string) *string { return &s }

// pageBounds clamps page/size and returns the offset as well.
func pageBounds(page, size int) (int, int, int) {
	page, size = utils.ClampPage(page, size)
	return page, size, utils.Offset(page, size)
}
