package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

func seedNotification(t *testing.T, s *NotificationService, user string, read bool, at time.Time) *domain.Notification {
	t.Helper()
	n := &domain.Notification{UserID: user, Type: domain.NotifyMessage, Message: "m", Read: read, CreatedAt: at}
	if err := repo.CreateNotification(context.Background(), s.DB, n); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return n
}

func TestNotifications_ListAndCount(t *testing.T) {
	s := &NotificationService{DB: newTestDB(t)}
	ctx := context.Background()
	base := fixedNow()
	seedNotification(t, s, "u1", false, base)
	newest := seedNotification(t, s, "u1", false, base.Add(time.Minute))
	seedNotification(t, s, "u1", true, base.Add(-time.Minute))
	seedNotification(t, s, "u2", false, base)

	items, total, err := s.List(ctx, "u1", false, 1, 20)
	if err != nil || total != 3 || items[0].ID != newest.ID {
		t.Fatalf("list: %+v %d %v", items, total, err)
	}
	_, total, err = s.List(ctx, "u1", true, 1, 20)
	if err != nil || total != 2 {
		t.Fatalf("unread list: %d %v", total, err)
	}
	if n, err := s.UnreadCount(ctx, "u1"); err != nil || n != 2 {
		t.Fatalf("unread = %d %v", n, err)
	}
}

func TestNotifications_MarkReadPublishesCount(t *testing.T) {
	rec := &recorder{}
	s := &NotificationService{DB: newTestDB(t), Events: rec}
	ctx := context.Background()
	a := seedNotification(t, s, "u1", false, fixedNow())
	seedNotification(t, s, "u1", false, fixedNow())
	other := seedNotification(t, s, "u2", false, fixedNow())

	if err := s.MarkRead(ctx, "u1", other.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("foreign notification: %v", err)
	}
	if err := s.MarkRead(ctx, "u1", a.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	ev, ok := rec.find(events.NotificationCount)
	if !ok || !ev.For("u1") || ev.Payload.(map[string]int64)["unread"] != 1 {
		t.Fatalf("count event = %+v", ev)
	}
	// already read is fine
	if err := s.MarkRead(ctx, "u1", a.ID); err != nil {
		t.Fatalf("MarkRead twice: %v", err)
	}

	rec.reset()
	n, err := s.MarkAllRead(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("MarkAllRead = %d %v", n, err)
	}
	if ev, _ := rec.find(events.NotificationCount); ev.Payload.(map[string]int64)["unread"] != 0 {
		t.Fatalf("count after read-all = %+v", ev)
	}

	rec.reset()
	if n, err := s.MarkAllRead(ctx, "u1"); err != nil || n != 0 || len(rec.types()) != 0 {
		t.Fatalf("no-op read-all: %d %v %v", n, err, rec.types())
	}
}
