package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

func newChatFixture(t *testing.T) (*ChatService, *recorder, *domain.Chat) {
	t.Helper()
	db := newTestDB(t)
	rec := &recorder{}
	seedUser(t, db, "owner", "Olive")
	seedUser(t, db, "renter", "Ravi")
	c := &domain.Chat{ListingID: "lst-1", ListingTitle: "Drill", OwnerID: "owner", RenterID: "renter"}
	if err := repo.CreateChat(context.Background(), db, c); err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return &ChatService{DB: db, Events: rec, IdempotencyTTL: time.Hour}, rec, c
}

func TestSend_PersistsTouchesAndNotifies(t *testing.T) {
	s, rec, c := newChatFixture(t)
	ctx := context.Background()

	m, replayed, err := s.Send(ctx, "renter", c.ID, "  Is it free\r\nthis weekend?\x00 ", "")
	if err != nil || replayed {
		t.Fatalf("Send: %+v %v %v", m, replayed, err)
	}
	if m.Text != "Is it free\nthis weekend?" || m.SenderID != "renter" {
		t.Fatalf("message = %+v", m)
	}

	got, err := s.Get(ctx, "owner", c.ID)
	if err != nil || got.LastMessage != "Is it free this weekend?" || !got.LastUpdated.Equal(m.CreatedAt) {
		t.Fatalf("chat preview = %+v %v", got, err)
	}

	ev, ok := rec.find(events.NotificationCreated)
	if !ok {
		t.Fatalf("events = %v", rec.types())
	}
	n := ev.Payload.(*domain.Notification)
	if n.UserID != "owner" || n.Type != domain.NotifyMessage || n.Message != `Ravi sent you a message about "Drill"` {
		t.Fatalf("notification = %+v", n)
	}
	if ev, _ := rec.find(events.MessageCreated); !ev.For("owner") || !ev.For("renter") {
		t.Fatalf("message event must reach both participants: %+v", ev)
	}
	if ev, _ := rec.find(events.NotificationCount); !ev.For("owner") || ev.For("renter") {
		t.Fatalf("count event must reach the recipient only: %+v", ev)
	}
}

func TestSend_Rejections(t *testing.T) {
	s, rec, c := newChatFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		user   string
		chatID string
		text   string
		want   error
	}{
		{"empty", "renter", c.ID, " \n\t ", ErrEmptyMessage},
		{"too long", "renter", c.ID, strings.Repeat("é", DefaultMaxMessageRunes+1), ErrMessageTooLong},
		{"stranger", "mallory", c.ID, "hi", ErrForbidden},
		{"missing chat", "renter", "chat-missing", "hi", ErrChatNotFound},
	}
	for _, tc := range cases {
		if _, _, err := s.Send(ctx, tc.user, tc.chatID, tc.text, ""); !errors.Is(err, tc.want) {
			t.Errorf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(rec.types()) != 0 {
		t.Fatalf("rejected sends must not publish: %v", rec.types())
	}
}

func TestSend_IdempotencyKeyReplays(t *testing.T) {
	s, rec, c := newChatFixture(t)
	ctx := context.Background()

	first, _, err := s.Send(ctx, "renter", c.ID, "hello", "idem-1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	rec.reset()
	again, replayed, err := s.Send(ctx, "renter", c.ID, "hello", "idem-1")
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("replay: %+v %v %v", again, replayed, err)
	}
	if len(rec.types()) != 0 {
		t.Fatalf("replay must not publish: %v", rec.types())
	}

	_, total, err := s.ListMessages(ctx, "owner", c.ID, 1, 20)
	if err != nil || total != 1 {
		t.Fatalf("messages after replay: %d %v", total, err)
	}
}

func TestSend_ExpiredKeyCanBeReused(t *testing.T) {
	s, _, c := newChatFixture(t)
	s.IdempotencyTTL = time.Millisecond
	ctx := context.Background()

	first, _, err := s.Send(ctx, "renter", c.ID, "hello", "idem-1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	again, replayed, err := s.Send(ctx, "renter", c.ID, "hello again", "idem-1")
	if err != nil || replayed || again.ID == first.ID {
		t.Fatalf("reuse after expiry: %+v %v %v", again, replayed, err)
	}
}

func TestListMessages_ChronologicalAndStats(t *testing.T) {
	s, _, c := newChatFixture(t)
	ctx := context.Background()
	for _, txt := range []string{"one", "two", "three"} {
		if _, _, err := s.Send(ctx, "owner", c.ID, txt, ""); err != nil {
			t.Fatalf("send %q: %v", txt, err)
		}
	}

	page, total, err := s.ListMessages(ctx, "renter", c.ID, 2, 2)
	if err != nil || total != 3 || len(page) != 1 || page[0].Text != "three" {
		t.Fatalf("page 2: %+v %d %v", page, total, err)
	}
	if _, _, err := s.ListMessages(ctx, "mallory", c.ID, 1, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger list: %v", err)
	}

	n, last, err := s.MessageStats(ctx, "owner", c.ID)
	if err != nil || n != 3 || last == nil {
		t.Fatalf("stats: %d %v %v", n, last, err)
	}
}

func TestEnsureDirect_FindOrCreate(t *testing.T) {
	s, rec, _ := newChatFixture(t)
	ctx := context.Background()
	seedUser(t, s.DB, "third", "Theo")
	l := seedListing(t, s.DB, "third", "Canoe", 30, false)

	c, created, err := s.EnsureDirect(ctx, "renter", "third", l.ID)
	if err != nil || !created {
		t.Fatalf("create: %+v %v %v", c, created, err)
	}
	if c.OwnerID != "third" || c.RenterID != "renter" || c.ListingTitle != "Canoe" || c.TransactionID != nil {
		t.Fatalf("direct chat = %+v", c)
	}
	if _, ok := rec.find(events.ChatCreated); !ok {
		t.Fatalf("chat.created not published")
	}

	again, created, err := s.EnsureDirect(ctx, "third", "renter", l.ID)
	if err != nil || created || again.ID != c.ID {
		t.Fatalf("find existing: %+v %v %v", again, created, err)
	}

	if _, _, err := s.EnsureDirect(ctx, "renter", "renter", ""); !errors.Is(err, ErrSelfChat) {
		t.Fatalf("self chat: %v", err)
	}
	if _, _, err := s.EnsureDirect(ctx, "renter", "ghost", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ghost: %v", err)
	}
	if _, _, err := s.EnsureDirect(ctx, "renter", "owner", l.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("foreign listing: %v", err)
	}
}

func TestChatListPage_OnlyParticipants(t *testing.T) {
	s, _, c := newChatFixture(t)
	ctx := context.Background()

	items, total, err := s.ListPage(ctx, "renter", 1, 20)
	if err != nil || total != 1 || items[0].ID != c.ID || len(items[0].Participants) != 2 {
		t.Fatalf("renter chats: %+v %d %v", items, total, err)
	}
	items, total, err = s.ListPage(ctx, "mallory", 1, 20)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("stranger chats: %+v %d %v", items, total, err)
	}
	if _, err := s.Get(ctx, "mallory", c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger get: %v", err)
	}
}

func TestPreviewAndSanitize(t *testing.T) {
	long := strings.Repeat("a", previewRunes+10)
	if got := preview(long); len([]rune(got)) != previewRunes || !strings.HasSuffix(got, "…") {
		t.Fatalf("preview = %q", got)
	}
	if got := sanitizeMessage("a\rb\tc\x07"); got != "a\nb\tc" {
		t.Fatalf("sanitize = %q", got)
	}
}
