// Package services – ChatService
//
// This file implements ChatService, which owns chat threads and their
// messages. Every read and write checks that the caller is a participant.
// Sending a message persists it, refreshes the chat preview and notifies the
// counterpart atomically; subscribers learn about it through events.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

// DefaultMaxMessageRunes caps message length when the service sets no limit.
const DefaultMaxMessageRunes = 2000

const previewRunes = 120

// ChatService manages chats and messages.
type ChatService struct {
	DB     *gorm.DB
	Events events.Publisher

	MaxMessageRunes int
	IdempotencyTTL  time.Duration
}

// ListPage returns a page of userID's chats, most recently active first.
func (s *ChatService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error) {
	_, size, offset := pageBounds(page, pageSize)
	total, err := repo.CountChats(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}
	items, err := repo.ListChatsPage(ctx, s.DB, userID, offset, size)
	return items, total, err
}

// Stats returns the chat count and latest activity of userID, for ETags.
func (s *ChatService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, s.DB, userID)
}

// Get returns a chat userID participates in.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	return participantChat(ctx, s.DB, userID, chatID)
}

func participantChat(ctx context.Context, db *gorm.DB, userID, chatID string) (*domain.Chat, error) {
	c, err := repo.GetChat(ctx, db, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// EnsureDirect finds or creates a chat between userID and otherID about
// listingID (which may be empty). The caller becomes the renter side unless
// they own the listing. The second result reports whether the chat is new.
func (s *ChatService) EnsureDirect(ctx context.Context, userID, otherID, listingID string) (c *domain.Chat, created bool, err error) {
	ctx, span := observability.StartSpan(ctx, "services/chats", "EnsureDirect",
		attribute.String("user.id", userID),
		attribute.String("listing.id", listingID),
	)
	defer func() { observability.EndSpan(span, err) }()

	otherID = strings.TrimSpace(otherID)
	listingID = strings.TrimSpace(listingID)
	if otherID == "" {
		return nil, false, invalidf("user_id is required")
	}
	if otherID == userID {
		return nil, false, ErrSelfChat
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, otherID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		existing, err := repo.FindDirectChat(ctx, tx, userID, otherID, listingID)
		if err == nil {
			c = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		c = &domain.Chat{ListingID: listingID, OwnerID: otherID, RenterID: userID}
		if listingID != "" {
			l, err := repo.GetListing(ctx, tx, listingID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrListingNotFound
			}
			if err != nil {
				return err
			}
			if l.OwnerID != userID && l.OwnerID != otherID {
				return invalidf("listing belongs to neither participant")
			}
			c.ListingTitle = l.Title
			if l.OwnerID == userID {
				c.OwnerID, c.RenterID = userID, otherID
			}
		}
		created = true
		return repo.CreateChat(ctx, tx, c)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		events.Emit(ctx, s.Events, events.New(events.ChatCreated, c, c.OwnerID, c.RenterID))
	}
	return c, created, nil
}

// Send posts text from userID into chatID. With an idempotency key a retried
// send returns the original message and replayed=true.
func (s *ChatService) Send(ctx context.Context, userID, chatID, text, idemKey string) (m *domain.Message, replayed bool, err error) {
	ctx, span := observability.StartSpan(ctx, "services/chats", "Send",
		attribute.String("user.id", userID),
		attribute.String("chat.id", chatID),
	)
	defer func() { observability.EndSpan(span, err) }()

	text = sanitizeMessage(text)
	if text == "" {
		return nil, false, ErrEmptyMessage
	}
	limit := s.MaxMessageRunes
	if limit <= 0 {
		limit = DefaultMaxMessageRunes
	}
	if utf8.RuneCountInString(text) > limit {
		return nil, false, ErrMessageTooLong
	}

	var (
		c *domain.Chat
		n *domain.Notification
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = participantChat(ctx, tx, userID, chatID); err != nil {
			return err
		}

		prior, err := replayedResource(ctx, tx, userID, chatID, idemKey)
		if err != nil {
			return err
		}
		if prior != "" {
			replayed = true
			m, err = repo.GetMessage(ctx, tx, prior)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		if m, err = repo.CreateMessage(ctx, tx, chatID, userID, text); err != nil {
			return err
		}
		if err := repo.TouchChat(ctx, tx, chatID, preview(text), m.CreatedAt); err != nil {
			return err
		}
		c.LastMessage, c.LastUpdated = preview(text), m.CreatedAt

		names, err := repo.UserNames(ctx, tx, userID)
		if err != nil {
			return err
		}
		n = &domain.Notification{
			UserID:        c.Counterpart(userID),
			Type:          domain.NotifyMessage,
			TransactionID: c.TransactionID,
			ChatID:        strPtr(c.ID),
			Message:       messageNotice(displayName(names, userID), c.ListingTitle),
		}
		if err := notify(ctx, tx, n); err != nil {
			return err
		}
		return rememberKey(ctx, tx, userID, chatID, idemKey, m.ID, s.IdempotencyTTL)
	})
	if errors.Is(err, repo.ErrDuplicate) && strings.TrimSpace(idemKey) != "" {
		prior, perr := replayedResource(ctx, s.DB, userID, chatID, idemKey)
		if perr != nil || prior == "" {
			return nil, false, err
		}
		m, err = repo.GetMessage(ctx, s.DB, prior)
		return m, err == nil, err
	}
	if err != nil {
		return nil, false, err
	}
	if replayed {
		return m, true, nil
	}

	observability.MessagesSent.Inc()
	countNotification(n)
	evs := []events.Event{
		events.New(events.MessageCreated, m, c.OwnerID, c.RenterID),
		events.New(events.NotificationCreated, n, n.UserID),
	}
	events.Emit(ctx, s.Events, append(evs, unreadEvents(ctx, s.DB, n.UserID)...)...)
	return m, false, nil
}

// ListMessages returns a page of a chat's messages, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, 0, err
	}
	_, size, offset := pageBounds(page, pageSize)
	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, offset, size)
	return items, total, err
}

// MessageStats returns the message count and newest timestamp of a chat
// userID participates in, for ETags.
func (s *ChatService) MessageStats(ctx context.Context, userID, chatID string) (int64, *time.Time, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, chatID)
}

// sanitizeMessage normalizes line endings, drops control characters other
// than newline and tab, and trims surrounding space.
func sanitizeMessage(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func preview(text string) string {
	line := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(line) <= previewRunes {
		return line
	}
	return string([]rune(line)[:previewRunes-1]) + "…"
}

func messageNotice(who, title string) string {
	if title == "" {
		return who + " sent you a message"
	}
	return fmt.Sprintf("%s sent you a message about %q", who, title)
}
