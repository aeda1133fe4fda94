// Package services – TransactionService
//
// This file implements the coordination core of the marketplace. A rental
// request, swap proposal or contact creates a transaction, the chat thread
// linked to it and a notification for the listing owner in a single database
// transaction. Status changes follow a fixed transition table and notify the
// counterpart.
//
// Events are published after commit; delivery failures never fail the call.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

// Request kinds.
const (
	RequestRent    = "rent"
	RequestSwap    = "swap"
	RequestContact = "contact"
)

// History tabs accepted by ListForUser.
const (
	TabAll       = "all"
	TabActive    = "active"
	TabCompleted = "completed"
	TabSwaps     = "swaps"
)

// RequestInput describes a renter's request on a listing. Dates default to a
// DefaultRentalDays window starting now.
type RequestInput struct {
	Kind           string
	StartDate      *time.Time
	EndDate        *time.Time
	PaymentMode    string
	IdempotencyKey string
}

// RequestResult is what a request created. Notification is nil on replays.
type RequestResult struct {
	Transaction  *domain.Transaction
	Chat         *domain.Chat
	Notification *domain.Notification
	Replayed     bool
}

// TransactionService coordinates transactions, their chats and the owner's
// notifications.
type TransactionService struct {
	DB     *gorm.DB
	Events events.Publisher

	DefaultRentalDays int
	IdempotencyTTL    time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *TransactionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Request opens a transaction on listingID for renterID.
func (s *TransactionService) Request(ctx context.Context, renterID, listingID string, in RequestInput) (res *RequestResult, err error) {
	ctx, span := observability.StartSpan(ctx, "services/transactions", "Request",
		attribute.String("user.id", renterID),
		attribute.String("listing.id", listingID),
		attribute.String("request.kind", in.Kind),
	)
	defer func() { observability.EndSpan(span, err) }()

	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = RequestRent
	}
	if kind != RequestRent && kind != RequestSwap && kind != RequestContact {
		return nil, invalidf("kind must be one of rent, swap, contact")
	}
	payment := strings.ToLower(strings.TrimSpace(in.PaymentMode))
	if payment == "" {
		payment = domain.PaymentOnline
	}
	if payment != domain.PaymentOnline && payment != domain.PaymentOffline {
		return nil, invalidf("payment_mode must be online or offline")
	}
	start, end, days, err := s.window(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	res = &RequestResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prior, err := replayedResource(ctx, tx, renterID, listingID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if prior != "" {
			res.Replayed = true
			res.Transaction, res.Chat, err = loadWithChat(ctx, tx, prior)
			return err
		}

		l, err := repo.GetListing(ctx, tx, listingID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrListingNotFound
		}
		if err != nil {
			return err
		}
		if l.OwnerID == renterID {
			return ErrSelfRequest
		}
		if !l.Available {
			return ErrListingUnavailable
		}
		if kind == RequestSwap && !l.SwapAllowed {
			return ErrSwapNotAllowed
		}

		t := &domain.Transaction{
			ListingID:    l.ID,
			ListingTitle: l.Title,
			OwnerID:      l.OwnerID,
			RenterID:     renterID,
			Type:         domain.TxTypeRent,
			Status:       domain.TxStatusPending,
			StartDate:    start,
			EndDate:      end,
			Amount:       math.Round(l.RentPerDay*float64(days)*100) / 100,
			PaymentMode:  payment,
		}
		if kind == RequestSwap {
			t.Type = domain.TxTypeSwap
			t.Amount = l.RentPerDay
		}
		if err := repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}

		c := &domain.Chat{
			TransactionID: strPtr(t.ID),
			ListingID:     l.ID,
			ListingTitle:  l.Title,
			OwnerID:       l.OwnerID,
			RenterID:      renterID,
		}
		if err := repo.CreateChat(ctx, tx, c); err != nil {
			return err
		}

		names, err := repo.UserNames(ctx, tx, renterID)
		if err != nil {
			return err
		}
		n := &domain.Notification{
			UserID:        l.OwnerID,
			Type:          domain.NotifyRentalRequest,
			TransactionID: strPtr(t.ID),
			ChatID:        strPtr(c.ID),
			Message:       requestMessage(kind, displayName(names, renterID), l.Title),
		}
		if kind == RequestSwap {
			n.Type = domain.NotifySwapProposal
		}
		if err := notify(ctx, tx, n); err != nil {
			return err
		}

		if err := rememberKey(ctx, tx, renterID, listingID, in.IdempotencyKey, t.ID, s.IdempotencyTTL); err != nil {
			return err
		}
		res.Transaction, res.Chat, res.Notification = t, c, n
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) && strings.TrimSpace(in.IdempotencyKey) != "" {
		// a concurrent request with the same key committed first
		return s.replay(ctx, renterID, listingID, in.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	t, c, n := res.Transaction, res.Chat, res.Notification
	observability.TransactionsCreated.WithLabelValues(t.Type).Inc()
	countNotification(n)
	evs := []events.Event{
		events.New(events.TransactionCreated, t, t.OwnerID, t.RenterID),
		events.New(events.ChatCreated, c, t.OwnerID, t.RenterID),
		events.New(events.NotificationCreated, n, n.UserID),
	}
	events.Emit(ctx, s.Events, append(evs, unreadEvents(ctx, s.DB, n.UserID)...)...)
	return res, nil
}

func (s *TransactionService) replay(ctx context.Context, userID, scope, key string) (*RequestResult, error) {
	prior, err := replayedResource(ctx, s.DB, userID, scope, key)
	if err != nil {
		return nil, err
	}
	if prior == "" {
		return nil, ErrStatusConflict
	}
	t, c, err := loadWithChat(ctx, s.DB, prior)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Transaction: t, Chat: c, Replayed: true}, nil
}

func loadWithChat(ctx context.Context, db *gorm.DB, txID string) (*domain.Transaction, *domain.Chat, error) {
	t, err := repo.GetTransaction(ctx, db, txID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	t.Status = domain.NormalizeTxStatus(t.Status)
	c, err := repo.GetChatByTransaction(ctx, db, txID)
	if errors.Is(err, repo.ErrNotFound) {
		return t, nil, nil
	}
	return t, c, err
}

// window resolves the rental dates and the number of billable days.
func (s *TransactionService) window(startIn, endIn *time.Time) (start, end time.Time, days int, err error) {
	defDays := s.DefaultRentalDays
	if defDays < 1 {
		defDays = 7
	}
	start = s.now()
	if startIn != nil && !startIn.IsZero() {
		start = startIn.UTC()
	}
	end = start.AddDate(0, 0, defDays)
	if endIn != nil && !endIn.IsZero() {
		end = endIn.UTC()
	}
	if !end.After(start) {
		return start, end, 0, invalidf("end_date must be after start_date")
	}
	days = int(math.Ceil(end.Sub(start).Hours() / 24))
	return start, end, max(days, 1), nil
}

func requestMessage(kind, who, title string) string {
	switch kind {
	case RequestSwap:
		return fmt.Sprintf("%s proposed a swap for %q", who, title)
	case RequestContact:
		return fmt.Sprintf("%s contacted you about %q", who, title)
	default:
		return fmt.Sprintf("%s requested to rent %q", who, title)
	}
}

// ListForUser returns userID's transactions as owner or renter, newest first.
func (s *TransactionService) ListForUser(ctx context.Context, userID, tab string, page, pageSize int) ([]domain.Transaction, int64, error) {
	var f repo.TransactionFilter
	switch strings.ToLower(strings.TrimSpace(tab)) {
	case "", TabAll:
	case TabActive:
		f.Statuses = []string{domain.TxStatusPending, domain.TxStatusActive, "PENDING"}
	case TabCompleted:
		f.Statuses = []string{domain.TxStatusCompleted}
	case TabSwaps:
		f.Type = domain.TxTypeSwap
	default:
		return nil, 0, invalidf("filter must be one of all, active, completed, swaps")
	}

	_, size, offset := pageBounds(page, pageSize)
	total, err := repo.CountTransactionsForUser(ctx, s.DB, userID, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}
	items, err := repo.ListTransactionsForUser(ctx, s.DB, userID, f, offset, size)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Status = domain.NormalizeTxStatus(items[i].Status)
	}
	return items, total, nil
}

// Get returns a transaction userID participates in.
func (s *TransactionService) Get(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	t, err := repo.GetTransaction(ctx, s.DB, txID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	t.Status = domain.NormalizeTxStatus(t.Status)
	return t, nil
}

// ChatFor returns the chat linked to a transaction userID participates in.
func (s *TransactionService) ChatFor(ctx context.Context, userID, txID string) (*domain.Chat, error) {
	if _, err := s.Get(ctx, userID, txID); err != nil {
		return nil, err
	}
	c, err := repo.GetChatByTransaction(ctx, s.DB, txID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	return c, err
}

// canTransition reports whether a participant may move a transaction from
// one status to another. Only the owner answers a pending request.
func canTransition(from, to string, isOwner bool) bool {
	switch from {
	case domain.TxStatusPending:
		return isOwner && (to == domain.TxStatusActive || to == domain.TxStatusDeclined)
	case domain.TxStatusActive:
		return to == domain.TxStatusCompleted || to == domain.TxStatusDisputed
	case domain.TxStatusDisputed:
		return to == domain.TxStatusCompleted
	}
	return false
}

// UpdateStatus moves a transaction to status on behalf of userID and notifies
// the counterpart. Asking for the current status returns the transaction
// unchanged.
func (s *TransactionService) UpdateStatus(ctx context.Context, userID, txID, status string) (t *domain.Transaction, err error) {
	ctx, span := observability.StartSpan(ctx, "services/transactions", "UpdateStatus",
		attribute.String("user.id", userID),
		attribute.String("transaction.id", txID),
		attribute.String("transaction.status", status),
	)
	defer func() { observability.EndSpan(span, err) }()

	to := domain.NormalizeTxStatus(status)
	if !domain.ValidTxStatus(to) {
		return nil, invalidf("unknown status %q", status)
	}

	var n *domain.Notification
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetTransaction(ctx, tx, txID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if !cur.IsParticipant(userID) {
			return ErrForbidden
		}
		stored := cur.Status
		from := domain.NormalizeTxStatus(stored)
		t = cur
		if from == to {
			t.Status = from
			return nil
		}
		if !canTransition(from, to, cur.OwnerID == userID) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
		}
		if to == domain.TxStatusActive {
			l, err := repo.GetListing(ctx, tx, cur.ListingID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if l != nil && !l.Available {
				return ErrListingUnavailable
			}
		}

		if err := repo.UpdateTransactionStatus(ctx, tx, txID, stored, to); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrStatusConflict
			}
			return err
		}
		t.Status = to

		switch {
		case to == domain.TxStatusActive:
			if err := setAvailable(ctx, tx, cur, false); err != nil {
				return err
			}
		case to == domain.TxStatusCompleted && holdsListing(from):
			if err := releaseListing(ctx, tx, cur); err != nil {
				return err
			}
		}

		var chatID *string
		if c, err := repo.GetChatByTransaction(ctx, tx, txID); err == nil {
			chatID = strPtr(c.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		recipient := cur.Counterpart(userID)
		names, err := repo.UserNames(ctx, tx, userID)
		if err != nil {
			return err
		}
		n = &domain.Notification{
			UserID:        recipient,
			Type:          domain.NotifyTransactionUpdate,
			TransactionID: strPtr(txID),
			ChatID:        chatID,
			Message:       statusMessage(to, recipient == cur.RenterID, displayName(names, userID), cur.ListingTitle),
		}
		return notify(ctx, tx, n)
	})
	if err != nil {
		return nil, err
	}
	if n == nil {
		return t, nil
	}

	observability.TransactionStatusChanges.WithLabelValues(to).Inc()
	countNotification(n)
	evs := []events.Event{
		events.New(events.TransactionUpdated, t, t.OwnerID, t.RenterID),
		events.New(events.NotificationCreated, n, n.UserID),
	}
	events.Emit(ctx, s.Events, append(evs, unreadEvents(ctx, s.DB, n.UserID)...)...)
	return t, nil
}

// holdsListing reports whether a transaction in status keeps the item off
// the market.
func holdsListing(status string) bool {
	return status == domain.TxStatusActive || status == domain.TxStatusDisputed
}

func setAvailable(ctx context.Context, tx *gorm.DB, t *domain.Transaction, available bool) error {
	err := repo.UpdateListing(ctx, tx, t.ListingID, t.OwnerID, map[string]any{"available": available})
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return nil
}

// releaseListing puts t's listing back on the market unless another
// transaction still holds it.
func releaseListing(ctx context.Context, tx *gorm.DB, t *domain.Transaction) error {
	open, err := repo.CountOpenTransactionsForListing(ctx, tx, t.ListingID, t.ID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	return setAvailable(ctx, tx, t, true)
}

func statusMessage(status string, toRenter bool, actor, title string) string {
	if toRenter {
		action := "updated"
		switch status {
		case domain.TxStatusActive:
			action = "approved"
		case domain.TxStatusDeclined:
			action = "declined"
		case domain.TxStatusCompleted:
			action = "marked as completed"
		case domain.TxStatusDisputed:
			action = "disputed"
		}
		return "Your rental request has been " + action
	}
	switch status {
	case domain.TxStatusCompleted:
		return fmt.Sprintf("%s marked the transaction for %q as completed", actor, title)
	case domain.TxStatusDisputed:
		return fmt.Sprintf("%s disputed the transaction for %q", actor, title)
	}
	return fmt.Sprintf("%s updated the transaction for %q", actor, title)
}

// Delete removes a transaction userID participates in together with its chat,
// messages and reviews. Deleting a rental that held the listing puts it back
// on the market.
func (s *TransactionService) Delete(ctx context.Context, userID, txID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "services/transactions", "Delete",
		attribute.String("user.id", userID),
		attribute.String("transaction.id", txID),
	)
	defer func() { observability.EndSpan(span, err) }()

	var t *domain.Transaction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetTransaction(ctx, tx, txID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if !cur.IsParticipant(userID) {
			return ErrForbidden
		}
		t = cur

		c, err := repo.GetChatByTransaction(ctx, tx, txID)
		switch {
		case err == nil:
			if err := repo.DeleteChat(ctx, tx, c.ID); err != nil {
				return err
			}
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if err := repo.DeleteReviewsForTransaction(ctx, tx, txID); err != nil {
			return err
		}
		if err := repo.DeleteTransaction(ctx, tx, txID); err != nil {
			return err
		}
		if holdsListing(domain.NormalizeTxStatus(cur.Status)) {
			return releaseListing(ctx, tx, cur)
		}
		return nil
	})
	if err != nil {
		return err
	}
	events.Emit(ctx, s.Events, events.New(events.TransactionDeleted, map[string]string{"id": txID}, t.OwnerID, t.RenterID))
	return nil
}
