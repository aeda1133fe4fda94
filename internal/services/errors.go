// Package services implements the marketplace use-cases: profiles, listings,
// the transaction/chat/notification coordination, messaging and reviews.
// This file centralizes the service-level error values so handlers can map
// them to HTTP results consistently.
//
// Translation into user-facing messages or status codes belongs to the
// handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks validation failures. Wrapped errors carry the detail,
// e.g. "invalid input: title is required".
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Access errors.
var (
	// ErrForbidden is returned when the caller is not the owner or a
	// participant of the resource.
	ErrForbidden = errors.New("not allowed for this user")
)

// User errors.
var (
	ErrUserNotFound = errors.New("user not found")
)

// Listing errors.
var (
	ErrListingNotFound    = errors.New("listing not found")
	ErrListingUnavailable = errors.New("listing is not available")
)

// Transaction errors.
var (
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrSelfRequest is returned when an owner requests their own listing.
	ErrSelfRequest = errors.New("cannot request your own listing")

	// ErrSwapNotAllowed is returned for swap proposals on listings that do
	// not accept swaps.
	ErrSwapNotAllowed = errors.New("owner does not accept swaps for this listing")

	// ErrInvalidTransition is returned when the requested status cannot be
	// reached from the current one, or not by this participant.
	ErrInvalidTransition = errors.New("status transition not allowed")

	// ErrStatusConflict is returned when the transaction changed status
	// concurrently.
	ErrStatusConflict = errors.New("transaction status changed concurrently")
)

// Chat errors.
var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrSelfChat        = errors.New("cannot start a chat with yourself")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message too long")
	ErrMessageNotFound = errors.New("message not found")
)

// Notification errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// Review errors.
var (
	// ErrInvalidScore is returned for scores outside 1..5.
	ErrInvalidScore = errors.New("score must be between 1 and 5")

	// ErrReviewNotAllowed is returned when the transaction is not completed.
	ErrReviewNotAllowed = errors.New("only completed transactions can be reviewed")

	// ErrDuplicateReview is returned when the participant already reviewed
	// the transaction.
	ErrDuplicateReview = errors.New("review already exists")
)
