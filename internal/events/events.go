// Package events carries marketplace domain events (new transactions, chat
// messages, notification counts) from the service layer to subscribers: the
// in-process stream hub and, when configured, a RabbitMQ topic exchange.
//
// Delivery is best effort. A failed publish is logged and counted but never
// fails the request that produced the event.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/rent-share-backend/internal/observability"
)

// Type names an event. It doubles as the AMQP routing key and the SSE event
// name.
type Type string

const (
	TransactionCreated  Type = "transaction.created"
	TransactionUpdated  Type = "transaction.updated"
	TransactionDeleted  Type = "transaction.deleted"
	ChatCreated         Type = "chat.created"
	MessageCreated      Type = "message.created"
	NotificationCreated Type = "notification.created"
	NotificationCount   Type = "notification.count"
	ReviewCreated       Type = "review.created"
	Heartbeat           Type = "heartbeat"
)

// Event is a single domain event. UserIDs lists the recipients; an empty list
// addresses every subscriber.
type Event struct {
	Type    Type      `json:"type"`
	UserIDs []string  `json:"user_ids,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// New builds an event stamped with the current time.
func New(t Type, payload any, userIDs ...string) Event {
	return Event{Type: t, UserIDs: userIDs, Payload: payload, At: time.Now().UTC()}
}

// For reports whether userID is a recipient of e.
func (e Event) For(userID string) bool {
	if len(e.UserIDs) == 0 {
		return true
	}
	for _, u := range e.UserIDs {
		if u == userID {
			return true
		}
	}
	return false
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes evs in order, logging failures instead of returning them.
// A nil publisher is a no-op.
func Emit(ctx context.Context, p Publisher, evs ...Event) {
	if p == nil {
		return
	}
	for _, ev := range evs {
		if err := p.Publish(ctx, ev); err != nil {
			observability.EventsDropped.WithLabelValues("publish").Inc()
			log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event publish failed")
		}
	}
}
