package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Marketplace counters. Labels are limited to small closed sets (type,
// status) so cardinality stays bounded.
var (
	TransactionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentshare_transactions_created_total",
			Help: "Transactions created, by type.",
		},
		[]string{"type"},
	)

	TransactionStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentshare_transaction_status_changes_total",
			Help: "Transaction status transitions, by target status.",
		},
		[]string{"status"},
	)

	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentshare_messages_sent_total",
			Help: "Chat messages persisted.",
		},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentshare_notifications_created_total",
			Help: "Notifications created, by type.",
		},
		[]string{"type"},
	)

	ReviewsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentshare_reviews_created_total",
			Help: "Reviews left on completed transactions.",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentshare_events_dropped_total",
			Help: "Domain events that could not be delivered, by sink.",
		},
		[]string{"sink"},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rentshare_stream_clients",
			Help: "Currently connected event stream clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsCreated,
		TransactionStatusChanges,
		MessagesSent,
		NotificationsCreated,
		ReviewsCreated,
		EventsDropped,
		StreamClients,
	)
}
