// Package realtime fans domain events out to connected stream clients. It
// replaces client-side database listeners: a browser keeps one SSE
// connection open and receives its own new messages, chats and unread
// notification counts as they happen.
package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/id"
	"github.com/tbourn/rent-share-backend/internal/observability"
)

const (
	hubBuffer        = 1000
	clientBuffer     = 100
	defaultHeartbeat = 30 * time.Second
	clientIDPrefix   = "sse"
)

var (
	// ErrHubFull is returned by Publish when the broadcast queue is full.
	ErrHubFull = errors.New("realtime: event queue full")
	// ErrHubClosed is returned by Publish and Connect after Shutdown.
	ErrHubClosed = errors.New("realtime: hub closed")
)

// Client is one connected stream. Events is closed when the client is
// disconnected or the hub shuts down.
type Client struct {
	ID          string
	UserID      string
	Events      chan events.Event
	Done        chan struct{}
	ConnectedAt time.Time
}

// Hub broadcasts events to clients whose user is a recipient. Sends to
// clients never block: a slow client loses events rather than stalling the
// hub.
type Hub struct {
	log       zerolog.Logger
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]*Client

	queue   chan events.Event
	closeMu sync.RWMutex
	closed  bool

	started atomic.Bool
	stopped chan struct{}
}

// NewHub creates a hub. A heartbeat <= 0 uses 30s.
func NewHub(logger zerolog.Logger, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Hub{
		log:       logger.With().Str("component", "realtime").Logger(),
		heartbeat: heartbeat,
		clients:   make(map[string]*Client),
		queue:     make(chan events.Event, hubBuffer),
		stopped:   make(chan struct{}),
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown drains the
// queue. Call it once, in its own goroutine.
func (h *Hub) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	defer close(h.stopped)

	h.log.Info().Msg("stream hub starting")
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-h.queue:
			if !ok {
				h.closeAllClients()
				return
			}
			h.broadcast(ev)
		case <-ticker.C:
			h.broadcast(events.New(events.Heartbeat, nil))
		case <-ctx.Done():
			h.log.Info().Msg("stream hub stopping")
			h.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued and disconnects
// every client. It returns ctx.Err() if draining does not finish in time.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closeMu.Lock()
	if h.closed {
		h.closeMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.queue)
	h.closeMu.Unlock()

	if !h.started.Load() {
		for ev := range h.queue {
			h.broadcast(ev)
		}
		h.closeAllClients()
		return nil
	}

	select {
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		h.log.Warn().Msg("stream hub drain timed out")
		return ctx.Err()
	}
}

// Publish queues ev for broadcast. It implements events.Publisher.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	select {
	case h.queue <- ev:
		return nil
	default:
		return ErrHubFull
	}
}

// Connect registers a client receiving events addressed to userID.
func (h *Hub) Connect(userID string) (*Client, error) {
	h.closeMu.RLock()
	closed := h.closed
	h.closeMu.RUnlock()
	if closed {
		return nil, ErrHubClosed
	}

	cid, err := id.Generate(clientIDPrefix)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ID:          cid,
		UserID:      userID,
		Events:      make(chan events.Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	observability.StreamClients.Inc()

	h.log.Info().Str("client_id", c.ID).Str("user_id", userID).Int("total_clients", total).Msg("stream client connected")
	return c, nil
}

// Disconnect removes a client and closes its channels. Unknown IDs are ignored.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, clientID)
	total := len(h.clients)
	h.mu.Unlock()

	close(c.Done)
	close(c.Events)
	observability.StreamClients.Dec()

	h.log.Info().Str("client_id", clientID).Dur("duration", time.Since(c.ConnectedAt)).Int("total_clients", total).Msg("stream client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev events.Event) {
	var delivered, dropped int

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !ev.For(c.UserID) {
			continue
		}
		select {
		case c.Events <- ev:
			delivered++
		default:
			dropped++
			observability.EventsDropped.WithLabelValues("stream").Inc()
			h.log.Warn().Str("client_id", c.ID).Str("event_type", string(ev.Type)).Msg("dropped event for slow client")
		}
	}

	if ev.Type != events.Heartbeat {
		h.log.Debug().Str("event_type", string(ev.Type)).Int("delivered", delivered).Int("dropped", dropped).Msg("event broadcast")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		close(c.Done)
		close(c.Events)
		observability.StreamClients.Dec()
	}
	h.clients = make(map[string]*Client)
}
