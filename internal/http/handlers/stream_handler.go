// Stream HTTP handler.
//
// GET /stream is a Server-Sent Events feed of the caller's live updates:
// new messages, chats, transactions and the unread notification count. Each
// event is written as `event: <type>` with the JSON event as data. Browsers
// cannot set headers on EventSource, so the route also accepts the token as
// ?access_token=.
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/http/middleware"
)

// StreamEvents godoc
// @ID          streamEvents
// @Summary     Live event stream (SSE)
// @Description Opens a text/event-stream. The first event is `connected`; `heartbeat` events keep idle connections open.
// @Tags        Stream
// @Produce     text/event-stream
// @Security    BearerAuth
//
// @Param       access_token  query  string  false  "Bearer token for clients that cannot set headers"
//
// @Success     200  {string}  string  "Event stream"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse  "Stream unavailable"
// @Router      /stream [get]
func (h *Handlers) StreamEvents(c *gin.Context) {
	if h.stream == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStreamUnavailable, "live updates are not available")
		return
	}
	client, err := h.stream.Connect(userID(c))
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStreamUnavailable, "live updates are not available")
		return
	}
	defer h.stream.Disconnect(client.ID)

	// the server WriteTimeout would otherwise cut the stream
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		middleware.LoggerFrom(c).Debug().Err(err).Msg("write deadline not cleared")
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"client_id": client.ID, "user_id": client.UserID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	gone := c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-client.Events:
			if !open {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
	if gone {
		middleware.LoggerFrom(c).Debug().Str("client_id", client.ID).Msg("stream client went away")
	}
}
