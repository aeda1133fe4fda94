// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /chats/{id}/messages   (send a message to the counterpart)
//   - GET  /chats/{id}/messages   (list paginated messages, oldest first)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a message was already
// stored for (user, chat, key), the handler returns that message with
// `Idempotency-Replayed: true` instead of sending it twice.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a chat message. The
// service trims the text and caps it at 2000 characters.
type PostMessageRequest struct {
	Text string `json:"text" binding:"required" example:"Is the tent still available this weekend?"`
}

// PostMessageResponse is the JSON envelope for a sent message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Stores the message, refreshes the chat preview and notifies the counterpart.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Chat ID"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.PostMessageResponse  "Sent"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true on replays"
// @Failure     400  {object}  handlers.ErrorResponse        "Empty or too long"
// @Failure     403  {object}  handlers.ErrorResponse        "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse        "Chat not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeEmptyMessage, "text required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	m, replayed, err := h.chats.Send(c.Request.Context(), userID(c), c.Param("id"), req.Text, key)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	if replayed {
		markReplayed(c)
		ok(c, http.StatusOK, PostMessageResponse{Message: m})
		return
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a chat (paginated)
// @Description Returns messages oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Chat ID"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse "Chat not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	chatID := c.Param("id")
	page, pageSize := clampPagination(c)

	count, newest, err := h.chats.MessageStats(ctx, uid, chatID)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if notModified(c, "msgs", pageScope(chatID, page, pageSize), count, newest) {
		return
	}

	items, total, err := h.chats.ListMessages(ctx, uid, chatID, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}
