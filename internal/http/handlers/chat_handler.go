// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat threads:
//   - GET  /chats       (list, paginated, ETag support)
//   - POST /chats       (find or create a direct chat)
//   - GET  /chats/{id}  (read)
//
// Transaction chats are created with their transaction; see CreateRequest.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

//
// DTOs
//

// StartChatRequest is the JSON payload for starting a direct chat with
// another member, optionally about one of their listings.
type StartChatRequest struct {
	UserID    string `json:"user_id"    binding:"required,max=128" example:"uid-owner-42"`
	ListingID string `json:"listing_id" binding:"max=40"           example:"lst_V1StGXR8_Z5jdHi6B"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns a page of the caller's chats, most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"chats:uid:3:1717000000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChatsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, newest, err := h.chats.Stats(ctx, uid); err == nil {
		if notModified(c, "chats", pageScope(uid, page, pageSize), count, newest) {
			return
		}
	}

	items, total, err := h.chats.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: items, Pagination: newPagination(page, pageSize, total)})
}

// StartChat godoc
// @ID          startChat
// @Summary     Start a direct chat
// @Description Returns the existing chat between the caller and `user_id` about `listing_id`, or creates one.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.StartChatRequest  true  "Counterpart and optional listing"
//
// @Success     201  {object}  domain.Chat  "Created"
// @Success     200  {object}  domain.Chat  "Existing chat"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or chat with yourself"
// @Failure     404  {object}  handlers.ErrorResponse  "User or listing not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats [post]
func (h *Handlers) StartChat(c *gin.Context) {
	var req StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	ch, created, err := h.chats.EnsureDirect(c.Request.Context(), userID(c), req.UserID, req.ListingID)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, ch)
}

// GetChat godoc
// @ID          getChat
// @Summary     Get a chat
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Chat ID"
//
// @Success     200  {object}  domain.Chat
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	ch, err := h.chats.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ch)
}
