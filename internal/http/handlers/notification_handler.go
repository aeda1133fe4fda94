// Notification HTTP handlers.
//
//   - GET  /notifications               (list, newest first)
//   - GET  /notifications/unread-count  (badge count)
//   - POST /notifications/{id}/read     (mark one read)
//   - POST /notifications/read-all      (mark all read)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

// ListNotificationsParams are the query parameters of GET /notifications.
type ListNotificationsParams struct {
	UnreadOnly bool `form:"unread_only"`
}

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// UnreadCountResponse is the caller's unread notification count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread" example:"3"`
}

// MarkAllReadResponse reports how many notifications were marked read.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated" example:"3"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       unread_only  query  bool  false  "Only unread notifications"
// @Param       page         query  int   false  "Page number"     minimum(1) default(1)
// @Param       page_size    query  int   false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	var p ListNotificationsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unread_only must be a boolean")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.notifs.List(c.Request.Context(), userID(c), p.UnreadOnly, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Pagination: newPagination(page, pageSize, total)})
}

// UnreadCount godoc
// @ID          unreadNotificationCount
// @Summary     Count unread notifications
// @Description Live updates arrive as `notification.count` events on the stream.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	n, err := h.notifs.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Tags        Notifications
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Notification ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.notifs.MarkRead(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark all notifications read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.MarkAllReadResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notifs.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}
