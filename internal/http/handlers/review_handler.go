// Review HTTP handlers.
//
// This file exposes the endpoints for ratings between transaction
// participants:
//   - POST /transactions/{id}/review  (rate the counterpart)
//   - GET  /users/{id}/reviews        (reviews a member received)
//
// Scores are constrained to 1..5 and only completed transactions can be
// reviewed, once per participant.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

// LeaveReviewRequest is the JSON payload for reviewing the counterpart.
type LeaveReviewRequest struct {
	// Score is the rating from 1 (worst) to 5 (best).
	Score   int    `json:"score"   binding:"required,min=1,max=5" example:"5"`
	Comment string `json:"comment" binding:"max=1000"             example:"Smooth handover, item as described."`
}

// ListReviewsResponse wraps a page of reviews and pagination information.
type ListReviewsResponse struct {
	Reviews    []domain.Review `json:"reviews"`
	Pagination Pagination      `json:"pagination"`
}

// LeaveReview godoc
// @ID          leaveReview
// @Summary     Review the counterpart of a transaction
// @Description Records a 1..5 score for the other participant of a completed transaction and refreshes their rating.
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                       true  "Transaction ID"
// @Param       body  body  handlers.LeaveReviewRequest  true  "Review payload"
//
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Transaction not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not completed or already reviewed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal server error"
// @Router      /transactions/{id}/review [post]
func (h *Handlers) LeaveReview(c *gin.Context) {
	var req LeaveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "score must be between 1 and 5")
		return
	}

	r, err := h.reviews.Leave(c.Request.Context(), userID(c), c.Param("id"), req.Score, req.Comment)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListUserReviews godoc
// @ID          listUserReviews
// @Summary     List reviews a member received
// @Tags        Reviews
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path   string  true   "User ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListReviewsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/reviews [get]
func (h *Handlers) ListUserReviews(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.reviews.ListFor(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListReviewsResponse{Reviews: items, Pagination: newPagination(page, pageSize, total)})
}
