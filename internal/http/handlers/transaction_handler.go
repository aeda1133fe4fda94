// Transaction HTTP handlers.
//
// This file exposes the transaction history and lifecycle endpoints:
//   - GET    /transactions              (history, filtered by tab)
//   - GET    /transactions/{id}         (read)
//   - PUT    /transactions/{id}/status  (transition)
//   - DELETE /transactions/{id}         (delete with its chat)
//   - GET    /transactions/{id}/chat    (linked chat thread)
//
// Requests are created from a listing, see CreateRequest.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

// ListTransactionsParams are the query parameters of GET /transactions.
type ListTransactionsParams struct {
	Tab string `form:"tab" binding:"omitempty,txtab"`
}

// ListTransactionsResponse wraps a page of transactions and pagination
// information.
type ListTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// UpdateStatusRequest is the JSON payload of a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,txstatus" example:"active"`
}

// ListTransactions godoc
// @ID          listTransactions
// @Summary     List the caller's transactions
// @Description Transactions where the caller is owner or renter, newest first. `tab` narrows to active (pending or active), completed or swaps.
// @Tags        Transactions
// @Produce     json
// @Security    BearerAuth
//
// @Param       tab        query  string  false  "all|active|completed|swaps"  default(all)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListTransactionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown tab"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	var p ListTransactionsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.txs.ListForUser(c.Request.Context(), userID(c), p.Tab, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListTransactionsResponse{Transactions: items, Pagination: newPagination(page, pageSize, total)})
}

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Get a transaction
// @Tags        Transactions
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Transaction ID"
//
// @Success     200  {object}  domain.Transaction
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	t, err := h.txs.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateTransactionStatus godoc
// @ID          updateTransactionStatus
// @Summary     Change a transaction's status
// @Description pending→active|declined (owner only), active→completed|disputed, disputed→completed. Setting the current status again is a no-op. The counterpart is notified.
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                        true  "Transaction ID"
// @Param       body  body  handlers.UpdateStatusRequest  true  "Target status"
//
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Transaction not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Transition not allowed, listing already rented, or concurrent change"
// @Router      /transactions/{id}/status [put]
func (h *Handlers) UpdateTransactionStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	t, err := h.txs.UpdateStatus(c.Request.Context(), userID(c), c.Param("id"), domain.NormalizeTxStatus(req.Status))
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTransaction godoc
// @ID          deleteTransaction
// @Summary     Delete a transaction
// @Description Removes the transaction together with its chat and messages.
// @Tags        Transactions
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Transaction ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Transaction not found"
// @Router      /transactions/{id} [delete]
func (h *Handlers) DeleteTransaction(c *gin.Context) {
	if err := h.txs.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// GetTransactionChat godoc
// @ID          getTransactionChat
// @Summary     Get the chat of a transaction
// @Tags        Transactions
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Transaction ID"
//
// @Success     200  {object}  domain.Chat
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Transaction or chat not found"
// @Router      /transactions/{id}/chat [get]
func (h *Handlers) GetTransactionChat(c *gin.Context) {
	ch, err := h.txs.ChatFor(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ch)
}
