// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Generic codes mirror HTTP status semantics. Domain codes name business rule
// violations that clients are expected to branch on (for example showing
// "this item is no longer available" for listing_unavailable).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_transition",
//	  "message": "status transition not allowed"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/media"
	"github.com/tbourn/rent-share-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSelfRequest        = "self_request"
	ErrCodeSwapNotAllowed     = "swap_not_allowed"
	ErrCodeListingUnavailable = "listing_unavailable"
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodeStatusConflict     = "status_conflict"
	ErrCodeSelfChat           = "self_chat"
	ErrCodeEmptyMessage       = "empty_message"
	ErrCodeMessageTooLong     = "message_too_long"
	ErrCodeReviewNotAllowed   = "review_not_allowed"
	ErrCodeDuplicateReview    = "duplicate_review"

	ErrCodeMediaNotConfigured = "media_not_configured"
	ErrCodeUnsupportedMedia   = "unsupported_media_type"
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeUploadFailed       = "upload_failed"
	ErrCodeStreamUnavailable  = "stream_unavailable"
)

// errorMapping binds a service sentinel to its HTTP status and code.
type errorMapping struct {
	err    error
	status int
	code   string
}

// knownErrors is checked in order with errors.Is.
var knownErrors = []errorMapping{
	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidScore, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrSelfRequest, http.StatusBadRequest, ErrCodeSelfRequest},
	{services.ErrSelfChat, http.StatusBadRequest, ErrCodeSelfChat},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeEmptyMessage},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeMessageTooLong},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrListingNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrTransactionNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrChatNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrNotificationNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrSwapNotAllowed, http.StatusConflict, ErrCodeSwapNotAllowed},
	{services.ErrListingUnavailable, http.StatusConflict, ErrCodeListingUnavailable},
	{services.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition},
	{services.ErrStatusConflict, http.StatusConflict, ErrCodeStatusConflict},
	{services.ErrReviewNotAllowed, http.StatusConflict, ErrCodeReviewNotAllowed},
	{services.ErrDuplicateReview, http.StatusConflict, ErrCodeDuplicateReview},
	{media.ErrNotConfigured, http.StatusServiceUnavailable, ErrCodeMediaNotConfigured},
	{media.ErrUnsupportedType, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia},
	{media.ErrTooLarge, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
	{media.ErrUploadFailed, http.StatusBadGateway, ErrCodeUploadFailed},
}

// serviceError translates err into an error envelope. Unknown errors become a
// 500 with fallbackCode; their detail goes to the log, not the client.
func serviceError(c *gin.Context, err error, fallbackCode string) {
	for _, m := range knownErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	lg := middleware.LoggerFrom(c)
	lg.Error().Err(err).Str("route", c.FullPath()).Msg("unhandled service error")
	fail(c, http.StatusInternalServerError, fallbackCode, "internal server error")
}
