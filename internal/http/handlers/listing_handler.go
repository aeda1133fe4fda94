// Listing HTTP handlers.
//
// This file exposes REST endpoints for the catalogue:
//   - POST   /listings                (create)
//   - GET    /listings                (search: text, filters, proximity)
//   - GET    /listings/{id}           (read)
//   - PATCH  /listings/{id}           (owner update)
//   - DELETE /listings/{id}           (owner delete)
//   - POST   /listings/{id}/requests  (rent, swap or contact; idempotent)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/services"
)

//
// DTOs
//

// CreateListingRequest is the JSON payload for a new listing. Images and the
// video proof are CDN URLs returned by POST /uploads.
type CreateListingRequest struct {
	Title       string   `json:"title"        binding:"required,max=255"        example:"Camping tent (4 person)"`
	Description string   `json:"description"  binding:"max=5000"                example:"Used twice, no holes."`
	RentPerDay  float64  `json:"rent_per_day" binding:"gte=0"                   example:"12.5"`
	SwapAllowed bool     `json:"swap_allowed"                                   example:"true"`
	Category    string   `json:"category"     binding:"max=64"                  example:"outdoor"`
	Latitude    float64  `json:"latitude"     binding:"gte=-90,lte=90"          example:"37.9838"`
	Longitude   float64  `json:"longitude"    binding:"gte=-180,lte=180"        example:"23.7275"`
	Images      []string `json:"images"       binding:"max=10,dive,max=2048"`
	VideoProof  string   `json:"video_proof"  binding:"max=2048"`
	BlurHash    string   `json:"blurhash"     binding:"max=64"`
	Available   *bool    `json:"available"`
}

// UpdateListingRequest is a partial listing update; omitted fields are kept.
type UpdateListingRequest struct {
	Title       *string   `json:"title"        binding:"omitempty,min=1,max=255"`
	Description *string   `json:"description"  binding:"omitempty,max=5000"`
	RentPerDay  *float64  `json:"rent_per_day" binding:"omitempty,gte=0"`
	SwapAllowed *bool     `json:"swap_allowed"`
	Category    *string   `json:"category"     binding:"omitempty,max=64"`
	Latitude    *float64  `json:"latitude"     binding:"omitempty,gte=-90,lte=90"`
	Longitude   *float64  `json:"longitude"    binding:"omitempty,gte=-180,lte=180"`
	Images      *[]string `json:"images"       binding:"omitempty,max=10,dive,max=2048"`
	VideoProof  *string   `json:"video_proof"  binding:"omitempty,max=2048"`
	BlurHash    *string   `json:"blurhash"     binding:"omitempty,max=64"`
	Available   *bool     `json:"available"`
}

// SearchListingsParams are the query parameters of GET /listings.
type SearchListingsParams struct {
	Q        string   `form:"q"`
	Category string   `form:"category"`
	MinPrice *float64 `form:"min_price"  binding:"omitempty,gte=0"`
	MaxPrice *float64 `form:"max_price"  binding:"omitempty,gte=0"`
	SwapOnly bool     `form:"swap_only"`
	Lat      *float64 `form:"lat"        binding:"omitempty,gte=-90,lte=90"`
	Lng      *float64 `form:"lng"        binding:"omitempty,gte=-180,lte=180"`
	RadiusKM float64  `form:"radius_km"  binding:"gte=0"`
}

// SearchListingsResponse wraps a page of search hits and pagination
// information.
type SearchListingsResponse struct {
	Listings   []services.ListingHit `json:"listings"`
	Pagination Pagination            `json:"pagination"`
}

// CreateRequestRequest is the JSON payload of a rental request, swap proposal
// or contact. Dates default to a window starting now.
type CreateRequestRequest struct {
	Kind        string     `json:"kind"         binding:"omitempty,reqkind" example:"rent"`
	StartDate   *time.Time `json:"start_date"                               example:"2025-06-01T00:00:00Z"`
	EndDate     *time.Time `json:"end_date"                                 example:"2025-06-04T00:00:00Z"`
	PaymentMode string     `json:"payment_mode" binding:"omitempty,paymode" example:"online"`
}

// RequestCreatedResponse returns the transaction and its chat thread.
type RequestCreatedResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Chat        *domain.Chat        `json:"chat,omitempty"`
}

//
// Handlers
//

// CreateListing godoc
// @ID          createListing
// @Summary     Create a listing
// @Description Publishes an item for rent or swap. Listings are available unless `available` is false.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateListingRequest  true  "Listing"
//
// @Success     201  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not synced yet"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings [post]
func (h *Handlers) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	l, err := h.listings.Create(c.Request.Context(), userID(c), services.ListingInput{
		Title:       req.Title,
		Description: req.Description,
		RentPerDay:  req.RentPerDay,
		SwapAllowed: req.SwapAllowed,
		Category:    req.Category,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Images:      req.Images,
		VideoProof:  req.VideoProof,
		BlurHash:    req.BlurHash,
		Available:   req.Available,
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, l)
}

// SearchListings godoc
// @ID          searchListings
// @Summary     Search available listings
// @Description Without `q` or a location, results are newest first. `lat`+`lng` restrict results to `radius_km` and order them by distance (`distance_km` is set). `q` ranks by relevance over title, category and description (`score` is set).
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       q          query  string  false  "Free text"           example(tent)
// @Param       category   query  string  false  "Category"            example(outdoor)
// @Param       min_price  query  number  false  "Minimum rent per day"
// @Param       max_price  query  number  false  "Maximum rent per day"
// @Param       swap_only  query  bool    false  "Only swappable items"
// @Param       lat        query  number  false  "Latitude"
// @Param       lng        query  number  false  "Longitude"
// @Param       radius_km  query  number  false  "Search radius (km)"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.SearchListingsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings [get]
func (h *Handlers) SearchListings(c *gin.Context) {
	var p SearchListingsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	if (p.Lat == nil) != (p.Lng == nil) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lng must be given together")
		return
	}
	page, pageSize := clampPagination(c)

	q := services.SearchQuery{
		Q:        p.Q,
		Category: p.Category,
		MinPrice: p.MinPrice,
		MaxPrice: p.MaxPrice,
		SwapOnly: p.SwapOnly,
		RadiusKM: p.RadiusKM,
		Page:     page,
		PageSize: pageSize,
	}
	if p.Lat != nil {
		q.Near = &geo.Point{Lat: *p.Lat, Lng: *p.Lng}
	}

	hits, total, err := h.listings.Search(c.Request.Context(), q)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, SearchListingsResponse{Listings: hits, Pagination: newPagination(page, pageSize, total)})
}

// GetListing godoc
// @ID          getListing
// @Summary     Get a listing
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Listing ID"
//
// @Success     200  {object}  domain.Listing
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [get]
func (h *Handlers) GetListing(c *gin.Context) {
	l, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, l)
}

// UpdateListing godoc
// @ID          updateListing
// @Summary     Update a listing
// @Description Owner only. Omitted fields are left unchanged.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                         true  "Listing ID"
// @Param       body  body  handlers.UpdateListingRequest  true  "Fields to change"
//
// @Success     200  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [patch]
func (h *Handlers) UpdateListing(c *gin.Context) {
	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	l, err := h.listings.Update(c.Request.Context(), userID(c), c.Param("id"), services.ListingPatch{
		Title:       req.Title,
		Description: req.Description,
		RentPerDay:  req.RentPerDay,
		SwapAllowed: req.SwapAllowed,
		Category:    req.Category,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Images:      req.Images,
		VideoProof:  req.VideoProof,
		BlurHash:    req.BlurHash,
		Available:   req.Available,
	})
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, l)
}

// DeleteListing godoc
// @ID          deleteListing
// @Summary     Delete a listing
// @Description Owner only. Existing transactions keep the listing title.
// @Tags        Listings
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Listing ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [delete]
func (h *Handlers) DeleteListing(c *gin.Context) {
	if err := h.listings.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// CreateRequest godoc
// @ID          createRequest
// @Summary     Request a listing
// @Description Creates a pending transaction (rent, swap or contact), its chat thread and a notification for the owner in one step. Send an Idempotency-Key to make retries safe; a replay returns the original transaction with `Idempotency-Replayed: true`.
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id               path    string                         true   "Listing ID"
// @Param       Idempotency-Key  header  string                         false  "Idempotency key"  example(req-2f6c1a)
// @Param       body             body    handlers.CreateRequestRequest  false  "Request details"
//
// @Success     201  {object}  handlers.RequestCreatedResponse  "Created"
// @Success     200  {object}  handlers.RequestCreatedResponse  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true on replays"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or own listing"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Listing unavailable or swaps not accepted"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings/{id}/requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
			return
		}
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.txs.Request(c.Request.Context(), userID(c), c.Param("id"), services.RequestInput{
		Kind:           req.Kind,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		PaymentMode:    req.PaymentMode,
		IdempotencyKey: key,
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		markReplayed(c)
		status = http.StatusOK
	}
	ok(c, status, RequestCreatedResponse{Transaction: res.Transaction, Chat: res.Chat})
}
