// User HTTP handlers.
//
// This file exposes the profile endpoints:
//   - POST  /users/me/sync        (create or refresh from identity claims)
//   - GET   /users/me             (own profile)
//   - PATCH /users/me             (partial update)
//   - PUT   /users/me/location    (last known position)
//   - GET   /users/{id}           (public profile)
//   - GET   /users/{id}/listings  (listings of a user, paginated)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/services"
	"github.com/tbourn/rent-share-backend/internal/sysutil"
)

//
// DTOs
//

// SyncProfileRequest optionally overrides the name and email taken from the
// token claims (e.g. when the identity provider exposes neither).
type SyncProfileRequest struct {
	Name  string `json:"name"  binding:"omitempty,max=255" example:"Maria P."`
	Email string `json:"email" binding:"omitempty,email"   example:"maria@example.com"`
}

// SyncProfileResponse wraps the profile and whether it was just created.
type SyncProfileResponse struct {
	User    *domain.User `json:"user"`
	Created bool         `json:"created"`
}

// UpdateProfileRequest is a partial profile update; omitted fields are kept.
type UpdateProfileRequest struct {
	Name       *string `json:"name"         binding:"omitempty,min=1,max=255" example:"Maria P."`
	Phone      *string `json:"phone"        binding:"omitempty,max=32"        example:"+30 690 000 0000"`
	Role       *string `json:"role"         binding:"omitempty,userrole"      example:"both"`
	IDProofURL *string `json:"id_proof_url" binding:"omitempty,max=2048"      example:"https://cdn.example.com/id/123.jpg"`
}

// UpdateLocationRequest is the caller's position in WGS84 degrees.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude"  binding:"required,gte=-90,lte=90"   example:"37.9838"`
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180" example:"23.7275"`
}

// PublicProfile is what other members see of a user.
type PublicProfile struct {
	ID       string  `json:"uid"`
	Name     string  `json:"name"`
	Verified bool    `json:"verified"`
	Rating   float64 `json:"rating"`
	Role     string  `json:"role,omitempty"`
}

// ListListingsResponse wraps a page of listings and pagination information.
type ListListingsResponse struct {
	Listings   []domain.Listing `json:"listings"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// SyncProfile godoc
// @ID          syncProfile
// @Summary     Create or refresh the caller's profile
// @Description Called after sign-in. Creates the profile on first use and refreshes name/email afterwards. Wallet, rating and verification are never reset.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.SyncProfileRequest  false  "Profile overrides"
//
// @Success     201  {object}  handlers.SyncProfileResponse  "Profile created"
// @Success     200  {object}  handlers.SyncProfileResponse  "Profile refreshed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/me/sync [post]
func (h *Handlers) SyncProfile(c *gin.Context) {
	var req SyncProfileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
			return
		}
	}

	ident := middleware.IdentityFrom(c)
	claims := services.ProfileClaims{
		Name:  sysutil.FirstNonEmpty(req.Name, ident.Name),
		Email: sysutil.FirstNonEmpty(req.Email, ident.Email),
	}

	u, created, err := h.users.Sync(c.Request.Context(), ident.UserID, claims)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, SyncProfileResponse{User: u, Created: created})
}

// GetMe godoc
// @ID          getMe
// @Summary     Get the caller's profile
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not synced yet"
// @Router      /users/me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Update the caller's profile
// @Description Partial update of name, phone, role (rent|swap|both) and ID proof URL.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.UpdateProfileRequest  true  "Fields to change"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), userID(c), services.ProfilePatch{
		Name:       req.Name,
		Phone:      req.Phone,
		Role:       req.Role,
		IDProofURL: req.IDProofURL,
	})
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateMyLocation godoc
// @ID          updateMyLocation
// @Summary     Store the caller's position
// @Description Used to center the map and default proximity search.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.UpdateLocationRequest  true  "Position"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Coordinates out of range"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Router      /users/me/location [put]
func (h *Handlers) UpdateMyLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	u, err := h.users.UpdateLocation(c.Request.Context(), userID(c), geo.Point{Lat: *req.Latitude, Lng: *req.Longitude})
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a member's public profile
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  handlers.PublicProfile
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, PublicProfile{
		ID:       u.ID,
		Name:     u.Name,
		Verified: u.Verified,
		Rating:   u.Rating,
		Role:     u.Role,
	})
}

// ListUserListings godoc
// @ID          listUserListings
// @Summary     List a member's listings
// @Description Owners see all their listings; everyone else only sees available ones.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path   string  true   "User ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListListingsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/listings [get]
func (h *Handlers) ListUserListings(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.listings.ListByOwner(c.Request.Context(), c.Param("id"), userID(c), page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListListingsResponse{Listings: items, Pagination: newPagination(page, pageSize, total)})
}
