package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/id"
)

// ListingFilter narrows listing queries. Zero values do not filter.
type ListingFilter struct {
	OwnerID       string
	AvailableOnly bool
	Category      string
	MinPrice      *float64
	MaxPrice      *float64
	SwapOnly      bool
	Box           *geo.Box
}

func (f ListingFilter) apply(q *gorm.DB) *gorm.DB {
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.AvailableOnly {
		q = q.Where("available = ?", true)
	}
	if f.Category != "" {
		q = q.Where("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.MinPrice != nil {
		q = q.Where("rent_per_day >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("rent_per_day <= ?", *f.MaxPrice)
	}
	if f.SwapOnly {
		q = q.Where("swap_allowed = ?", true)
	}
	if f.Box != nil {
		q = q.Where("latitude BETWEEN ? AND ?", f.Box.MinLat, f.Box.MaxLat).
			Where("longitude BETWEEN ? AND ?", f.Box.MinLng, f.Box.MaxLng)
	}
	return q
}

// CreateListing assigns an ID and timestamps when missing and inserts l.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	if l.ID == "" {
		v, err := id.Generate(id.Listing)
		if err != nil {
			return err
		}
		l.ID = v
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	return db.WithContext(ctx).Create(l).Error
}

// GetListing fetches a listing by ID, or ErrNotFound.
func GetListing(ctx context.Context, db *gorm.DB, listingID string) (*domain.Listing, error) {
	var l domain.Listing
	if err := db.WithContext(ctx).Where("id = ?", listingID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// CountListings returns how many listings match f.
func CountListings(ctx context.Context, db *gorm.DB, f ListingFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Listing{})).Count(&n).Error
	return n, err
}

// ListListingsPage returns listings matching f, newest first. A limit <= 0
// returns every match.
func ListListingsPage(ctx context.Context, db *gorm.DB, f ListingFilter, offset, limit int) ([]domain.Listing, error) {
	var out []domain.Listing
	q := f.apply(db.WithContext(ctx)).Order("created_at DESC, id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdateListing applies updates to a listing owned by ownerID. It returns
// ErrNotFound when no such listing exists for that owner.
func UpdateListing(ctx context.Context, db *gorm.DB, listingID, ownerID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Listing{}).
		Where("id = ? AND owner_id = ?", listingID, ownerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteListing removes a listing owned by ownerID, or returns ErrNotFound.
func DeleteListing(ctx context.Context, db *gorm.DB, listingID, ownerID string) error {
	res := db.WithContext(ctx).Where("id = ? AND owner_id = ?", listingID, ownerID).Delete(&domain.Listing{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
