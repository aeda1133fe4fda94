package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

// CreateReview inserts r and returns ErrDuplicate when the reviewer already
// reviewed the transaction.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Omit("Transaction").Create(r).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListReviewsFor returns reviews received by userID, newest first.
func ListReviewsFor(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Review, error) {
	var out []domain.Review
	err := db.WithContext(ctx).
		Where("reviewee_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountReviewsFor returns how many reviews userID received.
func CountReviewsFor(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Review{}).Where("reviewee_id = ?", userID).Count(&n).Error
	return n, err
}

// AverageScore returns the mean score userID received, or 0 with no reviews.
func AverageScore(ctx context.Context, db *gorm.DB, userID string) (float64, error) {
	var row struct {
		Avg *float64
	}
	err := db.WithContext(ctx).Model(&domain.Review{}).
		Select("AVG(score) AS avg").
		Where("reviewee_id = ?", userID).
		Scan(&row).Error
	if err != nil || row.Avg == nil {
		return 0, err
	}
	return *row.Avg, nil
}

// DeleteReviewsForTransaction removes every review attached to txID.
func DeleteReviewsForTransaction(ctx context.Context, db *gorm.DB, txID string) error {
	return db.WithContext(ctx).Where("transaction_id = ?", txID).Delete(&domain.Review{}).Error
}
