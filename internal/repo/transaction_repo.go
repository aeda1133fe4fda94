package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/id"
)

// TransactionFilter narrows a user's transaction history.
type TransactionFilter struct {
	Statuses []string
	Type     string
}

// CreateTransaction assigns an ID and timestamps when missing and inserts t.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if t.ID == "" {
		v, err := id.Generate(id.Transaction)
		if err != nil {
			return err
		}
		t.ID = v
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return db.WithContext(ctx).Create(t).Error
}

// GetTransaction fetches a transaction by ID, or ErrNotFound.
func GetTransaction(ctx context.Context, db *gorm.DB, txID string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).Where("id = ?", txID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func userTransactions(db *gorm.DB, userID string, f TransactionFilter) *gorm.DB {
	q := db.Model(&domain.Transaction{}).Where("owner_id = ? OR renter_id = ?", userID, userID)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	return q
}

// CountTransactionsForUser counts transactions where userID is owner or renter.
func CountTransactionsForUser(ctx context.Context, db *gorm.DB, userID string, f TransactionFilter) (int64, error) {
	var n int64
	err := userTransactions(db.WithContext(ctx), userID, f).Count(&n).Error
	return n, err
}

// ListTransactionsForUser returns the user's transactions as owner or renter,
// newest first. A single query covers both roles so rows are never repeated.
func ListTransactionsForUser(ctx context.Context, db *gorm.DB, userID string, f TransactionFilter, offset, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	q := userTransactions(db.WithContext(ctx), userID, f).Order("created_at DESC, id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdateTransactionStatus moves a transaction from status `from` to `to`. The
// row is only changed if it still holds `from`, so concurrent transitions
// cannot both win; the loser gets ErrNotFound.
func UpdateTransactionStatus(ctx context.Context, db *gorm.DB, txID, from, to string) error {
	res := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", txID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a transaction by ID, or returns ErrNotFound.
func DeleteTransaction(ctx context.Context, db *gorm.DB, txID string) error {
	res := db.WithContext(ctx).Where("id = ?", txID).Delete(&domain.Transaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOpenTransactionsForListing counts transactions on listingID that keep
// the item out (active or disputed), ignoring exceptID.
func CountOpenTransactionsForListing(ctx context.Context, db *gorm.DB, listingID, exceptID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("listing_id = ? AND id <> ?", listingID, exceptID).
		Where("LOWER(status) IN ?", []string{domain.TxStatusActive, domain.TxStatusDisputed}).
		Count(&n).Error
	return n, err
}
