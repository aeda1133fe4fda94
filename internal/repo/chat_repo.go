// Package repo implements the data persistence layer for the marketplace.
// This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction (pass tx) or on the pool. They follow the "thin
// repository" approach: no business logic, only persistence and query
// composition. Missing rows surface as ErrNotFound.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/id"
)

// CreateChat assigns an ID and timestamps when missing and inserts c.
func CreateChat(ctx context.Context, db *gorm.DB, c *domain.Chat) error {
	if c.ID == "" {
		v, err := id.Generate(id.Chat)
		if err != nil {
			return err
		}
		c.ID = v
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = now
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetChat fetches a chat by ID, or ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, chatID string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", chatID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByTransaction fetches the chat linked to txID, or ErrNotFound.
func GetChatByTransaction(ctx context.Context, db *gorm.DB, txID string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("transaction_id = ?", txID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindDirectChat returns the most recent chat between a and b about listingID
// (in either role), or ErrNotFound.
func FindDirectChat(ctx context.Context, db *gorm.DB, a, b, listingID string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("((owner_id = ? AND renter_id = ?) OR (owner_id = ? AND renter_id = ?))", a, b, b, a).
		Where("listing_id = ?", listingID).
		Order("last_updated DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChats returns the number of chats userID participates in.
func CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("owner_id = ? OR renter_id = ?", userID, userID).
		Count(&total).Error
	return total, err
}

// ListChatsPage returns a page of the user's chats, most recently active first.
func ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error) {
	var out []domain.Chat
	err := db.WithContext(ctx).
		Where("owner_id = ? OR renter_id = ?", userID, userID).
		Order("last_updated DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TouchChat records the latest message preview on a chat.
func TouchChat(ctx context.Context, db *gorm.DB, chatID, lastMessage string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{"last_message": lastMessage, "last_updated": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat and its messages. Messages are deleted explicitly
// so the result does not depend on foreign key enforcement being enabled.
func DeleteChat(ctx context.Context, db *gorm.DB, chatID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", chatID).Delete(&domain.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
