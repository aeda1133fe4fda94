// Package repo implements the data persistence layer for the marketplace.
// This file provides small aggregate queries used for conditional responses
// (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

// ChatsStats returns the number of chats userID participates in and the
// latest LastUpdated among them (nil when there are none).
func ChatsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdated *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chat{}).Where("owner_id = ? OR renter_id = ?", userID, userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// avoid MAX() -> TEXT in SQLite
	var row struct {
		LastUpdated time.Time
	}
	if err = q.Select("last_updated").Order("last_updated DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.LastUpdated, nil
}

// MessagesStats returns the number of messages in chatID and the newest
// CreatedAt (nil when empty).
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, maxCreated *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
