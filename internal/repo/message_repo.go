package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/id"
)

// CreateMessage inserts a message from senderID into chatID.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID, senderID, text string) (*domain.Message, error) {
	msgID, err := id.Generate(id.Message)
	if err != nil {
		return nil, err
	}
	m := &domain.Message{
		ID:        msgID,
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Chat").Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, msgID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", msgID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of messages in chatID.
func CountMessages(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages in chronological order.
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
