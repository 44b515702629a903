package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"gorm.io/gorm"
)

// MessageRepository handles database operations for Message
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert persists a message in a single statement and fills in its id and
// server timestamp
func (r *MessageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		// postgres keeps microseconds; truncate so the returned value matches the row
		msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("messageRepo.Insert: %w", err)
	}
	return nil
}

// FindBetween returns the latest limit messages exchanged by the two users,
// oldest first, ordered by (created_at, id). Each message carries the device
// keys of both ends.
func (r *MessageRepository) FindBetween(ctx context.Context, userA, userB uint64, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("messages.*, COALESCE(s.device_key, '') AS sender_device_key, COALESCE(rc.device_key, '') AS receiver_device_key").
		Joins("LEFT JOIN identities s ON s.id = messages.sender_id").
		Joins("LEFT JOIN identities rc ON rc.id = messages.receiver_id").
		Where("(messages.sender_id = ? AND messages.receiver_id = ?) OR (messages.sender_id = ? AND messages.receiver_id = ?)", userA, userB, userB, userA).
		Order("messages.created_at DESC").
		Order("messages.id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("messageRepo.FindBetween: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
