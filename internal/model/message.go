package model

import "time"

// Message is a persisted direct message. Rows are never updated.
type Message struct {
	ID         uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	SenderID   uint64    `json:"sender_id" gorm:"not null;index:idx_messages_pair,priority:1"`
	ReceiverID uint64    `json:"receiver_id" gorm:"not null;index:idx_messages_pair,priority:2"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"index;not null"`

	// Filled on conversation fetch from the identities table
	SenderDeviceKey   string `json:"sender_device_key,omitempty" gorm:"->;-:migration"`
	ReceiverDeviceKey string `json:"receiver_device_key,omitempty" gorm:"->;-:migration"`
}

func (Message) TableName() string {
	return "messages"
}
