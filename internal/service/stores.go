package service

import (
	"context"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/notification"
)

const defaultStoreTimeout = 5 * time.Second

// IdentityStore is the durable table of device identities
type IdentityStore interface {
	Create(ctx context.Context, identity *model.Identity) error
	FindByID(ctx context.Context, id uint64) (*model.Identity, error)
	FindByDeviceKey(ctx context.Context, deviceKey string) (*model.Identity, error)
	Touch(ctx context.Context, id uint64, markOnline bool, info model.DeviceInfo) error
	SetOffline(ctx context.Context, id uint64) error
	ListExcept(ctx context.Context, id uint64) ([]model.Identity, error)
}

// MessageStore is the append-only message log
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	FindBetween(ctx context.Context, userA, userB uint64, limit int) ([]model.Message, error)
}

// Presence is the live side of the registry the services consult
type Presence interface {
	// OnlineUserIDs is the registry snapshot
	OnlineUserIDs() []uint64
	// Deliver hands event to the user's live connection without blocking and
	// reports whether one accepted it
	Deliver(userID uint64, event *model.WSEvent) bool
}

// Notifier fires push notifications for messages nobody was online to receive
type Notifier interface {
	SendMessageNotification(ctx context.Context, push notification.MessagePush) error
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
