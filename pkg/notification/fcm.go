package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PreviewLength is the maximum number of runes of message text put in a push
const PreviewLength = 100

// MessagePush is the payload fired when a message could only be stored
type MessagePush struct {
	Token       string
	RecipientID uint64
	SenderID    uint64
	MessageID   uint64
	TextPreview string
}

// NotificationService handles FCM notifications
type NotificationService struct {
	client *messaging.Client
}

// NewNotificationService creates a new FCM notification service.
// It returns nil when push is not configured or Firebase cannot be
// initialised; the relay then runs without push.
func NewNotificationService(ctx context.Context, credentialsFile string) *NotificationService {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, push notifications disabled")
		return nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		log.Printf("⚠️ Failed to initialize Firebase app: %v (push notifications disabled)", err)
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to get messaging client: %v", err)
		return nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &NotificationService{client: client}
}

// SendMessageNotification pushes a "new message" notification to one device
func (s *NotificationService) SendMessageNotification(ctx context.Context, push MessagePush) error {
	if s == nil || s.client == nil {
		return nil
	}

	message := &messaging.Message{
		Token: push.Token,
		Notification: &messaging.Notification{
			Title: "New message",
			Body:  push.TextPreview,
		},
		Data: map[string]string{
			"type":         "message_received",
			"recipient_id": strconv.FormatUint(push.RecipientID, 10),
			"sender_id":    strconv.FormatUint(push.SenderID, 10),
			"message_id":   strconv.FormatUint(push.MessageID, 10),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("error sending push to user %d: %w", push.RecipientID, err)
	}
	return nil
}

// Preview shortens text to at most max runes, marking the cut with an ellipsis
func Preview(text string, max int) string {
	text = strings.TrimSpace(text)
	if max < 1 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max-1]) + "…"
}
