package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"github.com/quocanhngo/chatrelay/pkg/notification"
	"gorm.io/gorm"
)

const (
	DefaultConversationLimit = 50
	MaxConversationLimit     = 200

	pushTimeout = 10 * time.Second
)

// Outcome of a send
type Outcome string

const (
	OutcomeDeliveredLive    Outcome = "delivered_live"
	OutcomeStoredOnly       Outcome = "stored_only"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeUnknownRecipient Outcome = "unknown_recipient"
)

// Persisted reports whether the outcome wrote a message row
func (o Outcome) Persisted() bool {
	return o == OutcomeDeliveredLive || o == OutcomeStoredOnly
}

type SendInput struct {
	SenderID         uint64
	ReceiverID       uint64
	Text             string
	CorrelationToken string
}

// DeliveryResult is what the sender is acknowledged with. Err is set for the
// Invalid and UnknownRecipient outcomes.
type DeliveryResult struct {
	Outcome          Outcome
	Message          *model.Message
	CorrelationToken string
	Err              error
}

type ChatOptions struct {
	MaxMessageLength  int
	ConversationLimit int
	StoreTimeout      time.Duration
}

// ChatService is the send/deliver pipeline and conversation fetch
type ChatService struct {
	identities IdentityStore
	messages   MessageStore
	presence   Presence
	notifier   Notifier
	opts       ChatOptions
}

func NewChatService(
	identities IdentityStore,
	messages MessageStore,
	presence Presence,
	notifier Notifier,
	opts ChatOptions,
) *ChatService {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 4000
	}
	if opts.ConversationLimit <= 0 || opts.ConversationLimit > MaxConversationLimit {
		opts.ConversationLimit = DefaultConversationLimit
	}
	return &ChatService{
		identities: identities,
		messages:   messages,
		presence:   presence,
		notifier:   notifier,
		opts:       opts,
	}
}

// Send validates, persists and delivers one message. The returned error is
// only set when the store failed; rejected sends come back as a result.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*DeliveryResult, error) {
	if err := s.validate(in); err != nil {
		return &DeliveryResult{Outcome: OutcomeInvalid, CorrelationToken: in.CorrelationToken, Err: err}, nil
	}

	receiver, err := s.findReceiver(ctx, in.ReceiverID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DeliveryResult{
			Outcome:          OutcomeUnknownRecipient,
			CorrelationToken: in.CorrelationToken,
			Err:              apperror.UnknownRecipient("recipient does not exist"),
		}, nil
	}
	if err != nil {
		return nil, apperror.StoreUnavailable("message store unavailable", err)
	}

	msg := &model.Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
	}

	// Once started, the insert must not be abandoned because the sender went away.
	pctx, cancel := withTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	err = s.messages.Insert(pctx, msg)
	cancel()
	if err != nil {
		return nil, apperror.StoreUnavailable("message store unavailable", err)
	}

	result := &DeliveryResult{Message: msg, CorrelationToken: in.CorrelationToken}
	event := &model.WSEvent{
		Type:    model.WSEventMessageReceived,
		Payload: model.MessageReceivedEvent{Message: msg},
	}
	if s.presence != nil && s.presence.Deliver(in.ReceiverID, event) {
		result.Outcome = OutcomeDeliveredLive
		return result, nil
	}

	result.Outcome = OutcomeStoredOnly
	if receiver.PushToken != "" {
		s.push(receiver.PushToken, msg)
	}
	return result, nil
}

func (s *ChatService) validate(in SendInput) error {
	if in.SenderID == 0 {
		return apperror.Validation("sender_id is required")
	}
	if in.ReceiverID == 0 {
		return apperror.Validation("receiver_id is required")
	}
	if in.SenderID == in.ReceiverID {
		return apperror.Validation("cannot send a message to yourself")
	}
	if strings.TrimSpace(in.Text) == "" {
		return apperror.Validation("text is empty")
	}
	if utf8.RuneCountInString(in.Text) > s.opts.MaxMessageLength {
		return apperror.Validation("text is too long")
	}
	return nil
}

func (s *ChatService) findReceiver(ctx context.Context, id uint64) (*model.Identity, error) {
	cctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.identities.FindByID(cctx, id)
}

func (s *ChatService) push(token string, msg *model.Message) {
	if s.notifier == nil {
		return
	}
	p := notification.MessagePush{
		Token:       token,
		RecipientID: msg.ReceiverID,
		SenderID:    msg.SenderID,
		MessageID:   msg.ID,
		TextPreview: notification.Preview(msg.Text, notification.PreviewLength),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.notifier.SendMessageNotification(ctx, p); err != nil {
			log.Printf("⚠️ Push for message %d failed: %v", p.MessageID, err)
		}
	}()
}

// GetConversation returns the newest limit messages between two users in
// ascending (created_at, id) order
func (s *ChatService) GetConversation(ctx context.Context, userID, peerID uint64, limit int) ([]model.Message, error) {
	if userID == 0 || peerID == 0 {
		return nil, apperror.Validation("peer_id is required")
	}
	if limit <= 0 {
		limit = s.opts.ConversationLimit
	}
	if limit > MaxConversationLimit {
		limit = MaxConversationLimit
	}

	cctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	msgs, err := s.messages.FindBetween(cctx, userID, peerID, limit)
	if err != nil {
		return nil, apperror.StoreUnavailable("message store unavailable", err)
	}
	return msgs, nil
}
