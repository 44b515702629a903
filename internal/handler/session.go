package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/service"
	"github.com/quocanhngo/chatrelay/internal/ws"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateRegistered
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateRegistered:
		return "registered"
	default:
		return "closed"
	}
}

const presenceWriteTimeout = 5 * time.Second

// Session drives one WebSocket connection from connect through register to
// close. Events are handled one at a time in the connection's read loop, so
// a client's sends are persisted and acknowledged in the order it issued them.
type Session struct {
	client     *ws.Client
	hub        *ws.Hub
	identities *service.IdentityService
	chat       *service.ChatService
	auth       *service.AuthService

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     sessionState
	userID    uint64
	deviceKey string
}

func NewSession(client *ws.Client, hub *ws.Hub, identities *service.IdentityService, chat *service.ChatService, auth *service.AuthService) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client:     client,
		hub:        hub,
		identities: identities,
		chat:       chat,
		auth:       auth,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// UserID returns the bound user id, or 0 before registration
func (s *Session) UserID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) current() (sessionState, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.userID
}

// Handle processes one inbound event. It matches ws.MessageHandler.
func (s *Session) Handle(_ *ws.Client, event model.InboundEvent, err error) {
	state, _ := s.current()
	if state == stateClosed {
		return
	}
	if err != nil {
		s.sendError("", apperror.Validation("malformed event"))
		return
	}

	switch event.Type {
	case model.WSEventRegister:
		s.handleRegister(event.Payload)
	case model.WSEventGetPeers:
		s.handleGetPeers()
	case model.WSEventSendMessage:
		s.handleSendMessage(event.Payload)
	case model.WSEventGetConversation:
		s.handleGetConversation(event.Payload)
	case model.WSEventHeartbeat:
		s.handleHeartbeat()
	default:
		log.Printf("Unknown WebSocket event type: %s", event.Type)
		s.sendError(event.Type, apperror.Validation("unknown event type"))
	}
}

func (s *Session) handleRegister(raw json.RawMessage) {
	var payload model.RegisterPayload
	if err := decodePayload(raw, &payload); err != nil {
		s.registerFailed(apperror.Validation("invalid register payload"))
		return
	}

	// the durable online flag is written after Bind, see release
	res, err := s.identities.Resolve(s.ctx, payload.DeviceKey, payload.DeviceInfo, false)
	if err != nil {
		log.Printf("⚠️ Register failed for client %s: %v", s.client.ID, err)
		s.registerFailed(err)
		return
	}
	userID := res.Identity.ID

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	prevState, prevUser := s.state, s.userID
	s.state = stateRegistered
	s.userID = userID
	s.deviceKey = res.Identity.DeviceKey
	s.mu.Unlock()

	if prevState == stateRegistered && prevUser != userID {
		s.release(prevUser)
	}
	s.hub.Bind(userID, s.client)
	s.markOnline(userID)
	res.Identity.Online = true
	log.Printf("✅ Client %s registered as user %d (new=%t)", s.client.ID, userID, res.IsNew)

	registered, err := s.auth.Registered(res)
	if err != nil {
		log.Printf("⚠️ Token for user %d not issued: %v", userID, err)
		registered = &model.RegisteredEvent{UserID: userID, DeviceKey: res.Identity.DeviceKey, IsNew: res.IsNew}
	}
	s.send(model.WSEventRegistered, registered)

	s.hub.BroadcastPresence()
	s.handleGetPeers()
}

// release unbinds the connection from its previous user and clears the
// durable online flag unless another connection holds the user.
//
// A register marks the user online only after its Bind. So if a Bind lands
// while the offline write is in flight, either the second Lookup sees it and
// the flag is restored here, or the register's own write comes later.
func (s *Session) release(userID uint64) {
	if _, removed := s.hub.Unbind(s.client); !removed {
		return
	}
	s.hub.BroadcastPresence()
	if _, ok := s.hub.Lookup(userID); ok {
		return
	}
	s.markOffline(userID)
	if _, ok := s.hub.Lookup(userID); ok {
		log.Printf("🔁 User %d rebound while going offline, restoring online flag", userID)
		s.markOnline(userID)
	}
}

func (s *Session) markOffline(userID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := s.identities.MarkOffline(ctx, userID); err != nil {
		log.Printf("⚠️ Failed to mark user %d offline: %v", userID, err)
	}
}

func (s *Session) markOnline(userID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := s.identities.Heartbeat(ctx, userID); err != nil {
		log.Printf("⚠️ Failed to mark user %d online: %v", userID, err)
	}
}

func (s *Session) handleGetPeers() {
	userID, ok := s.requireRegistered(model.WSEventGetPeers)
	if !ok {
		return
	}
	peers, err := s.identities.ListPeers(s.ctx, userID)
	if err != nil {
		s.sendError(model.WSEventGetPeers, err)
		return
	}
	s.send(model.WSEventPeers, model.PeersEvent{Peers: peers})
}

func (s *Session) handleSendMessage(raw json.RawMessage) {
	var payload model.SendMessagePayload
	if err := decodePayload(raw, &payload); err != nil {
		s.sendFailed("", apperror.Validation("invalid send_message payload"))
		return
	}

	state, userID := s.current()
	if state != stateRegistered {
		s.sendFailed(payload.CorrelationToken, apperror.NotAuthenticated("register first"))
		return
	}

	res, err := s.chat.Send(s.ctx, service.SendInput{
		SenderID:         userID,
		ReceiverID:       payload.ReceiverID,
		Text:             payload.Text,
		CorrelationToken: payload.CorrelationToken,
	})
	if err != nil {
		log.Printf("⚠️ Send from user %d failed: %v", userID, err)
		s.sendFailed(payload.CorrelationToken, err)
		return
	}
	if !res.Outcome.Persisted() {
		s.sendFailed(res.CorrelationToken, res.Err)
		return
	}

	s.send(model.WSEventMessageSent, model.MessageSentEvent{
		Message:          res.Message,
		CorrelationToken: res.CorrelationToken,
		Outcome:          string(res.Outcome),
	})
}

func (s *Session) handleGetConversation(raw json.RawMessage) {
	var payload model.GetConversationPayload
	if err := decodePayload(raw, &payload); err != nil {
		s.sendError(model.WSEventGetConversation, apperror.Validation("invalid get_conversation payload"))
		return
	}

	userID, ok := s.requireRegistered(model.WSEventGetConversation)
	if !ok {
		return
	}

	msgs, err := s.chat.GetConversation(s.ctx, userID, payload.PeerID, payload.Limit)
	if err != nil {
		s.sendError(model.WSEventGetConversation, err)
		return
	}
	s.send(model.WSEventConversation, model.ConversationEvent{PeerID: payload.PeerID, Messages: msgs})
}

func (s *Session) handleHeartbeat() {
	userID, ok := s.requireRegistered(model.WSEventHeartbeat)
	if !ok {
		return
	}
	if err := s.identities.Heartbeat(s.ctx, userID); err != nil {
		s.sendError(model.WSEventHeartbeat, err)
		return
	}
	s.send(model.WSEventHeartbeatAck, model.HeartbeatAckEvent{At: time.Now().UTC()})
}

// Close runs the disconnect path. Only the first call has an effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	userID := s.userID
	s.state = stateClosed
	s.mu.Unlock()

	log.Printf("👋 Client %s closed while %s", s.client.ID, prev)

	s.cancel()
	if prev == stateRegistered {
		s.release(userID)
	}
	s.hub.Detach(s.client)
	s.client.Close()
}

func (s *Session) requireRegistered(request string) (uint64, bool) {
	state, userID := s.current()
	if state != stateRegistered {
		s.sendError(request, apperror.NotAuthenticated("register first"))
		return 0, false
	}
	return userID, true
}

func (s *Session) send(eventType string, payload interface{}) {
	s.client.SendEvent(&model.WSEvent{Type: eventType, Payload: payload})
}

func (s *Session) registerFailed(err error) {
	s.send(model.WSEventRegisterFailed, model.RegisterFailedEvent{
		Reason:    apperror.MessageOf(err),
		Code:      string(apperror.CodeOf(err)),
		Retryable: apperror.IsRetryable(err),
	})
}

func (s *Session) sendFailed(correlationToken string, err error) {
	s.send(model.WSEventSendFailed, model.SendFailedEvent{
		Reason:           apperror.MessageOf(err),
		Code:             string(apperror.CodeOf(err)),
		Retryable:        apperror.IsRetryable(err),
		CorrelationToken: correlationToken,
	})
}

func (s *Session) sendError(request string, err error) {
	s.send(model.WSEventError, model.ErrorEvent{
		Request: request,
		Reason:  apperror.MessageOf(err),
		Code:    string(apperror.CodeOf(err)),
	})
}

// decodePayload accepts a missing payload as an empty object
func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
