package model

import (
	"encoding/json"
	"time"
)

// ========== WebSocket Events ==========

// WSEvent is an outbound frame
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// InboundEvent is a frame read from a client; Payload is decoded per Type
type InboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event types
const (
	WSEventRegister        = "register"
	WSEventGetPeers        = "get_peers"
	WSEventSendMessage     = "send_message"
	WSEventGetConversation = "get_conversation"
	WSEventHeartbeat       = "heartbeat"
)

// Outbound event types
const (
	WSEventRegistered      = "registered"
	WSEventRegisterFailed  = "register_failed"
	WSEventPeers           = "peers"
	WSEventMessageSent     = "message_sent"
	WSEventMessageReceived = "message_received"
	WSEventPresenceUpdate  = "presence_update"
	WSEventSendFailed      = "send_failed"
	WSEventConversation    = "conversation"
	WSEventError           = "error"
	WSEventHeartbeatAck    = "heartbeat_ack"
)

type RegisterPayload struct {
	DeviceKey string `json:"device_key"`
	DeviceInfo
}

type SendMessagePayload struct {
	ReceiverID       uint64 `json:"receiver_id"`
	Text             string `json:"text"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

type GetConversationPayload struct {
	PeerID uint64 `json:"peer_id"`
	Limit  int    `json:"limit,omitempty"`
}

type RegisteredEvent struct {
	UserID    uint64 `json:"user_id"`
	DeviceKey string `json:"device_key"`
	IsNew     bool   `json:"is_new"`
	Token     string `json:"token,omitempty"`
}

type RegisterFailedEvent struct {
	Reason    string `json:"reason"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type PeersEvent struct {
	Peers []Peer `json:"peers"`
}

type MessageSentEvent struct {
	Message          *Message `json:"message"`
	CorrelationToken string   `json:"correlation_token"`
	// Outcome is delivered_live or stored_only
	Outcome string `json:"outcome,omitempty"`
}

type MessageReceivedEvent struct {
	Message *Message `json:"message"`
}

type PresenceUpdateEvent struct {
	OnlineUserIDs []uint64 `json:"online_user_ids"`
}

type SendFailedEvent struct {
	Reason           string `json:"reason"`
	Code             string `json:"code"`
	Retryable        bool   `json:"retryable"`
	CorrelationToken string `json:"correlation_token"`
}

type ConversationEvent struct {
	PeerID   uint64    `json:"peer_id"`
	Messages []Message `json:"messages"`
}

type ErrorEvent struct {
	Request string `json:"request,omitempty"`
	Reason  string `json:"reason"`
	Code    string `json:"code"`
}

type HeartbeatAckEvent struct {
	At time.Time `json:"at"`
}

// ========== REST DTOs ==========

type RegisterRequest struct {
	DeviceKey   string `json:"device_key" binding:"required,max=255"`
	PushToken   string `json:"push_token"`
	DeviceModel string `json:"device_model" binding:"max=100"`
	OSVersion   string `json:"os_version" binding:"max=50"`
	AppVersion  string `json:"app_version" binding:"max=50"`
}

func (r RegisterRequest) Device() DeviceInfo {
	return DeviceInfo{
		PushToken:   r.PushToken,
		DeviceModel: r.DeviceModel,
		OSVersion:   r.OSVersion,
		AppVersion:  r.AppVersion,
	}
}

type SendMessageRequest struct {
	ReceiverID       uint64 `json:"receiver_id" binding:"required"`
	Text             string `json:"text" binding:"required"`
	CorrelationToken string `json:"correlation_token"`
}

type SendMessageResponse struct {
	Outcome          string   `json:"outcome"`
	Message          *Message `json:"message"`
	CorrelationToken string   `json:"correlation_token"`
}

type ConversationRequest struct {
	PeerID uint64 `form:"peer_id" binding:"required"`
	Limit  int    `form:"limit"`
}

type PeersResponse struct {
	Users []Peer `json:"users"`
}

type ConversationResponse struct {
	PeerID   uint64    `json:"peer_id"`
	Messages []Message `json:"messages"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
