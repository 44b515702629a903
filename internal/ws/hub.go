package ws

import (
	"context"
	"encoding/json"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	presenceChannel = "chatrelay:presence"
	eventsChannel   = "chatrelay:events"

	DefaultSyncInterval = 15 * time.Second

	publishTimeout = 2 * time.Second
)

// Hub is the presence registry: which user is reachable through which
// connection. With Redis it also learns the users bound on other instances
// and routes events to them.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[uint64]*Client
	byConn  map[*Client]uint64
	clients map[*Client]struct{}
	remote  map[string]remoteNode

	// Redis client for Pub/Sub (horizontal scaling), nil when single-node
	rdb          *redis.Client
	nodeID       string
	syncInterval time.Duration
	changed      chan struct{}
}

type remoteNode struct {
	userIDs []uint64
	seenAt  time.Time
}

// NewHub creates a new Hub. rdb may be nil.
func NewHub(rdb *redis.Client, syncInterval time.Duration) *Hub {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	return &Hub{
		byUser:       make(map[uint64]*Client),
		byConn:       make(map[*Client]uint64),
		clients:      make(map[*Client]struct{}),
		remote:       make(map[string]remoteNode),
		rdb:          rdb,
		nodeID:       uuid.NewString(),
		syncInterval: syncInterval,
		changed:      make(chan struct{}, 1),
	}
}

// NodeID identifies this instance on the presence bus
func (h *Hub) NodeID() string {
	return h.nodeID
}

// Attach tracks an open connection
func (h *Hub) Attach(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("🔌 Client connected: %s from %s (total connections: %d)", client.ID, client.RemoteAddr, total)
}

// Detach forgets a connection. It does not touch user bindings.
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	log.Printf("❌ Client disconnected: %s", client.ID)
}

// Bind makes client the connection for userID and returns the client it
// replaced, if any. The replaced client is left open.
func (h *Hub) Bind(userID uint64, client *Client) *Client {
	h.mu.Lock()
	if prevUser, ok := h.byConn[client]; ok && prevUser != userID && h.byUser[prevUser] == client {
		delete(h.byUser, prevUser)
	}
	replaced := h.byUser[userID]
	h.byUser[userID] = client
	h.byConn[client] = userID
	h.mu.Unlock()

	if replaced == client {
		replaced = nil
	}
	if replaced != nil {
		log.Printf("🔁 User %d rebound from %s to %s", userID, replaced.ID, client.ID)
	}
	h.notifyChanged()
	return replaced
}

// Unbind drops client from the registry. The user binding is removed only if
// client is still the one bound to it; removed reports whether that happened.
func (h *Hub) Unbind(client *Client) (userID uint64, removed bool) {
	h.mu.Lock()
	userID, ok := h.byConn[client]
	if !ok {
		h.mu.Unlock()
		return 0, false
	}
	delete(h.byConn, client)
	if h.byUser[userID] == client {
		delete(h.byUser, userID)
		removed = true
	}
	h.mu.Unlock()

	if removed {
		h.notifyChanged()
	}
	return userID, removed
}

// Lookup returns the connection bound to userID on this instance
func (h *Hub) Lookup(userID uint64) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.byUser[userID]
	return client, ok
}

// Snapshot returns the ids of every user bound here or, per a fresh
// announcement, on another instance. Sorted ascending.
func (h *Hub) Snapshot() []uint64 {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.byUser))
	for userID := range h.byUser {
		ids = append(ids, userID)
	}
	cutoff := time.Now().Add(-3 * h.syncInterval)
	for _, node := range h.remote {
		if node.seenAt.Before(cutoff) {
			continue
		}
		ids = append(ids, node.userIDs...)
	}
	h.mu.RUnlock()

	slices.Sort(ids)
	return slices.Compact(ids)
}

// OnlineUserIDs is Snapshot under the name the services expect
func (h *Hub) OnlineUserIDs() []uint64 {
	return h.Snapshot()
}

func (h *Hub) localUserIDs() []uint64 {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.byUser))
	for userID := range h.byUser {
		ids = append(ids, userID)
	}
	h.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Stats returns the number of open connections and of locally bound users
func (h *Hub) Stats() (connections, users int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.byUser)
}

// Deliver hands event to the user's connection without blocking. A user bound
// on another instance is reached through Redis. Returns false when nobody
// accepted the event.
func (h *Hub) Deliver(userID uint64, event *model.WSEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return false
	}

	if client, ok := h.Lookup(userID); ok {
		return client.Enqueue(data)
	}
	if h.rdb == nil || !h.isRemote(userID) {
		return false
	}
	return h.publishToRedis(eventsChannel, &TargetedEvent{
		TargetUserID: userID,
		Event:        data,
	})
}

func (h *Hub) isRemote(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cutoff := time.Now().Add(-3 * h.syncInterval)
	for _, node := range h.remote {
		if !node.seenAt.Before(cutoff) && slices.Contains(node.userIDs, userID) {
			return true
		}
	}
	return false
}

// BroadcastPresence sends the current snapshot to every registered local
// connection, including ones another connection has since replaced
func (h *Hub) BroadcastPresence() {
	data, err := json.Marshal(&model.WSEvent{
		Type:    model.WSEventPresenceUpdate,
		Payload: model.PresenceUpdateEvent{OnlineUserIDs: h.Snapshot()},
	})
	if err != nil {
		log.Printf("Error marshaling broadcast event: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byConn))
	for client := range h.byConn {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.Enqueue(data)
	}
}

// Shutdown closes every open connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close()
	}
	log.Printf("🛑 Hub closed %d connections", len(clients))
}

func (h *Hub) notifyChanged() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// TargetedEvent wraps an encoded event with the user it is meant for
type TargetedEvent struct {
	TargetUserID uint64          `json:"target_user_id"`
	Event        json.RawMessage `json:"event"`
}

// NodeAnnouncement is the set of users bound on one instance
type NodeAnnouncement struct {
	NodeID        string   `json:"node_id"`
	OnlineUserIDs []uint64 `json:"online_user_ids"`
}

// Run keeps this instance's presence in sync with the others until ctx is
// done. Without Redis it only waits. It returns after the leave announcement
// is published and the subscriber has stopped, so the Redis client may be
// closed once Run is back.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}

	subscriberDone := make(chan struct{})
	go func() {
		defer close(subscriberDone)
		h.subscribeRedis(ctx)
	}()

	ticker := time.NewTicker(h.syncInterval)
	defer ticker.Stop()

	h.announce()
	for {
		select {
		case <-ctx.Done():
			// leave the cluster with an empty set so peers drop us at once
			h.publishToRedis(presenceChannel, &NodeAnnouncement{NodeID: h.nodeID, OnlineUserIDs: []uint64{}})
			<-subscriberDone
			return
		case <-h.changed:
			h.announce()
		case <-ticker.C:
			h.announce()
			h.expireRemote()
		}
	}
}

func (h *Hub) announce() {
	h.publishToRedis(presenceChannel, &NodeAnnouncement{
		NodeID:        h.nodeID,
		OnlineUserIDs: h.localUserIDs(),
	})
}

func (h *Hub) expireRemote() {
	cutoff := time.Now().Add(-3 * h.syncInterval)
	h.mu.Lock()
	for nodeID, node := range h.remote {
		if node.seenAt.Before(cutoff) {
			delete(h.remote, nodeID)
			log.Printf("⌛ Node %s presence expired", nodeID)
		}
	}
	h.mu.Unlock()
}

// publishToRedis publishes to Redis for cross-instance communication
func (h *Hub) publishToRedis(channel string, data interface{}) bool {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling for Redis: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.rdb.Publish(ctx, channel, jsonData).Err(); err != nil {
		log.Printf("Error publishing to Redis: %v", err)
		return false
	}
	return true
}

// subscribeRedis applies announcements from other instances and delivers
// events targeted at local users
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, presenceChannel, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Channel {
			case presenceChannel:
				h.handleAnnouncement(msg.Payload)
			case eventsChannel:
				h.handleTargeted(msg.Payload)
			}
		}
	}
}

func (h *Hub) handleAnnouncement(payload string) {
	var ann NodeAnnouncement
	if err := json.Unmarshal([]byte(payload), &ann); err != nil {
		log.Printf("Error unmarshaling Redis message: %v", err)
		return
	}
	if ann.NodeID == h.nodeID || ann.NodeID == "" {
		return
	}

	ids := slices.Clone(ann.OnlineUserIDs)
	slices.Sort(ids)

	h.mu.Lock()
	prev, known := h.remote[ann.NodeID]
	if len(ids) == 0 {
		delete(h.remote, ann.NodeID)
	} else {
		h.remote[ann.NodeID] = remoteNode{userIDs: ids, seenAt: time.Now()}
	}
	h.mu.Unlock()

	if known && slices.Equal(prev.userIDs, ids) {
		return
	}
	if !known && len(ids) == 0 {
		return
	}
	h.BroadcastPresence()
}

func (h *Hub) handleTargeted(payload string) {
	var targeted TargetedEvent
	if err := json.Unmarshal([]byte(payload), &targeted); err != nil {
		log.Printf("Error unmarshaling Redis message: %v", err)
		return
	}
	if client, ok := h.Lookup(targeted.TargetUserID); ok {
		client.Enqueue(targeted.Event)
	}
}
