package service

import (
	"context"
	"sync"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/notification"
)

type fakePresence struct {
	mu        sync.Mutex
	online    map[uint64]bool
	delivered map[uint64][]*model.WSEvent
}

func newFakePresence(online ...uint64) *fakePresence {
	p := &fakePresence{online: map[uint64]bool{}, delivered: map[uint64][]*model.WSEvent{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) OnlineUserIDs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := []uint64{}
	for id := range p.online {
		ids = append(ids, id)
	}
	return ids
}

func (p *fakePresence) Deliver(userID uint64, event *model.WSEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.delivered[userID] = append(p.delivered[userID], event)
	return true
}

func (p *fakePresence) deliveredTo(userID uint64) []*model.WSEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered[userID]
}

type fakeNotifier struct {
	pushes chan notification.MessagePush
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{pushes: make(chan notification.MessagePush, 8)}
}

func (n *fakeNotifier) SendMessageNotification(_ context.Context, push notification.MessagePush) error {
	n.pushes <- push
	return nil
}
