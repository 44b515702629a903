package handler

import (
	"context"
	"testing"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/repository"
	"github.com/quocanhngo/chatrelay/internal/service"
	"github.com/quocanhngo/chatrelay/internal/testutil"
	"github.com/quocanhngo/chatrelay/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rebindingStore runs onOffline right after the offline write lands
type rebindingStore struct {
	service.IdentityStore
	onOffline func()
}

func (s *rebindingStore) SetOffline(ctx context.Context, id uint64) error {
	err := s.IdentityStore.SetOffline(ctx, id)
	if s.onOffline != nil {
		s.onOffline()
	}
	return err
}

func TestSessionRelease_RebindDuringOfflineWriteKeepsUserOnline(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewIdentityRepository(testutil.NewDB(t))
	hub := ws.NewHub(nil, time.Second)

	identity := &model.Identity{DeviceKey: "D1", Online: true}
	require.NoError(t, repo.Create(ctx, identity))

	old := ws.NewClient(nil, 8)
	fresh := ws.NewClient(nil, 8)
	store := &rebindingStore{IdentityStore: repo}
	store.onOffline = func() { hub.Bind(identity.ID, fresh) }

	identities := service.NewIdentityService(store, hub, time.Second)
	session := NewSession(old, hub, identities, nil, nil)

	hub.Bind(identity.ID, old)
	session.release(identity.ID)

	got, ok := hub.Lookup(identity.ID)
	require.True(t, ok)
	assert.Same(t, fresh, got)

	stored, err := repo.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, stored.Online)
}

func TestSessionRelease_MarksOfflineWhenNobodyHoldsUser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewIdentityRepository(testutil.NewDB(t))
	hub := ws.NewHub(nil, time.Second)

	identity := &model.Identity{DeviceKey: "D1", Online: true}
	require.NoError(t, repo.Create(ctx, identity))

	client := ws.NewClient(nil, 8)
	session := NewSession(client, hub, service.NewIdentityService(repo, hub, time.Second), nil, nil)

	hub.Bind(identity.ID, client)
	session.release(identity.ID)

	_, ok := hub.Lookup(identity.ID)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)
}
