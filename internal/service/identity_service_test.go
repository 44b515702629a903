package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/repository"
	"github.com/quocanhngo/chatrelay/internal/testutil"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func newIdentityService(t *testing.T, presence Presence) (*IdentityService, *repository.IdentityRepository) {
	t.Helper()
	repo := repository.NewIdentityRepository(testutil.NewDB(t))
	return NewIdentityService(repo, presence, time.Second), repo
}

func TestResolve_CreatesThenReuses(t *testing.T) {
	svc, _ := newIdentityService(t, nil)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "D1", model.DeviceInfo{}, true)
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.True(t, first.Identity.Online)

	second, err := svc.Resolve(ctx, "  D1 ", model.DeviceInfo{PushToken: "tok"}, true)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)
}

func TestResolve_WithoutMarkOnline(t *testing.T) {
	svc, repo := newIdentityService(t, nil)
	ctx := context.Background()

	res, err := svc.Resolve(ctx, "D1", model.DeviceInfo{}, false)
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)
}

func TestResolve_RejectsBlankKey(t *testing.T) {
	svc, _ := newIdentityService(t, nil)

	for _, key := range []string{"", "   "} {
		_, err := svc.Resolve(context.Background(), key, model.DeviceInfo{}, true)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	}
}

func TestResolve_ConcurrentFirstRegistration(t *testing.T) {
	svc, repo := newIdentityService(t, nil)
	ctx := context.Background()

	const n = 16
	ids := make([]uint64, n)
	var created atomic.Int32

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := svc.Resolve(ctx, "shared", model.DeviceInfo{}, true)
			if err != nil {
				return err
			}
			ids[i] = res.Identity.ID
			if res.IsNew {
				created.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), created.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	peers, err := repo.ListExcept(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

// racingStore loses the insert race to another process once
type racingStore struct {
	IdentityStore
	finds   int
	winner  *model.Identity
	touched []uint64
}

func (s *racingStore) FindByDeviceKey(_ context.Context, _ string) (*model.Identity, error) {
	s.finds++
	if s.finds == 1 {
		return nil, gorm.ErrRecordNotFound
	}
	w := *s.winner
	return &w, nil
}

func (s *racingStore) Create(_ context.Context, _ *model.Identity) error {
	return apperror.Wrap(apperror.CodeDuplicateIdentity, "device key already registered", gorm.ErrDuplicatedKey)
}

func (s *racingStore) Touch(_ context.Context, id uint64, _ bool, _ model.DeviceInfo) error {
	s.touched = append(s.touched, id)
	return nil
}

func TestResolve_RecoversFromDuplicateInsert(t *testing.T) {
	store := &racingStore{winner: &model.Identity{ID: 7, DeviceKey: "D1"}}
	svc := NewIdentityService(store, nil, time.Second)

	res, err := svc.Resolve(context.Background(), "D1", model.DeviceInfo{}, true)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Equal(t, uint64(7), res.Identity.ID)
	assert.True(t, res.Identity.Online)
	assert.Equal(t, []uint64{7}, store.touched)
}

// slowStore holds every lookup until release is closed, or until the lookup's
// own context ends
type slowStore struct {
	IdentityStore
	entered chan struct{}
	release chan struct{}
	finds   atomic.Int32
	touches atomic.Int32
}

func (s *slowStore) FindByDeviceKey(ctx context.Context, deviceKey string) (*model.Identity, error) {
	if s.finds.Add(1) == 1 {
		close(s.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return &model.Identity{ID: 3, DeviceKey: deviceKey}, nil
	}
}

func (s *slowStore) Touch(context.Context, uint64, bool, model.DeviceInfo) error {
	s.touches.Add(1)
	return nil
}

func TestResolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := &slowStore{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewIdentityService(store, nil, 5*time.Second)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = svc.Resolve(firstCtx, "D1", model.DeviceInfo{}, true)
	}()
	<-store.entered

	type outcome struct {
		res *Resolution
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Resolve(context.Background(), "D1", model.DeviceInfo{}, true)
		second <- outcome{res, err}
	}()

	// let the second caller join the in-flight lookup, then drop the first
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, uint64(3), got.res.Identity.ID)
		assert.False(t, got.res.IsNew)
	case <-time.After(2 * time.Second):
		t.Fatal("second resolve did not finish")
	}
	<-firstDone

	assert.Equal(t, int32(1), store.finds.Load())
	assert.Equal(t, int32(2), store.touches.Load())
}

type brokenStore struct {
	IdentityStore
}

func (brokenStore) FindByDeviceKey(context.Context, string) (*model.Identity, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) ListExcept(context.Context, uint64) ([]model.Identity, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_StoreUnavailable(t *testing.T) {
	svc := NewIdentityService(brokenStore{}, nil, time.Second)

	_, err := svc.Resolve(context.Background(), "D1", model.DeviceInfo{}, true)
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))

	_, err = svc.ListPeers(context.Background(), 1)
	assert.Equal(t, apperror.CodeStoreUnavailable, apperror.CodeOf(err))
}

func TestListPeers_MergesRegistryAndStore(t *testing.T) {
	ctx := context.Background()
	presence := newFakePresence()
	svc, repo := newIdentityService(t, presence)

	me, err := svc.Resolve(ctx, "me", model.DeviceInfo{}, true)
	require.NoError(t, err)
	durable, err := svc.Resolve(ctx, "durable", model.DeviceInfo{}, true)
	require.NoError(t, err)
	live, err := svc.Resolve(ctx, "live", model.DeviceInfo{}, false)
	require.NoError(t, err)
	gone, err := svc.Resolve(ctx, "gone", model.DeviceInfo{}, true)
	require.NoError(t, err)
	require.NoError(t, repo.SetOffline(ctx, gone.Identity.ID))

	presence.online[live.Identity.ID] = true

	peers, err := svc.ListPeers(ctx, me.Identity.ID)
	require.NoError(t, err)
	require.Len(t, peers, 3)

	byID := map[uint64]model.Peer{}
	for _, p := range peers {
		byID[p.UserID] = p
	}
	assert.NotContains(t, byID, me.Identity.ID)
	assert.True(t, byID[durable.Identity.ID].Online)
	assert.True(t, byID[live.Identity.ID].Online)
	assert.False(t, byID[gone.Identity.ID].Online)

	// online first
	assert.True(t, peers[0].Online)
	assert.True(t, peers[1].Online)
	assert.Equal(t, gone.Identity.ID, peers[2].UserID)
}

func TestGetPeer(t *testing.T) {
	ctx := context.Background()
	presence := newFakePresence()
	svc, _ := newIdentityService(t, presence)

	res, err := svc.Resolve(ctx, "D1", model.DeviceInfo{}, false)
	require.NoError(t, err)

	peer, err := svc.GetPeer(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.False(t, peer.Online)

	presence.online[res.Identity.ID] = true
	peer, err = svc.GetPeer(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.True(t, peer.Online)

	_, err = svc.GetPeer(ctx, 999)
	assert.Equal(t, apperror.CodeUnknownRecipient, apperror.CodeOf(err))
}

func TestMarkOfflineAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIdentityService(t, nil)

	res, err := svc.Resolve(ctx, "D1", model.DeviceInfo{}, true)
	require.NoError(t, err)

	require.NoError(t, svc.MarkOffline(ctx, res.Identity.ID))
	stored, err := repo.FindByID(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)

	require.NoError(t, svc.Heartbeat(ctx, res.Identity.ID))
	stored, err = repo.FindByID(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.True(t, stored.Online)
}
