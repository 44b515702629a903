package service

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const maxDeviceKeyLength = 255

// Resolution is the outcome of resolving a device key
type Resolution struct {
	Identity *model.Identity
	IsNew    bool
}

// IdentityService resolves device keys to stable user ids and lists peers
type IdentityService struct {
	identities IdentityStore
	presence   Presence
	timeout    time.Duration

	group singleflight.Group
}

func NewIdentityService(identities IdentityStore, presence Presence, timeout time.Duration) *IdentityService {
	return &IdentityService{
		identities: identities,
		presence:   presence,
		timeout:    timeout,
	}
}

// Resolve returns the identity for deviceKey, creating it on first sight.
// Existing identities get last_seen and the supplied metadata refreshed, and
// the online flag set when markOnline is true.
//
// Concurrent calls for the same key inside this process share one lookup.
// Only the caller that ran it may see IsNew; the others refresh the row
// themselves and report IsNew=false.
func (s *IdentityService) Resolve(ctx context.Context, deviceKey string, info model.DeviceInfo, markOnline bool) (*Resolution, error) {
	deviceKey = strings.TrimSpace(deviceKey)
	if deviceKey == "" {
		return nil, apperror.Validation("device_key is required")
	}
	if len(deviceKey) > maxDeviceKeyLength {
		return nil, apperror.Validation("device_key is too long")
	}

	// The shared call may serve other callers, so it must not inherit this
	// caller's cancellation. Each store operation is still bounded by s.timeout.
	shared := context.WithoutCancel(ctx)
	leader := false
	v, err, _ := s.group.Do(deviceKey, func() (interface{}, error) {
		leader = true
		return s.resolveOrCreate(shared, deviceKey, info, markOnline)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Resolution)
	if leader {
		return res, nil
	}

	identity := *res.Identity
	if err := s.touch(ctx, identity.ID, markOnline, info); err != nil {
		return nil, err
	}
	if markOnline {
		identity.Online = true
	}
	return &Resolution{Identity: &identity, IsNew: false}, nil
}

func (s *IdentityService) resolveOrCreate(ctx context.Context, deviceKey string, info model.DeviceInfo, markOnline bool) (*Resolution, error) {
	existing, err := s.findByDeviceKey(ctx, deviceKey)
	if err == nil {
		return s.refresh(ctx, existing, info, markOnline)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.StoreUnavailable("identity store unavailable", err)
	}

	identity := &model.Identity{
		DeviceKey:   deviceKey,
		Online:      markOnline,
		PushToken:   info.PushToken,
		DeviceModel: info.DeviceModel,
		OSVersion:   info.OSVersion,
		AppVersion:  info.AppVersion,
		LastSeen:    time.Now().UTC(),
	}

	cctx, cancel := withTimeout(ctx, s.timeout)
	err = s.identities.Create(cctx, identity)
	cancel()
	if err == nil {
		log.Printf("🆕 New identity %d for device %s", identity.ID, deviceKey)
		return &Resolution{Identity: identity, IsNew: true}, nil
	}
	if !isDuplicate(err) {
		return nil, apperror.StoreUnavailable("identity store unavailable", err)
	}

	// Another process created the row between our read and insert.
	log.Printf("🔁 Device %s registered concurrently, reusing existing identity", deviceKey)
	winner, err := s.findByDeviceKey(ctx, deviceKey)
	if err != nil {
		return nil, apperror.StoreUnavailable("identity store unavailable", err)
	}
	return s.refresh(ctx, winner, info, markOnline)
}

func (s *IdentityService) refresh(ctx context.Context, identity *model.Identity, info model.DeviceInfo, markOnline bool) (*Resolution, error) {
	if err := s.touch(ctx, identity.ID, markOnline, info); err != nil {
		return nil, err
	}
	if markOnline {
		identity.Online = true
	}
	identity.LastSeen = time.Now().UTC()
	return &Resolution{Identity: identity, IsNew: false}, nil
}

func (s *IdentityService) findByDeviceKey(ctx context.Context, deviceKey string) (*model.Identity, error) {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.identities.FindByDeviceKey(cctx, deviceKey)
}

func (s *IdentityService) touch(ctx context.Context, id uint64, markOnline bool, info model.DeviceInfo) error {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.identities.Touch(cctx, id, markOnline, info); err != nil {
		return apperror.StoreUnavailable("identity store unavailable", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || apperror.CodeOf(err) == apperror.CodeDuplicateIdentity
}

// Heartbeat refreshes last_seen for a live connection
func (s *IdentityService) Heartbeat(ctx context.Context, userID uint64) error {
	return s.touch(ctx, userID, true, model.DeviceInfo{})
}

// MarkOffline clears the durable online flag. The registry stays authoritative
// for routing, so callers treat a failure here as advisory.
func (s *IdentityService) MarkOffline(ctx context.Context, userID uint64) error {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.identities.SetOffline(cctx, userID); err != nil {
		return apperror.StoreUnavailable("identity store unavailable", err)
	}
	return nil
}

// ListPeers returns every identity except the requester, online ones first.
// A peer counts as online if either the store or the registry says so.
func (s *IdentityService) ListPeers(ctx context.Context, requesterID uint64) ([]model.Peer, error) {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	identities, err := s.identities.ListExcept(cctx, requesterID)
	if err != nil {
		return nil, apperror.StoreUnavailable("identity store unavailable", err)
	}

	live := s.onlineSet()
	peers := make([]model.Peer, 0, len(identities))
	for _, identity := range identities {
		_, bound := live[identity.ID]
		peers = append(peers, model.Peer{
			UserID:    identity.ID,
			DeviceKey: identity.DeviceKey,
			Online:    identity.Online || bound,
			LastSeen:  identity.LastSeen,
		})
	}

	slices.SortStableFunc(peers, func(a, b model.Peer) int {
		switch {
		case a.Online == b.Online:
			return 0
		case a.Online:
			return -1
		default:
			return 1
		}
	})
	return peers, nil
}

// GetPeer returns one identity with its computed online flag
func (s *IdentityService) GetPeer(ctx context.Context, userID uint64) (*model.Peer, error) {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := s.identities.FindByID(cctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.UnknownRecipient("user not found")
	}
	if err != nil {
		return nil, apperror.StoreUnavailable("identity store unavailable", err)
	}

	_, bound := s.onlineSet()[identity.ID]
	return &model.Peer{
		UserID:    identity.ID,
		DeviceKey: identity.DeviceKey,
		Online:    identity.Online || bound,
		LastSeen:  identity.LastSeen,
	}, nil
}

func (s *IdentityService) onlineSet() map[uint64]struct{} {
	set := map[uint64]struct{}{}
	if s.presence == nil {
		return set
	}
	for _, id := range s.presence.OnlineUserIDs() {
		set[id] = struct{}{}
	}
	return set
}
