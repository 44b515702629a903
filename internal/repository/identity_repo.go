package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"gorm.io/gorm"
)

// IdentityRepository handles database operations for Identity
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity. A device_key collision is reported as a
// DUPLICATE_IDENTITY AppError wrapping gorm.ErrDuplicatedKey.
func (r *IdentityRepository) Create(ctx context.Context, identity *model.Identity) error {
	if identity.LastSeen.IsZero() {
		identity.LastSeen = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(identity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Wrap(apperror.CodeDuplicateIdentity, "device key already registered", err)
		}
		return fmt.Errorf("identityRepo.Create: %w", err)
	}
	return nil
}

// FindByID finds an identity by user id
func (r *IdentityRepository) FindByID(ctx context.Context, id uint64) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error
	if err != nil {
		return nil, fmt.Errorf("identityRepo.FindByID: %w", err)
	}
	return &identity, nil
}

// FindByDeviceKey finds an identity by its device key
func (r *IdentityRepository) FindByDeviceKey(ctx context.Context, deviceKey string) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).Where("device_key = ?", deviceKey).First(&identity).Error
	if err != nil {
		return nil, fmt.Errorf("identityRepo.FindByDeviceKey: %w", err)
	}
	return &identity, nil
}

// Touch refreshes last_seen and any supplied device metadata, and flips
// online on when markOnline is set
func (r *IdentityRepository) Touch(ctx context.Context, id uint64, markOnline bool, info model.DeviceInfo) error {
	updates := info.Updates()
	updates["last_seen"] = time.Now().UTC()
	if markOnline {
		updates["online"] = true
	}
	err := r.db.WithContext(ctx).Model(&model.Identity{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("identityRepo.Touch: %w", err)
	}
	return nil
}

// SetOffline clears the durable online flag
func (r *IdentityRepository) SetOffline(ctx context.Context, id uint64) error {
	err := r.db.WithContext(ctx).Model(&model.Identity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"online":    false,
		"last_seen": time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("identityRepo.SetOffline: %w", err)
	}
	return nil
}

// ListExcept returns every identity but the given one, most recently seen first
func (r *IdentityRepository) ListExcept(ctx context.Context, id uint64) ([]model.Identity, error) {
	identities := []model.Identity{}
	err := r.db.WithContext(ctx).
		Where("id != ?", id).
		Order("last_seen DESC").
		Order("id ASC").
		Find(&identities).Error
	if err != nil {
		return nil, fmt.Errorf("identityRepo.ListExcept: %w", err)
	}
	return identities, nil
}

// ResetOnline clears every durable online flag, used at process start
func (r *IdentityRepository) ResetOnline(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Identity{}).Where("online = ?", true).Update("online", false)
	if res.Error != nil {
		return 0, fmt.Errorf("identityRepo.ResetOnline: %w", res.Error)
	}
	return res.RowsAffected, nil
}
