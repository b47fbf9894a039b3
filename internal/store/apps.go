package store

import (
	"context"
	"errors"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

// AppRepository persists interned process identities.
type AppRepository struct {
	store *Store
}

func NewAppRepository(s *Store) *AppRepository {
	return &AppRepository{store: s}
}

// Upsert interns (processName, bundleID), creating the row on first
// sight and advancing last_seen otherwise. Returns the stable app id.
func (r *AppRepository) Upsert(ctx context.Context, processName, bundleID string, now time.Time) (int64, error) {
	var id int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		var app domain.App
		err := tx.Where("process_name = ? AND bundle_id = ?", processName, bundleID).First(&app).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			app = domain.App{
				ProcessName: processName,
				BundleID:    bundleID,
				FirstSeen:   now,
				LastSeen:    now,
			}
			if err := tx.Create(&app).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if now.After(app.LastSeen) {
				if err := tx.Model(&domain.App{}).Where("id = ?", app.ID).
					Update("last_seen", now).Error; err != nil {
					return err
				}
			}
		}
		id = app.ID
		return nil
	})
	if err != nil {
		return 0, common.TransientError(err, "upsert application")
	}
	return id, nil
}

// TouchLastSeen advances last_seen for a batch of app ids.
func (r *AppRepository) TouchLastSeen(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Model(&domain.App{}).Where("id IN ?", ids).
			Where("last_seen < ?", now).
			Update("last_seen", now).Error
	})
}

// GetByID returns the application or a NotFound error.
func (r *AppRepository) GetByID(ctx context.Context, id int64) (*domain.App, error) {
	var app domain.App
	err := r.store.Read(ctx).First(&app, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundError("application %d not found", id)
	}
	if err != nil {
		return nil, common.TransientError(err, "query application")
	}
	return &app, nil
}

// All returns every interned application.
func (r *AppRepository) All(ctx context.Context) ([]domain.App, error) {
	var apps []domain.App
	if err := r.store.Read(ctx).Order("last_seen DESC").Find(&apps).Error; err != nil {
		return nil, common.TransientError(err, "list applications")
	}
	return apps, nil
}
