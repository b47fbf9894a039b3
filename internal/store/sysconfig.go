package store

import (
	"context"
	"errors"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

// ConfigRepository persists the runtime key-value settings.
type ConfigRepository struct {
	store *Store
}

func NewConfigRepository(s *Store) *ConfigRepository {
	return &ConfigRepository{store: s}
}

// Get returns the value for name, reporting whether it exists.
func (r *ConfigRepository) Get(ctx context.Context, name string) (string, bool, error) {
	var row domain.SysConfig
	err := r.store.Read(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, common.TransientError(err, "read config")
	}
	return row.Value, true, nil
}

// Set upserts one setting.
func (r *ConfigRepository) Set(ctx context.Context, name, value, remark string) error {
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		var row domain.SysConfig
		err := tx.Where("name = ?", name).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&domain.SysConfig{
				ID:        common.UUIDint64(),
				Name:      name,
				Value:     value,
				Remark:    remark,
				UpdatedAt: time.Now().UTC(),
			}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&domain.SysConfig{}).Where("id = ?", row.ID).
				Updates(map[string]interface{}{
					"value":      value,
					"updated_at": time.Now().UTC(),
				}).Error
		}
	})
	if err != nil {
		return common.TransientError(err, "write config")
	}
	return nil
}

// All returns every setting row.
func (r *ConfigRepository) All(ctx context.Context) ([]domain.SysConfig, error) {
	var rows []domain.SysConfig
	if err := r.store.Read(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, common.TransientError(err, "list config")
	}
	return rows, nil
}
