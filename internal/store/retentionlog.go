package store

import (
	"context"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

// RetentionLogRepository appends the audit entries written by the
// aggregation and retention tasks.
type RetentionLogRepository struct {
	store *Store
}

func NewRetentionLogRepository(s *Store) *RetentionLogRepository {
	return &RetentionLogRepository{store: s}
}

// Add appends one audit entry.
func (r *RetentionLogRepository) Add(ctx context.Context, operation string, records int64, details string) error {
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&domain.RetentionLog{
			ID:              common.UUIDint64(),
			Operation:       operation,
			Timestamp:       time.Now().UTC(),
			RecordsAffected: records,
			Details:         details,
		}).Error
	})
	if err != nil {
		return common.TransientError(err, "append retention log")
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (r *RetentionLogRepository) Recent(ctx context.Context, limit int) ([]domain.RetentionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.RetentionLog
	err := r.store.Read(ctx).Order("timestamp DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "list retention log")
	}
	return rows, nil
}

// CountByOperation counts entries for one operation name.
func (r *RetentionLogRepository) CountByOperation(ctx context.Context, operation string) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.RetentionLog{}).
		Where("operation = ?", operation).Count(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "count retention log")
	}
	return n, nil
}
