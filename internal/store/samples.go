package store

import (
	"context"
	"errors"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SampleRepository persists the raw tier: per-interval network samples
// and browser active-tab samples.
type SampleRepository struct {
	store *Store
}

func NewSampleRepository(s *Store) *SampleRepository {
	return &SampleRepository{store: s}
}

// InsertBatch writes one sampler tick's delta rows in a single
// transaction. The (timestamp, app) uniqueness conflict is ignored so a
// replayed tick cannot double-store.
func (r *SampleRepository) InsertBatch(ctx context.Context, samples []domain.NetworkSample) error {
	if len(samples) == 0 {
		return nil
	}
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&samples).Error
	})
	if err != nil {
		return common.TransientError(err, "insert sample batch")
	}
	return nil
}

// InsertBrowserSample records one active-tab observation. Repeated
// identical posts within the same second coalesce via the uniqueness
// conflict.
func (r *SampleRepository) InsertBrowserSample(ctx context.Context, sample *domain.BrowserDomainSample) error {
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(sample).Error
	})
	if err != nil {
		return common.TransientError(err, "insert browser sample")
	}
	return nil
}

// TickTotals returns per-tick totals summed across apps since the given
// instant, oldest first. Feeds the bandwidth calculation.
func (r *SampleRepository) TickTotals(ctx context.Context, since time.Time) ([]SeriesRow, error) {
	var rows []SeriesRow
	err := r.store.Read(ctx).Model(&domain.NetworkSample{}).
		Select("timestamp AS ts, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received").
		Where("timestamp >= ?", since).
		Group("timestamp").
		Order("timestamp ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query tick totals")
	}
	return rows, nil
}

// RawSeries returns raw-tier totals per timestamp within [from, to),
// optionally for one app.
func (r *SampleRepository) RawSeries(ctx context.Context, from, to time.Time, appID int64) ([]SeriesRow, error) {
	q := r.store.Read(ctx).Model(&domain.NetworkSample{}).
		Select("timestamp AS ts, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received").
		Where("timestamp >= ? AND timestamp < ?", from, to)
	if appID != 0 {
		q = q.Where("app_id = ?", appID)
	}
	var rows []SeriesRow
	if err := q.Group("timestamp").Order("timestamp ASC").Scan(&rows).Error; err != nil {
		return nil, common.TransientError(err, "query raw series")
	}
	return rows, nil
}

// AppTotalsRaw sums raw samples per app over [from, to).
func (r *SampleRepository) AppTotalsRaw(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.NetworkSample{}).
		Select("app_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, COUNT(*) AS sample_count").
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Group("app_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query raw app totals")
	}
	return rows, nil
}

// DomainTotalsRaw sums browser samples per domain over [from, to).
func (r *SampleRepository) DomainTotalsRaw(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.BrowserDomainSample{}).
		Select("domain_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, COUNT(*) AS sample_count").
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Group("domain_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query raw domain totals")
	}
	return rows, nil
}

// OldestSampleTime returns the earliest raw sample timestamp, if any.
func (r *SampleRepository) OldestSampleTime(ctx context.Context) (time.Time, bool, error) {
	var s domain.NetworkSample
	err := r.store.Read(ctx).Order("timestamp ASC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, common.TransientError(err, "query oldest sample")
	}
	return s.Timestamp, true, nil
}

// OldestBrowserSampleTime returns the earliest browser sample timestamp.
func (r *SampleRepository) OldestBrowserSampleTime(ctx context.Context) (time.Time, bool, error) {
	var s domain.BrowserDomainSample
	err := r.store.Read(ctx).Order("timestamp ASC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, common.TransientError(err, "query oldest browser sample")
	}
	return s.Timestamp, true, nil
}
