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

// AggregateRepository owns the hourly and daily rollup tiers for both
// app traffic and browser domain visits.
type AggregateRepository struct {
	store *Store
}

func NewAggregateRepository(s *Store) *AggregateRepository {
	return &AggregateRepository{store: s}
}

type appSums struct {
	AppID                int64
	BytesSent            int64
	BytesReceived        int64
	PacketsSent          int64
	PacketsReceived      int64
	MaxActiveConnections int
	SampleCount          int64
}

type browserSums struct {
	DomainID      int64
	AppID         int64
	BytesSent     int64
	BytesReceived int64
	SampleCount   int64
}

var hourlyConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "hour_start"}, {Name: "app_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"bytes_sent", "bytes_received", "packets_sent", "packets_received",
		"max_active_connections", "sample_count",
	}),
}

var dailyConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "day_start"}, {Name: "app_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"bytes_sent", "bytes_received", "packets_sent", "packets_received",
		"max_active_connections", "sample_count",
	}),
}

var browserHourlyConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "hour_start"}, {Name: "domain_id"}, {Name: "app_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"bytes_sent", "bytes_received", "sample_count",
	}),
}

var browserDailyConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "day_start"}, {Name: "domain_id"}, {Name: "app_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"bytes_sent", "bytes_received", "sample_count",
	}),
}

// RollupHour aggregates the raw samples of one hour (finished or still in
// progress) into the hourly tiers, replacing any prior rollup of the same bucket. Runs in
// a single transaction and returns the number of bucket rows written.
func (r *AggregateRepository) RollupHour(ctx context.Context, hourStart time.Time) (int64, error) {
	hourEnd := hourStart.Add(time.Hour)
	var affected int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		var sums []appSums
		err := tx.Model(&domain.NetworkSample{}).
			Select("app_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(packets_sent) AS packets_sent, SUM(packets_received) AS packets_received, MAX(active_connections) AS max_active_connections, COUNT(*) AS sample_count").
			Where("timestamp >= ? AND timestamp < ?", hourStart, hourEnd).
			Group("app_id").
			Scan(&sums).Error
		if err != nil {
			return err
		}
		for _, s := range sums {
			row := domain.HourlyAggregate{
				HourStart:            hourStart,
				AppID:                s.AppID,
				BytesSent:            s.BytesSent,
				BytesReceived:        s.BytesReceived,
				PacketsSent:          s.PacketsSent,
				PacketsReceived:      s.PacketsReceived,
				MaxActiveConnections: s.MaxActiveConnections,
				SampleCount:          s.SampleCount,
			}
			if err := tx.Clauses(hourlyConflict).Create(&row).Error; err != nil {
				return err
			}
			affected++
		}

		var bsums []browserSums
		err = tx.Model(&domain.BrowserDomainSample{}).
			Select("domain_id, app_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, COUNT(*) AS sample_count").
			Where("timestamp >= ? AND timestamp < ?", hourStart, hourEnd).
			Group("domain_id, app_id").
			Scan(&bsums).Error
		if err != nil {
			return err
		}
		for _, s := range bsums {
			row := domain.BrowserDomainHourly{
				HourStart:     hourStart,
				DomainID:      s.DomainID,
				AppID:         s.AppID,
				BytesSent:     s.BytesSent,
				BytesReceived: s.BytesReceived,
				SampleCount:   s.SampleCount,
			}
			if err := tx.Clauses(browserHourlyConflict).Create(&row).Error; err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, common.TransientError(err, "rollup hour")
	}
	return affected, nil
}

// RollupDay aggregates the hourly tier of one UTC day (finished or still
// in progress) into the daily tiers. Sample counts sum; connection peaks take the max of
// the hourly maxima.
func (r *AggregateRepository) RollupDay(ctx context.Context, dayStart time.Time) (int64, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	var affected int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		var sums []appSums
		err := tx.Model(&domain.HourlyAggregate{}).
			Select("app_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(packets_sent) AS packets_sent, SUM(packets_received) AS packets_received, MAX(max_active_connections) AS max_active_connections, SUM(sample_count) AS sample_count").
			Where("hour_start >= ? AND hour_start < ?", dayStart, dayEnd).
			Group("app_id").
			Scan(&sums).Error
		if err != nil {
			return err
		}
		for _, s := range sums {
			row := domain.DailyAggregate{
				DayStart:             dayStart,
				AppID:                s.AppID,
				BytesSent:            s.BytesSent,
				BytesReceived:        s.BytesReceived,
				PacketsSent:          s.PacketsSent,
				PacketsReceived:      s.PacketsReceived,
				MaxActiveConnections: s.MaxActiveConnections,
				SampleCount:          s.SampleCount,
			}
			if err := tx.Clauses(dailyConflict).Create(&row).Error; err != nil {
				return err
			}
			affected++
		}

		var bsums []browserSums
		err = tx.Model(&domain.BrowserDomainHourly{}).
			Select("domain_id, app_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(sample_count) AS sample_count").
			Where("hour_start >= ? AND hour_start < ?", dayStart, dayEnd).
			Group("domain_id, app_id").
			Scan(&bsums).Error
		if err != nil {
			return err
		}
		for _, s := range bsums {
			row := domain.BrowserDomainDaily{
				DayStart:      dayStart,
				DomainID:      s.DomainID,
				AppID:         s.AppID,
				BytesSent:     s.BytesSent,
				BytesReceived: s.BytesReceived,
				SampleCount:   s.SampleCount,
			}
			if err := tx.Clauses(browserDailyConflict).Create(&row).Error; err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, common.TransientError(err, "rollup day")
	}
	return affected, nil
}

// RawCountInHour counts raw samples falling inside one hour bucket.
func (r *AggregateRepository) RawCountInHour(ctx context.Context, hourStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.NetworkSample{}).
		Where("timestamp >= ? AND timestamp < ?", hourStart, hourStart.Add(time.Hour)).
		Count(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "count raw hour")
	}
	return n, nil
}

// HourlySampleSum sums the recorded sample counts of one hourly bucket.
// A mismatch against RawCountInHour marks the bucket for re-rollup.
func (r *AggregateRepository) HourlySampleSum(ctx context.Context, hourStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.HourlyAggregate{}).
		Where("hour_start = ?", hourStart).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum hourly bucket")
	}
	return n, nil
}

// HourlySampleSumInDay sums hourly sample counts over one UTC day.
func (r *AggregateRepository) HourlySampleSumInDay(ctx context.Context, dayStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.HourlyAggregate{}).
		Where("hour_start >= ? AND hour_start < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum hourly day")
	}
	return n, nil
}

// DailySampleSum sums the daily bucket's recorded sample counts.
func (r *AggregateRepository) DailySampleSum(ctx context.Context, dayStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.DailyAggregate{}).
		Where("day_start = ?", dayStart).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum daily bucket")
	}
	return n, nil
}

// HourlyExists reports whether any hourly rollup row covers hourStart.
func (r *AggregateRepository) HourlyExists(ctx context.Context, hourStart time.Time) (bool, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.HourlyAggregate{}).
		Where("hour_start = ?", hourStart).Count(&n).Error
	if err != nil {
		return false, common.TransientError(err, "check hourly bucket")
	}
	return n > 0, nil
}

// BrowserHourlyExists reports whether any browser hourly row covers hourStart.
func (r *AggregateRepository) BrowserHourlyExists(ctx context.Context, hourStart time.Time) (bool, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainHourly{}).
		Where("hour_start = ?", hourStart).Count(&n).Error
	if err != nil {
		return false, common.TransientError(err, "check browser hourly bucket")
	}
	return n > 0, nil
}

// DailyExists reports whether any daily rollup row covers dayStart.
func (r *AggregateRepository) DailyExists(ctx context.Context, dayStart time.Time) (bool, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.DailyAggregate{}).
		Where("day_start = ?", dayStart).Count(&n).Error
	if err != nil {
		return false, common.TransientError(err, "check daily bucket")
	}
	return n > 0, nil
}

// BrowserDailyExists reports whether any browser daily row covers dayStart.
func (r *AggregateRepository) BrowserDailyExists(ctx context.Context, dayStart time.Time) (bool, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainDaily{}).
		Where("day_start = ?", dayStart).Count(&n).Error
	if err != nil {
		return false, common.TransientError(err, "check browser daily bucket")
	}
	return n > 0, nil
}

// OldestHourlyTime returns the earliest hourly bucket start, if any.
func (r *AggregateRepository) OldestHourlyTime(ctx context.Context) (time.Time, bool, error) {
	var row domain.HourlyAggregate
	err := r.store.Read(ctx).Order("hour_start ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, common.TransientError(err, "query oldest hourly")
	}
	return row.HourStart, true, nil
}

// OldestDailyTime returns the earliest daily bucket start, if any.
func (r *AggregateRepository) OldestDailyTime(ctx context.Context) (time.Time, bool, error) {
	var row domain.DailyAggregate
	err := r.store.Read(ctx).Order("day_start ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, common.TransientError(err, "query oldest daily")
	}
	return row.DayStart, true, nil
}

// HourlySeries returns hourly-tier totals per bucket within [from, to),
// optionally for one app.
func (r *AggregateRepository) HourlySeries(ctx context.Context, from, to time.Time, appID int64) ([]SeriesRow, error) {
	q := r.store.Read(ctx).Model(&domain.HourlyAggregate{}).
		Select("hour_start AS ts, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received").
		Where("hour_start >= ? AND hour_start < ?", from, to)
	if appID != 0 {
		q = q.Where("app_id = ?", appID)
	}
	var rows []SeriesRow
	if err := q.Group("hour_start").Order("hour_start ASC").Scan(&rows).Error; err != nil {
		return nil, common.TransientError(err, "query hourly series")
	}
	return rows, nil
}

// DailySeries returns daily-tier totals per bucket within [from, to),
// optionally for one app.
func (r *AggregateRepository) DailySeries(ctx context.Context, from, to time.Time, appID int64) ([]SeriesRow, error) {
	q := r.store.Read(ctx).Model(&domain.DailyAggregate{}).
		Select("day_start AS ts, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received").
		Where("day_start >= ? AND day_start < ?", from, to)
	if appID != 0 {
		q = q.Where("app_id = ?", appID)
	}
	var rows []SeriesRow
	if err := q.Group("day_start").Order("day_start ASC").Scan(&rows).Error; err != nil {
		return nil, common.TransientError(err, "query daily series")
	}
	return rows, nil
}

// BrowserHourlySeries returns the hourly visit series for one domain.
func (r *AggregateRepository) BrowserHourlySeries(ctx context.Context, from, to time.Time, domainID int64) ([]SeriesRow, error) {
	q := r.store.Read(ctx).Model(&domain.BrowserDomainHourly{}).
		Select("hour_start AS ts, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received").
		Where("hour_start >= ? AND hour_start < ?", from, to)
	if domainID != 0 {
		q = q.Where("domain_id = ?", domainID)
	}
	var rows []SeriesRow
	if err := q.Group("hour_start").Order("hour_start ASC").Scan(&rows).Error; err != nil {
		return nil, common.TransientError(err, "query browser hourly series")
	}
	return rows, nil
}

// AppTotalsHourly sums the hourly tier per app over [from, to).
func (r *AggregateRepository) AppTotalsHourly(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.HourlyAggregate{}).
		Select("app_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, SUM(sample_count) AS sample_count").
		Where("hour_start >= ? AND hour_start < ?", from, to).
		Group("app_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query hourly app totals")
	}
	return rows, nil
}

// AppTotalsDaily sums the daily tier per app over [from, to).
func (r *AggregateRepository) AppTotalsDaily(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.DailyAggregate{}).
		Select("app_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, SUM(sample_count) AS sample_count").
		Where("day_start >= ? AND day_start < ?", from, to).
		Group("app_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query daily app totals")
	}
	return rows, nil
}

// DomainTotalsHourly sums the browser hourly tier per domain.
func (r *AggregateRepository) DomainTotalsHourly(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.BrowserDomainHourly{}).
		Select("domain_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, SUM(sample_count) AS sample_count").
		Where("hour_start >= ? AND hour_start < ?", from, to).
		Group("domain_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query hourly domain totals")
	}
	return rows, nil
}

// DomainTotalsDaily sums the browser daily tier per domain.
func (r *AggregateRepository) DomainTotalsDaily(ctx context.Context, from, to time.Time) ([]UsageRow, error) {
	var rows []UsageRow
	err := r.store.Read(ctx).Model(&domain.BrowserDomainDaily{}).
		Select("domain_id AS entity_id, SUM(bytes_sent) AS bytes_sent, SUM(bytes_received) AS bytes_received, SUM(bytes_sent + bytes_received) AS total_bytes, SUM(sample_count) AS sample_count").
		Where("day_start >= ? AND day_start < ?", from, to).
		Group("domain_id").
		Scan(&rows).Error
	if err != nil {
		return nil, common.TransientError(err, "query daily domain totals")
	}
	return rows, nil
}

// DeleteRawBefore removes raw samples of one hour bucket older than
// cutoff. Bounded to a single bucket so each delete is a short
// transaction.
func (r *AggregateRepository) DeleteRawBefore(ctx context.Context, hourStart, cutoff time.Time) (int64, error) {
	var affected int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("timestamp >= ? AND timestamp < ? AND timestamp < ?",
			hourStart, hourStart.Add(time.Hour), cutoff).
			Delete(&domain.NetworkSample{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, common.TransientError(err, "delete raw bucket")
	}
	return affected, nil
}

// DeleteBrowserRawBefore removes browser samples of one hour bucket
// older than cutoff.
func (r *AggregateRepository) DeleteBrowserRawBefore(ctx context.Context, hourStart, cutoff time.Time) (int64, error) {
	var affected int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("timestamp >= ? AND timestamp < ? AND timestamp < ?",
			hourStart, hourStart.Add(time.Hour), cutoff).
			Delete(&domain.BrowserDomainSample{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, common.TransientError(err, "delete browser raw bucket")
	}
	return affected, nil
}

// DeleteHourlyForDay removes the hourly rollups of one UTC day (both
// app and browser tiers) once the day is represented in the daily tier.
func (r *AggregateRepository) DeleteHourlyForDay(ctx context.Context, dayStart time.Time) (int64, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	var affected int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("hour_start >= ? AND hour_start < ?", dayStart, dayEnd).
			Delete(&domain.HourlyAggregate{})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		res = tx.Where("hour_start >= ? AND hour_start < ?", dayStart, dayEnd).
			Delete(&domain.BrowserDomainHourly{})
		affected += res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, common.TransientError(err, "delete hourly day")
	}
	return affected, nil
}

// RawHoursWithData walks hour buckets from the oldest raw sample up to
// before, returning the starts of buckets that contain rows. The walk
// is bounded by the raw retention window, so it stays small.
func (r *AggregateRepository) RawHoursWithData(ctx context.Context, before time.Time) ([]time.Time, error) {
	oldest, ok, err := NewSampleRepository(r.store).OldestSampleTime(ctx)
	if err != nil {
		return nil, err
	}
	bOldest, bOK, err := NewSampleRepository(r.store).OldestBrowserSampleTime(ctx)
	if err != nil {
		return nil, err
	}
	if !ok && !bOK {
		return nil, nil
	}
	if !ok || (bOK && bOldest.Before(oldest)) {
		oldest = bOldest
	}

	var hours []time.Time
	for h := oldest.UTC().Truncate(time.Hour); h.Before(before); h = h.Add(time.Hour) {
		n, err := r.RawCountInHour(ctx, h)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			var bn int64
			err := r.store.Read(ctx).Model(&domain.BrowserDomainSample{}).
				Where("timestamp >= ? AND timestamp < ?", h, h.Add(time.Hour)).
				Count(&bn).Error
			if err != nil {
				return nil, common.TransientError(err, "count browser hour")
			}
			if bn == 0 {
				continue
			}
		}
		hours = append(hours, h)
	}
	return hours, nil
}

// BrowserCountInHour counts browser samples inside one hour bucket.
func (r *AggregateRepository) BrowserCountInHour(ctx context.Context, hourStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainSample{}).
		Where("timestamp >= ? AND timestamp < ?", hourStart, hourStart.Add(time.Hour)).
		Count(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "count browser hour")
	}
	return n, nil
}

// HourlyDaysWithData walks day buckets from the oldest hourly row up to
// before, returning days that still hold hourly rollups.
func (r *AggregateRepository) HourlyDaysWithData(ctx context.Context, before time.Time) ([]time.Time, error) {
	oldest, ok, err := r.OldestHourlyTime(ctx)
	if err != nil || !ok {
		return nil, err
	}
	var days []time.Time
	start := time.Date(oldest.UTC().Year(), oldest.UTC().Month(), oldest.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for d := start; d.Before(before); d = d.AddDate(0, 0, 1) {
		n, err := r.HourlySampleSumInDay(ctx, d)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			days = append(days, d)
		}
	}
	return days, nil
}

// BrowserHourlySampleSum sums browser hourly sample counts for one bucket.
func (r *AggregateRepository) BrowserHourlySampleSum(ctx context.Context, hourStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainHourly{}).
		Where("hour_start = ?", hourStart).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum browser hourly bucket")
	}
	return n, nil
}

// BrowserHourlySampleSumInDay sums browser hourly counts over one UTC day.
func (r *AggregateRepository) BrowserHourlySampleSumInDay(ctx context.Context, dayStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainHourly{}).
		Where("hour_start >= ? AND hour_start < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum browser hourly day")
	}
	return n, nil
}

// BrowserDailySampleSum sums the browser daily bucket's sample counts.
func (r *AggregateRepository) BrowserDailySampleSum(ctx context.Context, dayStart time.Time) (int64, error) {
	var n int64
	err := r.store.Read(ctx).Model(&domain.BrowserDomainDaily{}).
		Where("day_start = ?", dayStart).
		Select("COALESCE(SUM(sample_count), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, common.TransientError(err, "sum browser daily bucket")
	}
	return n, nil
}
