package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/netpulse/netpulse/pkg/metrics"
	"go.uber.org/zap"
)

// Policy supplies the retention windows at tick time, so a config
// change takes effect on the next run.
type Policy func() (rawTTLDays, hourTTLDays int)

// Retention prunes the raw and hourly tiers once their data is safely
// represented in the next tier. It never deletes daily rows and never
// touches a bucket whose rollup is missing; such buckets are deferred
// with a warning and retried on the next tick, so running retention is
// always safe.
type Retention struct {
	aggs   *store.AggregateRepository
	logs   *store.RetentionLogRepository
	policy Policy
	clock  sampler.Clock
}

func NewRetention(aggs *store.AggregateRepository, logs *store.RetentionLogRepository, policy Policy, clock sampler.Clock) *Retention {
	if clock == nil {
		clock = time.Now
	}
	return &Retention{aggs: aggs, logs: logs, policy: policy, clock: clock}
}

// Run performs one prune pass: raw tier first, then hourly.
func (r *Retention) Run(ctx context.Context) error {
	if err := r.pruneRaw(ctx); err != nil {
		return err
	}
	return r.pruneHourly(ctx)
}

func (r *Retention) pruneRaw(ctx context.Context) error {
	now := r.clock().UTC()
	rawTTLDays, _ := r.policy()
	cutoff := now.Add(-time.Duration(rawTTLDays) * 24 * time.Hour)

	// Only finalized hours are candidates; the in-progress hour's rows
	// are always retained.
	hours, err := r.aggs.RawHoursWithData(ctx, common.HourStart(now))
	if err != nil {
		return err
	}

	var deleted int64
	var deferred int
	for _, h := range hours {
		if h.Add(time.Hour).After(now) {
			continue
		}
		if !h.Before(cutoff) {
			continue
		}

		ok, err := r.rawHourPrunable(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			deferred++
			zap.L().Warn("deferring raw prune: hour not yet aggregated",
				zap.Time("hour_start", h))
			continue
		}

		n, err := r.aggs.DeleteRawBefore(ctx, h, cutoff)
		if err != nil {
			return err
		}
		bn, err := r.aggs.DeleteBrowserRawBefore(ctx, h, cutoff)
		if err != nil {
			return err
		}
		deleted += n + bn
	}

	if deleted > 0 {
		metrics.SetGauge("retention_raw_deleted", deleted)
		detail := fmt.Sprintf("deleted %d raw rows older than %d days", deleted, rawTTLDays)
		if err := r.logs.Add(ctx, "cleanup_samples", deleted, detail); err != nil {
			return err
		}
		zap.L().Info("raw retention complete",
			zap.Int64("deleted", deleted), zap.Int("deferred", deferred))
	}
	return nil
}

// rawHourPrunable verifies that every raw row of the hour is covered by
// the hourly tier before any delete.
func (r *Retention) rawHourPrunable(ctx context.Context, hourStart time.Time) (bool, error) {
	rawN, err := r.aggs.RawCountInHour(ctx, hourStart)
	if err != nil {
		return false, err
	}
	if rawN > 0 {
		exists, err := r.aggs.HourlyExists(ctx, hourStart)
		if err != nil || !exists {
			return false, err
		}
	}
	browserN, err := r.aggs.BrowserCountInHour(ctx, hourStart)
	if err != nil {
		return false, err
	}
	if browserN > 0 {
		exists, err := r.aggs.BrowserHourlyExists(ctx, hourStart)
		if err != nil || !exists {
			return false, err
		}
	}
	return true, nil
}

func (r *Retention) pruneHourly(ctx context.Context) error {
	now := r.clock().UTC()
	_, hourTTLDays := r.policy()
	cutoff := now.Add(-time.Duration(hourTTLDays) * 24 * time.Hour)

	days, err := r.aggs.HourlyDaysWithData(ctx, common.DayStart(now))
	if err != nil {
		return err
	}

	var deleted int64
	var deferred int
	for _, d := range days {
		dayEnd := d.AddDate(0, 0, 1)
		if dayEnd.After(now) {
			continue
		}
		// Delete only days every hour of which is past the cutoff.
		if dayEnd.After(cutoff) {
			continue
		}

		exists, err := r.aggs.DailyExists(ctx, d)
		if err != nil {
			return err
		}
		if !exists {
			deferred++
			zap.L().Warn("deferring hourly prune: day not yet aggregated",
				zap.Time("day_start", d))
			continue
		}
		browserN, err := r.aggs.BrowserHourlySampleSumInDay(ctx, d)
		if err != nil {
			return err
		}
		if browserN > 0 {
			bexists, err := r.aggs.BrowserDailyExists(ctx, d)
			if err != nil {
				return err
			}
			if !bexists {
				deferred++
				zap.L().Warn("deferring hourly prune: browser day not yet aggregated",
					zap.Time("day_start", d))
				continue
			}
		}

		n, err := r.aggs.DeleteHourlyForDay(ctx, d)
		if err != nil {
			return err
		}
		deleted += n
	}

	if deleted > 0 {
		metrics.SetGauge("retention_hourly_deleted", deleted)
		detail := fmt.Sprintf("deleted %d hourly rows older than %d days", deleted, hourTTLDays)
		if err := r.logs.Add(ctx, "cleanup_hourly", deleted, detail); err != nil {
			return err
		}
		zap.L().Info("hourly retention complete",
			zap.Int64("deleted", deleted), zap.Int("deferred", deferred))
	}
	return nil
}
