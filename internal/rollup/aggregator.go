package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/metrics"
	"go.uber.org/zap"
)

// Aggregator rolls raw samples into hourly buckets and hourly buckets
// into daily buckets. A bucket is re-rolled whenever its recorded
// sample counts disagree with the source tier, so in-progress buckets
// converge as data arrives and a finished bucket is stable: running the
// aggregator twice with no intervening writes changes nothing.
type Aggregator struct {
	aggs  *store.AggregateRepository
	logs  *store.RetentionLogRepository
	clock sampler.Clock
}

func NewAggregator(aggs *store.AggregateRepository, logs *store.RetentionLogRepository, clock sampler.Clock) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{aggs: aggs, logs: logs, clock: clock}
}

// Run performs one hour pass then one day pass. Errors on individual
// buckets abort the pass; the next tick retries.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := a.rollupHours(ctx); err != nil {
		return err
	}
	return a.rollupDays(ctx)
}

func (a *Aggregator) rollupHours(ctx context.Context) error {
	now := a.clock().UTC()
	hours, err := a.aggs.RawHoursWithData(ctx, now)
	if err != nil {
		return err
	}

	var buckets, records int64
	for _, h := range hours {
		needs, err := a.hourNeedsRollup(ctx, h)
		if err != nil {
			return err
		}
		if !needs {
			continue
		}
		n, err := a.aggs.RollupHour(ctx, h)
		if err != nil {
			return err
		}
		buckets++
		records += n
		zap.L().Debug("rolled up hour bucket",
			zap.Time("hour_start", h), zap.Int64("rows", n))
	}

	if buckets > 0 {
		metrics.SetGauge("rollup_hour_buckets", buckets)
		detail := fmt.Sprintf("rolled up %d hour buckets (%d rows)", buckets, records)
		if err := a.logs.Add(ctx, "aggregate-hour", records, detail); err != nil {
			return err
		}
		zap.L().Info("hourly aggregation complete",
			zap.Int64("buckets", buckets), zap.Int64("rows", records))
	}
	return nil
}

func (a *Aggregator) hourNeedsRollup(ctx context.Context, hourStart time.Time) (bool, error) {
	rawN, err := a.aggs.RawCountInHour(ctx, hourStart)
	if err != nil {
		return false, err
	}
	aggN, err := a.aggs.HourlySampleSum(ctx, hourStart)
	if err != nil {
		return false, err
	}
	if rawN != aggN {
		return true, nil
	}
	browserRawN, err := a.aggs.BrowserCountInHour(ctx, hourStart)
	if err != nil {
		return false, err
	}
	browserAggN, err := a.aggs.BrowserHourlySampleSum(ctx, hourStart)
	if err != nil {
		return false, err
	}
	return browserRawN != browserAggN, nil
}

func (a *Aggregator) rollupDays(ctx context.Context) error {
	now := a.clock().UTC()
	days, err := a.aggs.HourlyDaysWithData(ctx, now)
	if err != nil {
		return err
	}

	var buckets, records int64
	for _, d := range days {
		needs, err := a.dayNeedsRollup(ctx, d)
		if err != nil {
			return err
		}
		if !needs {
			continue
		}
		n, err := a.aggs.RollupDay(ctx, d)
		if err != nil {
			return err
		}
		buckets++
		records += n
		zap.L().Debug("rolled up day bucket",
			zap.Time("day_start", d), zap.Int64("rows", n))
	}

	if buckets > 0 {
		metrics.SetGauge("rollup_day_buckets", buckets)
		detail := fmt.Sprintf("rolled up %d day buckets (%d rows)", buckets, records)
		if err := a.logs.Add(ctx, "aggregate-day", records, detail); err != nil {
			return err
		}
		zap.L().Info("daily aggregation complete",
			zap.Int64("buckets", buckets), zap.Int64("rows", records))
	}
	return nil
}

func (a *Aggregator) dayNeedsRollup(ctx context.Context, dayStart time.Time) (bool, error) {
	hourN, err := a.aggs.HourlySampleSumInDay(ctx, dayStart)
	if err != nil {
		return false, err
	}
	dayN, err := a.aggs.DailySampleSum(ctx, dayStart)
	if err != nil {
		return false, err
	}
	if hourN != dayN {
		return true, nil
	}
	browserHourN, err := a.aggs.BrowserHourlySampleSumInDay(ctx, dayStart)
	if err != nil {
		return false, err
	}
	browserDayN, err := a.aggs.BrowserDailySampleSum(ctx, dayStart)
	if err != nil {
		return false, err
	}
	return browserHourN != browserDayN, nil
}
