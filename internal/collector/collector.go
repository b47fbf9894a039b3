package collector

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/netpulse/netpulse/internal/catalog"
	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/internal/events"
	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/netpulse/netpulse/pkg/metrics"
	"go.uber.org/zap"
)

// Collector converts successive cumulative snapshots into per-interval
// delta rows. It is the only component that bridges Cumulative to
// stored deltas; the previous snapshot map is owned exclusively by the
// collector's run loop and never shared.
type Collector struct {
	source   sampler.ProcessSampler
	apps     *catalog.AppCatalog
	samples  *store.SampleRepository
	bus      EventBus.Bus
	clock    sampler.Clock
	interval func() time.Duration

	prev map[sampler.Identity]sampler.Counters
}

func New(
	source sampler.ProcessSampler,
	apps *catalog.AppCatalog,
	samples *store.SampleRepository,
	bus EventBus.Bus,
	clock sampler.Clock,
	interval func() time.Duration,
) *Collector {
	if clock == nil {
		clock = time.Now
	}
	return &Collector{
		source:   source,
		apps:     apps,
		samples:  samples,
		bus:      bus,
		clock:    clock,
		interval: interval,
		prev:     make(map[sampler.Identity]sampler.Counters),
	}
}

// Run drives the sampling loop until ctx is cancelled. Ticks never
// overlap: an overrunning tick delays the next one.
func (c *Collector) Run(ctx context.Context) {
	zap.L().Info("collector started",
		zap.Duration("interval", c.interval()))
	timer := time.NewTimer(c.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("collector stopped")
			return
		case <-timer.C:
			start := time.Now()
			if err := c.Tick(ctx); err != nil {
				zap.L().Warn("sampler tick skipped", zap.Error(err))
			}
			metrics.Observe("collector_tick_seconds", time.Since(start).Seconds())
			timer.Reset(c.interval())
		}
	}
}

// Tick performs one snapshot-diff-store pass. A failed snapshot stores
// nothing and leaves the baseline untouched.
func (c *Collector) Tick(ctx context.Context) error {
	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	ts := snap.TakenAt
	if ts.IsZero() {
		ts = c.clock().UTC().Truncate(time.Second)
	}

	rows := make([]domain.NetworkSample, 0, len(snap.Procs))
	for id, cur := range snap.Procs {
		appID, err := c.apps.Resolve(ctx, id.ProcessName, id.BundleID)
		if err != nil {
			zap.L().Warn("failed to resolve app identity",
				zap.String("process", id.ProcessName), zap.Error(err))
			continue
		}

		last, seen := c.prev[id]
		if !seen {
			// First sighting: no baseline, no row. The next tick
			// produces the first delta.
			continue
		}
		rows = append(rows, domain.NetworkSample{
			Timestamp:         ts,
			AppID:             appID,
			BytesSent:         clampDelta(last.BytesOut, cur.BytesOut),
			BytesReceived:     clampDelta(last.BytesIn, cur.BytesIn),
			PacketsSent:       clampDelta(last.PacketsOut, cur.PacketsOut),
			PacketsReceived:   clampDelta(last.PacketsIn, cur.PacketsIn),
			ActiveConnections: cur.Connections,
		})
	}

	for _, row := range rows {
		if row.BytesSent < 0 || row.BytesReceived < 0 ||
			row.PacketsSent < 0 || row.PacketsReceived < 0 {
			msg := "counter diff overflowed the storable range"
			if c.bus != nil {
				c.bus.Publish(events.TopicInvariantViolation, msg)
			}
			zap.L().Error("delta invariant violated, dropping tick",
				zap.Time("ts", ts),
				zap.Int64("app_id", row.AppID))
			return common.InvariantError("%s", msg)
		}
	}

	if err := c.samples.InsertBatch(ctx, rows); err != nil {
		// Baseline is not advanced, so the missed interval folds into
		// the next tick's delta instead of being lost.
		return err
	}

	// Identities absent from the snapshot exited; drop their baselines
	// without emitting a correction.
	c.prev = snap.Procs

	stats := events.TickStats{
		At:       ts,
		Apps:     len(snap.Procs),
		RowCount: len(rows),
		Duration: time.Since(ts),
	}
	metrics.SetGauge("collector_apps", int64(stats.Apps))
	if c.bus != nil {
		c.bus.Publish(events.TopicSamplerTick, stats)
	}
	return nil
}

// clampDelta converts a pair of cumulative reads into a non-negative
// delta. A decrease means the counter reset (process restart or
// rollover): the delta clamps to zero and the lower value becomes the
// new baseline. Storing the raw cumulative here would inflate totals by
// orders of magnitude.
func clampDelta(prev, cur sampler.Cumulative) int64 {
	if cur < prev {
		return 0
	}
	return int64(cur - prev)
}
