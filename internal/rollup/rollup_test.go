package rollup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertRaw(t *testing.T, samples *store.SampleRepository, ts time.Time, appID, bytesOut int64) {
	t.Helper()
	err := samples.InsertBatch(context.Background(), []domain.NetworkSample{{
		Timestamp: ts,
		AppID:     appID,
		BytesSent: bytesOut,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func countRaw(t *testing.T, s *store.Store) int64 {
	t.Helper()
	var n int64
	if err := s.Read(context.Background()).Model(&domain.NetworkSample{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func hourlyRows(t *testing.T, s *store.Store) []domain.HourlyAggregate {
	t.Helper()
	var rows []domain.HourlyAggregate
	if err := s.Read(context.Background()).Order("hour_start ASC, app_id ASC").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	return rows
}

func retentionLogCount(t *testing.T, s *store.Store) int64 {
	t.Helper()
	var n int64
	if err := s.Read(context.Background()).Model(&domain.RetentionLog{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

// Rolling up an hour boundary twice with no intervening writes must
// leave identical aggregate rows and add no further audit entries.
func TestHourRollupIdempotent(t *testing.T) {
	s := newTestStore(t)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	logs := store.NewRetentionLogRepository(s)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	insertRaw(t, samples, base.Add(3599*time.Second), 1, 10)
	insertRaw(t, samples, base.Add(3600*time.Second), 1, 10)

	now := base.Add(3700 * time.Second)
	agg := NewAggregator(aggs, logs, func() time.Time { return now })

	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	rows := hourlyRows(t, s)
	if len(rows) != 2 {
		t.Fatalf("expected 2 hourly rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.BytesSent != 10 || row.SampleCount != 1 {
			t.Errorf("row %d: bytes=%d count=%d, want 10/1", i, row.BytesSent, row.SampleCount)
		}
	}
	if !rows[0].HourStart.Equal(base) || !rows[1].HourStart.Equal(base.Add(time.Hour)) {
		t.Errorf("hour starts = %v, %v", rows[0].HourStart, rows[1].HourStart)
	}

	firstLogs := retentionLogCount(t, s)

	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	again := hourlyRows(t, s)
	if len(again) != 2 {
		t.Fatalf("second run changed row count to %d", len(again))
	}
	for i := range rows {
		if again[i].BytesSent != rows[i].BytesSent || again[i].SampleCount != rows[i].SampleCount {
			t.Errorf("second run changed row %d", i)
		}
	}
	if got := retentionLogCount(t, s); got != firstLogs {
		t.Errorf("second run added audit entries: %d -> %d", firstLogs, got)
	}
	if firstLogs != 2 {
		t.Errorf("audit entries after first run = %d, want 2 (hour and day passes)", firstLogs)
	}
}

// Daily rows must equal the sum of their hourly constituents.
func TestDailyMatchesHourlySums(t *testing.T) {
	s := newTestStore(t)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	logs := store.NewRetentionLogRepository(s)
	ctx := context.Background()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	insertRaw(t, samples, day.Add(10*time.Minute), 1, 100)
	insertRaw(t, samples, day.Add(5*time.Hour), 1, 250)
	insertRaw(t, samples, day.Add(23*time.Hour), 1, 50)

	now := day.AddDate(0, 0, 1).Add(time.Hour)
	agg := NewAggregator(aggs, logs, func() time.Time { return now })
	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	var daily []domain.DailyAggregate
	if err := s.Read(ctx).Find(&daily).Error; err != nil {
		t.Fatal(err)
	}
	if len(daily) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(daily))
	}
	if daily[0].BytesSent != 400 || daily[0].SampleCount != 3 {
		t.Errorf("daily = bytes %d count %d, want 400/3", daily[0].BytesSent, daily[0].SampleCount)
	}

	var hourlySum int64
	for _, h := range hourlyRows(t, s) {
		hourlySum += h.BytesSent
	}
	if hourlySum != daily[0].BytesSent {
		t.Errorf("daily bytes %d != hourly sum %d", daily[0].BytesSent, hourlySum)
	}
}

// Retention must defer deletes for hours the aggregator has not rolled
// up, and never touch the in-progress hour.
func TestRetentionRespectsAggregationOrdering(t *testing.T) {
	s := newTestStore(t)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	logs := store.NewRetentionLogRepository(s)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	// Stale finalized hours plus rows in the in-progress hour.
	insertRaw(t, samples, now.Add(-26*time.Hour), 1, 10)
	insertRaw(t, samples, now.Add(-3*time.Hour), 1, 20)
	insertRaw(t, samples, now.Add(-5*time.Minute), 1, 30)

	// Everything is stale: rawTTLDays = 0.
	ret := NewRetention(aggs, logs, func() (int, int) { return 0, 90 }, clock)

	// Aggregator has not run: nothing may be deleted.
	if err := ret.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if n := countRaw(t, s); n != 3 {
		t.Fatalf("retention deleted %d rows before aggregation", 3-n)
	}

	agg := NewAggregator(aggs, logs, clock)
	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ret.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// Finalized-hour rows are gone; the in-progress hour survives.
	if n := countRaw(t, s); n != 1 {
		t.Fatalf("raw rows after retention = %d, want 1", n)
	}
	rows, err := samples.RawSeries(ctx, now.Add(-48*time.Hour), now.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BytesSent != 30 {
		t.Fatalf("surviving row = %+v, want the in-progress hour's row", rows)
	}

	// Every remaining finalized raw row's hour is aggregated; a second
	// run deletes nothing.
	before := countRaw(t, s)
	if err := ret.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if countRaw(t, s) != before {
		t.Error("second retention run deleted rows")
	}
}

// Hourly rows past the hourly TTL are deleted only once their day is
// represented in the daily tier; daily rows are never deleted.
func TestHourlyPruneRequiresDailyRollup(t *testing.T) {
	s := newTestStore(t)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	logs := store.NewRetentionLogRepository(s)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	insertRaw(t, samples, old, 1, 500)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	agg := NewAggregator(aggs, logs, clock)
	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	ret := NewRetention(aggs, logs, func() (int, int) { return 7, 90 }, clock)
	if err := ret.Run(ctx); err != nil {
		t.Fatal(err)
	}

	var hourlyN, dailyN int64
	if err := s.Read(ctx).Model(&domain.HourlyAggregate{}).Count(&hourlyN).Error; err != nil {
		t.Fatal(err)
	}
	if err := s.Read(ctx).Model(&domain.DailyAggregate{}).Count(&dailyN).Error; err != nil {
		t.Fatal(err)
	}
	if hourlyN != 0 {
		t.Errorf("hourly rows past TTL remain: %d", hourlyN)
	}
	if dailyN != 1 {
		t.Errorf("daily rows = %d, want 1 (never deleted)", dailyN)
	}
}

// Re-running the aggregator after late rows arrive refreshes the bucket
// instead of double-adding.
func TestRollupReplacesOnRefresh(t *testing.T) {
	s := newTestStore(t)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	logs := store.NewRetentionLogRepository(s)
	ctx := context.Background()

	hour := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	insertRaw(t, samples, hour.Add(5*time.Minute), 1, 100)

	now := hour.Add(30 * time.Minute)
	agg := NewAggregator(aggs, logs, func() time.Time { return now })
	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	insertRaw(t, samples, hour.Add(40*time.Minute), 1, 50)
	now = hour.Add(45 * time.Minute)
	if err := agg.Run(ctx); err != nil {
		t.Fatal(err)
	}

	rows := hourlyRows(t, s)
	if len(rows) != 1 {
		t.Fatalf("expected 1 hourly row, got %d", len(rows))
	}
	if rows[0].BytesSent != 150 || rows[0].SampleCount != 2 {
		t.Errorf("refreshed bucket = bytes %d count %d, want 150/2",
			rows[0].BytesSent, rows[0].SampleCount)
	}
}
