package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/netpulse/netpulse/internal/catalog"
	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/pkg/errors"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type scriptedSampler struct {
	snaps []*sampler.Snapshot
	errs  []error
	calls int
}

func (s *scriptedSampler) Snapshot(context.Context) (*sampler.Snapshot, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.snaps[i], nil
}

func snapshotAt(sec int, procs map[sampler.Identity]sampler.Counters) *sampler.Snapshot {
	return &sampler.Snapshot{
		TakenAt: epoch.Add(time.Duration(sec) * time.Second),
		Procs:   procs,
	}
}

func newHarness(t *testing.T, src sampler.ProcessSampler) (*Collector, *store.SampleRepository) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	apps := catalog.NewAppCatalog(store.NewAppRepository(s), func() time.Time { return epoch })
	samples := store.NewSampleRepository(s)
	c := New(src, apps, samples, nil,
		func() time.Time { return epoch },
		func() time.Duration { return time.Second })
	return c, samples
}

func appA(out, in uint64) map[sampler.Identity]sampler.Counters {
	return map[sampler.Identity]sampler.Counters{
		{ProcessName: "A"}: {
			BytesOut: sampler.Cumulative(out),
			BytesIn:  sampler.Cumulative(in),
		},
	}
}

// A restarting process must not have its cumulative counter stored as a
// delta; totals would inflate by orders of magnitude.
func TestCounterResetNotDoubleCounted(t *testing.T) {
	src := &scriptedSampler{snaps: []*sampler.Snapshot{
		snapshotAt(0, appA(1_000_000, 0)),
		snapshotAt(1, appA(1_500_000, 0)),
		snapshotAt(2, appA(100_000, 0)), // A restarted
		snapshotAt(3, appA(300_000, 0)),
	}}
	c, samples := newHarness(t, src)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := c.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	rows, err := samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 delta rows, got %d", len(rows))
	}

	wantBySecond := map[int]int64{1: 500_000, 2: 0, 3: 200_000}
	var total int64
	for _, row := range rows {
		sec := int(row.Ts.Sub(epoch) / time.Second)
		if row.BytesSent != wantBySecond[sec] {
			t.Errorf("row at %ds: bytes_sent = %d, want %d", sec, row.BytesSent, wantBySecond[sec])
		}
		if row.BytesSent < 0 || row.BytesReceived < 0 {
			t.Errorf("row at %ds stores a negative delta", sec)
		}
		total += row.BytesSent
	}
	if total != 700_000 {
		t.Errorf("total bytes_sent = %d, want 700000", total)
	}
	if total == 2_900_000 {
		t.Error("cumulative values were stored as deltas")
	}
}

// First sighting of an identity establishes the baseline without a row;
// the next tick emits the first delta.
func TestFirstSightingEmitsNoRow(t *testing.T) {
	src := &scriptedSampler{snaps: []*sampler.Snapshot{
		snapshotAt(0, appA(500, 100)),
		snapshotAt(1, appA(900, 250)),
	}}
	c, samples := newHarness(t, src)
	ctx := context.Background()

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	rows, err := samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("first tick wrote %d rows, want 0", len(rows))
	}

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	rows, err = samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("second tick wrote %d rows, want 1", len(rows))
	}
	if rows[0].BytesSent != 400 || rows[0].BytesReceived != 150 {
		t.Errorf("first delta = (%d, %d), want (400, 150)",
			rows[0].BytesSent, rows[0].BytesReceived)
	}
}

// A counter decrease emits a zero row and adopts the lower value as the
// new baseline.
func TestCounterResetAdoptsNewBaseline(t *testing.T) {
	src := &scriptedSampler{snaps: []*sampler.Snapshot{
		snapshotAt(0, appA(1000, 0)),
		snapshotAt(1, appA(400, 0)), // reset
		snapshotAt(2, appA(500, 0)),
	}}
	c, samples := newHarness(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].BytesSent != 0 {
		t.Errorf("reset tick stored %d, want 0", rows[0].BytesSent)
	}
	if rows[1].BytesSent != 100 {
		t.Errorf("post-reset delta = %d, want 100", rows[1].BytesSent)
	}
}

// An identity that disappears is dropped from the baseline without a
// negative correction; its return is treated as a fresh first sighting.
func TestExitedProcessDropsBaseline(t *testing.T) {
	src := &scriptedSampler{snaps: []*sampler.Snapshot{
		snapshotAt(0, appA(1000, 0)),
		snapshotAt(1, map[sampler.Identity]sampler.Counters{}), // A exited
		snapshotAt(2, appA(50, 0)),                             // A returned
		snapshotAt(3, appA(80, 0)),
	}}
	c, samples := newHarness(t, src)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := c.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if sec := int(rows[0].Ts.Sub(epoch) / time.Second); sec != 3 {
		t.Errorf("delta row at %ds, want 3s", sec)
	}
	if rows[0].BytesSent != 30 {
		t.Errorf("delta after return = %d, want 30", rows[0].BytesSent)
	}
}

// A failed snapshot is "no data for this tick": nothing stored, the
// baseline untouched.
func TestFailedSnapshotSkipsTick(t *testing.T) {
	src := &scriptedSampler{
		snaps: []*sampler.Snapshot{
			snapshotAt(0, appA(1000, 0)),
			nil,
			snapshotAt(2, appA(1300, 0)),
		},
		errs: []error{nil, common.TransientError(errors.New("enumeration failed"), "snapshot"), nil},
	}
	c, samples := newHarness(t, src)
	ctx := context.Background()

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); err == nil {
		t.Fatal("failed snapshot should surface an error")
	}
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}

	rows, err := samples.RawSeries(ctx, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	// The missed interval folds into the next delta.
	if rows[0].BytesSent != 300 {
		t.Errorf("delta across missed tick = %d, want 300", rows[0].BytesSent)
	}
}
