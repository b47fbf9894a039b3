package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store   *store.Store
	engine  *Engine
	samples *store.SampleRepository
	apps    *store.AppRepository
	domains *store.DomainRepository
	aggs    *store.AggregateRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	apps := store.NewAppRepository(s)
	domains := store.NewDomainRepository(s)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)
	engine := NewEngine(apps, domains, samples, aggs, store.NewSummaryRepository(s),
		func() Tunables {
			return Tunables{
				SamplingInterval: time.Second,
				RawTTL:           7 * 24 * time.Hour,
				HourTTL:          90 * 24 * time.Hour,
			}
		},
		func() time.Time { return testNow })
	return &harness{store: s, engine: engine, samples: samples, apps: apps, domains: domains, aggs: aggs}
}

func (h *harness) app(t *testing.T, name string) int64 {
	t.Helper()
	id, err := h.apps.Upsert(context.Background(), name, "", testNow.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (h *harness) raw(t *testing.T, ts time.Time, appID, out, in int64) {
	t.Helper()
	err := h.samples.InsertBatch(context.Background(), []domain.NetworkSample{{
		Timestamp: ts, AppID: appID, BytesSent: out, BytesReceived: in,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

// The rate comes from the latest two ticks only: per-tick rows are
// already deltas, so averaging more ticks would double-count.
func TestBandwidthUsesLatestTwoTicks(t *testing.T) {
	h := newHarness(t)
	a := h.app(t, "A")
	b := h.app(t, "B")

	// Totals 100, 200, 300 across three consecutive seconds, with the
	// last tick split across two apps.
	h.raw(t, testNow.Add(-2*time.Second), a, 100, 0)
	h.raw(t, testNow.Add(-1*time.Second), a, 200, 0)
	h.raw(t, testNow, a, 250, 0)
	h.raw(t, testNow, b, 50, 0)

	stat, err := h.engine.Bandwidth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stat.BytesPerSecond != 300 {
		t.Errorf("bytes/sec = %v, want 300 (never the 3-tick average 200)", stat.BytesPerSecond)
	}
	if stat.WindowSeconds != 1 {
		t.Errorf("window = %v, want 1", stat.WindowSeconds)
	}
}

// Fewer than two ticks present yields zero, not an error.
func TestBandwidthNeedsTwoTicks(t *testing.T) {
	h := newHarness(t)
	stat, err := h.engine.Bandwidth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stat.BytesPerSecond != 0 {
		t.Errorf("empty store bandwidth = %v, want 0", stat.BytesPerSecond)
	}

	a := h.app(t, "A")
	h.raw(t, testNow, a, 500, 0)
	stat, err = h.engine.Bandwidth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stat.BytesPerSecond != 0 {
		t.Errorf("single-tick bandwidth = %v, want 0", stat.BytesPerSecond)
	}
}

// A timeline over an empty period returns exactly the configured number
// of evenly spaced zero points.
func TestTimelineBucketShape(t *testing.T) {
	h := newHarness(t)
	win, buckets, err := h.engine.ResolveWindow("24h", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if buckets != 288 {
		t.Fatalf("24h bucket cap = %d, want 288", buckets)
	}

	points, err := h.engine.Timeline(context.Background(), win, buckets)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 288 {
		t.Fatalf("points = %d, want 288", len(points))
	}
	width := points[1].Timestamp.Sub(points[0].Timestamp)
	for i, p := range points {
		if p.BytesSent != 0 || p.BytesReceived != 0 || p.TotalBytes != 0 {
			t.Errorf("point %d not zero: %+v", i, p)
		}
		if i > 0 {
			if got := p.Timestamp.Sub(points[i-1].Timestamp); got != width {
				t.Errorf("uneven spacing at %d: %v vs %v", i, got, width)
			}
		}
	}
}

func TestTimelineSumsWithinBuckets(t *testing.T) {
	h := newHarness(t)
	a := h.app(t, "A")

	win, buckets, err := h.engine.ResolveWindow("1h", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if buckets != 60 {
		t.Fatalf("1h bucket cap = %d, want 60", buckets)
	}

	// Two rows inside the first minute-wide bucket, one in the second.
	h.raw(t, win.From.Add(5*time.Second), a, 10, 1)
	h.raw(t, win.From.Add(30*time.Second), a, 15, 2)
	h.raw(t, win.From.Add(70*time.Second), a, 7, 0)

	points, err := h.engine.Timeline(context.Background(), win, buckets)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 60 {
		t.Fatalf("points = %d, want 60", len(points))
	}
	if points[0].BytesSent != 25 || points[0].BytesReceived != 3 {
		t.Errorf("bucket 0 = (%d, %d), want (25, 3)", points[0].BytesSent, points[0].BytesReceived)
	}
	if points[1].BytesSent != 7 {
		t.Errorf("bucket 1 = %d, want 7", points[1].BytesSent)
	}
}

func TestResolveWindowRejectsUnknownPeriod(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.engine.ResolveWindow("13h", "", ""); !common.IsValidation(err) {
		t.Errorf("unknown period should be a validation error, got %v", err)
	}
}

func TestSortInputsAreClosedEnums(t *testing.T) {
	if _, err := store.ParseSortKey("totalBytes; DROP TABLE applications"); !common.IsValidation(err) {
		t.Errorf("hostile sort key should be a validation error, got %v", err)
	}
	if _, err := store.ParseSortKey("size"); !common.IsValidation(err) {
		t.Error("unknown sort key should be a validation error")
	}
	if _, err := store.ParseSortOrder("descending"); !common.IsValidation(err) {
		t.Error("unknown sort order should be a validation error")
	}
	for _, ok := range []string{"", "totalBytes", "bytesIn", "bytesOut", "lastSeen", "firstSeen"} {
		if _, err := store.ParseSortKey(ok); err != nil {
			t.Errorf("ParseSortKey(%q) failed: %v", ok, err)
		}
	}
}

func TestListAppsOrdering(t *testing.T) {
	h := newHarness(t)
	a := h.app(t, "heavy")
	b := h.app(t, "light")
	h.raw(t, testNow.Add(-10*time.Minute), a, 5000, 0)
	h.raw(t, testNow.Add(-10*time.Minute), b, 100, 0)

	win, _, err := h.engine.ResolveWindow("24h", "", "")
	if err != nil {
		t.Fatal(err)
	}
	apps, err := h.engine.ListApps(context.Background(), ListOptions{
		Limit: 10, Window: win, SortBy: store.SortTotalBytes, Order: store.OrderDesc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 2 {
		t.Fatalf("apps = %d, want 2", len(apps))
	}
	if apps[0].ProcessName != "heavy" || apps[0].TotalBytes != 5000 {
		t.Errorf("top app = %s/%d, want heavy/5000", apps[0].ProcessName, apps[0].TotalBytes)
	}

	asc, err := h.engine.ListApps(context.Background(), ListOptions{
		Limit: 10, Window: win, SortBy: store.SortTotalBytes, Order: store.OrderAsc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if asc[0].ProcessName != "light" {
		t.Errorf("ascending first = %s, want light", asc[0].ProcessName)
	}
}

func TestGetAppNotFound(t *testing.T) {
	h := newHarness(t)
	win, _, err := h.engine.ResolveWindow("24h", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.GetApp(context.Background(), 999, win); !common.IsNotFound(err) {
		t.Errorf("missing app should be NotFound, got %v", err)
	}
}

func TestSummaryTotals(t *testing.T) {
	h := newHarness(t)
	a := h.app(t, "browser")
	h.raw(t, testNow.Add(-2*time.Hour), a, 300, 100) // today
	h.raw(t, testNow.Add(-30*time.Minute), a, 100, 0)

	// A prior day of the same week, already in the daily tier.
	prior := common.DayStart(testNow).AddDate(0, 0, -1)
	err := h.store.Write(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&domain.DailyAggregate{
			DayStart: prior, AppID: a, BytesSent: 1000, SampleCount: 10,
		}).Error
	})
	if err != nil {
		t.Fatal(err)
	}

	sum, err := h.engine.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalBytesToday != 500 {
		t.Errorf("today = %d, want 500", sum.TotalBytesToday)
	}
	if sum.TotalBytesWeek != 1500 {
		t.Errorf("week = %d, want 1500", sum.TotalBytesWeek)
	}
	if sum.TopAppToday != "browser" {
		t.Errorf("top app = %q, want browser", sum.TopAppToday)
	}
}

func TestTopDomainsParentOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wwwID, err := h.domains.Upsert(ctx, "www.example.com", "example.com", testNow)
	if err != nil {
		t.Fatal(err)
	}
	parentID, err := h.domains.Upsert(ctx, "example.com", "example.com", testNow)
	if err != nil {
		t.Fatal(err)
	}
	browserApp := h.app(t, "zen")
	for i, domainID := range []int64{wwwID, wwwID, parentID} {
		err := h.samples.InsertBrowserSample(ctx, &domain.BrowserDomainSample{
			Timestamp: testNow.Add(-time.Duration(i+1) * time.Minute),
			DomainID:  domainID,
			AppID:     browserApp,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	win, _, err := h.engine.ResolveWindow("24h", "", "")
	if err != nil {
		t.Fatal(err)
	}

	all, err := h.engine.TopDomains(ctx, 10, win, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("domains = %d, want 2", len(all))
	}
	if all[0].Fqdn != "www.example.com" || all[0].VisitCount != 2 {
		t.Errorf("top domain = %s/%d, want www.example.com/2", all[0].Fqdn, all[0].VisitCount)
	}

	parents, err := h.engine.TopDomains(ctx, 10, win, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 1 || parents[0].Fqdn != "example.com" {
		t.Fatalf("parent-only = %+v, want only example.com", parents)
	}
}
