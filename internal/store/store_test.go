package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpenRunsMigrations(t *testing.T) {
	s, _ := openTestStore(t)
	if got := s.SchemaVersion(); got != 1 {
		t.Errorf("schema version = %d, want 1", got)
	}
	// Every table is queryable after open.
	ctx := context.Background()
	for _, model := range domain.Tables {
		var n int64
		if err := s.Read(ctx).Model(model).Count(&n).Error; err != nil {
			t.Errorf("table for %T not migrated: %v", model, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer again.Close()
	if got := again.SchemaVersion(); got != 1 {
		t.Errorf("schema version after reopen = %d, want 1", got)
	}
}

func TestStoreFilePermissions(t *testing.T) {
	_, path := openTestStore(t)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("store file mode = %o, want 600", perm)
	}

	dirInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("data dir mode = %o, want 700", perm)
	}
}

// The (timestamp, app) uniqueness coalesces replayed tick rows.
func TestSampleBatchConflictIgnored(t *testing.T) {
	s, _ := openTestStore(t)
	repo := NewSampleRepository(s)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []domain.NetworkSample{{Timestamp: ts, AppID: 1, BytesSent: 10}}
	if err := repo.InsertBatch(ctx, rows); err != nil {
		t.Fatal(err)
	}
	replay := []domain.NetworkSample{{Timestamp: ts, AppID: 1, BytesSent: 999}}
	if err := repo.InsertBatch(ctx, replay); err != nil {
		t.Fatal(err)
	}

	var n int64
	if err := s.Read(ctx).Model(&domain.NetworkSample{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
	var kept domain.NetworkSample
	if err := s.Read(ctx).First(&kept).Error; err != nil {
		t.Fatal(err)
	}
	if kept.BytesSent != 10 {
		t.Errorf("replay overwrote original row: %d", kept.BytesSent)
	}
}

func TestConfigRepositoryRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	repo := NewConfigRepository(s)
	ctx := context.Background()

	if _, ok, err := repo.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := repo.Set(ctx, "samplingIntervalSeconds", "5", ""); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, "samplingIntervalSeconds", "10", ""); err != nil {
		t.Fatal(err)
	}
	value, ok, err := repo.Get(ctx, "samplingIntervalSeconds")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if value != "10" {
		t.Errorf("value = %q, want 10", value)
	}
}
