package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
)

func newConfigManager(t *testing.T) *ConfigManager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	m := NewConfigManager(store.NewConfigRepository(s))
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDefaultsSeeded(t *testing.T) {
	m := newConfigManager(t)
	if got := m.GetInt(KeySamplingInterval); got != 5 {
		t.Errorf("samplingIntervalSeconds = %d, want 5", got)
	}
	raw, hour := m.RetentionPolicy()
	if raw != 7 || hour != 90 {
		t.Errorf("retention policy = %d/%d, want 7/90", raw, hour)
	}
	if got := m.GetInt(KeyServerPort); got != 7500 {
		t.Errorf("serverPort = %d, want 7500", got)
	}
	if got := m.GetString(KeyLogLevel); got != "info" {
		t.Errorf("logLevel = %q, want info", got)
	}
}

func TestSetValidatesRanges(t *testing.T) {
	m := newConfigManager(t)
	ctx := context.Background()

	bad := map[string]string{
		KeySamplingInterval: "0",
		KeyRawTTLDays:       "0",
		KeyServerPort:       "80",
		KeyLogLevel:         "verbose",
	}
	for key, value := range bad {
		if err := m.Set(ctx, key, value); !common.IsValidation(err) {
			t.Errorf("Set(%s, %s) should be a validation error, got %v", key, value, err)
		}
	}
	if err := m.Set(ctx, "unknownKey", "1"); !common.IsValidation(err) {
		t.Errorf("unknown key should be a validation error, got %v", err)
	}

	// Rejected writes leave the cached values untouched.
	if got := m.GetInt(KeySamplingInterval); got != 5 {
		t.Errorf("samplingIntervalSeconds after rejects = %d, want 5", got)
	}
}

func TestSetAndReload(t *testing.T) {
	m := newConfigManager(t)
	ctx := context.Background()

	if err := m.Set(ctx, KeySamplingInterval, "30"); err != nil {
		t.Fatal(err)
	}
	if got := m.SamplingInterval().Seconds(); got != 30 {
		t.Errorf("sampling interval = %vs, want 30s", got)
	}
	if err := m.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.GetInt(KeySamplingInterval); got != 30 {
		t.Errorf("reload lost the stored value: %d", got)
	}

	tunables := m.Tunables()
	if tunables.RawTTL.Hours() != 7*24 {
		t.Errorf("raw TTL = %v, want 168h", tunables.RawTTL)
	}
}
