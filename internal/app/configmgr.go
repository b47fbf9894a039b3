package app

import (
	"context"
	"sync"
	"time"

	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Runtime setting keys. Values live in sys_config as text and are
// validated against these ranges on every write.
const (
	KeySamplingInterval = "samplingIntervalSeconds"
	KeyRawTTLDays       = "rawTTLDays"
	KeyHourTTLDays      = "hourTTLDays"
	KeyServerPort       = "serverPort"
	KeyLogLevel         = "logLevel"
)

type settingSpec struct {
	def      string
	remark   string
	validate func(string) error
}

func intRange(lo, hi int64) func(string) error {
	return func(v string) error {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return common.ValidationError("value %q is not an integer", v)
		}
		if n < lo || n > hi {
			return common.ValidationError("value %d outside range [%d, %d]", n, lo, hi)
		}
		return nil
	}
}

var settingSpecs = map[string]settingSpec{
	KeySamplingInterval: {def: "5", remark: "Sampler period in seconds", validate: intRange(1, 3600)},
	KeyRawTTLDays:       {def: "7", remark: "Raw sample retention in days", validate: intRange(1, 3650)},
	KeyHourTTLDays:      {def: "90", remark: "Hourly aggregate retention in days", validate: intRange(1, 3650)},
	KeyServerPort:       {def: "7500", remark: "HTTP bind port", validate: intRange(1024, 65535)},
	KeyLogLevel: {def: "info", remark: "Logging verbosity", validate: func(v string) error {
		switch v {
		case "debug", "info", "warn", "error":
			return nil
		}
		return common.ValidationError("unknown log level %q", v)
	}},
}

// ConfigManager caches the runtime settings from the store. Values are
// read at startup and on explicit reload; retention changes take effect
// on the next scheduler tick through the accessor funcs.
type ConfigManager struct {
	repo *store.ConfigRepository

	mu     sync.RWMutex
	values map[string]string
}

func NewConfigManager(repo *store.ConfigRepository) *ConfigManager {
	values := make(map[string]string, len(settingSpecs))
	for key, spec := range settingSpecs {
		values[key] = spec.def
	}
	return &ConfigManager{repo: repo, values: values}
}

// Load seeds missing settings with defaults and caches the rest.
// Invalid stored values fall back to the default with a warning.
func (m *ConfigManager) Load(ctx context.Context) error {
	for key, spec := range settingSpecs {
		value, ok, err := m.repo.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			if err := m.repo.Set(ctx, key, spec.def, spec.remark); err != nil {
				return err
			}
			value = spec.def
		} else if err := spec.validate(value); err != nil {
			zap.L().Warn("stored setting invalid, using default",
				zap.String("key", key), zap.String("value", value), zap.Error(err))
			value = spec.def
		}
		m.mu.Lock()
		m.values[key] = value
		m.mu.Unlock()
	}
	return nil
}

// Reload re-reads every enumerated key from the store.
func (m *ConfigManager) Reload(ctx context.Context) error {
	return m.Load(ctx)
}

// Set validates and persists one setting, updating the cache.
func (m *ConfigManager) Set(ctx context.Context, key, value string) error {
	spec, ok := settingSpecs[key]
	if !ok {
		return common.ValidationError("unknown setting %q", key)
	}
	if err := spec.validate(value); err != nil {
		return err
	}
	if err := m.repo.Set(ctx, key, value, spec.remark); err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// GetString returns the cached value for key.
func (m *ConfigManager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

// GetInt returns the cached value for key as an int.
func (m *ConfigManager) GetInt(key string) int {
	return cast.ToInt(m.GetString(key))
}

// All returns the current settings as key/value pairs.
func (m *ConfigManager) All(ctx context.Context) (map[string]string, error) {
	rows, err := m.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Value
	}
	return out, nil
}

// SamplingInterval returns the sampler period.
func (m *ConfigManager) SamplingInterval() time.Duration {
	return time.Duration(m.GetInt(KeySamplingInterval)) * time.Second
}

// RetentionPolicy returns the raw and hourly TTLs in days.
func (m *ConfigManager) RetentionPolicy() (int, int) {
	return m.GetInt(KeyRawTTLDays), m.GetInt(KeyHourTTLDays)
}

// Tunables adapts the settings for the query engine's tier selection.
func (m *ConfigManager) Tunables() query.Tunables {
	raw, hour := m.RetentionPolicy()
	return query.Tunables{
		SamplingInterval: m.SamplingInterval(),
		RawTTL:           time.Duration(raw) * 24 * time.Hour,
		HourTTL:          time.Duration(hour) * 24 * time.Hour,
	}
}
