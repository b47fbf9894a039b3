package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SysConfig system-level settings
type SysConfig struct {
	Workdir  string `yaml:"workdir" json:"workdir"`
	Location string `yaml:"location" json:"location"`
}

// ServerConfig HTTP query surface settings. The daemon binds loopback only.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// SamplerConfig process sampling settings
type SamplerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RetentionConfig tiered retention settings
type RetentionConfig struct {
	RawTTLDays          int `yaml:"raw_ttl_days" json:"raw_ttl_days"`
	HourTTLDays         int `yaml:"hour_ttl_days" json:"hour_ttl_days"`
	TickIntervalSeconds int `yaml:"tick_interval_seconds" json:"tick_interval_seconds"`
}

// LoggerConfig logging settings
type LoggerConfig struct {
	Level      string `yaml:"level" json:"level"`
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System    SysConfig       `yaml:"system" json:"system"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Sampler   SamplerConfig   `yaml:"sampler" json:"sampler"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
	Logger    LoggerConfig    `yaml:"logger" json:"logger"`
}

// DBPath returns the store file path inside the workdir.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.System.Workdir, "netpulse.db")
}

// LogDir returns the log directory inside the workdir.
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

// MetricsDir returns the internal metrics storage directory.
func (c *AppConfig) MetricsDir() string {
	return filepath.Join(c.System.Workdir, "metrics")
}

func DefaultConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	workdir := filepath.Join(home, ".netpulse")
	return &AppConfig{
		System: SysConfig{
			Workdir:  workdir,
			Location: "UTC",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7500,
		},
		Sampler: SamplerConfig{
			IntervalSeconds: 5,
			TimeoutSeconds:  5,
		},
		Retention: RetentionConfig{
			RawTTLDays:          7,
			HourTTLDays:         90,
			TickIntervalSeconds: 300,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Mode:       "production",
			FileEnable: true,
			Filename:   filepath.Join(workdir, "logs", "netpulsed.log"),
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// is not an error; the defaults apply.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Logger.Filename == "" {
		cfg.Logger.Filename = filepath.Join(cfg.System.Workdir, "logs", "netpulsed.log")
	}
	return cfg, nil
}
