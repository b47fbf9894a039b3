package app

import (
	"github.com/netpulse/netpulse/config"
	"github.com/netpulse/netpulse/internal/store"
)

// StoreProvider provides store access
type StoreProvider interface {
	Store() *store.Store
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides runtime settings access
type SettingsProvider interface {
	ConfigMgr() *ConfigManager
}
