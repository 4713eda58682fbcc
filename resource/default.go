package resource

import (
	"sync"

	"github.com/kbukum/meshflow/logger"
)

var (
	defaultMu      sync.Mutex
	defaultConfig  Config
	defaultManager *Manager
)

// Default returns the process-wide manager, creating it on first use.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager(defaultConfig, logger.GetGlobalLogger())
	}
	return defaultManager
}

// Configure sets the configuration of the default manager. An existing
// default manager is closed and replaced on next use.
func Configure(cfg Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	defaultMu.Lock()
	old := defaultManager
	defaultConfig = cfg
	defaultManager = nil
	defaultMu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

// Reset closes the default manager and forgets its configuration.
func Reset() error {
	defaultMu.Lock()
	old := defaultManager
	defaultConfig = Config{}
	defaultManager = nil
	defaultMu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}
