package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/capgate-project/capgate/pkg/observability/logging"
)

var (
	current    *EngineConfig
	currentErr error
	loadOnce   sync.Once
	currentMu  sync.RWMutex
)

// Load loads the configuration from the given YAML file once and caches it
// globally. Subsequent calls return the cached config.
func Load(configPath string) (*EngineConfig, error) {
	loadOnce.Do(func() {
		cfg, err := Parse(configPath)
		if err != nil {
			currentErr = err
			return
		}
		currentMu.Lock()
		current = cfg
		currentMu.Unlock()
	})
	if currentErr != nil {
		return nil, currentErr
	}
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current, nil
}

// Parse parses and validates the YAML config file without touching the
// global cache.
func Parse(configPath string) (*EngineConfig, error) {
	// Resolve symlinks to handle mounted config files.
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &EngineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	logging.Infof("Config loaded: categories=%d, tier1=%d, safe_defaults=%d",
		len(cfg.Categories), len(cfg.TierOneIDs()), len(cfg.SafeDefaultIDs()))
	return cfg, nil
}

// Replace swaps the globally cached config. Safe for concurrent readers.
// In-flight decisions keep the snapshot they started with; only new requests
// see the replacement.
func Replace(newCfg *EngineConfig) {
	currentMu.Lock()
	current = newCfg
	currentErr = nil
	currentMu.Unlock()
	logging.Infof("Config replaced: categories=%d", len(newCfg.Categories))
}

// Get returns the current configuration, or nil before Load.
func Get() *EngineConfig {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}
