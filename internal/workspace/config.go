package workspace

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional per-workspace configuration file, looked up
// at the workspace root.
const ConfigFileName = ".workspace-doctor.yaml"

// Config holds tunable engine settings. Zero values fall back to defaults
// applied by Normalize.
type Config struct {
	// PackagesDir overrides the directory holding module packages,
	// relative to the workspace root.
	PackagesDir string `yaml:"packages_dir"`

	// CacheTTL bounds how long analysis snapshots are served from cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// MaxConcurrency bounds parallel task execution within a phase.
	MaxConcurrency int `yaml:"max_concurrency"`

	// TargetHealthScore is the default per-module recovery target.
	TargetHealthScore int `yaml:"target_health_score"`

	// AnalyticsDir is where operation/profile/report documents are written,
	// relative to the workspace root.
	AnalyticsDir string `yaml:"analytics_dir"`

	// WatchEnabled starts the fsnotify cache invalidation watcher.
	WatchEnabled bool `yaml:"watch_enabled"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PackagesDir:       "packages",
		CacheTTL:          30 * time.Second,
		MaxConcurrency:    4,
		TargetHealthScore: 85,
		AnalyticsDir:      ".workspace-doctor/analytics",
		WatchEnabled:      false,
	}
}

// Normalize fills zero-valued fields with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.PackagesDir == "" {
		c.PackagesDir = def.PackagesDir
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.TargetHealthScore <= 0 {
		c.TargetHealthScore = def.TargetHealthScore
	}
	if c.AnalyticsDir == "" {
		c.AnalyticsDir = def.AnalyticsDir
	}
}

// LoadConfig reads the workspace configuration file if present; a missing
// file yields the defaults without error.
func LoadConfig(root string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}
	cfg.Normalize()
	return cfg, nil
}
