// Package config loads device configuration from YAML or JSON files and maps
// it onto the patrol, geofence, and syncer packages.
package config

import (
	"errors"
	"fmt"

	"github.com/guardline/patrolkit/pkg/patrol/geofence"
	"github.com/guardline/patrolkit/pkg/patrol/syncer"
)

// Validation errors.
var (
	// ErrInvalidThreshold indicates a non-positive proximity threshold.
	ErrInvalidThreshold = errors.New("proximity threshold must be positive")

	// ErrInvalidExitFactor indicates an exit factor below 1.0.
	ErrInvalidExitFactor = errors.New("exit factor must be at least 1.0")

	// ErrInvalidInterval indicates a non-positive sync interval.
	ErrInvalidInterval = errors.New("sync interval must be positive")

	// ErrInvalidBackoff indicates an inconsistent backoff range.
	ErrInvalidBackoff = errors.New("max backoff must be at least initial backoff")
)

// Config is the full device configuration.
type Config struct {
	Geofence GeofenceConfig `yaml:"geofence" json:"geofence"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
}

// GeofenceConfig tunes proximity detection.
type GeofenceConfig struct {
	// ThresholdFeet is the proximity radius around each checkpoint.
	ThresholdFeet float64 `yaml:"threshold_feet" json:"threshold_feet"`

	// ExitFactor widens the exit boundary relative to the threshold.
	// 1.0 disables the dead band.
	ExitFactor float64 `yaml:"exit_factor" json:"exit_factor"`
}

// SyncConfig tunes the periodic sync trigger.
// Durations accept "30s"/"5m" style strings or bare seconds.
type SyncConfig struct {
	Interval       Duration `yaml:"interval" json:"interval"`
	InitialBackoff Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffFactor  float64  `yaml:"backoff_factor" json:"backoff_factor"`
	Jitter         float64  `yaml:"jitter" json:"jitter"`
}

// StorageConfig locates the on-device databases.
type StorageConfig struct {
	// RecordPath is the record database file. Empty means in-memory.
	RecordPath string `yaml:"record_path" json:"record_path"`

	// SettingsPath is the settings database file. Empty means in-memory.
	SettingsPath string `yaml:"settings_path" json:"settings_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Geofence: GeofenceConfig{
			ThresholdFeet: geofence.DefaultThresholdFeet,
			ExitFactor:    1.0,
		},
		Sync: SyncConfig{
			Interval:       Duration(syncer.DefaultTriggerConfig.Interval),
			InitialBackoff: Duration(syncer.DefaultTriggerConfig.InitialBackoff),
			MaxBackoff:     Duration(syncer.DefaultTriggerConfig.MaxBackoff),
			BackoffFactor:  syncer.DefaultTriggerConfig.BackoffFactor,
			Jitter:         syncer.DefaultTriggerConfig.Jitter,
		},
	}
}

// Validate checks the configuration for values the runtime would reject.
func (c Config) Validate() error {
	if c.Geofence.ThresholdFeet <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.Geofence.ThresholdFeet)
	}
	if c.Geofence.ExitFactor < 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidExitFactor, c.Geofence.ExitFactor)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidInterval, c.Sync.Interval)
	}
	if c.Sync.MaxBackoff < c.Sync.InitialBackoff {
		return fmt.Errorf("%w: initial %v, max %v", ErrInvalidBackoff,
			c.Sync.InitialBackoff, c.Sync.MaxBackoff)
	}
	return nil
}

// MonitorOptions translates the geofence section into monitor options.
func (c Config) MonitorOptions() []geofence.MonitorOption {
	return []geofence.MonitorOption{
		geofence.WithThresholdFeet(c.Geofence.ThresholdFeet),
		geofence.WithExitFactor(c.Geofence.ExitFactor),
	}
}

// TriggerConfig translates the sync section into a trigger configuration.
func (c Config) TriggerConfig() syncer.TriggerConfig {
	return syncer.TriggerConfig{
		Interval:       c.Sync.Interval.Std(),
		InitialBackoff: c.Sync.InitialBackoff.Std(),
		MaxBackoff:     c.Sync.MaxBackoff.Std(),
		BackoffFactor:  c.Sync.BackoffFactor,
		Jitter:         c.Sync.Jitter,
	}
}
