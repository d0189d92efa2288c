// Package runtimeconfig loads process-level tunables that are meant to be
// hand-edited and are not part of the entity model: supervisor interval
// overrides, witness pool sizing, and similar knobs, read from an optional
// TOML file.
package runtimeconfig

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the process tunables a deployment may override. Zero values
// mean "defer to the Settings document's own defaults".
type Config struct {
	SupervisorIntervalSeconds int  `toml:"supervisor_interval_seconds"`
	PropulsionIntervalSeconds int  `toml:"propulsion_interval_seconds"`
	MaxPolecatsPerRig         int  `toml:"max_polecats_per_rig"`
	PolecatNudgeAfterSeconds  int  `toml:"polecat_nudge_after_seconds"`
	AutoRefinerySync          bool `toml:"auto_refinery_sync"`
	CompactionRetentionDays   int  `toml:"compaction_retention_days"`
}

// Load parses path as TOML. A missing file yields the zero Config rather
// than an error, matching the Persistent Store's own missing-file tolerance.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// Overlay applies cfg's nonzero fields onto base (typically derived from the
// Settings document), returning the merged tunables, so a user's
// runtimeconfig.toml can be layered on top of stored defaults.
func (cfg Config) Overlay(base Config) Config {
	merged := base
	if cfg.SupervisorIntervalSeconds > 0 {
		merged.SupervisorIntervalSeconds = cfg.SupervisorIntervalSeconds
	}
	if cfg.PropulsionIntervalSeconds > 0 {
		merged.PropulsionIntervalSeconds = cfg.PropulsionIntervalSeconds
	}
	if cfg.MaxPolecatsPerRig > 0 {
		merged.MaxPolecatsPerRig = cfg.MaxPolecatsPerRig
	}
	if cfg.PolecatNudgeAfterSeconds > 0 {
		merged.PolecatNudgeAfterSeconds = cfg.PolecatNudgeAfterSeconds
	}
	if cfg.CompactionRetentionDays > 0 {
		merged.CompactionRetentionDays = cfg.CompactionRetentionDays
	}
	if cfg.AutoRefinerySync {
		merged.AutoRefinerySync = true
	}
	return merged
}
