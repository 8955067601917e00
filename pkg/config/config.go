// Package config loads the scheduling core's tunables from a TOML
// file (§6 "Configuration"), using github.com/BurntSushi/toml, the TOML
// library already present in the pack. Every field has a spec-documented
// default so a missing or partial file still produces a usable config.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every recognized option (§6).
type Config struct {
	PPQ                  int     `toml:"ppq"`
	ScheduleAheadMs      float64 `toml:"schedule_ahead_ms"`
	TickDriverIntervalMs float64 `toml:"tick_driver_interval_ms"`
	AutomationIntervalMs float64 `toml:"automation_interval_ms"`
	DebounceIdleMs       float64 `toml:"debounce_idle_ms"`
	DebounceRealtimeMs   float64 `toml:"debounce_realtime_ms"`
	DebounceBurstMs      float64 `toml:"debounce_burst_ms"`
	StaleHorizonSeconds  float64 `toml:"stale_horizon_s"`
	MaxVoicesDefault     int     `toml:"max_voices_default"`
	SampleRate           int     `toml:"sample_rate"`
}

// Default returns the spec-documented defaults (§6).
func Default() Config {
	return Config{
		PPQ:                  96,
		ScheduleAheadMs:      0, // 0 = adaptive (§4.1)
		TickDriverIntervalMs: 16,
		AutomationIntervalMs: 10,
		DebounceIdleMs:       16,
		DebounceRealtimeMs:   4,
		DebounceBurstMs:      0,
		StaleHorizonSeconds:  1.5,
		MaxVoicesDefault:     16,
		SampleRate:           44100,
	}
}

// Load reads and merges a TOML file over Default(), so an absent or
// partial key falls back to the documented default rather than a Go
// zero value.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// TickDriverInterval converts the millisecond field to a time.Duration.
func (c Config) TickDriverInterval() time.Duration {
	return time.Duration(c.TickDriverIntervalMs * float64(time.Millisecond))
}

// AutomationInterval converts the millisecond field to a time.Duration.
func (c Config) AutomationInterval() time.Duration {
	return time.Duration(c.AutomationIntervalMs * float64(time.Millisecond))
}
