// Package settings holds the engine's tunable configuration: defaults
// overlaid with optional YAML file overrides.
package settings

import (
	"fmt"
	"os"

	"gridline/engine/interfaces"

	"gopkg.in/yaml.v3"
)

// Settings is the engine-wide configuration
type Settings struct {
	// BatchSize is the global batch size used uniformly for validation
	// and streaming reads
	BatchSize int

	// DebounceDelayMs is the window for collapsing validation bursts
	DebounceDelayMs int

	// ManualValidation disables all automatic validation; the per-path
	// toggles below are ignored while it is set
	ManualValidation bool

	// EnableBatchValidation gates automatic validation after bulk
	// operations (import, paste, smart add/delete)
	EnableBatchValidation bool

	// EnableRealTimeValidation gates automatic validation after
	// single-cell edits
	EnableRealTimeValidation bool

	// MaxRuleParallelism bounds per-row parallel rule evaluation;
	// zero means one worker per CPU
	MaxRuleParallelism int

	// RowManagement is the default row management configuration
	RowManagement interfaces.RowManagementConfiguration
}

var defaultSettings = Settings{
	BatchSize:                interfaces.DefaultBatchSize,
	DebounceDelayMs:          300,
	EnableBatchValidation:    true,
	EnableRealTimeValidation: true,
	RowManagement:            interfaces.DefaultRowManagementConfiguration(),
}

// Default returns the built-in defaults
func Default() Settings {
	return defaultSettings
}

// Load returns the effective settings: defaults overlaid with overrides
// from the given YAML file. If anything goes wrong reading or parsing the
// file, it returns defaults.
func Load(path string) Settings {
	s := defaultSettings
	if path == "" {
		return s
	}
	if _, err := os.Stat(path); err != nil {
		// no file or other stat error -> return defaults
		return s
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return s
	}
	if v, ok := m["batch_size"]; ok {
		if vi, oki := v.(int); oki && vi > 0 {
			s.BatchSize = vi
		}
	}
	if v, ok := m["debounce_delay_ms"]; ok {
		if vi, oki := v.(int); oki && vi >= 0 {
			s.DebounceDelayMs = vi
		}
	}
	if v, ok := m["manual_validation"]; ok {
		if vb, okb := v.(bool); okb {
			s.ManualValidation = vb
		}
	}
	if v, ok := m["enable_batch_validation"]; ok {
		if vb, okb := v.(bool); okb {
			s.EnableBatchValidation = vb
		}
	}
	if v, ok := m["enable_realtime_validation"]; ok {
		if vb, okb := v.(bool); okb {
			s.EnableRealTimeValidation = vb
		}
	}
	if v, ok := m["max_rule_parallelism"]; ok {
		if vi, oki := v.(int); oki && vi > 0 {
			s.MaxRuleParallelism = vi
		}
	}
	if v, ok := m["minimum_rows"]; ok {
		if vi, oki := v.(int); oki {
			s.RowManagement.MinimumRows = vi
		}
	}
	if v, ok := m["auto_expand"]; ok {
		if vb, okb := v.(bool); okb {
			s.RowManagement.AutoExpandEnabled = vb
		}
	}
	if v, ok := m["smart_delete"]; ok {
		if vb, okb := v.(bool); okb {
			s.RowManagement.SmartDeleteEnabled = vb
		}
	}
	if v, ok := m["keep_last_empty"]; ok {
		if vb, okb := v.(bool); okb {
			s.RowManagement.AlwaysKeepLastEmpty = vb
		}
	}
	return s
}

const (
	minAllowedRows = 1
	maxAllowedRows = 1000
)

// ValidateRowManagement checks a row management configuration at
// configuration time. Failures come back as an error value, never a panic.
func ValidateRowManagement(cfg interfaces.RowManagementConfiguration) error {
	if cfg.MinimumRows < minAllowedRows || cfg.MinimumRows > maxAllowedRows {
		return fmt.Errorf("minimum rows must be within [%d,%d], got %d", minAllowedRows, maxAllowedRows, cfg.MinimumRows)
	}
	return nil
}
