package settings

import (
	"os"
	"path/filepath"
	"testing"

	"gridline/engine/interfaces"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing settings file: %v", err)
	}
	return path
}

func TestLoadReturnsDefaultsWithoutFile(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(t.TempDir(), "nope.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Load(tt.path)
			if s != Default() {
				t.Errorf("expected defaults, got %+v", s)
			}
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeSettingsFile(t, `
batch_size: 250
debounce_delay_ms: 150
manual_validation: true
minimum_rows: 5
auto_expand: false
`)
	s := Load(path)

	if s.BatchSize != 250 {
		t.Errorf("expected batch size 250, got %d", s.BatchSize)
	}
	if s.DebounceDelayMs != 150 {
		t.Errorf("expected debounce delay 150, got %d", s.DebounceDelayMs)
	}
	if !s.ManualValidation {
		t.Error("expected manual validation enabled")
	}
	if s.RowManagement.MinimumRows != 5 {
		t.Errorf("expected minimum rows 5, got %d", s.RowManagement.MinimumRows)
	}
	if s.RowManagement.AutoExpandEnabled {
		t.Error("expected auto-expand disabled")
	}

	// Keys absent from the file keep their defaults
	if !s.EnableBatchValidation || !s.EnableRealTimeValidation {
		t.Error("untouched validation toggles must keep defaults")
	}
	if !s.RowManagement.SmartDeleteEnabled {
		t.Error("untouched smart delete toggle must keep its default")
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	path := writeSettingsFile(t, `
batch_size: -10
debounce_delay_ms: "soon"
manual_validation: 3
`)
	s := Load(path)
	if s != Default() {
		t.Errorf("mistyped or out-of-range values must fall back to defaults, got %+v", s)
	}
}

func TestLoadSurvivesMalformedYAML(t *testing.T) {
	path := writeSettingsFile(t, "batch_size: [unclosed")
	if s := Load(path); s != Default() {
		t.Errorf("malformed file must fall back to defaults, got %+v", s)
	}
}

func TestValidateRowManagement(t *testing.T) {
	tests := []struct {
		name    string
		minimum int
		wantErr bool
	}{
		{"below range", 0, true},
		{"lower bound", 1, false},
		{"typical", 25, false},
		{"upper bound", 1000, false},
		{"above range", 1001, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := interfaces.DefaultRowManagementConfiguration()
			cfg.MinimumRows = tt.minimum
			err := ValidateRowManagement(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRowManagement(min=%d) error = %v, wantErr %v", tt.minimum, err, tt.wantErr)
			}
		})
	}
}
