package interfaces

import "time"

// Severity classifies a validation outcome. Higher values are more severe,
// which lets group evaluation pick the worst severity among failing children.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the display name for a severity level
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	default:
		return "Info"
	}
}

// RowScope identifies which subset of rows a validation pass covered.
// Scope state is cached per scope so repeated validation of an unchanged
// dataset is a map lookup.
type RowScope int

const (
	ScopeAllRows RowScope = iota
	ScopeFilteredRows
)

// String returns the scope name for logging and cache keys
func (s RowScope) String() string {
	if s == ScopeFilteredRows {
		return "filtered"
	}
	return "all"
}

// Row represents a single data row with a stable identity.
// ID is assigned at creation and never reused; Number is the display-order
// position and is recomputed on structural changes.
type Row struct {
	ID      string         // Stable row identity ("row_<uuid>"), immutable for the row's lifetime
	Number  int            // 1-based display order, dense and ordered
	Data    map[string]any // Column name -> dynamically typed value
	Checked bool           // Checkbox-column state, used by checked-only streaming
}

// IsEmpty reports whether the row has no meaningful content.
// A row is non-empty when at least one field holds a non-nil value whose
// string form is not all whitespace.
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if !IsBlankValue(v) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the row's field map with the same identity
func (r *Row) Clone() *Row {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &Row{ID: r.ID, Number: r.Number, Data: data, Checked: r.Checked}
}

// ValidationResult is the outcome of evaluating one rule (or rule group)
// against its input. Failures are values, never errors.
type ValidationResult struct {
	IsValid  bool
	Message  string
	Severity Severity
	Column   string        // Affected column, empty for row/dataset level results
	TimedOut bool          // Distinguishes a per-rule timeout from a plain failure
	Fault    bool          // True when the rule itself panicked and was recovered
	Duration time.Duration // Elapsed evaluation time
}

// Success returns a passing result with the elapsed time recorded
func Success(elapsed time.Duration) ValidationResult {
	return ValidationResult{IsValid: true, Duration: elapsed}
}

// Failure returns a failing result for the given column and severity
func Failure(message string, severity Severity, column string, elapsed time.Duration) ValidationResult {
	return ValidationResult{
		IsValid:  false,
		Message:  message,
		Severity: severity,
		Column:   column,
		Duration: elapsed,
	}
}

// Timeout returns the distinguished result used when a rule exceeds its
// per-rule time budget. Timeouts are not propagated as errors.
func Timeout(ruleName string, elapsed time.Duration) ValidationResult {
	return ValidationResult{
		IsValid:  false,
		Message:  "rule '" + ruleName + "' timed out",
		Severity: SeverityError,
		TimedOut: true,
		Duration: elapsed,
	}
}

// ValidationError is one row/rule failure produced by a validation pass.
// The full set for a pass is written to the row store exactly once.
type ValidationError struct {
	RowIndex int    // 0-based index at evaluation time
	RowID    string // Stable identity, survives index shifts
	RuleID   string
	Column   string
	Message  string
	Severity Severity
}

// ValidationStatistics summarizes a completed validation pass.
// Returned as an explicit value from each operation rather than kept as
// shared mutable state.
type ValidationStatistics struct {
	Scope         RowScope
	TotalRows     int // Rows seen by the streaming pass, empty rows included
	ValidatedRows int // Non-empty rows actually evaluated
	ErrorCount    int
	WarningCount  int
	RuleFaults    int // Rules that panicked and were converted to synthetic errors
	FromCache     bool
	Duration      time.Duration
}

// AllValid reports whether the pass found no error-severity failures
func (s ValidationStatistics) AllValid() bool {
	return s.ErrorCount == 0
}

// RowManagementConfiguration controls the smart add/delete invariants.
// It is consulted on every add/delete decision, not just at construction.
type RowManagementConfiguration struct {
	MinimumRows         int  `yaml:"minimum_rows"`
	AutoExpandEnabled   bool `yaml:"auto_expand"`
	SmartDeleteEnabled  bool `yaml:"smart_delete"`
	AlwaysKeepLastEmpty bool `yaml:"keep_last_empty"`
}

// DefaultRowManagementConfiguration returns the standard configuration
func DefaultRowManagementConfiguration() RowManagementConfiguration {
	return RowManagementConfiguration{
		MinimumRows:         1,
		AutoExpandEnabled:   true,
		SmartDeleteEnabled:  true,
		AlwaysKeepLastEmpty: true,
	}
}

// RowManagementStatistics counts what one lifecycle operation did.
// Produced per operation, never persisted.
type RowManagementStatistics struct {
	EmptyRowsCreated      int
	RowsPhysicallyDeleted int
	RowsContentCleared    int
	RowsShifted           int
}

// StreamOptions controls a streaming batch read from the row store
type StreamOptions struct {
	OnlyFiltered bool // Apply the store's current row filter
	OnlyChecked  bool // Only rows whose checkbox column is set
	BatchSize    int  // Rows per batch; DefaultBatchSize when <= 0
}

// ProgressCallback provides real-time feedback during long validation passes
type ProgressCallback func(stage string, current, total int64, message string)

// Logger is the minimal logging contract components accept. Implementations
// route to whatever sink the embedding application uses.
type Logger interface {
	Log(level, message string)
}

const (
	// DefaultBatchSize is the global batch size used uniformly for
	// validation and streaming reads
	DefaultBatchSize = 1000

	// ProgressUpdateInterval defines how often to report progress
	ProgressUpdateInterval = 1000

	// DefaultRuleTimeout is the per-rule evaluation budget when a rule
	// does not declare its own
	DefaultRuleTimeout = 2 * time.Second
)
