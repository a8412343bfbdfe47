package validation

import "strings"

// ValidationMode selects how validation runs for a given operation
type ValidationMode int

const (
	// ModeBatch defers and coalesces validation after bulk operations
	ModeBatch ValidationMode = iota
	// ModeRealTime validates immediately against only the rules that
	// depend on the touched column
	ModeRealTime
)

// String returns the mode name
func (m ValidationMode) String() string {
	if m == ModeRealTime {
		return "realtime"
	}
	return "batch"
}

// Operation names used by callers when asking for mode and policy decisions
const (
	OpImport      = "import"
	OpExport      = "export"
	OpPaste       = "paste"
	OpSmartAdd    = "smart_add"
	OpSmartDelete = "smart_delete"
	OpRowAppend   = "row_append"
	OpCellEdit    = "cell_edit"
	OpBeginEdit   = "begin_edit"
	OpCommitEdit  = "commit_edit"
)

// DetermineValidationMode maps an operation name to its validation mode.
// Bulk operations defer to batch validation; cell-level edits validate in
// real time. Unknown operations default to batch.
func DetermineValidationMode(operationName string) ValidationMode {
	switch strings.ToLower(strings.TrimSpace(operationName)) {
	case OpCellEdit, OpBeginEdit, OpCommitEdit:
		return ModeRealTime
	default:
		return ModeBatch
	}
}

// AutomationPolicy decides whether a caller should run validation
// automatically after an operation. The engine exposes the gate; the
// embedding layer supplies the policy.
type AutomationPolicy func(operationName string, mode ValidationMode) bool

// AlwaysValidatePolicy runs automatic validation for every operation
func AlwaysValidatePolicy(string, ValidationMode) bool { return true }

// ManualOnlyPolicy never runs automatic validation
func ManualOnlyPolicy(string, ValidationMode) bool { return false }

// PolicyFromFlags builds the standard policy from configuration toggles.
// Manual automation mode wins over both per-path flags.
func PolicyFromFlags(manual, enableBatch, enableRealTime bool) AutomationPolicy {
	return func(_ string, mode ValidationMode) bool {
		if manual {
			return false
		}
		if mode == ModeRealTime {
			return enableRealTime
		}
		return enableBatch
	}
}

// ShouldRunAutomaticValidation is the policy gate callers consult before
// invoking validation automatically after an operation
func (s *Service) ShouldRunAutomaticValidation(operationName string) bool {
	mode := DetermineValidationMode(operationName)
	return s.policy(operationName, mode)
}
