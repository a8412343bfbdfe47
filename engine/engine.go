// Package engine is the embeddable tabular data engine facade. It wires the
// row store, the validation rule engine, the debounced validation
// coordinator, and the smart row lifecycle manager behind one narrow,
// context-aware API for import, paste, and edit layers to call.
package engine

import (
	"context"
	"time"

	"gridline/engine/debounce"
	"gridline/engine/interfaces"
	"gridline/engine/lifecycle"
	"gridline/engine/rules"
	"gridline/engine/schema"
	"gridline/engine/settings"
	"gridline/engine/store"
	"gridline/engine/validation"
)

// Re-exported types so embedders only import this package for common use
type (
	Row                  = interfaces.Row
	RowScope             = interfaces.RowScope
	ValidationError      = interfaces.ValidationError
	ValidationStatistics = interfaces.ValidationStatistics
	Configuration        = interfaces.RowManagementConfiguration
	Result               = lifecycle.Result
)

// Engine is the assembled tabular data engine
type Engine struct {
	settings    settings.Settings
	columns     *schema.ColumnSet
	rowStore    *store.RowStore
	ruleSet     *rules.RuleSet
	validator   *validation.Service
	coordinator *debounce.Coordinator
	manager     *lifecycle.Manager
	logger      interfaces.Logger
}

// Option configures an Engine at construction
type Option func(*Engine)

// WithLogger routes component logging to the embedding application
func WithLogger(l interfaces.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSettings overrides the default settings
func WithSettings(s settings.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// New assembles an engine with the given row management configuration.
// The configuration is validated up front; an out-of-range minimum row
// count is a construction failure, not a panic.
func New(rowConfig Configuration, opts ...Option) (*Engine, error) {
	if err := settings.ValidateRowManagement(rowConfig); err != nil {
		return nil, err
	}

	e := &Engine{settings: settings.Default()}
	for _, opt := range opts {
		opt(e)
	}

	e.columns = schema.NewColumnSet()
	e.rowStore = store.NewRowStore()
	e.rowStore.SetLogger(e.logger)
	e.ruleSet = rules.NewRuleSet()
	// Column renames must not orphan rule references
	e.columns.OnRename(e.ruleSet.RemapColumn)

	policy := validation.PolicyFromFlags(
		e.settings.ManualValidation,
		e.settings.EnableBatchValidation,
		e.settings.EnableRealTimeValidation,
	)
	vopts := []validation.Option{
		validation.WithBatchSize(e.settings.BatchSize),
		validation.WithAutomationPolicy(policy),
	}
	if e.settings.MaxRuleParallelism > 0 {
		vopts = append(vopts, validation.WithParallelism(e.settings.MaxRuleParallelism))
	}
	if e.logger != nil {
		vopts = append(vopts, validation.WithLogger(e.logger))
	}
	e.validator = validation.NewService(e.rowStore, e.ruleSet, vopts...)
	e.coordinator = debounce.NewCoordinator(e.validator.ValidateAll, e.logger)
	e.manager = lifecycle.NewManager(e.rowStore, rowConfig, e.validator, e.coordinator)
	if e.logger != nil {
		e.manager.SetLogger(e.logger)
	}
	return e, nil
}

// Columns returns the column set for schema management
func (e *Engine) Columns() *schema.ColumnSet { return e.columns }

// Store returns the underlying row store
func (e *Engine) Store() *store.RowStore { return e.rowStore }

// Rules returns the engine's rule set
func (e *Engine) Rules() *rules.RuleSet { return e.ruleSet }

// --- Plain CRUD -----------------------------------------------------------

// AddRow appends one row
func (e *Engine) AddRow(ctx context.Context, data map[string]any) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.rowStore.AddRow(data), nil
}

// AddRows appends a batch of rows
func (e *Engine) AddRows(ctx context.Context, data []map[string]any) ([]*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.rowStore.AddRows(data), nil
}

// InsertRowAt inserts a row at the given display position
func (e *Engine) InsertRowAt(ctx context.Context, index int, data map[string]any) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.rowStore.InsertRowAt(index, data)
}

// UpdateRow replaces the row at the given index
func (e *Engine) UpdateRow(ctx context.Context, index int, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.rowStore.UpdateRowAt(index, data)
}

// UpdateRowByID replaces the row with the given identity
func (e *Engine) UpdateRowByID(ctx context.Context, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.rowStore.UpdateRowByID(id, data)
}

// UpdateCell commits a single-cell edit. When the automation policy allows,
// the row is re-validated immediately against only the rules that depend on
// the touched column.
func (e *Engine) UpdateCell(ctx context.Context, index int, column string, value any) error {
	if err := e.rowStore.SetCellValue(index, column, value); err != nil {
		return err
	}
	if e.validator.ShouldRunAutomaticValidation(validation.OpCellEdit) {
		if _, err := e.validator.ValidateRow(ctx, index, column); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRow removes the row at the given index without smart-delete handling
func (e *Engine) RemoveRow(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.rowStore.RemoveRowAt(index)
	return err
}

// RemoveRows removes rows by identity without smart-delete handling
func (e *Engine) RemoveRows(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.rowStore.RemoveRows(ids), nil
}

// --- Smart lifecycle ------------------------------------------------------

// SmartAddRows appends data rows plus the empty rows needed to satisfy the
// minimum-row and trailing-empty invariants
func (e *Engine) SmartAddRows(ctx context.Context, data []map[string]any) (Result, error) {
	return e.manager.SmartAddRows(ctx, data)
}

// SmartDeleteRows deletes rows at the given indices, choosing between
// clear-and-shift and physical deletion based on the configured minimum
func (e *Engine) SmartDeleteRows(ctx context.Context, indices []int) (Result, error) {
	return e.manager.SmartDeleteRows(ctx, indices)
}

// SmartDeleteRowsByID deletes rows by stable identity, immune to concurrent
// index shifts
func (e *Engine) SmartDeleteRowsByID(ctx context.Context, ids []string) (Result, error) {
	return e.manager.SmartDeleteRowsByID(ctx, ids)
}

// ResolveIndicesToIDs snapshots the identities behind display indices so a
// later ID-based delete cannot be redirected by index shifts
func (e *Engine) ResolveIndicesToIDs(indices []int) ([]string, error) {
	return e.manager.ResolveIndicesToIDs(indices)
}

// AutoExpandEmptyRow appends one trailing empty row when the last row has
// content. Idempotent.
func (e *Engine) AutoExpandEmptyRow(ctx context.Context) (Result, error) {
	return e.manager.AutoExpand(ctx)
}

// DeleteRowsByValidation deletes rows matching a caller-supplied rule subset
func (e *Engine) DeleteRowsByValidation(ctx context.Context, criteria lifecycle.ValidationDeleteCriteria) (Result, error) {
	return e.manager.DeleteRowsByValidation(ctx, criteria)
}

// DeleteDuplicateRows deletes duplicates grouped by a composite column key
func (e *Engine) DeleteDuplicateRows(ctx context.Context, criteria lifecycle.DuplicateCriteria) (Result, error) {
	return e.manager.DeleteDuplicateRows(ctx, criteria)
}

// --- Validation -----------------------------------------------------------

// AddValidationRule registers a rule
func (e *Engine) AddValidationRule(ctx context.Context, r *rules.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.ruleSet.Add(r)
}

// AddValidationRuleGroup registers a composite rule group
func (e *Engine) AddValidationRuleGroup(ctx context.Context, g *rules.RuleGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.ruleSet.AddGroup(g)
}

// RemoveValidationRule removes a rule or group by ID or name
func (e *Engine) RemoveValidationRule(idOrName string) bool {
	return e.ruleSet.Remove(idOrName)
}

// RemoveValidationRules removes every rule or group matching the given IDs
// or names
func (e *Engine) RemoveValidationRules(idsOrNames []string) int {
	return e.ruleSet.RemoveMany(idsOrNames)
}

// ValidateAll validates every non-empty row in the scope
func (e *Engine) ValidateAll(ctx context.Context, onlyFiltered bool) (bool, error) {
	return e.validator.ValidateAll(ctx, onlyFiltered)
}

// ValidateAllWithStatistics validates the scope and returns the pass summary
func (e *Engine) ValidateAllWithStatistics(ctx context.Context, onlyFiltered bool) (ValidationStatistics, error) {
	return e.validator.ValidateAllWithStatistics(ctx, onlyFiltered)
}

// ScheduleValidation arms the debounced background validation pass
func (e *Engine) ScheduleValidation(operationName string, delay time.Duration) {
	if delay <= 0 {
		delay = time.Duration(e.settings.DebounceDelayMs) * time.Millisecond
	}
	e.coordinator.ScheduleValidation(operationName, delay)
}

// CancelPendingValidation disarms any pending debounced pass
func (e *Engine) CancelPendingValidation() {
	e.coordinator.CancelPendingValidation()
}

// ValidateNow cancels pending debounced work and validates synchronously,
// guaranteeing an up-to-date result
func (e *Engine) ValidateNow(ctx context.Context, onlyFiltered bool) (bool, error) {
	return e.coordinator.ValidateNow(ctx, onlyFiltered)
}

// ShouldRunAutomaticValidation exposes the policy gate for callers that
// drive validation themselves
func (e *Engine) ShouldRunAutomaticValidation(operationName string) bool {
	return e.validator.ShouldRunAutomaticValidation(operationName)
}
