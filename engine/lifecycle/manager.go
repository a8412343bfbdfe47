// Package lifecycle implements the smart row operations that keep the
// dataset's structural invariants: a configurable minimum row count and a
// trailing empty row for in-place data entry.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gridline/engine/interfaces"
	"gridline/engine/store"
	"gridline/engine/validation"
)

// Type aliases to the interfaces package to avoid duplication and circular
// dependencies
type Row = interfaces.Row
type Configuration = interfaces.RowManagementConfiguration
type Statistics = interfaces.RowManagementStatistics

// Result is the structured outcome of one lifecycle operation
type Result struct {
	Success       bool
	Message       string
	Stats         Statistics
	FinalRowCount int
	Duration      time.Duration

	// Incremental-refresh tracking for clear-and-shift deletes
	ClearedIndices []int
	ShiftedIndices []int
}

// Scheduler is the non-blocking validation trigger the manager prefers after
// structural changes. Optional; a nil scheduler falls back to synchronous
// validation.
type Scheduler interface {
	ScheduleValidation(operationName string, delay time.Duration)
}

// Validator is the slice of the validation service the manager needs
type Validator interface {
	ValidateAll(ctx context.Context, onlyFiltered bool) (bool, error)
	ShouldRunAutomaticValidation(operationName string) bool
}

// Manager implements smart add/delete over the row store
type Manager struct {
	store     *store.RowStore
	config    Configuration
	validator Validator
	scheduler Scheduler
	logger    interfaces.Logger

	// Serializes the decide-and-mutate sequence of every delete variant.
	// Two concurrent deletes that both read the row count before either
	// mutates would corrupt the minimum-row decision.
	mu sync.Mutex
}

// NewManager creates a lifecycle manager with the given configuration.
// validator and scheduler may be nil; post-operation validation is then
// skipped or synchronous respectively.
func NewManager(st *store.RowStore, config Configuration, validator Validator, scheduler Scheduler) *Manager {
	return &Manager{
		store:     st,
		config:    config,
		validator: validator,
		scheduler: scheduler,
	}
}

// SetLogger installs the optional logger
func (m *Manager) SetLogger(l interfaces.Logger) {
	m.logger = l
}

func (m *Manager) log(level, msg string) {
	if m.logger != nil {
		m.logger.Log(level, msg)
		return
	}
	log.Printf("[%s] %s", level, msg)
}

// Configuration returns the active row management configuration
func (m *Manager) Configuration() Configuration {
	return m.config
}

// emptyRowTemplate builds an all-nil field map using the keys of template,
// or an empty map when no template row exists
func emptyRowTemplate(template map[string]any) map[string]any {
	data := make(map[string]any, len(template))
	for k := range template {
		data[k] = nil
	}
	return data
}

// SmartAddRows appends the given data rows and enough empty rows to satisfy
// the minimum-row invariant plus exactly one trailing empty row.
// D data rows with minimum M yield D+1 rows when D >= M, otherwise
// D + (M-D) + 1 rows.
func (m *Manager) SmartAddRows(ctx context.Context, data []map[string]any) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	emptyCount, finalCount := m.addRows(data)

	result := Result{
		Success:       true,
		Message:       fmt.Sprintf("added %d data rows and %d empty rows", len(data), emptyCount),
		Stats:         Statistics{EmptyRowsCreated: emptyCount},
		FinalRowCount: finalCount,
		Duration:      time.Since(start),
	}
	m.log("debug", fmt.Sprintf("[SMART_ADD] data=%d empty=%d final=%d", len(data), emptyCount, finalCount))
	m.afterMutation(ctx, validation.OpSmartAdd)
	return result, nil
}

// addRows holds m.mu for the append sequence. The deferred unlock keeps the
// lock released on every exit path.
func (m *Manager) addRows(data []map[string]any) (emptyCount, finalCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var template map[string]any
	if len(data) > 0 {
		template = data[0]
	} else if last := m.store.LastRow(); last != nil {
		template = last.Data
	}

	m.store.AddRows(data)

	emptyCount = 1
	if len(data) < m.config.MinimumRows {
		emptyCount = (m.config.MinimumRows - len(data)) + 1
	}
	for i := 0; i < emptyCount; i++ {
		m.store.AddRow(emptyRowTemplate(template))
	}
	return emptyCount, m.store.RowCount()
}

// SmartDeleteRows deletes the rows at the given indices using one of two
// mutually exclusive strategies chosen by the current row count C versus the
// configured minimum M:
//
// Scenario A (C <= M, or smart delete disabled): each target row is removed
// and a fresh empty row appended, clearing content while shifting later rows
// up. Scenario B (C > M): targets are physically removed, then empty rows
// are appended until the minimum count and the trailing empty row are
// restored.
func (m *Manager) SmartDeleteRows(ctx context.Context, indices []int) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result, err := m.deleteIndices(indices)
	if err != nil {
		return Result{}, err
	}

	result.Duration = time.Since(start)
	m.afterMutation(ctx, validation.OpSmartDelete)
	return result, nil
}

// deleteIndices holds m.mu for the scenario decision and mutation. The
// deferred unlock keeps the lock released on every exit path.
func (m *Manager) deleteIndices(indices []int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentCount := m.store.RowCount()

	targets := dedupeIndices(indices)
	for _, idx := range targets {
		if idx < 0 || idx >= currentCount {
			return Result{}, fmt.Errorf("delete index %d out of range [0,%d)", idx, currentCount)
		}
	}
	// Descending order so earlier removals cannot shift later targets
	sort.Sort(sort.Reverse(sort.IntSlice(targets)))

	var result Result
	if currentCount <= m.config.MinimumRows || !m.config.SmartDeleteEnabled {
		result = m.clearAndShift(targets)
	} else {
		result = m.physicalDelete(targets)
	}
	result.FinalRowCount = m.store.RowCount()
	result.Success = true
	return result, nil
}

// clearAndShift is Scenario A: remove each target and append a fresh empty
// row, so targeted content disappears and later rows move up one position.
func (m *Manager) clearAndShift(targetsDesc []int) Result {
	var result Result
	template := m.templateFromStore()
	for _, idx := range targetsDesc {
		if _, err := m.store.RemoveRowAt(idx); err != nil {
			continue
		}
		m.store.AddRow(emptyRowTemplate(template))
		result.Stats.RowsContentCleared++
		result.Stats.EmptyRowsCreated++
		result.ClearedIndices = append(result.ClearedIndices, idx)
		for shifted := idx; shifted < m.store.RowCount()-1; shifted++ {
			result.Stats.RowsShifted++
			result.ShiftedIndices = append(result.ShiftedIndices, shifted)
		}
	}
	m.log("debug", fmt.Sprintf("[SMART_DELETE] scenario=A cleared=%d shifted=%d", result.Stats.RowsContentCleared, result.Stats.RowsShifted))
	result.Message = fmt.Sprintf("cleared %d rows", result.Stats.RowsContentCleared)
	return result
}

// physicalDelete is Scenario B: remove targets outright, then restore the
// minimum-row and trailing-empty invariants by appending empty rows. A bulk
// delete can drop the count below the minimum even though the scenario was
// chosen with the count above it.
func (m *Manager) physicalDelete(targetsDesc []int) Result {
	var result Result
	for _, idx := range targetsDesc {
		if _, err := m.store.RemoveRowAt(idx); err != nil {
			continue
		}
		result.Stats.RowsPhysicallyDeleted++
	}
	template := m.templateFromStore()
	for m.store.RowCount() < m.config.MinimumRows {
		m.store.AddRow(emptyRowTemplate(template))
		result.Stats.EmptyRowsCreated++
	}
	if m.config.AlwaysKeepLastEmpty {
		if last := m.store.LastRow(); last == nil || !last.IsEmpty() {
			m.store.AddRow(emptyRowTemplate(template))
			result.Stats.EmptyRowsCreated++
		}
	}
	m.log("debug", fmt.Sprintf("[SMART_DELETE] scenario=B deleted=%d", result.Stats.RowsPhysicallyDeleted))
	result.Message = fmt.Sprintf("deleted %d rows", result.Stats.RowsPhysicallyDeleted)
	return result
}

// SmartDeleteRowsByID deletes rows by stable identity. Indices resolved
// up front by the caller cannot go stale here: deletion is performed by
// identity in a single store compaction pass, then the minimum-row and
// trailing-empty invariants are restored by appending empty rows.
func (m *Manager) SmartDeleteRowsByID(ctx context.Context, ids []string) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	removed, stats, finalCount := m.deleteByIDs(ids)

	m.log("debug", fmt.Sprintf("[SMART_DELETE_BY_ID] requested=%d removed=%d final=%d", len(ids), removed, finalCount))
	result := Result{
		Success:       true,
		Message:       fmt.Sprintf("deleted %d rows by id", removed),
		Stats:         stats,
		FinalRowCount: finalCount,
		Duration:      time.Since(start),
	}
	m.afterMutation(ctx, validation.OpSmartDelete)
	return result, nil
}

// deleteByIDs holds m.mu for the compaction and invariant restore. The
// deferred unlock keeps the lock released on every exit path.
func (m *Manager) deleteByIDs(ids []string) (removed int, stats Statistics, finalCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed = m.store.RemoveRows(ids)
	stats.RowsPhysicallyDeleted = removed

	template := m.templateFromStore()
	for m.store.RowCount() < m.config.MinimumRows {
		m.store.AddRow(emptyRowTemplate(template))
		stats.EmptyRowsCreated++
	}
	if m.config.AlwaysKeepLastEmpty {
		if last := m.store.LastRow(); last == nil || !last.IsEmpty() {
			m.store.AddRow(emptyRowTemplate(template))
			stats.EmptyRowsCreated++
		}
	}
	return removed, stats, m.store.RowCount()
}

// ResolveIndicesToIDs translates display indices into stable row identities.
// Callers resolve once, up front, then delete by identity so concurrent
// shifts cannot redirect the deletion.
func (m *Manager) ResolveIndicesToIDs(indices []int) ([]string, error) {
	ids := make([]string, 0, len(indices))
	for _, idx := range dedupeIndices(indices) {
		row, err := m.store.Row(idx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// AutoExpand appends exactly one empty row when the last row holds content
// and auto-expansion is enabled. Idempotent: a trailing empty row makes it
// a no-op.
func (m *Manager) AutoExpand(ctx context.Context) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := Result{Success: true, FinalRowCount: m.store.RowCount()}
	if !m.config.AutoExpandEnabled {
		result.Message = "auto-expand disabled"
		result.Duration = time.Since(start)
		return result, nil
	}
	last := m.store.LastRow()
	if last != nil && last.IsEmpty() {
		result.Message = "last row already empty"
		result.Duration = time.Since(start)
		return result, nil
	}

	var template map[string]any
	if last != nil {
		template = last.Data
	}
	m.store.AddRow(emptyRowTemplate(template))
	result.Stats.EmptyRowsCreated = 1
	result.FinalRowCount = m.store.RowCount()
	result.Message = "appended trailing empty row"
	result.Duration = time.Since(start)
	m.log("debug", fmt.Sprintf("[AUTO_EXPAND] final=%d", result.FinalRowCount))
	return result, nil
}

// afterMutation consults the automatic-validation policy gate and, when it
// allows, prefers scheduling via the debounced coordinator. Synchronous
// validation is the fallback when no scheduler is configured.
func (m *Manager) afterMutation(ctx context.Context, operationName string) {
	if m.validator == nil || !m.validator.ShouldRunAutomaticValidation(operationName) {
		return
	}
	if m.scheduler != nil {
		m.scheduler.ScheduleValidation(operationName, 0)
		return
	}
	if _, err := m.validator.ValidateAll(ctx, false); err != nil {
		m.log("warn", fmt.Sprintf("[POST_OP_VALIDATE] %s: %v", operationName, err))
	}
}

// templateFromStore picks a field-key template from the first row, if any
func (m *Manager) templateFromStore() map[string]any {
	if row, err := m.store.Row(0); err == nil {
		return row.Data
	}
	return nil
}

func dedupeIndices(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}
