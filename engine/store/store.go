// Package store owns the canonical ordered row collection. All other engine
// components operate on it through this interface and never hold private
// copies beyond one operation's scope.
package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gridline/engine/interfaces"

	"github.com/google/uuid"
)

// Type aliases to the interfaces package to avoid duplication and circular
// dependencies
type Row = interfaces.Row
type RowScope = interfaces.RowScope
type StreamOptions = interfaces.StreamOptions
type ValidationError = interfaces.ValidationError

// RowStore is the in-memory canonical row collection. Mutations serialize on
// an internal mutex; reads may interleave with each other and are treated as
// potentially stale relative to a concurrent mutation.
type RowStore struct {
	mu    sync.RWMutex
	rows  []*Row
	index map[string]int // row ID -> position, rebuilt on structural change

	// Structural generation, bumped on every mutation. Recorded scope
	// state is only trusted while the generation is unchanged.
	generation atomic.Uint64

	// Current row filter supplied by the embedding layer. The store only
	// applies it during filtered streams; filtering policy lives outside.
	filterMu sync.RWMutex
	filter   func(*Row) bool

	valState *validationState

	logger interfaces.Logger
}

// NewRowStore creates an empty row store
func NewRowStore() *RowStore {
	return &RowStore{
		index:    make(map[string]int),
		valState: newValidationState(),
	}
}

// SetLogger sets the optional logger
func (s *RowStore) SetLogger(logger interfaces.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

func (s *RowStore) log(level, msg string) {
	if s.logger != nil {
		s.logger.Log(level, msg)
	}
}

// NewRowID returns a fresh stable row identifier. IDs are never reused.
func NewRowID() string {
	return fmt.Sprintf("row_%s", uuid.New().String())
}

func newRow(data map[string]any) *Row {
	if data == nil {
		data = make(map[string]any)
	}
	return &Row{ID: NewRowID(), Data: data}
}

// AddRow appends one row built from the given field map and returns it
func (s *RowStore) AddRow(data map[string]any) *Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := newRow(data)
	s.rows = append(s.rows, row)
	s.index[row.ID] = len(s.rows) - 1
	row.Number = len(s.rows)
	s.generation.Add(1)
	return row
}

// AddRows appends a batch of rows and returns them in insertion order
func (s *RowStore) AddRows(data []map[string]any) []*Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := make([]*Row, len(data))
	for i, d := range data {
		row := newRow(d)
		s.rows = append(s.rows, row)
		s.index[row.ID] = len(s.rows) - 1
		row.Number = len(s.rows)
		added[i] = row
	}
	s.generation.Add(1)
	return added
}

// InsertRowAt inserts a new row at the given position, shifting later rows
func (s *RowStore) InsertRowAt(index int, data map[string]any) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index > len(s.rows) {
		return nil, fmt.Errorf("insert index %d out of range [0,%d]", index, len(s.rows))
	}
	row := newRow(data)
	s.rows = append(s.rows, nil)
	copy(s.rows[index+1:], s.rows[index:])
	s.rows[index] = row
	s.reindexLocked()
	s.generation.Add(1)
	return row, nil
}

// UpdateRowAt replaces the field map of the row at index
func (s *RowStore) UpdateRowAt(index int, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("row index %d out of range [0,%d)", index, len(s.rows))
	}
	if data == nil {
		data = make(map[string]any)
	}
	s.rows[index].Data = data
	s.generation.Add(1)
	return nil
}

// UpdateRowByID replaces the field map of the row with the given identity
func (s *RowStore) UpdateRowByID(id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("row %q not found", id)
	}
	if data == nil {
		data = make(map[string]any)
	}
	s.rows[pos].Data = data
	s.generation.Add(1)
	return nil
}

// SetCellValue updates a single field of the row at index
func (s *RowStore) SetCellValue(index int, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("row index %d out of range [0,%d)", index, len(s.rows))
	}
	if s.rows[index].Data == nil {
		s.rows[index].Data = make(map[string]any)
	}
	s.rows[index].Data[column] = value
	s.generation.Add(1)
	return nil
}

// SetChecked updates the checkbox state of the row with the given identity
func (s *RowStore) SetChecked(id string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("row %q not found", id)
	}
	s.rows[pos].Checked = checked
	return nil
}

// RemoveRowAt removes the row at index, shifting later rows up
func (s *RowStore) RemoveRowAt(index int) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAtLocked(index)
}

// RemoveRowByID removes the row with the given identity. Lookup and removal
// happen in one critical section so a concurrent insert or removal cannot
// shift the position in between and redirect the deletion.
func (s *RowStore) RemoveRowByID(id string) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("row %q not found", id)
	}
	return s.removeAtLocked(pos)
}

// removeAtLocked removes the row at index. Caller must hold the write lock.
func (s *RowStore) removeAtLocked(index int) (*Row, error) {
	if index < 0 || index >= len(s.rows) {
		return nil, fmt.Errorf("row index %d out of range [0,%d)", index, len(s.rows))
	}
	removed := s.rows[index]
	s.rows = append(s.rows[:index], s.rows[index+1:]...)
	s.reindexLocked()
	s.generation.Add(1)
	return removed, nil
}

// RemoveRows removes every row whose identity appears in ids using a single
// compaction pass, so bulk deletion costs one sweep regardless of how many
// ids are given. Returns the number of rows actually removed.
func (s *RowStore) RemoveRows(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	removed := 0
	for _, row := range s.rows {
		if _, dead := doomed[row.ID]; dead {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	// Clear trailing slots so removed rows do not pin memory
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = nil
	}
	s.rows = kept
	s.reindexLocked()
	s.generation.Add(1)
	s.log("debug", fmt.Sprintf("[STORE_REMOVE] Removed %d of %d requested rows, %d remain", removed, len(ids), len(s.rows)))
	return removed
}

// Row returns a snapshot of the row at index. Snapshots never share field
// maps with the store, so readers cannot race a concurrent cell write.
func (s *RowStore) Row(index int) (*Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.rows) {
		return nil, fmt.Errorf("row index %d out of range [0,%d)", index, len(s.rows))
	}
	return s.rows[index].Clone(), nil
}

// RowByID returns a snapshot of the row with the given identity and its
// current position
func (s *RowStore) RowByID(id string) (*Row, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return nil, -1, false
	}
	return s.rows[pos].Clone(), pos, true
}

// AllRows returns snapshots of the current rows in display order
func (s *RowStore) AllRows() []*Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Row, len(s.rows))
	for i, row := range s.rows {
		out[i] = row.Clone()
	}
	return out
}

// LastRow returns a snapshot of the final row, or nil when the store is empty
func (s *RowStore) LastRow() *Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return nil
	}
	return s.rows[len(s.rows)-1].Clone()
}

// RowCount returns the current number of rows
func (s *RowStore) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Generation returns the structural generation counter. Callers compare
// generations to detect mutations between a read and a later decision.
func (s *RowStore) Generation() uint64 {
	return s.generation.Load()
}

// SetRowFilter installs the predicate applied by filtered streams.
// Passing nil clears the filter.
func (s *RowStore) SetRowFilter(filter func(*Row) bool) {
	s.filterMu.Lock()
	s.filter = filter
	s.filterMu.Unlock()
	// A filter change redefines the filtered scope
	s.generation.Add(1)
}

func (s *RowStore) currentFilter() func(*Row) bool {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.filter
}

// reindexLocked rebuilds the id index and renumbers rows densely.
// Caller must hold the write lock.
func (s *RowStore) reindexLocked() {
	for k := range s.index {
		delete(s.index, k)
	}
	for i, row := range s.rows {
		s.index[row.ID] = i
		row.Number = i + 1
	}
}
