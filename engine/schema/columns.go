// Package schema owns the column model: names, display metadata, width
// bounds, and the special-column classification that drives checkbox and
// row-number behavior elsewhere in the engine.
package schema

import (
	"fmt"
	"strings"
	"sync"
)

// SpecialColumn classifies columns with engine-level behavior
type SpecialColumn int

const (
	SpecialNone SpecialColumn = iota
	SpecialCheckbox
	SpecialRowNumber
	SpecialDeleteAction
	SpecialValidationAlerts
)

// ValueKind is the declared value type of a column
type ValueKind int

const (
	KindAny ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Column describes one column of the dataset. Width is clamped into
// [MinWidth, MaxWidth] on every set, never just at construction.
type Column struct {
	name        string
	DisplayName string
	Kind        ValueKind
	Special     SpecialColumn

	MinWidth int
	MaxWidth int
	width    int
}

// NewColumn creates a column with the given name and sensible width bounds
func NewColumn(name string, kind ValueKind) *Column {
	c := &Column{
		name:        name,
		DisplayName: name,
		Kind:        kind,
		MinWidth:    40,
		MaxWidth:    600,
	}
	c.SetWidth(120)
	return c
}

// Name returns the unique column name
func (c *Column) Name() string {
	return c.name
}

// Width returns the current clamped width
func (c *Column) Width() int {
	return c.width
}

// SetWidth stores the width clamped into [MinWidth, MaxWidth]
func (c *Column) SetWidth(w int) {
	if w < c.MinWidth {
		w = c.MinWidth
	}
	if w > c.MaxWidth {
		w = c.MaxWidth
	}
	c.width = w
}

// RenameFunc is notified after a column rename so dependents (rules,
// duplicate criteria) can remap the old name to the new one.
type RenameFunc func(oldName, newName string)

// ColumnSet owns the ordered column collection and resolves names the way
// headers are matched throughout the engine: case-insensitively, with
// "unnamed_a" style placeholders for blank names.
type ColumnSet struct {
	mu         sync.RWMutex
	columns    []*Column
	renameSubs []RenameFunc
}

// NewColumnSet creates an empty column set
func NewColumnSet() *ColumnSet {
	return &ColumnSet{}
}

// Add appends a column. Names must be unique.
func (cs *ColumnSet) Add(c *Column) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, existing := range cs.columns {
		if strings.EqualFold(existing.name, c.name) {
			return fmt.Errorf("column %q already exists", c.name)
		}
	}
	cs.columns = append(cs.columns, c)
	return nil
}

// Columns returns a snapshot of the ordered columns
func (cs *ColumnSet) Columns() []*Column {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Column, len(cs.columns))
	copy(out, cs.columns)
	return out
}

// Names returns the ordered column names
func (cs *ColumnSet) Names() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	names := make([]string, len(cs.columns))
	for i, c := range cs.columns {
		names[i] = c.name
	}
	return names
}

// Resolve finds a column by name, case-insensitively. Blank stored names
// match their "unnamed_a", "unnamed_b" placeholder form.
func (cs *ColumnSet) Resolve(name string) (*Column, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for i, c := range cs.columns {
		if cs.normalizedName(i) == want {
			return c, true
		}
	}
	return nil, false
}

// normalizedName returns the lowercase lookup name for the column at index i.
// Caller must hold at least a read lock.
func (cs *ColumnSet) normalizedName(i int) string {
	n := strings.ToLower(strings.TrimSpace(cs.columns[i].name))
	if n == "" {
		emptyCount := 0
		for j := 0; j <= i; j++ {
			if strings.TrimSpace(cs.columns[j].name) == "" {
				emptyCount++
			}
		}
		return fmt.Sprintf("unnamed_%c", 'a'+emptyCount-1)
	}
	return n
}

// Rename changes a column's unique name and notifies registered dependents
func (cs *ColumnSet) Rename(oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("new column name must not be blank")
	}

	cs.mu.Lock()
	var target *Column
	for _, c := range cs.columns {
		if strings.EqualFold(c.name, newName) && !strings.EqualFold(c.name, oldName) {
			cs.mu.Unlock()
			return fmt.Errorf("column %q already exists", newName)
		}
		if strings.EqualFold(c.name, oldName) {
			target = c
		}
	}
	if target == nil {
		cs.mu.Unlock()
		return fmt.Errorf("column %q not found", oldName)
	}
	target.name = newName
	if target.DisplayName == oldName {
		target.DisplayName = newName
	}
	subs := make([]RenameFunc, len(cs.renameSubs))
	copy(subs, cs.renameSubs)
	cs.mu.Unlock()

	// Fire outside the lock so subscribers can call back into the set
	for _, fn := range subs {
		fn(oldName, newName)
	}
	return nil
}

// OnRename registers a callback fired after every successful rename
func (cs *ColumnSet) OnRename(fn RenameFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.renameSubs = append(cs.renameSubs, fn)
}

// CheckboxColumn returns the name of the checkbox special column, if any
func (cs *ColumnSet) CheckboxColumn() (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, c := range cs.columns {
		if c.Special == SpecialCheckbox {
			return c.name, true
		}
	}
	return "", false
}
