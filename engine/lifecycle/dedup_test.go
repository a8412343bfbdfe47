package lifecycle

import (
	"context"
	"testing"
)

func duplicateFixture(t *testing.T) *Manager {
	t.Helper()
	config := Configuration{MinimumRows: 1, SmartDeleteEnabled: true, AlwaysKeepLastEmpty: true}
	m, _ := newManager(t, config,
		map[string]any{"code": "x", "note": "first"},
		map[string]any{"code": "x", "note": "second"},
		map[string]any{"code": "y", "note": "third"},
	)
	return m
}

func survivingNotes(m *Manager) []string {
	var notes []string
	for _, row := range m.store.AllRows() {
		if row.IsEmpty() {
			continue
		}
		notes = append(notes, row.Data["note"].(string))
	}
	return notes
}

func TestDeleteDuplicateRowsStrategies(t *testing.T) {
	tests := []struct {
		name        string
		strategy    KeepStrategy
		wantDeleted int
		wantNotes   []string
	}{
		{"keep first", KeepFirst, 1, []string{"first", "third"}},
		{"keep last", KeepLast, 1, []string{"second", "third"}},
		{"keep none", KeepNone, 2, []string{"third"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := duplicateFixture(t)
			result, err := m.DeleteDuplicateRows(context.Background(), DuplicateCriteria{
				Columns:  []string{"code"},
				Strategy: tt.strategy,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Stats.RowsPhysicallyDeleted != tt.wantDeleted {
				t.Errorf("expected %d deleted, got %d", tt.wantDeleted, result.Stats.RowsPhysicallyDeleted)
			}
			got := survivingNotes(m)
			if len(got) != len(tt.wantNotes) {
				t.Fatalf("expected survivors %v, got %v", tt.wantNotes, got)
			}
			for i := range got {
				if got[i] != tt.wantNotes[i] {
					t.Errorf("survivor %d: expected %q, got %q", i, tt.wantNotes[i], got[i])
				}
			}
		})
	}
}

func TestDeleteDuplicateRowsCaseSensitivity(t *testing.T) {
	config := Configuration{MinimumRows: 1, SmartDeleteEnabled: true, AlwaysKeepLastEmpty: true}

	tests := []struct {
		name          string
		caseSensitive bool
		wantDeleted   int
	}{
		{"case sensitive keys differ", true, 0},
		{"case insensitive keys match", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t, config,
				map[string]any{"code": "X"},
				map[string]any{"code": "x"},
			)
			result, err := m.DeleteDuplicateRows(context.Background(), DuplicateCriteria{
				Columns:       []string{"code"},
				CaseSensitive: tt.caseSensitive,
				Strategy:      KeepFirst,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Stats.RowsPhysicallyDeleted != tt.wantDeleted {
				t.Errorf("expected %d deleted, got %d", tt.wantDeleted, result.Stats.RowsPhysicallyDeleted)
			}
		})
	}
}

func TestDeleteDuplicateRowsAllColumnsKey(t *testing.T) {
	config := Configuration{MinimumRows: 1, SmartDeleteEnabled: true, AlwaysKeepLastEmpty: true}
	m, _ := newManager(t, config,
		map[string]any{"a": "1", "b": "2"},
		map[string]any{"a": "1", "b": "2"},
		map[string]any{"a": "1", "b": "3"},
	)

	result, err := m.DeleteDuplicateRows(context.Background(), DuplicateCriteria{Strategy: KeepFirst})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RowsPhysicallyDeleted != 1 {
		t.Errorf("expected only the full-row duplicate removed, deleted %d", result.Stats.RowsPhysicallyDeleted)
	}
}

func TestDeleteDuplicateRowsIgnoresEmptyRows(t *testing.T) {
	config := Configuration{MinimumRows: 1, SmartDeleteEnabled: true, AlwaysKeepLastEmpty: true}
	m, _ := newManager(t, config,
		map[string]any{"code": "x"},
		map[string]any{"code": nil},
		map[string]any{"code": nil},
	)

	result, err := m.DeleteDuplicateRows(context.Background(), DuplicateCriteria{
		Columns:  []string{"code"},
		Strategy: KeepFirst,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RowsPhysicallyDeleted != 0 {
		t.Errorf("empty rows are never duplicates of each other, deleted %d", result.Stats.RowsPhysicallyDeleted)
	}
	if result.Message != "no duplicate rows found" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestDeleteDuplicateRowsJSONPathKey(t *testing.T) {
	config := Configuration{MinimumRows: 1, SmartDeleteEnabled: true, AlwaysKeepLastEmpty: true}
	m, _ := newManager(t, config,
		map[string]any{"payload": `{"user": {"id": 7}}`, "note": "a"},
		map[string]any{"payload": `{"user": {"id": 7}}`, "note": "b"},
		map[string]any{"payload": `{"user": {"id": 8}}`, "note": "c"},
	)

	result, err := m.DeleteDuplicateRows(context.Background(), DuplicateCriteria{
		Columns:  []string{"payload{$.user.id}"},
		Strategy: KeepFirst,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RowsPhysicallyDeleted != 1 {
		t.Errorf("expected the path-matched duplicate removed, deleted %d", result.Stats.RowsPhysicallyDeleted)
	}
}
