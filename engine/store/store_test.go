package store

import (
	"strings"
	"sync"
	"testing"

	"gridline/engine/interfaces"
)

func addRows(t *testing.T, s *RowStore, values ...string) []*Row {
	t.Helper()
	data := make([]map[string]any, len(values))
	for i, v := range values {
		data[i] = map[string]any{"name": v}
	}
	return s.AddRows(data)
}

func TestAddRowsAssignsStableIDsAndDenseNumbers(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a", "b", "c")

	seen := make(map[string]bool)
	for i, row := range rows {
		if !strings.HasPrefix(row.ID, "row_") {
			t.Errorf("row %d: unexpected ID format %q", i, row.ID)
		}
		if seen[row.ID] {
			t.Errorf("row %d: duplicate ID %q", i, row.ID)
		}
		seen[row.ID] = true
		if row.Number != i+1 {
			t.Errorf("row %d: expected number %d, got %d", i, i+1, row.Number)
		}
	}
}

func TestIDStabilityUnderDeletion(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a", "b", "c", "d", "e")

	// Snapshot identity -> value before deleting the middle row
	want := make(map[string]string)
	for _, row := range rows {
		want[row.ID] = row.Data["name"].(string)
	}

	if _, err := s.RemoveRowByID(rows[2].ID); err != nil {
		t.Fatalf("RemoveRowByID: %v", err)
	}

	for _, row := range rows {
		got, _, ok := s.RowByID(row.ID)
		if row.ID == rows[2].ID {
			if ok {
				t.Errorf("deleted row %q still resolvable", row.ID)
			}
			continue
		}
		if !ok {
			t.Errorf("row %q lost after unrelated deletion", row.ID)
			continue
		}
		if got.Data["name"] != want[row.ID] {
			t.Errorf("row %q: expected value %q, got %v", row.ID, want[row.ID], got.Data["name"])
		}
	}

	// Numbers stay dense and ordered after the shift
	for i, row := range s.AllRows() {
		if row.Number != i+1 {
			t.Errorf("position %d: expected number %d, got %d", i, i+1, row.Number)
		}
	}
}

func TestRemoveRowsBatch(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a", "b", "c", "d", "e")

	removed := s.RemoveRows([]string{rows[1].ID, rows[3].ID, "row_missing"})
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if s.RowCount() != 3 {
		t.Fatalf("expected 3 remaining, got %d", s.RowCount())
	}
	var names []string
	for _, row := range s.AllRows() {
		names = append(names, row.Data["name"].(string))
	}
	if strings.Join(names, ",") != "a,c,e" {
		t.Errorf("unexpected survivors: %v", names)
	}
}

func TestInsertRowAt(t *testing.T) {
	s := NewRowStore()
	addRows(t, s, "a", "c")

	if _, err := s.InsertRowAt(1, map[string]any{"name": "b"}); err != nil {
		t.Fatalf("InsertRowAt: %v", err)
	}
	var names []string
	for _, row := range s.AllRows() {
		names = append(names, row.Data["name"].(string))
	}
	if strings.Join(names, ",") != "a,b,c" {
		t.Errorf("unexpected order: %v", names)
	}

	if _, err := s.InsertRowAt(99, nil); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestStreamRowsBatches(t *testing.T) {
	s := NewRowStore()
	for i := 0; i < 25; i++ {
		s.AddRow(map[string]any{"n": i})
	}

	stream := s.StreamRows(StreamOptions{BatchSize: 10})
	var sizes []int
	total := 0
	for {
		batch, ok := stream.Next()
		if !ok {
			break
		}
		sizes = append(sizes, len(batch))
		total += len(batch)
	}
	if total != 25 {
		t.Fatalf("expected 25 rows streamed, got %d", total)
	}
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("unexpected batch sizes: %v", sizes)
	}

	// Streams restart per call
	again := s.StreamRows(StreamOptions{BatchSize: 30})
	batch, ok := again.Next()
	if !ok || len(batch) != 25 {
		t.Errorf("restarted stream: expected full batch of 25, got %d (ok=%v)", len(batch), ok)
	}
}

func TestStreamRowsFilteredAndChecked(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "keep", "drop", "keep", "drop")
	rows[0].Checked = true

	s.SetRowFilter(func(r *Row) bool {
		return r.Data["name"] == "keep"
	})

	stream := s.StreamRows(StreamOptions{OnlyFiltered: true, BatchSize: 10})
	batch, _ := stream.Next()
	if len(batch) != 2 {
		t.Errorf("filtered stream: expected 2 rows, got %d", len(batch))
	}

	checked := s.StreamRows(StreamOptions{OnlyChecked: true, BatchSize: 10})
	batch, _ = checked.Next()
	if len(batch) != 1 || batch[0].ID != rows[0].ID {
		t.Errorf("checked stream: expected only the checked row, got %d rows", len(batch))
	}
}

func TestStreamBatchesAreDetachedSnapshots(t *testing.T) {
	s := NewRowStore()
	addRows(t, s, "a", "b")

	stream := s.StreamRows(StreamOptions{BatchSize: 10})
	batch, ok := stream.Next()
	if !ok || len(batch) != 2 {
		t.Fatalf("expected one batch of 2, got %d (ok=%v)", len(batch), ok)
	}

	if err := s.SetCellValue(0, "name", "changed"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if batch[0].Data["name"] != "a" {
		t.Errorf("batch row shares storage with the store: got %v", batch[0].Data["name"])
	}

	// Reads hand out snapshots too
	row, err := s.Row(0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	row.Data["name"] = "scribbled"
	fresh, _ := s.Row(0)
	if fresh.Data["name"] != "changed" {
		t.Errorf("mutating a returned row leaked into the store: got %v", fresh.Data["name"])
	}
}

func TestRemoveRowByIDConcurrentWithIndexShifts(t *testing.T) {
	s := NewRowStore()
	keeps := addRows(t, s, "k0", "k1", "k2", "k3", "k4")
	dooms := addRows(t, s, "d0", "d1", "d2", "d3", "d4")

	// Churn positions at the front of the store while the main goroutine
	// removes by identity, so any lookup-then-remove gap would redirect a
	// deletion onto the wrong row.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			filler, err := s.InsertRowAt(0, map[string]any{"name": "filler"})
			if err != nil {
				return
			}
			if _, err := s.RemoveRowByID(filler.ID); err != nil {
				return
			}
		}
	}()

	for _, row := range dooms {
		if _, err := s.RemoveRowByID(row.ID); err != nil {
			t.Errorf("RemoveRowByID(%q): %v", row.ID, err)
		}
	}
	wg.Wait()

	if s.RowCount() != len(keeps) {
		t.Fatalf("expected %d survivors, got %d", len(keeps), s.RowCount())
	}
	for i, row := range keeps {
		got, _, ok := s.RowByID(row.ID)
		if !ok {
			t.Errorf("keeper %d lost", i)
			continue
		}
		if got.Data["name"] != row.Data["name"] {
			t.Errorf("keeper %d: expected %v, got %v", i, row.Data["name"], got.Data["name"])
		}
	}
	for i, row := range dooms {
		if _, _, ok := s.RowByID(row.ID); ok {
			t.Errorf("doomed row %d still present", i)
		}
	}
}

func TestValidationScopeState(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a", "b")

	scope := interfaces.ScopeAllRows
	if s.HasValidationStateForScope(scope) {
		t.Fatal("fresh store should have no validation state")
	}

	s.WriteValidationResults(scope, nil)
	if !s.HasValidationStateForScope(scope) {
		t.Fatal("expected validation state after write")
	}
	if !s.AreAllNonEmptyRowsMarkedValid(scope) {
		t.Error("empty result set should mark all rows valid")
	}

	s.WriteValidationResults(scope, []ValidationError{{
		RowID:    rows[0].ID,
		Severity: interfaces.SeverityError,
		Message:  "bad",
	}})
	if s.AreAllNonEmptyRowsMarkedValid(scope) {
		t.Error("error-severity result should mark scope invalid")
	}
	if got := s.ErrorsForRow(scope, rows[0].ID); len(got) != 1 {
		t.Errorf("expected 1 error for row, got %d", len(got))
	}

	// Structural mutation invalidates the recorded state
	s.AddRow(map[string]any{"name": "c"})
	if s.HasValidationStateForScope(scope) {
		t.Error("mutation should invalidate recorded scope state")
	}
}

func TestMergeValidationResultsByRowAndRule(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a", "b")
	scope := interfaces.ScopeAllRows

	s.WriteValidationResults(scope, []ValidationError{
		{RowID: rows[0].ID, RuleID: "rule_cell", Severity: interfaces.SeverityError, Message: "bad cell"},
		{RowID: rows[0].ID, RuleID: "rule_unique", Severity: interfaces.SeverityError, Message: "dup"},
		{RowID: rows[1].ID, RuleID: "rule_unique", Severity: interfaces.SeverityError, Message: "dup"},
	})

	// Row-level merge replaces the row's errors but leaves the kept rule's
	// entries in place
	s.MergeRowValidationResults(scope, rows[0].ID, nil, map[string]struct{}{"rule_unique": {}})
	got := s.ErrorsForRow(scope, rows[0].ID)
	if len(got) != 1 || got[0].RuleID != "rule_unique" {
		t.Fatalf("expected only the kept rule's error, got %+v", got)
	}

	// Rule-level merge replaces that rule's errors across the scope
	s.MergeRuleValidationResults(scope, "rule_unique", nil)
	if errs := s.ValidationErrors(scope); len(errs) != 0 {
		t.Fatalf("expected no recorded errors, got %+v", errs)
	}
	if !s.AreAllNonEmptyRowsMarkedValid(scope) {
		t.Error("scope should be valid after clearing all errors")
	}
	if !s.HasValidationStateForScope(scope) {
		t.Error("merges should stamp the current generation")
	}
}

func TestWarningsDoNotInvalidateScope(t *testing.T) {
	s := NewRowStore()
	rows := addRows(t, s, "a")

	s.WriteValidationResults(interfaces.ScopeAllRows, []ValidationError{{
		RowID:    rows[0].ID,
		Severity: interfaces.SeverityWarning,
		Message:  "suspicious",
	}})
	if !s.AreAllNonEmptyRowsMarkedValid(interfaces.ScopeAllRows) {
		t.Error("warnings alone should not mark the scope invalid")
	}
}
