package store

import (
	"sync"

	"gridline/engine/interfaces"
)

// validationState is the write-once-per-pass results channel. The store
// records whatever latest result it is given per scope; it does not decide
// invalidation. Structural mutations bump the generation, and recorded state
// is only reported back while the generation still matches.
type validationState struct {
	mu     sync.RWMutex
	scopes map[RowScope]*scopeState
}

type scopeState struct {
	generation uint64
	errors     []ValidationError
	allValid   bool
}

func newValidationState() *validationState {
	return &validationState{scopes: make(map[RowScope]*scopeState)}
}

// recomputeValid re-derives the pass/fail flag from the recorded errors.
// Caller must hold the state write lock.
func (st *scopeState) recomputeValid() {
	st.allValid = true
	for _, e := range st.errors {
		if e.Severity == interfaces.SeverityError {
			st.allValid = false
			break
		}
	}
}

// WriteValidationResults replaces the recorded results for a scope with the
// outcome of one complete validation pass. Callers invoke this exactly once
// per pass, after all batches are evaluated.
func (s *RowStore) WriteValidationResults(scope RowScope, errors []ValidationError) {
	recorded := make([]ValidationError, len(errors))
	copy(recorded, errors)

	s.valState.mu.Lock()
	defer s.valState.mu.Unlock()
	state := &scopeState{
		generation: s.generation.Load(),
		errors:     recorded,
	}
	state.recomputeValid()
	s.valState.scopes[scope] = state
}

// MergeRowValidationResults replaces the recorded results for a single row
// without touching the rest of the scope's state. Errors from rules listed
// in keepRuleIDs survive the replacement; the real-time path manages those
// per rule via MergeRuleValidationResults instead. Used after a single-cell
// edit.
func (s *RowStore) MergeRowValidationResults(scope RowScope, rowID string, errors []ValidationError, keepRuleIDs map[string]struct{}) {
	s.valState.mu.Lock()
	defer s.valState.mu.Unlock()
	state, ok := s.valState.scopes[scope]
	if !ok {
		state = &scopeState{}
		s.valState.scopes[scope] = state
	}
	kept := state.errors[:0]
	for _, e := range state.errors {
		if _, keep := keepRuleIDs[e.RuleID]; keep || e.RowID != rowID {
			kept = append(kept, e)
		}
	}
	state.errors = append(kept, errors...)
	state.recomputeValid()
	state.generation = s.generation.Load()
}

// MergeRuleValidationResults replaces the recorded results for a single rule
// across the whole scope. Used by the real-time path to refresh dataset rules
// whose outcome can move between rows on a single-cell edit.
func (s *RowStore) MergeRuleValidationResults(scope RowScope, ruleID string, errors []ValidationError) {
	s.valState.mu.Lock()
	defer s.valState.mu.Unlock()
	state, ok := s.valState.scopes[scope]
	if !ok {
		state = &scopeState{}
		s.valState.scopes[scope] = state
	}
	kept := state.errors[:0]
	for _, e := range state.errors {
		if e.RuleID != ruleID {
			kept = append(kept, e)
		}
	}
	state.errors = append(kept, errors...)
	state.recomputeValid()
	state.generation = s.generation.Load()
}

// HasValidationStateForScope reports whether a result was recorded for the
// scope and no structural mutation has happened since.
func (s *RowStore) HasValidationStateForScope(scope RowScope) bool {
	s.valState.mu.RLock()
	defer s.valState.mu.RUnlock()
	state, ok := s.valState.scopes[scope]
	return ok && state.generation == s.generation.Load()
}

// AreAllNonEmptyRowsMarkedValid reports the recorded pass/fail state for the
// scope. It is only meaningful when HasValidationStateForScope is true.
func (s *RowStore) AreAllNonEmptyRowsMarkedValid(scope RowScope) bool {
	s.valState.mu.RLock()
	defer s.valState.mu.RUnlock()
	state, ok := s.valState.scopes[scope]
	if !ok {
		return false
	}
	return state.allValid
}

// ValidationErrors returns a snapshot of the recorded errors for a scope
func (s *RowStore) ValidationErrors(scope RowScope) []ValidationError {
	s.valState.mu.RLock()
	defer s.valState.mu.RUnlock()
	state, ok := s.valState.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]ValidationError, len(state.errors))
	copy(out, state.errors)
	return out
}

// ErrorsForRow returns the recorded errors touching one row in a scope
func (s *RowStore) ErrorsForRow(scope RowScope, rowID string) []ValidationError {
	s.valState.mu.RLock()
	defer s.valState.mu.RUnlock()
	state, ok := s.valState.scopes[scope]
	if !ok {
		return nil
	}
	var out []ValidationError
	for _, e := range state.errors {
		if e.RowID == rowID {
			out = append(out, e)
		}
	}
	return out
}
