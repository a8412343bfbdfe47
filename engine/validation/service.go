// Package validation orchestrates rule execution over the row store:
// streaming batch evaluation with bounded parallelism, per-scope cached
// pass/fail state, and a single results write-back per pass.
package validation

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"gridline/engine/interfaces"
	"gridline/engine/rules"
	"gridline/engine/store"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Type aliases to the interfaces package to avoid duplication and circular
// dependencies
type Row = interfaces.Row
type RowScope = interfaces.RowScope
type ValidationError = interfaces.ValidationError
type ValidationStatistics = interfaces.ValidationStatistics

// Service runs validation passes over the row store
type Service struct {
	store       *store.RowStore
	rules       *rules.RuleSet
	batchSize   int
	parallelism int
	policy      AutomationPolicy
	progress    interfaces.ProgressCallback
	logger      interfaces.Logger

	// Per-scope cached pass/fail state, keyed by store generation and
	// rule-set signature so either kind of change forces a re-validation
	cacheMu sync.Mutex
	cache   map[RowScope]scopeCacheEntry
}

type scopeCacheEntry struct {
	generation uint64
	signature  string
	allValid   bool
}

// Option configures a Service
type Option func(*Service)

// WithBatchSize overrides the global batch size for streaming evaluation
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithParallelism bounds per-row parallel rule evaluation within a batch
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithAutomationPolicy installs the caller-supplied automatic-validation gate
func WithAutomationPolicy(p AutomationPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithProgress installs a progress callback for long passes
func WithProgress(cb interfaces.ProgressCallback) Option {
	return func(s *Service) { s.progress = cb }
}

// WithLogger installs the optional logger
func WithLogger(l interfaces.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a validation service over the given store and rule set
func NewService(st *store.RowStore, rs *rules.RuleSet, opts ...Option) *Service {
	s := &Service{
		store:       st,
		rules:       rs,
		batchSize:   interfaces.DefaultBatchSize,
		parallelism: runtime.NumCPU(),
		policy:      AlwaysValidatePolicy,
		cache:       make(map[RowScope]scopeCacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log(level, msg string) {
	if s.logger != nil {
		s.logger.Log(level, msg)
		return
	}
	log.Printf("[%s] %s", level, msg)
}

// ValidateAll validates every non-empty row in the scope and reports whether
// all of them passed without error-severity failures. Results for the whole
// pass are written to the store exactly once, at the end.
func (s *Service) ValidateAll(ctx context.Context, onlyFiltered bool) (bool, error) {
	stats, err := s.ValidateAllWithStatistics(ctx, onlyFiltered)
	if err != nil {
		return false, err
	}
	return stats.AllValid(), nil
}

// ValidateAllWithStatistics is ValidateAll returning the full pass summary
func (s *Service) ValidateAllWithStatistics(ctx context.Context, onlyFiltered bool) (ValidationStatistics, error) {
	start := time.Now()
	scope := interfaces.ScopeAllRows
	if onlyFiltered {
		scope = interfaces.ScopeFilteredRows
	}

	generation := s.store.Generation()
	signature := s.rules.Signature()

	// Cache check: an unchanged dataset with an unchanged rule set keeps
	// its recorded outcome
	s.cacheMu.Lock()
	if entry, ok := s.cache[scope]; ok && entry.generation == generation && entry.signature == signature {
		s.cacheMu.Unlock()
		s.log("debug", fmt.Sprintf("[VALIDATE_CACHE_HIT] scope=%s gen=%d valid=%v", scope, generation, entry.allValid))
		stats := ValidationStatistics{Scope: scope, FromCache: true, Duration: time.Since(start)}
		if !entry.allValid {
			stats.ErrorCount = 1
		}
		return stats, nil
	}
	s.cacheMu.Unlock()

	s.log("debug", fmt.Sprintf("[VALIDATE_START] scope=%s gen=%d rules=%d", scope, generation, s.rules.Len()))

	ruleSnapshot := s.rules.Rules()
	groupSnapshot := s.rules.Groups()
	var perRowRules []*rules.Rule
	var datasetRules []*rules.Rule
	for _, r := range ruleSnapshot {
		if r.IsDatasetRule() {
			datasetRules = append(datasetRules, r)
		} else {
			perRowRules = append(perRowRules, r)
		}
	}

	stats := ValidationStatistics{Scope: scope}
	var collected []ValidationError
	var faults []error
	// Retained only when dataset rules need the full set, with the stream
	// index of each retained row so dataset results report the same
	// coordinates as the per-row path.
	var nonEmpty []*Row
	var nonEmptyIndexes []int

	stream := s.store.StreamRows(interfaces.StreamOptions{
		OnlyFiltered: onlyFiltered,
		BatchSize:    s.batchSize,
	})
	rowIndex := -1
	for {
		batch, ok := stream.Next()
		if !ok {
			break
		}

		batchRows := make([]*Row, 0, len(batch))
		batchIndexes := make([]int, 0, len(batch))
		for _, row := range batch {
			rowIndex++
			stats.TotalRows++
			if row.IsEmpty() {
				continue
			}
			batchRows = append(batchRows, row)
			batchIndexes = append(batchIndexes, rowIndex)
		}
		if len(datasetRules) > 0 {
			nonEmpty = append(nonEmpty, batchRows...)
			nonEmptyIndexes = append(nonEmptyIndexes, batchIndexes...)
		}

		errsByRow, batchFaults, err := s.evaluateBatch(ctx, batchRows, batchIndexes, perRowRules, groupSnapshot)
		if err != nil {
			return stats, err
		}
		collected = append(collected, errsByRow...)
		faults = append(faults, batchFaults...)
		stats.ValidatedRows += len(batchRows)

		s.reportProgress("validate", int64(stats.TotalRows), int64(s.store.RowCount()))

		// Cooperative yield between batches so validation does not
		// starve interactive work
		if err := yieldBetweenBatches(ctx); err != nil {
			return stats, err
		}
	}

	// Dataset rules (cross-row, complex) run once over the accumulated
	// non-empty rows
	for _, rule := range datasetRules {
		ruleErrs, ruleFaults, err := s.evaluateDatasetRule(ctx, rule, nonEmpty, nonEmptyIndexes)
		if err != nil {
			return stats, err
		}
		collected = append(collected, ruleErrs...)
		faults = append(faults, ruleFaults...)
	}

	for _, e := range collected {
		switch e.Severity {
		case interfaces.SeverityError:
			stats.ErrorCount++
		case interfaces.SeverityWarning:
			stats.WarningCount++
		}
	}
	stats.RuleFaults = len(faults)
	if combined := multierr.Combine(faults...); combined != nil {
		s.log("warn", fmt.Sprintf("[VALIDATE_RULE_FAULTS] %d rule(s) recovered: %v", len(faults), combined))
	}

	s.store.WriteValidationResults(scope, collected)

	s.cacheMu.Lock()
	s.cache[scope] = scopeCacheEntry{
		generation: generation,
		signature:  signature,
		allValid:   stats.AllValid(),
	}
	s.cacheMu.Unlock()

	stats.Duration = time.Since(start)
	s.log("debug", fmt.Sprintf("[VALIDATE_DONE] scope=%s rows=%d errors=%d warnings=%d elapsed=%s",
		scope, stats.ValidatedRows, stats.ErrorCount, stats.WarningCount, stats.Duration))
	return stats, nil
}

// evaluateBatch runs all per-row rules and groups against one batch, with
// rows evaluated in parallel up to the configured bound.
func (s *Service) evaluateBatch(ctx context.Context, batch []*Row, indexes []int, perRow []*rules.Rule, groups []*rules.RuleGroup) ([]ValidationError, []error, error) {
	if len(batch) == 0 || (len(perRow) == 0 && len(groups) == 0) {
		return nil, nil, nil
	}

	perRowErrs := make([][]ValidationError, len(batch))
	perRowFaults := make([][]error, len(batch))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for i, row := range batch {
		i, row := i, row
		eg.Go(func() error {
			errs, faults, err := s.evaluateRow(ectx, row, indexes[i], perRow, groups)
			if err != nil {
				return err
			}
			perRowErrs[i] = errs
			perRowFaults[i] = faults
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var flatErrs []ValidationError
	var flatFaults []error
	for i := range batch {
		flatErrs = append(flatErrs, perRowErrs[i]...)
		flatFaults = append(flatFaults, perRowFaults[i]...)
	}
	return flatErrs, flatFaults, nil
}

// evaluateRow runs the given rules and groups against one row
func (s *Service) evaluateRow(ctx context.Context, row *Row, rowIndex int, perRow []*rules.Rule, groups []*rules.RuleGroup) ([]ValidationError, []error, error) {
	var errs []ValidationError
	var faults []error

	for _, rule := range perRow {
		res, err := rule.EvaluateRow(ctx, row)
		if err != nil {
			return nil, nil, err
		}
		if res.IsValid {
			continue
		}
		ve := resultToError(res, rule.ID)
		ve.RowIndex = rowIndex
		ve.RowID = row.ID
		errs = append(errs, ve)
		if res.Fault {
			faults = append(faults, fmt.Errorf("rule %q: %s", rule.Name, res.Message))
		}
	}

	for _, group := range groups {
		res, err := group.Evaluate(ctx, row)
		if err != nil {
			return nil, nil, err
		}
		if res.IsValid {
			continue
		}
		ve := resultToError(res, group.ID)
		ve.RowIndex = rowIndex
		ve.RowID = row.ID
		errs = append(errs, ve)
	}

	return errs, faults, nil
}

// evaluateDatasetRule runs one dataset rule over the retained non-empty rows
// and maps each failing result back to the row's full stream index via the
// parallel indexes slice.
func (s *Service) evaluateDatasetRule(ctx context.Context, rule *rules.Rule, nonEmpty []*Row, indexes []int) ([]ValidationError, []error, error) {
	rowResults, err := rule.EvaluateDataset(ctx, nonEmpty)
	if err != nil {
		return nil, nil, err
	}
	var errs []ValidationError
	var faults []error
	for _, rr := range rowResults {
		ve := resultToError(rr.Result, rule.ID)
		if rr.RowIndex >= 0 && rr.RowIndex < len(nonEmpty) {
			ve.RowIndex = indexes[rr.RowIndex]
			ve.RowID = nonEmpty[rr.RowIndex].ID
		} else {
			ve.RowIndex = -1
		}
		errs = append(errs, ve)
		if rr.Result.Fault {
			faults = append(faults, fmt.Errorf("rule %q: %s", rule.Name, rr.Result.Message))
		}
	}
	return errs, faults, nil
}

// ValidateRow re-validates one row against only the rules depending on the
// touched column and merges the outcome into the store's recorded state.
// Dataset rules depending on the column are re-run over the full collection:
// a single-cell edit can introduce or dissolve a cross-row violation on
// other rows, so their recorded results are replaced per rule.
// This is the real-time path behind single-cell edits.
func (s *Service) ValidateRow(ctx context.Context, rowIndex int, column string) (bool, error) {
	scope := interfaces.ScopeAllRows
	row, err := s.store.Row(rowIndex)
	if err != nil {
		return false, err
	}

	// Dataset-rule state is replaced per rule below, so the per-row merge
	// must leave those entries alone.
	datasetIDs := make(map[string]struct{})
	for _, r := range s.rules.Rules() {
		if r.IsDatasetRule() {
			datasetIDs[r.ID] = struct{}{}
		}
	}

	var rowErrs []ValidationError
	if row.IsEmpty() {
		s.store.MergeRowValidationResults(scope, row.ID, nil, datasetIDs)
	} else {
		matchedRules, matchedGroups := s.rules.ForColumn(column)
		errs, faults, err := s.evaluateRow(ctx, row, rowIndex, matchedRules, matchedGroups)
		if err != nil {
			return false, err
		}
		if combined := multierr.Combine(faults...); combined != nil {
			s.log("warn", fmt.Sprintf("[VALIDATE_RULE_FAULTS] row %d: %v", rowIndex, combined))
		}
		s.store.MergeRowValidationResults(scope, row.ID, errs, datasetIDs)
		rowErrs = errs
	}

	// Clearing a cell can dissolve a duplicate elsewhere, so dataset rules
	// run even when the edited row became empty.
	datasetRules := s.rules.DatasetRulesForColumn(column)
	if len(datasetRules) > 0 {
		all := s.store.AllRows()
		var nonEmpty []*Row
		var nonEmptyIndexes []int
		for i, r := range all {
			if r.IsEmpty() {
				continue
			}
			nonEmpty = append(nonEmpty, r)
			nonEmptyIndexes = append(nonEmptyIndexes, i)
		}
		for _, rule := range datasetRules {
			ruleErrs, faults, err := s.evaluateDatasetRule(ctx, rule, nonEmpty, nonEmptyIndexes)
			if err != nil {
				return false, err
			}
			if combined := multierr.Combine(faults...); combined != nil {
				s.log("warn", fmt.Sprintf("[VALIDATE_RULE_FAULTS] rule %q: %v", rule.Name, combined))
			}
			s.store.MergeRuleValidationResults(scope, rule.ID, ruleErrs)
			for _, e := range ruleErrs {
				if e.RowID == row.ID {
					rowErrs = append(rowErrs, e)
				}
			}
		}
	}

	for _, e := range rowErrs {
		if e.Severity == interfaces.SeverityError {
			return false, nil
		}
	}
	return true, nil
}

// InvalidateCache drops all cached scope outcomes. The store's generation
// counter usually makes this unnecessary; it exists for rule-context changes
// the signature cannot see.
func (s *Service) InvalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache = make(map[RowScope]scopeCacheEntry)
}

func (s *Service) reportProgress(stage string, current, total int64) {
	if s.progress == nil {
		return
	}
	if current%interfaces.ProgressUpdateInterval != 0 && current != total {
		return
	}
	s.progress(stage, current, total, "")
}

// yieldBetweenBatches gives other goroutines a chance to run and honors
// cancellation between batches
func yieldBetweenBatches(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	runtime.Gosched()
	return nil
}

func resultToError(res interfaces.ValidationResult, ruleID string) ValidationError {
	return ValidationError{
		RuleID:   ruleID,
		Column:   res.Column,
		Message:  res.Message,
		Severity: res.Severity,
	}
}
