// Package rules implements the validation rule model: typed rule variants
// over single cells, rows, and whole datasets, plus recursive rule groups
// with configurable logical operators and evaluation strategies.
package rules

import (
	"context"
	"fmt"
	"time"

	"gridline/engine/interfaces"

	"github.com/google/uuid"
)

// Type aliases to the interfaces package to avoid duplication and circular
// dependencies
type Row = interfaces.Row
type Severity = interfaces.Severity
type ValidationResult = interfaces.ValidationResult

// RuleKind tags the closed set of rule variants
type RuleKind int

const (
	KindSingleCell RuleKind = iota
	KindCrossColumn
	KindCrossRow
	KindComplex
	KindConditional
	KindBusiness
)

// String returns the kind name for logging
func (k RuleKind) String() string {
	switch k {
	case KindSingleCell:
		return "single_cell"
	case KindCrossColumn:
		return "cross_column"
	case KindCrossRow:
		return "cross_row"
	case KindComplex:
		return "complex"
	case KindConditional:
		return "conditional"
	default:
		return "business"
	}
}

// CellFunc validates one cell value. It returns false plus a message on
// failure; the message becomes the validation error text.
type CellFunc func(value any) (bool, string)

// RowFunc validates one row's full field set
type RowFunc func(row *Row) (bool, string)

// DatasetFunc validates the entire dataset as a whole
type DatasetFunc func(rows []*Row) (bool, string)

// CrossRowFunc inspects the whole collection and returns a message per
// failing row index. Rows absent from the map passed.
type CrossRowFunc func(rows []*Row) map[int]string

// GuardFunc decides whether a conditional rule's nested rule applies to a row
type GuardFunc func(row *Row) bool

// BusinessFunc is a named rule carrying opaque caller context
type BusinessFunc func(row *Row, ruleContext any) (bool, string)

// Rule is the tagged-variant rule type. Exactly one of the function fields
// matching Kind is set; constructors enforce this.
type Rule struct {
	ID        string
	Name      string
	Kind      RuleKind
	Column    string   // Target column expression for single-cell rules, may carry a {$.path} suffix
	DependsOn []string // Columns whose edits retrigger this rule in real-time mode
	Severity  Severity
	Timeout   time.Duration // Per-rule budget; DefaultRuleTimeout when zero
	Priority  int           // Lower values evaluate earlier in sequential strategies

	cellFn     CellFunc
	rowFn      RowFunc
	datasetFn  DatasetFunc
	crossRowFn CrossRowFunc
	guard      GuardFunc
	inner      *Rule
	businessFn BusinessFunc
	context    any
}

func newRule(name string, kind RuleKind) *Rule {
	return &Rule{
		ID:       fmt.Sprintf("rule_%s", uuid.New().String()),
		Name:     name,
		Kind:     kind,
		Severity: interfaces.SeverityError,
	}
}

// NewSingleCellRule creates a rule that is a pure function of one cell value.
// The column expression may address into JSON content: `payload{$.user.id}`.
func NewSingleCellRule(name, column string, fn CellFunc) *Rule {
	r := newRule(name, KindSingleCell)
	base, _, _ := ParseColumnExpr(column)
	r.Column = column
	r.DependsOn = []string{base}
	r.cellFn = fn
	return r
}

// NewCrossColumnRule creates a rule over one row's full field set.
// dependsOn lists the columns whose edits should retrigger it.
func NewCrossColumnRule(name string, dependsOn []string, fn RowFunc) *Rule {
	r := newRule(name, KindCrossColumn)
	r.DependsOn = dependsOn
	r.rowFn = fn
	return r
}

// NewCrossRowRule creates a rule over the whole collection that yields one
// result per row, e.g. uniqueness.
func NewCrossRowRule(name, column string, fn CrossRowFunc) *Rule {
	r := newRule(name, KindCrossRow)
	r.Column = column
	if column != "" {
		base, _, _ := ParseColumnExpr(column)
		r.DependsOn = []string{base}
	}
	r.crossRowFn = fn
	return r
}

// NewComplexRule creates a rule over the entire dataset producing a single
// dataset-level result.
func NewComplexRule(name string, fn DatasetFunc) *Rule {
	r := newRule(name, KindComplex)
	r.datasetFn = fn
	return r
}

// NewConditionalRule wraps an inner rule behind a guard predicate. When the
// guard declines a row the rule passes vacuously.
func NewConditionalRule(name string, guard GuardFunc, inner *Rule) *Rule {
	r := newRule(name, KindConditional)
	r.guard = guard
	r.inner = inner
	if inner != nil {
		r.DependsOn = inner.DependsOn
		r.Severity = inner.Severity
	}
	return r
}

// NewBusinessRule creates a named rule with opaque caller-supplied context
func NewBusinessRule(name string, ruleContext any, fn BusinessFunc) *Rule {
	r := newRule(name, KindBusiness)
	r.context = ruleContext
	r.businessFn = fn
	return r
}

// NewUniqueValueRule is a convenience cross-row rule flagging duplicate
// values in one column. Comparison is case-insensitive unless caseSensitive
// is set; blank values are never considered duplicates.
func NewUniqueValueRule(name, column string, caseSensitive bool) *Rule {
	return NewCrossRowRule(name, column, func(rows []*Row) map[int]string {
		seen := make(map[string]int)
		failing := make(map[int]string)
		for i, row := range rows {
			v, ok := CellValue(row, column)
			if !ok || interfaces.IsBlankValue(v) {
				continue
			}
			key := normalizeKeyValue(v, caseSensitive)
			if first, dup := seen[key]; dup {
				msg := fmt.Sprintf("duplicate value %q in column %q", interfaces.ValueString(v), column)
				failing[i] = msg
				failing[first] = msg
			} else {
				seen[key] = i
			}
		}
		return failing
	})
}

// WithSeverity sets the rule severity and returns the rule for chaining
func (r *Rule) WithSeverity(s Severity) *Rule {
	r.Severity = s
	return r
}

// WithTimeout overrides the per-rule timeout
func (r *Rule) WithTimeout(d time.Duration) *Rule {
	r.Timeout = d
	return r
}

// WithPriority sets the sequential evaluation priority (lower runs earlier)
func (r *Rule) WithPriority(p int) *Rule {
	r.Priority = p
	return r
}

// IsDatasetRule reports whether the rule needs the whole collection rather
// than a single row
func (r *Rule) IsDatasetRule() bool {
	return r.Kind == KindCrossRow || r.Kind == KindComplex
}

// DependsOnColumn reports whether an edit to the given column should
// retrigger this rule
func (r *Rule) DependsOnColumn(column string) bool {
	for _, c := range r.DependsOn {
		if equalFoldTrim(c, column) {
			return true
		}
	}
	return false
}

// RemapColumn updates column references after a schema rename
func (r *Rule) RemapColumn(oldName, newName string) {
	if base, path, has := ParseColumnExpr(r.Column); equalFoldTrim(base, oldName) {
		if has {
			r.Column = fmt.Sprintf("%s{%s}", newName, path)
		} else if r.Column != "" {
			r.Column = newName
		}
	}
	for i, c := range r.DependsOn {
		if equalFoldTrim(c, oldName) {
			r.DependsOn[i] = newName
		}
	}
	if r.inner != nil {
		r.inner.RemapColumn(oldName, newName)
	}
}

// effectiveTimeout returns the rule's budget, falling back to the default
func (r *Rule) effectiveTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return interfaces.DefaultRuleTimeout
}

// EvaluateRow evaluates a per-row rule variant against one row. The returned
// error is non-nil only for caller cancellation; timeouts become a Timeout
// result and panics inside the rule become a recovered Fault failure.
func (r *Rule) EvaluateRow(ctx context.Context, row *Row) (ValidationResult, error) {
	switch r.Kind {
	case KindSingleCell:
		return r.runGuarded(ctx, func() (bool, string) {
			value, _ := CellValue(row, r.Column)
			return r.cellFn(value)
		})
	case KindCrossColumn:
		return r.runGuarded(ctx, func() (bool, string) {
			return r.rowFn(row)
		})
	case KindConditional:
		if r.guard == nil || r.inner == nil {
			return interfaces.Failure(fmt.Sprintf("conditional rule %q has no guard or inner rule", r.Name), interfaces.SeverityError, "", 0), nil
		}
		applies, err := r.runGuarded(ctx, func() (bool, string) {
			return r.guard(row), ""
		})
		if err != nil {
			return ValidationResult{}, err
		}
		if !applies.IsValid {
			// Guard declined (or faulted): the nested rule does not apply
			return interfaces.Success(applies.Duration), nil
		}
		return r.inner.EvaluateRow(ctx, row)
	case KindBusiness:
		return r.runGuarded(ctx, func() (bool, string) {
			return r.businessFn(row, r.context)
		})
	default:
		return interfaces.Failure(fmt.Sprintf("rule %q (%s) cannot be evaluated per row", r.Name, r.Kind), interfaces.SeverityError, "", 0), nil
	}
}

// RowResult pairs a row index with a validation outcome for dataset rules
type RowResult struct {
	RowIndex int
	Result   ValidationResult
}

// EvaluateDataset evaluates a dataset rule variant over the full row
// collection. Cross-row rules yield one failing result per affected row;
// complex rules yield a single dataset-level result at index -1.
func (r *Rule) EvaluateDataset(ctx context.Context, rows []*Row) ([]RowResult, error) {
	switch r.Kind {
	case KindCrossRow:
		var failing map[int]string
		res, err := r.runGuarded(ctx, func() (bool, string) {
			failing = r.crossRowFn(rows)
			return len(failing) == 0, ""
		})
		if err != nil {
			return nil, err
		}
		if res.IsValid {
			return nil, nil
		}
		if res.TimedOut || res.Fault {
			return []RowResult{{RowIndex: -1, Result: res}}, nil
		}
		out := make([]RowResult, 0, len(failing))
		for idx, msg := range failing {
			out = append(out, RowResult{
				RowIndex: idx,
				Result:   interfaces.Failure(msg, r.Severity, baseColumn(r.Column), res.Duration),
			})
		}
		return out, nil
	case KindComplex:
		res, err := r.runGuarded(ctx, func() (bool, string) {
			return r.datasetFn(rows)
		})
		if err != nil {
			return nil, err
		}
		if res.IsValid {
			return nil, nil
		}
		return []RowResult{{RowIndex: -1, Result: res}}, nil
	default:
		return nil, fmt.Errorf("rule %q (%s) is not a dataset rule", r.Name, r.Kind)
	}
}

// runGuarded runs one rule function under the per-rule timeout with panic
// recovery. Caller cancellation propagates as an error; a pure timeout is
// translated into the distinguished Timeout result so a single slow rule
// cannot stall the batch.
func (r *Rule) runGuarded(ctx context.Context, fn func() (bool, string)) (ValidationResult, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, r.effectiveTimeout())
	defer cancel()

	type outcome struct {
		ok  bool
		msg string
	}
	done := make(chan outcome, 1)
	faulted := make(chan any, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				faulted <- p
			}
		}()
		ok, msg := fn()
		done <- outcome{ok: ok, msg: msg}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.ok {
			return interfaces.Success(elapsed), nil
		}
		msg := out.msg
		if msg == "" {
			msg = fmt.Sprintf("rule %q failed", r.Name)
		}
		return interfaces.Failure(msg, r.Severity, baseColumn(r.Column), elapsed), nil
	case p := <-faulted:
		// A broken rule must not abort the batch; surface it as data
		res := interfaces.Failure(
			fmt.Sprintf("rule %q raised an internal error: %v", r.Name, p),
			interfaces.SeverityError, baseColumn(r.Column), time.Since(start))
		res.Fault = true
		return res, nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return ValidationResult{}, ctx.Err()
		}
		return interfaces.Timeout(r.Name, time.Since(start)), nil
	}
}

func baseColumn(expr string) string {
	base, _, _ := ParseColumnExpr(expr)
	return base
}
