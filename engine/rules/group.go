package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gridline/engine/interfaces"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// LogicalOperator combines child results inside a rule group
type LogicalOperator int

const (
	OpAnd LogicalOperator = iota
	OpOr
	OpAndShortCircuit
	OpOrShortCircuit
)

func (op LogicalOperator) isAndFamily() bool {
	return op == OpAnd || op == OpAndShortCircuit
}

func (op LogicalOperator) isShortCircuit() bool {
	return op == OpAndShortCircuit || op == OpOrShortCircuit
}

// EvaluationStrategy controls how a group walks its children
type EvaluationStrategy int

const (
	StrategySequential EvaluationStrategy = iota
	StrategyParallel
	StrategyShortCircuit
)

// StopPolicy adds an early-exit condition on top of the logical operator
type StopPolicy int

const (
	ValidateAll StopPolicy = iota
	StopOnFirstError
	StopOnFirstSuccess
)

// RuleGroup is a recursive composite of child rules and child groups.
// Child groups evaluate before direct rules; within each set, sequential
// strategies honor priority order.
type RuleGroup struct {
	ID       string
	Name     string
	Operator LogicalOperator
	Strategy EvaluationStrategy
	Stop     StopPolicy
	Priority int
	Timeout  time.Duration // Budget for the whole group evaluation, optional

	Rules  []*Rule
	Groups []*RuleGroup
}

// NewRuleGroup creates a group with the given operator and strategy
func NewRuleGroup(name string, op LogicalOperator, strategy EvaluationStrategy) *RuleGroup {
	return &RuleGroup{
		ID:       fmt.Sprintf("group_%s", uuid.New().String()),
		Name:     name,
		Operator: op,
		Strategy: strategy,
		Stop:     ValidateAll,
	}
}

// NewAndGroup creates a sequential AND group over the given rules
func NewAndGroup(name string, rules ...*Rule) *RuleGroup {
	g := NewRuleGroup(name, OpAnd, StrategySequential)
	g.Rules = rules
	return g
}

// NewOrGroup creates a sequential OR group over the given rules
func NewOrGroup(name string, rules ...*Rule) *RuleGroup {
	g := NewRuleGroup(name, OpOr, StrategySequential)
	g.Rules = rules
	return g
}

// AddRule appends a child rule and returns the group for chaining
func (g *RuleGroup) AddRule(r *Rule) *RuleGroup {
	g.Rules = append(g.Rules, r)
	return g
}

// AddGroup appends a child group and returns the group for chaining
func (g *RuleGroup) AddGroup(child *RuleGroup) *RuleGroup {
	g.Groups = append(g.Groups, child)
	return g
}

// Validate checks the group's structural invariants: at least one child,
// and only per-row rule variants (dataset rules run outside groups).
func (g *RuleGroup) Validate() error {
	if len(g.Rules) == 0 && len(g.Groups) == 0 {
		return fmt.Errorf("rule group %q must contain at least one rule or child group", g.Name)
	}
	for _, r := range g.Rules {
		if r.IsDatasetRule() {
			return fmt.Errorf("rule group %q contains dataset rule %q; dataset rules run standalone", g.Name, r.Name)
		}
	}
	for _, child := range g.Groups {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DependsOnColumn reports whether any rule in the subtree depends on the
// given column
func (g *RuleGroup) DependsOnColumn(column string) bool {
	for _, r := range g.Rules {
		if r.DependsOnColumn(column) {
			return true
		}
	}
	for _, child := range g.Groups {
		if child.DependsOnColumn(column) {
			return true
		}
	}
	return false
}

// RemapColumn updates column references throughout the subtree after a
// schema rename
func (g *RuleGroup) RemapColumn(oldName, newName string) {
	for _, r := range g.Rules {
		r.RemapColumn(oldName, newName)
	}
	for _, child := range g.Groups {
		child.RemapColumn(oldName, newName)
	}
}

// childEvaluator lets groups and rules share one evaluation loop
type childEvaluator struct {
	priority int
	eval     func(ctx context.Context, row *Row) (ValidationResult, error)
}

func (g *RuleGroup) children() []childEvaluator {
	out := make([]childEvaluator, 0, len(g.Groups)+len(g.Rules))
	// Child groups first, then direct rules
	childGroups := make([]*RuleGroup, len(g.Groups))
	copy(childGroups, g.Groups)
	sort.SliceStable(childGroups, func(i, j int) bool { return childGroups[i].Priority < childGroups[j].Priority })
	for _, child := range childGroups {
		out = append(out, childEvaluator{priority: child.Priority, eval: child.Evaluate})
	}
	childRules := make([]*Rule, len(g.Rules))
	copy(childRules, g.Rules)
	sort.SliceStable(childRules, func(i, j int) bool { return childRules[i].Priority < childRules[j].Priority })
	for _, r := range childRules {
		out = append(out, childEvaluator{priority: r.Priority, eval: r.EvaluateRow})
	}
	return out
}

// Evaluate runs the group against one row. The returned error is non-nil
// only for caller cancellation; a group-level timeout becomes a Timeout
// result like any rule timeout.
func (g *RuleGroup) Evaluate(ctx context.Context, row *Row) (ValidationResult, error) {
	start := time.Now()
	if err := g.Validate(); err != nil {
		return interfaces.Failure(err.Error(), interfaces.SeverityError, "", time.Since(start)), nil
	}

	gctx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	var results []ValidationResult
	var err error
	if g.Strategy == StrategyParallel {
		results, err = g.evaluateParallel(gctx, row)
	} else {
		results, err = g.evaluateSequential(gctx, row)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The group's own budget fired, not the caller's cancellation
			return interfaces.Timeout(g.Name, time.Since(start)), nil
		}
		return ValidationResult{}, err
	}

	return g.combine(results, time.Since(start)), nil
}

// evaluateSequential walks children in priority order, applying
// short-circuit semantics and the stop policy.
func (g *RuleGroup) evaluateSequential(ctx context.Context, row *Row) ([]ValidationResult, error) {
	shortCircuit := g.Operator.isShortCircuit() || g.Strategy == StrategyShortCircuit

	var results []ValidationResult
	for _, child := range g.children() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := child.eval(ctx, row)
		if err != nil {
			return nil, err
		}
		results = append(results, res)

		if shortCircuit {
			if g.Operator.isAndFamily() && !res.IsValid {
				return results, nil
			}
			if !g.Operator.isAndFamily() && res.IsValid {
				return results, nil
			}
		}
		switch g.Stop {
		case StopOnFirstError:
			if !res.IsValid {
				return results, nil
			}
		case StopOnFirstSuccess:
			if res.IsValid {
				return results, nil
			}
		}
	}
	return results, nil
}

// evaluateParallel launches all children concurrently and collects every
// result; short-circuiting does not apply.
func (g *RuleGroup) evaluateParallel(ctx context.Context, row *Row) ([]ValidationResult, error) {
	children := g.children()
	results := make([]ValidationResult, len(children))

	eg, ectx := errgroup.WithContext(ctx)
	for i, child := range children {
		i, child := i, child
		eg.Go(func() error {
			res, err := child.eval(ectx, row)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// combine folds child results into the group outcome. On failure the
// collected error messages join with "; " and the highest severity among
// failing children is reported.
func (g *RuleGroup) combine(results []ValidationResult, elapsed time.Duration) ValidationResult {
	succeeded := 0
	var messages []string
	worst := interfaces.SeverityInfo
	column := ""
	for _, res := range results {
		if res.IsValid {
			succeeded++
			continue
		}
		if res.Message != "" {
			messages = append(messages, res.Message)
		}
		if res.Severity > worst {
			worst = res.Severity
		}
		if column == "" {
			column = res.Column
		}
	}

	var overall bool
	if g.Operator.isAndFamily() {
		overall = succeeded == len(results)
	} else {
		overall = succeeded > 0
	}

	if overall {
		return interfaces.Success(elapsed)
	}
	return interfaces.Failure(strings.Join(messages, "; "), worst, column, elapsed)
}
