package lifecycle

import (
	"context"
	"fmt"
	"time"

	"gridline/engine/interfaces"
	"gridline/engine/rules"
)

// DeleteMode selects which rows a rule-based deletion removes
type DeleteMode int

const (
	DeleteInvalid DeleteMode = iota
	DeleteValid
)

// ValidationDeleteCriteria configures rule-based bulk deletion. Only the
// supplied rules are evaluated, never the engine's full rule set.
type ValidationDeleteCriteria struct {
	Rules        []*rules.Rule
	Groups       []*rules.RuleGroup
	Mode         DeleteMode
	OnlyFiltered bool
	OnlyChecked  bool
	BatchSize    int
}

// DeleteRowsByValidation streams the selected rows, evaluates the caller's
// rule subset per row, collects the identities matching the mode, and
// deletes them through the ID-based smart delete path. Rows failing with
// error severity count as invalid; warnings and infos do not.
func (m *Manager) DeleteRowsByValidation(ctx context.Context, criteria ValidationDeleteCriteria) (Result, error) {
	start := time.Now()
	if len(criteria.Rules) == 0 && len(criteria.Groups) == 0 {
		return Result{}, fmt.Errorf("validation delete requires at least one rule or group")
	}
	for _, r := range criteria.Rules {
		if r.IsDatasetRule() {
			return Result{}, fmt.Errorf("rule %q operates on the whole dataset and cannot drive per-row deletion", r.Name)
		}
	}

	var doomed []string
	stream := m.store.StreamRows(interfaces.StreamOptions{
		OnlyFiltered: criteria.OnlyFiltered,
		OnlyChecked:  criteria.OnlyChecked,
		BatchSize:    criteria.BatchSize,
	})
	for {
		batch, ok := stream.Next()
		if !ok {
			break
		}
		for _, row := range batch {
			if row.IsEmpty() {
				continue
			}
			invalid, err := m.rowIsInvalid(ctx, row, criteria)
			if err != nil {
				return Result{}, err
			}
			if (criteria.Mode == DeleteInvalid && invalid) || (criteria.Mode == DeleteValid && !invalid) {
				doomed = append(doomed, row.ID)
			}
		}
	}

	if len(doomed) == 0 {
		return Result{
			Success:       true,
			Message:       "no rows matched the deletion criteria",
			FinalRowCount: m.store.RowCount(),
			Duration:      time.Since(start),
		}, nil
	}

	m.log("debug", fmt.Sprintf("[DELETE_BY_VALIDATION] mode=%d doomed=%d", criteria.Mode, len(doomed)))
	result, err := m.SmartDeleteRowsByID(ctx, doomed)
	if err != nil {
		return Result{}, err
	}
	result.Message = fmt.Sprintf("deleted %d rows by validation", result.Stats.RowsPhysicallyDeleted)
	result.Duration = time.Since(start)
	return result, nil
}

// rowIsInvalid evaluates just the criteria's rules against one row
func (m *Manager) rowIsInvalid(ctx context.Context, row *Row, criteria ValidationDeleteCriteria) (bool, error) {
	for _, rule := range criteria.Rules {
		res, err := rule.EvaluateRow(ctx, row)
		if err != nil {
			return false, err
		}
		if !res.IsValid && res.Severity == interfaces.SeverityError {
			return true, nil
		}
	}
	for _, group := range criteria.Groups {
		res, err := group.Evaluate(ctx, row)
		if err != nil {
			return false, err
		}
		if !res.IsValid && res.Severity == interfaces.SeverityError {
			return true, nil
		}
	}
	return false, nil
}
