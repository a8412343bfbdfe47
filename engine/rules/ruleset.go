package rules

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/minio/highwayhash"
)

// signatureKey is the fixed key used for rule-set signatures. Signatures
// only need to be stable within a process, so a hardcoded key is fine.
var signatureKey = []byte("gridline rule signature\x00\x00\x00\x00\x00\x00\x00\x00\x00")

// RuleSet is the engine's thread-safe rule collection. Reads take a
// snapshot; removal recreates the backing slices rather than mutating them
// in place, so in-flight evaluations keep a consistent view.
type RuleSet struct {
	mu     sync.RWMutex
	rules  []*Rule
	groups []*RuleGroup
}

// NewRuleSet creates an empty rule set
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add registers a rule
func (rs *RuleSet) Add(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule must not be nil")
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = append(rs.rules, r)
	return nil
}

// AddGroup registers a rule group after validating its structure
func (rs *RuleSet) AddGroup(g *RuleGroup) error {
	if g == nil {
		return fmt.Errorf("rule group must not be nil")
	}
	if err := g.Validate(); err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.groups = append(rs.groups, g)
	return nil
}

// Remove deletes the rule or group with the given ID or name.
// Returns false if nothing matched.
func (rs *RuleSet) Remove(idOrName string) bool {
	return rs.RemoveMany([]string{idOrName}) > 0
}

// RemoveMany deletes every rule or group matching one of the given IDs or
// names, recreating the collections. Returns the number removed.
func (rs *RuleSet) RemoveMany(idsOrNames []string) int {
	if len(idsOrNames) == 0 {
		return 0
	}
	doomed := make(map[string]struct{}, len(idsOrNames))
	for _, key := range idsOrNames {
		doomed[key] = struct{}{}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	removed := 0

	keptRules := make([]*Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if _, dead := doomed[r.ID]; dead {
			removed++
			continue
		}
		if _, dead := doomed[r.Name]; dead {
			removed++
			continue
		}
		keptRules = append(keptRules, r)
	}
	rs.rules = keptRules

	keptGroups := make([]*RuleGroup, 0, len(rs.groups))
	for _, g := range rs.groups {
		if _, dead := doomed[g.ID]; dead {
			removed++
			continue
		}
		if _, dead := doomed[g.Name]; dead {
			removed++
			continue
		}
		keptGroups = append(keptGroups, g)
	}
	rs.groups = keptGroups

	return removed
}

// Rules returns a snapshot of the registered rules
func (rs *RuleSet) Rules() []*Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Groups returns a snapshot of the registered rule groups
func (rs *RuleSet) Groups() []*RuleGroup {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*RuleGroup, len(rs.groups))
	copy(out, rs.groups)
	return out
}

// Len returns the number of registered rules plus groups
func (rs *RuleSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rules) + len(rs.groups)
}

// ForColumn returns the per-row rules and groups that depend on the given
// column. This drives real-time validation after a single-cell edit.
func (rs *RuleSet) ForColumn(column string) ([]*Rule, []*RuleGroup) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var matchedRules []*Rule
	for _, r := range rs.rules {
		if !r.IsDatasetRule() && r.DependsOnColumn(column) {
			matchedRules = append(matchedRules, r)
		}
	}
	var matchedGroups []*RuleGroup
	for _, g := range rs.groups {
		if g.DependsOnColumn(column) {
			matchedGroups = append(matchedGroups, g)
		}
	}
	return matchedRules, matchedGroups
}

// DatasetRulesForColumn returns the dataset rules an edit to the given
// column can retrigger. Cross-row rules match by declared dependency;
// complex rules depend on the whole dataset and always match.
func (rs *RuleSet) DatasetRulesForColumn(column string) []*Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var matched []*Rule
	for _, r := range rs.rules {
		if !r.IsDatasetRule() {
			continue
		}
		if r.Kind == KindComplex || r.DependsOnColumn(column) {
			matched = append(matched, r)
		}
	}
	return matched
}

// RemapColumn updates column references across all rules and groups after a
// schema rename. Wired to the column set's rename event.
func (rs *RuleSet) RemapColumn(oldName, newName string) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, r := range rs.rules {
		r.RemapColumn(oldName, newName)
	}
	for _, g := range rs.groups {
		g.RemapColumn(oldName, newName)
	}
}

// Signature returns a stable hash of the registered rule and group IDs.
// Scope caches key on it so rule changes invalidate cached pass/fail state.
func (rs *RuleSet) Signature() string {
	rs.mu.RLock()
	ids := make([]string, 0, len(rs.rules)+len(rs.groups))
	for _, r := range rs.rules {
		ids = append(ids, r.ID)
	}
	for _, g := range rs.groups {
		ids = append(ids, g.ID)
	}
	rs.mu.RUnlock()

	sort.Strings(ids)
	h, err := highwayhash.New(signatureKey)
	if err != nil {
		// Key length is fixed at 32 bytes; this cannot happen at runtime
		panic(err)
	}
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
