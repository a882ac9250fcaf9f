//file: internal/rule/formatter.go
package rule

import (
	"sort"
	"sync"
)

// Built-in downstream targets
const (
	TargetSnowflake  = "snowflake"
	TargetDatabricks = "databricks"
)

// DefaultTargets returns the target set used when a caller requests no
// specific targets.
func DefaultTargets() []string {
	return []string{TargetSnowflake, TargetDatabricks}
}

// MappingFunc projects a canonical rule into a target-system policy.
// Mappings must be pure: no I/O, no mutation of the rule.
type MappingFunc func(rule *Rule) *Policy

// Formatter translates canonical rules into downstream policy documents
// through a registry of named mappings. Adding a target is a data-shape
// decision: register a mapping, no dispatch code changes.
type Formatter struct {
	mu       sync.RWMutex
	mappings map[string]MappingFunc
}

// NewFormatter returns a formatter with the built-in target mappings
// registered.
func NewFormatter() *Formatter {
	f := &Formatter{
		mappings: make(map[string]MappingFunc),
	}
	f.Register(TargetSnowflake, formatSnowflake)
	f.Register(TargetDatabricks, formatDatabricks)
	return f
}

// Register adds or replaces the mapping for a target name
func (f *Formatter) Register(target string, fn MappingFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[target] = fn
}

// Targets returns the registered target names, sorted
func (f *Formatter) Targets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	targets := make([]string, 0, len(f.mappings))
	for target := range f.mappings {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Format projects a rule for a single target. Unknown targets fail with
// a *UnsupportedTargetError rather than passing through.
func (f *Formatter) Format(rule *Rule, target string) (*Policy, error) {
	f.mu.RLock()
	fn, ok := f.mappings[target]
	f.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedTargetError{Target: target}
	}
	return fn(rule), nil
}

func formatSnowflake(rule *Rule) *Policy {
	p := &Policy{
		Type:       "snowflake_policy",
		Name:       "atlan_" + rule.RuleID,
		Database:   rule.Database,
		Schema:     rule.Schema,
		Table:      rule.Table,
		Conditions: projectConditions(rule.Conditions),
		Actions:    projectActions(rule.Actions),
	}
	if p.Database == "" {
		p.Database = "PUBLIC"
	}
	if p.Schema == "" {
		p.Schema = "PUBLIC"
	}
	return p
}

func formatDatabricks(rule *Rule) *Policy {
	p := &Policy{
		Type:       "databricks_policy",
		Name:       "atlan_" + rule.RuleID,
		Catalog:    rule.Catalog,
		Schema:     rule.Schema,
		Table:      rule.Table,
		Conditions: projectConditions(rule.Conditions),
		Actions:    projectActions(rule.Actions),
	}
	if p.Catalog == "" {
		p.Catalog = "hive_metastore"
	}
	if p.Schema == "" {
		p.Schema = "default"
	}
	return p
}

// projectConditions maps conditions to the column/operator/value triples
// every target shares.
func projectConditions(conditions []Condition) []PolicyCondition {
	projected := make([]PolicyCondition, len(conditions))
	for i, c := range conditions {
		projected[i] = PolicyCondition{
			Column:   c.Field,
			Operator: c.Operator,
			Value:    c.Value,
		}
	}
	return projected
}

func projectActions(actions []Action) []PolicyAction {
	projected := make([]PolicyAction, len(actions))
	for i, a := range actions {
		projected[i] = PolicyAction{
			Type:       a.Type,
			Parameters: a.Parameters,
		}
	}
	return projected
}
