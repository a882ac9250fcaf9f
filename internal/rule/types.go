//file: internal/rule/types.go
package rule

import "encoding/json"

// Condition is a predicate a rule evaluates against an asset.
type Condition struct {
	Field       string      `json:"field"`       // Asset field the predicate inspects
	Operator    string      `json:"operator"`    // Comparison operator
	Value       interface{} `json:"value"`       // Value to compare against
	Description string      `json:"description"` // Optional human description
	Severity    string      `json:"severity"`    // low, medium or high
}

// Action is an effect applied when a rule's conditions match.
type Action struct {
	Type        string                 `json:"type"`        // Effect identifier, e.g. "mask"
	Parameters  map[string]interface{} `json:"parameters"`  // Effect-specific settings
	Description string                 `json:"description"` // Optional human description
	Priority    string                 `json:"priority"`    // low, normal or high
}

// Metadata carries provenance for a transformed rule.
type Metadata struct {
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Source    string `json:"source"`
	Version   string `json:"version"`
}

// Rule is the canonical representation of a governance/security policy.
// Values are immutable once built; re-transforming merged input yields a
// fresh Rule rather than mutating an existing one.
type Rule struct {
	RuleID     string      `json:"rule_id"`
	RuleType   string      `json:"rule_type"`
	AssetID    *string     `json:"asset_id"`
	AssetType  *string     `json:"asset_type"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	Metadata   Metadata    `json:"metadata"`

	// Placement hints consumed by the downstream projections. Optional;
	// omitted from JSON when unset.
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Table    string `json:"table,omitempty"`
	Catalog  string `json:"catalog,omitempty"`
}

// AsMap returns the rule in its canonical JSON object form, suitable for
// storing as a record payload or merging with incoming fields.
func (r *Rule) AsMap() (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Policy is a target-system-specific projection of a Rule. One struct
// serves every target; mappings fill either Database or Catalog.
type Policy struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Database   string            `json:"database,omitempty"`
	Catalog    string            `json:"catalog,omitempty"`
	Schema     string            `json:"schema"`
	Table      string            `json:"table"`
	Conditions []PolicyCondition `json:"conditions"`
	Actions    []PolicyAction    `json:"actions"`
}

// PolicyCondition is the column/operator/value triple shared by all
// downstream projections.
type PolicyCondition struct {
	Column   string      `json:"column"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// PolicyAction is the projected form of an Action.
type PolicyAction struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Rule type constants
const (
	RuleTypePII    = "PII"
	RuleTypeGDPR   = "GDPR"
	RuleTypeCustom = "CUSTOM"
)

// Condition severity levels
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Action priority levels
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Defaults applied by the transformer
const (
	DefaultSeverity = SeverityMedium
	DefaultPriority = PriorityNormal

	MetadataSource  = "atlan"
	MetadataVersion = "1.0"
)

// SupportedRuleTypes contains all accepted rule_type values
var SupportedRuleTypes = map[string]bool{
	RuleTypePII:    true,
	RuleTypeGDPR:   true,
	RuleTypeCustom: true,
}
