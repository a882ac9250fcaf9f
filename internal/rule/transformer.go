//file: internal/rule/transformer.go
package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transformer normalizes raw, partially-specified rule input into
// canonical Rules. It is stateless and safe for concurrent use.
type Transformer struct{}

// NewTransformer creates a new rule transformer
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform builds a canonical Rule from raw input. Missing optional
// fields receive defaults; missing required fields fail with a
// *ValidationError naming the offending element.
func (t *Transformer) Transform(raw map[string]interface{}) (*Rule, error) {
	rawType, ok := raw["rule_type"]
	if !ok {
		return nil, &ValidationError{
			Field:   "rule_type",
			Message: "missing required field",
		}
	}

	ruleType, ok := rawType.(string)
	if !ok || !SupportedRuleTypes[ruleType] {
		return nil, &ValidationError{
			Field:   "rule_type",
			Message: fmt.Sprintf("unsupported rule type: %v", rawType),
		}
	}

	conditions, err := transformConditions(raw["conditions"])
	if err != nil {
		return nil, err
	}

	actions, err := transformActions(raw["actions"])
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	return &Rule{
		RuleID:     stringOr(raw["rule_id"], generateRuleID()),
		RuleType:   ruleType,
		AssetID:    optionalString(raw["asset_id"]),
		AssetType:  optionalString(raw["asset_type"]),
		Conditions: conditions,
		Actions:    actions,
		Metadata: Metadata{
			CreatedAt: now,
			UpdatedAt: now,
			Source:    MetadataSource,
			Version:   MetadataVersion,
		},
		Database: stringOr(raw["database"], ""),
		Schema:   stringOr(raw["schema"], ""),
		Table:    stringOr(raw["table"], ""),
		Catalog:  stringOr(raw["catalog"], ""),
	}, nil
}

// transformConditions normalizes the raw conditions list. An absent or
// null list yields an empty (non-nil) slice.
func transformConditions(raw interface{}) ([]Condition, error) {
	items, err := asList(raw, "conditions")
	if err != nil {
		return nil, err
	}

	conditions := make([]Condition, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("conditions[%d]", i)

		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ValidationError{
				Field:   field,
				Message: "condition must be an object",
			}
		}

		if missing := missingKeys(m, "field", "operator", "value"); len(missing) > 0 {
			return nil, &ValidationError{
				Field:   field,
				Message: "missing required keys: " + strings.Join(missing, ", "),
			}
		}

		name, err := requiredString(m, "field", field)
		if err != nil {
			return nil, err
		}
		operator, err := requiredString(m, "operator", field)
		if err != nil {
			return nil, err
		}

		conditions = append(conditions, Condition{
			Field:       name,
			Operator:    operator,
			Value:       m["value"],
			Description: stringOr(m["description"], ""),
			Severity:    stringOr(m["severity"], DefaultSeverity),
		})
	}

	return conditions, nil
}

// transformActions normalizes the raw actions list. An absent or null
// list yields an empty (non-nil) slice.
func transformActions(raw interface{}) ([]Action, error) {
	items, err := asList(raw, "actions")
	if err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("actions[%d]", i)

		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ValidationError{
				Field:   field,
				Message: "action must be an object",
			}
		}

		if missing := missingKeys(m, "type"); len(missing) > 0 {
			return nil, &ValidationError{
				Field:   field,
				Message: "missing required keys: " + strings.Join(missing, ", "),
			}
		}

		actionType, err := requiredString(m, "type", field)
		if err != nil {
			return nil, err
		}

		parameters, ok := m["parameters"].(map[string]interface{})
		if !ok {
			parameters = map[string]interface{}{}
		}

		actions = append(actions, Action{
			Type:        actionType,
			Parameters:  parameters,
			Description: stringOr(m["description"], ""),
			Priority:    stringOr(m["priority"], DefaultPriority),
		})
	}

	return actions, nil
}

// generateRuleID returns a collision-resistant rule identifier
func generateRuleID() string {
	return "rule_" + uuid.NewString()
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// asList coerces a raw value to a list. nil (absent key or JSON null)
// becomes an empty list.
func asList(raw interface{}, field string) ([]interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, &ValidationError{
			Field:   field,
			Message: "must be a list",
		}
	}
	return items, nil
}

// missingKeys returns the subset of keys absent from m, in order.
func missingKeys(m map[string]interface{}, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// requiredString extracts a key that must hold a non-empty string.
func requiredString(m map[string]interface{}, key, field string) (string, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a non-empty string", key),
		}
	}
	return s, nil
}

// stringOr returns v when it is a string, def otherwise.
func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// optionalString returns a pointer to v when it is a string, nil
// otherwise. Serializes as string|null.
func optionalString(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}
