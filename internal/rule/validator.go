//file: internal/rule/validator.go
package rule

// Validate reports whether a rule is structurally complete. It is a
// yes/no gate and never returns a reason; callers that need one must
// re-derive it from the rule's shape. Checks short-circuit on the first
// failure:
//
//  1. rule_type present, conditions and actions present (a nil slice is
//     an absent key; an empty non-nil slice is present and empty)
//  2. rule_type is a supported value
//  3. every condition carries a field and an operator
//  4. every action carries a type
func Validate(rule *Rule) bool {
	if rule == nil {
		return false
	}

	if rule.RuleType == "" || rule.Conditions == nil || rule.Actions == nil {
		return false
	}

	if !SupportedRuleTypes[rule.RuleType] {
		return false
	}

	for _, condition := range rule.Conditions {
		if condition.Field == "" || condition.Operator == "" {
			return false
		}
	}

	for _, action := range rule.Actions {
		if action.Type == "" {
			return false
		}
	}

	return true
}
