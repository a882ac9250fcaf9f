//file: internal/rule/errors.go
package rule

import "fmt"

// ValidationError reports raw rule input that is malformed or incomplete.
// Field names the offending element, e.g. "rule_type" or "conditions[2]".
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidRuleError reports a rule that parsed but failed structural
// validation.
type InvalidRuleError struct {
	RuleID string
}

// Error implements the error interface
func (e *InvalidRuleError) Error() string {
	if e.RuleID == "" {
		return "invalid security rule"
	}
	return fmt.Sprintf("invalid security rule: %s", e.RuleID)
}

// UnsupportedTargetError reports a downstream target name with no
// registered mapping.
type UnsupportedTargetError struct {
	Target string
}

// Error implements the error interface
func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("unsupported target system: %s", e.Target)
}
