//file: internal/rule/validator_test.go
package rule

import "testing"

func TestValidate(t *testing.T) {
	assetID := "a1"

	tests := []struct {
		name string
		rule *Rule
		want bool
	}{
		{
			name: "Minimal complete rule",
			rule: &Rule{
				RuleType:   "PII",
				AssetID:    &assetID,
				Conditions: []Condition{},
				Actions:    []Action{},
			},
			want: true,
		},
		{
			name: "Complete rule with conditions and actions",
			rule: &Rule{
				RuleID:   "rule_1",
				RuleType: "GDPR",
				Conditions: []Condition{
					{Field: "email", Operator: "contains", Value: "@"},
				},
				Actions: []Action{
					{Type: "mask", Parameters: map[string]interface{}{}},
				},
			},
			want: true,
		},
		{
			name: "Nil rule",
			rule: nil,
			want: false,
		},
		{
			name: "Missing rule type",
			rule: &Rule{
				Conditions: []Condition{},
				Actions:    []Action{},
			},
			want: false,
		},
		{
			name: "Unsupported rule type",
			rule: &Rule{
				RuleType:   "HIPAA",
				Conditions: []Condition{},
				Actions:    []Action{},
			},
			want: false,
		},
		{
			name: "Missing actions",
			rule: &Rule{
				RuleType:   "PII",
				Conditions: []Condition{},
			},
			want: false,
		},
		{
			name: "Missing conditions",
			rule: &Rule{
				RuleType: "PII",
				Actions:  []Action{},
			},
			want: false,
		},
		{
			name: "Condition without field",
			rule: &Rule{
				RuleType: "PII",
				Conditions: []Condition{
					{Operator: "eq", Value: 1},
				},
				Actions: []Action{},
			},
			want: false,
		},
		{
			name: "Condition without operator",
			rule: &Rule{
				RuleType: "PII",
				Conditions: []Condition{
					{Field: "email", Value: "@"},
				},
				Actions: []Action{},
			},
			want: false,
		},
		{
			name: "Condition with null value still validates",
			rule: &Rule{
				RuleType: "PII",
				Conditions: []Condition{
					{Field: "owner", Operator: "exists", Value: nil},
				},
				Actions: []Action{},
			},
			want: true,
		},
		{
			name: "Action without type",
			rule: &Rule{
				RuleType:   "PII",
				Conditions: []Condition{},
				Actions: []Action{
					{Parameters: map[string]interface{}{}},
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.rule); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateAcceptsEveryTransformOutput(t *testing.T) {
	transformer := NewTransformer()

	raws := []map[string]interface{}{
		{"rule_type": "PII"},
		{"rule_type": "GDPR", "asset_id": "a1"},
		{
			"rule_type": "CUSTOM",
			"conditions": []interface{}{
				map[string]interface{}{"field": "tag", "operator": "eq", "value": "restricted"},
			},
			"actions": []interface{}{
				map[string]interface{}{"type": "notify"},
			},
		},
	}

	for _, raw := range raws {
		rule, err := transformer.Transform(raw)
		if err != nil {
			t.Fatalf("Transform(%v) error = %v", raw, err)
		}
		if !Validate(rule) {
			t.Errorf("Validate() = false for transformed rule %v", raw)
		}
	}
}
