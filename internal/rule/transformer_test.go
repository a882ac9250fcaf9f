//file: internal/rule/transformer_test.go
package rule

import (
	"strings"
	"testing"
)

func TestTransformRequiredRuleType(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		wantErr  bool
		errField string
	}{
		{
			name: "Valid PII rule",
			raw: map[string]interface{}{
				"rule_type": "PII",
			},
			wantErr: false,
		},
		{
			name: "Valid GDPR rule",
			raw: map[string]interface{}{
				"rule_type": "GDPR",
			},
			wantErr: false,
		},
		{
			name: "Valid custom rule",
			raw: map[string]interface{}{
				"rule_type": "CUSTOM",
			},
			wantErr: false,
		},
		{
			name:     "Missing rule type",
			raw:      map[string]interface{}{"asset_id": "a1"},
			wantErr:  true,
			errField: "rule_type",
		},
		{
			name: "Unsupported rule type",
			raw: map[string]interface{}{
				"rule_type": "HIPAA",
			},
			wantErr:  true,
			errField: "rule_type",
		},
		{
			name: "Non-string rule type",
			raw: map[string]interface{}{
				"rule_type": 42,
			},
			wantErr:  true,
			errField: "rule_type",
		},
	}

	transformer := NewTransformer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transformer.Transform(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("Transform() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				validErr, ok := err.(*ValidationError)
				if !ok {
					t.Errorf("Transform() error is not ValidationError")
					return
				}
				if validErr.Field != tt.errField {
					t.Errorf("Transform() error field = %v, want %v", validErr.Field, tt.errField)
				}
			}
		})
	}
}

func TestTransformDefaults(t *testing.T) {
	transformer := NewTransformer()

	rule, err := transformer.Transform(map[string]interface{}{
		"rule_type": "PII",
	})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if !strings.HasPrefix(rule.RuleID, "rule_") {
		t.Errorf("generated rule id = %q, want rule_ prefix", rule.RuleID)
	}
	if rule.AssetID != nil {
		t.Errorf("asset id = %v, want nil", *rule.AssetID)
	}
	if rule.Conditions == nil || len(rule.Conditions) != 0 {
		t.Errorf("conditions = %v, want empty non-nil slice", rule.Conditions)
	}
	if rule.Actions == nil || len(rule.Actions) != 0 {
		t.Errorf("actions = %v, want empty non-nil slice", rule.Actions)
	}
	if rule.Metadata.Source != "atlan" {
		t.Errorf("metadata source = %q, want atlan", rule.Metadata.Source)
	}
	if rule.Metadata.Version != "1.0" {
		t.Errorf("metadata version = %q, want 1.0", rule.Metadata.Version)
	}
	if rule.Metadata.CreatedAt == "" || rule.Metadata.UpdatedAt == "" {
		t.Error("metadata timestamps not set")
	}
}

func TestTransformKeepsCallerRuleID(t *testing.T) {
	transformer := NewTransformer()

	rule, err := transformer.Transform(map[string]interface{}{
		"rule_type": "GDPR",
		"rule_id":   "rule_custom_7",
	})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if rule.RuleID != "rule_custom_7" {
		t.Errorf("rule id = %q, want rule_custom_7", rule.RuleID)
	}
}

func TestTransformGeneratedIDsAreUnique(t *testing.T) {
	transformer := NewTransformer()
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		rule, err := transformer.Transform(map[string]interface{}{
			"rule_type": "PII",
		})
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		if seen[rule.RuleID] {
			t.Fatalf("duplicate generated rule id %q", rule.RuleID)
		}
		seen[rule.RuleID] = true
	}
}

func TestTransformConditions(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		wantErr  bool
		errField string
		check    func(t *testing.T, rule *Rule)
	}{
		{
			name: "Condition defaults applied",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field":    "email",
						"operator": "contains",
						"value":    "@",
					},
				},
			},
			check: func(t *testing.T, rule *Rule) {
				c := rule.Conditions[0]
				if c.Severity != "medium" {
					t.Errorf("severity = %q, want medium", c.Severity)
				}
				if c.Description != "" {
					t.Errorf("description = %q, want empty", c.Description)
				}
			},
		},
		{
			name: "Explicit severity and description preserved",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field":       "ssn",
						"operator":    "matches",
						"value":       `\d{3}-\d{2}-\d{4}`,
						"severity":    "high",
						"description": "US social security numbers",
					},
				},
			},
			check: func(t *testing.T, rule *Rule) {
				c := rule.Conditions[0]
				if c.Severity != "high" {
					t.Errorf("severity = %q, want high", c.Severity)
				}
				if c.Description != "US social security numbers" {
					t.Errorf("description = %q", c.Description)
				}
			},
		},
		{
			name: "Missing value key",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field":    "email",
						"operator": "contains",
					},
				},
			},
			wantErr:  true,
			errField: "conditions[0]",
		},
		{
			name: "Missing several keys names them all",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field": "email",
					},
				},
			},
			wantErr:  true,
			errField: "conditions[0]",
		},
		{
			name: "Second condition invalid",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field":    "email",
						"operator": "contains",
						"value":    "@",
					},
					map[string]interface{}{
						"operator": "eq",
						"value":    1,
					},
				},
			},
			wantErr:  true,
			errField: "conditions[1]",
		},
		{
			name: "Conditions not a list",
			raw: map[string]interface{}{
				"rule_type":  "PII",
				"conditions": "email contains @",
			},
			wantErr:  true,
			errField: "conditions",
		},
		{
			name: "Null value is allowed when the key is present",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"conditions": []interface{}{
					map[string]interface{}{
						"field":    "owner",
						"operator": "exists",
						"value":    nil,
					},
				},
			},
			check: func(t *testing.T, rule *Rule) {
				if rule.Conditions[0].Value != nil {
					t.Errorf("value = %v, want nil", rule.Conditions[0].Value)
				}
			},
		},
	}

	transformer := NewTransformer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := transformer.Transform(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("Transform() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				validErr, ok := err.(*ValidationError)
				if !ok {
					t.Errorf("Transform() error is not ValidationError")
					return
				}
				if validErr.Field != tt.errField {
					t.Errorf("Transform() error field = %v, want %v", validErr.Field, tt.errField)
				}
				return
			}
			if tt.check != nil {
				tt.check(t, rule)
			}
		})
	}
}

func TestTransformActions(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		wantErr  bool
		errField string
		check    func(t *testing.T, rule *Rule)
	}{
		{
			name: "Action defaults applied",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"actions": []interface{}{
					map[string]interface{}{
						"type": "mask",
					},
				},
			},
			check: func(t *testing.T, rule *Rule) {
				a := rule.Actions[0]
				if a.Priority != "normal" {
					t.Errorf("priority = %q, want normal", a.Priority)
				}
				if a.Parameters == nil || len(a.Parameters) != 0 {
					t.Errorf("parameters = %v, want empty non-nil map", a.Parameters)
				}
			},
		},
		{
			name: "Explicit parameters and priority preserved",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"actions": []interface{}{
					map[string]interface{}{
						"type":       "mask",
						"priority":   "high",
						"parameters": map[string]interface{}{"mask_type": "email"},
					},
				},
			},
			check: func(t *testing.T, rule *Rule) {
				a := rule.Actions[0]
				if a.Priority != "high" {
					t.Errorf("priority = %q, want high", a.Priority)
				}
				if a.Parameters["mask_type"] != "email" {
					t.Errorf("parameters = %v", a.Parameters)
				}
			},
		},
		{
			name: "Missing type",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"actions": []interface{}{
					map[string]interface{}{
						"parameters": map[string]interface{}{},
					},
				},
			},
			wantErr:  true,
			errField: "actions[0]",
		},
		{
			name: "Actions not a list",
			raw: map[string]interface{}{
				"rule_type": "PII",
				"actions":   map[string]interface{}{"type": "mask"},
			},
			wantErr:  true,
			errField: "actions",
		},
	}

	transformer := NewTransformer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := transformer.Transform(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("Transform() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				validErr, ok := err.(*ValidationError)
				if !ok {
					t.Errorf("Transform() error is not ValidationError")
					return
				}
				if validErr.Field != tt.errField {
					t.Errorf("Transform() error field = %v, want %v", validErr.Field, tt.errField)
				}
				return
			}
			if tt.check != nil {
				tt.check(t, rule)
			}
		})
	}
}

func TestTransformDefaultsAreIdempotent(t *testing.T) {
	raw := map[string]interface{}{
		"rule_type": "PII",
		"conditions": []interface{}{
			map[string]interface{}{
				"field":    "email",
				"operator": "contains",
				"value":    "@",
			},
		},
		"actions": []interface{}{
			map[string]interface{}{
				"type": "mask",
			},
		},
	}

	transformer := NewTransformer()
	first, err := transformer.Transform(raw)
	if err != nil {
		t.Fatalf("first Transform() error = %v", err)
	}
	second, err := transformer.Transform(raw)
	if err != nil {
		t.Fatalf("second Transform() error = %v", err)
	}

	if first.Conditions[0].Severity != second.Conditions[0].Severity {
		t.Errorf("severity differs between transforms: %q vs %q",
			first.Conditions[0].Severity, second.Conditions[0].Severity)
	}
	if first.Actions[0].Priority != second.Actions[0].Priority {
		t.Errorf("priority differs between transforms: %q vs %q",
			first.Actions[0].Priority, second.Actions[0].Priority)
	}
}

func TestTransformPlacementPassthrough(t *testing.T) {
	transformer := NewTransformer()

	rule, err := transformer.Transform(map[string]interface{}{
		"rule_type":  "CUSTOM",
		"asset_id":   "asset_42",
		"asset_type": "table",
		"database":   "ANALYTICS",
		"schema":     "SALES",
		"table":      "customers",
	})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if rule.AssetID == nil || *rule.AssetID != "asset_42" {
		t.Errorf("asset id = %v, want asset_42", rule.AssetID)
	}
	if rule.AssetType == nil || *rule.AssetType != "table" {
		t.Errorf("asset type = %v, want table", rule.AssetType)
	}
	if rule.Database != "ANALYTICS" || rule.Schema != "SALES" || rule.Table != "customers" {
		t.Errorf("placement = %q/%q/%q", rule.Database, rule.Schema, rule.Table)
	}
}
