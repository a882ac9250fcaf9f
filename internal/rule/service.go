//file: internal/rule/service.go
package rule

import (
	"context"

	"lily/internal/logger"
	"lily/internal/storage"
)

// Service orchestrates the transform, validate and format stages. It
// depends on the metadata store only for the update merge path; storing
// results and publishing events belong to the callers.
type Service struct {
	transformer *Transformer
	formatter   *Formatter
	store       storage.MetadataStore
	logger      *logger.Logger
}

// Result carries the canonical rule and its downstream projections.
// TargetErrors records per-target formatting failures by target name;
// a failed target never appears in Downstream.
type Result struct {
	Rule         *Rule
	Downstream   map[string]*Policy
	TargetErrors map[string]string
}

// NewService creates a transformation service
func NewService(store storage.MetadataStore, log *logger.Logger) *Service {
	return &Service{
		transformer: NewTransformer(),
		formatter:   NewFormatter(),
		store:       store,
		logger:      log,
	}
}

// Formatter exposes the target registry so callers can add mappings
func (s *Service) Formatter() *Formatter {
	return s.formatter
}

// Process runs the full pipeline on raw rule input: transform, validate,
// then format for each requested target (DefaultTargets when none are
// given). A single target's mapping failure is recorded in the result
// and does not fail the other targets or the call.
func (s *Service) Process(raw map[string]interface{}, targets ...string) (*Result, error) {
	r, err := s.transformer.Transform(raw)
	if err != nil {
		return nil, err
	}

	if !Validate(r) {
		return nil, &InvalidRuleError{RuleID: r.RuleID}
	}

	return s.fanOut(r, targets), nil
}

// Update re-processes an existing rule: the stored payload is shallowly
// merged with the incoming fields (incoming keys win, whole-value
// replacement per key) and the merged input runs through the full
// pipeline. The stored creation time is preserved; only updated_at moves.
func (s *Service) Update(ctx context.Context, ruleID string, incoming map[string]interface{}, targets ...string) (*Result, error) {
	rec, err := s.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(rec.Payload)+len(incoming))
	for k, v := range rec.Payload {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}

	r, err := s.transformer.Transform(merged)
	if err != nil {
		return nil, err
	}

	if created := payloadCreatedAt(rec.Payload); created != "" {
		r.Metadata.CreatedAt = created
	}

	if !Validate(r) {
		return nil, &InvalidRuleError{RuleID: r.RuleID}
	}

	return s.fanOut(r, targets), nil
}

func (s *Service) fanOut(r *Rule, targets []string) *Result {
	if len(targets) == 0 {
		targets = DefaultTargets()
	}

	result := &Result{
		Rule:         r,
		Downstream:   make(map[string]*Policy, len(targets)),
		TargetErrors: make(map[string]string),
	}

	for _, target := range targets {
		policy, err := s.formatter.Format(r, target)
		if err != nil {
			result.TargetErrors[target] = err.Error()
			s.logger.Error("failed to format rule for target",
				"ruleId", r.RuleID,
				"target", target,
				"error", err)
			continue
		}
		result.Downstream[target] = policy
	}

	return result
}

func payloadCreatedAt(payload map[string]interface{}) string {
	md, ok := payload["metadata"].(map[string]interface{})
	if !ok {
		return ""
	}
	created, _ := md["created_at"].(string)
	return created
}
