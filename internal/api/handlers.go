package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lily/internal/metrics"
	"lily/internal/outbound"
	"lily/internal/rule"
	"lily/internal/storage"
)

// handleMonteCarloWebhook ingests one webhook delivery. The signature
// travels in the X-Monte-Carlo-Signature header and is checked before
// anything else.
func (s *Server) handleMonteCarloWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Monte-Carlo-Signature")
	if signature == "" {
		respondError(w, http.StatusUnauthorized, "Missing signature")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := s.inbound.ProcessWebhook(r.Context(), body, signature)
	if err != nil {
		var vErr *rule.ValidationError
		switch {
		case errors.As(err, &vErr) && vErr.Field == "signature":
			respondError(w, http.StatusUnauthorized, "Invalid signature")
		case errors.As(err, &vErr):
			respondError(w, http.StatusBadRequest, vErr.Error())
		case isMalformedJSON(err):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")

	record, err := s.store.Get(r.Context(), eventID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.Query(r.Context(), storage.Filter{
		EventType: q.Get("event_type"),
		Source:    q.Get("source"),
		TenantID:  q.Get("tenant_id"),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
		Limit:     limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*storage.Record{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

// handleCreateRule transforms a raw rule and stores the canonical form.
// Publishing belongs to the outbound queue path; creation over HTTP only
// persists and reports the downstream projections.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Process(raw)
	if err != nil {
		s.respondRuleError(w, err)
		return
	}

	payload, err := result.Rule.AsMap()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	record := &storage.Record{
		EventID:   result.Rule.RuleID,
		EventType: outbound.RuleEventType,
		Timestamp: result.Rule.Metadata.CreatedAt,
		Source:    rule.MetadataSource,
		Payload:   payload,
	}
	if _, err := s.store.Put(r.Context(), record); err != nil {
		s.stats.IncStoreErrors()
		s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("put", "error") })
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.stats.RecordStored()
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("put", "success") })

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"rule_id":          result.Rule.RuleID,
		"status":           "created",
		"downstream_rules": result.Downstream,
	})
}

// handleUpdateRule shallow-merges the incoming fields over the stored
// payload and re-runs the full pipeline on the merged input
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "rule_id")

	var incoming map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Update(r.Context(), ruleID, incoming)
	if errors.Is(err, storage.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		s.respondRuleError(w, err)
		return
	}

	payload, err := result.Rule.AsMap()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, err := s.store.Update(r.Context(), ruleID, map[string]interface{}{"payload": payload})
	if err != nil {
		s.stats.IncStoreErrors()
		s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("update", "error") })
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !updated {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("update", "success") })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rule_id":          ruleID,
		"status":           "updated",
		"downstream_rules": result.Downstream,
	})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "rule_id")

	deleted, err := s.store.Delete(r.Context(), ruleID)
	if err != nil {
		s.stats.IncStoreErrors()
		s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("delete", "error") })
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}
	s.stats.RecordDeleted()
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncStoreOperations("delete", "success") })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rule_id": ruleID,
		"status":  "deleted",
	})
}

// handleQueryRules lists stored security rules, filtered by the rule
// fields carried in their payloads
func (s *Server) handleQueryRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.Query(r.Context(), storage.Filter{
		EventType: outbound.RuleEventType,
		Source:    rule.MetadataSource,
		Limit:     limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ruleType := q.Get("rule_type")
	assetID := q.Get("asset_id")
	assetType := q.Get("asset_type")

	rules := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		if ruleType != "" && payloadField(record.Payload, "rule_type") != ruleType {
			continue
		}
		if assetID != "" && payloadField(record.Payload, "asset_id") != assetID {
			continue
		}
		if assetType != "" && payloadField(record.Payload, "asset_type") != assetType {
			continue
		}
		rules = append(rules, record.Payload)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondRuleError maps transformation failures onto API statuses
func (s *Server) respondRuleError(w http.ResponseWriter, err error) {
	var vErr *rule.ValidationError
	var iErr *rule.InvalidRuleError
	switch {
	case errors.As(err, &vErr):
		respondError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &iErr):
		respondError(w, http.StatusBadRequest, iErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultQueryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if limit < 1 || limit > maxQueryLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxQueryLimit)
	}
	return limit, nil
}

func payloadField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func isMalformedJSON(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
