package montecarlo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lily/config"
	"lily/internal/logger"
	"lily/internal/rule"
)

// Source identifies Monte Carlo as the origin of ingested events
const Source = "monte_carlo"

// DefaultBaseURL is the production Monte Carlo API endpoint
const DefaultBaseURL = "https://api.getmontecarlo.com/v1"

// Event is a webhook event reduced to the fields the pipeline needs
type Event struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
}

// Client talks to the Monte Carlo incident API and verifies webhook
// deliveries
type Client struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	logger        *logger.Logger
}

// NewClient creates a Monte Carlo API client
func NewClient(cfg *config.MonteCarloConfig, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        log,
	}
}

// VerifySignature checks the HMAC-SHA256 hex signature of a raw webhook
// body. Verification is skipped when no webhook secret is configured.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// ParseWebhookEvent validates a decoded webhook body and reshapes it into
// an Event
func (c *Client) ParseWebhookEvent(payload map[string]interface{}) (*Event, error) {
	for _, field := range []string{"id", "type", "timestamp", "data"} {
		if _, ok := payload[field]; !ok {
			return nil, &rule.ValidationError{Field: field, Message: "missing required field"}
		}
	}

	id, ok := payload["id"].(string)
	if !ok {
		return nil, &rule.ValidationError{Field: "id", Message: "must be a string"}
	}
	eventType, ok := payload["type"].(string)
	if !ok {
		return nil, &rule.ValidationError{Field: "type", Message: "must be a string"}
	}
	timestamp, ok := payload["timestamp"].(string)
	if !ok {
		return nil, &rule.ValidationError{Field: "timestamp", Message: "must be a string"}
	}
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return nil, &rule.ValidationError{Field: "data", Message: "must be an object"}
	}

	return &Event{
		EventID:   id,
		EventType: eventType,
		Timestamp: timestamp,
		Source:    Source,
		Payload:   data,
	}, nil
}

// GetIncidentDetails fetches detailed information about an incident
func (c *Client) GetIncidentDetails(ctx context.Context, incidentID string) (map[string]interface{}, error) {
	return c.get(ctx, fmt.Sprintf("%s/incidents/%s", c.baseURL, incidentID))
}

// GetAffectedAssets fetches the assets affected by an incident
func (c *Client) GetAffectedAssets(ctx context.Context, incidentID string) (map[string]interface{}, error) {
	return c.get(ctx, fmt.Sprintf("%s/incidents/%s/assets", c.baseURL, incidentID))
}

func (c *Client) get(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("monte carlo API returned HTTP %d for %s", resp.StatusCode, url)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body, nil
}

// EnrichIncident combines an incident with its details, affected assets
// and an enrichment marker. The incident must carry the id to look up.
func (c *Client) EnrichIncident(ctx context.Context, incident map[string]interface{}) (map[string]interface{}, error) {
	incidentID, ok := incident["id"].(string)
	if !ok || incidentID == "" {
		return nil, &rule.ValidationError{Field: "id", Message: "incident has no id to enrich by"}
	}

	details, err := c.GetIncidentDetails(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incident details: %w", err)
	}
	assets, err := c.GetAffectedAssets(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch affected assets: %w", err)
	}

	enriched := make(map[string]interface{}, len(incident)+3)
	for k, v := range incident {
		enriched[k] = v
	}
	enriched["details"] = details
	enriched["affected_assets"] = assets
	enriched["metadata"] = map[string]interface{}{
		"source":               Source,
		"enrichment_timestamp": details["updated_at"],
	}

	return enriched, nil
}
