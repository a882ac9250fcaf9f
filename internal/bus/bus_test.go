package bus

import (
	"encoding/json"
	"testing"
)

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name        string
		event       Event
		wantSubject string
		wantErr     bool
	}{
		{
			name: "complete event",
			event: Event{
				Source:     "atlan.lily",
				DetailType: "security_rule",
				Detail:     json.RawMessage(`{"rule_id":"rule_1"}`),
				Bus:        "atlan-lily-bus",
			},
			wantSubject: "atlan-lily-bus.security_rule",
		},
		{
			name: "missing bus",
			event: Event{
				Source:     "atlan.lily",
				DetailType: "security_rule",
				Detail:     json.RawMessage(`{}`),
			},
			wantErr: true,
		},
		{
			name: "missing detail type",
			event: Event{
				Source: "atlan.lily",
				Detail: json.RawMessage(`{}`),
				Bus:    "atlan-lily-bus",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, payload, err := EncodeEvent(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			if subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", subject, tt.wantSubject)
			}

			var wire map[string]json.RawMessage
			if err := json.Unmarshal(payload, &wire); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			for _, key := range []string{"source", "detail_type", "detail"} {
				if _, ok := wire[key]; !ok {
					t.Errorf("wire payload missing %q key", key)
				}
			}
			if _, ok := wire["Bus"]; ok {
				t.Error("bus name must not leak into the wire payload")
			}
			if string(wire["detail"]) != `{"rule_id":"rule_1"}` {
				t.Errorf("detail = %s, want raw embedding", wire["detail"])
			}
		})
	}
}

func TestDecodeEventRoundTrip(t *testing.T) {
	original := Event{
		Source:     "monte_carlo",
		DetailType: "incident",
		Detail:     json.RawMessage(`{"id":"inc-1","severity":"high"}`),
		Bus:        "atlan-lily-bus",
	}

	_, payload, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	decoded, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if decoded.Source != original.Source {
		t.Errorf("source = %q, want %q", decoded.Source, original.Source)
	}
	if decoded.DetailType != original.DetailType {
		t.Errorf("detail type = %q, want %q", decoded.DetailType, original.DetailType)
	}
	if string(decoded.Detail) != string(original.Detail) {
		t.Errorf("detail = %s, want %s", decoded.Detail, original.Detail)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte("{not json")); err == nil {
		t.Error("DecodeEvent() expected error for malformed payload")
	}
}

func TestSubjectTopicMapping(t *testing.T) {
	tests := []struct {
		subject string
		topic   string
	}{
		{"atlan-lily-bus.security_rule", "atlan-lily-bus/security_rule"},
		{"lily.inbound.events", "lily/inbound/events"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := ToMQTTTopic(tt.subject); got != tt.topic {
			t.Errorf("ToMQTTTopic(%q) = %q, want %q", tt.subject, got, tt.topic)
		}
		if got := FromMQTTTopic(tt.topic); got != tt.subject {
			t.Errorf("FromMQTTTopic(%q) = %q, want %q", tt.topic, got, tt.subject)
		}
	}
}
