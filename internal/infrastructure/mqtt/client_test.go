package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// ─── Topic Builders ──────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dispatch", topics.ThermostatDispatch("main-floor"), "hearth/thermostat/main-floor/dispatch"},
		{"state", topics.ThermostatState("loft"), "hearth/thermostat/loft/state"},
		{"adjust", topics.ThermostatAdjust("loft"), "hearth/thermostat/loft/adjust"},
		{"system status", topics.SystemStatus(), "hearth/system/status"},
		{"all adjusts", topics.AllThermostatAdjusts(), "hearth/thermostat/+/adjust"},
		{"all dispatches", topics.AllThermostatDispatches(), "hearth/thermostat/+/dispatch"},
		{"all states", topics.AllThermostatStates(), "hearth/thermostat/+/state"},
		{"everything", topics.AllTopics(), "hearth/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// ─── Status Payloads ─────────────────────────────────────────────────────────

func TestStatusPayloads(t *testing.T) {
	type status struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason"`
		Timestamp string `json:"timestamp"`
	}

	var online status
	if err := json.Unmarshal([]byte(buildOnlinePayload("thermod-1")), &online); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if online.Status != "online" || online.ClientID != "thermod-1" {
		t.Errorf("online payload = %+v", online)
	}

	var offline status
	if err := json.Unmarshal([]byte(buildOfflinePayload("thermod-1")), &offline); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", offline)
	}
}

// ─── Validation ──────────────────────────────────────────────────────────────

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("hearth/system/status", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}

	huge := bytes.Repeat([]byte("a"), maxPayloadSize+1)
	err := c.Publish("hearth/system/status", huge, 1, false)
	if !errors.Is(err, ErrPublishFailed) || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed with size detail", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("hearth/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic unsubscribe error = %v, want ErrInvalidTopic", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("hearth/thermostat/+/dispatch") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}
