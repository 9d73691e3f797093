package alerts_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/alerts"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

func testAlert() model.Alert {
	return model.Alert{
		ID:             "alert_1700000000000_deadbeef",
		ServiceID:      "svc-api",
		ServiceName:    "API",
		Type:           model.AlertThreshold,
		Severity:       model.SeverityHigh,
		Title:          "Cost threshold triggered for API",
		Message:        "daily spend of $250.00 is above the $100.00 threshold",
		CurrentValue:   250,
		ThresholdValue: 100,
		Currency:       "USD",
	}
}

func TestWebhookSend(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "")
	require.NoError(t, n.Send(context.Background(), testAlert()))

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "Cloud-Cost-Sentinel/1.0", gotHeader.Get("User-Agent"))
	assert.Empty(t, gotHeader.Get("X-Signature-256"))

	var payload struct {
		Text  string      `json:"text"`
		Alert model.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "Cost threshold triggered for API: daily spend of $250.00 is above the $100.00 threshold", payload.Text)
	assert.Equal(t, "alert_1700000000000_deadbeef", payload.Alert.ID)
	assert.Equal(t, model.SeverityHigh, payload.Alert.Severity)
}

func TestWebhookSignsWhenSecretSet(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "topsecret")
	require.NoError(t, n.Send(context.Background(), testAlert()))

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "")
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookUnreachable(t *testing.T) {
	n := alerts.NewWebhookNotifier("http://127.0.0.1:1/hook", "")
	assert.Error(t, n.Send(context.Background(), testAlert()))
}

func TestWebhookName(t *testing.T) {
	assert.Equal(t, "webhook", alerts.NewWebhookNotifier("http://example.invalid", "").Name())
}
