package alerts_test

import (
	"context"
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

type slackCapture struct {
	Channel     string `json:"channel"`
	Attachments []struct {
		Color  string `json:"color"`
		Title  string `json:"title"`
		Text   string `json:"text"`
		Fields []struct {
			Title string `json:"title"`
			Value string `json:"value"`
		} `json:"fields"`
	} `json:"attachments"`
}

func TestSlackSend(t *testing.T) {
	var got slackCapture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#cost-alerts")
	require.NoError(t, n.Send(context.Background(), testAlert()))

	assert.Equal(t, "#cost-alerts", got.Channel)
	require.Len(t, got.Attachments, 1)
	attachment := got.Attachments[0]
	assert.Equal(t, "Cost threshold triggered for API", attachment.Title)
	assert.Equal(t, "#ff0000", attachment.Color)

	fields := make(map[string]string, len(attachment.Fields))
	for _, f := range attachment.Fields {
		fields[f.Title] = f.Value
	}
	assert.Equal(t, "API", fields["Service"])
	assert.Equal(t, "threshold", fields["Type"])
	assert.Equal(t, "250.00 USD", fields["Current"])
}

func TestSlackSeverityColors(t *testing.T) {
	tests := []struct {
		severity model.Severity
		color    string
	}{
		{model.SeverityLow, "#36a64f"},
		{model.SeverityMedium, "#ff9900"},
		{model.SeverityHigh, "#ff0000"},
		{model.SeverityCritical, "#cc0000"},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			var got slackCapture
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				require.NoError(t, json.Unmarshal(body, &got))
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			alert := testAlert()
			alert.Severity = tt.severity

			n := alerts.NewSlackNotifier(server.URL, "")
			require.NoError(t, n.Send(context.Background(), alert))
			require.Len(t, got.Attachments, 1)
			assert.Equal(t, tt.color, got.Attachments[0].Color)
		})
	}
}

func TestSlackRejectsNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "")
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
