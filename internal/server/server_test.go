package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/cloud-cost-sentinel/internal/server"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/aggregator"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/monitor"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

func newTestServer(t *testing.T) (http.Handler, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	registry := prometheus.NewRegistry()
	agg := aggregator.New(store, nil, logger)
	mon := monitor.New(store, nil, nil, monitor.DefaultConfig(), monitor.NewMetrics(registry), logger)

	return server.NewServer(agg, mon, registry, logger).Handler(), store
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCostSummary(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCostRecord(ctx, &model.CostRecord{
		ServiceID:   "svc-api",
		Provider:    model.ProviderAWS,
		ServiceName: "API",
		Cost:        120,
		Currency:    "USD",
		Period:      model.RecordDaily,
		Date:        time.Now().UTC().AddDate(0, 0, -2),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary model.CostSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.InDelta(t, 120, summary.TotalCost, 1e-6)
	require.Len(t, summary.TopServices, 1)
	assert.Equal(t, "svc-api", summary.TopServices[0].ServiceID)
}

func TestCostSummaryExplicitRange(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCostRecord(ctx, &model.CostRecord{
		ServiceID:   "svc-api",
		Provider:    model.ProviderAWS,
		ServiceName: "API",
		Cost:        75,
		Currency:    "USD",
		Period:      model.RecordDaily,
		Date:        time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/costs/summary?start=2024-04-01&end=2024-04-30", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary model.CostSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.InDelta(t, 75, summary.TotalCost, 1e-6)
}

func TestMalformedDateReturns400(t *testing.T) {
	handler, _ := newTestServer(t)

	for _, target := range []string{
		"/api/v1/costs/summary?start=yesterday",
		"/api/v1/costs/aggregated?end=2024-13-99",
		"/api/v1/costs/forecasts?start=05/01/2024",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAggregatedCostsServiceFilter(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	for _, svc := range []string{"svc-api", "svc-db"} {
		require.NoError(t, store.UpsertCostRecord(ctx, &model.CostRecord{
			ServiceID:   svc,
			Provider:    model.ProviderAWS,
			ServiceName: svc,
			Cost:        50,
			Currency:    "USD",
			Period:      model.RecordDaily,
			Date:        time.Now().UTC().AddDate(0, 0, -1),
		}))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/costs/aggregated?services=svc-db", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var costs []model.AggregatedServiceCost
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &costs))
	require.Len(t, costs, 1)
	assert.Equal(t, "svc-db", costs[0].ServiceID)
}

func TestListAlerts(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID:        "alert_1",
		ServiceID: "svc-api",
		Type:      model.AlertThreshold,
		Severity:  model.SeverityMedium,
		Title:     "Cost threshold triggered for API",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert_1", alerts[0].ID)
}

func TestResolveAlert(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID:        "alert_1",
		ServiceID: "svc-api",
		Type:      model.AlertThreshold,
		Severity:  model.SeverityMedium,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert_1/resolve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// The alert leaves the active list.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	assert.Empty(t, alerts)
}

func TestResolveMissingAlertReturns404(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/nope/resolve", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
