package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/alerts"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

// frozenNow keeps detector windows deterministic across the suite.
var frozenNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures every alert it is asked to deliver.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Alert
	err  error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(_ context.Context, alert model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, alert)
	return n.err
}

func (n *recordingNotifier) alerts() []model.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Alert(nil), n.sent...)
}

func newTestMonitor(t *testing.T, cfg Config, notifiers ...alerts.Notifier) (*Monitor, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := New(store, nil, notifiers, cfg, nil, logger)
	m.now = func() time.Time { return frozenNow }
	return m, store
}

func seedRecord(t *testing.T, store storage.Store, serviceID string, cost float64, date time.Time) {
	t.Helper()
	require.NoError(t, store.UpsertCostRecord(context.Background(), &model.CostRecord{
		ServiceID:   serviceID,
		Provider:    model.ProviderAWS,
		ServiceName: serviceID,
		Cost:        cost,
		Currency:    "USD",
		Period:      model.RecordDaily,
		Date:        date,
	}))
}

func seedThreshold(t *testing.T, store storage.Store, serviceID string, op model.ComparisonOperator, value float64, baselineDays int) {
	t.Helper()
	require.NoError(t, store.SetThreshold(context.Background(), &model.CostThreshold{
		ID:                 "thr-" + serviceID + "-" + string(op),
		ServiceID:          serviceID,
		MetricType:         model.MetricDaily,
		ThresholdValue:     value,
		ComparisonOperator: op,
		BaselinePeriodDays: baselineDays,
		Enabled:            true,
	}))
}

func listAlerts(t *testing.T, store storage.Store) []model.Alert {
	t.Helper()
	out, err := store.ListAlerts(context.Background(), model.AlertFilter{})
	require.NoError(t, err)
	return out
}

func TestThresholdGreaterThan(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))

	created := listAlerts(t, store)
	require.Len(t, created, 1)
	alert := created[0]
	assert.Equal(t, model.AlertThreshold, alert.Type)
	assert.Equal(t, "svc-api", alert.ServiceID)
	assert.InDelta(t, 150, alert.CurrentValue, 1e-6)
	assert.InDelta(t, 100, alert.ThresholdValue, 1e-6)
	assert.Equal(t, "USD", alert.Currency)
	// 150 / 100 = 1.5x the rule value.
	assert.Equal(t, model.SeverityMedium, alert.Severity)
	assert.Regexp(t, regexp.MustCompile(`^alert_\d+_[0-9a-f]{8}$`), alert.ID)
}

func TestThresholdRequiresStrictExceedance(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 150, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestThresholdLessThan(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareLessThan, 50, 0)
	seedRecord(t, store, "svc-api", 10, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))

	created := listAlerts(t, store)
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Message, "below")
}

func TestThresholdPercentIncrease(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		want    int
	}{
		{"exactly at threshold does not trigger", 150, 0},
		{"above threshold triggers", 151, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestMonitor(t, DefaultConfig())
			ctx := context.Background()

			// 50% increase threshold against a 7-day-old baseline of 100.
			seedThreshold(t, store, "svc-api", model.ComparePercentIncrease, 50, 7)
			seedRecord(t, store, "svc-api", 100, frozenNow.Add(-7*24*time.Hour-2*time.Hour))
			seedRecord(t, store, "svc-api", tt.current, frozenNow.Add(-2*time.Hour))

			require.NoError(t, m.checkThresholds(ctx))
			assert.Len(t, listAlerts(t, store), tt.want)
		})
	}
}

func TestThresholdPercentIncreaseZeroBaseline(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	// No baseline spend at all: the increase is defined as zero, so even a
	// large current spend does not trigger.
	seedThreshold(t, store, "svc-api", model.ComparePercentIncrease, 50, 7)
	seedRecord(t, store, "svc-api", 10000, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestThresholdDedupSuppressesRepeat(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))
	require.NoError(t, m.checkThresholds(ctx))
	assert.Len(t, listAlerts(t, store), 1)
}

func TestThresholdDedupIgnoresResolvedAlerts(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))
	first := listAlerts(t, store)
	require.Len(t, first, 1)

	// A resolved alert no longer suppresses; the condition re-fires.
	require.NoError(t, m.ResolveAlert(ctx, first[0].ID))
	require.NoError(t, m.checkThresholds(ctx))
	assert.Len(t, listAlerts(t, store), 2)
}

func TestThresholdDedupWindowExpires(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	// An unresolved alert from 25 hours ago is outside the 24-hour window.
	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID:        "alert_old",
		ServiceID: "svc-api",
		Type:      model.AlertThreshold,
		Severity:  model.SeverityLow,
		CreatedAt: frozenNow.Add(-25 * time.Hour),
	}))

	require.NoError(t, m.checkThresholds(ctx))
	assert.Len(t, listAlerts(t, store), 2)
}

func TestBudgetWarningAndCritical(t *testing.T) {
	tests := []struct {
		name         string
		spend        float64
		wantTitle    string
		wantSeverity model.Severity
	}{
		{"warning band", 850, "Budget warning threshold reached", model.SeverityMedium},
		{"critical band", 1100, "Budget critically exceeded", model.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestMonitor(t, DefaultConfig())
			ctx := context.Background()

			require.NoError(t, store.SetBudget(ctx, &model.Budget{
				ID:         "bud-1",
				Name:       "API monthly",
				ServiceID:  "svc-api",
				Amount:     1000,
				Currency:   "USD",
				Period:     model.BudgetMonthly,
				Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
				Enabled:    true,
			}))
			seedRecord(t, store, "svc-api", tt.spend, frozenNow.AddDate(0, 0, -3))

			require.NoError(t, m.checkBudgets(ctx))

			created := listAlerts(t, store)
			require.Len(t, created, 1)
			alert := created[0]
			assert.Equal(t, model.AlertBudget, alert.Type)
			assert.Equal(t, tt.wantTitle, alert.Title)
			assert.Equal(t, tt.wantSeverity, alert.Severity)
			assert.Equal(t, "svc-api", alert.ServiceID)
			assert.Equal(t, "API monthly", alert.ServiceName)
			assert.InDelta(t, tt.spend, alert.CurrentValue, 1e-6)
			assert.InDelta(t, 1000, alert.ThresholdValue, 1e-6)
		})
	}
}

func TestBudgetUnderWarningStaysQuiet(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-1",
		Name:       "API monthly",
		ServiceID:  "svc-api",
		Amount:     1000,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))
	seedRecord(t, store, "svc-api", 500, frozenNow.AddDate(0, 0, -3))

	require.NoError(t, m.checkBudgets(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestBudgetIgnoresSpendOutsidePeriod(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-1",
		Name:       "API monthly",
		ServiceID:  "svc-api",
		Amount:     1000,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))
	// Last month's overspend is outside the current calendar window.
	seedRecord(t, store, "svc-api", 5000, frozenNow.AddDate(0, -1, 0))

	require.NoError(t, m.checkBudgets(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestBudgetExcludesNextPeriodBoundaryDay(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-1",
		Name:       "API monthly",
		ServiceID:  "svc-api",
		Amount:     100,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))

	// A daily record stamped midnight June 1 belongs to June's budget, not
	// May's, even though it sits exactly on the calendar boundary.
	seedRecord(t, store, "svc-api", 150, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, m.checkBudgets(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestBudgetTeamScope(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-api", DisplayName: "API", TeamID: "platform"}))
	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-db", DisplayName: "DB", TeamID: "platform"}))
	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-web", DisplayName: "Web", TeamID: "frontend"}))

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-team",
		Name:       "Platform monthly",
		TeamID:     "platform",
		Amount:     1000,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))

	seedRecord(t, store, "svc-api", 500, frozenNow.AddDate(0, 0, -3))
	seedRecord(t, store, "svc-db", 400, frozenNow.AddDate(0, 0, -2))
	// Other teams' spend must not count against this budget.
	seedRecord(t, store, "svc-web", 9000, frozenNow.AddDate(0, 0, -2))

	require.NoError(t, m.checkBudgets(ctx))

	created := listAlerts(t, store)
	require.Len(t, created, 1)
	assert.Equal(t, "platform", created[0].ServiceID)
	assert.InDelta(t, 900, created[0].CurrentValue, 1e-6)
	assert.Equal(t, model.SeverityMedium, created[0].Severity)
}

func TestBudgetTeamWithoutServicesStaysQuiet(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-team",
		Name:       "Ghost team",
		TeamID:     "ghost",
		Amount:     10,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))
	// Unrelated spend exists, but the team owns no services.
	seedRecord(t, store, "svc-api", 9000, frozenNow.AddDate(0, 0, -3))

	require.NoError(t, m.checkBudgets(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestBudgetRealertsEachCycleByDefault(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-1",
		Name:       "API monthly",
		ServiceID:  "svc-api",
		Amount:     100,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))
	seedRecord(t, store, "svc-api", 150, frozenNow.AddDate(0, 0, -3))

	require.NoError(t, m.checkBudgets(ctx))
	require.NoError(t, m.checkBudgets(ctx))
	assert.Len(t, listAlerts(t, store), 2)
}

func TestBudgetDedupWindowWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BudgetDedupWindow = 6 * time.Hour
	m, store := newTestMonitor(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{
		ID:         "bud-1",
		Name:       "API monthly",
		ServiceID:  "svc-api",
		Amount:     100,
		Currency:   "USD",
		Period:     model.BudgetMonthly,
		Thresholds: model.BudgetThresholds{Warning: 80, Critical: 100},
		Enabled:    true,
	}))
	seedRecord(t, store, "svc-api", 150, frozenNow.AddDate(0, 0, -3))

	require.NoError(t, m.checkBudgets(ctx))
	require.NoError(t, m.checkBudgets(ctx))
	assert.Len(t, listAlerts(t, store), 1)
}

func TestAnomalyFlagsSpike(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-api", DisplayName: "API"}))

	history := []float64{100, 105, 95, 102, 98, 103, 99}
	for i, cost := range history {
		seedRecord(t, store, "svc-api", cost, frozenNow.AddDate(0, 0, -(len(history)-i)))
	}
	seedRecord(t, store, "svc-api", 250, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkAnomalies(ctx))

	created := listAlerts(t, store)
	require.Len(t, created, 1)
	alert := created[0]
	assert.Equal(t, model.AlertAnomaly, alert.Type)
	assert.Equal(t, model.SeverityHigh, alert.Severity)
	assert.Equal(t, "svc-api", alert.ServiceID)
	assert.InDelta(t, 250, alert.CurrentValue, 1e-6)
}

func TestAnomalyNormalTailStaysQuiet(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-api", DisplayName: "API"}))

	history := []float64{100, 105, 95, 102, 98, 103, 99}
	for i, cost := range history {
		seedRecord(t, store, "svc-api", cost, frozenNow.AddDate(0, 0, -(len(history)-i)))
	}
	seedRecord(t, store, "svc-api", 104, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkAnomalies(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestAnomalyNeedsEnoughHistory(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.UpsertService(ctx, &model.Service{ID: "svc-api", DisplayName: "API"}))

	// Five days of history plus a wild spike: below the minimum of seven
	// points, so no judgment is made.
	for i, cost := range []float64{100, 105, 95, 102, 98} {
		seedRecord(t, store, "svc-api", cost, frozenNow.AddDate(0, 0, -(6 - i)))
	}
	seedRecord(t, store, "svc-api", 5000, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkAnomalies(ctx))
	assert.Empty(t, listAlerts(t, store))
}

func TestNotificationFailureDoesNotLoseAlert(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("webhook unreachable")}
	m, store := newTestMonitor(t, DefaultConfig(), failing)
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))

	assert.Len(t, listAlerts(t, store), 1)
	assert.Len(t, failing.alerts(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.NotificationFailures))
}

func TestNotifiersReceiveAlert(t *testing.T) {
	n := &recordingNotifier{}
	m, store := newTestMonitor(t, DefaultConfig(), n)
	ctx := context.Background()

	seedThreshold(t, store, "svc-api", model.CompareGreaterThan, 100, 0)
	seedRecord(t, store, "svc-api", 150, frozenNow.Add(-2*time.Hour))

	require.NoError(t, m.checkThresholds(ctx))

	sent := n.alerts()
	require.Len(t, sent, 1)
	assert.NotEmpty(t, sent[0].ID)
	assert.Equal(t, model.AlertThreshold, sent[0].Type)
}

func TestResolveAlert(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID:        "alert_1",
		ServiceID: "svc-api",
		Type:      model.AlertThreshold,
		Severity:  model.SeverityLow,
		CreatedAt: frozenNow.Add(-time.Hour),
	}))

	require.NoError(t, m.ResolveAlert(ctx, "alert_1"))

	active, err := m.GetActiveAlerts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResolveAlertPropagatesStoreError(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig())
	err := m.ResolveAlert(context.Background(), "no-such-alert")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetActiveAlertsNewestFirst(t *testing.T) {
	m, store := newTestMonitor(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID: "alert_old", ServiceID: "svc-api", Type: model.AlertThreshold,
		Severity: model.SeverityLow, CreatedAt: frozenNow.Add(-3 * time.Hour),
	}))
	require.NoError(t, store.CreateAlert(ctx, &model.Alert{
		ID: "alert_new", ServiceID: "svc-api", Type: model.AlertBudget,
		Severity: model.SeverityHigh, CreatedAt: frozenNow.Add(-time.Hour),
	}))

	active, err := m.GetActiveAlerts(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alert_new", active[0].ID)
	assert.Equal(t, "alert_old", active[1].ID)
}

func TestRunCycleCountsDetectorPasses(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig())
	m.RunCycle(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Cycles))
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	m, _ := newTestMonitor(t, cfg)

	m.Start()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.metrics.Cycles) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Restarting replaces the schedule rather than stacking a second one.
	m.Start()
	m.Stop()
	m.Stop()
}
