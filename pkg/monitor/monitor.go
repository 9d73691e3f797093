// Package monitor runs the alerting engine: a periodic cycle that evaluates
// threshold, budget, and anomaly detectors against stored cost data and
// manages the lifecycle of alerts from creation through resolution.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/alerts"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/cache"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

const alertCacheTTL = time.Hour

// Config controls the monitoring schedule and alert deduplication.
// A zero dedup window disables deduplication for that detector.
type Config struct {
	Interval             time.Duration
	ThresholdDedupWindow time.Duration
	BudgetDedupWindow    time.Duration
	AnomalyDedupWindow   time.Duration
}

// DefaultConfig mirrors the historical behavior: threshold alerts are
// deduplicated within 24 hours, budget and anomaly alerts are not.
func DefaultConfig() Config {
	return Config{
		Interval:             15 * time.Minute,
		ThresholdDedupWindow: 24 * time.Hour,
	}
}

// Monitor owns the alert entities: it is the only writer of alert rows.
// The cache holds disposable short-TTL copies for fast lookup.
type Monitor struct {
	store     storage.Store
	cache     cache.Cache
	notifiers []alerts.Notifier
	cfg       Config
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor. Construction does not start background work;
// the host calls Start explicitly. The cache may be nil.
func New(store storage.Store, c cache.Cache, notifiers []alerts.Notifier, cfg Config, metrics *Metrics, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Monitor{
		store:     store,
		cache:     c,
		notifiers: notifiers,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Start installs the recurring schedule. Calling Start while already
// running cancels the existing schedule first, so there is never more
// than one timer.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("monitor started", "interval", m.cfg.Interval)
}

// Stop cancels the schedule and waits for the in-flight cycle to finish.
// It is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates the three detectors concurrently. Each detector reads
// the store and writes distinct alert rows, so they need no coordination.
// A failing detector is logged and counted; it never stops the others or
// the schedule.
func (m *Monitor) RunCycle(ctx context.Context) {
	m.metrics.Cycles.Inc()

	detectors := []struct {
		name string
		run  func(context.Context) error
	}{
		{"threshold", m.checkThresholds},
		{"budget", m.checkBudgets},
		{"anomaly", m.checkAnomalies},
	}

	var wg sync.WaitGroup
	for _, d := range detectors {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				m.metrics.DetectorErrors.WithLabelValues(name).Inc()
				m.logger.Error("detector pass failed", "detector", name, "error", err)
			}
		}(d.name, d.run)
	}
	wg.Wait()
}

// ResolveAlert marks an alert resolved and drops its cache copy. This is a
// user-invoked path, so store failures surface to the caller.
func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	if err := m.store.UpdateAlertResolved(ctx, id, m.now().UTC()); err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, alertCacheKey(id)); err != nil {
			m.logger.Warn("drop cached alert failed", "alert", id, "error", err)
		}
	}
	return nil
}

// GetActiveAlerts returns unresolved alerts, newest first, optionally
// filtered by service.
func (m *Monitor) GetActiveAlerts(ctx context.Context, serviceID string) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, model.AlertFilter{
		ServiceID:  serviceID,
		Unresolved: true,
	})
}

// createAlert assigns an id, persists the alert, caches a TTL'd copy, and
// dispatches notifications. Persistence failure is the only error returned;
// cache and notification failures are logged and swallowed so an unreachable
// webhook never loses an alert.
func (m *Monitor) createAlert(ctx context.Context, alert *model.Alert) error {
	alert.ID = fmt.Sprintf("alert_%d_%s", m.now().UnixMilli(), uuid.NewString()[:8])
	alert.CreatedAt = m.now().UTC()

	if err := m.store.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}
	m.metrics.AlertsCreated.WithLabelValues(string(alert.Type)).Inc()
	m.logger.Warn("alert created",
		"alert", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"service", alert.ServiceID,
		"current", alert.CurrentValue,
		"threshold", alert.ThresholdValue,
	)

	if m.cache != nil {
		if err := m.cache.SetWithTTL(ctx, alertCacheKey(alert.ID), alert, alertCacheTTL); err != nil {
			m.logger.Warn("cache alert failed", "alert", alert.ID, "error", err)
		}
	}

	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, *alert); err != nil {
			m.metrics.NotificationFailures.Inc()
			m.logger.Error("send alert notification failed",
				"notifier", notifier.Name(),
				"alert", alert.ID,
				"error", err,
			)
		}
	}
	return nil
}

// shouldSuppress reports whether an unresolved alert of the same type for
// the same service already exists within the dedup window. Deduplication is
// eventual, not strict: overlapping cycles can produce a brief duplicate,
// and a store error here fails open.
func (m *Monitor) shouldSuppress(ctx context.Context, serviceID string, alertType model.AlertType, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	existing, err := m.store.FindUnresolvedAlert(ctx, serviceID, alertType, m.now().Add(-window))
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		m.logger.Warn("dedup lookup failed", "service", serviceID, "type", alertType, "error", err)
		return false
	}
	m.logger.Debug("duplicate alert suppressed",
		"service", serviceID,
		"type", alertType,
		"existing", existing.ID,
	)
	return true
}

// serviceNames maps service ids to display names for alert messages.
// A lookup failure degrades to ids, which is good enough for a title.
func (m *Monitor) serviceNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	services, err := m.store.ListServices(ctx)
	if err != nil {
		m.logger.Warn("list services failed", "error", err)
		return names
	}
	for _, svc := range services {
		names[svc.ID] = svc.DisplayName
	}
	return names
}

func alertCacheKey(id string) string { return "alert:" + id }
