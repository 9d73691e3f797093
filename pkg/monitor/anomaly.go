package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

const (
	anomalyLookbackDays = 30
	anomalyMinPoints    = 7
	anomalySigmas       = 2.0
	anomalyMeanFactor   = 1.5
)

// checkAnomalies compares each service's most recent daily cost against its
// trailing 30-day distribution. The mean-multiple condition guards against
// false positives when the standard deviation is tiny.
func (m *Monitor) checkAnomalies(ctx context.Context) error {
	services, err := m.store.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	for _, svc := range services {
		if err := m.evaluateAnomaly(ctx, svc); err != nil {
			m.logger.Error("anomaly evaluation failed", "service", svc.ID, "error", err)
		}
	}
	return nil
}

func (m *Monitor) evaluateAnomaly(ctx context.Context, svc model.Service) error {
	now := m.now().UTC()
	records, err := m.store.QueryCostRecords(ctx, model.RecordFilter{
		ServiceID: svc.ID,
		Range: model.DateRange{
			Start: now.AddDate(0, 0, -anomalyLookbackDays),
			End:   now,
		},
	})
	if err != nil {
		return fmt.Errorf("load daily costs: %w", err)
	}

	series := dailyTotals(records)
	if len(series) < anomalyMinPoints {
		return nil
	}

	mean, stddev := meanStddev(series)
	last := series[len(series)-1]
	limit := mean + anomalySigmas*stddev

	if last <= limit || last <= mean*anomalyMeanFactor {
		return nil
	}

	if m.shouldSuppress(ctx, svc.ID, model.AlertAnomaly, m.cfg.AnomalyDedupWindow) {
		return nil
	}

	serviceName := svc.DisplayName
	if serviceName == "" {
		serviceName = svc.ID
	}

	return m.createAlert(ctx, &model.Alert{
		ServiceID:   svc.ID,
		ServiceName: serviceName,
		Type:        model.AlertAnomaly,
		Severity:    model.SeverityHigh,
		Title:       fmt.Sprintf("Anomalous daily cost for %s", serviceName),
		Message: fmt.Sprintf("Latest daily cost of $%.2f exceeds the 30-day mean of $%.2f by more than %v standard deviations",
			last, mean, anomalySigmas),
		CurrentValue:   last,
		ThresholdValue: limit,
		Currency:       "USD",
	})
}

// dailyTotals buckets records into per-day sums, ordered by day ascending.
func dailyTotals(records []model.CostRecord) []float64 {
	buckets := make(map[string]float64)
	for _, r := range records {
		buckets[model.DayKey(r.Date)] += r.Cost
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	series := make([]float64, 0, len(days))
	for _, day := range days {
		series = append(series, buckets[day])
	}
	return series
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(series []float64) (mean, stddev float64) {
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	var variance float64
	for _, v := range series {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(series))
	return mean, math.Sqrt(variance)
}
