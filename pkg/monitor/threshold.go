package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// checkThresholds evaluates every enabled threshold rule against the spend
// window its metric type implies. A single failing rule is logged and
// skipped; the rest of the rules still run.
func (m *Monitor) checkThresholds(ctx context.Context) error {
	thresholds, err := m.store.ListEnabledThresholds(ctx)
	if err != nil {
		return fmt.Errorf("list thresholds: %w", err)
	}

	names := m.serviceNames(ctx)
	for _, rule := range thresholds {
		if err := m.evaluateThreshold(ctx, rule, names); err != nil {
			m.logger.Error("threshold evaluation failed",
				"threshold", rule.ID,
				"service", rule.ServiceID,
				"error", err,
			)
		}
	}
	return nil
}

func (m *Monitor) evaluateThreshold(ctx context.Context, rule model.CostThreshold, names map[string]string) error {
	now := m.now().UTC()
	window := model.MetricWindow(rule.MetricType, now)

	current, err := m.store.SumCost(ctx, model.RecordFilter{
		ServiceID: rule.ServiceID,
		Range:     window,
	})
	if err != nil {
		return fmt.Errorf("sum current spend: %w", err)
	}

	// The severity reference is the rule value for absolute comparisons and
	// the baseline spend for relative ones.
	triggered := false
	reference := rule.ThresholdValue
	message := ""

	switch rule.ComparisonOperator {
	case model.CompareGreaterThan:
		triggered = current > rule.ThresholdValue
		message = fmt.Sprintf("%s spend of $%.2f is above the $%.2f threshold",
			rule.MetricType, current, rule.ThresholdValue)
	case model.CompareLessThan:
		triggered = current < rule.ThresholdValue
		message = fmt.Sprintf("%s spend of $%.2f is below the $%.2f threshold",
			rule.MetricType, current, rule.ThresholdValue)
	case model.ComparePercentIncrease:
		shift := time.Duration(rule.BaselinePeriodDays) * 24 * time.Hour
		baseline, err := m.store.SumCost(ctx, model.RecordFilter{
			ServiceID: rule.ServiceID,
			Range: model.DateRange{
				Start: window.Start.Add(-shift),
				End:   window.End.Add(-shift),
			},
		})
		if err != nil {
			return fmt.Errorf("sum baseline spend: %w", err)
		}

		var increase float64
		if baseline > 0 {
			increase = (current - baseline) / baseline * 100
		}
		triggered = increase > rule.ThresholdValue
		reference = baseline
		message = fmt.Sprintf("%s spend of $%.2f is %.1f%% above the %d-day baseline of $%.2f",
			rule.MetricType, current, increase, rule.BaselinePeriodDays, baseline)
	default:
		return fmt.Errorf("unknown comparison operator %q", rule.ComparisonOperator)
	}

	if !triggered {
		return nil
	}
	if m.shouldSuppress(ctx, rule.ServiceID, model.AlertThreshold, m.cfg.ThresholdDedupWindow) {
		return nil
	}

	serviceName := names[rule.ServiceID]
	if serviceName == "" {
		serviceName = rule.ServiceID
	}

	return m.createAlert(ctx, &model.Alert{
		ServiceID:      rule.ServiceID,
		ServiceName:    serviceName,
		Type:           model.AlertThreshold,
		Severity:       model.ClassifySeverity(current, reference),
		Title:          fmt.Sprintf("Cost threshold triggered for %s", serviceName),
		Message:        message,
		CurrentValue:   current,
		ThresholdValue: rule.ThresholdValue,
		Currency:       "USD",
	})
}
