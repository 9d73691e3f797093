package monitor

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// checkBudgets evaluates every enabled budget against its current calendar
// period. A budget that stays over threshold raises a fresh alert each cycle
// unless the host configures a budget dedup window.
func (m *Monitor) checkBudgets(ctx context.Context) error {
	budgets, err := m.store.ListEnabledBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	for _, budget := range budgets {
		if err := m.evaluateBudget(ctx, budget); err != nil {
			m.logger.Error("budget evaluation failed",
				"budget", budget.Name,
				"error", err,
			)
		}
	}
	return nil
}

func (m *Monitor) evaluateBudget(ctx context.Context, budget model.Budget) error {
	window := model.BudgetWindow(budget.Period, m.now())

	filter := model.RecordFilter{Range: window}
	switch {
	case budget.ServiceID != "":
		filter.ServiceID = budget.ServiceID
	case budget.TeamID != "":
		services, err := m.store.ListServices(ctx)
		if err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		ids := lo.FilterMap(services, func(svc model.Service, _ int) (string, bool) {
			return svc.ID, svc.TeamID == budget.TeamID
		})
		if len(ids) == 0 {
			return nil
		}
		filter.ServiceIDs = ids
	default:
		return fmt.Errorf("budget %q has no scope", budget.Name)
	}

	current, err := m.store.SumCost(ctx, filter)
	if err != nil {
		return fmt.Errorf("sum period spend: %w", err)
	}

	var percentage float64
	if budget.Amount > 0 {
		percentage = current / budget.Amount * 100
	}

	var severity model.Severity
	var title string
	switch {
	case percentage >= budget.Thresholds.Critical:
		severity = model.SeverityCritical
		title = "Budget critically exceeded"
	case percentage >= budget.Thresholds.Warning:
		severity = model.SeverityMedium
		title = "Budget warning threshold reached"
	default:
		return nil
	}

	if m.shouldSuppress(ctx, budget.ScopeID(), model.AlertBudget, m.cfg.BudgetDedupWindow) {
		return nil
	}

	return m.createAlert(ctx, &model.Alert{
		ServiceID:   budget.ScopeID(),
		ServiceName: budget.Name,
		Type:        model.AlertBudget,
		Severity:    severity,
		Title:       title,
		Message: fmt.Sprintf("Budget %q is at %.1f%% (%.2f of %.2f %s for the %s period)",
			budget.Name, percentage, current, budget.Amount, budget.Currency, budget.Period),
		CurrentValue:   current,
		ThresholdValue: budget.Amount,
		Currency:       budget.Currency,
	})
}
