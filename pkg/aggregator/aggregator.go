// Package aggregator turns stored cost records into reporting views:
// per-service breakdowns, period summaries, trends, and naive forecasts.
// It never mutates stored data and holds no state beyond the currency
// table, which is read-only once the host finishes wiring.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/providers"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

const (
	topServicesLimit  = 10
	forecastHorizon   = 6
	baseConfidence    = 0.9
	confidenceDecay   = 0.05
	minConfidence     = 0.5
	minForecastMonths = 2
)

// Aggregator computes reporting views over stored cost records.
type Aggregator struct {
	store    storage.Store
	registry *providers.Registry
	rates    map[string]float64
	logger   *slog.Logger
}

// New creates an aggregator seeded with the built-in currency table.
// The provider registry supplies recommendations and may be empty.
func New(store storage.Store, registry *providers.Registry, logger *slog.Logger) *Aggregator {
	rates := make(map[string]float64, len(defaultRates))
	for code, rate := range defaultRates {
		rates[code] = rate
	}
	return &Aggregator{
		store:    store,
		registry: registry,
		rates:    rates,
		logger:   logger,
	}
}

// GetAggregatedCosts returns per-service USD cost views for [start, end],
// optionally restricted to serviceIDs, sorted by total cost descending.
// Trend and recommendations are enrichments: their failures degrade to
// zero values and are logged, never propagated.
func (a *Aggregator) GetAggregatedCosts(ctx context.Context, start, end time.Time, serviceIDs []string) ([]model.AggregatedServiceCost, error) {
	records, err := a.store.QueryCostRecords(ctx, model.RecordFilter{
		ServiceIDs: serviceIDs,
		Range:      model.DateRange{Start: start, End: end},
	})
	if err != nil {
		return nil, fmt.Errorf("load cost records: %w", err)
	}

	recommendations := a.fetchRecommendations(ctx)
	groups := lo.GroupBy(records, func(r model.CostRecord) string { return r.ServiceID })

	results := make([]model.AggregatedServiceCost, 0, len(groups))
	for serviceID, group := range groups {
		agg := model.AggregatedServiceCost{
			ServiceID:       serviceID,
			ServiceName:     group[0].ServiceName,
			Breakdown:       make(map[model.CloudProvider]float64),
			Recommendations: []model.Recommendation{},
		}
		for _, r := range group {
			usd := a.ConvertToUSD(r.Cost, r.Currency)
			agg.TotalCost += usd
			agg.Breakdown[r.Provider] += usd
		}

		trend, err := a.CalculateTrend(ctx, serviceID, start, end)
		if err != nil {
			a.logger.Warn("trend calculation failed", "service", serviceID, "error", err)
		} else {
			agg.Trend = trend
		}

		if recs, ok := recommendations[serviceID]; ok {
			agg.Recommendations = recs
		}
		results = append(results, agg)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].TotalCost > results[j].TotalCost })
	return results, nil
}

// CalculateTrend compares a service's converted spend in [start, end] against
// the immediately preceding period of equal length. With no baseline spend
// the change percentage is zero, never NaN or Inf.
func (a *Aggregator) CalculateTrend(ctx context.Context, serviceID string, start, end time.Time) (model.Trend, error) {
	current, err := a.sumConverted(ctx, serviceID, start, end)
	if err != nil {
		return model.Trend{}, err
	}

	length := end.Sub(start)
	previous, err := a.sumConverted(ctx, serviceID, start.Add(-length), start)
	if err != nil {
		return model.Trend{}, err
	}

	trend := model.Trend{
		Current:  current,
		Previous: previous,
		Change:   current - previous,
	}
	if previous > 0 {
		trend.ChangePercent = trend.Change / previous * 100
	}
	return trend, nil
}

// GetCostSummary returns the period-wide view across all services: totals,
// provider breakdown, top services by cost, and daily/monthly trend series.
func (a *Aggregator) GetCostSummary(ctx context.Context, start, end time.Time) (*model.CostSummary, error) {
	records, err := a.store.QueryCostRecords(ctx, model.RecordFilter{
		Range: model.DateRange{Start: start, End: end},
	})
	if err != nil {
		return nil, fmt.Errorf("load cost records: %w", err)
	}

	summary := &model.CostSummary{
		Breakdown: make(map[model.CloudProvider]float64, len(model.Providers)),
	}
	for _, p := range model.Providers {
		summary.Breakdown[p] = 0
	}

	type serviceTotal struct {
		name string
		cost float64
	}
	perService := make(map[string]*serviceTotal)

	for _, r := range records {
		usd := a.ConvertToUSD(r.Cost, r.Currency)
		summary.TotalCost += usd
		summary.Breakdown[r.Provider] += usd

		st, ok := perService[r.ServiceID]
		if !ok {
			st = &serviceTotal{name: r.ServiceName}
			perService[r.ServiceID] = st
		}
		st.cost += usd
	}

	top := make([]model.ServiceCostShare, 0, len(perService))
	for id, st := range perService {
		share := model.ServiceCostShare{ServiceID: id, ServiceName: st.name, Cost: st.cost}
		if summary.TotalCost > 0 {
			share.Percentage = st.cost / summary.TotalCost * 100
		}
		top = append(top, share)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Cost > top[j].Cost })
	if len(top) > topServicesLimit {
		top = top[:topServicesLimit]
	}
	summary.TopServices = top

	summary.DailyTrend = a.trendSeries(records, func(t time.Time) string { return model.DayKey(t) })
	summary.MonthlyTrend = a.trendSeries(records, func(t time.Time) string { return model.MonthKey(t) })
	return summary, nil
}

// GetCostForecasts projects monthly spend six months forward from today
// using the average month-over-month growth of the monthly totals in
// [start, end]. With fewer than two months of history it returns nothing.
func (a *Aggregator) GetCostForecasts(ctx context.Context, start, end time.Time, serviceIDs []string) ([]model.ForecastPoint, error) {
	records, err := a.store.QueryCostRecords(ctx, model.RecordFilter{
		ServiceIDs: serviceIDs,
		Range:      model.DateRange{Start: start, End: end},
	})
	if err != nil {
		return nil, fmt.Errorf("load cost records: %w", err)
	}

	monthly := a.trendSeries(records, func(t time.Time) string { return model.MonthKey(t) })
	if len(monthly) < minForecastMonths {
		return nil, nil
	}

	var growthSum float64
	for i := 1; i < len(monthly); i++ {
		prev := monthly[i-1].TotalCost
		if prev > 0 {
			growthSum += (monthly[i].TotalCost - prev) / prev
		}
	}
	avgGrowth := growthSum / float64(len(monthly)-1)
	lastTotal := monthly[len(monthly)-1].TotalCost

	now := time.Now().UTC()
	base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	forecasts := make([]model.ForecastPoint, 0, forecastHorizon)
	for i := 1; i <= forecastHorizon; i++ {
		confidence := baseConfidence - confidenceDecay*float64(i-1)
		if confidence < minConfidence {
			confidence = minConfidence
		}
		forecasts = append(forecasts, model.ForecastPoint{
			Month:        model.MonthKey(base.AddDate(0, i, 0)),
			ForecastCost: lastTotal * math.Pow(1+avgGrowth, float64(i)),
			Confidence:   confidence,
		})
	}
	return forecasts, nil
}

// trendSeries buckets converted costs by the given calendar key, with
// per-provider subtotals, sorted ascending by key.
func (a *Aggregator) trendSeries(records []model.CostRecord, key func(time.Time) string) []model.TrendPoint {
	buckets := make(map[string]*model.TrendPoint)
	for _, r := range records {
		k := key(r.Date)
		point, ok := buckets[k]
		if !ok {
			point = &model.TrendPoint{Date: k, ByProvider: make(map[model.CloudProvider]float64)}
			buckets[k] = point
		}
		usd := a.ConvertToUSD(r.Cost, r.Currency)
		point.TotalCost += usd
		point.ByProvider[r.Provider] += usd
	}

	keys := lo.Keys(buckets)
	sort.Strings(keys)

	series := make([]model.TrendPoint, 0, len(keys))
	for _, k := range keys {
		series = append(series, *buckets[k])
	}
	return series
}

// fetchRecommendations gathers suggestions from every registered provider,
// grouped by service. A failing provider contributes an empty list.
func (a *Aggregator) fetchRecommendations(ctx context.Context) map[string][]model.Recommendation {
	byService := make(map[string][]model.Recommendation)
	if a.registry == nil {
		return byService
	}
	for _, client := range a.registry.All() {
		recs, err := client.FetchRecommendations(ctx)
		if err != nil {
			a.logger.Warn("fetch recommendations failed", "provider", client.Provider(), "error", err)
			continue
		}
		for _, rec := range recs {
			byService[rec.ServiceID] = append(byService[rec.ServiceID], rec)
		}
	}
	return byService
}

// sumConverted sums a service's USD-converted cost in [start, end].
func (a *Aggregator) sumConverted(ctx context.Context, serviceID string, start, end time.Time) (float64, error) {
	records, err := a.store.QueryCostRecords(ctx, model.RecordFilter{
		ServiceID: serviceID,
		Range:     model.DateRange{Start: start, End: end},
	})
	if err != nil {
		return 0, fmt.Errorf("load cost records: %w", err)
	}
	return lo.SumBy(records, func(r model.CostRecord) float64 {
		return a.ConvertToUSD(r.Cost, r.Currency)
	}), nil
}
