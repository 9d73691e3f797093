package model

import "time"

// CloudProvider identifies the cloud vendor a billing record came from.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "aws"
	ProviderAzure CloudProvider = "azure"
	ProviderGCP   CloudProvider = "gcp"
)

// Providers lists all supported cloud providers.
var Providers = []CloudProvider{ProviderAWS, ProviderAzure, ProviderGCP}

// RecordPeriod is the granularity of a billed line item.
type RecordPeriod string

const (
	RecordDaily   RecordPeriod = "daily"
	RecordMonthly RecordPeriod = "monthly"
)

// CostRecord is a single billed line item in the provider's native currency.
type CostRecord struct {
	ID          string            `json:"id" db:"id"`
	ServiceID   string            `json:"service_id" db:"service_id"`
	Provider    CloudProvider     `json:"provider" db:"provider"`
	Region      string            `json:"region,omitempty" db:"region"`
	Account     string            `json:"account,omitempty" db:"account"`
	ServiceName string            `json:"service_name" db:"service_name"`
	Resource    string            `json:"resource,omitempty" db:"resource"`
	Cost        float64           `json:"cost" db:"cost"`
	Currency    string            `json:"currency" db:"currency"`
	Period      RecordPeriod      `json:"period" db:"period"`
	Date        time.Time         `json:"date" db:"date"`
	Tags        map[string]string `json:"tags,omitempty" db:"tags"`
}

// Trend describes spend movement against the immediately preceding period.
type Trend struct {
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// Recommendation is a provider cost-saving suggestion for a service.
type Recommendation struct {
	ServiceID        string  `json:"service_id"`
	Type             string  `json:"type"`
	Description      string  `json:"description"`
	EstimatedSavings float64 `json:"estimated_savings"`
	Effort           string  `json:"effort"`
	Impact           string  `json:"impact"`
}

// AggregatedServiceCost is the per-service reporting view. All amounts are
// USD after conversion; TotalCost always equals the sum of Breakdown values.
type AggregatedServiceCost struct {
	ServiceID       string                    `json:"service_id"`
	ServiceName     string                    `json:"service_name"`
	TotalCost       float64                   `json:"total_cost"`
	Breakdown       map[CloudProvider]float64 `json:"breakdown"`
	Trend           Trend                     `json:"trend"`
	Recommendations []Recommendation          `json:"recommendations"`
}

// ServiceCostShare is one entry in a summary's top-services list.
type ServiceCostShare struct {
	ServiceID   string  `json:"service_id"`
	ServiceName string  `json:"service_name"`
	Cost        float64 `json:"cost"`
	Percentage  float64 `json:"percentage"`
}

// TrendPoint is one bucket of a daily or monthly trend series. Date is
// "YYYY-MM-DD" for daily buckets and "YYYY-MM" for monthly buckets.
type TrendPoint struct {
	Date       string                    `json:"date"`
	TotalCost  float64                   `json:"total_cost"`
	ByProvider map[CloudProvider]float64 `json:"by_provider"`
}

// CostSummary is the period-wide reporting view across all services.
type CostSummary struct {
	TotalCost    float64                   `json:"total_cost"`
	Breakdown    map[CloudProvider]float64 `json:"breakdown"`
	TopServices  []ServiceCostShare        `json:"top_services"`
	DailyTrend   []TrendPoint              `json:"daily_trend"`
	MonthlyTrend []TrendPoint              `json:"monthly_trend"`
}

// ForecastPoint is a projected monthly spend.
type ForecastPoint struct {
	Month        string  `json:"month"`
	ForecastCost float64 `json:"forecast_cost"`
	Confidence   float64 `json:"confidence"`
}

// MetricType selects the evaluation window of a threshold rule.
type MetricType string

const (
	MetricHourly  MetricType = "hourly"
	MetricDaily   MetricType = "daily"
	MetricMonthly MetricType = "monthly"
)

// ComparisonOperator selects how a threshold rule compares spend.
type ComparisonOperator string

const (
	CompareGreaterThan     ComparisonOperator = "greater_than"
	CompareLessThan        ComparisonOperator = "less_than"
	ComparePercentIncrease ComparisonOperator = "percent_increase"
)

// CostThreshold is a standing per-service alerting rule.
type CostThreshold struct {
	ID                 string             `json:"id" db:"id"`
	ServiceID          string             `json:"service_id" db:"service_id"`
	MetricType         MetricType         `json:"metric_type" db:"metric_type"`
	ThresholdValue     float64            `json:"threshold_value" db:"threshold_value"`
	ComparisonOperator ComparisonOperator `json:"comparison_operator" db:"comparison_operator"`
	BaselinePeriodDays int                `json:"baseline_period_days" db:"baseline_period_days"`
	Enabled            bool               `json:"enabled" db:"enabled"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// BudgetPeriod is the calendar window a budget covers.
type BudgetPeriod string

const (
	BudgetMonthly   BudgetPeriod = "monthly"
	BudgetQuarterly BudgetPeriod = "quarterly"
	BudgetYearly    BudgetPeriod = "yearly"
)

// BudgetThresholds are percentages of the budget amount at which alerts fire.
type BudgetThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Budget is a standing spend cap scoped to a service or a team, never both.
type Budget struct {
	ID         string           `json:"id" db:"id"`
	Name       string           `json:"name" db:"name"`
	ServiceID  string           `json:"service_id,omitempty" db:"service_id"`
	TeamID     string           `json:"team_id,omitempty" db:"team_id"`
	Amount     float64          `json:"amount" db:"amount"`
	Currency   string           `json:"currency" db:"currency"`
	Period     BudgetPeriod     `json:"period" db:"period"`
	Thresholds BudgetThresholds `json:"thresholds"`
	Enabled    bool             `json:"enabled" db:"enabled"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}

// ScopeID returns the identifier the budget is scoped to.
func (b Budget) ScopeID() string {
	if b.ServiceID != "" {
		return b.ServiceID
	}
	return b.TeamID
}

// AlertType classifies what condition raised an alert.
type AlertType string

const (
	AlertThreshold AlertType = "threshold"
	AlertBudget    AlertType = "budget"
	AlertAnomaly   AlertType = "anomaly"
	AlertSpike     AlertType = "spike"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is raised by the monitor when a detector condition triggers. Alerts
// move one way, open to resolved; a fresh trigger creates a new alert rather
// than reopening an old one.
type Alert struct {
	ID             string        `json:"id" db:"id"`
	ServiceID      string        `json:"service_id" db:"service_id"`
	ServiceName    string        `json:"service_name" db:"service_name"`
	Type           AlertType     `json:"alert_type" db:"alert_type"`
	Severity       Severity      `json:"severity" db:"severity"`
	Title          string        `json:"title" db:"title"`
	Message        string        `json:"message" db:"message"`
	CurrentValue   float64       `json:"current_value" db:"current_value"`
	ThresholdValue float64       `json:"threshold_value" db:"threshold_value"`
	Currency       string        `json:"currency" db:"currency"`
	Provider       CloudProvider `json:"provider,omitempty" db:"provider"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	Resolved       bool          `json:"resolved" db:"resolved"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Service is a billed service known to the system.
type Service struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	TeamID      string `json:"team_id,omitempty" db:"team_id"`
}

// DateRange is an inclusive [Start, End] window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RecordFilter controls which cost records a store query returns.
type RecordFilter struct {
	ServiceID  string        `json:"service_id,omitempty"`
	ServiceIDs []string      `json:"service_ids,omitempty"`
	Provider   CloudProvider `json:"provider,omitempty"`
	Range      DateRange     `json:"range"`
}

// AlertFilter controls which alerts a store query returns.
type AlertFilter struct {
	ServiceID  string    `json:"service_id,omitempty"`
	Type       AlertType `json:"alert_type,omitempty"`
	Unresolved bool      `json:"unresolved,omitempty"`
}

// ClassifySeverity ranks an observed value against a reference amount.
// A non-positive reference yields a zero ratio, so the result is low.
func ClassifySeverity(value, reference float64) Severity {
	var ratio float64
	if reference > 0 {
		ratio = value / reference
	}
	switch {
	case ratio >= 3:
		return SeverityCritical
	case ratio >= 2:
		return SeverityHigh
	case ratio >= 1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MetricWindow returns the evaluation window implied by a metric type,
// ending at now.
func MetricWindow(metric MetricType, now time.Time) DateRange {
	switch metric {
	case MetricHourly:
		return DateRange{Start: now.Add(-time.Hour), End: now}
	case MetricMonthly:
		return DateRange{Start: now.AddDate(0, -1, 0), End: now}
	default:
		return DateRange{Start: now.AddDate(0, 0, -1), End: now}
	}
}

// BudgetWindow returns the calendar window containing now for a budget
// period: the current month, quarter, or year. End is the period's last
// instant, not the start of the next one, so inclusive range queries never
// pull the first day of the following period into this one.
func BudgetWindow(period BudgetPeriod, now time.Time) DateRange {
	now = now.UTC()
	var start time.Time
	var next time.Time
	switch period {
	case BudgetQuarterly:
		quarterStart := time.Month((int(now.Month())-1)/3*3 + 1)
		start = time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, time.UTC)
		next = start.AddDate(0, 3, 0)
	case BudgetYearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		next = start.AddDate(1, 0, 0)
	default:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		next = start.AddDate(0, 1, 0)
	}
	return DateRange{Start: start, End: next.Add(-time.Nanosecond)}
}

// DayKey formats a time as a daily trend bucket key.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// MonthKey formats a time as a monthly trend bucket key.
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }
