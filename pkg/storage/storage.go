package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for cost records, alerting rules,
// known services, and alerts. It is the system of record; the cache is not.
type Store interface {
	// UpsertCostRecord inserts a record or, when a record with the same
	// (service_id, provider, service_name, date) already exists, overwrites
	// its cost, currency, region, account, and tags.
	UpsertCostRecord(ctx context.Context, record *model.CostRecord) error

	// QueryCostRecords retrieves cost records matching the given filter.
	QueryCostRecords(ctx context.Context, filter model.RecordFilter) ([]model.CostRecord, error)

	// SumCost returns the server-side cost sum for the given filter.
	SumCost(ctx context.Context, filter model.RecordFilter) (float64, error)

	// SetThreshold creates or updates a threshold rule.
	SetThreshold(ctx context.Context, threshold *model.CostThreshold) error

	// ListThresholds returns all threshold rules.
	ListThresholds(ctx context.Context) ([]model.CostThreshold, error)

	// ListEnabledThresholds returns only the enabled threshold rules.
	ListEnabledThresholds(ctx context.Context) ([]model.CostThreshold, error)

	// SetBudget creates or updates a budget by name.
	SetBudget(ctx context.Context, budget *model.Budget) error

	// ListBudgets returns all budgets.
	ListBudgets(ctx context.Context) ([]model.Budget, error)

	// ListEnabledBudgets returns only the enabled budgets.
	ListEnabledBudgets(ctx context.Context) ([]model.Budget, error)

	// UpsertService registers a billed service.
	UpsertService(ctx context.Context, service *model.Service) error

	// ListServices returns all known services.
	ListServices(ctx context.Context) ([]model.Service, error)

	// CreateAlert persists a new alert.
	CreateAlert(ctx context.Context, alert *model.Alert) error

	// FindUnresolvedAlert returns the newest unresolved alert of the given
	// type for a service created at or after since, or ErrNotFound.
	FindUnresolvedAlert(ctx context.Context, serviceID string, alertType model.AlertType, since time.Time) (*model.Alert, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)

	// UpdateAlertResolved marks an alert resolved at the given time.
	UpdateAlertResolved(ctx context.Context, id string, resolvedAt time.Time) error

	// Close releases resources.
	Close() error
}
