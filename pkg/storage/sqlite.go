package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Store interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) UpsertCostRecord(ctx context.Context, record *model.CostRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Currency == "" {
		record.Currency = "USD"
	}
	if record.Period == "" {
		record.Period = model.RecordDaily
	}

	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, service_id, provider, region, account, service_name, resource, cost, currency, period, date, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(service_id, provider, service_name, date) DO UPDATE SET
		   cost = excluded.cost,
		   currency = excluded.currency,
		   region = excluded.region,
		   account = excluded.account,
		   tags = excluded.tags`,
		record.ID, record.ServiceID, record.Provider, record.Region, record.Account,
		record.ServiceName, record.Resource, record.Cost, record.Currency,
		record.Period, record.Date.UTC(), string(tags),
	)
	if err != nil {
		return fmt.Errorf("upsert cost record: %w", err)
	}
	return nil
}

func (s *SQLite) QueryCostRecords(ctx context.Context, filter model.RecordFilter) ([]model.CostRecord, error) {
	query := `SELECT id, service_id, provider, region, account, service_name, resource, cost, currency, period, date, tags
	          FROM cost_records`
	where, args := recordWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	var records []model.CostRecord
	for rows.Next() {
		var r model.CostRecord
		var tags string
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.Provider, &r.Region, &r.Account,
			&r.ServiceName, &r.Resource, &r.Cost, &r.Currency, &r.Period, &r.Date, &tags); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if tags != "" && tags != "null" {
			if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) SumCost(ctx context.Context, filter model.RecordFilter) (float64, error) {
	query := "SELECT COALESCE(SUM(cost), 0) FROM cost_records"
	where, args := recordWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var sum float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return sum, nil
}

func (s *SQLite) SetThreshold(ctx context.Context, threshold *model.CostThreshold) error {
	if threshold.ID == "" {
		threshold.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if threshold.CreatedAt.IsZero() {
		threshold.CreatedAt = now
	}
	threshold.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thresholds (id, service_id, metric_type, threshold_value, comparison_operator, baseline_period_days, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   service_id = excluded.service_id,
		   metric_type = excluded.metric_type,
		   threshold_value = excluded.threshold_value,
		   comparison_operator = excluded.comparison_operator,
		   baseline_period_days = excluded.baseline_period_days,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		threshold.ID, threshold.ServiceID, threshold.MetricType, threshold.ThresholdValue,
		threshold.ComparisonOperator, threshold.BaselinePeriodDays, threshold.Enabled,
		threshold.CreatedAt, threshold.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}

func (s *SQLite) ListThresholds(ctx context.Context) ([]model.CostThreshold, error) {
	return s.queryThresholds(ctx, "")
}

func (s *SQLite) ListEnabledThresholds(ctx context.Context) ([]model.CostThreshold, error) {
	return s.queryThresholds(ctx, " WHERE enabled = 1")
}

func (s *SQLite) queryThresholds(ctx context.Context, where string) ([]model.CostThreshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_id, metric_type, threshold_value, comparison_operator, baseline_period_days, enabled, created_at, updated_at
		 FROM thresholds`+where+` ORDER BY service_id`)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []model.CostThreshold
	for rows.Next() {
		var t model.CostThreshold
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.MetricType, &t.ThresholdValue,
			&t.ComparisonOperator, &t.BaselinePeriodDays, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, rows.Err()
}

func (s *SQLite) SetBudget(ctx context.Context, budget *model.Budget) error {
	if budget.ServiceID != "" && budget.TeamID != "" {
		return fmt.Errorf("budget %q: service and team scopes are mutually exclusive", budget.Name)
	}
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	if budget.Currency == "" {
		budget.Currency = "USD"
	}
	now := time.Now().UTC()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (id, name, service_id, team_id, amount, currency, period, warning_pct, critical_pct, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   service_id = excluded.service_id,
		   team_id = excluded.team_id,
		   amount = excluded.amount,
		   currency = excluded.currency,
		   period = excluded.period,
		   warning_pct = excluded.warning_pct,
		   critical_pct = excluded.critical_pct,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		budget.ID, budget.Name, budget.ServiceID, budget.TeamID, budget.Amount,
		budget.Currency, budget.Period, budget.Thresholds.Warning, budget.Thresholds.Critical,
		budget.Enabled, budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

func (s *SQLite) ListBudgets(ctx context.Context) ([]model.Budget, error) {
	return s.queryBudgets(ctx, "")
}

func (s *SQLite) ListEnabledBudgets(ctx context.Context) ([]model.Budget, error) {
	return s.queryBudgets(ctx, " WHERE enabled = 1")
}

func (s *SQLite) queryBudgets(ctx context.Context, where string) ([]model.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, service_id, team_id, amount, currency, period, warning_pct, critical_pct, enabled, created_at, updated_at
		 FROM budgets`+where+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.Budget
	for rows.Next() {
		var b model.Budget
		if err := rows.Scan(&b.ID, &b.Name, &b.ServiceID, &b.TeamID, &b.Amount,
			&b.Currency, &b.Period, &b.Thresholds.Warning, &b.Thresholds.Critical,
			&b.Enabled, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *SQLite) UpsertService(ctx context.Context, service *model.Service) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services (id, display_name, team_id)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = excluded.display_name,
		   team_id = CASE WHEN excluded.team_id != '' THEN excluded.team_id ELSE services.team_id END`,
		service.ID, service.DisplayName, service.TeamID,
	)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func (s *SQLite) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, display_name, team_id FROM services ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.DisplayName, &svc.TeamID); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *SQLite) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, service_id, service_name, alert_type, severity, title, message, current_value, threshold_value, currency, provider, created_at, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		alert.ID, alert.ServiceID, alert.ServiceName, alert.Type, alert.Severity,
		alert.Title, alert.Message, alert.CurrentValue, alert.ThresholdValue,
		alert.Currency, alert.Provider, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *SQLite) FindUnresolvedAlert(ctx context.Context, serviceID string, alertType model.AlertType, since time.Time) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, service_id, service_name, alert_type, severity, title, message, current_value, threshold_value, currency, provider, created_at, resolved, resolved_at
		 FROM alerts
		 WHERE service_id = ? AND alert_type = ? AND resolved = 0 AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		serviceID, alertType, since.UTC(),
	)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find unresolved alert: %w", err)
	}
	return alert, nil
}

func (s *SQLite) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, service_id, service_name, alert_type, severity, title, message, current_value, threshold_value, currency, provider, created_at, resolved, resolved_at
	          FROM alerts`

	var conditions []string
	var args []any
	if filter.ServiceID != "" {
		conditions = append(conditions, "service_id = ?")
		args = append(args, filter.ServiceID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "alert_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Unresolved {
		conditions = append(conditions, "resolved = 0")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

func (s *SQLite) UpdateAlertResolved(ctx context.Context, id string, resolvedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET resolved = 1, resolved_at = ? WHERE id = ?",
		resolvedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ServiceID, &a.ServiceName, &a.Type, &a.Severity,
		&a.Title, &a.Message, &a.CurrentValue, &a.ThresholdValue,
		&a.Currency, &a.Provider, &a.CreatedAt, &a.Resolved, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

// recordWhereClause constructs a SQL WHERE clause from a RecordFilter.
// Date ranges are inclusive on both ends.
func recordWhereClause(filter model.RecordFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ServiceID != "" {
		conditions = append(conditions, "service_id = ?")
		args = append(args, filter.ServiceID)
	}
	if len(filter.ServiceIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(filter.ServiceIDs))
		conditions = append(conditions, "service_id IN ("+placeholders[:len(placeholders)-2]+")")
		for _, id := range filter.ServiceIDs {
			args = append(args, id)
		}
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if !filter.Range.Start.IsZero() {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.Range.Start.UTC())
	}
	if !filter.Range.End.IsZero() {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.Range.End.UTC())
	}

	return strings.Join(conditions, " AND "), args
}
