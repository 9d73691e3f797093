// Package ingest pulls raw billing records from the registered provider
// clients and lands them in the store. A failure in one provider never
// aborts the others; the failing provider simply contributes nothing.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/providers"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

// Syncer coordinates provider fetches and store upserts.
type Syncer struct {
	registry *providers.Registry
	store    storage.Store
	logger   *slog.Logger
}

// NewSyncer creates a sync coordinator.
func NewSyncer(registry *providers.Registry, store storage.Store, logger *slog.Logger) *Syncer {
	return &Syncer{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// SyncDailyCosts fetches daily cost records in [start, end] from every
// registered provider and upserts them by their natural key, so re-syncing
// the same day overwrites rather than duplicates. Errors are logged, never
// returned: sync is a background path and one bad provider or row must not
// stop the rest.
func (s *Syncer) SyncDailyCosts(ctx context.Context, start, end time.Time) {
	s.sync(ctx, start, end, func(c providers.Client) ([]model.CostRecord, error) {
		return c.FetchDailyCosts(ctx, start, end)
	})
}

// SyncMonthlyCosts fetches monthly cost records in [start, end] from every
// registered provider with the same failure isolation as SyncDailyCosts.
func (s *Syncer) SyncMonthlyCosts(ctx context.Context, start, end time.Time) {
	s.sync(ctx, start, end, func(c providers.Client) ([]model.CostRecord, error) {
		return c.FetchMonthlyCosts(ctx, start, end)
	})
}

func (s *Syncer) sync(ctx context.Context, start, end time.Time, fetch func(providers.Client) ([]model.CostRecord, error)) {
	for _, client := range s.registry.All() {
		provider := client.Provider()

		records, err := fetch(client)
		if err != nil {
			s.logger.Error("fetch costs failed", "provider", provider, "error", err)
			continue
		}

		stored := 0
		for i := range records {
			record := records[i]
			record.Provider = provider
			if err := s.store.UpsertCostRecord(ctx, &record); err != nil {
				s.logger.Error("store cost record failed",
					"provider", provider,
					"service", record.ServiceID,
					"error", err,
				)
				continue
			}
			stored++

			svc := model.Service{ID: record.ServiceID, DisplayName: record.ServiceName}
			if tagTeam, ok := record.Tags["team"]; ok {
				svc.TeamID = tagTeam
			}
			if err := s.store.UpsertService(ctx, &svc); err != nil {
				s.logger.Error("register service failed", "service", record.ServiceID, "error", err)
			}
		}

		s.logger.Info("provider sync complete",
			"provider", provider,
			"records", stored,
			"start", start.Format("2006-01-02"),
			"end", end.Format("2006-01-02"),
		)
	}
}
