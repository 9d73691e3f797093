// Package providers defines the contract a cloud billing client must
// implement and a registry that holds the injected implementations. The
// clients themselves wrap each vendor's billing API and live in the host.
package providers

import (
	"context"
	"time"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// Client fetches billing data from one cloud provider.
type Client interface {
	// Provider returns the vendor this client talks to.
	Provider() model.CloudProvider

	// FetchDailyCosts returns daily cost records in [start, end].
	FetchDailyCosts(ctx context.Context, start, end time.Time) ([]model.CostRecord, error)

	// FetchMonthlyCosts returns monthly cost records in [start, end].
	FetchMonthlyCosts(ctx context.Context, start, end time.Time) ([]model.CostRecord, error)

	// FetchRecommendations returns the provider's cost-saving suggestions.
	FetchRecommendations(ctx context.Context) ([]model.Recommendation, error)
}
