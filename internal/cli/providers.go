package cli

import (
	"fmt"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/providers"
)

// providerClients holds the billing clients an embedding host registers
// before Execute. The standalone binary registers none and degrades to
// reporting over already-synced data.
var providerClients []providers.Client

// RegisterProviderClient adds a cloud billing client to the commands that
// sync costs or fetch recommendations. Must be called before Execute.
func RegisterProviderClient(c providers.Client) {
	providerClients = append(providerClients, c)
}

// newProviderRegistry builds a registry from the registered clients.
func newProviderRegistry() (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for _, c := range providerClients {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register provider client: %w", err)
		}
	}
	return registry, nil
}
