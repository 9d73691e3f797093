package providers

import (
	"fmt"
	"sync"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// Registry manages provider clients by vendor.
type Registry struct {
	mu      sync.RWMutex
	clients map[model.CloudProvider]Client
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[model.CloudProvider]Client),
	}
}

// Register adds a client to the registry.
func (r *Registry) Register(c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := c.Provider()
	if _, exists := r.clients[provider]; exists {
		return fmt.Errorf("provider %q already registered", provider)
	}
	r.clients[provider] = c
	return nil
}

// Get returns the client for a provider.
func (r *Registry) Get(provider model.CloudProvider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", provider)
	}
	return c, nil
}

// All returns all registered clients.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// List returns all registered provider names.
func (r *Registry) List() []model.CloudProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]model.CloudProvider, 0, len(r.clients))
	for provider := range r.clients {
		names = append(names, provider)
	}
	return names
}
