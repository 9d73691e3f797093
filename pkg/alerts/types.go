package alerts

import (
	"context"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

// Notifier delivers alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert model.Alert) error
}
