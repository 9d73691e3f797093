package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the monitor's observable failure modes. Background cycles
// never surface errors to a caller, so fewer-alerts-than-expected has to be
// diagnosed from these counters and the logs.
type Metrics struct {
	Cycles               prometheus.Counter
	DetectorErrors       *prometheus.CounterVec
	AlertsCreated        *prometheus.CounterVec
	NotificationFailures prometheus.Counter
}

// NewMetrics registers the monitor's counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_monitor_cycles_total",
			Help: "Monitoring cycles started.",
		}),
		DetectorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detector_errors_total",
			Help: "Detector passes that failed.",
		}, []string{"detector"}),
		AlertsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_alerts_created_total",
			Help: "Alerts created, by type.",
		}, []string{"type"}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_notification_failures_total",
			Help: "Alert notifications that could not be delivered.",
		}),
	}
}
