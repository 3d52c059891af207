package bus

import "github.com/itsneelabh/gomind-mas/telemetry"

func init() {
	telemetry.DeclareMetrics("bus", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "bus.broadcasts",
				Type:   "counter",
				Help:   "Broadcasts by event type and outcome (ok, partial, aborted)",
				Labels: []string{"event_type", "outcome"},
			},
			{
				Name:   "bus.deliveries",
				Type:   "counter",
				Help:   "Per-subscriber deliveries by outcome (ok, failed, panic)",
				Labels: []string{"event_type", "outcome"},
			},
		},
	})
}
