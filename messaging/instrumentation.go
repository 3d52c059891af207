package messaging

import "github.com/itsneelabh/gomind-mas/telemetry"

func init() {
	telemetry.DeclareMetrics("messaging", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "messaging.sends",
				Type:   "counter",
				Help:   "Message sends by target and outcome (delivered, fallback, failed)",
				Labels: []string{"target", "outcome"},
			},
		},
	})
}
