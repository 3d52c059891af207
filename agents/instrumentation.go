package agents

import "github.com/itsneelabh/gomind-mas/telemetry"

func init() {
	telemetry.DeclareMetrics("agents", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "agents.events",
				Type:   "counter",
				Help:   "Events handled by agent role and action taken",
				Labels: []string{"role", "event_type", "action"},
			},
			{
				Name:   "agents.reoptimizations",
				Type:   "counter",
				Help:   "Scheduler queue reorders",
				Labels: []string{"strategy"},
			},
		},
	})
}
