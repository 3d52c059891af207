package scheduling

import "github.com/itsneelabh/gomind-mas/telemetry"

func init() {
	telemetry.DeclareMetrics("capacity", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "capacity.decisions",
				Type:   "counter",
				Help:   "Capacity guard decisions",
				Labels: []string{"decision", "max_capacity"},
			},
			{
				Name:    "capacity.total_load",
				Type:    "histogram",
				Help:    "Total schedule load seen by the capacity guard",
				Labels:  []string{"decision"},
				Unit:    "h",
				Buckets: []float64{10, 20, 40, 50, 60, 80, 100, 168},
			},
		},
	})
}
