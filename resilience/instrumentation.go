package resilience

import "github.com/itsneelabh/gomind-mas/telemetry"

func init() {
	// ONLY declare metrics, don't initialize
	telemetry.DeclareMetrics("retry", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "retry.attempts",
				Type:   "counter",
				Help:   "Total retry attempts",
				Labels: []string{"operation", "attempt_number"},
			},
			{
				Name:   "retry.success",
				Type:   "counter",
				Help:   "Successful operations, labelled with the attempt that succeeded",
				Labels: []string{"operation", "final_attempt"},
			},
			{
				Name:   "retry.failures",
				Type:   "counter",
				Help:   "Failed operations after all retries",
				Labels: []string{"operation", "error_type"},
			},
			{
				Name:    "retry.backoff_ms",
				Type:    "histogram",
				Help:    "Backoff duration between retries",
				Labels:  []string{"operation"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 2000, 5000},
			},
		},
	})
}
