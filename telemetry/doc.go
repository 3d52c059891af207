/*
Package telemetry provides the OpenTelemetry implementation of core.Telemetry.

Architecture Overview:

 1. Declaration Layer - packages call DeclareMetrics from init() to name their
    metrics, kinds (counter or histogram), labels and bucket boundaries
 2. Instrument Layer - MetricInstruments creates and caches OpenTelemetry
    instruments on first use
 3. Provider Layer - Provider owns the tracer and meter providers and the
    configured exporters

Exporters:

  - none: spans and metrics stay in process
  - stdout: spans are pretty-printed to standard output
  - otlp: spans and metrics are shipped over OTLP/HTTP to the configured endpoint

Usage:

	p, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
	    return err
	}
	defer p.Shutdown(context.Background())

	subject := bus.NewSubject("orders", bus.WithTelemetry(p))

Metrics that were never declared are recorded as counters. Label values for
names listed in DefaultCardinalityLimits collapse to "other" past the limit.
*/
package telemetry
