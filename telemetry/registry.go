package telemetry

import (
	"sort"
	"sync"
)

// Metric types understood by the Provider.
const (
	TypeCounter   = "counter"
	TypeHistogram = "histogram"
)

var (
	// declaredModules maps module name to its ModuleConfig.
	// sync.Map because declarations happen from init() in several packages.
	declaredModules sync.Map

	// declaredMetrics maps metric name to its MetricDefinition.
	declaredMetrics sync.Map
)

// ModuleConfig represents metric configuration for a module
type ModuleConfig struct {
	Metrics []MetricDefinition
}

// MetricDefinition defines a metric's metadata.
type MetricDefinition struct {
	Name    string
	Type    string // counter or histogram
	Help    string
	Labels  []string
	Unit    string    // optional: ms, h
	Buckets []float64 // optional: histogram boundaries
}

// DeclareMetrics registers metric definitions for a module.
// It is safe to call from init() before any Provider exists; providers
// consult the declarations lazily when an instrument is first used.
//
// Example:
//
//	func init() {
//	    telemetry.DeclareMetrics("bus", telemetry.ModuleConfig{
//	        Metrics: []telemetry.MetricDefinition{
//	            {Name: "bus.broadcasts", Type: "counter"},
//	        },
//	    })
//	}
func DeclareMetrics(module string, config ModuleConfig) {
	declaredModules.Store(module, config)
	for _, def := range config.Metrics {
		declaredMetrics.Store(def.Name, def)
	}
}

// LookupMetric returns the declaration for name, if any.
func LookupMetric(name string) (MetricDefinition, bool) {
	v, ok := declaredMetrics.Load(name)
	if !ok {
		return MetricDefinition{}, false
	}
	return v.(MetricDefinition), true
}

// DeclaredModules returns the sorted names of every module that declared metrics.
func DeclaredModules() []string {
	var modules []string
	declaredModules.Range(func(key, _ interface{}) bool {
		modules = append(modules, key.(string))
		return true
	})
	sort.Strings(modules)
	return modules
}
