// Package otel publishes goCred engine metrics through an OpenTelemetry
// Meter.
//
// Each counter becomes an Int64ObservableCounter. The verify latency
// histogram is flattened into one cumulative Int64ObservableGauge per
// bucket plus a _count gauge. A single callback reads the engine snapshot
// on every collection. Callers own the MeterProvider.
package otel
