// Package prometheus exposes goCred engine counters as a
// prometheus.Collector.
//
// Counters are published as gocred_*_total and challenge verification
// latency as the gocred_verify_latency_seconds histogram. Values are read
// from [goCred.Engine.MetricsSnapshot] on every scrape.
//
// The collector never registers itself with the global registry. Use
// [Exporter.Handler] for a private registry or register the Exporter with
// your own.
package prometheus
