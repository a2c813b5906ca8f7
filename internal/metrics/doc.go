// Package metrics counts engine outcomes without locks or allocations.
//
// Each [MetricID] owns a padded uint64 slot updated with atomic adds, and the
// verify latency histogram has eight fixed buckets, the last one unbounded.
// [Metrics.Snapshot] copies everything for the exporters under
// metrics/export. No I/O happens here.
package metrics
