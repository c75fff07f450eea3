// Package report composes the compute classifiers over the monitored
// artifact lists into one Report per run.
//
// ClassifyKind is the pure core: given one kind's monitored ids, error events,
// ran-recently set and last-run signals, it returns the unhealthy artifacts
// with evidence, the stale and inconclusive lists, and the healthy/total
// counts. Artifacts are classified in parallel (bounded by Options.Concurrency)
// and results are assembled in monitored-list order.
//
// Aggregator drives a run end to end through the Source interface: one bulk
// fetch of error events, one ran-recently query per kind, then last-run
// lookups only for monitored ids that did not run recently. A failed last-run
// lookup is recorded on that artifact and never aborts the run.
package report
