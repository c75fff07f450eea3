// Package compute classifies the health of monitored Looker artifacts from
// their recent error history and last-run signal.
//
// timeparse.go normalises the two timestamp shapes Looker returns
// (offset-aware ISO-8601 and naive "YYYY-MM-DD HH:MM:SS", taken as UTC).
//
// cluster.go collapses an artifact's error events into representatives at
// least one window (default 30m) apart, so a burst of identical failures is
// counted once.
//
// health.go applies the unhealthy predicate: more than 5 clusters touched by
// more than 1 distinct user. The verdict carries the most recent
// representatives as evidence.
//
// staleness.go classifies the last-run signal as Never run, Unknown, or
// N days ago, and decides whether that exceeds the 30-day threshold.
//
// Everything here is pure: callers pass the clock and display location in.
package compute
