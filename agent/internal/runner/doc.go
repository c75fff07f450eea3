// Package runner executes report runs: fetch and classify through the
// aggregator, keep the result in the store, update metrics, probe the Looker
// certificate, and optionally deliver it. Runs are serialized; Reload swaps
// in a new config between runs.
package runner
