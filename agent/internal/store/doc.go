// Package store keeps the most recent reports of this process in memory so
// the HTTP API can serve them. It is bounded and not persisted; report
// classification never reads from it.
package store
