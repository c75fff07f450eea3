// Package metrics exports report outcomes as Prometheus metrics, both over
// HTTP (Handler) and as a node-exporter textfile (WriteTextfile).
package metrics
