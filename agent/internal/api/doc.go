// Package api serves the report history and run trigger over HTTP.
//
// Routes (gorilla/mux):
//
//	GET  /api/v1/health           liveness and latest run summary
//	GET  /api/v1/report           latest report (JSON)
//	GET  /api/v1/report.html      latest report as the e-mail HTML body
//	GET  /api/v1/report/{kind}    one kind of the latest report
//	GET  /api/v1/reports          run summaries, newest first
//	GET  /api/v1/reports/{id}     one stored report by run ID
//	POST /api/v1/runs             run a report now
//	GET  /metrics                 Prometheus metrics
//
// Everything under /api/v1 except health goes through the auth middleware.
package api
